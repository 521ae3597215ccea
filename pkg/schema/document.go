package schema

import "errors"

// Document wraps a raw schema payload, its origin and its encoding.
type Document struct {
	source Source
	format Format
	raw    []byte
}

// NewDocument validates the inputs and copies raw. The format is derived from
// the source location.
func NewDocument(src Source, raw []byte) (Document, error) {
	if src == nil {
		return Document{}, errors.New("schema: source is required")
	}
	return NewDocumentWithFormat(src, FormatFor(src.Location()), raw)
}

// NewDocumentWithFormat is NewDocument with an explicit format.
func NewDocumentWithFormat(src Source, format Format, raw []byte) (Document, error) {
	if src == nil {
		return Document{}, errors.New("schema: source is required")
	}
	if len(raw) == 0 {
		return Document{}, errors.New("schema: raw document is empty")
	}
	switch format {
	case FormatJSON, FormatYAML, FormatTOML:
	default:
		return Document{}, errors.New("schema: unsupported format " + string(format))
	}
	return Document{source: src, format: format, raw: append([]byte(nil), raw...)}, nil
}

// Source returns the origin of the document.
func (d Document) Source() Source { return d.source }

// Format returns the document encoding.
func (d Document) Format() Format { return d.format }

// Raw returns a copy of the payload.
func (d Document) Raw() []byte { return append([]byte(nil), d.raw...) }

// Location returns the origin identifier.
func (d Document) Location() string {
	if d.source == nil {
		return ""
	}
	return d.source.Location()
}
