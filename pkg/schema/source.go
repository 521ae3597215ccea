package schema

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Source identifies where a schema document came from so the loader can read
// files, fs.FS entries or URLs behind one interface.
type Source interface {
	Kind() SourceKind
	Location() string
}

// SourceKind enumerates the loader modalities.
type SourceKind string

const (
	SourceKindFile SourceKind = "file"
	SourceKindFS   SourceKind = "fs"
	SourceKindURL  SourceKind = "url"
)

// Format is the encoding of a schema document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

type fileSource struct{ path string }

func (s fileSource) Kind() SourceKind { return SourceKindFile }
func (s fileSource) Location() string { return s.path }

// SourceFromFile returns a Source pointing to a file path.
func SourceFromFile(p string) Source {
	return fileSource{path: filepath.Clean(p)}
}

type fsSource struct{ name string }

func (s fsSource) Kind() SourceKind { return SourceKindFS }
func (s fsSource) Location() string { return s.name }

// SourceFromFS returns a Source naming an entry inside the loader's fs.FS.
func SourceFromFS(name string) Source {
	return fsSource{name: path.Clean(name)}
}

type urlSource struct{ raw string }

func (s urlSource) Kind() SourceKind { return SourceKindURL }
func (s urlSource) Location() string { return s.raw }

// SourceFromURL validates raw and returns a Source for it.
func SourceFromURL(raw string) (Source, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("schema: empty URL source")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("schema: unsupported URL scheme %q", u.Scheme)
	}
	return urlSource{raw: raw}, nil
}

// FormatFor guesses the document format from a location's extension. JSON is
// assumed when the extension is unknown.
func FormatFor(location string) Format {
	loc := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		loc = u.Path
	}
	switch strings.ToLower(path.Ext(loc)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}
