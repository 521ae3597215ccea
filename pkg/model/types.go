package model

import "time"

// DefaultTTL is applied when a persistence config omits a TTL.
const DefaultTTL = 24 * time.Hour

// Schema is the ordered list of field definitions plus form-level layout
// defaults and an optional persistence configuration. Field names must be
// unique; the schema is treated as immutable for the lifetime of a form.
type Schema struct {
	Name    string
	Layout  Layout
	Persist *PersistConfig
	Fields  []Field
}

// Field describes one named input together with its behaviour.
type Field struct {
	Name      string
	Label     string
	Component string
	Default   any
	DependsOn []string

	Visible  Predicate
	Disabled Predicate
	Readonly Predicate

	Options OptionsProvider
	Rules   Rule

	Layout FieldLayout
	Props  map[string]any
}

// Layout carries form-level presentation defaults.
type Layout struct {
	Cols          int            `json:"cols,omitempty" yaml:"cols,omitempty" toml:"cols,omitempty"`
	LabelWidth    int            `json:"labelWidth,omitempty" yaml:"labelWidth,omitempty" toml:"labelWidth,omitempty"`
	LabelPosition string         `json:"labelPosition,omitempty" yaml:"labelPosition,omitempty" toml:"labelPosition,omitempty"`
	Extra         map[string]any `json:"extra,omitempty" yaml:"extra,omitempty" toml:"extra,omitempty"`
}

// FieldLayout overrides layout defaults for a single field. Zero values fall
// back to the form layout.
type FieldLayout struct {
	Span       int            `json:"span,omitempty" yaml:"span,omitempty" toml:"span,omitempty"`
	Cols       int            `json:"cols,omitempty" yaml:"cols,omitempty" toml:"cols,omitempty"`
	LabelAlign string         `json:"labelAlign,omitempty" yaml:"labelAlign,omitempty" toml:"labelAlign,omitempty"`
	LabelWidth int            `json:"labelWidth,omitempty" yaml:"labelWidth,omitempty" toml:"labelWidth,omitempty"`
	Extra      map[string]any `json:"extra,omitempty" yaml:"extra,omitempty" toml:"extra,omitempty"`
}

// PersistConfig enables best-effort persistence of form values. A nil TTL
// means DefaultTTL; a zero TTL produces snapshots that are already expired.
type PersistConfig struct {
	Key     string
	TTL     *time.Duration
	OnError func(op string, err error)
}

// TTL returns a pointer to d, convenient for PersistConfig literals.
func TTL(d time.Duration) *time.Duration {
	return &d
}

// EffectiveTTL resolves the configured TTL, applying DefaultTTL when unset.
func (c PersistConfig) EffectiveTTL() time.Duration {
	if c.TTL == nil {
		return DefaultTTL
	}
	return *c.TTL
}

// Option is one selectable entry of a select-like field.
type Option struct {
	Label    string `json:"label" yaml:"label" toml:"label"`
	Value    any    `json:"value" yaml:"value" toml:"value"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty" toml:"disabled,omitempty"`
}

// Field returns the definition with the supplied name.
func (s Schema) Field(name string) (Field, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}
