package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/options"
	"github.com/goliatone/go-schemaform/pkg/validation"
	"github.com/goliatone/go-schemaform/pkg/visibility/expr"
	"github.com/goliatone/go-schemaform/pkg/visibility/exprlang"
)

type documentFile struct {
	Name    string       `json:"name" yaml:"name" toml:"name"`
	Layout  model.Layout `json:"layout" yaml:"layout" toml:"layout"`
	Persist any          `json:"persist" yaml:"persist" toml:"persist"`
	Columns []columnFile `json:"columns" yaml:"columns" toml:"columns"`
}

type columnFile struct {
	Field        string            `json:"field" yaml:"field" toml:"field"`
	Label        string            `json:"label" yaml:"label" toml:"label"`
	Component    string            `json:"component" yaml:"component" toml:"component"`
	DefaultValue any               `json:"defaultValue" yaml:"defaultValue" toml:"defaultValue"`
	DependsOn    []string          `json:"dependsOn" yaml:"dependsOn" toml:"dependsOn"`
	Visible      any               `json:"visible" yaml:"visible" toml:"visible"`
	Disabled     any               `json:"disabled" yaml:"disabled" toml:"disabled"`
	Readonly     any               `json:"readonly" yaml:"readonly" toml:"readonly"`
	Options      any               `json:"options" yaml:"options" toml:"options"`
	Rules        any               `json:"rules" yaml:"rules" toml:"rules"`
	Layout       model.FieldLayout `json:"layout" yaml:"layout" toml:"layout"`
	Props        map[string]any    `json:"props" yaml:"props" toml:"props"`
}

// Decode parses a document into a model.Schema. Predicate strings compile
// with the built-in rule language, or with expr-lang when prefixed "expr:".
// Named strategies resolve against reg, which may be nil when the document
// references none.
func Decode(doc Document, reg *Registry) (model.Schema, error) {
	var file documentFile
	raw := doc.Raw()
	if len(bytes.TrimSpace(raw)) == 0 {
		return model.Schema{}, fmt.Errorf("schema: %s is empty", doc.Location())
	}

	var err error
	switch doc.Format() {
	case FormatYAML:
		err = yaml.Unmarshal(raw, &file)
	case FormatTOML:
		err = toml.Unmarshal(raw, &file)
	default:
		err = json.Unmarshal(raw, &file)
	}
	if err != nil {
		return model.Schema{}, fmt.Errorf("schema: parse %s as %s: %w", doc.Location(), doc.Format(), err)
	}

	out := model.Schema{
		Name:   strings.TrimSpace(file.Name),
		Layout: file.Layout,
		Fields: make([]model.Field, 0, len(file.Columns)),
	}
	if out.Persist, err = decodePersist(normalizeAny(file.Persist), out.Name); err != nil {
		return model.Schema{}, fmt.Errorf("schema: %s: %w", doc.Location(), err)
	}

	for idx, col := range file.Columns {
		field, err := decodeField(col, reg)
		if err != nil {
			name := col.Field
			if name == "" {
				name = fmt.Sprintf("#%d", idx)
			}
			return model.Schema{}, fmt.Errorf("schema: %s: field %q: %w", doc.Location(), name, err)
		}
		out.Fields = append(out.Fields, field)
	}
	return out, nil
}

func decodeField(col columnFile, reg *Registry) (model.Field, error) {
	field := model.Field{
		Name:      strings.TrimSpace(col.Field),
		Label:     col.Label,
		Component: strings.TrimSpace(col.Component),
		Default:   normalizeAny(col.DefaultValue),
		DependsOn: col.DependsOn,
		Layout:    col.Layout,
		Props:     lo.MapValues(col.Props, func(v any, _ string) any { return normalizeAny(v) }),
	}
	if len(col.Props) == 0 {
		field.Props = nil
	}

	var err error
	if field.Visible, err = decodePredicate(normalizeAny(col.Visible), reg); err != nil {
		return model.Field{}, fmt.Errorf("visible: %w", err)
	}
	if field.Disabled, err = decodePredicate(normalizeAny(col.Disabled), reg); err != nil {
		return model.Field{}, fmt.Errorf("disabled: %w", err)
	}
	if field.Readonly, err = decodePredicate(normalizeAny(col.Readonly), reg); err != nil {
		return model.Field{}, fmt.Errorf("readonly: %w", err)
	}
	if field.Options, err = decodeOptions(normalizeAny(col.Options), reg); err != nil {
		return model.Field{}, fmt.Errorf("options: %w", err)
	}
	if field.Rules, err = decodeRules(normalizeAny(col.Rules), reg); err != nil {
		return model.Field{}, fmt.Errorf("rules: %w", err)
	}
	return field, nil
}

func decodePredicate(raw any, reg *Registry) (model.Predicate, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return model.Const(v), nil
	case string:
		source := strings.TrimSpace(v)
		if strings.HasPrefix(source, exprlang.Prefix) {
			return exprlang.Compile(source)
		}
		return expr.Compile(source)
	case map[string]any:
		name, ok := v["predicate"].(string)
		if !ok {
			return nil, errors.New("expected {predicate: name}")
		}
		return lookup(reg, predicatesOf(reg), "predicate", name)
	default:
		return nil, fmt.Errorf("unsupported predicate %T", raw)
	}
}

func decodeOptions(raw any, reg *Registry) (model.OptionsProvider, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		static := make(model.StaticOptions, 0, len(v))
		for _, item := range v {
			static = append(static, decodeOption(item))
		}
		return static, nil
	case map[string]any:
		if name, ok := v["provider"].(string); ok {
			return lookup(reg, providersOf(reg), "provider", name)
		}
		if _, ok := v["url"]; ok {
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			var provider options.HTTPProvider
			if err := json.Unmarshal(encoded, &provider); err != nil {
				return nil, fmt.Errorf("decode http provider: %w", err)
			}
			return &provider, nil
		}
		return nil, errors.New("expected a list, {url: ...} or {provider: name}")
	default:
		return nil, fmt.Errorf("unsupported options %T", raw)
	}
}

func decodeOption(item any) model.Option {
	obj, ok := item.(map[string]any)
	if !ok {
		return model.Option{Label: fmt.Sprint(item), Value: item}
	}
	opt := model.Option{Value: obj["value"]}
	if label, ok := obj["label"]; ok && label != nil {
		opt.Label = fmt.Sprint(label)
	} else {
		opt.Label = fmt.Sprint(opt.Value)
	}
	if disabled, ok := obj["disabled"].(bool); ok {
		opt.Disabled = disabled
	}
	return opt
}

func decodeRules(raw any, reg *Registry) (model.Rule, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return model.RuleString(v), nil
	case map[string]any:
		switch {
		case v["cue"] != nil:
			source, ok := v["cue"].(string)
			if !ok {
				return nil, errors.New("cue constraint must be a string")
			}
			validator, err := validation.CUE(source)
			if err != nil {
				return nil, err
			}
			return model.SchemaRule{Validator: validator}, nil
		case v["openapi"] != nil:
			encoded, err := json.Marshal(v["openapi"])
			if err != nil {
				return nil, err
			}
			validator, err := validation.OpenAPI(encoded)
			if err != nil {
				return nil, err
			}
			return model.SchemaRule{Validator: validator}, nil
		case v["custom"] != nil:
			name, ok := v["custom"].(string)
			if !ok {
				return nil, errors.New("custom rule name must be a string")
			}
			return lookup(reg, rulesOf(reg), "rule", name)
		}
		return nil, errors.New("expected a rule string, {cue: ...}, {openapi: ...} or {custom: name}")
	default:
		return nil, fmt.Errorf("unsupported rules %T", raw)
	}
}

func decodePersist(raw any, schemaName string) (*model.PersistConfig, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		if !v {
			return nil, nil
		}
		return &model.PersistConfig{Key: schemaName}, nil
	case map[string]any:
		cfg := &model.PersistConfig{Key: schemaName}
		if key, ok := v["key"].(string); ok && strings.TrimSpace(key) != "" {
			cfg.Key = key
		}
		if ttl, ok := v["ttl"]; ok && ttl != nil {
			ms, ok := toFloat(ttl)
			if !ok || ms < 0 {
				return nil, fmt.Errorf("persist ttl must be a non-negative number of milliseconds")
			}
			cfg.TTL = model.TTL(time.Duration(ms * float64(time.Millisecond)))
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("unsupported persist value %T", raw)
	}
}

func predicatesOf(reg *Registry) map[string]model.Predicate {
	if reg == nil {
		return nil
	}
	return reg.predicates
}

func providersOf(reg *Registry) map[string]model.OptionsProvider {
	if reg == nil {
		return nil
	}
	return reg.providers
}

func rulesOf(reg *Registry) map[string]model.Rule {
	if reg == nil {
		return nil
	}
	return reg.rules
}

// normalizeAny converts decoder-specific container types (TOML tables,
// arrays of tables) into map[string]any and []any.
func normalizeAny(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalizeAny(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = normalizeAny(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeAny(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeAny(item)
		}
		return out
	default:
		return value
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
