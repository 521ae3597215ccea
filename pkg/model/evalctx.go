package model

import (
	"strings"

	"golang.org/x/text/language"
)

// EvalCtx is the read-only snapshot handed to predicates, option providers and
// validators. Values mirror the form values at the time the snapshot was taken;
// Extras carries host context (locale, device, roles, feature flags) so
// strategies never reach for global state.
type EvalCtx struct {
	values map[string]any
	extras map[string]any
	locale language.Tag
}

// NewEvalCtx builds a snapshot. The maps are deep-copied so later mutation by
// the caller is not observed.
func NewEvalCtx(values, extras map[string]any, locale language.Tag) EvalCtx {
	return EvalCtx{
		values: CloneValues(values),
		extras: CloneValues(extras),
		locale: locale,
	}
}

// Value returns the current value of a field.
func (c EvalCtx) Value(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Values returns a copy of the value map.
func (c EvalCtx) Values() map[string]any {
	return CloneValues(c.values)
}

// Extra returns a host-supplied context entry.
func (c EvalCtx) Extra(key string) (any, bool) {
	v, ok := c.extras[key]
	return v, ok
}

// Extras returns a copy of the host context.
func (c EvalCtx) Extras() map[string]any {
	return CloneValues(c.extras)
}

// Locale reports the language used for user-facing messages.
func (c EvalCtx) Locale() language.Tag {
	return c.locale
}

// Lookup resolves a dotted path. Paths prefixed with "extras." read from the
// host context, everything else from the values. Exact dotted keys win over
// nested traversal.
func (c EvalCtx) Lookup(path string) (any, bool) {
	key := strings.TrimSpace(path)
	if key == "" {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(key), "extras.") {
		return lookupMap(c.extras, strings.TrimSpace(key[len("extras."):]))
	}
	return lookupMap(c.values, key)
}

func lookupMap(values map[string]any, path string) (any, bool) {
	if len(values) == 0 || path == "" {
		return nil, false
	}
	if v, ok := values[path]; ok {
		return v, true
	}

	var current any = values
	for _, part := range strings.Split(path, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, false
		}
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}
	return current, true
}

// CloneValues deep-copies nested maps and slices of a value map.
func CloneValues(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = DeepCopy(v)
	}
	return out
}

// DeepCopy copies JSON-like containers; scalars are returned as-is.
func DeepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for k, v := range typed {
			clone[k] = DeepCopy(v)
		}
		return clone
	case []any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = DeepCopy(v)
		}
		return clone
	case []string:
		return append([]string(nil), typed...)
	case []Option:
		return append([]Option(nil), typed...)
	default:
		return typed
	}
}
