package widgets

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// TextWidget renders a single plain-text line per field:
//
//	Role: Admin [User | Admin]
//	Admin code: ****** (readonly) ! must be at least 8 characters
//
// Hidden fields render as an empty string.
type TextWidget struct {
	Kind InputKind
}

// Input reports the control kind.
func (w TextWidget) Input() InputKind {
	return w.Kind
}

// Render implements Widget.
func (w TextWidget) Render(p Props) (string, error) {
	if !p.Visible {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(label(p))
	b.WriteString(": ")
	b.WriteString(w.display(p))

	switch w.Kind {
	case InputSelect, InputMultiSelect:
		switch {
		case p.OptionsPending:
			b.WriteString(" [loading]")
		case len(p.Options) > 0:
			labels := make([]string, 0, len(p.Options))
			for _, opt := range p.Options {
				labels = append(labels, optionLabel(opt))
			}
			b.WriteString(" [")
			b.WriteString(strings.Join(labels, " | "))
			b.WriteString("]")
		}
	}

	if p.Disabled {
		b.WriteString(" (disabled)")
	}
	if p.Readonly {
		b.WriteString(" (readonly)")
	}
	if p.Validating {
		b.WriteString(" (validating)")
	}
	if p.Error != "" {
		b.WriteString(" ! ")
		b.WriteString(p.Error)
	}
	return b.String(), nil
}

func (w TextWidget) display(p Props) string {
	if isEmpty(p.Value) {
		return "-"
	}
	switch w.Kind {
	case InputPassword:
		return strings.Repeat("*", len([]rune(Stringify(p.Value))))
	case InputConfirm:
		if truthy, ok := p.Value.(bool); ok {
			if truthy {
				return "yes"
			}
			return "no"
		}
	case InputSelect:
		return optionDisplay(p.Options, p.Value)
	case InputMultiSelect:
		values, ok := p.Value.([]any)
		if !ok {
			break
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, optionDisplay(p.Options, v))
		}
		return strings.Join(parts, ", ")
	}
	return Stringify(p.Value)
}

func label(p Props) string {
	if strings.TrimSpace(p.Label) != "" {
		return p.Label
	}
	return p.Name
}

func optionLabel(opt model.Option) string {
	if opt.Label != "" {
		return opt.Label
	}
	return Stringify(opt.Value)
}

func optionDisplay(options []model.Option, value any) string {
	want := Stringify(value)
	for _, opt := range options {
		if Stringify(opt.Value) == want {
			return optionLabel(opt)
		}
	}
	return want
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// Stringify formats scalar values the way widgets display them.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	default:
		return fmt.Sprint(v)
	}
}
