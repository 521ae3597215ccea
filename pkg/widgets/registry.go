package widgets

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// Built-in widget tags. Lookups are case-insensitive and ignore '-', '_' and
// spaces, so "InputNumber", "input-number" and "input_number" are equivalent.
const (
	WidgetInput       = "Input"
	WidgetPassword    = "Password"
	WidgetInputNumber = "InputNumber"
	WidgetTextarea    = "Textarea"
	WidgetSelect      = "Select"
	WidgetMultiSelect = "MultiSelect"
	WidgetRadioGroup  = "RadioGroup"
	WidgetCheckbox    = "Checkbox"
	WidgetSwitch      = "Switch"
	WidgetDatePicker  = "DatePicker"
)

// ErrUnknownWidget is returned when a tag has no registered widget.
var ErrUnknownWidget = errors.New("widgets: unknown widget")

// InputKind tells interactive front-ends which kind of control a widget needs.
type InputKind string

const (
	InputText        InputKind = "text"
	InputPassword    InputKind = "password"
	InputNumber      InputKind = "number"
	InputTextarea    InputKind = "textarea"
	InputSelect      InputKind = "select"
	InputMultiSelect InputKind = "multiselect"
	InputConfirm     InputKind = "confirm"
)

// Props is everything a widget needs to draw one field.
type Props struct {
	Name           string
	Label          string
	Value          any
	Options        []model.Option
	OptionsPending bool
	Visible        bool
	Disabled       bool
	Readonly       bool
	Error          string
	Validating     bool
	Layout         model.FieldLayout
	Extra          map[string]any
}

// Widget renders a field from its props.
type Widget interface {
	Input() InputKind
	Render(props Props) (string, error)
}

// Registry maps component tags to widgets. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	widgets map[string]entry
}

type entry struct {
	tag    string
	widget Widget
}

// NewRegistry constructs a registry with the built-in widgets registered.
func NewRegistry() *Registry {
	reg := NewEmptyRegistry()
	reg.registerBuiltins()
	return reg
}

// NewEmptyRegistry constructs a registry without built-ins.
func NewEmptyRegistry() *Registry {
	return &Registry{widgets: make(map[string]entry)}
}

// Register adds or replaces the widget for tag. The latest registration wins.
func (r *Registry) Register(tag string, widget Widget) error {
	if r == nil {
		return errors.New("widgets: registry is nil")
	}
	key := normalizeTag(tag)
	if key == "" {
		return errors.New("widgets: tag is required")
	}
	if widget == nil {
		return fmt.Errorf("widgets: widget for %q is nil", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.widgets[key] = entry{tag: strings.TrimSpace(tag), widget: widget}
	return nil
}

// Lookup returns the widget registered for tag.
func (r *Registry) Lookup(tag string) (Widget, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.widgets[normalizeTag(tag)]
	return e.widget, ok
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag string) bool {
	_, ok := r.Lookup(tag)
	return ok
}

// Tags lists the registered tags as they were registered, sorted.
func (r *Registry) Tags() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.widgets))
	for _, e := range r.widgets {
		out = append(out, e.tag)
	}
	sort.Strings(out)
	return out
}

// Render draws props with the widget registered for tag.
func (r *Registry) Render(tag string, props Props) (string, error) {
	widget, ok := r.Lookup(tag)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownWidget, tag)
	}
	return widget.Render(props)
}

func normalizeTag(tag string) string {
	replacer := strings.NewReplacer("-", "", "_", "", " ", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(tag)))
}

func (r *Registry) registerBuiltins() {
	builtins := map[string]Widget{
		WidgetInput:       TextWidget{Kind: InputText},
		WidgetPassword:    TextWidget{Kind: InputPassword},
		WidgetInputNumber: TextWidget{Kind: InputNumber},
		WidgetTextarea:    TextWidget{Kind: InputTextarea},
		WidgetSelect:      TextWidget{Kind: InputSelect},
		WidgetMultiSelect: TextWidget{Kind: InputMultiSelect},
		WidgetRadioGroup:  TextWidget{Kind: InputSelect},
		WidgetCheckbox:    TextWidget{Kind: InputConfirm},
		WidgetSwitch:      TextWidget{Kind: InputConfirm},
		WidgetDatePicker:  TextWidget{Kind: InputText},
	}
	for tag, widget := range builtins {
		_ = r.Register(tag, widget)
	}
}
