package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/validation"
	"github.com/goliatone/go-schemaform/pkg/widgets"
)

// NormalizeOption customises Normalize.
type NormalizeOption func(*normalizeConfig)

type normalizeConfig struct {
	widgets     *widgets.Registry
	checkWidget bool
}

// WithWidgets validates component tags against reg. Passing nil disables the
// component check.
func WithWidgets(reg *widgets.Registry) NormalizeOption {
	return func(cfg *normalizeConfig) {
		cfg.widgets = reg
		cfg.checkWidget = reg != nil
	}
}

// Normalized is a validated, indexed schema. It is immutable once returned.
type Normalized struct {
	name       string
	layout     model.Layout
	persist    *model.PersistConfig
	fields     []model.Field
	index      map[string]int
	dependents map[string][]string
	checkers   map[string]validation.Checker

	// Warnings lists non-fatal findings such as predicates reading fields
	// they do not declare in DependsOn.
	Warnings []Warning
}

// Normalize validates s and builds the field index, the reverse-dependency
// index and the compiled rule checkers. Structural problems are returned as
// typed errors; nothing is evaluated.
func Normalize(s model.Schema, opts ...NormalizeOption) (*Normalized, error) {
	cfg := normalizeConfig{widgets: widgets.NewRegistry(), checkWidget: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	n := &Normalized{
		name:       s.Name,
		layout:     s.Layout,
		fields:     make([]model.Field, 0, len(s.Fields)),
		index:      make(map[string]int, len(s.Fields)),
		dependents: make(map[string][]string),
		checkers:   make(map[string]validation.Checker),
	}

	for _, field := range s.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return nil, ErrEmptyFieldName
		}
		if _, exists := n.index[name]; exists {
			return nil, &DuplicateFieldError{Field: name}
		}
		field.Name = name
		field.DependsOn = lo.Uniq(lo.Map(field.DependsOn, func(dep string, _ int) string {
			return strings.TrimSpace(dep)
		}))
		if strings.TrimSpace(field.Component) == "" {
			field.Component = widgets.WidgetInput
		}
		n.index[name] = len(n.fields)
		n.fields = append(n.fields, field)
	}

	for _, field := range n.fields {
		for _, dep := range field.DependsOn {
			if _, ok := n.index[dep]; !ok {
				return nil, &UnknownDependencyError{Field: field.Name, Dependency: dep}
			}
		}
	}

	if cycle := n.findCycle(); cycle != nil {
		return nil, &CyclicDependencyError{Path: cycle}
	}

	for _, field := range n.fields {
		for _, dep := range field.DependsOn {
			n.dependents[dep] = append(n.dependents[dep], field.Name)
		}
	}

	for _, field := range n.fields {
		if cfg.checkWidget && !cfg.widgets.Has(field.Component) {
			return nil, &UnknownWidgetError{Field: field.Name, Component: field.Component}
		}
		checker, err := validation.Compile(field.Rules)
		if err != nil {
			return nil, ruleError(field.Name, err)
		}
		if checker != nil {
			n.checkers[field.Name] = checker
		}
	}

	if s.Persist != nil {
		if strings.TrimSpace(s.Persist.Key) == "" {
			return nil, ErrPersistKeyRequired
		}
		persist := *s.Persist
		persist.Key = strings.TrimSpace(persist.Key)
		n.persist = &persist
	}

	n.Warnings = n.lintReferences()
	return n, nil
}

func ruleError(field string, err error) error {
	var unknown *validation.UnknownRuleError
	if errors.As(err, &unknown) {
		unknown.Field = field
		return unknown
	}
	var argErr *validation.RuleArgumentError
	if errors.As(err, &argErr) {
		argErr.Field = field
		return argErr
	}
	return &RuleError{Field: field, Err: err}
}

// findCycle runs a depth-first traversal over DependsOn edges keeping the
// current recursion stack. The first back edge to a node still on the stack
// yields the cycle path.
func (n *Normalized) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(n.fields))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = onStack
		stack = append(stack, name)
		field := n.fields[n.index[name]]
		for _, dep := range field.DependsOn {
			switch state[dep] {
			case onStack:
				start := lo.IndexOf(stack, dep)
				path := append([]string(nil), stack[start:]...)
				return append(path, dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, field := range n.fields {
		if state[field.Name] == unvisited {
			if cycle := visit(field.Name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// lintReferences compares the identifiers predicates and option providers
// report reading against DependsOn.
func (n *Normalized) lintReferences() []Warning {
	var warnings []Warning
	for _, field := range n.fields {
		var refs []string
		for _, candidate := range []any{field.Visible, field.Disabled, field.Readonly, field.Options} {
			if r, ok := candidate.(model.Referencer); ok && r != nil {
				refs = append(refs, r.References()...)
			}
		}
		roots := lo.Uniq(lo.Map(refs, func(ref string, _ int) string {
			root, _, _ := strings.Cut(ref, ".")
			return root
		}))
		sort.Strings(roots)
		for _, root := range roots {
			if root == field.Name || lo.Contains(field.DependsOn, root) {
				continue
			}
			msg := fmt.Sprintf("reads %q without declaring it in dependsOn", root)
			if _, ok := n.index[root]; !ok {
				msg = fmt.Sprintf("references unknown field %q", root)
			}
			warnings = append(warnings, Warning{Field: field.Name, Message: msg})
		}
	}
	return warnings
}

// Name returns the schema name.
func (n *Normalized) Name() string { return n.name }

// Layout returns the form-level layout defaults.
func (n *Normalized) Layout() model.Layout { return n.layout }

// Persist returns the persistence configuration or nil when disabled.
func (n *Normalized) Persist() *model.PersistConfig {
	if n.persist == nil {
		return nil
	}
	out := *n.persist
	return &out
}

// Fields returns the field definitions in schema order.
func (n *Normalized) Fields() []model.Field {
	return append([]model.Field(nil), n.fields...)
}

// Names returns the field names in schema order.
func (n *Normalized) Names() []string {
	return lo.Map(n.fields, func(f model.Field, _ int) string { return f.Name })
}

// Field looks up a definition by name.
func (n *Normalized) Field(name string) (model.Field, bool) {
	idx, ok := n.index[name]
	if !ok {
		return model.Field{}, false
	}
	return n.fields[idx], true
}

// Has reports whether name is a declared field.
func (n *Normalized) Has(name string) bool {
	_, ok := n.index[name]
	return ok
}

// Dependents returns the fields declaring name in DependsOn, in schema order.
func (n *Normalized) Dependents(name string) []string {
	return append([]string(nil), n.dependents[name]...)
}

// Checker returns the compiled rule for name, or nil when it has none.
func (n *Normalized) Checker(name string) validation.Checker {
	return n.checkers[name]
}
