package visibility

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/uber-go/tally/v4"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// Aspect names used in diagnostics.
const (
	AspectVisible  = "visible"
	AspectDisabled = "disabled"
	AspectReadonly = "readonly"
)

// Index exposes the reverse-dependency index: for a field, the fields that
// declare it in DependsOn.
type Index interface {
	Dependents(name string) []string
}

// IndexFunc adapts a function into an Index.
type IndexFunc func(name string) []string

// Dependents delegates to the underlying function.
func (fn IndexFunc) Dependents(name string) []string {
	return fn(name)
}

// Result holds the boolean aspects derived for one field.
type Result struct {
	Visible  bool
	Disabled bool
	Readonly bool
}

// Reporter receives absorbed predicate failures.
type Reporter func(model.Diagnostic)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithReporter forwards predicate failures to fn.
func WithReporter(fn Reporter) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.report = fn
		}
	}
}

// WithLogger sets the logger used for predicate failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger.With().Str("component", "visibility").Logger()
	}
}

// WithMetricsScope sets the scope used for failure counters.
func WithMetricsScope(scope tally.Scope) Option {
	return func(e *Evaluator) {
		if scope != nil {
			e.metrics = scope
		}
	}
}

// Evaluator recomputes visible/disabled/readonly for the fields affected by a
// value change.
type Evaluator struct {
	index   Index
	report  Reporter
	logger  zerolog.Logger
	metrics tally.Scope
	now     func() time.Time
}

// New constructs an Evaluator over the supplied reverse index.
func New(index Index, options ...Option) *Evaluator {
	e := &Evaluator{
		index:   index,
		report:  func(model.Diagnostic) {},
		logger:  zerolog.Nop(),
		metrics: tally.NoopScope,
		now:     time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Affected returns the breadth-first closure of fields that depend, directly
// or transitively, on changed. Each field appears once, in discovery order.
func (e *Evaluator) Affected(changed string) []string {
	if e == nil || e.index == nil {
		return nil
	}
	visited := map[string]struct{}{changed: {}}
	queue := []string{changed}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependent := range e.index.Dependents(current) {
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			out = append(out, dependent)
			queue = append(queue, dependent)
		}
	}
	return out
}

// Evaluate computes the aspects of field. Missing predicates default to
// visible, enabled and editable. A failing or panicking predicate yields false
// for its aspect and is reported, never returned.
func (e *Evaluator) Evaluate(field model.Field, ev model.EvalCtx) Result {
	return Result{
		Visible:  e.aspect(field.Name, AspectVisible, field.Visible, true, ev),
		Disabled: e.aspect(field.Name, AspectDisabled, field.Disabled, false, ev),
		Readonly: e.aspect(field.Name, AspectReadonly, field.Readonly, false, ev),
	}
}

func (e *Evaluator) aspect(name, aspect string, predicate model.Predicate, fallback bool, ev model.EvalCtx) bool {
	if predicate == nil {
		return fallback
	}
	ok, err := safeEval(predicate, ev)
	if err == nil {
		return ok
	}

	e.metrics.Counter("predicate.errors").Inc(1)
	e.logger.Warn().Err(err).Str("field", name).Str("aspect", aspect).Msg("predicate failed; treating as false")
	e.report(model.Diagnostic{
		Field:  name,
		Kind:   model.DiagnosticPredicate,
		Aspect: aspect,
		Err:    err,
		Time:   e.now(),
	})
	return false
}

func safeEval(predicate model.Predicate, ev model.EvalCtx) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("visibility: predicate panicked: %v", r)
		}
	}()
	return predicate.Eval(ev)
}
