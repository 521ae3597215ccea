package model

import "context"

// Predicate computes a boolean aspect (visible, disabled, readonly) of a field
// from the current snapshot. Implementations must be pure; an error is treated
// as false by the evaluator and reported as a diagnostic.
type Predicate interface {
	Eval(ctx EvalCtx) (bool, error)
}

// PredicateFunc adapts a function into a Predicate.
type PredicateFunc func(ctx EvalCtx) (bool, error)

// Eval delegates to the underlying function.
func (fn PredicateFunc) Eval(ctx EvalCtx) (bool, error) {
	return fn(ctx)
}

// Const is a Predicate with a fixed outcome.
type Const bool

// Eval returns the constant.
func (c Const) Eval(EvalCtx) (bool, error) {
	return bool(c), nil
}

// Referencer is implemented by strategies that can report which values they
// read. The normalizer compares these against DependsOn.
type Referencer interface {
	References() []string
}

// OptionsProvider resolves the selectable options of a field.
type OptionsProvider interface {
	Options(ctx context.Context, ev EvalCtx) ([]Option, error)
}

// AsyncProvider marks an OptionsProvider whose resolution may block and must
// run off the mutation path.
type AsyncProvider interface {
	Async() bool
}

// StaticOptions is a fixed option list. It is resolved once and never
// re-resolved on dependency change.
type StaticOptions []Option

// Options returns a copy of the list.
func (s StaticOptions) Options(context.Context, EvalCtx) ([]Option, error) {
	return append([]Option(nil), s...), nil
}

// OptionsFunc computes options synchronously from the snapshot.
type OptionsFunc func(ev EvalCtx) ([]Option, error)

// Options delegates to the underlying function.
func (fn OptionsFunc) Options(_ context.Context, ev EvalCtx) ([]Option, error) {
	return fn(ev)
}

// AsyncOptionsFunc loads options asynchronously. The context is cancelled when
// the resolution is superseded or the form is closed.
type AsyncOptionsFunc func(ctx context.Context, ev EvalCtx) ([]Option, error)

// Options delegates to the underlying function.
func (fn AsyncOptionsFunc) Options(ctx context.Context, ev EvalCtx) ([]Option, error) {
	return fn(ctx, ev)
}

// Async reports true.
func (AsyncOptionsFunc) Async() bool { return true }

// Rule is one of RuleString, SchemaRule or CustomRule.
type Rule interface {
	rule()
}

// RuleString is the pipe-separated mini-DSL, e.g. "required|min:5|email".
type RuleString string

func (RuleString) rule() {}

// ExternalValidator wraps a schema-validation library. Validate returns the
// (possibly coerced) value, or a *ValidationError describing the failure.
type ExternalValidator interface {
	Validate(ctx context.Context, value any) (any, error)
}

// SchemaRule validates through an ExternalValidator.
type SchemaRule struct {
	Validator ExternalValidator
}

func (SchemaRule) rule() {}

// CustomRule is arbitrary per-field validation logic. It reports ok for a
// valid value and a message otherwise. It may block; the runner calls it off
// the mutation path.
type CustomRule func(ctx context.Context, value any, ev EvalCtx) (ok bool, message string)

func (CustomRule) rule() {}

// ValidationError is the failure contract for external validators.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
