package form

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/uber-go/tally/v4"

	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/options"
	"github.com/goliatone/go-schemaform/pkg/persist"
	"github.com/goliatone/go-schemaform/pkg/schema"
	"github.com/goliatone/go-schemaform/pkg/validation"
	"github.com/goliatone/go-schemaform/pkg/visibility"
	"github.com/goliatone/go-schemaform/pkg/widgets"
)

var (
	// ErrUnknownField is returned when a method names a field the schema does
	// not declare.
	ErrUnknownField = errors.New("form: unknown field")
	// ErrClosed is returned by mutating methods after Close.
	ErrClosed = errors.New("form: closed")
)

// Cause tells subscribers what produced an Event.
type Cause string

const (
	CauseValue      Cause = "value"
	CauseOptions    Cause = "options"
	CauseValidation Cause = "validation"
	CauseError      Cause = "error"
	CauseReset      Cause = "reset"
	CauseSubmit     Cause = "submit"
)

// Event lists the fields whose value or state changed.
type Event struct {
	FormID string
	Cause  Cause
	Fields []string
}

// Submission is the result of Submit. Values only carries visible fields.
type Submission struct {
	Values map[string]any
	Errors map[string]string
	Valid  bool
}

// Form owns the values and derived field state of one schema instance. Every
// mutation happens under a single mutex; asynchronous option and validation
// results re-enter through it.
type Form struct {
	id      string
	schema  *schema.Normalized
	cfg     config
	logger  zerolog.Logger
	metrics tally.Scope

	ctx    context.Context
	cancel context.CancelFunc

	visibility *visibility.Evaluator
	resolver   *options.Resolver
	runner     *validation.Runner
	persist    *persist.Manager
	tracker    *tracker
	notifier   *notifier

	mu     sync.Mutex
	values map[string]any
	states map[string]model.FieldState
	closed bool
}

// New normalizes s and builds a form whose values are the schema defaults
// merged with any unexpired persisted snapshot. Configuration errors from the
// normalizer are wrapped and returned.
func New(s model.Schema, opts ...Option) (*Form, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	normalized, err := schema.Normalize(s, schema.WithWidgets(cfg.widgets))
	if err != nil {
		return nil, fmt.Errorf("form: invalid schema %q: %w", s.Name, err)
	}

	f := &Form{
		id:      uuid.NewString(),
		schema:  normalized,
		cfg:     cfg,
		metrics: cfg.metrics,
		tracker: &tracker{},
	}
	f.logger = cfg.logger.With().Str("form_id", f.id).Str("form", normalized.Name()).Logger()
	f.ctx, f.cancel = context.WithCancel(context.Background())
	f.notifier = newNotifier(f.tracker)

	f.visibility = visibility.New(normalized,
		visibility.WithLogger(f.logger),
		visibility.WithMetricsScope(f.metrics),
		visibility.WithReporter(f.report),
	)
	f.resolver = options.New(
		options.WithLogger(f.logger),
		options.WithMetricsScope(f.metrics),
		options.WithReporter(f.report),
		options.WithTracker(f.tracker),
	)
	f.runner = validation.NewRunner(validationHost{f},
		validation.WithLogger(f.logger),
		validation.WithMetricsScope(f.metrics),
		validation.WithReporter(f.report),
		validation.WithTracker(f.tracker),
	)

	if cfg := normalized.Persist(); cfg != nil {
		storage := f.cfg.storage
		if storage == nil {
			f.logger.Debug().Msg("persistence enabled without storage, using memory store")
			storage = persist.NewMemoryStorage()
		}
		f.persist, err = persist.New(storage, *cfg,
			persist.WithDebounce(f.cfg.debounce),
			persist.WithClock(f.cfg.clock),
			persist.WithLogger(f.logger),
			persist.WithMetricsScope(f.metrics),
			persist.WithReporter(f.report),
		)
		if err != nil {
			f.cancel()
			f.notifier.close()
			return nil, fmt.Errorf("form: persistence: %w", err)
		}
	}

	values := f.initialValues(false)
	f.mu.Lock()
	f.values = values
	f.recomputeLocked()
	f.mu.Unlock()

	f.logger.Debug().Int("fields", len(normalized.Fields())).Msg("form created")
	return f, nil
}

// ID returns the instance id.
func (f *Form) ID() string {
	return f.id
}

// Name returns the schema name.
func (f *Form) Name() string {
	return f.schema.Name()
}

// Fields returns the normalized field definitions in schema order.
func (f *Form) Fields() []model.Field {
	return f.schema.Fields()
}

// Warnings returns the non-fatal findings of normalization.
func (f *Form) Warnings() []schema.Warning {
	return append([]schema.Warning(nil), f.schema.Warnings...)
}

// Value returns the current value of name.
func (f *Form) Value(name string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.schema.Has(name) {
		return nil, false
	}
	return model.DeepCopy(f.values[name]), true
}

// Snapshot returns a deep copy of all values, hidden fields included.
func (f *Form) Snapshot() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.CloneValues(f.values)
}

// State returns the derived state of name.
func (f *Form) State(name string) (model.FieldState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[name]
	return state.Clone(), ok
}

// States returns a copy of every field state.
func (f *Form) States() map[string]model.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.FieldState, len(f.states))
	for name, state := range f.states {
		out[name] = state.Clone()
	}
	return out
}

// SetValue stores value for name, re-evaluates every field that depends on it
// directly or transitively, re-resolves their dynamic options and schedules a
// persistence write. Setting a deep-equal value does nothing.
func (f *Form) SetValue(name string, value any) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if !f.schema.Has(name) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if reflect.DeepEqual(f.values[name], value) {
		f.mu.Unlock()
		return nil
	}

	f.values[name] = model.DeepCopy(value)
	f.metrics.Counter("form.values_set").Inc(1)

	affected := f.visibility.Affected(name)
	ev := f.evalCtxLocked()
	for _, dependent := range affected {
		field, _ := f.schema.Field(dependent)
		state := f.states[dependent]
		f.applyAspects(&state, field, ev)
		if options.IsDynamic(field.Options) {
			f.resolveLocked(&state, field, ev)
		}
		f.states[dependent] = state
	}
	f.persist.Schedule(f.values)
	f.emit(CauseValue, append([]string{name}, affected...)...)
	f.mu.Unlock()
	return nil
}

// SetFieldError publishes a validation message for name without re-evaluating
// any other field. An empty message clears the error.
func (f *Form) SetFieldError(name, message string) error {
	f.mu.Lock()
	if !f.schema.Has(name) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	changed := f.setErrorLocked(name, message)
	f.mu.Unlock()

	if changed {
		f.emit(CauseError, name)
	}
	return nil
}

// Reset replaces every value and recomputes all derived state. With
// toDefaults the schema defaults are used as-is; otherwise they are merged
// with the persisted snapshot. Errors are cleared and a write is scheduled.
func (f *Form) Reset(toDefaults bool) error {
	values := f.initialValues(toDefaults)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.values = values
	f.recomputeLocked()
	f.persist.Schedule(f.values)
	f.emit(CauseReset, f.schema.Names()...)
	f.mu.Unlock()

	f.metrics.Counter("form.resets").Inc(1)
	return nil
}

// Blur triggers validation for name. Synchronous rules publish before Blur
// returns; asynchronous ones settle later, see Settle.
func (f *Form) Blur(name string) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !f.schema.Has(name) {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f.runner.Trigger(f.ctx, name, f.schema.Checker(name))
	return nil
}

// Submit validates every visible field concurrently, publishes the outcome
// and returns the visible values. Hidden fields are neither validated nor
// submitted but keep their values.
func (f *Form) Submit(ctx context.Context) (Submission, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Submission{}, ErrClosed
	}
	ev := f.evalCtxLocked()
	values := make(map[string]any)
	var items []validation.Item
	for _, name := range f.schema.Names() {
		if !f.states[name].Visible {
			continue
		}
		values[name] = model.DeepCopy(f.values[name])
		if checker := f.schema.Checker(name); checker != nil {
			items = append(items, validation.Item{Field: name, Checker: checker, Value: values[name], Ev: ev})
		}
	}
	f.mu.Unlock()

	failures, err := f.runner.Validate(ctx, items)
	if err != nil {
		return Submission{}, fmt.Errorf("form: submit: %w", err)
	}

	f.mu.Lock()
	changed := make([]string, 0, len(items))
	for _, item := range items {
		if f.setErrorLocked(item.Field, failures[item.Field]) {
			changed = append(changed, item.Field)
		}
	}
	f.mu.Unlock()

	f.metrics.Counter("form.submits").Inc(1)
	if len(failures) > 0 {
		f.metrics.Counter("form.submits_invalid").Inc(1)
	}
	if len(changed) > 0 {
		f.emit(CauseSubmit, changed...)
	}
	return Submission{Values: values, Errors: failures, Valid: len(failures) == 0}, nil
}

// Props returns the widget props for name with the form layout defaults
// merged into the field layout.
func (f *Form) Props(name string) (widgets.Props, error) {
	field, ok := f.schema.Field(name)
	if !ok {
		return widgets.Props{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f.mu.Lock()
	value := model.DeepCopy(f.values[name])
	state := f.states[name].Clone()
	f.mu.Unlock()

	return widgets.Props{
		Name:           field.Name,
		Label:          lo.Ternary(field.Label != "", field.Label, field.Name),
		Value:          value,
		Options:        state.Options,
		OptionsPending: state.OptionsPending,
		Visible:        state.Visible,
		Disabled:       state.Disabled,
		Readonly:       state.Readonly,
		Error:          state.Error,
		Validating:     state.Validating,
		Layout:         mergeLayout(f.schema.Layout(), field.Layout),
		Extra:          model.CloneValues(field.Props),
	}, nil
}

// Render draws name with the widget registered for its component.
func (f *Form) Render(name string) (string, error) {
	props, err := f.Props(name)
	if err != nil {
		return "", err
	}
	field, _ := f.schema.Field(name)
	return f.cfg.widgets.Render(field.Component, props)
}

// Subscribe registers fn for change events. Events are delivered in order on
// a separate goroutine; fn may call back into the Form.
func (f *Form) Subscribe(fn func(Event)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	return f.notifier.subscribe(fn)
}

// Settle waits until pending option resolutions, validations and event
// deliveries have finished.
func (f *Form) Settle(ctx context.Context) error {
	return f.tracker.Wait(ctx)
}

// Close writes any pending snapshot, cancels asynchronous work and stops
// event delivery. It is safe to call more than once.
func (f *Form) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.resolver.Close()
	f.persist.Flush()
	f.persist.Stop()
	f.notifier.close()
	f.logger.Debug().Msg("form closed")
	return nil
}

func (f *Form) initialValues(toDefaults bool) map[string]any {
	values := make(map[string]any, len(f.schema.Fields()))
	for _, field := range f.schema.Fields() {
		values[field.Name] = model.DeepCopy(field.Default)
	}
	if toDefaults || f.persist == nil {
		return values
	}
	restored := lo.PickBy(f.persist.Load(), func(name string, _ any) bool {
		return f.schema.Has(name)
	})
	for name, value := range restored {
		values[name] = value
	}
	return values
}

func (f *Form) evalCtxLocked() model.EvalCtx {
	return model.NewEvalCtx(f.values, f.cfg.extras, f.cfg.locale)
}

// recomputeLocked rebuilds every field state from the current values.
func (f *Form) recomputeLocked() {
	ev := f.evalCtxLocked()
	states := make(map[string]model.FieldState, len(f.schema.Fields()))
	for _, field := range f.schema.Fields() {
		state := model.DefaultFieldState()
		f.applyAspects(&state, field, ev)
		f.resolveLocked(&state, field, ev)
		states[field.Name] = state
	}
	f.states = states
}

// applyAspects clears the error of a field that is hidden.
func (f *Form) applyAspects(state *model.FieldState, field model.Field, ev model.EvalCtx) {
	result := f.visibility.Evaluate(field, ev)
	state.Visible = result.Visible
	state.Disabled = result.Disabled
	state.Readonly = result.Readonly
	if !state.Visible {
		state.Error = ""
	}
}

func (f *Form) resolveLocked(state *model.FieldState, field model.Field, ev model.EvalCtx) {
	if field.Options == nil {
		return
	}
	result := f.resolver.Resolve(f.ctx, field.Name, field.Options, ev, f.applyOptions)
	state.OptionsPending = result.Pending
	if !result.Pending {
		state.Options = result.Options
	}
}

// applyOptions receives asynchronous option results.
func (f *Form) applyOptions(field string, generation uint64, opts []model.Option) {
	f.mu.Lock()
	if f.closed || !f.resolver.Accept(field, generation) {
		f.mu.Unlock()
		return
	}
	state := f.states[field]
	state.Options = opts
	state.OptionsPending = false
	f.states[field] = state
	f.mu.Unlock()

	f.emit(CauseOptions, field)
}

func (f *Form) setErrorLocked(name, message string) bool {
	state, ok := f.states[name]
	if !ok || state.Error == message {
		return false
	}
	state.Error = message
	f.states[name] = state
	return true
}

func (f *Form) report(d model.Diagnostic) {
	d.FormID = f.id
	if d.Time.IsZero() {
		d.Time = time.Now()
	}
	f.metrics.Counter("form.diagnostics").Inc(1)
	if f.cfg.diag != nil {
		f.cfg.diag(d)
	}
}

func (f *Form) emit(cause Cause, fields ...string) {
	f.notifier.emit(Event{FormID: f.id, Cause: cause, Fields: fields})
}

func mergeLayout(form model.Layout, field model.FieldLayout) model.FieldLayout {
	out := field
	if out.Span <= 0 {
		out.Span = 1
	}
	if out.Cols <= 0 {
		out.Cols = form.Cols
	}
	if out.LabelWidth <= 0 {
		out.LabelWidth = form.LabelWidth
	}
	if out.LabelAlign == "" {
		out.LabelAlign = form.LabelPosition
	}
	out.Extra = lo.Assign(form.Extra, field.Extra)
	return out
}

// validationHost exposes the form to the validation runner without putting
// Current, Validating and Publish on the public API.
type validationHost struct {
	f *Form
}

func (h validationHost) Current(field string) (any, model.EvalCtx, bool) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	state, ok := h.f.states[field]
	if h.f.closed || !ok || !state.Visible {
		return nil, model.EvalCtx{}, false
	}
	return model.DeepCopy(h.f.values[field]), h.f.evalCtxLocked(), true
}

func (h validationHost) Validating(field string, on bool) {
	h.f.mu.Lock()
	state, ok := h.f.states[field]
	changed := ok && state.Validating != on
	if changed {
		state.Validating = on
		h.f.states[field] = state
	}
	h.f.mu.Unlock()
	if changed {
		h.f.emit(CauseValidation, field)
	}
}

func (h validationHost) Publish(field, message string) {
	h.f.mu.Lock()
	changed := h.f.setErrorLocked(field, message)
	h.f.mu.Unlock()
	if changed {
		h.f.emit(CauseValidation, field)
	}
}
