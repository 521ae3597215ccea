package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/uber-go/tally/v4"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// Host is the state owner the runner reads values from and publishes results
// to. The runner may call Validating and Publish while holding its own lock,
// so a Host must never call back into the Runner from those methods.
type Host interface {
	// Current returns the value and evaluation context to validate. ok is
	// false when the field should not be validated (unknown or hidden).
	Current(field string) (value any, ev model.EvalCtx, ok bool)
	// Validating toggles the field's in-flight flag.
	Validating(field string, on bool)
	// Publish stores the validation outcome; an empty message clears it.
	Publish(field, message string)
}

// Tracker counts background work so callers can wait for it to settle.
// *sync.WaitGroup satisfies it.
type Tracker interface {
	Add(delta int)
	Done()
}

// Reporter receives unexpected validator failures.
type Reporter func(model.Diagnostic)

// Item is one field queued for submit-time validation.
type Item struct {
	Field   string
	Checker Checker
	Value   any
	Ev      model.EvalCtx
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger.With().Str("component", "validation").Logger()
	}
}

// WithMetricsScope sets the scope used for run counters and latency.
func WithMetricsScope(scope tally.Scope) RunnerOption {
	return func(r *Runner) {
		if scope != nil {
			r.metrics = scope
		}
	}
}

// WithReporter forwards unexpected validator errors.
func WithReporter(fn Reporter) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.report = fn
		}
	}
}

// WithTracker registers asynchronous runs with t.
func WithTracker(t Tracker) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracker = t
		}
	}
}

type flight struct {
	dirty bool
}

// Runner executes checkers on blur and on submit. Each field has at most one
// asynchronous run in flight; triggers that arrive meanwhile mark the flight
// dirty, and when the run settles the field is checked once more if its value
// changed in the meantime. A result for a value that changed without a new
// trigger, or for a field that is no longer visible, is discarded.
type Runner struct {
	host    Host
	logger  zerolog.Logger
	metrics tally.Scope
	report  Reporter
	tracker Tracker

	mu      sync.Mutex
	flights map[string]*flight
}

// NewRunner creates a runner publishing to host.
func NewRunner(host Host, opts ...RunnerOption) *Runner {
	r := &Runner{
		host:    host,
		logger:  zerolog.Nop(),
		metrics: tally.NoopScope,
		report:  func(model.Diagnostic) {},
		tracker: noopTracker{},
		flights: make(map[string]*flight),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Trigger validates field with checker. Synchronous checkers publish before
// Trigger returns; asynchronous ones run in a goroutine bound to ctx.
func (r *Runner) Trigger(ctx context.Context, field string, checker Checker) {
	if r == nil || checker == nil {
		return
	}
	if !checker.Async() {
		value, ev, ok := r.host.Current(field)
		if !ok {
			return
		}
		msg := r.outcome(field, ev, r.check(ctx, checker, value, ev))
		r.mu.Lock()
		if _, busy := r.flights[field]; !busy {
			r.host.Publish(field, msg)
		}
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	if f, busy := r.flights[field]; busy {
		f.dirty = true
		r.mu.Unlock()
		r.metrics.Counter("validation.coalesced").Inc(1)
		return
	}
	r.flights[field] = &flight{}
	r.host.Validating(field, true)
	r.tracker.Add(1)
	r.mu.Unlock()

	go r.run(ctx, field, checker)
}

// InFlight reports whether field has an asynchronous run pending.
func (r *Runner) InFlight(field string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.flights[field]
	return ok
}

func (r *Runner) run(ctx context.Context, field string, checker Checker) {
	defer r.tracker.Done()
	for {
		value, ev, ok := r.host.Current(field)
		if !ok {
			r.finish(field, "", false)
			return
		}
		err := r.check(ctx, checker, value, ev)
		if ctx.Err() != nil {
			r.finish(field, "", false)
			return
		}
		msg := r.outcome(field, ev, err)

		r.mu.Lock()
		f := r.flights[field]
		latest, _, ok := r.host.Current(field)
		if !ok || !reflect.DeepEqual(latest, value) {
			if ok && f != nil && f.dirty {
				f.dirty = false
				r.mu.Unlock()
				r.logger.Debug().Str("field", field).Msg("value changed during validation, re-running")
				continue
			}
			delete(r.flights, field)
			r.host.Validating(field, false)
			r.mu.Unlock()
			r.metrics.Counter("validation.stale").Inc(1)
			r.logger.Debug().Str("field", field).Msg("value changed during validation, result discarded")
			return
		}
		delete(r.flights, field)
		r.host.Publish(field, msg)
		r.host.Validating(field, false)
		r.mu.Unlock()
		return
	}
}

func (r *Runner) finish(field, msg string, publish bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flights, field)
	if publish {
		r.host.Publish(field, msg)
	}
	r.host.Validating(field, false)
}

// Validate runs every item concurrently and returns the failures keyed by
// field. It does not stop at the first failure and does not publish.
func (r *Runner) Validate(ctx context.Context, items []Item) (map[string]string, error) {
	if r == nil {
		return nil, errors.New("validation: nil runner")
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = make(map[string]string)
	)
	for _, item := range items {
		if item.Checker == nil {
			continue
		}
		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			err := r.check(ctx, item.Checker, item.Value, item.Ev)
			if ctx.Err() != nil {
				return
			}
			if msg := r.outcome(item.Field, item.Ev, err); msg != "" {
				mu.Lock()
				failures[item.Field] = msg
				mu.Unlock()
			}
		}(item)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return failures, fmt.Errorf("validation: submit interrupted: %w", err)
	}
	return failures, nil
}

func (r *Runner) check(ctx context.Context, checker Checker, value any, ev model.EvalCtx) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = &checkFailure{err: fmt.Errorf("validation: checker panic: %v", rec), ev: ev}
		}
		r.metrics.Counter("validation.runs").Inc(1)
		r.metrics.Timer("validation.latency").Record(time.Since(start))
	}()
	return checker.Check(ctx, value, ev)
}

// outcome maps a checker result onto the message published for field.
func (r *Runner) outcome(field string, ev model.EvalCtx, err error) string {
	if err == nil {
		return ""
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		r.metrics.Counter("validation.failures").Inc(1)
		return fe.Message
	}
	failure, ok := err.(*checkFailure)
	if !ok {
		failure = &checkFailure{err: err, ev: ev}
	}
	r.metrics.Counter("validation.errors").Inc(1)
	r.logger.Warn().Err(failure.err).Str("field", field).Msg("validator failed")
	r.report(model.Diagnostic{
		Field: field,
		Kind:  model.DiagnosticValidation,
		Err:   failure.err,
		Time:  time.Now(),
	})
	return failure.fieldError().Message
}

type noopTracker struct{}

func (noopTracker) Add(int) {}
func (noopTracker) Done()   {}
