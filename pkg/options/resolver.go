package options

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/uber-go/tally/v4"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// Result describes the immediate outcome of Resolve. When Pending is true the
// options arrive later through the Apply callback tagged with Generation.
type Result struct {
	Options    []model.Option
	Pending    bool
	Generation uint64
}

// Apply receives the settled result of an asynchronous resolution. The
// receiver must call Accept with the generation before applying opts.
type Apply func(field string, generation uint64, opts []model.Option)

// Reporter receives absorbed resolution failures.
type Reporter func(model.Diagnostic)

// Tracker counts background work; *sync.WaitGroup satisfies it.
type Tracker interface {
	Add(delta int)
	Done()
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger.With().Str("component", "options").Logger()
	}
}

// WithMetricsScope sets the scope for resolution counters.
func WithMetricsScope(scope tally.Scope) Option {
	return func(r *Resolver) {
		if scope != nil {
			r.metrics = scope
		}
	}
}

// WithReporter forwards resolution failures.
func WithReporter(fn Reporter) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.report = fn
		}
	}
}

// WithTracker registers asynchronous resolutions with t.
func WithTracker(t Tracker) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracker = t
		}
	}
}

// Resolver resolves option lists per field. Every dynamic resolution bumps the
// field's generation; an asynchronous result is only accepted while its
// generation is still the latest, and superseded requests have their context
// cancelled.
type Resolver struct {
	logger  zerolog.Logger
	metrics tally.Scope
	report  Reporter
	tracker Tracker

	mu      sync.Mutex
	gens    map[string]uint64
	cancels map[string]context.CancelFunc
	closed  bool
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		logger:  zerolog.Nop(),
		metrics: tally.NoopScope,
		report:  func(model.Diagnostic) {},
		tracker: noopTracker{},
		gens:    make(map[string]uint64),
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// IsDynamic reports whether provider depends on the evaluation context and
// must be re-resolved when a dependency changes.
func IsDynamic(provider model.OptionsProvider) bool {
	switch provider.(type) {
	case nil, model.StaticOptions:
		return false
	default:
		return true
	}
}

// IsAsync reports whether provider must run off the caller's goroutine.
func IsAsync(provider model.OptionsProvider) bool {
	a, ok := provider.(model.AsyncProvider)
	return ok && a.Async()
}

// Resolve resolves field's options. Static and synchronous providers return
// their options directly; asynchronous providers return a pending result and
// later call apply from another goroutine.
func (r *Resolver) Resolve(ctx context.Context, field string, provider model.OptionsProvider, ev model.EvalCtx, apply Apply) Result {
	if provider == nil {
		return Result{}
	}
	if static, ok := provider.(model.StaticOptions); ok {
		opts, _ := static.Options(ctx, ev)
		return Result{Options: opts}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Result{Options: []model.Option{}}
	}
	if cancel := r.cancels[field]; cancel != nil {
		cancel()
		delete(r.cancels, field)
	}
	r.gens[field]++
	gen := r.gens[field]
	r.metrics.Counter("options.resolutions").Inc(1)

	if !IsAsync(provider) {
		r.mu.Unlock()
		opts, err := r.call(ctx, provider, ev)
		if err != nil {
			r.fail(field, err)
			return Result{Options: []model.Option{}, Generation: gen}
		}
		return Result{Options: opts, Generation: gen}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancels[field] = cancel
	r.tracker.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.tracker.Done()
		defer r.release(field, gen, cancel)

		opts, err := r.call(runCtx, provider, ev)
		if err != nil {
			if runCtx.Err() != nil {
				// Superseded or closed; the newer generation owns the field.
				return
			}
			r.fail(field, err)
			opts = []model.Option{}
		}
		if apply != nil {
			apply(field, gen, opts)
		}
	}()

	return Result{Pending: true, Generation: gen}
}

// Accept reports whether generation is still the latest for field. Stale
// generations are counted and must be discarded by the caller.
func (r *Resolver) Accept(field string, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.gens[field] != generation {
		r.metrics.Counter("options.stale").Inc(1)
		r.logger.Debug().Str("field", field).Uint64("generation", generation).Msg("discarding stale options")
		return false
	}
	return true
}

// Generation returns the latest generation issued for field.
func (r *Resolver) Generation(field string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[field]
}

// Close cancels every in-flight resolution. Later results are discarded.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for field, cancel := range r.cancels {
		cancel()
		delete(r.cancels, field)
	}
}

func (r *Resolver) release(field string, gen uint64, cancel context.CancelFunc) {
	cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[field] == gen {
		delete(r.cancels, field)
	}
}

func (r *Resolver) call(ctx context.Context, provider model.OptionsProvider, ev model.EvalCtx) (opts []model.Option, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("options: provider panic: %v", rec)
		}
	}()
	opts, err = provider.Options(ctx, ev)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = []model.Option{}
	}
	return opts, nil
}

func (r *Resolver) fail(field string, err error) {
	r.metrics.Counter("options.failures").Inc(1)
	r.logger.Warn().Err(err).Str("field", field).Msg("options resolution failed")
	r.report(model.Diagnostic{
		Field: field,
		Kind:  model.DiagnosticOptions,
		Err:   err,
		Time:  time.Now(),
	})
}

type noopTracker struct{}

func (noopTracker) Add(int) {}
func (noopTracker) Done()   {}
