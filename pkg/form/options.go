package form

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/uber-go/tally/v4"
	"golang.org/x/text/language"

	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/persist"
	"github.com/goliatone/go-schemaform/pkg/widgets"
)

// Option configures a Form.
type Option func(*config)

// DiagnosticHandler receives evaluation problems absorbed into field state. It
// may be called from any goroutine, sometimes while the form lock is held, so
// it must not call back into the Form.
type DiagnosticHandler func(model.Diagnostic)

type config struct {
	logger   zerolog.Logger
	metrics  tally.Scope
	widgets  *widgets.Registry
	storage  persist.Storage
	locale   language.Tag
	extras   map[string]any
	diag     DiagnosticHandler
	debounce time.Duration
	clock    func() time.Time
}

func defaultConfig() config {
	return config{
		logger:   zerolog.Nop(),
		metrics:  tally.NoopScope,
		widgets:  widgets.NewRegistry(),
		locale:   language.English,
		debounce: persist.DefaultDebounce,
		clock:    time.Now,
	}
}

// WithLogger sets the base logger. Components derive sub-loggers tagged with
// the form id.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsScope sets the tally scope shared by every component.
func WithMetricsScope(scope tally.Scope) Option {
	return func(c *config) {
		if scope != nil {
			c.metrics = scope
		}
	}
}

// WithWidgets replaces the built-in widget registry used to check component
// tags and render fields.
func WithWidgets(reg *widgets.Registry) Option {
	return func(c *config) {
		if reg != nil {
			c.widgets = reg
		}
	}
}

// WithStorage sets the persistence backend. Schemas that enable persistence
// fall back to an in-process store when none is given.
func WithStorage(storage persist.Storage) Option {
	return func(c *config) {
		c.storage = storage
	}
}

// WithLocale sets the locale handed to strategies and used for messages.
func WithLocale(tag language.Tag) Option {
	return func(c *config) {
		c.locale = tag
	}
}

// WithExtras sets host context exposed to strategies through EvalCtx.Extra.
func WithExtras(extras map[string]any) Option {
	return func(c *config) {
		c.extras = model.CloneValues(extras)
	}
}

// WithDiagnosticHandler receives absorbed predicate, options and validator
// failures.
func WithDiagnosticHandler(fn DiagnosticHandler) Option {
	return func(c *config) {
		c.diag = fn
	}
}

// WithDebounce overrides the persistence debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithClock replaces time.Now for persistence expiry.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}
