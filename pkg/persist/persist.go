// Package persist writes best-effort, TTL-bounded snapshots of form values to
// a key/value storage backend.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/uber-go/tally/v4"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// KeyPrefix namespaces every storage key.
const KeyPrefix = "schemaform:"

// DefaultDebounce is the quiet period before a scheduled snapshot is written.
const DefaultDebounce = 300 * time.Millisecond

// Operation names passed to PersistConfig.OnError.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpDecode = "decode"
	OpEncode = "encode"
)

// Storage is the generic key/value backend. Get reports ok=false for a
// missing key.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

type record struct {
	Values  map[string]any `json:"values"`
	Expires int64          `json:"expires"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.debounce = d
		}
	}
}

// WithClock replaces time.Now for expiry computations.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger used when no OnError callback is configured.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.With().Str("component", "persist").Logger()
	}
}

// WithMetricsScope sets the scope for write and error counters.
func WithMetricsScope(scope tally.Scope) Option {
	return func(m *Manager) {
		if scope != nil {
			m.metrics = scope
		}
	}
}

// WithReporter receives a diagnostic for every storage failure, in addition
// to OnError or the log.
func WithReporter(fn func(model.Diagnostic)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.report = fn
		}
	}
}

// Manager debounces snapshot writes and restores unexpired snapshots. Storage
// failures never reach the caller.
type Manager struct {
	storage  Storage
	cfg      model.PersistConfig
	key      string
	debounce time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	metrics  tally.Scope
	report   func(model.Diagnostic)

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]any
	seq     uint64
	stopped bool
	// inflight counts timer writes that took a snapshot but have not finished.
	inflight int
	idle     *sync.Cond

	writeMu sync.Mutex
	written uint64
}

// New creates a Manager for cfg.
func New(storage Storage, cfg model.PersistConfig, opts ...Option) (*Manager, error) {
	if storage == nil {
		return nil, errors.New("persist: storage is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("persist: key is required")
	}
	m := &Manager{
		storage:  storage,
		cfg:      cfg,
		key:      KeyPrefix + strings.TrimSpace(cfg.Key),
		debounce: DefaultDebounce,
		now:      time.Now,
		logger:   zerolog.Nop(),
		metrics:  tally.NoopScope,
		report:   func(model.Diagnostic) {},
	}
	m.idle = sync.NewCond(&m.mu)
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Key returns the storage key including KeyPrefix.
func (m *Manager) Key() string {
	return m.key
}

// Schedule queues values for writing once no further Schedule call arrives
// within the debounce window.
func (m *Manager) Schedule(values map[string]any) {
	if m == nil {
		return
	}
	snapshot := model.CloneValues(values)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.pending = snapshot
	m.seq++
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.fire)
	m.metrics.Counter("persist.scheduled").Inc(1)
}

// Pending reports whether a snapshot is waiting for the debounce timer.
func (m *Manager) Pending() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Flush writes a pending snapshot immediately and waits for timer writes
// already underway.
func (m *Manager) Flush() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	values, seq := m.pending, m.seq
	m.pending = nil
	m.mu.Unlock()

	if values != nil {
		m.write(values, seq)
	}

	m.mu.Lock()
	for m.inflight > 0 {
		m.idle.Wait()
	}
	m.mu.Unlock()
}

// Stop cancels the timer and drops any pending snapshot. Later Schedule calls
// are ignored.
func (m *Manager) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.pending = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) fire() {
	m.mu.Lock()
	values, seq := m.pending, m.seq
	m.pending = nil
	m.timer = nil
	if values == nil {
		m.mu.Unlock()
		return
	}
	m.inflight++
	m.mu.Unlock()

	m.write(values, seq)

	m.mu.Lock()
	m.inflight--
	if m.inflight == 0 {
		m.idle.Broadcast()
	}
	m.mu.Unlock()
}

// write stores values unless a later snapshot was already written.
func (m *Manager) write(values map[string]any, seq uint64) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if seq <= m.written {
		return
	}

	expires := m.now().Add(m.cfg.EffectiveTTL())
	payload, err := json.Marshal(record{Values: values, Expires: expires.UnixMilli()})
	if err != nil {
		m.fail(OpEncode, fmt.Errorf("persist: encode snapshot: %w", err))
		return
	}
	if err := m.storage.Set(m.key, string(payload)); err != nil {
		m.fail(OpWrite, fmt.Errorf("persist: write %s: %w", m.key, err))
		return
	}
	m.written = seq
	m.metrics.Counter("persist.writes").Inc(1)
	m.logger.Debug().Str("key", m.key).Int("fields", len(values)).Msg("snapshot written")
}

// Load returns the stored values, or an empty map when the record is
// missing, expired or unreadable.
func (m *Manager) Load() map[string]any {
	empty := map[string]any{}
	if m == nil {
		return empty
	}
	raw, ok, err := m.storage.Get(m.key)
	if err != nil {
		m.fail(OpRead, fmt.Errorf("persist: read %s: %w", m.key, err))
		return empty
	}
	if !ok || raw == "" {
		return empty
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		m.fail(OpDecode, fmt.Errorf("persist: decode %s: %w", m.key, err))
		return empty
	}
	if m.now().UnixMilli() >= rec.Expires {
		m.metrics.Counter("persist.expired").Inc(1)
		m.logger.Debug().Str("key", m.key).Msg("snapshot expired")
		return empty
	}
	if rec.Values == nil {
		return empty
	}
	m.metrics.Counter("persist.restored").Inc(1)
	return rec.Values
}

func (m *Manager) fail(op string, err error) {
	m.metrics.Counter("persist.errors").Inc(1)
	m.report(model.Diagnostic{Kind: model.DiagnosticPersistence, Aspect: op, Err: err, Time: m.now()})
	if m.cfg.OnError != nil {
		m.cfg.OnError(op, err)
		return
	}
	m.logger.Warn().Err(err).Str("op", op).Msg("persistence failed")
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

// Get implements Storage.
func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	return value, ok, nil
}

// Set implements Storage.
func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}
