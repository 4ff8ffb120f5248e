// Package gate runs one verification session: it owns the session phase
// and keystroke metrics, requests presentation stages in order and binds
// the resulting identity to the device.
//
// All session state is mutated by a single goroutine. Input arrives as
// events on a channel and is handled one at a time; a handler that awaits a
// presentation stage holds off every later event until the stage completes.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"mirrorgate/internal/coherence"
	"mirrorgate/internal/environment"
	"mirrorgate/internal/identity"
	"mirrorgate/internal/keystroke"
	"mirrorgate/internal/metrics"
	"mirrorgate/internal/phase"
	"mirrorgate/internal/presentation"
)

var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("gate: session already started")

	// ErrNotRunning is returned when input arrives outside a running session.
	ErrNotRunning = errors.New("gate: session not running")
)

// Config holds session timing.
type Config struct {
	// ObserveDwell is how long the session observes before input opens.
	ObserveDwell time.Duration

	// HashTimeout bounds fingerprint computation.
	HashTimeout time.Duration
}

// DefaultConfig returns the standard session timing.
func DefaultConfig() Config {
	return Config{
		ObserveDwell: 3500 * time.Millisecond,
		HashTimeout:  2 * time.Second,
	}
}

// Hasher computes the session fingerprint.
type Hasher interface {
	Hash(ctx context.Context, identifier string, m keystroke.Metrics, env environment.Descriptor) (string, error)
}

// Scorer computes the coherence score.
type Scorer interface {
	Score(m keystroke.Metrics) float64
}

// Result describes a session's outcome so far.
type Result struct {
	SessionID   string
	Phase       phase.Phase
	Identifier  string
	Fingerprint string
	Score       float64
	Resumed     bool
	Persisted   bool
	Card        *presentation.Card
	Metrics     keystroke.Metrics
}

// Machine is one verification session.
type Machine struct {
	cfg       Config
	presenter presentation.Presenter
	store     *identity.Store
	hasher    Hasher
	scorer    Scorer
	prober    environment.Prober
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Session
	now       func() time.Time

	sessionID string
	phase     phase.Value
	pulse     *keystroke.Pulse
	influence *presentation.Influence

	// Owned by the run goroutine.
	collector *keystroke.Collector

	events chan event
	done   chan struct{}

	mu          sync.Mutex
	started     bool
	cancel      context.CancelFunc
	subscribers []chan Notification
	result      Result
}

// Option configures a Machine.
type Option func(*Machine)

// WithConfig sets session timing.
func WithConfig(cfg Config) Option {
	return func(m *Machine) { m.cfg = cfg }
}

// WithHasher replaces the SHA-256 hasher.
func WithHasher(h Hasher) Option {
	return func(m *Machine) { m.hasher = h }
}

// WithScorer replaces the time-seeded scorer.
func WithScorer(s Scorer) Option {
	return func(m *Machine) { m.scorer = s }
}

// WithProber replaces the host environment probe.
func WithProber(p environment.Prober) Option {
	return func(m *Machine) { m.prober = p }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithTracer sets the tracer used for session and stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) { m.tracer = t }
}

// WithMetrics sets the session instruments.
func WithMetrics(s *metrics.Session) Option {
	return func(m *Machine) { m.metrics = s }
}

// WithClock replaces time.Now for timestamps taken by the session.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New creates a session that presents through p and persists to store.
func New(p presentation.Presenter, store *identity.Store, opts ...Option) *Machine {
	m := &Machine{
		cfg:       DefaultConfig(),
		presenter: p,
		store:     store,
		scorer:    coherence.NewScorer(0),
		prober:    environment.NewHost("mirrorgate"),
		logger:    slog.Default(),
		tracer:    tracenoop.NewTracerProvider().Tracer(""),
		now:       time.Now,
		sessionID: uuid.NewString(),
		pulse:     &keystroke.Pulse{},
		influence: &presentation.Influence{},
		collector: keystroke.NewCollector(),
		events:    make(chan event, 256),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hasher == nil {
		h, _ := identity.NewHasher(identity.DigestSHA256)
		m.hasher = h
	}
	m.logger = m.logger.With(slog.String("session_id", m.sessionID))
	m.result.SessionID = m.sessionID
	return m
}

// SessionID returns the session's unique id.
func (m *Machine) SessionID() string { return m.sessionID }

// Phase returns the current phase. Safe to call from any goroutine.
func (m *Machine) Phase() phase.Phase { return m.phase.Load() }

// Pulse returns the typing pulse fed by keystrokes during input.
func (m *Machine) Pulse() *keystroke.Pulse { return m.pulse }

// Influence returns the pointer and tilt state for renderers.
func (m *Machine) Influence() *presentation.Influence { return m.influence }

// Done is closed when the session reaches a terminal phase or stops.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Result returns a snapshot of the session outcome.
func (m *Machine) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.result
	r.Phase = m.phase.Load()
	r.Metrics = r.Metrics.Clone()
	return r
}

// Start begins the session. It returns immediately; the session runs until
// it reaches a terminal phase, ctx ends or Stop is called.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyRunning
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
	return nil
}

// Stop ends the session and waits for it to finish.
func (m *Machine) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-m.done
}

// Keystroke reports a key press at the given time.
func (m *Machine) Keystroke(at time.Time, key string) error {
	if m.phase.Load() == phase.Input && !keystroke.IsSubmitKey(key) {
		m.pulse.OnKeystroke(at)
	}
	return m.send(event{kind: eventKeystroke, at: at, key: key})
}

// Submit reports a submission of the identifier field.
func (m *Machine) Submit(value string) error {
	return m.send(event{kind: eventSubmit, at: m.now(), value: value})
}

// Subscribe returns a channel of session notifications. The channel is
// closed when the session ends. Slow subscribers miss notifications.
func (m *Machine) Subscribe() <-chan Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Notification, 256)
	select {
	case <-m.done:
		close(ch)
	default:
		m.subscribers = append(m.subscribers, ch)
	}
	return ch
}

func (m *Machine) send(ev event) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return ErrNotRunning
	}

	select {
	case <-m.done:
		return ErrNotRunning
	default:
	}

	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return ErrNotRunning
	}
}

func (m *Machine) emit(n Notification) {
	n.At = m.now()
	n.Phase = m.phase.Load()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- n:
		default:
			// Skip slow subscribers
		}
	}
}

// finish closes every subscriber and then Done, under one lock so a late
// Subscribe sees a closed session.
func (m *Machine) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	close(m.done)
}

func (m *Machine) updateResult(fn func(r *Result)) {
	m.mu.Lock()
	fn(&m.result)
	m.mu.Unlock()
}
