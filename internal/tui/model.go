// Package tui is the interactive terminal surface for a verification
// session. It presents stages, draws the ambient mirror from render-loop
// frames, and forwards key and pointer input to the session.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"mirrorgate/internal/gate"
	"mirrorgate/internal/keystroke"
	"mirrorgate/internal/phase"
	"mirrorgate/internal/presentation"
)

// maxInput bounds the identifier field.
const maxInput = 32

// sessionPort is the part of gate.Machine the model drives.
type sessionPort interface {
	Phase() phase.Phase
	Keystroke(at time.Time, key string) error
	Submit(value string) error
	Influence() *presentation.Influence
	Stop()
}

// ─── messages ────────────────────────────────────────────────────────────────

type notificationMsg gate.Notification

type sessionDoneMsg struct{}

type tickMsg time.Time

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model for one session.
type Model struct {
	session  sessionPort
	notes    <-chan gate.Notification
	frames   *FrameBuffer
	interval time.Duration
	now      func() time.Time

	phase  phase.Phase
	stage  *presentation.Stage
	card   *presentation.Card
	input  []rune
	status string
	done   bool

	width  int
	height int
}

// Option configures a Model.
type Option func(*Model)

// WithFrameInterval sets the redraw interval.
func WithFrameInterval(d time.Duration) Option {
	return func(m *Model) { m.interval = d }
}

// WithClock overrides the keystroke clock.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// NewModel returns a model for session. notes is the session's
// subscription; frames receives the render loop's output.
func NewModel(session sessionPort, notes <-chan gate.Notification, frames *FrameBuffer, opts ...Option) Model {
	m := Model{
		session:  session,
		notes:    notes,
		frames:   frames,
		interval: time.Second / 30,
		now:      time.Now,
		phase:    session.Phase(),
		width:    60,
		height:   20,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitNotification(m.notes), m.tick())
}

func waitNotification(ch <-chan gate.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return sessionDoneMsg{}
		}
		return notificationMsg(n)
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// stopSession runs off the event loop: Stop waits for the session, which
// may be waiting for the program to accept a stage.
func stopSession(s sessionPort) tea.Cmd {
	return func() tea.Msg {
		s.Stop()
		return nil
	}
}

// ─── update ──────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, m.tick()

	case stageMsg:
		s := msg.stage
		m.stage = &s
		if s.Card != nil {
			m.card = s.Card
		}

	case notificationMsg:
		m.phase = msg.Phase
		switch msg.Kind {
		case gate.InputRejected:
			m.status = "an identifier is required"
		case gate.PhaseChanged:
			if msg.Phase != phase.Input {
				m.status = ""
			}
		}
		return m, waitNotification(m.notes)

	case sessionDoneMsg:
		m.done = true
		m.phase = m.session.Phase()

	case tea.MouseMsg:
		m.session.Influence().Pointer(presentation.PointerVector(
			float64(msg.X), float64(msg.Y), float64(m.width), float64(m.height),
		))

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" || key == "esc" {
		return m, tea.Sequence(stopSession(m.session), tea.Quit)
	}
	if m.done {
		return m, tea.Quit
	}

	// The session decides whether the key counts; it ignores keys outside
	// the input phase.
	_ = m.session.Keystroke(m.now(), key)

	if m.session.Phase() != phase.Input {
		return m, nil
	}

	switch {
	case keystroke.IsSubmitKey(key):
		_ = m.session.Submit(string(m.input))
	case msg.Type == tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace:
		runes := msg.Runes
		if msg.Type == tea.KeySpace {
			runes = []rune{' '}
		}
		if len(m.input)+len(runes) <= maxInput {
			m.input = append(m.input, runes...)
		}
	}
	return m, nil
}
