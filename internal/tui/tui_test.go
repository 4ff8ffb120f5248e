package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/gate"
	"mirrorgate/internal/phase"
	"mirrorgate/internal/presentation"
)

type fakeSession struct {
	mu        sync.Mutex
	phase     phase.Phase
	keys      []string
	submits   []string
	stopped   bool
	influence presentation.Influence
}

func (f *fakeSession) Phase() phase.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *fakeSession) Keystroke(_ time.Time, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeSession) Submit(value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, value)
	return nil
}

func (f *fakeSession) Influence() *presentation.Influence { return &f.influence }

func (f *fakeSession) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func newTestModel(s *fakeSession) (Model, chan gate.Notification) {
	notes := make(chan gate.Notification, 8)
	return NewModel(s, notes, &FrameBuffer{}), notes
}

func TestTypingInInputPhase(t *testing.T) {
	s := &fakeSession{phase: phase.Input}
	m, _ := newTestModel(s)

	for _, k := range []string{"2", "1", "C", "S"} {
		m, _ = update(t, m, runes(k))
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	m, _ = update(t, m, runes("X"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"2", "1", "C", "S", "backspace", "X", "enter"}, s.keys)
	assert.Equal(t, []string{"21CX"}, s.submits)
	assert.Equal(t, "21CX", string(m.input))
}

func TestKeysOutsideInputAreNotBuffered(t *testing.T) {
	s := &fakeSession{phase: phase.Observing}
	m, _ := newTestModel(s)

	m, _ = update(t, m, runes("a"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"a", "enter"}, s.keys, "the session decides which keys count")
	assert.Empty(t, s.submits)
	assert.Empty(t, m.input)
}

func TestInputIsBounded(t *testing.T) {
	s := &fakeSession{phase: phase.Input}
	m, _ := newTestModel(s)

	m, _ = update(t, m, runes(strings.Repeat("x", maxInput)))
	m, _ = update(t, m, runes("y"))

	assert.Len(t, m.input, maxInput)
}

func TestInputRejectedShowsStatus(t *testing.T) {
	s := &fakeSession{phase: phase.Input}
	m, notes := newTestModel(s)

	m, cmd := update(t, m, notificationMsg(gate.Notification{Kind: gate.InputRejected, Phase: phase.Input}))
	require.NotNil(t, cmd, "model keeps listening for notifications")

	assert.Contains(t, m.View(), "an identifier is required")

	notes <- gate.Notification{Kind: gate.PhaseChanged, Phase: phase.Analyzing}
	msg := cmd()
	m, _ = update(t, m, msg)
	assert.Equal(t, phase.Analyzing, m.phase)
	assert.Empty(t, m.status)
}

func TestCardStageRendersCard(t *testing.T) {
	s := &fakeSession{phase: phase.Authorized}
	m, _ := newTestModel(s)

	card := &presentation.Card{
		Identifier:  "21CS045",
		IssuedAt:    time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC),
		Score:       98.6,
		Fingerprint: strings.Repeat("ab", 32),
	}
	m, _ = update(t, m, stageMsg{stage: presentation.Stage{Kind: presentation.StageCrystalToCard, Card: card}})

	view := m.View()
	assert.Contains(t, view, "ACCESS GRANTED")
	assert.Contains(t, view, "21CS045")
	assert.Contains(t, view, "98.6%")
	assert.Contains(t, view, "Mar 14, 2026 09:05 AM")
}

func TestDivergenceCaption(t *testing.T) {
	s := &fakeSession{phase: phase.Divergence}
	m, _ := newTestModel(s)

	m, _ = update(t, m, stageMsg{stage: presentation.Stage{Kind: presentation.StageDivergence}})
	assert.Contains(t, m.View(), "IDENTITY DIVERGENCE")
}

func TestSessionDoneThenAnyKeyQuits(t *testing.T) {
	s := &fakeSession{phase: phase.Authorized}
	m, notes := newTestModel(s)
	close(notes)

	msg := waitNotification(notes)()
	require.IsType(t, sessionDoneMsg{}, msg)

	m, _ = update(t, m, msg)
	assert.True(t, m.done)
	assert.Contains(t, m.View(), "press any key to exit")

	_, cmd := update(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, s.keys, "keys after the session ended are not forwarded")
}

func TestEscapeStopsSession(t *testing.T) {
	s := &fakeSession{phase: phase.Input}
	m, _ := newTestModel(s)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)

	stop := stopSession(s)
	assert.Nil(t, stop())
	assert.True(t, s.stopped)
}

func TestMouseSetsPointerInfluence(t *testing.T) {
	s := &fakeSession{phase: phase.Input}
	m, _ := newTestModel(s)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 50})
	m, _ = update(t, m, tea.MouseMsg{X: 0, Y: 0})
	assert.Equal(t, presentation.Vector{X: -1, Y: 1}, s.influence.Current())

	_, _ = update(t, m, tea.MouseMsg{X: 50, Y: 25})
	assert.Equal(t, presentation.Vector{X: 0, Y: 0}, s.influence.Current())
}

func TestShimmer(t *testing.T) {
	out := Shimmer(presentation.Frame{Phase: phase.Input}, 12, 3)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Len(t, l, 12)
		for _, r := range l {
			assert.Contains(t, ramp, string(r))
		}
	}

	bright := Shimmer(presentation.Frame{Phase: phase.Authorized, Pulse: 1}, 8, 2)
	assert.Equal(t, "@@@@@@@@\n@@@@@@@@", bright, "full pulse saturates an authorized mirror")

	assert.Empty(t, Shimmer(presentation.Frame{}, 0, 3))
}

func TestPresenterDeliversAndHolds(t *testing.T) {
	var got []presentation.Stage
	send := func(msg tea.Msg) {
		got = append(got, msg.(stageMsg).stage)
	}
	p := NewPresenter(map[presentation.StageKind]time.Duration{
		presentation.StageAnalyze: 20 * time.Millisecond,
	}, send)

	start := time.Now()
	require.NoError(t, p.Present(context.Background(), presentation.Stage{Kind: presentation.StageAnalyze}))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, p.Present(context.Background(), presentation.Stage{Kind: presentation.StageSplit}))
	require.Len(t, got, 2)
	assert.Equal(t, presentation.StageSplit, got[1].Kind)
}

func TestPresenterDoesNotWaitOnStalledProgram(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := NewPresenter(nil, func(tea.Msg) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Present(ctx, presentation.Stage{Kind: presentation.StageObserve})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFrameBufferKeepsLatest(t *testing.T) {
	var b FrameBuffer
	b.Frame(presentation.Frame{Pulse: 0.2})
	b.Frame(presentation.Frame{Pulse: 0.7})
	assert.Equal(t, 0.7, b.Latest().Pulse)
}
