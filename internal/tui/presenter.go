package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"mirrorgate/internal/presentation"
)

// stageMsg asks the model to show a stage.
type stageMsg struct {
	stage presentation.Stage
}

// Presenter shows each stage in a running program and holds it for the
// stage's configured duration.
type Presenter struct {
	durations map[presentation.StageKind]time.Duration
	send      func(tea.Msg)
}

// NewPresenter returns a Presenter delivering stages through send, usually
// (*tea.Program).Send. Nil durations select the defaults.
func NewPresenter(durations map[presentation.StageKind]time.Duration, send func(tea.Msg)) *Presenter {
	if durations == nil {
		durations = presentation.DefaultDurations
	}
	return &Presenter{durations: durations, send: send}
}

// Present implements presentation.Presenter.
func (p *Presenter) Present(ctx context.Context, s presentation.Stage) error {
	// Send blocks until the program reads it; a stopped session must not
	// wait on a program that is itself waiting on the session.
	delivered := make(chan struct{})
	go func() {
		p.send(stageMsg{stage: s})
		close(delivered)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-delivered:
	}

	d := p.durations[s.Kind]
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FrameBuffer is a presentation.Renderer that keeps the latest frame for
// the model's own redraw tick.
type FrameBuffer struct {
	mu     sync.RWMutex
	latest presentation.Frame
}

// Frame implements presentation.Renderer.
func (b *FrameBuffer) Frame(f presentation.Frame) {
	b.mu.Lock()
	b.latest = f
	b.mu.Unlock()
}

// Latest returns the most recent frame.
func (b *FrameBuffer) Latest() presentation.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}
