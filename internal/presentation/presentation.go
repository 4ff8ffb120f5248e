// Package presentation is the contract between a verification session and
// whatever draws it. A session requests stages and blocks until each one
// finishes; renderers receive a continuous stream of frames.
package presentation

import (
	"context"
	"fmt"
	"time"

	"mirrorgate/internal/phase"
)

// StageKind identifies a visual sequence.
type StageKind int

const (
	StageObserve StageKind = iota
	StageRevealInput
	StageAnalyze
	StageSplit
	StageConverge
	StageCrystalFormation
	StageCrystalToCard
	StageResumeCard
	StageDivergence
)

var stageNames = [...]string{
	StageObserve:          "observe",
	StageRevealInput:      "reveal-input",
	StageAnalyze:          "analyze",
	StageSplit:            "split",
	StageConverge:         "converge",
	StageCrystalFormation: "crystal-formation",
	StageCrystalToCard:    "crystal-to-card",
	StageResumeCard:       "resume-card",
	StageDivergence:       "divergence",
}

func (k StageKind) String() string {
	if k < 0 || int(k) >= len(stageNames) {
		return fmt.Sprintf("StageKind(%d)", int(k))
	}
	return stageNames[k]
}

// StageKinds returns every stage kind in catalogue order.
func StageKinds() []StageKind {
	out := make([]StageKind, len(stageNames))
	for i := range stageNames {
		out[i] = StageKind(i)
	}
	return out
}

// ParseStageKind returns the stage kind with the given name.
func ParseStageKind(s string) (StageKind, error) {
	for i, n := range stageNames {
		if n == s {
			return StageKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", s)
}

// Stage is a request to play one visual sequence.
type Stage struct {
	Kind  StageKind
	Phase phase.Phase

	// Fingerprint is set for the split stage.
	Fingerprint string

	// Score is set for the converge stage.
	Score float64

	// Card is set for the card stages.
	Card *Card
}

// Presenter plays stages. Present returns once the stage's visual sequence
// has completed, or with ctx's error if ctx ends first.
type Presenter interface {
	Present(ctx context.Context, s Stage) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, s Stage) error

// Present calls f.
func (f PresenterFunc) Present(ctx context.Context, s Stage) error { return f(ctx, s) }

// DefaultDurations are the stage lengths used when none are configured.
var DefaultDurations = map[StageKind]time.Duration{
	StageObserve:          2000 * time.Millisecond,
	StageRevealInput:      2700 * time.Millisecond,
	StageAnalyze:          1500 * time.Millisecond,
	StageSplit:            2500 * time.Millisecond,
	StageConverge:         4500 * time.Millisecond,
	StageCrystalFormation: 3000 * time.Millisecond,
	StageCrystalToCard:    3000 * time.Millisecond,
	StageResumeCard:       2000 * time.Millisecond,
	StageDivergence:       1500 * time.Millisecond,
}

// Timed is a Presenter that completes each stage after a fixed duration.
// Unknown stages complete immediately.
type Timed struct {
	Durations map[StageKind]time.Duration

	// OnStage, if set, is called when a stage starts.
	OnStage func(Stage)
}

// NewTimed returns a Timed presenter; nil durations select DefaultDurations.
func NewTimed(durations map[StageKind]time.Duration) *Timed {
	if durations == nil {
		durations = DefaultDurations
	}
	return &Timed{Durations: durations}
}

// Present implements Presenter.
func (t *Timed) Present(ctx context.Context, s Stage) error {
	if t.OnStage != nil {
		t.OnStage(s)
	}
	d := t.Durations[s.Kind]
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
