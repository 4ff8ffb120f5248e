package presentation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/keystroke"
	"mirrorgate/internal/phase"
)

const testFingerprint = "8dada37fb7e8795f300ba66798b1377051aca8f43196084bf3e1247ec7a70f1d"

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCardGolden(t *testing.T) {
	g := newGoldie(t)

	fresh := Card{
		Identifier:  "21CS045",
		IssuedAt:    time.Date(2026, 10, 16, 15, 4, 0, 0, time.UTC),
		Score:       98.6,
		Fingerprint: testFingerprint,
	}
	g.Assert(t, "card_fresh", []byte(fresh.String()))

	resumed := Card{
		Identifier:  "21CS045",
		IssuedAt:    time.Date(2027, 1, 5, 9, 30, 0, 0, time.UTC),
		Resumed:     true,
		Fingerprint: testFingerprint,
	}
	g.Assert(t, "card_resumed", []byte(resumed.String()))
}

func TestCardFields(t *testing.T) {
	c := Card{Score: 72}
	assert.Equal(t, "72.0%", c.Coherence())
	assert.Equal(t, "…", c.FingerprintPreview(), "placeholder fingerprint still renders")

	c.Fingerprint = "abc"
	assert.Equal(t, "abc…", c.FingerprintPreview())
}

func TestStageKindNames(t *testing.T) {
	want := []string{
		"observe", "reveal-input", "analyze", "split", "converge",
		"crystal-formation", "crystal-to-card", "resume-card", "divergence",
	}
	kinds := StageKinds()
	require.Len(t, kinds, len(want))
	for i, k := range kinds {
		assert.Equal(t, want[i], k.String())
		parsed, err := ParseStageKind(want[i])
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseStageKind("explode")
	assert.Error(t, err)
	assert.Equal(t, "StageKind(99)", StageKind(99).String())
}

func TestDefaultDurationsCoverCatalogue(t *testing.T) {
	for _, k := range StageKinds() {
		assert.Positive(t, DefaultDurations[k], "missing default for %s", k)
	}
}

func TestPointerVector(t *testing.T) {
	tests := []struct {
		name       string
		x, y, w, h float64
		want       Vector
	}{
		{"centre", 50, 50, 100, 100, Vector{0, 0}},
		{"top left", 0, 0, 100, 100, Vector{-1, 1}},
		{"bottom right", 100, 100, 100, 100, Vector{1, -1}},
		{"quarter", 25, 75, 100, 100, Vector{-0.5, -0.5}},
		{"degenerate surface", 10, 10, 0, 100, Vector{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PointerVector(tc.x, tc.y, tc.w, tc.h)
			assert.InDelta(t, tc.want.X, got.X, 1e-9)
			assert.InDelta(t, tc.want.Y, got.Y, 1e-9)
		})
	}
}

func TestTiltVector(t *testing.T) {
	v := TiltVector(22.5, -45)
	assert.InDelta(t, -1.0, v.X, 1e-9)
	assert.InDelta(t, 0.5, v.Y, 1e-9)
}

func TestInfluenceTiltReplacesPointer(t *testing.T) {
	var in Influence
	in.Pointer(Vector{0.2, 0.3})
	assert.Equal(t, Vector{0.2, 0.3}, in.Current())

	in.Tilt(Vector{-0.5, 0.5})
	in.Pointer(Vector{0.9, 0.9})
	assert.Equal(t, Vector{-0.5, 0.5}, in.Current())

	in.DenyTilt()
	assert.Equal(t, Vector{0.9, 0.9}, in.Current())
}

type tiltSamples struct {
	mu      sync.Mutex
	samples [][2]float64
	err     error
}

func (s *tiltSamples) Orientation() (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return 0, 0, s.err
	}
	next := s.samples[0]
	if len(s.samples) > 1 {
		s.samples = s.samples[1:]
	}
	return next[0], next[1], nil
}

func TestFollowTiltFeedsInfluence(t *testing.T) {
	var in Influence
	in.Pointer(Vector{0.9, 0.9})
	src := &tiltSamples{samples: [][2]float64{{45, -22.5}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		FollowTilt(ctx, src, &in, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return in.Current() == Vector{X: -0.5, Y: 1}
	}, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestFollowTiltDeniedFallsBackToPointer(t *testing.T) {
	var in Influence
	in.Tilt(Vector{-0.5, 0.5})
	in.Pointer(Vector{0.2, 0.3})

	FollowTilt(context.Background(), nil, &in, time.Millisecond)
	assert.Equal(t, Vector{0.2, 0.3}, in.Current())

	in.Tilt(Vector{-0.5, 0.5})
	FollowTilt(context.Background(), &tiltSamples{err: errors.New("permission denied")}, &in, time.Millisecond)
	assert.Equal(t, Vector{0.2, 0.3}, in.Current())
}

func TestTimedPresenter(t *testing.T) {
	var seen []StageKind
	p := NewTimed(map[StageKind]time.Duration{StageSplit: 10 * time.Millisecond})
	p.OnStage = func(s Stage) { seen = append(seen, s.Kind) }

	start := time.Now()
	require.NoError(t, p.Present(context.Background(), Stage{Kind: StageSplit}))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	// Unconfigured stages complete immediately.
	require.NoError(t, p.Present(context.Background(), Stage{Kind: StageConverge}))
	assert.Equal(t, []StageKind{StageSplit, StageConverge}, seen)
}

func TestTimedPresenterCancelled(t *testing.T) {
	p := NewTimed(map[StageKind]time.Duration{StageObserve: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Present(ctx, Stage{Kind: StageObserve})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoopEmitsFrames(t *testing.T) {
	var (
		mu     sync.Mutex
		frames []Frame
	)
	pulse := &keystroke.Pulse{}
	base := time.Now()
	pulse.OnKeystroke(base)
	pulse.OnKeystroke(base.Add(100 * time.Millisecond))

	var in Influence
	in.Pointer(Vector{0.5, -0.5})

	l := &Loop{
		Rate:      200,
		Phase:     func() phase.Phase { return phase.Input },
		Pulse:     pulse,
		Influence: &in,
		Renderer: RendererFunc(func(f Frame) {
			mu.Lock()
			frames = append(frames, f)
			mu.Unlock()
		}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(frames), 2)
	first := frames[0]
	assert.Equal(t, phase.Input, first.Phase)
	assert.Equal(t, Vector{0.5, -0.5}, first.Influence)
	assert.InDelta(t, 0.95, first.Pulse, 1e-9)
	assert.InDelta(t, math.Pow(0.95, 2), frames[1].Pulse, 1e-9)
	assert.Greater(t, frames[1].Elapsed, first.Elapsed)
}
