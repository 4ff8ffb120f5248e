// Package coherence turns keystroke timing into a bounded "coherence" score.
//
// The score rewards a steady typing rhythm (low coefficient of variation
// between keystroke intervals) and a quick first engagement. It is a
// decorative trust signal, not a biometric: the output always lies in
// [MinScore, MaxScore] no matter how wild the input is.
package coherence

import (
	"math"
	mathrand "math/rand"
	"sync"
	"time"

	"mirrorgate/internal/keystroke"
)

// Score bounds and formula constants.
const (
	MinScore = 55.0
	MaxScore = 99.0

	// FallbackMin and FallbackMax bound the value reported when there are
	// too few samples to measure anything.
	FallbackMin = 72.0
	FallbackMax = 87.0

	// MinSamples is the number of keystrokes needed for a measurement.
	MinSamples = 2

	// ReactionWindow is the reaction time at which the reaction bonus
	// reaches zero.
	ReactionWindow = 5 * time.Second

	baseFloor      = 60.0
	cvWeight       = 40.0
	baseWeight     = 0.8
	reactionWeight = 20.0
)

// Breakdown exposes the intermediate values of a measured score.
type Breakdown struct {
	Samples        int
	MeanInterval   float64 // ms
	StdDev         float64 // ms
	CV             float64
	ReactionTime   float64 // ms
	ReactionFactor float64
	Base           float64
	Adjusted       float64
	Score          float64
	Fallback       bool
}

// Scorer computes coherence scores. The random source only feeds the
// sparse-data fallback; inject a seeded one to make that path
// deterministic.
type Scorer struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewScorer creates a scorer. A zero seed selects a time-based seed.
func NewScorer(seed int64) *Scorer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Scorer{rng: mathrand.New(mathrand.NewSource(seed))}
}

// NewScorerWithRand creates a scorer around an existing random source.
func NewScorerWithRand(rng *mathrand.Rand) *Scorer {
	return &Scorer{rng: rng}
}

// Score returns the coherence score for m.
func (s *Scorer) Score(m keystroke.Metrics) float64 {
	return s.Explain(m).Score
}

// Explain returns the score together with the values that produced it.
func (s *Scorer) Explain(m keystroke.Metrics) Breakdown {
	if m.SampleCount() < MinSamples {
		return Breakdown{
			Samples:  m.SampleCount(),
			Score:    s.fallback(),
			Fallback: true,
		}
	}

	intervals := intervalsMs(m.Intervals())
	mean, stdDev := meanStdDev(intervals)

	cv := 1.0
	if mean > 0 {
		cv = stdDev / mean
	}

	// Only lower-clamped: a negative reaction time (impossible with a
	// well-ordered clock) would push the factor above 1.
	reaction := float64(m.ReactionTime()) / float64(time.Millisecond)
	reactionFactor := math.Max(0, 1-reaction/float64(ReactionWindow/time.Millisecond))

	base := math.Max(baseFloor, 100-cv*cvWeight)
	adjusted := base*baseWeight + reactionFactor*reactionWeight

	return Breakdown{
		Samples:        m.SampleCount(),
		MeanInterval:   mean,
		StdDev:         stdDev,
		CV:             cv,
		ReactionTime:   reaction,
		ReactionFactor: reactionFactor,
		Base:           base,
		Adjusted:       adjusted,
		Score:          Clamp(Round1(adjusted)),
	}
}

func (s *Scorer) fallback() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FallbackMin + s.rng.Float64()*(FallbackMax-FallbackMin)
}

// Round1 rounds v to one decimal place, halves away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Clamp bounds v to [MinScore, MaxScore].
func Clamp(v float64) float64 {
	return math.Min(MaxScore, math.Max(MinScore, v))
}

func intervalsMs(d []time.Duration) []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v) / float64(time.Millisecond)
	}
	return out
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	n := float64(len(values))

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	sq := 0.0
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}
