package keystroke

import (
	"sync"
	"time"
)

// Pulse tuning, in the units renderers see.
const (
	// PulseNumerator over the last interval (ms) gives the raw intensity:
	// a 300ms gap yields 1.0, slower typing yields less.
	PulseNumerator = 300.0
	// PulseFloor caps how short an interval may count (ms).
	PulseFloor = 50.0
	// PulseDecay is applied once per rendered frame.
	PulseDecay = 0.95
)

// Pulse tracks the ambient "typing energy" renderers use to brighten the
// scene. Fast typing pushes it towards 1; every frame decays it.
// Safe for concurrent use: the input surface writes, the renderer reads.
type Pulse struct {
	mu        sync.Mutex
	intensity float64
	last      time.Time
}

// OnKeystroke updates the intensity from the gap since the previous key.
func (p *Pulse) OnKeystroke(at time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		gapMs := float64(at.Sub(p.last)) / float64(time.Millisecond)
		if gapMs < PulseFloor {
			gapMs = PulseFloor
		}
		p.intensity = min(1, max(p.intensity, PulseNumerator/gapMs))
	}
	p.last = at
	return p.intensity
}

// Decay applies one frame of decay and returns the new intensity.
func (p *Pulse) Decay() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intensity *= PulseDecay
	return p.intensity
}

// Intensity returns the current value in [0, 1].
func (p *Pulse) Intensity() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intensity
}
