package presentation

import (
	"context"
	"sync"
	"time"

	"mirrorgate/internal/keystroke"
	"mirrorgate/internal/phase"
)

// Frame is one tick of the ambient render loop.
type Frame struct {
	Elapsed time.Duration
	Delta   time.Duration
	Phase   phase.Phase

	// Pulse is the current typing pulse intensity in [0, 1].
	Pulse float64

	// Influence is the normalised pointer or tilt vector.
	Influence Vector
}

// Renderer consumes frames. Frame must not block.
type Renderer interface {
	Frame(f Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Frame)

// Frame calls f.
func (f RendererFunc) Frame(fr Frame) { f(fr) }

// Vector is a normalised 2D input sample with both axes in [-1, 1] for
// on-screen positions.
type Vector struct {
	X, Y float64
}

// PointerVector normalises a pointer position within a w×h surface so the
// centre maps to (0, 0) and up is positive.
func PointerVector(x, y, w, h float64) Vector {
	if w <= 0 || h <= 0 {
		return Vector{}
	}
	return Vector{
		X: x/w*2 - 1,
		Y: -(y/h)*2 + 1,
	}
}

// TiltVector normalises device orientation angles in degrees.
func TiltVector(beta, gamma float64) Vector {
	return Vector{X: gamma / 45, Y: beta / 45}
}

// Influence tracks the latest pointer and tilt samples. Once a tilt sample
// has arrived it takes precedence over the pointer.
type Influence struct {
	mu      sync.RWMutex
	pointer Vector
	tilt    Vector
	hasTilt bool
}

// Pointer records a pointer sample.
func (in *Influence) Pointer(v Vector) {
	in.mu.Lock()
	in.pointer = v
	in.mu.Unlock()
}

// Tilt records a tilt sample.
func (in *Influence) Tilt(v Vector) {
	in.mu.Lock()
	in.tilt = v
	in.hasTilt = true
	in.mu.Unlock()
}

// DenyTilt discards tilt input, falling back to the pointer.
func (in *Influence) DenyTilt() {
	in.mu.Lock()
	in.tilt = Vector{}
	in.hasTilt = false
	in.mu.Unlock()
}

// Current returns the vector renderers should use.
func (in *Influence) Current() Vector {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.hasTilt {
		return in.tilt
	}
	return in.pointer
}

// TiltSource reports device orientation angles in degrees.
type TiltSource interface {
	Orientation() (beta, gamma float64, err error)
}

// FollowTilt samples src into in every interval until ctx is done. A nil
// source or a failed read denies tilt, leaving the pointer in charge.
func FollowTilt(ctx context.Context, src TiltSource, in *Influence, interval time.Duration) {
	if src == nil {
		in.DenyTilt()
		return
	}
	if interval <= 0 {
		interval = time.Second / 30
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		beta, gamma, err := src.Orientation()
		if err != nil {
			in.DenyTilt()
			return
		}
		in.Tilt(TiltVector(beta, gamma))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Loop drives a Renderer at a fixed frame rate.
type Loop struct {
	Rate      int
	Phase     func() phase.Phase
	Pulse     *keystroke.Pulse
	Influence *Influence
	Renderer  Renderer
}

// Run emits frames until ctx is done. The typing pulse decays once per
// frame.
func (l *Loop) Run(ctx context.Context) {
	rate := l.Rate
	if rate <= 0 {
		rate = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	start := time.Now()
	last := start
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f := Frame{
				Elapsed: now.Sub(start),
				Delta:   now.Sub(last),
			}
			last = now
			if l.Phase != nil {
				f.Phase = l.Phase()
			}
			if l.Pulse != nil {
				f.Pulse = l.Pulse.Decay()
			}
			if l.Influence != nil {
				f.Influence = l.Influence.Current()
			}
			l.Renderer.Frame(f)
		}
	}
}
