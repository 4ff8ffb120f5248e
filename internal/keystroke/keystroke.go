// Package keystroke collects keystroke timing for a verification session.
//
// IMPORTANT: This package records WHEN keys are pressed - it does NOT
// retain which keys they were. The key name is only inspected to tell the
// submit key apart from character input:
// - Keylogger: Records "2", "1", "C", "S" → "21CS"
// - This package: Records "4 keystrokes at t0, t1, t2, t3"
//
// The timestamps feed:
// 1. The coherence score (rhythm consistency and reaction time)
// 2. The identity fingerprint (duration, sample count, first keystroke)
// 3. The ambient typing pulse shown by renderers
package keystroke

import (
	"strings"
	"time"
)

// Metrics holds the raw timing facts gathered during the input phase.
// A zero time.Time means the fact is absent.
type Metrics struct {
	FirstKeystroke time.Time
	InputStart     time.Time
	Keystrokes     []time.Time
	TotalDuration  time.Duration
}

// SampleCount returns the number of recorded keystrokes.
func (m Metrics) SampleCount() int {
	return len(m.Keystrokes)
}

// Intervals returns the gaps between consecutive keystrokes.
func (m Metrics) Intervals() []time.Duration {
	if len(m.Keystrokes) < 2 {
		return nil
	}
	out := make([]time.Duration, 0, len(m.Keystrokes)-1)
	for i := 1; i < len(m.Keystrokes); i++ {
		out = append(out, m.Keystrokes[i].Sub(m.Keystrokes[i-1]))
	}
	return out
}

// ReactionTime is the delay between the input becoming interactive and the
// first keystroke. Absent facts count as zero, matching how the fingerprint
// encodes them.
func (m Metrics) ReactionTime() time.Duration {
	return sinceEpoch(m.FirstKeystroke) - sinceEpoch(m.InputStart)
}

func sinceEpoch(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return time.Duration(t.UnixNano())
}

// Clone returns a deep copy safe to hand to other goroutines.
func (m Metrics) Clone() Metrics {
	c := m
	c.Keystrokes = append([]time.Time(nil), m.Keystrokes...)
	return c
}

// Collector records keystroke timing for one session. It is not safe for
// concurrent use; the session orchestrator is its only writer.
type Collector struct {
	metrics   Metrics
	armed     bool
	finalized bool
}

// NewCollector creates an empty collector. Keystrokes are ignored until
// MarkInputStart is called.
func NewCollector() *Collector {
	return &Collector{}
}

// MarkInputStart records when the input phase became interactive and arms
// the collector. Only the first call has an effect.
func (c *Collector) MarkInputStart(at time.Time) bool {
	if !c.metrics.InputStart.IsZero() || c.finalized {
		return false
	}
	c.metrics.InputStart = at
	c.armed = true
	return true
}

// RecordKeystroke appends a timing sample. It returns false when the sample
// was dropped: the collector is not armed, key is the submit key, or the
// sample predates the input start.
// Samples earlier than the previous one are clamped to keep the sequence
// non-decreasing.
func (c *Collector) RecordKeystroke(at time.Time, key string) bool {
	if !c.armed || IsSubmitKey(key) || at.Before(c.metrics.InputStart) {
		return false
	}
	if n := len(c.metrics.Keystrokes); n > 0 && at.Before(c.metrics.Keystrokes[n-1]) {
		at = c.metrics.Keystrokes[n-1]
	}
	if c.metrics.FirstKeystroke.IsZero() {
		c.metrics.FirstKeystroke = at
	}
	c.metrics.Keystrokes = append(c.metrics.Keystrokes, at)
	return true
}

// Finalize disarms the collector and fixes TotalDuration as now minus the
// input start. Subsequent calls return the already fixed value.
func (c *Collector) Finalize(now time.Time) time.Duration {
	if c.finalized {
		return c.metrics.TotalDuration
	}
	c.finalized = true
	c.armed = false
	if !c.metrics.InputStart.IsZero() {
		c.metrics.TotalDuration = now.Sub(c.metrics.InputStart)
	}
	return c.metrics.TotalDuration
}

// Armed reports whether keystrokes are currently being recorded.
func (c *Collector) Armed() bool {
	return c.armed
}

// Finalized reports whether Finalize has run.
func (c *Collector) Finalized() bool {
	return c.finalized
}

// Snapshot returns a copy of the collected metrics.
func (c *Collector) Snapshot() Metrics {
	return c.metrics.Clone()
}

// IsSubmitKey reports whether key names the submit action rather than a
// character. Key names follow terminal conventions ("enter", "ctrl+m").
func IsSubmitKey(key string) bool {
	switch strings.ToLower(key) {
	case "enter", "return", "ctrl+m", "\r", "\n", "\r\n":
		return true
	default:
		return false
	}
}
