package keystroke

import (
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return base.Add(time.Duration(ms) * time.Millisecond)
}

// =============================================================================
// Tests for Collector
// =============================================================================

func TestCollectorIgnoresKeystrokesBeforeInputStart(t *testing.T) {
	c := NewCollector()

	if c.RecordKeystroke(at(10), "a") {
		t.Error("keystroke before MarkInputStart should be dropped")
	}
	if got := c.Snapshot().SampleCount(); got != 0 {
		t.Errorf("expected 0 samples, got %d", got)
	}
}

func TestCollectorDropsSamplesOlderThanInputStart(t *testing.T) {
	c := NewCollector()
	c.MarkInputStart(at(1000))

	if c.RecordKeystroke(at(900), "a") {
		t.Error("keystroke timestamped before the input start should be dropped")
	}
	if !c.RecordKeystroke(at(1000), "a") {
		t.Error("keystroke at the input start should be recorded")
	}
}

func TestCollectorMarkInputStartIsIdempotent(t *testing.T) {
	c := NewCollector()

	if !c.MarkInputStart(at(0)) {
		t.Fatal("first MarkInputStart should take effect")
	}
	if c.MarkInputStart(at(500)) {
		t.Error("second MarkInputStart should be ignored")
	}
	if got := c.Snapshot().InputStart; !got.Equal(at(0)) {
		t.Errorf("expected input start %v, got %v", at(0), got)
	}
}

func TestCollectorRecordsCharactersNotSubmit(t *testing.T) {
	c := NewCollector()
	c.MarkInputStart(at(0))

	c.RecordKeystroke(at(100), "2")
	c.RecordKeystroke(at(250), "1")
	if c.RecordKeystroke(at(400), "enter") {
		t.Error("enter must not be recorded as a timing sample")
	}

	m := c.Snapshot()
	if m.SampleCount() != 2 {
		t.Fatalf("expected 2 samples, got %d", m.SampleCount())
	}
	if !m.FirstKeystroke.Equal(at(100)) {
		t.Errorf("first keystroke = %v, want %v", m.FirstKeystroke, at(100))
	}
	if got := m.ReactionTime(); got != 100*time.Millisecond {
		t.Errorf("reaction time = %v, want 100ms", got)
	}
}

func TestCollectorClampsOutOfOrderSamples(t *testing.T) {
	c := NewCollector()
	c.MarkInputStart(at(0))

	c.RecordKeystroke(at(300), "a")
	c.RecordKeystroke(at(200), "b")

	m := c.Snapshot()
	for i := 1; i < len(m.Keystrokes); i++ {
		if m.Keystrokes[i].Before(m.Keystrokes[i-1]) {
			t.Fatalf("sample %d precedes sample %d", i, i-1)
		}
	}
	if got := m.Intervals(); len(got) != 1 || got[0] != 0 {
		t.Errorf("expected a single zero interval, got %v", got)
	}
}

func TestCollectorFinalizeOnce(t *testing.T) {
	c := NewCollector()
	c.MarkInputStart(at(0))
	c.RecordKeystroke(at(100), "x")

	if got := c.Finalize(at(1200)); got != 1200*time.Millisecond {
		t.Errorf("total duration = %v, want 1.2s", got)
	}
	if got := c.Finalize(at(9000)); got != 1200*time.Millisecond {
		t.Errorf("second Finalize changed duration to %v", got)
	}
	if c.Armed() {
		t.Error("collector should be disarmed after Finalize")
	}
	if c.RecordKeystroke(at(1300), "y") {
		t.Error("keystrokes after Finalize should be dropped")
	}
	if c.MarkInputStart(at(1400)) {
		t.Error("MarkInputStart after Finalize should be ignored")
	}
}

func TestFinalizeWithoutInputStart(t *testing.T) {
	c := NewCollector()
	if got := c.Finalize(at(500)); got != 0 {
		t.Errorf("expected zero duration without input start, got %v", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	c := NewCollector()
	c.MarkInputStart(at(0))
	c.RecordKeystroke(at(10), "a")

	snap := c.Snapshot()
	snap.Keystrokes[0] = at(999)

	if !c.Snapshot().Keystrokes[0].Equal(at(10)) {
		t.Error("mutating a snapshot leaked into the collector")
	}
}

func TestIntervals(t *testing.T) {
	m := Metrics{Keystrokes: []time.Time{at(0), at(180), at(360), at(530), at(700), at(860)}}

	want := []time.Duration{180, 180, 170, 170, 160}
	got := m.Intervals()
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i]*time.Millisecond {
			t.Errorf("interval %d = %v, want %vms", i, got[i], int(want[i]))
		}
	}
}

func TestIsSubmitKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"enter", true},
		{"Enter", true},
		{"ctrl+m", true},
		{"\r", true},
		{"a", false},
		{"backspace", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := IsSubmitKey(tc.key); got != tc.want {
			t.Errorf("IsSubmitKey(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

// =============================================================================
// Tests for Pulse
// =============================================================================

func TestPulseFirstKeystrokeIsQuiet(t *testing.T) {
	var p Pulse
	if got := p.OnKeystroke(at(0)); got != 0 {
		t.Errorf("first keystroke should not pulse, got %v", got)
	}
}

func TestPulseSaturatesOnFastTyping(t *testing.T) {
	var p Pulse
	p.OnKeystroke(at(0))
	if got := p.OnKeystroke(at(20)); got != 1 {
		t.Errorf("20ms gap should saturate pulse, got %v", got)
	}
}

func TestPulseSlowTyping(t *testing.T) {
	var p Pulse
	p.OnKeystroke(at(0))
	if got := p.OnKeystroke(at(600)); got != 0.5 {
		t.Errorf("600ms gap should give 0.5, got %v", got)
	}
	// A slower key never lowers the current intensity.
	if got := p.OnKeystroke(at(1800)); got != 0.5 {
		t.Errorf("slower key lowered pulse to %v", got)
	}
}

func TestPulseDecay(t *testing.T) {
	var p Pulse
	p.OnKeystroke(at(0))
	p.OnKeystroke(at(300))

	got := p.Decay()
	if got < 0.949 || got > 0.951 {
		t.Errorf("expected 0.95 after one frame, got %v", got)
	}
}

func TestPulseConcurrentAccess(t *testing.T) {
	var p Pulse
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.OnKeystroke(at(offset + j*100))
				p.Decay()
			}
		}(i)
	}
	wg.Wait()

	if v := p.Intensity(); v < 0 || v > 1 {
		t.Errorf("intensity out of range: %v", v)
	}
}
