// Package phase defines the lifecycle of a verification session and the
// transitions allowed between its phases.
package phase

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Phase is one step of a verification session.
type Phase int32

const (
	Idle Phase = iota
	Observing
	Input
	Analyzing
	Synchronizing
	Authorized
	Divergence
)

var names = [...]string{
	Idle:          "IDLE",
	Observing:     "OBSERVING",
	Input:         "INPUT",
	Analyzing:     "ANALYZING",
	Synchronizing: "SYNCHRONIZING",
	Authorized:    "AUTHORIZED",
	Divergence:    "DIVERGENCE",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(names) {
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
	return names[p]
}

// Parse returns the phase with the given name, case-insensitively.
func Parse(s string) (Phase, error) {
	for i, n := range names {
		if strings.EqualFold(s, n) {
			return Phase(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown phase %q", s)
}

// Terminal reports whether no further transition leaves p.
func (p Phase) Terminal() bool {
	return p == Authorized || p == Divergence
}

// transitions lists the allowed successors of each phase.
var transitions = map[Phase][]Phase{
	Idle:          {Observing, Authorized},
	Observing:     {Input},
	Input:         {Input, Analyzing, Divergence},
	Analyzing:     {Synchronizing},
	Synchronizing: {Authorized},
}

// CanTransition reports whether from → to is an allowed transition.
func CanTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected transition.
type TransitionError struct {
	From, To Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s", e.From, e.To)
}

// Value holds a Phase that one goroutine writes and any goroutine reads.
type Value struct {
	v atomic.Int32
}

// Load returns the current phase.
func (v *Value) Load() Phase { return Phase(v.v.Load()) }

// Advance moves to next if the transition is allowed.
func (v *Value) Advance(next Phase) error {
	cur := v.Load()
	if !CanTransition(cur, next) {
		return &TransitionError{From: cur, To: next}
	}
	v.v.Store(int32(next))
	return nil
}
