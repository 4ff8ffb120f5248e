package gate

import (
	"time"

	"mirrorgate/internal/phase"
	"mirrorgate/internal/presentation"
)

type eventKind int

const (
	eventKeystroke eventKind = iota
	eventSubmit
)

type event struct {
	kind  eventKind
	at    time.Time
	key   string
	value string
}

// NotificationKind distinguishes session notifications.
type NotificationKind int

const (
	// PhaseChanged is sent after every phase transition.
	PhaseChanged NotificationKind = iota
	// StageStarted is sent before a presentation stage is requested.
	StageStarted
	// StageCompleted is sent once a stage's completion signal arrives.
	StageCompleted
	// InputRejected is sent when a blank identifier is submitted.
	InputRejected
	// Degraded is sent when hashing, storage or presentation failed and
	// the session continued without it.
	Degraded
)

func (k NotificationKind) String() string {
	switch k {
	case PhaseChanged:
		return "phase-changed"
	case StageStarted:
		return "stage-started"
	case StageCompleted:
		return "stage-completed"
	case InputRejected:
		return "input-rejected"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Notification reports session progress to observers.
type Notification struct {
	Kind  NotificationKind
	Phase phase.Phase
	Stage presentation.StageKind
	Err   error
	At    time.Time
}
