package identity

import "strings"

// Verdict is the outcome of comparing a submission with the stored record.
type Verdict int

const (
	// None means no record is bound to this device.
	None Verdict = iota
	// Match means the submission equals the stored identifier.
	Match
	// Mismatch means this device is already bound to another identifier.
	Mismatch
)

func (v Verdict) String() string {
	switch v {
	case None:
		return "none"
	case Match:
		return "match"
	case Mismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Check compares submitted against stored. Both sides are trimmed; case is
// significant. The caller decides whether stored belongs to this device.
func Check(submitted string, stored *Record) Verdict {
	if stored == nil {
		return None
	}
	if strings.TrimSpace(submitted) == strings.TrimSpace(stored.Identifier) {
		return Match
	}
	return Mismatch
}
