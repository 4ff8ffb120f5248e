package presentation

import (
	"fmt"
	"strings"
	"time"
)

// CardTimeLayout formats the card issue time, e.g. "Oct 16, 2026 03:04 PM".
const CardTimeLayout = "Jan 2, 2006 03:04 PM"

// ResumedLabel replaces the coherence figure on a resumed session.
const ResumedLabel = "SESSION RESUMED"

const previewLength = 24

// Card is the access card shown once a session is authorized.
type Card struct {
	Identifier  string
	IssuedAt    time.Time
	Score       float64
	Resumed     bool
	Fingerprint string
}

// Issued returns the formatted issue time.
func (c Card) Issued() string {
	return c.IssuedAt.Format(CardTimeLayout)
}

// Coherence returns the coherence figure, or ResumedLabel.
func (c Card) Coherence() string {
	if c.Resumed {
		return ResumedLabel
	}
	return fmt.Sprintf("%.1f%%", c.Score)
}

// FingerprintPreview returns the leading fingerprint characters followed by
// an ellipsis.
func (c Card) FingerprintPreview() string {
	fp := c.Fingerprint
	if len(fp) > previewLength {
		fp = fp[:previewLength]
	}
	return fp + "…"
}

// Fields returns the card's label/value pairs in display order.
func (c Card) Fields() [][2]string {
	return [][2]string{
		{"IDENTITY", c.Identifier},
		{"ISSUED", c.Issued()},
		{"COHERENCE", c.Coherence()},
		{"SIGNATURE", c.FingerprintPreview()},
	}
}

// String renders the card as plain text.
func (c Card) String() string {
	var b strings.Builder
	b.WriteString("ACCESS GRANTED\n")
	for _, f := range c.Fields() {
		fmt.Fprintf(&b, "%-10s %s\n", f[0], f[1])
	}
	return b.String()
}
