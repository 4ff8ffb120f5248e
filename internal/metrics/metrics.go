// Package metrics defines the instruments recorded by verification
// sessions.
//
// Instruments:
//   - mirrorgate.verifications: sessions by outcome
//   - mirrorgate.coherence.score: distribution of coherence scores
//   - mirrorgate.hash.duration: fingerprint latency in seconds
//   - mirrorgate.stage.duration: presentation stage latency in seconds
//
// A nil *Session records nothing, so callers never need to check.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels for the verifications counter.
const (
	OutcomeAuthorized = "authorized"
	OutcomeResumed    = "resumed"
	OutcomeDivergence = "divergence"
	OutcomeAborted    = "aborted"
)

// Session holds the session instruments.
type Session struct {
	verifications metric.Int64Counter
	score         metric.Float64Histogram
	hashDuration  metric.Float64Histogram
	stageDuration metric.Float64Histogram
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Session, error) {
	var (
		s   Session
		err error
	)

	s.verifications, err = meter.Int64Counter("mirrorgate.verifications",
		metric.WithDescription("Verification sessions by outcome"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	s.score, err = meter.Float64Histogram("mirrorgate.coherence.score",
		metric.WithDescription("Coherence score of fresh verifications"),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(55, 60, 65, 70, 75, 80, 85, 90, 95, 99),
	)
	if err != nil {
		return nil, err
	}

	s.hashDuration, err = meter.Float64Histogram("mirrorgate.hash.duration",
		metric.WithDescription("Fingerprint computation time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2, 5),
	)
	if err != nil {
		return nil, err
	}

	s.stageDuration, err = meter.Float64Histogram("mirrorgate.stage.duration",
		metric.WithDescription("Presentation stage duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 3, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// Verification counts a finished session.
func (s *Session) Verification(ctx context.Context, outcome string) {
	if s == nil {
		return
	}
	s.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Score records a coherence score.
func (s *Session) Score(ctx context.Context, v float64) {
	if s == nil {
		return
	}
	s.score.Record(ctx, v)
}

// HashDuration records fingerprint latency. ok is false when hashing
// failed or timed out.
func (s *Session) HashDuration(ctx context.Context, d time.Duration, ok bool) {
	if s == nil {
		return
	}
	s.hashDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("ok", ok)))
}

// StageDuration records how long a presentation stage took.
func (s *Session) StageDuration(ctx context.Context, stage string, d time.Duration) {
	if s == nil {
		return
	}
	s.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}
