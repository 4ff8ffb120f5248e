package gate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mirrorgate/internal/environment"
	"mirrorgate/internal/identity"
	"mirrorgate/internal/keystroke"
	"mirrorgate/internal/metrics"
	"mirrorgate/internal/phase"
	"mirrorgate/internal/presentation"
)

// run is the session's single consumer. It returns once the phase is
// terminal or ctx is done.
func (m *Machine) run(ctx context.Context) {
	defer m.finish()

	ctx, span := m.tracer.Start(ctx, "session",
		trace.WithAttributes(attribute.String("mirrorgate.session_id", m.sessionID)),
	)
	defer span.End()

	dwell := m.startup(ctx)

	for !m.phase.Load().Terminal() {
		select {
		case <-ctx.Done():
			m.logger.Info("session stopped", "phase", m.phase.Load().String())
			m.metrics.Verification(context.WithoutCancel(ctx), metrics.OutcomeAborted)
			span.SetStatus(codes.Error, "aborted")
			return

		case <-dwell:
			dwell = nil
			m.openInput(ctx)

		case ev := <-m.events:
			m.handle(ctx, ev)
		}
	}

	span.SetAttributes(attribute.String("mirrorgate.outcome", m.phase.Load().String()))
}

// startup decides between resuming a stored identity and a fresh
// verification. It returns the dwell timer for a fresh one.
func (m *Machine) startup(ctx context.Context) <-chan time.Time {
	env := m.prober.Probe()
	sig := identity.Signature(env)

	if rec := m.store.Load(ctx); rec != nil {
		if rec.DeviceSignature == sig {
			m.resume(ctx, rec)
			return nil
		}
		m.logger.Info("stored identity belongs to another device, discarding")
		if err := m.store.Clear(ctx); err != nil {
			m.degrade("discard stored identity", err)
		}
	}

	m.advance(ctx, phase.Observing)
	dwell := time.After(m.cfg.ObserveDwell)
	m.present(ctx, presentation.Stage{Kind: presentation.StageObserve})
	return dwell
}

// resume authorizes a returning visitor without scoring.
func (m *Machine) resume(ctx context.Context, rec *identity.Record) {
	m.advance(ctx, phase.Authorized)

	card := &presentation.Card{
		Identifier:  rec.Identifier,
		IssuedAt:    m.now(),
		Resumed:     true,
		Fingerprint: rec.Fingerprint,
	}
	m.updateResult(func(r *Result) {
		r.Identifier = rec.Identifier
		r.Fingerprint = rec.Fingerprint
		r.Resumed = true
		r.Persisted = true
		r.Card = card
	})
	m.logger.Info("identity resumed", "identifier", rec.Identifier)
	m.metrics.Verification(ctx, metrics.OutcomeResumed)

	m.present(ctx, presentation.Stage{
		Kind:        presentation.StageResumeCard,
		Fingerprint: rec.Fingerprint,
		Card:        card,
	})
}

func (m *Machine) openInput(ctx context.Context) {
	// Read the clock before announcing the phase so keystrokes sent in
	// reaction to the notification never predate the input start.
	at := m.now()
	if !m.advance(ctx, phase.Input) {
		return
	}
	m.collector.MarkInputStart(at)
	m.present(ctx, presentation.Stage{Kind: presentation.StageRevealInput})
}

func (m *Machine) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventKeystroke:
		if m.phase.Load() == phase.Input {
			m.collector.RecordKeystroke(ev.at, ev.key)
		}
	case eventSubmit:
		m.submit(ctx, ev.value, ev.at)
	}
}

// submit handles a submission made at the given time. Metrics are
// finalized at that time, not when the event is handled.
func (m *Machine) submit(ctx context.Context, value string, at time.Time) {
	if m.phase.Load() != phase.Input {
		m.logger.Debug("submit ignored", "phase", m.phase.Load().String())
		return
	}

	id := strings.TrimSpace(value)
	if id == "" {
		m.emit(Notification{Kind: InputRejected})
		return
	}

	env := m.prober.Probe()
	stored := m.store.Load(ctx)
	if stored != nil && stored.DeviceSignature != identity.Signature(env) {
		stored = nil
	}

	if identity.Check(id, stored) == identity.Mismatch {
		m.diverge(ctx, id, at)
		return
	}
	m.analyze(ctx, id, env, at)
}

// diverge rejects a submission on a device bound to another identifier.
func (m *Machine) diverge(ctx context.Context, id string, at time.Time) {
	m.collector.Finalize(at)
	m.advance(ctx, phase.Divergence)
	m.updateResult(func(r *Result) {
		r.Identifier = id
		r.Metrics = m.collector.Snapshot()
	})
	m.logger.Warn("identity divergence", "identifier", id)
	m.metrics.Verification(ctx, metrics.OutcomeDivergence)
	m.present(ctx, presentation.Stage{Kind: presentation.StageDivergence})
}

// analyze runs a fresh verification through to AUTHORIZED.
func (m *Machine) analyze(ctx context.Context, id string, env environment.Descriptor, at time.Time) {
	m.collector.Finalize(at)
	snapshot := m.collector.Snapshot()

	m.advance(ctx, phase.Analyzing)
	m.updateResult(func(r *Result) {
		r.Identifier = id
		r.Metrics = snapshot
	})
	if !m.present(ctx, presentation.Stage{Kind: presentation.StageAnalyze}) {
		return
	}

	fingerprint := m.fingerprint(ctx, id, snapshot, env)
	score := m.scorer.Score(snapshot)
	m.metrics.Score(ctx, score)
	m.updateResult(func(r *Result) {
		r.Fingerprint = fingerprint
		r.Score = score
	})

	if !m.present(ctx, presentation.Stage{Kind: presentation.StageSplit, Fingerprint: fingerprint}) {
		return
	}
	m.advance(ctx, phase.Synchronizing)

	if !m.present(ctx, presentation.Stage{Kind: presentation.StageConverge, Score: score}) {
		return
	}
	if !m.present(ctx, presentation.Stage{Kind: presentation.StageCrystalFormation}) {
		return
	}

	card := &presentation.Card{
		Identifier:  id,
		IssuedAt:    m.now(),
		Score:       score,
		Fingerprint: fingerprint,
	}
	m.updateResult(func(r *Result) { r.Card = card })
	if !m.present(ctx, presentation.Stage{Kind: presentation.StageCrystalToCard, Card: card}) {
		return
	}

	// The record is complete before the write.
	rec := identity.Record{
		Identifier:      id,
		Fingerprint:     fingerprint,
		DeviceSignature: identity.Signature(env),
		CreatedAt:       m.now(),
	}
	m.advance(ctx, phase.Authorized)
	persisted := true
	if err := m.store.Save(ctx, rec); err != nil {
		persisted = false
		m.degrade("persist identity", err)
	}
	m.updateResult(func(r *Result) { r.Persisted = persisted })

	m.logger.Info("identity authorized",
		"identifier", id,
		"score", score,
		"samples", snapshot.SampleCount(),
		"persisted", persisted,
	)
	m.metrics.Verification(ctx, metrics.OutcomeAuthorized)
}

// fingerprint hashes on its own goroutine so a stalled digest cannot hold
// the session past HashTimeout. Failures yield the empty placeholder.
func (m *Machine) fingerprint(ctx context.Context, id string, snapshot keystroke.Metrics, env environment.Descriptor) string {
	hctx, cancel := context.WithTimeout(ctx, m.cfg.HashTimeout)
	defer cancel()

	hctx, span := m.tracer.Start(hctx, "fingerprint")
	defer span.End()

	type result struct {
		fp  string
		err error
	}
	out := make(chan result, 1)
	start := time.Now()
	go func() {
		fp, err := m.hasher.Hash(hctx, id, snapshot, env)
		out <- result{fp, err}
	}()

	var r result
	select {
	case r = <-out:
	case <-hctx.Done():
		r.err = hctx.Err()
	}
	m.metrics.HashDuration(ctx, time.Since(start), r.err == nil)

	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, "fingerprint unavailable")
		m.degrade("fingerprint", r.err)
		return ""
	}
	return r.fp
}

// present requests a stage and waits for its completion signal. It returns
// false only when ctx ended; other presenter failures are logged and the
// session carries on.
func (m *Machine) present(ctx context.Context, s presentation.Stage) bool {
	s.Phase = m.phase.Load()

	ctx, span := m.tracer.Start(ctx, "stage "+s.Kind.String(),
		trace.WithAttributes(
			attribute.String("mirrorgate.stage", s.Kind.String()),
			attribute.String("mirrorgate.phase", s.Phase.String()),
		),
	)
	defer span.End()

	m.emit(Notification{Kind: StageStarted, Stage: s.Kind})
	start := time.Now()
	err := m.presenter.Present(ctx, s)
	m.metrics.StageDuration(context.WithoutCancel(ctx), s.Kind.String(), time.Since(start))

	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return false
		}
		m.degrade("present "+s.Kind.String(), err)
	}
	m.emit(Notification{Kind: StageCompleted, Stage: s.Kind})
	return true
}

func (m *Machine) advance(ctx context.Context, next phase.Phase) bool {
	from := m.phase.Load()
	if err := m.phase.Advance(next); err != nil {
		m.logger.Error("phase transition rejected", "error", err)
		return false
	}
	trace.SpanFromContext(ctx).AddEvent("phase",
		trace.WithAttributes(
			attribute.String("from", from.String()),
			attribute.String("to", next.String()),
		),
	)
	m.logger.Debug("phase changed", "from", from.String(), "to", next.String())
	m.emit(Notification{Kind: PhaseChanged})
	return true
}

func (m *Machine) degrade(op string, err error) {
	m.logger.Warn(op+" failed, continuing", slog.String("error", err.Error()))
	m.emit(Notification{Kind: Degraded, Err: err})
}
