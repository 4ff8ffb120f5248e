package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"mirrorgate/internal/phase"
	"mirrorgate/internal/presentation"
)

// ramp orders glyphs from dark to bright.
const ramp = " .:-=+*#%@"

const mirrorRows = 5

// phaseGlow is the resting brightness of the mirror per phase.
var phaseGlow = map[phase.Phase]float64{
	phase.Idle:          0.10,
	phase.Observing:     0.25,
	phase.Input:         0.30,
	phase.Analyzing:     0.50,
	phase.Synchronizing: 0.65,
	phase.Authorized:    0.80,
	phase.Divergence:    0.15,
}

// Shimmer draws the ambient mirror for one frame as rows lines of width
// glyphs. Typing pulse brightens it; the pointer or tilt vector shifts the
// wave.
func Shimmer(f presentation.Frame, width, rows int) string {
	if width <= 0 || rows <= 0 {
		return ""
	}
	t := f.Elapsed.Seconds()
	glow := phaseGlow[f.Phase]

	var b strings.Builder
	for y := 0; y < rows; y++ {
		for x := 0; x < width; x++ {
			wave := math.Sin(t*2 + float64(x)*0.35 + f.Influence.X*3 + float64(y)*0.8 + f.Influence.Y*2)
			v := glow + 0.5*f.Pulse + 0.25*wave
			v = math.Max(0, math.Min(1, v))
			b.WriteByte(ramp[int(v*float64(len(ramp)-1)+0.5)])
		}
		if y < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// caption is the line shown under the mirror for a stage.
func caption(s *presentation.Stage) string {
	if s == nil {
		return Muted.Render("waiting")
	}
	switch s.Kind {
	case presentation.StageObserve:
		return Muted.Render("observing…")
	case presentation.StageRevealInput:
		return Title.Render("state your identifier")
	case presentation.StageAnalyze:
		return Title.Render("analyzing rhythm")
	case presentation.StageSplit:
		fp := s.Fingerprint
		if fp == "" {
			return Muted.Render("fingerprint unavailable")
		}
		if len(fp) > 16 {
			fp = fp[:16]
		}
		return Title.Render("fingerprint ") + Hot.Render(fp)
	case presentation.StageConverge:
		return Title.Render("coherence ") + Hot.Render(fmt.Sprintf("%.1f%%", s.Score))
	case presentation.StageCrystalFormation:
		return Title.Render("crystallizing")
	case presentation.StageDivergence:
		return Denied.Render("IDENTITY DIVERGENCE") + "\n" +
			Muted.Render("this device is bound to another identity")
	default:
		return ""
	}
}

// RenderCard draws the access card.
func RenderCard(c presentation.Card) string {
	lines := []string{CardHeading.Render("ACCESS GRANTED"), ""}
	for _, f := range c.Fields() {
		lines = append(lines, CardLabel.Render(f[0])+f[1])
	}
	return Card.Render(strings.Join(lines, "\n"))
}

func (m Model) View() string {
	width := max(m.width-4, 10)

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		Title.Render("MIRRORGATE"),
		"  ",
		Muted.Render(m.phase.String()),
	)

	var frame presentation.Frame
	if m.frames != nil {
		frame = m.frames.Latest()
	}
	sections := []string{
		header,
		Mirror.Render(Shimmer(frame, width, mirrorRows)),
	}

	if m.card != nil {
		sections = append(sections, RenderCard(*m.card))
	} else {
		sections = append(sections, caption(m.stage))
	}

	if m.phase == phase.Input {
		sections = append(sections, Field.Render(string(m.input)+"▏"))
	}

	if m.status != "" {
		sections = append(sections, Hot.Render(m.status))
	}

	if m.done {
		sections = append(sections, Muted.Render("press any key to exit"))
	} else {
		sections = append(sections, Muted.Render("esc to abort"))
	}

	return App.Render(strings.Join(sections, "\n\n"))
}
