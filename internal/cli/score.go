package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mirrorgate/internal/coherence"
	"mirrorgate/internal/keystroke"
)

// offlineEpoch anchors offline timings. Only differences matter to the
// scorer; the fingerprint command reports it as the first keystroke time.
var offlineEpoch = time.UnixMilli(0)

type scoreOptions struct {
	Seed int64
}

// ScoreOutput is the JSON shape of an offline score.
type ScoreOutput struct {
	Score          float64 `json:"score"`
	Fallback       bool    `json:"fallback"`
	Samples        int     `json:"samples"`
	MeanInterval   float64 `json:"mean_interval_ms"`
	StdDev         float64 `json:"std_dev_ms"`
	CV             float64 `json:"cv"`
	ReactionTime   float64 `json:"reaction_time_ms"`
	ReactionFactor float64 `json:"reaction_factor"`
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &scoreOptions{}

	cmd := &cobra.Command{
		Use:   "score <ms,ms,...>",
		Short: "Score keystroke timings offline",
		Long: `Score keystroke timings without running a session.

Timings are comma-separated milliseconds since the input field opened, one
per keystroke. Fewer than two keystrokes fall back to a random score seeded
by --seed.`,
		Example: "  mirrorgate score 0,180,360,530,700,860",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offsets, err := parseOffsets(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid timings", err)
			}
			b := coherence.NewScorer(opts.Seed).Explain(metricsFromOffsets(offsets, 0))

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			rows := [][2]string{
				{"SCORE", fmt.Sprintf("%.1f%%", b.Score)},
				{"SAMPLES", strconv.Itoa(b.Samples)},
			}
			if b.Fallback {
				rows = append(rows, [2]string{"FALLBACK", "too few keystrokes"})
			} else {
				rows = append(rows,
					[2]string{"MEAN", fmt.Sprintf("%.1f ms", b.MeanInterval)},
					[2]string{"STDDEV", fmt.Sprintf("%.2f ms", b.StdDev)},
					[2]string{"CV", fmt.Sprintf("%.4f", b.CV)},
					[2]string{"REACTION", fmt.Sprintf("%.0f ms (factor %.3f)", b.ReactionTime, b.ReactionFactor)},
				)
			}
			return out.Emit(ScoreOutput{
				Score:          b.Score,
				Fallback:       b.Fallback,
				Samples:        b.Samples,
				MeanInterval:   b.MeanInterval,
				StdDev:         b.StdDev,
				CV:             b.CV,
				ReactionTime:   b.ReactionTime,
				ReactionFactor: b.ReactionFactor,
			}, rows)
		},
	}

	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "fallback score seed (0 seeds from the clock)")

	return cmd
}

// parseOffsets parses comma-separated non-negative milliseconds.
func parseOffsets(s string) ([]time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		ms, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		if ms < 0 {
			return nil, fmt.Errorf("%q is negative", part)
		}
		out = append(out, time.Duration(ms*float64(time.Millisecond)))
	}
	return out, nil
}

// metricsFromOffsets builds session metrics for keystrokes at offsets
// after the input opened. total is the time from opening to submit; zero
// takes the last keystroke.
func metricsFromOffsets(offsets []time.Duration, total time.Duration) keystroke.Metrics {
	c := keystroke.NewCollector()
	c.MarkInputStart(offlineEpoch)
	var last time.Duration
	for _, off := range offsets {
		c.RecordKeystroke(offlineEpoch.Add(off), "x")
		last = max(last, off)
	}
	if total <= 0 {
		total = last
	}
	c.Finalize(offlineEpoch.Add(total))
	return c.Snapshot()
}
