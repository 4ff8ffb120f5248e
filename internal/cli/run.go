package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"mirrorgate/internal/gate"
	"mirrorgate/internal/phase"
	"mirrorgate/internal/presentation"
	"mirrorgate/internal/tui"
)

type runOptions struct {
	Ephemeral  bool
	Digest     string
	Headless   bool
	Identifier string
	Timings    string
	Watch      bool
}

// RunOutput is the JSON shape of a finished session.
type RunOutput struct {
	SessionID   string  `json:"session_id"`
	Outcome     string  `json:"outcome"`
	Identifier  string  `json:"identifier,omitempty"`
	Score       float64 `json:"score,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Resumed     bool    `json:"resumed"`
	Persisted   bool    `json:"persisted"`
	Samples     int     `json:"samples"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a verification session",
		Long: `Run a verification session in the terminal.

The session observes, opens the identifier field, scores the typing rhythm,
fingerprints the identity and binds it to this device. A device that already
holds a matching identity resumes without typing.

With --headless no terminal UI is drawn: keystrokes are replayed from
--timings (comma-separated millisecond offsets) and --identifier is
submitted, which suits kiosk smoke tests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, rootOpts, opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Ephemeral, "ephemeral", false, "keep the identity in memory only")
	cmd.Flags().StringVar(&opts.Digest, "digest", "", "fingerprint digest (sha256|sha3-256)")
	cmd.Flags().BoolVar(&opts.Headless, "headless", false, "replay keystrokes without a terminal UI")
	cmd.Flags().StringVar(&opts.Identifier, "identifier", "", "identifier submitted in headless mode")
	cmd.Flags().StringVar(&opts.Timings, "timings", "0,180,360,530,700,860", "headless keystroke offsets in ms")
	cmd.Flags().BoolVar(&opts.Watch, "watch-config", true, "reload the log level when the config file changes")

	return cmd
}

func runSession(ctx context.Context, rootOpts *RootOptions, opts *runOptions, cmd *cobra.Command) error {
	var offsets []time.Duration
	if opts.Headless {
		if opts.Identifier == "" {
			return NewExitError(ExitCommandError, "--identifier is required with --headless")
		}
		var err error
		if offsets, err = parseOffsets(opts.Timings); err != nil {
			return WrapExitError(ExitCommandError, "invalid --timings", err)
		}
	}

	app, err := openApp(ctx, rootOpts, appOptions{Ephemeral: opts.Ephemeral, Digest: opts.Digest})
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))

	if opts.Watch {
		if err := app.WatchConfig(); err != nil {
			app.Logger.Warn("config watch unavailable", "error", err)
		}
	}

	var result gate.Result
	if opts.Headless {
		result, err = runHeadless(ctx, app, opts.Identifier, offsets, cmd.ErrOrStderr())
	} else {
		result, err = runInteractive(ctx, app)
	}
	if err != nil {
		return err
	}

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if err := emitResult(out, result); err != nil {
		return err
	}

	switch result.Phase {
	case phase.Authorized:
		return nil
	case phase.Divergence:
		return NewExitError(ExitFailure, "identity divergence: this device is bound to another identity")
	default:
		return NewExitError(ExitFailure, "session aborted")
	}
}

func emitResult(out *OutputFormatter, r gate.Result) error {
	outcome := "aborted"
	switch r.Phase {
	case phase.Authorized:
		outcome = "authorized"
		if r.Resumed {
			outcome = "resumed"
		}
	case phase.Divergence:
		outcome = "divergence"
	}

	v := RunOutput{
		SessionID:   r.SessionID,
		Outcome:     outcome,
		Identifier:  r.Identifier,
		Score:       r.Score,
		Fingerprint: r.Fingerprint,
		Resumed:     r.Resumed,
		Persisted:   r.Persisted,
		Samples:     r.Metrics.SampleCount(),
	}
	rows := [][2]string{{"OUTCOME", outcome}, {"SESSION", r.SessionID}}
	if r.Card != nil {
		rows = append(rows, r.Card.Fields()...)
	} else if r.Identifier != "" {
		rows = append(rows, [2]string{"IDENTITY", r.Identifier})
	}
	return out.Emit(v, rows)
}

// runInteractive drives the session through the terminal UI.
func runInteractive(ctx context.Context, app *App) (gate.Result, error) {
	frames := &tui.FrameBuffer{}

	var program *tea.Program
	presenter := tui.NewPresenter(app.Config.StageDurations(), func(msg tea.Msg) { program.Send(msg) })

	machine := gate.New(presenter, app.Identity, app.GateOptions()...)
	notes := machine.Subscribe()

	model := tui.NewModel(machine, notes, frames, tui.WithFrameInterval(app.Config.FrameInterval()))
	program = tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	)

	if err := machine.Start(ctx); err != nil {
		return gate.Result{}, err
	}
	defer machine.Stop()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loop := &presentation.Loop{
		Rate:      app.Config.Session.FrameRate,
		Phase:     machine.Phase,
		Pulse:     machine.Pulse(),
		Influence: machine.Influence(),
		Renderer:  frames,
	}
	go loop.Run(loopCtx)
	go presentation.FollowTilt(loopCtx, app.Tilt, machine.Influence(), app.Config.FrameInterval())

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return gate.Result{}, fmt.Errorf("terminal ui: %w", err)
	}
	machine.Stop()
	return machine.Result(), nil
}

// runHeadless waits for the input phase, replays offsets as keystrokes of
// identifier and submits it.
func runHeadless(ctx context.Context, app *App, identifier string, offsets []time.Duration, log io.Writer) (gate.Result, error) {
	presenter := presentation.NewTimed(app.Config.StageDurations())
	presenter.OnStage = func(s presentation.Stage) {
		fmt.Fprintf(log, "stage %s\n", s.Kind)
	}

	machine := gate.New(presenter, app.Identity, app.GateOptions()...)
	notes := machine.Subscribe()
	if err := machine.Start(ctx); err != nil {
		return gate.Result{}, err
	}
	defer machine.Stop()

	if waitForInput(ctx, notes) {
		keys := []rune(identifier)
		start := time.Now()
		for i, off := range offsets {
			if !sleepUntil(ctx, start.Add(off)) {
				break
			}
			_ = machine.Keystroke(time.Now(), string(keys[i%len(keys)]))
		}
		_ = machine.Keystroke(time.Now(), "enter")
		if err := machine.Submit(identifier); err != nil {
			app.Logger.Warn("submit failed", "error", err)
		}
	}

	select {
	case <-machine.Done():
	case <-ctx.Done():
	}
	machine.Stop()
	return machine.Result(), nil
}

// waitForInput reports whether the session opened its input field.
func waitForInput(ctx context.Context, notes <-chan gate.Notification) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-notes:
			if !ok {
				return false
			}
			if n.Kind == gate.PhaseChanged && n.Phase == phase.Input {
				return true
			}
		}
	}
}

func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
