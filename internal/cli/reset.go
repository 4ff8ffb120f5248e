package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type resetOptions struct {
	Force bool
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &resetOptions{}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the identity bound to this device",
		Long: `Delete the stored identity record so the next session starts unbound.

Without --force the command only reports what would be deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReset(cmd, rootOpts, opts, appOptions{})
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "delete without a dry run")

	return cmd
}

func runReset(cmd *cobra.Command, rootOpts *RootOptions, opts *resetOptions, o appOptions) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, rootOpts, o)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	rec := app.Identity.Load(ctx)
	v := struct {
		Cleared    bool   `json:"cleared"`
		DryRun     bool   `json:"dry_run"`
		Identifier string `json:"identifier,omitempty"`
	}{DryRun: !opts.Force}
	if rec != nil {
		v.Identifier = rec.Identifier
	}

	if opts.Force {
		if err := app.Identity.Clear(ctx); err != nil {
			return WrapExitError(ExitFailure, "reset", err)
		}
		v.Cleared = true
		app.Logger.Info("identity cleared", "had_record", rec != nil)
	}

	msg := "nothing stored"
	switch {
	case rec != nil && opts.Force:
		msg = fmt.Sprintf("cleared identity %s", rec.Identifier)
	case rec != nil:
		msg = fmt.Sprintf("would clear identity %s (use --force)", rec.Identifier)
	}
	return (&OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}).Emit(v, [][2]string{{"RESET", msg}})
}
