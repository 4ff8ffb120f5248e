package cli

import (
	"time"

	"github.com/spf13/cobra"

	"mirrorgate/internal/identity"
)

// StatusOutput is the JSON shape of the status command.
type StatusOutput struct {
	Bound          bool       `json:"bound"`
	Identifier     string     `json:"identifier,omitempty"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	StoredDevice   string     `json:"stored_device,omitempty"`
	CurrentDevice  string     `json:"current_device"`
	DeviceMatches  bool       `json:"device_matches"`
	StorageBackend string     `json:"storage_backend"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the identity bound to this device",
		Long: `Show the stored identity record and whether it belongs to this device.

A record whose device signature differs from the current one is discarded
by the next session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, rootOpts, appOptions{})
		},
	}
}

func runStatus(cmd *cobra.Command, rootOpts *RootOptions, o appOptions) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, rootOpts, o)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	current := identity.Signature(app.Prober.Probe())
	v := StatusOutput{
		CurrentDevice:  current,
		StorageBackend: app.Config.Storage.Type,
	}
	rows := [][2]string{{"STORAGE", app.Config.Storage.Type}}

	rec := app.Identity.Load(ctx)
	if rec == nil {
		rows = append(rows, [2]string{"IDENTITY", "none"}, [2]string{"DEVICE", current})
		return (&OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}).Emit(v, rows)
	}

	created := rec.CreatedAt
	v.Bound = true
	v.Identifier = rec.Identifier
	v.Fingerprint = rec.Fingerprint
	v.CreatedAt = &created
	v.StoredDevice = rec.DeviceSignature
	v.DeviceMatches = rec.DeviceSignature == current

	match := "this device"
	if !v.DeviceMatches {
		match = "another device"
	}
	rows = append(rows,
		[2]string{"IDENTITY", rec.Identifier},
		[2]string{"FINGERPRINT", rec.Fingerprint},
		[2]string{"CREATED", rec.CreatedAt.UTC().Format(time.RFC3339)},
		[2]string{"BOUND TO", match},
		[2]string{"DEVICE", current},
	)
	return (&OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}).Emit(v, rows)
}
