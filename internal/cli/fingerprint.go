package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mirrorgate/internal/environment"
	"mirrorgate/internal/identity"
)

type fingerprintOptions struct {
	Identifier string
	Timings    string
	TotalMs    int
	Digest     string
	UserAgent  string
	Width      int
	Height     int
	Timezone   string
	Locale     string
}

// FingerprintOutput is the JSON shape of the fingerprint command.
type FingerprintOutput struct {
	Digest      string                 `json:"digest"`
	Fingerprint string                 `json:"fingerprint"`
	Payload     string                 `json:"payload"`
	Signature   string                 `json:"device_signature"`
	Environment environment.Descriptor `json:"environment"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &fingerprintOptions{}

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Compute an identity fingerprint offline",
		Long: `Compute the fingerprint a session would derive for an identifier.

The environment is probed from this host; any of --user-agent, --width,
--height, --timezone and --locale replace the probed value. Timings are
millisecond offsets after the input field opened and the first keystroke
time is reported relative to that opening.`,
		Example: `  mirrorgate fingerprint --identifier 21CS --timings 0,180,360,530
  mirrorgate fingerprint --identifier 21CS --digest sha3-256 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFingerprint(cmd, rootOpts, opts, environment.NewHost("mirrorgate/"+Version))
		},
	}

	cmd.Flags().StringVar(&opts.Identifier, "identifier", "", "identifier to fingerprint (required)")
	cmd.Flags().StringVar(&opts.Timings, "timings", "", "keystroke offsets in ms")
	cmd.Flags().IntVar(&opts.TotalMs, "total-ms", 0, "input duration in ms (default: last keystroke)")
	cmd.Flags().StringVar(&opts.Digest, "digest", identity.DigestSHA256, "fingerprint digest (sha256|sha3-256)")
	cmd.Flags().StringVar(&opts.UserAgent, "user-agent", "", "override the probed user agent")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "override the probed screen width")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "override the probed screen height")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "", "override the probed timezone")
	cmd.Flags().StringVar(&opts.Locale, "locale", "", "override the probed locale")
	_ = cmd.MarkFlagRequired("identifier")

	return cmd
}

func runFingerprint(cmd *cobra.Command, rootOpts *RootOptions, opts *fingerprintOptions, prober environment.Prober) error {
	hasher, err := identity.NewHasher(opts.Digest)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --digest", err)
	}
	offsets, err := parseOffsets(opts.Timings)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --timings", err)
	}
	if opts.TotalMs < 0 {
		return NewExitError(ExitCommandError, "--total-ms must not be negative")
	}

	env := prober.Probe()
	if opts.UserAgent != "" {
		env.UserAgent = opts.UserAgent
	}
	if opts.Width > 0 {
		env.ScreenWidth = opts.Width
	}
	if opts.Height > 0 {
		env.ScreenHeight = opts.Height
	}
	if opts.Timezone != "" {
		env.Timezone = opts.Timezone
	}
	if opts.Locale != "" {
		env.Locale = opts.Locale
	}

	m := metricsFromOffsets(offsets, time.Duration(opts.TotalMs)*time.Millisecond)
	fp, err := hasher.Hash(context.Background(), opts.Identifier, m, env)
	if err != nil {
		return WrapExitError(ExitFailure, "fingerprint", err)
	}

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return out.Emit(FingerprintOutput{
		Digest:      hasher.Digest(),
		Fingerprint: fp,
		Payload:     identity.Payload(opts.Identifier, m, env),
		Signature:   identity.Signature(env),
		Environment: env,
	}, [][2]string{
		{"DIGEST", hasher.Digest()},
		{"FINGERPRINT", fp},
		{"SAMPLES", strconv.Itoa(m.SampleCount())},
		{"DEVICE", identity.Signature(env)},
	})
}
