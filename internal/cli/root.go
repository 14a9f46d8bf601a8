// Package cli implements beaconctl, an operator tool over the agent's local
// storage. It reads the same BEACON_* configuration as the agent.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"beacon/internal/bootstrap"
	"beacon/internal/platform/config"
	"beacon/internal/platform/logger"
	"beacon/internal/sink"
	"beacon/internal/storage"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and the resolved configuration.
type RootOptions struct {
	Format     string
	Storage    string
	SQLitePath string
	Verbose    bool

	cfg      config.Config
	logger   *slog.Logger
	now      func() time.Time
	sinkFunc func(ctx context.Context, cfg config.Config, logger *slog.Logger) (sink.Sink, bootstrap.Cleanup, error)
}

// NewRootCommand creates the root command for beaconctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		now: time.Now,
		sinkFunc: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (sink.Sink, bootstrap.Cleanup, error) {
			return bootstrap.NewSink(ctx, cfg, logger, nil)
		},
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beaconctl",
		Short: "Inspect and operate the beacon telemetry queue",
		Long: `beaconctl reads and writes the durable telemetry queue used by beacon-agent.

Configuration comes from BEACON_* environment variables; --storage and
--sqlite-path override the storage backend for one invocation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Storage, "storage", "", "storage driver override (sqlite|redis|postgres|memory)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", "", "sqlite database path override")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log diagnostics to stderr")

	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewIdentityCommand(opts))
	cmd.AddCommand(NewTrackCommand(opts))
	cmd.AddCommand(NewFlushCommand(opts))

	return cmd
}

func (o *RootOptions) resolve(errOut io.Writer) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if o.Storage != "" {
		cfg.Storage.Driver = o.Storage
	}
	if o.SQLitePath != "" {
		cfg.Storage.SQLitePath = o.SQLitePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	o.logger = logger.NewWithWriter(config.LogConfig{Level: level, Format: cfg.Log.Format}, errOut)
	return nil
}

func (o *RootOptions) openStorage(ctx context.Context) (storage.Storage, bootstrap.Cleanup, error) {
	backend, cleanup, err := bootstrap.OpenStorage(ctx, o.cfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("open storage: %w", err)
	}
	return backend, cleanup, nil
}

func (o *RootOptions) newSink(ctx context.Context) (sink.Sink, bootstrap.Cleanup, error) {
	s, cleanup, err := o.sinkFunc(ctx, o.cfg, o.logger)
	if err != nil {
		return nil, cleanup, fmt.Errorf("build sink: %w", err)
	}
	return s, cleanup, nil
}
