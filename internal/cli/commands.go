package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"beacon/internal/connectivity"
	"beacon/internal/flush"
	"beacon/internal/identity"
	"beacon/internal/queue"
	"beacon/internal/sink"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or clear queued events",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print queued events in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend, cleanup, err := opts.openStorage(ctx)
			defer cleanup()
			if err != nil {
				return err
			}
			events := queue.NewStore(backend, queue.WithLogger(opts.logger)).Load(ctx)
			return printEvents(cmd.OutOrStdout(), opts.Format, events)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard every queued event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend, cleanup, err := opts.openStorage(ctx)
			defer cleanup()
			if err != nil {
				return err
			}
			store := queue.NewStore(backend, queue.WithLogger(opts.logger))
			n := store.Len(ctx)
			if err := store.Trim(ctx, n); err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Format, map[string]int{"cleared": n},
				fmt.Sprintf("cleared %d event(s)", n))
		},
	})

	return cmd
}

// NewIdentityCommand prints the distinct id, creating it if needed.
func NewIdentityCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the pseudonymous distinct id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend, cleanup, err := opts.openStorage(ctx)
			defer cleanup()
			if err != nil {
				return err
			}
			id := identity.New(backend, identity.WithLogger(opts.logger)).Ensure(ctx)
			return printResult(cmd.OutOrStdout(), opts.Format, map[string]string{"distinctId": id}, id)
		},
	}
}

// NewTrackCommand queues one event without attempting delivery.
func NewTrackCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "track <event> [key=value...]",
		Short: "Queue an event for the next flush",
		Long: `Queue an event for the next flush. Values are parsed as JSON when
possible (numbers, booleans, null), otherwise kept as strings.

Example:
  beaconctl track quest_completed questId=q1 xp=50 badge=explorer`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProperties(args[1:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			backend, cleanup, err := opts.openStorage(ctx)
			defer cleanup()
			if err != nil {
				return err
			}
			identity.New(backend, identity.WithLogger(opts.logger)).Ensure(ctx)

			store := queue.NewStore(backend, queue.WithLogger(opts.logger))
			ev := queue.NewEvent(args[0], props, opts.now())
			if err := store.Enqueue(ctx, ev); err != nil {
				return fmt.Errorf("queue event: %w", err)
			}
			return printResult(cmd.OutOrStdout(), opts.Format, ev,
				fmt.Sprintf("queued %s at %s (%d in queue)", ev.EventName, ev.DeviceTime, store.Len(ctx)))
		},
	}
}

// NewFlushCommand delivers the queue through the configured sink.
func NewFlushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Deliver queued events through the configured sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend, closeStorage, err := opts.openStorage(ctx)
			defer closeStorage()
			if err != nil {
				return err
			}
			s, closeSink, err := opts.newSink(ctx)
			defer closeSink()
			if err != nil {
				return err
			}

			distinctID := identity.New(backend, identity.WithLogger(opts.logger)).Ensure(ctx)
			if id, ok := s.(sink.Identifier); ok {
				if err := id.Identify(ctx, distinctID); err != nil {
					return fmt.Errorf("identify: %w", err)
				}
			}

			store := queue.NewStore(backend, queue.WithLogger(opts.logger))
			coord, err := flush.New(store, connectivity.NewMonitor(true), s, flush.WithLogger(opts.logger))
			if err != nil {
				return err
			}
			res := coord.Flush(ctx)

			text := fmt.Sprintf("%s: delivered %d of %d", res.Status, res.Delivered, res.Queued)
			payload := map[string]any{"status": res.Status, "queued": res.Queued, "delivered": res.Delivered}
			if res.Err != nil {
				text += ": " + res.Err.Error()
				payload["error"] = res.Err.Error()
			}
			if err := printResult(cmd.OutOrStdout(), opts.Format, payload, text); err != nil {
				return err
			}
			if res.Status == flush.StatusFailed {
				return fmt.Errorf("flush failed, events kept queued")
			}
			return nil
		},
	}
}

func parseProperties(pairs []string) (map[string]any, error) {
	props := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q: want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		if _, isObject := v.(map[string]any); isObject {
			v = raw
		}
		props[key] = v
	}
	return props, nil
}

func printEvents(w io.Writer, format string, events []queue.Event) error {
	if format == "json" {
		data, err := queue.Encode(events)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "queue is empty")
		return err
	}
	for i, ev := range events {
		props, err := json.Marshal(withoutDeviceTime(ev.Properties))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, ev.DeviceTime, ev.EventName, props); err != nil {
			return err
		}
	}
	return nil
}

func withoutDeviceTime(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k != queue.DeviceTimeProperty {
			out[k] = v
		}
	}
	return out
}

func printResult(w io.Writer, format string, payload any, text string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
