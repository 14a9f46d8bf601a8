package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultProbeInterval = 15 * time.Second

// Prober feeds a Monitor by periodically probing a URL, typically the sink's
// host. Any HTTP response below 500 counts as online; transport errors and
// server errors count as offline.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	monitor  *Monitor
	logger   *slog.Logger
}

// NewProber creates a Prober. A non-positive interval uses 15s and a nil
// client uses one with a 5s timeout.
func NewProber(url string, interval time.Duration, monitor *Monitor, client *http.Client, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prober{url: url, interval: interval, client: client, monitor: monitor, logger: logger}
}

// Probe performs one reachability check and returns the result without
// touching the Monitor.
func (p *Prober) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.WarnContext(ctx, "invalid probe request", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.DebugContext(ctx, "probe failed", "url", p.url, "error", err)
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes immediately and then on every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		online := p.Probe(ctx)
		// A probe cut short by shutdown says nothing about the network.
		if err := ctx.Err(); err != nil {
			return err
		}
		p.monitor.Set(online)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
