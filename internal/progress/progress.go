// Package progress delivers backfill snapshots to interested observers.
// Delivery is best-effort; the coordinator never blocks or fails on a
// reporting problem.
package progress

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/backfill"
	"github.com/sadeshahansana5-cloud/mediadex/internal/websocket"
)

const (
	eventProgress = "backfill:progress"
	eventSummary  = "backfill:summary"
)

// HubReporter pushes snapshots to connected WebSocket clients.
type HubReporter struct {
	hub *websocket.Hub
}

// NewHubReporter creates a reporter backed by the given hub.
func NewHubReporter(hub *websocket.Hub) *HubReporter {
	return &HubReporter{hub: hub}
}

func (r *HubReporter) Progress(ctx context.Context, snap backfill.Snapshot) error {
	return r.hub.Broadcast(eventProgress, snap)
}

func (r *HubReporter) Summary(ctx context.Context, snap backfill.Snapshot) error {
	return r.hub.Broadcast(eventSummary, snap)
}

// LogReporter records snapshots in the structured log. Useful headless or
// alongside the hub.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a log-backed reporter.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("component", "backfill-progress").Logger()}
}

func (r *LogReporter) Progress(ctx context.Context, snap backfill.Snapshot) error {
	r.logger.Info().
		Str("run", snap.RunID).
		Int64("channel", snap.ChannelID).
		Str("state", string(snap.State)).
		Float64("percent", snap.Percent).
		Int64("fetched", snap.Counters.Fetched).
		Int64("saved", snap.Counters.Saved).
		Int64("duplicates", snap.Counters.Duplicates).
		Dur("eta", snap.ETA).
		Msg("Backfill progress")
	return nil
}

func (r *LogReporter) Summary(ctx context.Context, snap backfill.Snapshot) error {
	r.logger.Info().
		Str("run", snap.RunID).
		Int64("channel", snap.ChannelID).
		Str("state", string(snap.State)).
		Int64("fetched", snap.Counters.Fetched).
		Int64("saved", snap.Counters.Saved).
		Int64("duplicates", snap.Counters.Duplicates).
		Int64("deleted", snap.Counters.Deleted).
		Int64("nonMedia", snap.Counters.NonMedia).
		Int64("errors", snap.Counters.Errors).
		Dur("elapsed", snap.Elapsed).
		Msg("Backfill finished")
	return nil
}

// Multi fans a snapshot out to several reporters. The first error is
// returned after every reporter has been attempted.
type Multi []backfill.Reporter

func (m Multi) Progress(ctx context.Context, snap backfill.Snapshot) error {
	var first error
	for _, r := range m {
		if err := r.Progress(ctx, snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Summary(ctx context.Context, snap backfill.Snapshot) error {
	var first error
	for _, r := range m {
		if err := r.Summary(ctx, snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}
