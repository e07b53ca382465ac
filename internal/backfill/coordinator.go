// Package backfill drives slow, resumable re-ingestion of historical channel
// content through the shared ingestion pipeline. One run per channel; per-item
// failures are counted and skipped, never fatal.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sadeshahansana5-cloud/mediadex/internal/config"
	"github.com/sadeshahansana5-cloud/mediadex/internal/ingest"
	"github.com/sadeshahansana5-cloud/mediadex/internal/source"
	"github.com/sadeshahansana5-cloud/mediadex/internal/startup"
)

var (
	// ErrProposalNotFound is returned when a confirmation names a missing or
	// expired proposal. Recoverable: no background work is started.
	ErrProposalNotFound = errors.New("backfill proposal not found or expired")
	// ErrRunInProgress is returned when a channel already has an active run.
	ErrRunInProgress = errors.New("backfill already in progress for this channel")
	// ErrNoRun is returned when no active run exists for a channel.
	ErrNoRun = errors.New("no backfill run for this channel")
	// ErrInvalidRange is returned for proposals without a usable range.
	ErrInvalidRange = errors.New("invalid backfill range")
)

// Reporter receives progress snapshots and terminal summaries. Delivery is
// best-effort: the coordinator swallows reporter errors.
type Reporter interface {
	Progress(ctx context.Context, snap Snapshot) error
	Summary(ctx context.Context, snap Snapshot) error
}

// Proposal is a pending backfill awaiting explicit confirmation. Proposals
// live in memory only and expire after the configured TTL; nothing survives a
// restart.
type Proposal struct {
	ID            string    `json:"id"`
	ChannelID     int64     `json:"channelId"`
	LastMessageID int64     `json:"lastMessageId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Coordinator owns backfill proposals and runs.
type Coordinator struct {
	src      source.Source
	pipeline *ingest.Pipeline
	reporter Reporter
	cfg      config.BackfillConfig
	logger   zerolog.Logger

	mu        sync.Mutex
	proposals map[string]*Proposal
	runs      map[int64]*Run
}

// NewCoordinator creates a backfill coordinator. reporter may be nil to
// disable progress reporting.
func NewCoordinator(src source.Source, pipeline *ingest.Pipeline, reporter Reporter, cfg config.BackfillConfig, logger zerolog.Logger) *Coordinator {
	if cfg.ItemDelay <= 0 {
		cfg.ItemDelay = 100 * time.Millisecond
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 50
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 10 * time.Minute
	}

	return &Coordinator{
		src:       src,
		pipeline:  pipeline,
		reporter:  reporter,
		cfg:       cfg,
		logger:    logger.With().Str("component", "backfill").Logger(),
		proposals: make(map[string]*Proposal),
		runs:      make(map[int64]*Run),
	}
}

// Propose records a backfill request for a channel, pending confirmation.
func (c *Coordinator) Propose(channelID, lastMessageID int64) (*Proposal, error) {
	if channelID == 0 || lastMessageID <= 0 {
		return nil, ErrInvalidRange
	}

	p := &Proposal{
		ID:            uuid.NewString(),
		ChannelID:     channelID,
		LastMessageID: lastMessageID,
		CreatedAt:     time.Now(),
	}

	c.mu.Lock()
	c.pruneProposalsLocked()
	c.proposals[p.ID] = p
	c.mu.Unlock()

	c.logger.Info().
		Str("proposal", p.ID).
		Int64("channel", channelID).
		Int64("lastMessageId", lastMessageID).
		Msg("Backfill proposed, awaiting confirmation")

	return p, nil
}

// Confirm starts the run for a previously proposed backfill. skipOffset is
// the externally supplied resume position: ids skipOffset+1 through the
// proposal's last message id are processed. A channel with an in-flight run
// rejects the confirmation.
func (c *Coordinator) Confirm(proposalID string, skipOffset int64) (*Run, error) {
	c.mu.Lock()
	c.pruneProposalsLocked()
	p, ok := c.proposals[proposalID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrProposalNotFound
	}

	if existing, ok := c.runs[p.ChannelID]; ok && !existing.State().Terminal() {
		c.mu.Unlock()
		return nil, ErrRunInProgress
	}

	if skipOffset < 0 {
		skipOffset = 0
	}
	if skipOffset >= p.LastMessageID {
		c.mu.Unlock()
		return nil, ErrInvalidRange
	}

	delete(c.proposals, proposalID)
	run := newRun(uuid.NewString(), p.ChannelID, skipOffset, p.LastMessageID)
	c.runs[p.ChannelID] = run
	c.mu.Unlock()

	go c.execute(run)
	return run, nil
}

// Cancel requests cancellation of the active run for a channel.
func (c *Coordinator) Cancel(channelID int64) error {
	c.mu.Lock()
	run, ok := c.runs[channelID]
	c.mu.Unlock()

	if !ok || run.State().Terminal() {
		return ErrNoRun
	}
	run.Cancel()
	return nil
}

// InProgress reports whether a channel has an active run. External schedulers
// use this to reject or queue a second confirmation.
func (c *Coordinator) InProgress(channelID int64) bool {
	c.mu.Lock()
	run, ok := c.runs[channelID]
	c.mu.Unlock()
	return ok && !run.State().Terminal()
}

// Status returns the latest snapshot for a channel's run (active or the most
// recently finished one).
func (c *Coordinator) Status(channelID int64) (Snapshot, error) {
	c.mu.Lock()
	run, ok := c.runs[channelID]
	c.mu.Unlock()

	if !ok {
		return Snapshot{}, ErrNoRun
	}
	return run.Snapshot(), nil
}

// execute drives one run to a terminal state.
func (c *Coordinator) execute(run *Run) {
	defer close(run.done)
	// Release the context goroutine for runs that were never cancelled.
	defer run.stopOnce.Do(func() { close(run.stop) })

	log := c.logger.With().Str("run", run.ID).Int64("channel", run.ChannelID).Logger()
	ctx := c.runContext(run)

	// A session failure is the only fatal backfill error.
	err := startup.WithRetry(ctx, "backfill-connect", startup.DefaultRetryConfig(), func() error {
		return c.src.Connect(ctx)
	}, &log)
	if err != nil {
		run.fail(fmt.Errorf("failed to establish fetch session: %w", err))
		log.Error().Err(err).Msg("Backfill failed before starting")
		c.summarize(run)
		return
	}
	defer c.src.Close()

	run.setState(StateRunning)
	log.Info().
		Int64("from", run.RangeStart+1).
		Int64("to", run.RangeEnd).
		Msg("Backfill started")

	limiter := rate.NewLimiter(rate.Every(c.cfg.ItemDelay), 1)

	for id := run.RangeStart + 1; id <= run.RangeEnd; id++ {
		if run.cancelled() {
			break
		}

		c.processMessage(ctx, run, id, &log)

		if run.cancelled() {
			break
		}

		counters := run.CountersSnapshot()
		if counters.Fetched > 0 && counters.Fetched%int64(c.cfg.ProgressInterval) == 0 {
			c.report(run)
		}

		// Unconditional inter-item pacing.
		if err := limiter.Wait(ctx); err != nil {
			break
		}
	}

	if run.cancelled() {
		run.setState(StateCancelled)
		log.Info().Interface("counters", run.CountersSnapshot()).Msg("Backfill cancelled")
	} else {
		run.setState(StateCompleted)
		log.Info().Interface("counters", run.CountersSnapshot()).Msg("Backfill completed")
	}

	c.summarize(run)
}

// processMessage fetches and ingests a single message id. All per-item
// errors are classified and counted; none abort the run.
func (c *Coordinator) processMessage(ctx context.Context, run *Run, id int64, log *zerolog.Logger) {
	desc, err := c.fetch(ctx, run, id)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, source.ErrDeleted) {
			run.bump(func(cn *Counters) { cn.Deleted++ })
		} else {
			run.bump(func(cn *Counters) { cn.Errors++ })
			log.Debug().Err(err).Int64("messageId", id).Msg("Fetch failed, continuing")
		}
		return
	}

	run.bump(func(cn *Counters) { cn.Fetched++ })

	ev, ok := ingest.FromDescriptor(desc)
	if !ok {
		run.bump(func(cn *Counters) { cn.NonMedia++ })
		return
	}

	res, err := c.pipeline.Ingest(ctx, ev)
	if err != nil {
		run.bump(func(cn *Counters) { cn.Errors++ })
		log.Debug().Err(err).Int64("messageId", id).Msg("Ingest failed, continuing")
		return
	}

	switch res.Outcome {
	case ingest.OutcomeInserted:
		run.bump(func(cn *Counters) { cn.Saved++ })
	case ingest.OutcomeDuplicate:
		run.bump(func(cn *Counters) { cn.Duplicates++ })
	case ingest.OutcomeNonMedia:
		run.bump(func(cn *Counters) { cn.NonMedia++ })
	}
}

// fetch retrieves one message, honoring rate-limit pauses by waiting the
// mandated duration and retrying the same id.
func (c *Coordinator) fetch(ctx context.Context, run *Run, id int64) (*source.MessageDescriptor, error) {
	for {
		desc, err := c.src.FetchMessage(ctx, run.ChannelID, id)

		var limited *source.RateLimitedError
		if errors.As(err, &limited) {
			c.logger.Warn().
				Int64("messageId", id).
				Dur("retryAfter", limited.RetryAfter).
				Msg("Rate limited by source, pausing")

			select {
			case <-run.stop:
				return nil, context.Canceled
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(limited.RetryAfter):
			}
			continue
		}

		return desc, err
	}
}

// runContext yields a context cancelled when the run is cancelled. Fetches
// already in flight are not interrupted (cancellation takes effect at item
// boundaries), so this context only gates waits and store operations.
func (c *Coordinator) runContext(run *Run) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-run.stop
		cancel()
	}()
	return ctx
}

// report delivers a progress snapshot best-effort.
func (c *Coordinator) report(run *Run) {
	if c.reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.reporter.Progress(ctx, run.Snapshot()); err != nil {
		c.logger.Debug().Err(err).Str("run", run.ID).Msg("Progress report delivery failed")
	}
}

// summarize delivers the terminal summary. Always attempted once, even after
// intermittent snapshot delivery failures.
func (c *Coordinator) summarize(run *Run) {
	if c.reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.reporter.Summary(ctx, run.Snapshot()); err != nil {
		c.logger.Warn().Err(err).Str("run", run.ID).Msg("Summary delivery failed")
	}
}

// pruneProposalsLocked drops expired proposals. Caller holds the lock.
func (c *Coordinator) pruneProposalsLocked() {
	cutoff := time.Now().Add(-c.cfg.ProposalTTL)
	for id, p := range c.proposals {
		if p.CreatedAt.Before(cutoff) {
			delete(c.proposals, id)
		}
	}
}
