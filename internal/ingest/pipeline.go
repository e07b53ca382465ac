// Package ingest turns inbound file events into catalog records. Live posts
// and backfill fetches share this single code path so classification and
// dedup behave identically for both.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
	"github.com/sadeshahansana5-cloud/mediadex/internal/flags"
	"github.com/sadeshahansana5-cloud/mediadex/internal/scheduler"
	"github.com/sadeshahansana5-cloud/mediadex/internal/source"
)

// Outcome classifies the result of one ingestion attempt. NonMedia and
// Duplicate are expected outcomes, not errors.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNonMedia  Outcome = "non-media"
)

// Event is one inbound file event, from a live post or a backfill fetch.
type Event struct {
	ContentKey      string       `json:"contentKey"`
	TransferRef     string       `json:"transferRef"`
	RawName         string       `json:"rawName"`
	SizeBytes       int64        `json:"sizeBytes"`
	Kind            catalog.Kind `json:"kind"`
	SourceChannel   int64        `json:"sourceChannel"`
	SourceMessageID int64        `json:"sourceMessageId"`
}

// FromDescriptor builds an ingestion event from a source message descriptor.
// The second return is false for non-media messages.
func FromDescriptor(desc *source.MessageDescriptor) (Event, bool) {
	media := desc.Media()
	if media == nil {
		return Event{}, false
	}

	kind := catalog.KindDocument
	if media.Video {
		kind = catalog.KindVideo
	}

	return Event{
		ContentKey:      media.ContentKey,
		TransferRef:     media.TransferRef,
		RawName:         media.FileName,
		SizeBytes:       media.SizeBytes,
		Kind:            kind,
		SourceChannel:   desc.ChannelID,
		SourceMessageID: desc.MessageID,
	}, true
}

// Announcer posts an enrichment announcement for a newly cataloged record.
// Failures are logged and swallowed; announcements never affect cataloging.
type Announcer interface {
	Announce(ctx context.Context, rec *catalog.Record, rawName string) error
}

// Result is the outcome of one ingestion call. Announcement is non-nil when
// an enrichment announcement was submitted for the inserted record; callers
// that need determinism can wait on or cancel it.
type Result struct {
	Outcome      Outcome
	Record       *catalog.Record
	Announcement *scheduler.Handle
}

// Pipeline is the deduplicating ingestion path.
type Pipeline struct {
	store     *catalog.Store
	channels  catalog.ChannelMap
	flags     *flags.Flags
	announcer Announcer
	sched     *scheduler.Scheduler
	logger    zerolog.Logger
}

// NewPipeline creates an ingestion pipeline. announcer and sched may be nil
// to disable announcement posting (the backfill path runs without it).
func NewPipeline(store *catalog.Store, channels catalog.ChannelMap, fl *flags.Flags, announcer Announcer, sched *scheduler.Scheduler, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		channels:  channels,
		flags:     fl,
		announcer: announcer,
		sched:     sched,
		logger:    logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest catalogs one file event. Events without a content key or with an
// unsupported media kind are NonMedia; already-cataloged content keys are
// Duplicate. Both are expected outcomes. A concurrent insert race resolves as
// Duplicate through the store's uniqueness constraint.
func (p *Pipeline) Ingest(ctx context.Context, ev Event) (Result, error) {
	if ev.ContentKey == "" || !ev.Kind.Valid() {
		return Result{Outcome: OutcomeNonMedia}, nil
	}

	existing, err := p.store.FindByContentKey(ctx, ev.ContentKey)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return Result{}, fmt.Errorf("dedup lookup failed: %w", err)
	}
	if existing != nil {
		return Result{Outcome: OutcomeDuplicate, Record: existing}, nil
	}

	displayName := catalog.CleanName(ev.RawName)
	season, episode := catalog.ExtractSeasonEpisode(ev.RawName)

	rec := &catalog.Record{
		ID:              catalog.RecordID(ev.ContentKey),
		ContentKey:      ev.ContentKey,
		TransferRef:     ev.TransferRef,
		DisplayName:     displayName,
		SizeBytes:       ev.SizeBytes,
		Kind:            ev.Kind,
		Category:        p.channels.Classify(ev.SourceChannel, displayName),
		Season:          season,
		Episode:         episode,
		Quality:         catalog.ExtractQuality(ev.RawName),
		Audio:           catalog.ExtractAudio(ev.RawName),
		SourceChannel:   ev.SourceChannel,
		SourceMessageID: ev.SourceMessageID,
	}

	if err := p.store.InsertIfAbsent(ctx, rec); err != nil {
		if errors.Is(err, catalog.ErrDuplicate) {
			// Lost the race to a concurrent writer.
			return Result{Outcome: OutcomeDuplicate}, nil
		}
		return Result{}, fmt.Errorf("failed to insert record: %w", err)
	}

	p.logger.Info().
		Str("id", rec.ID).
		Str("name", rec.DisplayName).
		Str("category", string(rec.Category)).
		Msg("Cataloged file")

	result := Result{Outcome: OutcomeInserted, Record: rec}

	if p.announcer != nil && p.sched != nil && p.flags.AutoAnnounce() && !p.flags.MaintenanceMode() {
		rawName := ev.RawName
		result.Announcement = p.sched.Submit("announce", func(ctx context.Context) error {
			return p.announcer.Announce(ctx, rec, rawName)
		})
	}

	return result, nil
}
