// Package stats summarizes the catalog for the stats endpoint and the daily
// scheduled report.
package stats

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
)

// Overview is one point-in-time catalog summary.
type Overview struct {
	TotalRecords   int64                      `json:"totalRecords"`
	CategoryCounts map[catalog.Category]int64 `json:"categoryCounts"`
	DatabaseBytes  int64                      `json:"databaseBytes"`
	DatabaseSize   string                     `json:"databaseSize"`
}

// Service computes catalog statistics.
type Service struct {
	store  *catalog.Store
	dbPath string
	logger zerolog.Logger
}

// NewService creates a stats service. dbPath is the catalog database file,
// used for the on-disk size figure.
func NewService(store *catalog.Store, dbPath string, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		dbPath: dbPath,
		logger: logger.With().Str("component", "stats").Logger(),
	}
}

// Overview builds the current catalog summary.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	total, err := s.store.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	counts, err := s.store.AggregateCategoryCounts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}

	ov := &Overview{
		TotalRecords:   total,
		CategoryCounts: counts,
	}

	// The size figure is informational; a stat failure on the live WAL
	// database should not fail the whole summary.
	if info, err := os.Stat(s.dbPath); err == nil {
		ov.DatabaseBytes = info.Size()
	}
	ov.DatabaseSize = catalog.HumanSize(ov.DatabaseBytes)

	return ov, nil
}

// LogOverview writes the summary to the structured log. Used by the daily
// report task.
func (s *Service) LogOverview(ctx context.Context) error {
	ov, err := s.Overview(ctx)
	if err != nil {
		return err
	}

	evt := s.logger.Info().
		Int64("totalRecords", ov.TotalRecords).
		Str("databaseSize", ov.DatabaseSize)
	for cat, n := range ov.CategoryCounts {
		evt = evt.Int64(string(cat), n)
	}
	evt.Msg("Catalog stats")
	return nil
}
