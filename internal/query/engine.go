// Package query implements the faceted catalog browsing flow: free-text
// category counts, paginated listing with season/episode facets, and facet
// value enumeration.
package query

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
)

// PageSize is the fixed number of entries per page, for both record pages
// and facet value pages.
const PageSize = 10

// FacetState is the per-session facet selection. It is an explicit value
// passed into queries and returned from selections, owned by the client
// session, never by the catalog.
type FacetState struct {
	Season  *int `json:"season,omitempty"`
	Episode *int `json:"episode,omitempty"`
}

// SelectSeason returns the state with the season filter set. Any previously
// selected episode is cleared: an episode choice made under a different
// season must not silently carry over.
func (s FacetState) SelectSeason(season int) FacetState {
	return FacetState{Season: &season}
}

// SelectEpisode returns the state with the episode filter set.
func (s FacetState) SelectEpisode(episode int) FacetState {
	s.Episode = &episode
	return s
}

// Clear returns the empty facet state.
func (s FacetState) Clear() FacetState {
	return FacetState{}
}

// Page is one page of catalog records with pagination metadata. Page indices
// are 0-based; Display is the 1-based page number for presentation.
type Page struct {
	Records    []*catalog.Record `json:"records"`
	TotalCount int64             `json:"totalCount"`
	Page       int               `json:"page"`
	Display    int               `json:"display"`
	HasNext    bool              `json:"hasNext"`
	HasPrev    bool              `json:"hasPrev"`
}

// FacetPage is one page of distinct facet values.
type FacetPage struct {
	Values        []int `json:"values"`
	TotalDistinct int64 `json:"totalDistinct"`
	Page          int   `json:"page"`
	HasNext       bool  `json:"hasNext"`
	HasPrev       bool  `json:"hasPrev"`
}

// Engine answers catalog browse queries. It never blocks writers; a record
// appearing between the count and the page query is acceptable.
type Engine struct {
	store  *catalog.Store
	logger zerolog.Logger
}

// NewEngine creates a query engine over the catalog store.
func NewEngine(store *catalog.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With().Str("component", "query").Logger(),
	}
}

// SearchCategories returns per-category match counts for a free-text query.
// An empty map is the distinct "no results" outcome, not an error.
func (e *Engine) SearchCategories(ctx context.Context, freeText string) (map[catalog.Category]int64, error) {
	counts, err := e.store.AggregateCategoryCounts(ctx, freeText)
	if err != nil {
		return nil, fmt.Errorf("category search failed: %w", err)
	}
	return counts, nil
}

// ListPage returns one page of records for a category and free-text query.
// Season/episode facets apply only to the Series category; for any other
// category they are ignored. Sort order is fixed: season, episode, then
// display name, all ascending.
func (e *Engine) ListPage(ctx context.Context, category catalog.Category, freeText string, facets FacetState, page int) (*Page, error) {
	if page < 0 {
		page = 0
	}

	filter := catalog.Filter{
		Category: category,
		FreeText: freeText,
	}
	if category == catalog.CategorySeries {
		filter.Season = facets.Season
		filter.Episode = facets.Episode
	}

	total, err := e.store.CountMatching(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count page results: %w", err)
	}

	skip := page * PageSize
	records, err := e.store.FindPage(ctx, filter, skip, PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}

	return &Page{
		Records:    records,
		TotalCount: total,
		Page:       page,
		Display:    page + 1,
		HasNext:    int64(skip+PageSize) < total,
		HasPrev:    page > 0,
	}, nil
}

// ListFacetValues returns one page of the distinct positive season or
// episode values among Series records matching the free text.
func (e *Engine) ListFacetValues(ctx context.Context, facet catalog.FacetField, freeText string, page int) (*FacetPage, error) {
	if page < 0 {
		page = 0
	}

	skip := page * PageSize
	values, total, err := e.store.DistinctFacetValues(ctx, facet, freeText, skip, PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list facet values: %w", err)
	}

	return &FacetPage{
		Values:        values,
		TotalDistinct: total,
		Page:          page,
		HasNext:       int64(skip+PageSize) < total,
		HasPrev:       page > 0,
	}, nil
}
