package query_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
	"github.com/sadeshahansana5-cloud/mediadex/internal/query"
	"github.com/sadeshahansana5-cloud/mediadex/internal/testutil"
)

func newTestEngine(t *testing.T) (*query.Engine, *catalog.Store, *testutil.TestDB) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	store := catalog.NewStore(tdb.Conn, tdb.Logger)
	return query.NewEngine(store, tdb.Logger), store, tdb
}

func seedSeries(t *testing.T, store *catalog.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		rec := &catalog.Record{
			ID:              catalog.RecordID(fmt.Sprintf("key-%d", i)),
			ContentKey:      fmt.Sprintf("key-%d", i),
			TransferRef:     fmt.Sprintf("ref-%d", i),
			DisplayName:     fmt.Sprintf("Show S01E%02d", i),
			SizeBytes:       1024,
			Kind:            catalog.KindVideo,
			Category:        catalog.CategorySeries,
			Season:          1,
			Episode:         i,
			Quality:         catalog.Quality720p,
			Audio:           catalog.AudioUnknown,
			SourceChannel:   -1003333,
			SourceMessageID: int64(i),
		}
		if err := store.InsertIfAbsent(ctx, rec); err != nil {
			t.Fatalf("InsertIfAbsent(%d) error = %v", i, err)
		}
	}
}

func TestEngine_ListPage_PaginationBoundaries(t *testing.T) {
	engine, store, tdb := newTestEngine(t)
	defer tdb.Close()
	ctx := context.Background()

	// 23 records: three pages of 10, 10, 3.
	seedSeries(t, store, 23)

	first, err := engine.ListPage(ctx, catalog.CategorySeries, "", query.FacetState{}, 0)
	if err != nil {
		t.Fatalf("ListPage(0) error = %v", err)
	}
	if len(first.Records) != query.PageSize {
		t.Errorf("page 0 size = %d, want %d", len(first.Records), query.PageSize)
	}
	if first.TotalCount != 23 {
		t.Errorf("TotalCount = %d, want 23", first.TotalCount)
	}
	if !first.HasNext || first.HasPrev {
		t.Errorf("page 0 HasNext/HasPrev = %v/%v, want true/false", first.HasNext, first.HasPrev)
	}
	if first.Display != 1 {
		t.Errorf("page 0 Display = %d, want 1", first.Display)
	}

	last, err := engine.ListPage(ctx, catalog.CategorySeries, "", query.FacetState{}, 2)
	if err != nil {
		t.Fatalf("ListPage(2) error = %v", err)
	}
	if len(last.Records) != 3 {
		t.Errorf("page 2 size = %d, want 3", len(last.Records))
	}
	if last.HasNext || !last.HasPrev {
		t.Errorf("page 2 HasNext/HasPrev = %v/%v, want false/true", last.HasNext, last.HasPrev)
	}

	// A page past the end is empty, not an error.
	empty, err := engine.ListPage(ctx, catalog.CategorySeries, "", query.FacetState{}, 5)
	if err != nil {
		t.Fatalf("ListPage(5) error = %v", err)
	}
	if len(empty.Records) != 0 {
		t.Errorf("page 5 size = %d, want 0", len(empty.Records))
	}
}

func TestEngine_ListPage_ExactPageBoundary(t *testing.T) {
	engine, store, tdb := newTestEngine(t)
	defer tdb.Close()
	ctx := context.Background()

	// Exactly one full page: no next page.
	seedSeries(t, store, query.PageSize)

	page, err := engine.ListPage(ctx, catalog.CategorySeries, "", query.FacetState{}, 0)
	if err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if len(page.Records) != query.PageSize {
		t.Errorf("page size = %d, want %d", len(page.Records), query.PageSize)
	}
	if page.HasNext {
		t.Error("HasNext = true on an exactly full final page, want false")
	}
}

func TestEngine_ListPage_FacetsOnlyApplyToSeries(t *testing.T) {
	engine, store, tdb := newTestEngine(t)
	defer tdb.Close()
	ctx := context.Background()

	rec := &catalog.Record{
		ID:              catalog.RecordID("movie-1"),
		ContentKey:      "movie-1",
		TransferRef:     "ref-m1",
		DisplayName:     "Dune 2021",
		SizeBytes:       1024,
		Kind:            catalog.KindVideo,
		Category:        catalog.CategoryMovies,
		Quality:         catalog.Quality1080p,
		Audio:           catalog.AudioUnknown,
		SourceChannel:   -1003333,
		SourceMessageID: 1,
	}
	if err := store.InsertIfAbsent(ctx, rec); err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}

	// A stale season facet must not hide movie results.
	facets := query.FacetState{}.SelectSeason(4)
	page, err := engine.ListPage(ctx, catalog.CategoryMovies, "", facets, 0)
	if err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if len(page.Records) != 1 {
		t.Errorf("page size = %d, want 1 (facets ignored outside Series)", len(page.Records))
	}
}

func TestEngine_ListPage_SeriesFacetFiltering(t *testing.T) {
	engine, store, tdb := newTestEngine(t)
	defer tdb.Close()
	ctx := context.Background()

	seedSeries(t, store, 5)

	facets := query.FacetState{}.SelectSeason(1).SelectEpisode(3)
	page, err := engine.ListPage(ctx, catalog.CategorySeries, "", facets, 0)
	if err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("page size = %d, want 1", len(page.Records))
	}
	if page.Records[0].Episode != 3 {
		t.Errorf("Episode = %d, want 3", page.Records[0].Episode)
	}
}

func TestFacetState_SelectSeasonClearsEpisode(t *testing.T) {
	state := query.FacetState{}.SelectSeason(1).SelectEpisode(5)
	if state.Episode == nil || *state.Episode != 5 {
		t.Fatal("episode selection not applied")
	}

	// Choosing a different season must drop the episode choice.
	state = state.SelectSeason(2)
	if state.Season == nil || *state.Season != 2 {
		t.Error("season selection not applied")
	}
	if state.Episode != nil {
		t.Error("episode survived a season change, want cleared")
	}
}

func TestEngine_SearchCategories_NoResults(t *testing.T) {
	engine, store, tdb := newTestEngine(t)
	defer tdb.Close()
	ctx := context.Background()

	seedSeries(t, store, 2)

	counts, err := engine.SearchCategories(ctx, "nothing-matches-this")
	if err != nil {
		t.Fatalf("SearchCategories() error = %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("counts = %v, want empty map", counts)
	}

	counts, err = engine.SearchCategories(ctx, "show")
	if err != nil {
		t.Fatalf("SearchCategories() error = %v", err)
	}
	if counts[catalog.CategorySeries] != 2 {
		t.Errorf("Series count = %d, want 2", counts[catalog.CategorySeries])
	}
}

func TestEngine_ListFacetValues_Pagination(t *testing.T) {
	engine, store, tdb := newTestEngine(t)
	defer tdb.Close()
	ctx := context.Background()

	// 12 distinct seasons: two facet pages of 10 and 2.
	for s := 1; s <= 12; s++ {
		rec := &catalog.Record{
			ID:              catalog.RecordID(fmt.Sprintf("season-%d", s)),
			ContentKey:      fmt.Sprintf("season-%d", s),
			TransferRef:     fmt.Sprintf("ref-%d", s),
			DisplayName:     fmt.Sprintf("Show S%02dE01", s),
			SizeBytes:       1024,
			Kind:            catalog.KindVideo,
			Category:        catalog.CategorySeries,
			Season:          s,
			Episode:         1,
			Quality:         catalog.Quality720p,
			Audio:           catalog.AudioUnknown,
			SourceChannel:   -1003333,
			SourceMessageID: int64(s),
		}
		if err := store.InsertIfAbsent(ctx, rec); err != nil {
			t.Fatalf("InsertIfAbsent(%d) error = %v", s, err)
		}
	}

	first, err := engine.ListFacetValues(ctx, catalog.FacetSeason, "", 0)
	if err != nil {
		t.Fatalf("ListFacetValues(0) error = %v", err)
	}
	if len(first.Values) != query.PageSize {
		t.Errorf("page 0 values = %d, want %d", len(first.Values), query.PageSize)
	}
	if first.TotalDistinct != 12 {
		t.Errorf("TotalDistinct = %d, want 12", first.TotalDistinct)
	}
	if !first.HasNext {
		t.Error("page 0 HasNext = false, want true")
	}

	second, err := engine.ListFacetValues(ctx, catalog.FacetSeason, "", 1)
	if err != nil {
		t.Fatalf("ListFacetValues(1) error = %v", err)
	}
	if len(second.Values) != 2 {
		t.Errorf("page 1 values = %d, want 2", len(second.Values))
	}
	if second.Values[0] != 11 || second.Values[1] != 12 {
		t.Errorf("page 1 values = %v, want [11 12]", second.Values)
	}
	if second.HasNext || !second.HasPrev {
		t.Errorf("page 1 HasNext/HasPrev = %v/%v, want false/true", second.HasNext, second.HasPrev)
	}
}
