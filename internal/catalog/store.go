package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a record lookup matches nothing.
	ErrNotFound = errors.New("catalog record not found")
	// ErrDuplicate is returned when an insert collides with an existing
	// content key. Callers treat it as the idempotent-duplicate outcome,
	// never as a failure.
	ErrDuplicate = errors.New("catalog record with this content key already exists")
)

// FacetField selects the season or episode facet dimension.
type FacetField string

const (
	FacetSeason  FacetField = "season"
	FacetEpisode FacetField = "episode"
)

// Valid reports whether the facet field is one of the supported dimensions.
func (f FacetField) Valid() bool {
	return f == FacetSeason || f == FacetEpisode
}

// Filter describes a catalog query: category, case-insensitive free-text
// match over the display name, and optional exact season/episode facets.
type Filter struct {
	Category Category
	FreeText string
	Season   *int
	Episode  *int
}

const recordColumns = `id, content_key, transfer_ref, display_name, size_bytes, kind, category,
	season, episode, quality, audio, source_channel, source_message_id, indexed_at`

// Store is the SQLite-backed catalog store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a catalog store over an open database connection.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "catalog-store").Logger(),
	}
}

// FindByContentKey returns the record for a content key, or ErrNotFound.
func (s *Store) FindByContentKey(ctx context.Context, key string) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM catalog_records WHERE content_key = ?`, recordColumns)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record by content key: %w", err)
	}
	return rec, nil
}

// Get returns the record for a catalog id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM catalog_records WHERE id = ?`, recordColumns)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// InsertIfAbsent inserts a record, failing atomically with ErrDuplicate when
// the content key is already cataloged. The unique index on content_key is
// the dedup authority; a race between concurrent writers resolves here.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *Record) error {
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`INSERT INTO catalog_records (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, recordColumns)
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.ContentKey, rec.TransferRef, rec.DisplayName, rec.SizeBytes,
		string(rec.Kind), string(rec.Category), rec.Season, rec.Episode,
		string(rec.Quality), string(rec.Audio), rec.SourceChannel, rec.SourceMessageID,
		rec.IndexedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// CountMatching returns the number of records matching the filter.
func (s *Store) CountMatching(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildFilter(filter)
	query := "SELECT COUNT(*) FROM catalog_records" + where

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// AggregateCategoryCounts returns per-category match counts for a free-text
// query. Categories with no matches are absent from the result.
func (s *Store) AggregateCategoryCounts(ctx context.Context, freeText string) (map[Category]int64, error) {
	query := `SELECT category, COUNT(*) FROM catalog_records
		WHERE display_name LIKE ? ESCAPE '\'
		GROUP BY category`

	rows, err := s.db.QueryContext(ctx, query, likePattern(freeText))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Category]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[Category(category)] = count
	}
	return counts, rows.Err()
}

// FindPage returns one page of matching records in the fixed catalog order:
// season ascending, episode ascending, display name ascending.
func (s *Store) FindPage(ctx context.Context, filter Filter, skip, limit int) ([]*Record, error) {
	where, args := buildFilter(filter)
	query := fmt.Sprintf(`SELECT %s FROM catalog_records%s
		ORDER BY season ASC, episode ASC, display_name ASC
		LIMIT ? OFFSET ?`, recordColumns, where)
	args = append(args, limit, skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query record page: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DistinctFacetValues returns one page of the distinct positive values of the
// season or episode field among Series records matching the free text, sorted
// ascending, plus the total number of distinct values. Zero values mean "not
// applicable" and are excluded.
func (s *Store) DistinctFacetValues(ctx context.Context, field FacetField, freeText string, skip, limit int) ([]int, int64, error) {
	if !field.Valid() {
		return nil, 0, fmt.Errorf("unsupported facet field %q", field)
	}

	pattern := likePattern(freeText)

	countQuery := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM catalog_records
		WHERE category = ? AND %s > 0 AND display_name LIKE ? ESCAPE '\'`, field, field)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, string(CategorySeries), pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count facet values: %w", err)
	}

	query := fmt.Sprintf(`SELECT DISTINCT %s FROM catalog_records
		WHERE category = ? AND %s > 0 AND display_name LIKE ? ESCAPE '\'
		ORDER BY %s ASC LIMIT ? OFFSET ?`, field, field, field)
	rows, err := s.db.QueryContext(ctx, query, string(CategorySeries), pattern, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query facet values: %w", err)
	}
	defer rows.Close()

	values := make([]int, 0, limit)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, 0, fmt.Errorf("failed to scan facet value: %w", err)
		}
		values = append(values, v)
	}
	return values, total, rows.Err()
}

// ResolveDeliveryRef returns the transfer reference for a catalog id, used to
// re-deliver previously cataloged content. Returns ErrNotFound when the id is
// not cataloged.
func (s *Store) ResolveDeliveryRef(ctx context.Context, id string) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `SELECT transfer_ref FROM catalog_records WHERE id = ?`, id).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve delivery ref: %w", err)
	}
	return ref, nil
}

// CountAll returns the total number of cataloged records.
func (s *Store) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// buildFilter renders a Filter as a WHERE clause and its arguments.
func buildFilter(filter Filter) (string, []any) {
	clauses := []string{`display_name LIKE ? ESCAPE '\'`}
	args := []any{likePattern(filter.FreeText)}

	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.Season != nil {
		clauses = append(clauses, "season = ?")
		args = append(args, *filter.Season)
	}
	if filter.Episode != nil {
		clauses = append(clauses, "episode = ?")
		args = append(args, *filter.Episode)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// likePattern builds a case-insensitive substring LIKE pattern, escaping
// LIKE metacharacters in the user's query.
func likePattern(freeText string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(freeText)
	return "%" + escaped + "%"
}

// rowScanner abstracts *sql.Row and *sql.Rows for record scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var kind, category, quality, audio string
	err := row.Scan(
		&rec.ID, &rec.ContentKey, &rec.TransferRef, &rec.DisplayName, &rec.SizeBytes,
		&kind, &category, &rec.Season, &rec.Episode, &quality, &audio,
		&rec.SourceChannel, &rec.SourceMessageID, &rec.IndexedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Kind = Kind(kind)
	rec.Category = Category(category)
	rec.Quality = Quality(quality)
	rec.Audio = Audio(audio)
	return &rec, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint
// violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
