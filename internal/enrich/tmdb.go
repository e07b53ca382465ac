// Package enrich looks up catalog titles against TMDB so announcements can
// carry artwork and synopsis alongside the bare filename.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/config"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrNotFound      = errors.New("title not found")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

const posterBaseURL = "https://image.tmdb.org/t/p/w500"

// yearPattern pulls a release year out of a cleaned display name so the
// search can be narrowed.
var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// MediaType selects which TMDB index a lookup hits.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "tv"
)

// Details is the enrichment result attached to an announcement.
type Details struct {
	TMDBID      int      `json:"tmdbId"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	Rating      float64  `json:"rating"`
	ReleaseDate string   `json:"releaseDate"`
	Genres      []string `json:"genres,omitempty"`
	PosterURL   string   `json:"posterUrl,omitempty"`
}

// Client is a TMDB API client.
type Client struct {
	httpClient *http.Client
	config     config.TMDBConfig
	logger     zerolog.Logger
}

// NewClient creates a new TMDB client.
func NewClient(cfg config.TMDBConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger.With().Str("component", "tmdb").Logger(),
	}
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// LookupByName searches the appropriate index for a cleaned display name and
// returns details for the best match. A year embedded in the name narrows the
// movie search.
func (c *Client) LookupByName(ctx context.Context, name string, mediaType MediaType) (*Details, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	query := name
	year := 0
	if m := yearPattern.FindString(name); m != "" {
		year, _ = strconv.Atoi(m)
		query = strings.TrimSpace(strings.Replace(name, m, "", 1))
	}

	endpoint := fmt.Sprintf("%s/search/%s", c.config.BaseURL, mediaType)
	params := url.Values{}
	params.Set("api_key", c.config.APIKey)
	params.Set("query", query)
	params.Set("include_adult", "false")
	if year > 0 && mediaType == MediaTypeMovie {
		params.Set("year", strconv.Itoa(year))
	}

	var response searchResponse
	if err := c.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}
	if len(response.Results) == 0 {
		return nil, ErrNotFound
	}

	// TMDB orders by relevance; the first hit is the announcement subject.
	first := response.Results[0]
	details, err := c.details(ctx, mediaType, first.ID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("query", query).
		Str("mediaType", string(mediaType)).
		Str("title", details.Title).
		Msg("Lookup completed")

	return details, nil
}

// details fetches the full record for a search hit, mainly for genres.
func (c *Client) details(ctx context.Context, mediaType MediaType, id int) (*Details, error) {
	endpoint := fmt.Sprintf("%s/%s/%d", c.config.BaseURL, mediaType, id)
	params := url.Values{}
	params.Set("api_key", c.config.APIKey)

	var raw detailsResponse
	if err := c.doRequest(ctx, endpoint, params, &raw); err != nil {
		return nil, err
	}

	d := &Details{
		TMDBID:      raw.ID,
		Title:       raw.Title,
		Overview:    raw.Overview,
		Rating:      raw.VoteAverage,
		ReleaseDate: raw.ReleaseDate,
	}
	if d.Title == "" {
		d.Title = raw.Name
	}
	if d.ReleaseDate == "" {
		d.ReleaseDate = raw.FirstAirDate
	}
	for _, g := range raw.Genres {
		d.Genres = append(d.Genres, g.Name)
	}
	if raw.PosterPath != "" {
		d.PosterURL = posterBaseURL + raw.PosterPath
	}
	return d, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	reqURL := endpoint
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpoint).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: invalid API key", ErrAPIError)
		case http.StatusTooManyRequests:
			return ErrRateLimited
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
