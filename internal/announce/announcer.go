// Package announce posts new-arrival notices to the update channel through
// the Telegram bot API, enriched with TMDB details when a lookup succeeds.
package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
	"github.com/sadeshahansana5-cloud/mediadex/internal/config"
	"github.com/sadeshahansana5-cloud/mediadex/internal/enrich"
)

// ErrNotConfigured is returned when the bot token or update channel is unset.
var ErrNotConfigured = errors.New("announcer is not configured")

// Enricher is the metadata lookup an announcement draws on. Lookup failures
// degrade the announcement to filename-only rather than suppressing it.
type Enricher interface {
	LookupByName(ctx context.Context, name string, mediaType enrich.MediaType) (*enrich.Details, error)
}

// Announcer posts catalog arrivals to a single update channel.
type Announcer struct {
	settings   config.AnnounceConfig
	channelID  int64
	enricher   Enricher
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates an announcer. enricher may be nil, in which case every
// announcement is filename-only.
func New(cfg config.AnnounceConfig, channelID int64, enricher Enricher, logger zerolog.Logger) *Announcer {
	return &Announcer{
		settings:   cfg,
		channelID:  channelID,
		enricher:   enricher,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "announce").Logger(),
	}
}

// IsConfigured returns true if announcements can be delivered.
func (a *Announcer) IsConfigured() bool {
	return a.settings.BotToken != "" && a.channelID != 0
}

// Announce posts one arrival notice. With a working enrichment lookup the
// notice carries poster, synopsis and rating; otherwise it falls back to the
// cleaned filename alone.
func (a *Announcer) Announce(ctx context.Context, rec *catalog.Record, rawName string) error {
	if !a.IsConfigured() {
		return ErrNotConfigured
	}

	details := a.lookup(ctx, rec)
	text := a.composeText(rec, details)

	if details != nil && details.PosterURL != "" {
		return a.sendPhoto(ctx, details.PosterURL, text)
	}
	return a.sendMessage(ctx, text)
}

func (a *Announcer) lookup(ctx context.Context, rec *catalog.Record) *enrich.Details {
	if a.enricher == nil {
		return nil
	}

	mediaType := enrich.MediaTypeMovie
	if rec.Category == catalog.CategorySeries {
		mediaType = enrich.MediaTypeSeries
	}

	details, err := a.enricher.LookupByName(ctx, rec.DisplayName, mediaType)
	if err != nil {
		a.logger.Debug().Err(err).Str("name", rec.DisplayName).Msg("Enrichment lookup failed")
		return nil
	}
	return details
}

func (a *Announcer) composeText(rec *catalog.Record, details *enrich.Details) string {
	var sb strings.Builder
	sb.WriteString("<b>📥 New Arrival</b>\n\n")

	if details != nil {
		sb.WriteString(fmt.Sprintf("<b>%s</b>", html.EscapeString(details.Title)))
		if len(details.ReleaseDate) >= 4 {
			sb.WriteString(fmt.Sprintf(" (%s)", details.ReleaseDate[:4]))
		}
		sb.WriteString("\n")
		if details.Rating > 0 {
			sb.WriteString(fmt.Sprintf("⭐ %.1f", details.Rating))
		}
		if len(details.Genres) > 0 {
			sb.WriteString(fmt.Sprintf("  |  %s", html.EscapeString(strings.Join(details.Genres, ", "))))
		}
		sb.WriteString("\n")
		if details.Overview != "" {
			sb.WriteString(fmt.Sprintf("\n%s\n", html.EscapeString(truncate(details.Overview, 300))))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("<code>%s</code>\n", html.EscapeString(rec.DisplayName)))
	if rec.Season > 0 {
		sb.WriteString(fmt.Sprintf("\n📺 S%02dE%02d", rec.Season, rec.Episode))
	}
	if rec.Quality != catalog.QualityUnknown {
		sb.WriteString(fmt.Sprintf("\n📊 %s", rec.Quality))
	}
	if rec.Audio != catalog.AudioUnknown {
		sb.WriteString(fmt.Sprintf("\n🔊 %s", rec.Audio))
	}
	sb.WriteString(fmt.Sprintf("\n💾 %s", catalog.HumanSize(rec.SizeBytes)))
	sb.WriteString(fmt.Sprintf("\n🗂 %s", rec.Category))

	return sb.String()
}

func (a *Announcer) sendMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":    a.channelID,
		"text":       text,
		"parse_mode": "HTML",
	}
	return a.post(ctx, "sendMessage", payload)
}

func (a *Announcer) sendPhoto(ctx context.Context, photoURL, caption string) error {
	payload := map[string]any{
		"chat_id":    a.channelID,
		"photo":      photoURL,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	if err := a.post(ctx, "sendPhoto", payload); err != nil {
		// A bad poster URL should not lose the announcement.
		a.logger.Debug().Err(err).Msg("Photo post failed, retrying as text")
		return a.sendMessage(ctx, caption)
	}
	return nil
}

func (a *Announcer) post(ctx context.Context, method string, payload map[string]any) error {
	url := fmt.Sprintf("%s%s/%s", a.settings.APIBase, a.settings.BotToken, method)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result struct {
			OK          bool   `json:"ok"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Description != "" {
			return fmt.Errorf("telegram error: %s", result.Description)
		}
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
