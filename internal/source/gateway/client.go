// Package gateway implements the content-source contract against an MTProto
// gateway exposing channel history over a JSON HTTP API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/config"
	"github.com/sadeshahansana5-cloud/mediadex/internal/source"
)

var (
	// ErrNotConfigured is returned when no gateway base URL is set.
	ErrNotConfigured = errors.New("source gateway is not configured")
	// ErrSession is returned when the gateway session cannot be established.
	ErrSession = errors.New("failed to establish gateway session")
)

// Client talks to the gateway's JSON API.
type Client struct {
	httpClient *http.Client
	cfg        config.GatewayConfig
	logger     zerolog.Logger
}

// New creates a gateway client.
func New(cfg config.GatewayConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		logger:     logger.With().Str("component", "source-gateway").Logger(),
	}
}

// apiError is the gateway's error envelope.
type apiError struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Connect verifies the gateway session. Called once before a backfill run; a
// failure here aborts the whole run.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/session", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSession, err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSession, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gateway returned status %d", ErrSession, resp.StatusCode)
	}

	c.logger.Debug().Str("gateway", c.cfg.BaseURL).Msg("gateway session established")
	return nil
}

// Close releases the session. The HTTP gateway is stateless per request, so
// there is nothing to tear down beyond idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// FetchMessage retrieves one historical channel message. HTTP 429 maps to
// *source.RateLimitedError, deleted messages map to source.ErrDeleted.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID int64) (*source.MessageDescriptor, error) {
	if c.cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf("%s/channels/%d/messages/%d", c.cfg.BaseURL, channelID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var desc source.MessageDescriptor
		if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
			return nil, fmt.Errorf("failed to decode message descriptor: %w", err)
		}
		desc.ChannelID = channelID
		desc.MessageID = messageID
		return &desc, nil

	case http.StatusTooManyRequests:
		var apiErr apiError
		retryAfter := 3
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Parameters.RetryAfter > 0 {
			retryAfter = apiErr.Parameters.RetryAfter
		}
		return nil, &source.RateLimitedError{RetryAfter: time.Duration(retryAfter) * time.Second}

	case http.StatusNotFound, http.StatusGone:
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			if strings.Contains(strings.ToLower(apiErr.Description), "deleted") {
				return nil, source.ErrDeleted
			}
		}
		if resp.StatusCode == http.StatusGone {
			return nil, source.ErrDeleted
		}
		return nil, fmt.Errorf("message %d not found in channel %d", messageID, channelID)

	default:
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Description != "" {
			return nil, fmt.Errorf("gateway error: %s", apiErr.Description)
		}
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}
