package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/config"
	"github.com/sadeshahansana5-cloud/mediadex/internal/source"
)

func newTestClient(server *httptest.Server) *Client {
	cfg := config.GatewayConfig{
		BaseURL: server.URL,
		Token:   "test-token",
		Timeout: 5 * time.Second,
	}
	return New(cfg, zerolog.Nop())
}

func TestClient_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer test-token")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func TestClient_Connect_SessionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server)
	err := client.Connect(context.Background())
	if !errors.Is(err, ErrSession) {
		t.Errorf("Connect() error = %v, want ErrSession", err)
	}
}

func TestClient_Connect_NotConfigured(t *testing.T) {
	client := New(config.GatewayConfig{}, zerolog.Nop())
	if err := client.Connect(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Connect() error = %v, want ErrNotConfigured", err)
	}
}

func TestClient_FetchMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/-1003333/messages/42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(source.MessageDescriptor{
			Caption: "Movie.A.1080p",
			Document: &source.DocumentAttachment{
				ContentKey:  "key-a",
				TransferRef: "ref-a",
				FileName:    "Movie.A.1080p.mkv",
				SizeBytes:   2048,
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	desc, err := client.FetchMessage(context.Background(), -1003333, 42)
	if err != nil {
		t.Fatalf("FetchMessage() error = %v", err)
	}

	if desc.ChannelID != -1003333 {
		t.Errorf("ChannelID = %d, want -1003333", desc.ChannelID)
	}
	if desc.MessageID != 42 {
		t.Errorf("MessageID = %d, want 42", desc.MessageID)
	}
	if desc.Document == nil || desc.Document.FileName != "Movie.A.1080p.mkv" {
		t.Errorf("Document = %+v, want file Movie.A.1080p.mkv", desc.Document)
	}
}

func TestClient_FetchMessage_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"description": "Too Many Requests: retry later",
			"parameters":  map[string]int{"retry_after": 7},
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.FetchMessage(context.Background(), -1003333, 1)

	var rateErr *source.RateLimitedError
	if !errors.As(err, &rateErr) {
		t.Fatalf("FetchMessage() error = %v, want *source.RateLimitedError", err)
	}
	if rateErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rateErr.RetryAfter)
	}
}

func TestClient_FetchMessage_RateLimitedDefaultWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.FetchMessage(context.Background(), -1003333, 1)

	var rateErr *source.RateLimitedError
	if !errors.As(err, &rateErr) {
		t.Fatalf("FetchMessage() error = %v, want *source.RateLimitedError", err)
	}
	if rateErr.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want default 3s", rateErr.RetryAfter)
	}
}

func TestClient_FetchMessage_Deleted(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		description string
	}{
		{"gone", http.StatusGone, ""},
		{"not found with deleted description", http.StatusNotFound, "message was deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"ok":          false,
					"description": tt.description,
				})
			}))
			defer server.Close()

			client := newTestClient(server)
			_, err := client.FetchMessage(context.Background(), -1003333, 1)
			if !errors.Is(err, source.ErrDeleted) {
				t.Errorf("FetchMessage() error = %v, want ErrDeleted", err)
			}
		})
	}
}

func TestClient_FetchMessage_NotFoundIsNotDeleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"description": "channel not found",
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.FetchMessage(context.Background(), -1003333, 1)
	if err == nil || errors.Is(err, source.ErrDeleted) {
		t.Errorf("FetchMessage() error = %v, want plain not-found error", err)
	}
}

func TestClient_FetchMessage_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"description": "upstream unavailable",
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.FetchMessage(context.Background(), -1003333, 1)
	if err == nil {
		t.Fatal("FetchMessage() error = nil, want gateway error")
	}
}
