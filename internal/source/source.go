// Package source defines the content-source collaborator contract: fetching
// historical channel messages and describing live posts. Implementations live
// in subpackages; the rest of the system depends only on these types.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeleted indicates the requested message was deleted upstream. Terminal
// for that message, non-fatal for a backfill run.
var ErrDeleted = errors.New("source message was deleted")

// RateLimitedError indicates the source platform demanded a pause before
// further requests. The caller must wait RetryAfter and retry the same item.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by source, retry after %s", e.RetryAfter)
}

// DocumentAttachment carries the document-specific attributes of a post.
type DocumentAttachment struct {
	ContentKey  string `json:"contentKey"`
	TransferRef string `json:"transferRef"`
	FileName    string `json:"fileName"`
	SizeBytes   int64  `json:"sizeBytes"`
	MimeType    string `json:"mimeType,omitempty"`
}

// VideoAttachment carries the video-specific attributes of a post.
type VideoAttachment struct {
	ContentKey  string `json:"contentKey"`
	TransferRef string `json:"transferRef"`
	FileName    string `json:"fileName"`
	SizeBytes   int64  `json:"sizeBytes"`
	Duration    int    `json:"duration,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// Attachment is the common view over the per-kind attachment payloads.
type Attachment struct {
	ContentKey  string
	TransferRef string
	FileName    string
	SizeBytes   int64
	Video       bool
}

// MessageDescriptor describes one channel post. Document and Video are a
// tagged variant: at most one is set, and neither is set for text-only,
// empty, or service messages.
type MessageDescriptor struct {
	ChannelID int64               `json:"channelId"`
	MessageID int64               `json:"messageId"`
	Empty     bool                `json:"empty,omitempty"`
	Service   bool                `json:"service,omitempty"`
	Caption   string              `json:"caption,omitempty"`
	Document  *DocumentAttachment `json:"document,omitempty"`
	Video     *VideoAttachment    `json:"video,omitempty"`
}

// Media returns the attachment carried by the message, or nil for non-media
// messages. Video filenames fall back to the caption, matching how channels
// commonly post unnamed videos.
func (m *MessageDescriptor) Media() *Attachment {
	switch {
	case m == nil, m.Empty, m.Service:
		return nil
	case m.Document != nil:
		return &Attachment{
			ContentKey:  m.Document.ContentKey,
			TransferRef: m.Document.TransferRef,
			FileName:    m.Document.FileName,
			SizeBytes:   m.Document.SizeBytes,
		}
	case m.Video != nil:
		name := m.Video.FileName
		if name == "" {
			name = m.Caption
		}
		return &Attachment{
			ContentKey:  m.Video.ContentKey,
			TransferRef: m.Video.TransferRef,
			FileName:    name,
			SizeBytes:   m.Video.SizeBytes,
			Video:       true,
		}
	}
	return nil
}

// Source fetches historical messages from the platform. Connect establishes
// the fetch session; a Connect failure is the only fatal backfill error.
type Source interface {
	Connect(ctx context.Context) error
	Close() error
	FetchMessage(ctx context.Context, channelID, messageID int64) (*MessageDescriptor, error)
}
