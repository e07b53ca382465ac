// Package catalog defines the catalog record model, the filename
// normalizer/classifier, and the SQLite-backed catalog store.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Kind identifies the media kind of a cataloged file.
type Kind string

const (
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
)

// Valid reports whether the kind is a supported media kind.
func (k Kind) Valid() bool {
	return k == KindDocument || k == KindVideo
}

// Category is the catalog category a record is filed under.
type Category string

const (
	CategoryMovies     Category = "Movies"
	CategorySeries     Category = "Series"
	CategoryGames      Category = "Games"
	CategorySinhalaSub Category = "SinhalaSub"
	CategoryOthers     Category = "Others"
)

// Categories lists all categories in display priority order.
var Categories = []Category{
	CategorySinhalaSub,
	CategoryMovies,
	CategorySeries,
	CategoryGames,
	CategoryOthers,
}

// Quality is the video quality tier extracted from a filename.
type Quality string

const (
	Quality2160p    Quality = "2160p"
	Quality1080p    Quality = "1080p"
	Quality720p     Quality = "720p"
	Quality480p     Quality = "480p"
	Quality360p     Quality = "360p"
	QualityUnknown  Quality = "Unknown"
)

// Audio is the audio format extracted from a filename.
type Audio string

const (
	AudioAAC     Audio = "AAC"
	AudioDDP51   Audio = "DDP5.1"
	AudioDD51    Audio = "DD5.1"
	AudioAC3     Audio = "AC3"
	AudioDTS     Audio = "DTS"
	AudioFLAC    Audio = "FLAC"
	AudioUnknown Audio = "Unknown"
)

// Record is one cataloged file. Records are created once by ingestion and
// never mutated afterwards; the content key is the dedup authority.
type Record struct {
	ID              string    `json:"id"`
	ContentKey      string    `json:"contentKey"`
	TransferRef     string    `json:"transferRef"`
	DisplayName     string    `json:"displayName"`
	SizeBytes       int64     `json:"sizeBytes"`
	Kind            Kind      `json:"kind"`
	Category        Category  `json:"category"`
	Season          int       `json:"season"`
	Episode         int       `json:"episode"`
	Quality         Quality   `json:"quality"`
	Audio           Audio     `json:"audio"`
	SourceChannel   int64     `json:"sourceChannel"`
	SourceMessageID int64     `json:"sourceMessageId"`
	IndexedAt       time.Time `json:"indexedAt"`
}

// RecordID derives the record primary key from the content key. The
// derivation is collision-resistant so that two distinct content keys can
// never contend for the same id; the unique index on content_key remains the
// actual dedup guarantee.
func RecordID(contentKey string) string {
	sum := sha256.Sum256([]byte(contentKey))
	return hex.EncodeToString(sum[:8])
}

// HumanSize renders a byte count in a human-readable unit.
func HumanSize(sizeBytes int64) string {
	if sizeBytes <= 0 {
		return "Unknown"
	}
	size := float64(sizeBytes)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.2f PB", size)
}
