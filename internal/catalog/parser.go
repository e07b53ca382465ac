package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// UnknownFileName is the sentinel display name for empty or missing input.
const UnknownFileName = "Unknown File"

// Regex patterns for filename normalization and attribute extraction.
var (
	handlePattern    = regexp.MustCompile(`@\w+`)
	linkPattern      = regexp.MustCompile(`(https?://\S+|www\.\S+|t\.me/\S+)`)
	tagPattern       = regexp.MustCompile(`(?i)(1080p|720p|480p|BluRay|WEB-DL|x264|x265|HEVC|AAC|DDP5\.1|\.mkv|\.mp4|\.avi)`)
	separatorPattern = regexp.MustCompile(`[._\-]`)
	bracketPattern   = regexp.MustCompile(`[\[\]\(\)]`)
	spacePattern     = regexp.MustCompile(`\s+`)

	seasonPattern  = regexp.MustCompile(`(?i)(?:s|season)\s?(\d{1,2})`)
	episodePattern = regexp.MustCompile(`(?i)(?:e|episode|ep)\s?(\d{1,3})`)
)

// Quality tiers in fixed match priority order.
var qualityOrder = []Quality{Quality2160p, Quality1080p, Quality720p, Quality480p, Quality360p}

// Audio formats in fixed match priority order.
var audioOrder = []Audio{AudioAAC, AudioDDP51, AudioDD51, AudioAC3, AudioDTS, AudioFLAC}

// CleanName normalizes a raw filename into a display name: user handles,
// links, release tags, and punctuation separators are stripped and whitespace
// collapsed. Empty input yields the UnknownFileName sentinel.
func CleanName(raw string) string {
	if raw == "" {
		return UnknownFileName
	}

	text := handlePattern.ReplaceAllString(raw, "")
	text = linkPattern.ReplaceAllString(text, "")
	text = tagPattern.ReplaceAllString(text, "")
	text = separatorPattern.ReplaceAllString(text, " ")
	text = bracketPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))

	if text == "" {
		return UnknownFileName
	}
	return text
}

// ExtractQuality returns the first quality tier found in the raw filename,
// tested in fixed priority order. No match yields QualityUnknown.
func ExtractQuality(raw string) Quality {
	lower := strings.ToLower(raw)
	for _, q := range qualityOrder {
		if strings.Contains(lower, strings.ToLower(string(q))) {
			return q
		}
	}
	return QualityUnknown
}

// ExtractAudio returns the first audio format found in the raw filename,
// tested in fixed priority order. No match yields AudioUnknown.
func ExtractAudio(raw string) Audio {
	lower := strings.ToLower(raw)
	for _, a := range audioOrder {
		if strings.Contains(lower, strings.ToLower(string(a))) {
			return a
		}
	}
	return AudioUnknown
}

// ExtractSeasonEpisode parses season and episode numbers from a raw filename.
// Only the first match of each pattern counts; absent values default to 0,
// meaning "not applicable".
func ExtractSeasonEpisode(raw string) (season, episode int) {
	if m := seasonPattern.FindStringSubmatch(raw); m != nil {
		season, _ = strconv.Atoi(m[1])
	}
	if m := episodePattern.FindStringSubmatch(raw); m != nil {
		episode, _ = strconv.Atoi(m[1])
	}
	return season, episode
}
