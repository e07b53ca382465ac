package catalog

import "regexp"

// seriesIndicator matches season/episode markers that identify series
// releases from the movie/series channel.
var seriesIndicator = regexp.MustCompile(`(?i)(S\d+|Season|E\d+|Episode)`)

// ChannelMap binds source channel identities to catalog roles. It is built
// from configuration once at startup and treated as immutable.
type ChannelMap struct {
	SinhalaSub  int64
	Games       int64
	MovieSeries int64
}

// Known reports whether the channel is one of the cataloged source channels.
func (m ChannelMap) Known(channel int64) bool {
	return channel == m.SinhalaSub || channel == m.Games || channel == m.MovieSeries
}

// Classify maps a source channel and normalized display name to a catalog
// category. The function is pure: live ingestion and backfill share it so the
// same content always classifies identically.
func (m ChannelMap) Classify(channel int64, displayName string) Category {
	switch channel {
	case m.Games:
		return CategoryGames
	case m.SinhalaSub:
		return CategorySinhalaSub
	case m.MovieSeries:
		if seriesIndicator.MatchString(displayName) {
			return CategorySeries
		}
		return CategoryMovies
	}
	return CategoryOthers
}
