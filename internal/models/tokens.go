package models

import "time"

// PlaybackTokens is the set of short-lived signed credentials the video
// provider accepts for one asset. Each token is scoped to a single audience
// (playback, thumbnail, storyboard) so one cannot be replayed as another.
type PlaybackTokens struct {
	PlaybackID      string    `json:"playbackId"`
	PlaybackToken   string    `json:"playbackToken"`
	ThumbnailToken  string    `json:"thumbnailToken"`
	StoryboardToken string    `json:"storyboardToken"`
	ExpiresAt       time.Time `json:"expiresAt"`
}
