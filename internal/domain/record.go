package domain

import "time"

// GameRecord is an append-only fact about one finished game session.
// Records are never updated or deleted once written.
type GameRecord struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	MapType      string    `json:"map_type"`
	Score        int64     `json:"score"`
	WavesCleared int64     `json:"waves_cleared"`
	PlayTime     int64     `json:"play_time"`
	CreatedAt    time.Time `json:"created_at"`

	// Joined user display info, populated on listing queries
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// RecordSubmission represents a request to record one game session result.
// Numeric fields default to zero when absent.
type RecordSubmission struct {
	OpenID       string `json:"open_id"`
	MapType      string `json:"map_type"`
	Score        int64  `json:"score"`
	WavesCleared int64  `json:"waves_cleared"`
	PlayTime     int64  `json:"play_time"`
}

// Validate checks required fields and rejects negative numerics
func (s *RecordSubmission) Validate() error {
	if s.OpenID == "" || s.MapType == "" {
		return ErrInvalidRequest
	}
	if s.Score < 0 || s.WavesCleared < 0 || s.PlayTime < 0 {
		return ErrInvalidRequest
	}
	return nil
}
