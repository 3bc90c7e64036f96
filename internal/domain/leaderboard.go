package domain

import "time"

// Aggregate is the single per-user leaderboard row, derived from the user's
// game records: best_score is the max, total_games the count,
// total_play_time the sum. It is maintained incrementally by an atomic
// upsert on every new record.
type Aggregate struct {
	UserID        int64     `json:"user_id"`
	BestScore     int64     `json:"best_score"`
	TotalGames    int64     `json:"total_games"`
	TotalPlayTime int64     `json:"total_play_time"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LeaderboardRow is one entry in the ranked listing, joined with user
// display info. Rank is 1-based by position; ties order by user id, which
// is insertion order.
type LeaderboardRow struct {
	Rank          int64  `json:"rank"`
	OpenID        string `json:"open_id"`
	Nickname      string `json:"nickname"`
	AvatarURL     string `json:"avatar_url"`
	BestScore     int64  `json:"best_score"`
	TotalGames    int64  `json:"total_games"`
	TotalPlayTime int64  `json:"total_play_time"`
}

// RankInfo is the single-user rank view: profile plus aggregate plus a
// rank computed as 1 + the number of users with a strictly higher
// best_score.
type RankInfo struct {
	OpenID        string `json:"open_id"`
	Nickname      string `json:"nickname"`
	AvatarURL     string `json:"avatar_url"`
	BestScore     int64  `json:"best_score"`
	TotalGames    int64  `json:"total_games"`
	TotalPlayTime int64  `json:"total_play_time"`
	Rank          int64  `json:"rank"`
}
