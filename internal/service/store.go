package service

import (
	"context"

	"github.com/tapi-backend/internal/domain"
)

// Store is the storage surface the services depend on. The PostgreSQL
// repository implements it; tests substitute fakes.
type Store interface {
	UpsertUser(ctx context.Context, req domain.LoginRequest) (*domain.User, error)
	EnsureAggregate(ctx context.Context, userID int64) error
	GetUserByOpenID(ctx context.Context, openID string) (*domain.User, error)
	InsertRecord(ctx context.Context, userID int64, sub domain.RecordSubmission) (*domain.GameRecord, error)
	UpsertAggregate(ctx context.Context, userID, score, playTime int64) (*domain.Aggregate, error)
	ListLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error)
	GetRank(ctx context.Context, openID string) (*domain.RankInfo, error)
	ListRecords(ctx context.Context, openID string, limit int) ([]domain.GameRecord, error)
}

// BestScoreMirror holds best scores for real-time fan-out: writes keep it
// current, TopN serves the broadcast rows without touching the database
type BestScoreMirror interface {
	SetBestScore(ctx context.Context, openID string, score int64) error
	TopN(ctx context.Context, n int) ([]domain.LeaderboardRow, error)
}

// Broadcaster pushes leaderboard changes to connected clients
type Broadcaster interface {
	BroadcastLeaderboard(rows []domain.LeaderboardRow)
	BroadcastRank(info *domain.RankInfo)
}
