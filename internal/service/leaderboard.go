package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tapi-backend/internal/config"
	"github.com/tapi-backend/internal/domain"
)

// LeaderboardService serves the ranked listing and single-user rank
// queries. Both are plain reads against the aggregate table; nothing is
// cached in process, so staleness is bounded only by read consistency.
type LeaderboardService struct {
	store  Store
	cfg    *config.LeaderboardConfig
	logger *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(store Store, cfg *config.LeaderboardConfig, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// List returns up to limit rows ordered by best_score descending, ranks
// assigned 1-based by position
func (s *LeaderboardService) List(ctx context.Context, limit int) ([]domain.LeaderboardRow, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	rows, err := s.store.ListLeaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard: %w", err)
	}
	return rows, nil
}

// Rank returns the user's profile, aggregate and global rank, computed
// fresh on every call
func (s *LeaderboardService) Rank(ctx context.Context, openID string) (*domain.RankInfo, error) {
	if openID == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.store.GetRank(ctx, openID)
}
