package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tapi-backend/internal/config"
	"github.com/tapi-backend/internal/domain"
)

const mirrorKey = "leaderboard:best_scores"

// Mirror keeps a Redis sorted set of best scores for real-time fan-out.
// PostgreSQL stays the source of truth for every API read; the mirror only
// serves WebSocket broadcast rows, so losing it costs a database read per
// broadcast, nothing more.
type Mirror struct {
	client *redis.Client
	logger *slog.Logger
}

// NewMirror creates a new Redis best-score mirror
func NewMirror(cfg *config.RedisConfig, logger *slog.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Mirror{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (m *Mirror) Close() error {
	return m.client.Close()
}

// SetBestScore records a user's best score. ZAdd GT keeps the member's
// score monotonically non-decreasing, matching the aggregate's GREATEST
// semantics under concurrent writers.
func (m *Mirror) SetBestScore(ctx context.Context, openID string, score int64) error {
	err := m.client.ZAddGT(ctx, mirrorKey, redis.Z{
		Score:  float64(score),
		Member: openID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting best score: %w", err)
	}
	return nil
}

// TopN returns the n highest best scores, best first
func (m *Mirror) TopN(ctx context.Context, n int) ([]domain.LeaderboardRow, error) {
	results, err := m.client.ZRevRangeWithScores(ctx, mirrorKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	rows := make([]domain.LeaderboardRow, 0, len(results))
	for i, z := range results {
		openID, ok := z.Member.(string)
		if !ok {
			continue
		}
		rows = append(rows, domain.LeaderboardRow{
			Rank:      int64(i + 1),
			OpenID:    openID,
			BestScore: int64(z.Score),
		})
	}
	return rows, nil
}

// Rebuild replaces the mirror contents with a fresh snapshot of best scores
func (m *Mirror) Rebuild(ctx context.Context, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(scores))
	for openID, score := range scores {
		members = append(members, redis.Z{
			Score:  float64(score),
			Member: openID,
		})
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, mirrorKey)
	pipe.ZAdd(ctx, mirrorKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding mirror: %w", err)
	}

	m.logger.Debug("mirror rebuilt", "entries", len(scores))
	return nil
}
