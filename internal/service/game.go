package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tapi-backend/internal/config"
	"github.com/tapi-backend/internal/domain"
	"github.com/tapi-backend/internal/metrics"
)

// GameService handles record ingestion and record history reads
type GameService struct {
	store   Store
	mirror  BestScoreMirror
	hub     Broadcaster
	cfg     *config.LeaderboardConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewGameService creates a new game service. mirror and hub may be nil when
// the live feed is disabled.
func NewGameService(
	store Store,
	mirror BestScoreMirror,
	hub Broadcaster,
	cfg *config.LeaderboardConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		store:   store,
		mirror:  mirror,
		hub:     hub,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// SubmitRecord ingests one game session result: resolve the identity,
// append the record, fold it into the aggregate. Submission never creates
// a user; an unknown open_id aborts before any write. The record insert and
// aggregate upsert are two statements, not one transaction; a crash between
// them leaves the aggregate one record behind until the reconciler replays
// the record stream.
func (s *GameService) SubmitRecord(ctx context.Context, sub domain.RecordSubmission) (*domain.Aggregate, error) {
	if err := sub.Validate(); err != nil {
		s.metrics.RecordsRejected.Inc()
		return nil, err
	}

	user, err := s.store.GetUserByOpenID(ctx, sub.OpenID)
	if err != nil {
		s.metrics.RecordsRejected.Inc()
		return nil, err
	}

	if _, err := s.store.InsertRecord(ctx, user.ID, sub); err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}

	agg, err := s.store.UpsertAggregate(ctx, user.ID, sub.Score, sub.PlayTime)
	if err != nil {
		return nil, fmt.Errorf("updating aggregate: %w", err)
	}

	s.metrics.RecordsIngested.Inc()
	s.logger.Info("record ingested",
		"open_id", sub.OpenID,
		"map_type", sub.MapType,
		"score", sub.Score,
		"best_score", agg.BestScore,
	)

	// Live feed is best effort; the request already succeeded
	s.publishUpdate(ctx, sub.OpenID, agg.BestScore)

	return agg, nil
}

// publishUpdate refreshes the mirror, then pushes the new top of the board
// and the submitter's updated rank to connected clients
func (s *GameService) publishUpdate(ctx context.Context, openID string, bestScore int64) {
	if s.mirror != nil {
		if err := s.mirror.SetBestScore(ctx, openID, bestScore); err != nil {
			s.logger.Warn("failed to update best-score mirror", "error", err)
		}
	}

	if s.hub == nil {
		return
	}

	if rows := s.topRows(ctx); len(rows) > 0 {
		s.hub.BroadcastLeaderboard(rows)
	}

	info, err := s.store.GetRank(ctx, openID)
	if err != nil {
		s.logger.Warn("failed to load rank for broadcast", "open_id", openID, "error", err)
		return
	}
	s.hub.BroadcastRank(info)
}

// topRows serves the broadcast top-N from the mirror, keeping the fan-out
// path off the database; a mirror miss falls back to the leaderboard table.
func (s *GameService) topRows(ctx context.Context) []domain.LeaderboardRow {
	if s.mirror != nil {
		rows, err := s.mirror.TopN(ctx, s.cfg.BroadcastTopN)
		if err == nil && len(rows) > 0 {
			return rows
		}
		if err != nil {
			s.logger.Warn("failed to read best-score mirror", "error", err)
		}
	}

	rows, err := s.store.ListLeaderboard(ctx, s.cfg.BroadcastTopN)
	if err != nil {
		s.logger.Warn("failed to load leaderboard for broadcast", "error", err)
		return nil
	}
	return rows
}

// ListRecords returns a user's most recent records, newest first
func (s *GameService) ListRecords(ctx context.Context, openID string, limit int) ([]domain.GameRecord, error) {
	if openID == "" {
		return nil, domain.ErrInvalidRequest
	}
	if limit <= 0 {
		limit = s.cfg.RecordsLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	records, err := s.store.ListRecords(ctx, openID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}
