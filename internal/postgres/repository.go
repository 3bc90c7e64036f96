package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tapi-backend/internal/config"
	"github.com/tapi-backend/internal/domain"
)

// Repository provides PostgreSQL-based data access for users, game records
// and the leaderboard aggregate table.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			open_id VARCHAR(128) NOT NULL UNIQUE,
			nickname VARCHAR(64) NOT NULL DEFAULT '',
			avatar_url VARCHAR(512) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS game_records (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			map_type VARCHAR(32) NOT NULL,
			score BIGINT NOT NULL DEFAULT 0,
			waves_cleared BIGINT NOT NULL DEFAULT 0,
			play_time BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL UNIQUE REFERENCES users(id),
			best_score BIGINT NOT NULL DEFAULT 0,
			total_games BIGINT NOT NULL DEFAULT 0,
			total_play_time BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_records_user ON game_records(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_game_records_score ON game_records(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_best_score ON leaderboard(best_score DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertUser creates a user on first login or refreshes profile fields on
// later logins. Empty nickname/avatar values never overwrite stored ones.
func (r *Repository) UpsertUser(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	query := `
		INSERT INTO users (open_id, nickname, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (open_id) DO UPDATE SET
			nickname = CASE WHEN EXCLUDED.nickname <> '' THEN EXCLUDED.nickname ELSE users.nickname END,
			avatar_url = CASE WHEN EXCLUDED.avatar_url <> '' THEN EXCLUDED.avatar_url ELSE users.avatar_url END,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, open_id, nickname, avatar_url, created_at, updated_at
	`
	var user domain.User
	err := r.pool.QueryRow(ctx, query, req.OpenID, req.Nickname, req.AvatarURL).Scan(
		&user.ID,
		&user.OpenID,
		&user.Nickname,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return &user, nil
}

// EnsureAggregate creates the zero-valued aggregate row for a user so they
// appear in listings immediately after login. Idempotent.
func (r *Repository) EnsureAggregate(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO leaderboard (user_id, best_score, total_games, total_play_time)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("ensuring aggregate row: %w", err)
	}
	return nil
}

// GetUserByOpenID retrieves a user by identity token
func (r *Repository) GetUserByOpenID(ctx context.Context, openID string) (*domain.User, error) {
	query := `
		SELECT id, open_id, nickname, avatar_url, created_at, updated_at
		FROM users
		WHERE open_id = $1
	`
	var user domain.User
	err := r.pool.QueryRow(ctx, query, openID).Scan(
		&user.ID,
		&user.OpenID,
		&user.Nickname,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// InsertRecord appends one immutable game record
func (r *Repository) InsertRecord(ctx context.Context, userID int64, sub domain.RecordSubmission) (*domain.GameRecord, error) {
	query := `
		INSERT INTO game_records (user_id, map_type, score, waves_cleared, play_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, map_type, score, waves_cleared, play_time, created_at
	`
	var rec domain.GameRecord
	err := r.pool.QueryRow(ctx, query, userID, sub.MapType, sub.Score, sub.WavesCleared, sub.PlayTime).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.MapType,
		&rec.Score,
		&rec.WavesCleared,
		&rec.PlayTime,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}
	return &rec, nil
}

// UpsertAggregate folds one new record into the user's aggregate row as a
// single atomic statement. Two concurrent submissions for the same user
// must not lose an increment or move best_score backwards, so the max/sum
// arithmetic runs inside the database, never as a read-modify-write in Go.
func (r *Repository) UpsertAggregate(ctx context.Context, userID, score, playTime int64) (*domain.Aggregate, error) {
	query := `
		INSERT INTO leaderboard (user_id, best_score, total_games, total_play_time)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			best_score = GREATEST(leaderboard.best_score, EXCLUDED.best_score),
			total_games = leaderboard.total_games + 1,
			total_play_time = leaderboard.total_play_time + EXCLUDED.total_play_time,
			updated_at = CURRENT_TIMESTAMP
		RETURNING user_id, best_score, total_games, total_play_time, updated_at
	`
	var agg domain.Aggregate
	err := r.pool.QueryRow(ctx, query, userID, score, playTime).Scan(
		&agg.UserID,
		&agg.BestScore,
		&agg.TotalGames,
		&agg.TotalPlayTime,
		&agg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting aggregate: %w", err)
	}
	return &agg, nil
}

// ListLeaderboard returns up to limit rows ordered by best_score descending.
// Ties order by user id, which is insertion order, so the listing is
// deterministic. Rank is assigned 1-based by position.
func (r *Repository) ListLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error) {
	query := `
		SELECT u.open_id, u.nickname, u.avatar_url,
		       l.best_score, l.total_games, l.total_play_time
		FROM leaderboard l
		JOIN users u ON l.user_id = u.id
		ORDER BY l.best_score DESC, l.user_id ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard: %w", err)
	}
	defer rows.Close()

	var list []domain.LeaderboardRow
	for rows.Next() {
		var row domain.LeaderboardRow
		err := rows.Scan(
			&row.OpenID,
			&row.Nickname,
			&row.AvatarURL,
			&row.BestScore,
			&row.TotalGames,
			&row.TotalPlayTime,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		row.Rank = int64(len(list) + 1)
		list = append(list, row)
	}
	return list, nil
}

// GetRank returns a user's profile, aggregate fields and global rank in one
// consistent read. Rank is 1 + the number of users with a strictly higher
// best_score. A user with no records yet ranks with the zero-score group.
func (r *Repository) GetRank(ctx context.Context, openID string) (*domain.RankInfo, error) {
	query := `
		SELECT u.open_id, u.nickname, u.avatar_url,
		       COALESCE(l.best_score, 0),
		       COALESCE(l.total_games, 0),
		       COALESCE(l.total_play_time, 0),
		       (SELECT COUNT(*) + 1 FROM leaderboard l2 WHERE l2.best_score > COALESCE(l.best_score, 0))
		FROM users u
		LEFT JOIN leaderboard l ON u.id = l.user_id
		WHERE u.open_id = $1
	`
	var info domain.RankInfo
	err := r.pool.QueryRow(ctx, query, openID).Scan(
		&info.OpenID,
		&info.Nickname,
		&info.AvatarURL,
		&info.BestScore,
		&info.TotalGames,
		&info.TotalPlayTime,
		&info.Rank,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting rank: %w", err)
	}
	return &info, nil
}

// ListRecords returns a user's most recent game records joined with their
// display info, newest first
func (r *Repository) ListRecords(ctx context.Context, openID string, limit int) ([]domain.GameRecord, error) {
	query := `
		SELECT gr.id, gr.user_id, gr.map_type, gr.score, gr.waves_cleared,
		       gr.play_time, gr.created_at, u.nickname, u.avatar_url
		FROM game_records gr
		JOIN users u ON gr.user_id = u.id
		WHERE u.open_id = $1
		ORDER BY gr.created_at DESC, gr.id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, openID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []domain.GameRecord
	for rows.Next() {
		var rec domain.GameRecord
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.MapType,
			&rec.Score,
			&rec.WavesCleared,
			&rec.PlayTime,
			&rec.CreatedAt,
			&rec.Nickname,
			&rec.AvatarURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReconcileAggregates recomputes every aggregate row from the record
// stream. Record insert and aggregate upsert are not one transaction, so a
// crash between them can leave an aggregate behind its records; replaying
// the records repairs that drift.
func (r *Repository) ReconcileAggregates(ctx context.Context) (int64, error) {
	query := `
		INSERT INTO leaderboard (user_id, best_score, total_games, total_play_time, updated_at)
		SELECT user_id, MAX(score), COUNT(*), SUM(play_time), CURRENT_TIMESTAMP
		FROM game_records
		GROUP BY user_id
		ON CONFLICT (user_id) DO UPDATE SET
			best_score = EXCLUDED.best_score,
			total_games = EXCLUDED.total_games,
			total_play_time = EXCLUDED.total_play_time,
			updated_at = CURRENT_TIMESTAMP
		WHERE leaderboard.best_score <> EXCLUDED.best_score
		   OR leaderboard.total_games <> EXCLUDED.total_games
		   OR leaderboard.total_play_time <> EXCLUDED.total_play_time
	`
	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reconciling aggregates: %w", err)
	}
	return result.RowsAffected(), nil
}

// TopBestScores returns the top n (open_id, best_score) pairs for
// rebuilding the live mirror
func (r *Repository) TopBestScores(ctx context.Context, n int) (map[string]int64, error) {
	query := `
		SELECT u.open_id, l.best_score
		FROM leaderboard l
		JOIN users u ON l.user_id = u.id
		ORDER BY l.best_score DESC, l.user_id ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("getting top best scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int64)
	for rows.Next() {
		var openID string
		var best int64
		if err := rows.Scan(&openID, &best); err != nil {
			return nil, fmt.Errorf("scanning best score: %w", err)
		}
		scores[openID] = best
	}
	return scores, nil
}
