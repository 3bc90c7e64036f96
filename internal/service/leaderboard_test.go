package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapi-backend/internal/domain"
	"github.com/tapi-backend/internal/metrics"
)

func TestLeaderboardServiceList(t *testing.T) {
	ctx := context.Background()

	t.Run("limit defaults and clamps", func(t *testing.T) {
		var gotLimit int
		store := &fakeStore{
			ListLeaderboardFunc: func(ctx context.Context, limit int) ([]domain.LeaderboardRow, error) {
				gotLimit = limit
				return nil, nil
			},
		}
		svc := NewLeaderboardService(store, testLeaderboardConfig(), testLogger())

		_, err := svc.List(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 100, gotLimit)

		_, err = svc.List(ctx, -3)
		require.NoError(t, err)
		assert.Equal(t, 100, gotLimit)

		_, err = svc.List(ctx, 99999)
		require.NoError(t, err)
		assert.Equal(t, 1000, gotLimit)
	})
}

func TestLeaderboardServiceRank(t *testing.T) {
	ctx := context.Background()

	store := &fakeStore{
		GetRankFunc: func(ctx context.Context, openID string) (*domain.RankInfo, error) {
			if openID == "u1" {
				return &domain.RankInfo{OpenID: "u1", BestScore: 80, Rank: 1}, nil
			}
			return nil, domain.ErrUserNotFound
		},
	}
	svc := NewLeaderboardService(store, testLeaderboardConfig(), testLogger())

	info, err := svc.Rank(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Rank)

	_, err = svc.Rank(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = svc.Rank(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

// End-to-end ranking semantics against the in-memory store: ordering,
// tie-break by insertion order, limit, and the strictly-greater rank rule.
func TestLeaderboardRankingSemantics(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	users := NewUserService(store, metrics.New(), testLogger())
	games := NewGameService(store, nil, nil, testLeaderboardConfig(), metrics.New(), testLogger())
	boards := NewLeaderboardService(store, testLeaderboardConfig(), testLogger())

	for _, openID := range []string{"a", "b", "c"} {
		_, err := users.Login(ctx, domain.LoginRequest{OpenID: openID})
		require.NoError(t, err)
	}

	submit := func(openID string, score int64) {
		_, err := games.SubmitRecord(ctx, domain.RecordSubmission{OpenID: openID, MapType: "forest", Score: score, PlayTime: 1})
		require.NoError(t, err)
	}
	submit("a", 80)
	submit("b", 50)
	submit("c", 80)

	t.Run("listing orders by score then insertion", func(t *testing.T) {
		rows, err := boards.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rows, 3)

		assert.Equal(t, "a", rows[0].OpenID, "tie between a and c resolves to the earlier user")
		assert.Equal(t, int64(1), rows[0].Rank)
		assert.Equal(t, "c", rows[1].OpenID)
		assert.Equal(t, int64(2), rows[1].Rank)
		assert.Equal(t, "b", rows[2].OpenID)
		assert.Equal(t, int64(3), rows[2].Rank)
	})

	t.Run("limit one returns only the leader", func(t *testing.T) {
		rows, err := boards.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "a", rows[0].OpenID)
		assert.Equal(t, int64(1), rows[0].Rank)
		assert.Equal(t, int64(80), rows[0].BestScore)
	})

	t.Run("rank counts strictly higher scores", func(t *testing.T) {
		a, err := boards.Rank(ctx, "a")
		require.NoError(t, err)
		b, err := boards.Rank(ctx, "b")
		require.NoError(t, err)
		c, err := boards.Rank(ctx, "c")
		require.NoError(t, err)

		assert.Equal(t, int64(1), a.Rank)
		assert.Equal(t, int64(1), c.Rank, "equal best scores share the strictly-greater rank")
		assert.Equal(t, int64(3), b.Rank)
		assert.Less(t, a.Rank, b.Rank, "higher best_score must rank ahead")
	})

	t.Run("user with no records ranks with the zero group", func(t *testing.T) {
		_, err := users.Login(ctx, domain.LoginRequest{OpenID: "fresh"})
		require.NoError(t, err)

		info, err := boards.Rank(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, int64(0), info.BestScore)
		assert.Equal(t, int64(0), info.TotalGames)
		assert.Equal(t, int64(4), info.Rank, "three users have strictly higher scores")

		rows, err := boards.List(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, rows, 4, "a logged-in user appears in listings before playing")
	})
}
