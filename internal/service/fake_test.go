package service

import (
	"context"
	"sort"
	"sync"

	"github.com/tapi-backend/internal/domain"
)

// fakeStore lets each test stub exactly the calls it expects
type fakeStore struct {
	UpsertUserFunc      func(ctx context.Context, req domain.LoginRequest) (*domain.User, error)
	EnsureAggregateFunc func(ctx context.Context, userID int64) error
	GetUserFunc         func(ctx context.Context, openID string) (*domain.User, error)
	InsertRecordFunc    func(ctx context.Context, userID int64, sub domain.RecordSubmission) (*domain.GameRecord, error)
	UpsertAggregateFunc func(ctx context.Context, userID, score, playTime int64) (*domain.Aggregate, error)
	ListLeaderboardFunc func(ctx context.Context, limit int) ([]domain.LeaderboardRow, error)
	GetRankFunc         func(ctx context.Context, openID string) (*domain.RankInfo, error)
	ListRecordsFunc     func(ctx context.Context, openID string, limit int) ([]domain.GameRecord, error)
}

func (f *fakeStore) UpsertUser(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	return f.UpsertUserFunc(ctx, req)
}

func (f *fakeStore) EnsureAggregate(ctx context.Context, userID int64) error {
	return f.EnsureAggregateFunc(ctx, userID)
}

func (f *fakeStore) GetUserByOpenID(ctx context.Context, openID string) (*domain.User, error) {
	return f.GetUserFunc(ctx, openID)
}

func (f *fakeStore) InsertRecord(ctx context.Context, userID int64, sub domain.RecordSubmission) (*domain.GameRecord, error) {
	return f.InsertRecordFunc(ctx, userID, sub)
}

func (f *fakeStore) UpsertAggregate(ctx context.Context, userID, score, playTime int64) (*domain.Aggregate, error) {
	return f.UpsertAggregateFunc(ctx, userID, score, playTime)
}

func (f *fakeStore) ListLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error) {
	return f.ListLeaderboardFunc(ctx, limit)
}

func (f *fakeStore) GetRank(ctx context.Context, openID string) (*domain.RankInfo, error) {
	return f.GetRankFunc(ctx, openID)
}

func (f *fakeStore) ListRecords(ctx context.Context, openID string, limit int) ([]domain.GameRecord, error) {
	return f.ListRecordsFunc(ctx, openID, limit)
}

type fakeMirror struct {
	mu     sync.Mutex
	scores map[string]int64
	err    error
}

func (f *fakeMirror) SetBestScore(ctx context.Context, openID string, score int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scores == nil {
		f.scores = make(map[string]int64)
	}
	if score > f.scores[openID] {
		f.scores[openID] = score
	}
	return nil
}

func (f *fakeMirror) TopN(ctx context.Context, n int) ([]domain.LeaderboardRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []domain.LeaderboardRow
	for openID, score := range f.scores {
		rows = append(rows, domain.LeaderboardRow{OpenID: openID, BestScore: score})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BestScore > rows[j].BestScore })
	if len(rows) > n {
		rows = rows[:n]
	}
	for i := range rows {
		rows[i].Rank = int64(i + 1)
	}
	return rows, nil
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls [][]domain.LeaderboardRow
	ranks []*domain.RankInfo
}

func (f *fakeBroadcaster) BroadcastLeaderboard(rows []domain.LeaderboardRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rows)
}

func (f *fakeBroadcaster) BroadcastRank(info *domain.RankInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranks = append(f.ranks, info)
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBroadcaster) rankCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ranks)
}

func (f *fakeBroadcaster) lastRows() []domain.LeaderboardRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// memStore is an in-memory Store with the same upsert semantics the SQL
// statements have, for end-to-end scenarios without a database. The single
// mutex around each upsert stands in for the row-level atomicity the
// database provides.
type memStore struct {
	mu         sync.Mutex
	nextUserID int64
	users      map[string]*domain.User
	records    []domain.GameRecord
	aggregates map[int64]*domain.Aggregate
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]*domain.User),
		aggregates: make(map[int64]*domain.Aggregate),
	}
}

func (m *memStore) UpsertUser(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[req.OpenID]; ok {
		if req.Nickname != "" {
			u.Nickname = req.Nickname
		}
		if req.AvatarURL != "" {
			u.AvatarURL = req.AvatarURL
		}
		copied := *u
		return &copied, nil
	}
	m.nextUserID++
	u := &domain.User{
		ID:        m.nextUserID,
		OpenID:    req.OpenID,
		Nickname:  req.Nickname,
		AvatarURL: req.AvatarURL,
	}
	m.users[req.OpenID] = u
	copied := *u
	return &copied, nil
}

func (m *memStore) EnsureAggregate(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.aggregates[userID]; !ok {
		m.aggregates[userID] = &domain.Aggregate{UserID: userID}
	}
	return nil
}

func (m *memStore) GetUserByOpenID(ctx context.Context, openID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[openID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) InsertRecord(ctx context.Context, userID int64, sub domain.RecordSubmission) (*domain.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := domain.GameRecord{
		ID:           int64(len(m.records) + 1),
		UserID:       userID,
		MapType:      sub.MapType,
		Score:        sub.Score,
		WavesCleared: sub.WavesCleared,
		PlayTime:     sub.PlayTime,
	}
	m.records = append(m.records, rec)
	return &rec, nil
}

func (m *memStore) UpsertAggregate(ctx context.Context, userID, score, playTime int64) (*domain.Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg, ok := m.aggregates[userID]
	if !ok {
		agg = &domain.Aggregate{UserID: userID}
		m.aggregates[userID] = agg
	}
	if score > agg.BestScore {
		agg.BestScore = score
	}
	agg.TotalGames++
	agg.TotalPlayTime += playTime
	copied := *agg
	return &copied, nil
}

func (m *memStore) ListLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type pair struct {
		user *domain.User
		agg  *domain.Aggregate
	}
	var pairs []pair
	for _, u := range m.users {
		if agg, ok := m.aggregates[u.ID]; ok {
			pairs = append(pairs, pair{u, agg})
		}
	}
	// best_score descending, user id ascending on ties
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].agg.BestScore != pairs[j].agg.BestScore {
			return pairs[i].agg.BestScore > pairs[j].agg.BestScore
		}
		return pairs[i].user.ID < pairs[j].user.ID
	})

	var rows []domain.LeaderboardRow
	for i, p := range pairs {
		if i >= limit {
			break
		}
		rows = append(rows, domain.LeaderboardRow{
			Rank:          int64(i + 1),
			OpenID:        p.user.OpenID,
			Nickname:      p.user.Nickname,
			AvatarURL:     p.user.AvatarURL,
			BestScore:     p.agg.BestScore,
			TotalGames:    p.agg.TotalGames,
			TotalPlayTime: p.agg.TotalPlayTime,
		})
	}
	return rows, nil
}

func (m *memStore) GetRank(ctx context.Context, openID string) (*domain.RankInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[openID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	var best, games, playTime int64
	if agg, ok := m.aggregates[u.ID]; ok {
		best, games, playTime = agg.BestScore, agg.TotalGames, agg.TotalPlayTime
	}
	rank := int64(1)
	for _, other := range m.aggregates {
		if other.UserID != u.ID && other.BestScore > best {
			rank++
		}
	}
	return &domain.RankInfo{
		OpenID:        u.OpenID,
		Nickname:      u.Nickname,
		AvatarURL:     u.AvatarURL,
		BestScore:     best,
		TotalGames:    games,
		TotalPlayTime: playTime,
		Rank:          rank,
	}, nil
}

func (m *memStore) ListRecords(ctx context.Context, openID string, limit int) ([]domain.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[openID]
	if !ok {
		return nil, nil
	}
	var out []domain.GameRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].UserID == u.ID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}
