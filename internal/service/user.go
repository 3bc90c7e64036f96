package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tapi-backend/internal/domain"
	"github.com/tapi-backend/internal/metrics"
)

// UserService handles login/registration and profile reads
type UserService struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewUserService creates a new user service
func NewUserService(store Store, m *metrics.Metrics, logger *slog.Logger) *UserService {
	return &UserService{
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// Login finds or creates the user for an identity token and makes sure
// their zero-valued aggregate row exists, so they show up in leaderboard
// listings right away. Supplied profile fields update the stored ones;
// empty fields are left alone. Idempotent.
func (s *UserService) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.store.UpsertUser(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("logging in user: %w", err)
	}

	if err := s.store.EnsureAggregate(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("creating aggregate row: %w", err)
	}

	s.metrics.LoginsTotal.Inc()
	s.logger.Info("user logged in", "open_id", user.OpenID, "user_id", user.ID)
	return user, nil
}

// GetProfile fetches a user profile by identity token
func (s *UserService) GetProfile(ctx context.Context, openID string) (*domain.User, error) {
	if openID == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.store.GetUserByOpenID(ctx, openID)
}
