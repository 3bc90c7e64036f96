package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tapi-backend/internal/domain"
	"github.com/tapi-backend/internal/metrics"
	"github.com/tapi-backend/internal/websocket"
)

// UserService is the login/profile surface the handler consumes
type UserService interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error)
	GetProfile(ctx context.Context, openID string) (*domain.User, error)
}

// GameService is the record ingestion surface the handler consumes
type GameService interface {
	SubmitRecord(ctx context.Context, sub domain.RecordSubmission) (*domain.Aggregate, error)
	ListRecords(ctx context.Context, openID string, limit int) ([]domain.GameRecord, error)
}

// LeaderboardService is the ranking surface the handler consumes
type LeaderboardService interface {
	List(ctx context.Context, limit int) ([]domain.LeaderboardRow, error)
	Rank(ctx context.Context, openID string) (*domain.RankInfo, error)
}

// Handler provides HTTP handlers for the game API
type Handler struct {
	users       UserService
	games       GameService
	leaderboard LeaderboardService
	hub         *websocket.Hub
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	users UserService,
	games GameService,
	leaderboard LeaderboardService,
	hub *websocket.Hub,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		users:       users,
		games:       games,
		leaderboard: leaderboard,
		hub:         hub,
		metrics:     m,
		logger:      logger,
	}
}

// APIResponse is the envelope every endpoint answers with: code 0 on
// success, -1 on error
type APIResponse struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(h.metricsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)

	// Prometheus metrics
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// WebSocket endpoint for live leaderboard updates
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Get("/{openID}", h.GetProfile)
		})

		r.Route("/game", func(r chi.Router) {
			r.Post("/record", h.SubmitRecord)
			r.Get("/records/{openID}", h.ListRecords)
		})

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Get("/rank/{openID}", h.GetRank)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records request counts and latency per route
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		h.metrics.ObserveHTTP(r.Method, route, ww.Status(), time.Since(start))
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeData writes a successful envelope
func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{Code: 0, Data: data})
}

// writeError classifies an error into the envelope and HTTP status. Raw
// storage errors never reach the caller; they are logged and replaced with
// a generic message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case err == domain.ErrInvalidRequest:
		h.writeJSON(w, http.StatusBadRequest, APIResponse{Code: -1, Message: err.Error()})
	case domain.IsNotFoundError(err):
		h.writeJSON(w, http.StatusNotFound, APIResponse{Code: -1, Message: err.Error()})
	default:
		h.logger.Error("internal error", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, APIResponse{Code: -1, Message: domain.ErrInternalError.Error()})
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, map[string]string{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// Login handles user login/registration
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	user, err := h.users.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, APIResponse{Code: 0, Data: user, Message: "login ok"})
}

// GetProfile returns a user profile by open_id
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	openID := chi.URLParam(r, "openID")

	user, err := h.users.GetProfile(r.Context(), openID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, user)
}

// SubmitRecord ingests one game record
func (h *Handler) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	var sub domain.RecordSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	agg, err := h.games.SubmitRecord(r.Context(), sub)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, APIResponse{Code: 0, Data: agg, Message: "record accepted"})
}

// ListRecords returns a user's recent game records
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	openID := chi.URLParam(r, "openID")
	limit := parseLimit(r, 0)

	records, err := h.games.ListRecords(r.Context(), openID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, records)
}

// GetLeaderboard returns the ranked listing
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 0)

	rows, err := h.leaderboard.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, rows)
}

// GetRank returns a single user's rank
func (h *Handler) GetRank(w http.ResponseWriter, r *http.Request) {
	openID := chi.URLParam(r, "openID")

	info, err := h.leaderboard.Rank(r.Context(), openID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, info)
}

// parseLimit reads the limit query parameter, falling back to def
func parseLimit(r *http.Request, def int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return def
}
