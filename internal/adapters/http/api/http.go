// Package api exposes the leaderboard engine over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/leaderboard"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/rebuild"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
)

// Leaderboard is the request-facing engine the handlers call.
type Leaderboard interface {
	SubmitScore(ctx context.Context, sub leaderboard.Submission) (types.SubmitResult, error)
	GetTopN(ctx context.Context, key board.Key, limit, offset int) (types.Page, error)
	GetRank(ctx context.Context, member model.Member, key board.Key) (types.RankResult, error)
	GetRanksAcrossCategories(ctx context.Context, member model.Member, categoryIDs []string) (types.MemberRanks, error)
	GetNeighbors(ctx context.Context, member model.Member, key board.Key, radius int) ([]types.Entry, error)
	GetTopForPeriod(ctx context.Context, period board.Period, limit int) (types.Page, error)
}

// Syncer is the operator-facing rebuild engine.
type Syncer interface {
	ForceSync(ctx context.Context) (rebuild.Result, error)
	CheckAndSync(ctx context.Context) (rebuild.Result, error)
	Status(ctx context.Context) (rebuild.Status, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	usersHandler       *UsersHandler
	adminHandler       *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(lb Leaderboard, syncer Syncer, stats StatsProvider, opts ...Option) *Server {
	o := options{defaultLimit: 10, defaultRadius: 5, log: logger.Named("api")}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(stats),
		scoresHandler:      NewScoresHandler(lb, o.log),
		leaderboardHandler: NewLeaderboardHandler(lb, o.defaultLimit, o.defaultRadius),
		usersHandler:       NewUsersHandler(lb),
		adminHandler:       NewAdminHandler(syncer, o.log),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.Use(MetricsMiddleware)

	r.HandleFunc("/healthz", s.healthHandler.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.healthHandler.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.statsHandler.HandleStats).Methods(http.MethodGet)

	r.HandleFunc("/scores", s.scoresHandler.HandlePostScore).Methods(http.MethodPost)

	r.HandleFunc("/leaderboards/{board}", s.leaderboardHandler.HandleGetTop).Methods(http.MethodGet)
	r.HandleFunc("/leaderboards/{board}/rank", s.leaderboardHandler.HandleGetRank).Methods(http.MethodGet)
	r.HandleFunc("/leaderboards/{board}/neighbors", s.leaderboardHandler.HandleGetNeighbors).Methods(http.MethodGet)
	r.HandleFunc("/periods/{period}", s.leaderboardHandler.HandleGetPeriod).Methods(http.MethodGet)

	r.HandleFunc("/users/{userID}/ranks", s.usersHandler.HandleGetRanks).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/sync", s.adminHandler.HandleForceSync).Methods(http.MethodPost)
	admin.HandleFunc("/sync/check", s.adminHandler.HandleCheckAndSync).Methods(http.MethodPost)
	admin.HandleFunc("/sync/status", s.adminHandler.HandleStatus).Methods(http.MethodGet)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure writes err with the status its kind maps to.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
