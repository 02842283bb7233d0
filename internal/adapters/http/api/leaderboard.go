package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// BoardReader defines the read operations served under /leaderboards and
// /periods.
type BoardReader interface {
	GetTopN(ctx context.Context, key board.Key, limit, offset int) (types.Page, error)
	GetRank(ctx context.Context, member model.Member, key board.Key) (types.RankResult, error)
	GetNeighbors(ctx context.Context, member model.Member, key board.Key, radius int) ([]types.Entry, error)
	GetTopForPeriod(ctx context.Context, period board.Period, limit int) (types.Page, error)
}

// LeaderboardHandler handles board reads.
type LeaderboardHandler struct {
	deps          BoardReader
	defaultLimit  int
	defaultRadius int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps BoardReader, defaultLimit, defaultRadius int) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, defaultLimit: defaultLimit, defaultRadius: defaultRadius}
}

type neighborsResponse struct {
	Board   string        `json:"board"`
	UserID  string        `json:"userId"`
	Radius  int           `json:"radius"`
	Entries []types.Entry `json:"entries"`
}

// HandleGetTop handles GET /leaderboards/{board}?limit=N&offset=M.
func (h *LeaderboardHandler) HandleGetTop(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_top"
	key, err := board.ParseKey(mux.Vars(r)["board"])
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	q := r.URL.Query()
	limit, err := intParam(q, "limit", h.defaultLimit)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	offset, err := intParam(q, "offset", 0)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	page, err := h.deps.GetTopN(r.Context(), key, limit, offset)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGetRank handles GET /leaderboards/{board}/rank?user_id=&display_name=.
func (h *LeaderboardHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	key, err := board.ParseKey(mux.Vars(r)["board"])
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	member, err := memberParam(r.URL.Query())
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.GetRank(r.Context(), member, key)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetNeighbors handles GET /leaderboards/{board}/neighbors.
func (h *LeaderboardHandler) HandleGetNeighbors(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_neighbors"
	key, err := board.ParseKey(mux.Vars(r)["board"])
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	q := r.URL.Query()
	member, err := memberParam(q)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	radius, err := intParam(q, "radius", h.defaultRadius)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	entries, err := h.deps.GetNeighbors(r.Context(), member, key, radius)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, neighborsResponse{Board: key.String(), UserID: member.UserID, Radius: radius, Entries: entries})
}

// HandleGetPeriod handles GET /periods/{period}?limit=N.
func (h *LeaderboardHandler) HandleGetPeriod(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_period"
	period, err := board.ParsePeriod(mux.Vars(r)["period"])
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	limit, err := intParam(r.URL.Query(), "limit", h.defaultLimit)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	page, err := h.deps.GetTopForPeriod(r.Context(), period, limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func memberParam(q url.Values) (model.Member, error) {
	m := model.Member{UserID: q.Get("user_id"), DisplayName: q.Get("display_name")}
	if m.UserID == "" {
		return model.Member{}, fmt.Errorf("missing user_id")
	}
	return m, nil
}
