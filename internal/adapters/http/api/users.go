package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// RanksReader defines the cross-board lookup for one member.
type RanksReader interface {
	GetRanksAcrossCategories(ctx context.Context, member model.Member, categoryIDs []string) (types.MemberRanks, error)
}

// UsersHandler handles per-user reads.
type UsersHandler struct {
	deps RanksReader
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps RanksReader) *UsersHandler {
	return &UsersHandler{deps: deps}
}

// HandleGetRanks handles GET /users/{userID}/ranks?display_name=&categories=a,b.
func (h *UsersHandler) HandleGetRanks(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_user_ranks"
	q := r.URL.Query()
	member := model.Member{UserID: mux.Vars(r)["userID"], DisplayName: q.Get("display_name")}

	var categories []string
	for _, c := range strings.Split(q.Get("categories"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	ranks, err := h.deps.GetRanksAcrossCategories(r.Context(), member, categories)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ranks)
}
