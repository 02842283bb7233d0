package api

import (
	"context"
	"net/http"

	"github.com/okian/podium/internal/domain/rebuild"
	"github.com/okian/podium/pkg/logger"
)

// AdminHandler exposes the rebuild engine to operators.
type AdminHandler struct {
	deps Syncer
	log  logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Syncer, log logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, log: log}
}

// HandleForceSync handles POST /admin/sync.
func (h *AdminHandler) HandleForceSync(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "api.force_sync", h.deps.ForceSync)
}

// HandleCheckAndSync handles POST /admin/sync/check.
func (h *AdminHandler) HandleCheckAndSync(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "api.check_and_sync", h.deps.CheckAndSync)
}

// HandleStatus handles GET /admin/sync/status.
func (h *AdminHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.sync_status"
	st, err := h.deps.Status(r.Context())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// run detaches the rebuild from the request context: a client that hangs
// up must not cancel a rebuild other callers are sharing.
func (h *AdminHandler) run(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) (rebuild.Result, error)) {
	res, err := fn(context.WithoutCancel(r.Context()))
	if err != nil {
		h.log.Error(r.Context(), "sync failed", logger.String("op", op), logger.Error(err))
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
