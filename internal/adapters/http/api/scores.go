package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/podium/internal/domain/leaderboard"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
)

const maxScoreBody = 64 << 10

// Submitter is the write side the scores handler needs.
type Submitter interface {
	SubmitScore(ctx context.Context, sub leaderboard.Submission) (types.SubmitResult, error)
}

// scoreRequest mirrors the OpenAPI schema for POST /scores.
type scoreRequest struct {
	SubmissionID string         `json:"submission_id"`
	UserID       string         `json:"user_id"`
	DisplayName  string         `json:"display_name"`
	CategoryID   string         `json:"category_id"`
	Value        *int64         `json:"value"`
	Metadata     map[string]any `json:"metadata"`
	SubmittedAt  string         `json:"submitted_at"`
}

func (s scoreRequest) validate() error {
	switch {
	case strings.TrimSpace(s.UserID) == "":
		return errors.New("missing user_id")
	case strings.TrimSpace(s.CategoryID) == "":
		return errors.New("missing category_id")
	case s.Value == nil:
		return errors.New("missing value")
	}
	if s.SubmittedAt != "" {
		if _, err := time.Parse(time.RFC3339, s.SubmittedAt); err != nil {
			return errors.New("invalid submitted_at; must be RFC3339")
		}
	}
	return nil
}

func (s scoreRequest) submission() leaderboard.Submission {
	sub := leaderboard.Submission{
		SubmissionID: strings.TrimSpace(s.SubmissionID),
		UserID:       strings.TrimSpace(s.UserID),
		DisplayName:  strings.TrimSpace(s.DisplayName),
		CategoryID:   strings.TrimSpace(s.CategoryID),
		Value:        *s.Value,
		Metadata:     s.Metadata,
	}
	if s.SubmittedAt != "" {
		sub.SubmittedAt, _ = time.Parse(time.RFC3339, s.SubmittedAt)
	}
	return sub
}

// ScoresHandler handles score submissions.
type ScoresHandler struct {
	deps Submitter
	log  logger.Logger
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Submitter, log logger.Logger) *ScoresHandler {
	return &ScoresHandler{deps: deps, log: log}
}

// HandlePostScore handles POST /scores. A replayed submission_id is
// acknowledged with 200 and the original record; a new score gets 201.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	var req scoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.SubmitScore(r.Context(), req.submission())
	if err != nil {
		if status, _ := classify(err); status >= http.StatusInternalServerError {
			h.log.Error(r.Context(), "score submission failed", logger.String("user", req.UserID), logger.Error(err))
		}
		writeFailure(w, Wrap(op, err))
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
