package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/domain/model"
)

// Prepare validates rec and fills in the ID and timestamp defaults shared by
// every backend.
func Prepare(rec model.ScoreRecord, now time.Time) (model.ScoreRecord, error) {
	if rec.UserID == "" || rec.CategoryID == "" {
		return model.ScoreRecord{}, fmt.Errorf("%w: user and category are required", ErrInvalidRecord)
	}
	if rec.Value < 0 {
		return model.ScoreRecord{}, fmt.Errorf("%w: negative value %d", ErrInvalidRecord, rec.Value)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = now
	}
	rec.SubmittedAt = rec.SubmittedAt.UTC()
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return rec, nil
}
