// Package events publishes domain events about score submissions and
// board rebuilds.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event subjects, relative to the configured prefix.
const (
	SubjectScoreSubmitted     = "score.submitted"
	SubjectLeaderboardRebuilt = "leaderboard.rebuilt"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// ScoreSubmitted is published after a score is durably recorded.
type ScoreSubmitted struct {
	RecordID     string    `json:"recordId"`
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	CategoryID   string    `json:"categoryId"`
	Value        int64     `json:"value"`
	SubmittedAt  time.Time `json:"submittedAt"`
	CategoryRank int       `json:"categoryRank,omitempty"`
	GlobalRank   int       `json:"globalRank,omitempty"`
	Partial      bool      `json:"partial,omitempty"`
}

// LeaderboardRebuilt is published after a full rebuild from the ledger.
type LeaderboardRebuilt struct {
	Trigger    string `json:"trigger"`
	Users      int    `json:"users"`
	Categories int    `json:"categories"`
	Failures   int    `json:"failures"`
	DurationMS int64  `json:"durationMs"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close() error
}

// Encode builds the wire form of payload on subject.
func Encode(subject string, payload any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s payload: %w", subject, err)
	}
	return json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: now.UTC(),
		Data:       data,
	})
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, subject string, payload any) error {
	raw, err := Encode(subject, payload, time.Now())
	if err != nil {
		return err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what has been published, optionally filtered by
// subject.
func (r *Recorder) Events(subject string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, 0, len(r.events))
	for _, e := range r.events {
		if subject == "" || e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}
