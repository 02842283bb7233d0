// Package types contains the read shapes returned by the leaderboard
// service and serialized by the HTTP layer.
package types

import "time"

// Entry represents one decoded leaderboard row.
type Entry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int64  `json:"score"`
}

// Page is a window of a board plus its total size.
type Page struct {
	Board   string  `json:"board"`
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// RankResult is a member's standing on one board. Rank and Score are zero
// when Ranked is false; rank is then omitted from JSON. Score is always
// present since zero is a valid score.
type RankResult struct {
	Board       string `json:"board"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Ranked      bool   `json:"ranked"`
	Rank        int    `json:"rank,omitempty"`
	Score       int64  `json:"score"`
}

// BoardRank is one ranked board inside MemberRanks.
type BoardRank struct {
	Rank  int   `json:"rank"`
	Score int64 `json:"score"`
}

// MemberRanks aggregates a member's global and per-category standings.
// Boards the member is absent from are omitted.
type MemberRanks struct {
	UserID      string               `json:"userId"`
	DisplayName string               `json:"displayName"`
	Global      *BoardRank           `json:"global,omitempty"`
	Categories  map[string]BoardRank `json:"categories"`
}

// SubmitResult is the outcome of one score submission. Partial means the
// score is recorded but one or more boards could not be updated, so the
// ranks may be stale.
type SubmitResult struct {
	RecordID     string    `json:"recordId"`
	SubmittedAt  time.Time `json:"submittedAt"`
	CategoryRank int       `json:"categoryRank,omitempty"`
	GlobalRank   int       `json:"globalRank,omitempty"`
	Partial      bool      `json:"partial,omitempty"`
	Duplicate    bool      `json:"duplicate,omitempty"`
}
