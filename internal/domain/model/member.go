package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMember is returned when a board member cannot be decoded.
var ErrInvalidMember = errors.New("invalid board member")

// Member identifies one ranked entry on a board. Boards key entries by the
// encoded pair, so a display-name change produces a distinct entry.
type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Encode returns the canonical board member string.
func (m Member) Encode() string {
	b, _ := json.Marshal(m) // two string fields cannot fail
	return string(b)
}

// DecodeMember parses a board member string produced by Encode.
func DecodeMember(s string) (Member, error) {
	var m Member
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return Member{}, fmt.Errorf("%w: %w", ErrInvalidMember, err)
	}
	if m.UserID == "" {
		return Member{}, fmt.Errorf("%w: missing userId", ErrInvalidMember)
	}
	return m, nil
}
