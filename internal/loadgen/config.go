// Package loadgen drives a running leaderboard service with random scores
// and checks the served boards against totals computed locally.
package loadgen

import (
	"errors"
	"time"
)

// Default configuration constants.
const (
	DefaultUsers       = 1000
	DefaultSubmissions = 10000
	DefaultMaxValue    = 1000
	DefaultTopN        = 50
	DefaultTimeout     = 10 * time.Second
)

// ErrMismatch is returned when served ranks disagree with local totals.
var ErrMismatch = errors.New("leaderboard mismatch")

// Config holds configuration for one load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Users       int           // Distinct users to submit for
	Submissions int           // Scores to submit in total
	Categories  []string      // Category ids, which must already exist
	MaxValue    int64         // Upper bound for random values, inclusive
	Workers     int           // Concurrent HTTP workers
	TopN        int           // Global entries fetched for the order check
	Timeout     time.Duration // HTTP request timeout
}

func (c *Config) normalize() error {
	if c.BaseURL == "" {
		return errors.New("base url is required")
	}
	if len(c.Categories) == 0 {
		return errors.New("at least one category is required")
	}
	if c.Users <= 0 {
		c.Users = DefaultUsers
	}
	if c.Submissions <= 0 {
		c.Submissions = DefaultSubmissions
	}
	if c.MaxValue <= 0 {
		c.MaxValue = DefaultMaxValue
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

// Submission mirrors the POST /scores request body.
type Submission struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	CategoryID   string `json:"category_id"`
	Value        int64  `json:"value"`
}

// Stats holds run statistics.
type Stats struct {
	Submitted  int64
	Created    int64
	Duplicate  int64
	Partial    int64
	Failed     int64
	Verified   int64
	Mismatched int64
	Duration   time.Duration
}
