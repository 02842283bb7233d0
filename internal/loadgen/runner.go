package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/podium/pkg/logger"
)

type submitResult struct {
	Partial   bool `json:"partial"`
	Duplicate bool `json:"duplicate"`
}

type rankResult struct {
	Ranked bool  `json:"ranked"`
	Rank   int   `json:"rank"`
	Score  int64 `json:"score"`
}

type entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Score  int64  `json:"score"`
}

type page struct {
	Entries []entry `json:"entries"`
	Total   int     `json:"total"`
}

// Run submits random scores and verifies the served global and category
// boards. It returns ErrMismatch when any served score disagrees with the
// locally computed one.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	if err := cfg.normalize(); err != nil {
		return Stats{}, err
	}
	log := logger.Named("loadgen")
	start := time.Now()
	c := newClient(cfg.BaseURL, cfg.Timeout)

	var probe map[string]any
	if err := c.getJSON(ctx, "/stats", nil, &probe); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("submissions", cfg.Submissions),
		logger.Int("workers", cfg.Workers),
	)

	var stats Stats
	exp := submit(ctx, c, &cfg, generate(&cfg), &stats)
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	verifyRanks(ctx, c, &cfg, exp, &stats)
	orderErr := verifyTop(ctx, c, &cfg, exp)

	stats.Duration = time.Since(start)
	log.Info(ctx, "load run finished",
		logger.Int64("submitted", stats.Submitted),
		logger.Int64("created", stats.Created),
		logger.Int64("duplicate", stats.Duplicate),
		logger.Int64("partial", stats.Partial),
		logger.Int64("failed", stats.Failed),
		logger.Int64("verified", stats.Verified),
		logger.Int64("mismatched", stats.Mismatched),
		logger.Duration("duration", stats.Duration),
	)

	if orderErr != nil {
		return stats, orderErr
	}
	if stats.Mismatched > 0 {
		return stats, fmt.Errorf("%w: %d of %d users", ErrMismatch, stats.Mismatched, stats.Verified+stats.Mismatched)
	}
	return stats, nil
}

// submit posts subs with cfg.Workers workers and returns the totals of the
// accepted ones.
func submit(ctx context.Context, c *client, cfg *Config, subs []Submission, stats *Stats) *expected {
	exp := newExpected()
	var mu sync.Mutex

	work := make(chan Submission, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				atomic.AddInt64(&stats.Submitted, 1)
				code, body, err := c.postJSON(ctx, "/scores", s)
				if err != nil || (code != http.StatusCreated && code != http.StatusOK) {
					atomic.AddInt64(&stats.Failed, 1)
					continue
				}
				var res submitResult
				_ = json.Unmarshal(body, &res)
				if res.Duplicate {
					atomic.AddInt64(&stats.Duplicate, 1)
					continue
				}
				atomic.AddInt64(&stats.Created, 1)
				if res.Partial {
					atomic.AddInt64(&stats.Partial, 1)
				}
				mu.Lock()
				exp.record(s)
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(work)
		for _, s := range subs {
			select {
			case <-ctx.Done():
				return
			case work <- s:
			}
		}
	}()
	wg.Wait()
	return exp
}

// verifyRanks compares every user's served global score with the local sum.
func verifyRanks(ctx context.Context, c *client, cfg *Config, exp *expected, stats *Stats) {
	log := logger.Named("loadgen")
	users := make(chan string, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range users {
				q := url.Values{"user_id": {id}, "display_name": {exp.names[id]}}
				var res rankResult
				err := c.getJSON(ctx, "/leaderboards/global/rank", q, &res)
				if err != nil || !res.Ranked || res.Score != exp.global[id] {
					atomic.AddInt64(&stats.Mismatched, 1)
					log.Warn(ctx, "global score mismatch",
						logger.String("user", id),
						logger.Int64("want", exp.global[id]),
						logger.Int64("got", res.Score),
						logger.Error(err),
					)
					continue
				}
				atomic.AddInt64(&stats.Verified, 1)
			}
		}()
	}
	for id := range exp.global {
		if ctx.Err() != nil {
			break
		}
		users <- id
	}
	close(users)
	wg.Wait()
}

// verifyTop checks the served top of the global and each category board
// against locally sorted scores. Ties make member order ambiguous, so only
// scores are compared.
func verifyTop(ctx context.Context, c *client, cfg *Config, exp *expected) error {
	boards := map[string]map[string]int64{"global": exp.global}
	for cat, users := range exp.best {
		boards["category:"+cat] = users
	}
	for key, scores := range boards {
		want := make([]int64, 0, len(scores))
		for _, v := range scores {
			want = append(want, v)
		}
		sort.Slice(want, func(i, j int) bool { return want[i] > want[j] })

		var got page
		q := url.Values{"limit": {fmt.Sprint(cfg.TopN)}}
		if err := c.getJSON(ctx, "/leaderboards/"+key, q, &got); err != nil {
			return fmt.Errorf("fetch %s: %w", key, err)
		}
		if got.Total != len(want) {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrMismatch, key, got.Total, len(want))
		}
		for i, e := range got.Entries {
			if e.Score != want[i] || e.Rank != i+1 {
				return fmt.Errorf("%w: %s position %d is %d, want %d", ErrMismatch, key, i+1, e.Score, want[i])
			}
		}
	}
	return nil
}
