package loadgen

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

type player struct {
	id   string
	name string
}

// expected holds the boards a correct service must serve after a run.
type expected struct {
	global map[string]int64            // user -> sum of all values
	best   map[string]map[string]int64 // category -> user -> max value
	names  map[string]string
}

func randInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

// generate builds cfg.Submissions random submissions over cfg.Users users.
func generate(cfg *Config) []Submission {
	players := make([]player, cfg.Users)
	for i := range players {
		players[i] = player{id: uuid.NewString(), name: fmt.Sprintf("player-%d", i)}
	}

	subs := make([]Submission, cfg.Submissions)
	for i := range subs {
		p := players[randInt(int64(len(players)))]
		cat := cfg.Categories[randInt(int64(len(cfg.Categories)))]
		value := randInt(cfg.MaxValue + 1)
		subs[i] = Submission{
			SubmissionID: uuid.NewString(),
			UserID:       p.id,
			DisplayName:  p.name,
			CategoryID:   cat,
			Value:        value,
		}
	}
	return subs
}

func newExpected() *expected {
	return &expected{
		global: make(map[string]int64),
		best:   make(map[string]map[string]int64),
		names:  make(map[string]string),
	}
}

// record adds an accepted submission to the totals.
func (e *expected) record(s Submission) {
	e.global[s.UserID] += s.Value
	e.names[s.UserID] = s.DisplayName
	users, ok := e.best[s.CategoryID]
	if !ok {
		users = make(map[string]int64)
		e.best[s.CategoryID] = users
	}
	if cur, seen := users[s.UserID]; !seen || s.Value > cur {
		users[s.UserID] = s.Value
	}
}
