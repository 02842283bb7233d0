package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/okian/podium/internal/domain/board"
)

const benchMembers = 100_000

func seededStore(b *testing.B, n int) (*TreapStore, []string) {
	b.Helper()
	ctx := context.Background()
	s := NewTreapStore(ctx)
	b.Cleanup(func() { _ = s.Close() })
	members := make([]string, n)
	for i := range members {
		members[i] = fmt.Sprintf("user-%d\x00name-%d", i, i)
		if _, err := s.Upsert(ctx, board.Global, members[i], rand.Int64N(1_000_000), board.Add); err != nil {
			b.Fatal(err)
		}
	}
	return s, members
}

func BenchmarkUpsertAdd(b *testing.B) {
	s, members := seededStore(b, benchMembers)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Upsert(ctx, board.Global, members[i%len(members)], 7, board.Add); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUpsertReplaceIfGreater(b *testing.B) {
	s, members := seededStore(b, benchMembers)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Upsert(ctx, board.Global, members[i%len(members)], rand.Int64N(2_000_000), board.ReplaceIfGreater); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRank(b *testing.B) {
	s, members := seededStore(b, benchMembers)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := s.Rank(ctx, board.Global, members[i%len(members)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRangeTop100(b *testing.B) {
	s, _ := seededStore(b, benchMembers)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Range(ctx, board.Global, 0, 99); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMixedParallel approximates serving traffic: mostly reads with a
// steady stream of score updates.
func BenchmarkMixedParallel(b *testing.B) {
	s, members := seededStore(b, benchMembers)
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m := members[rand.IntN(len(members))]
			switch rand.IntN(10) {
			case 0, 1:
				_, _ = s.Upsert(ctx, board.Global, m, 5, board.Add)
			case 2:
				_, _ = s.Range(ctx, board.Global, 0, 49)
			default:
				_, _, _ = s.Rank(ctx, board.Global, m)
			}
		}
	})
}
