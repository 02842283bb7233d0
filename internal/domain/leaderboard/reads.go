package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/board"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// GetTopN returns limit entries of key starting at the 0-based offset, plus
// the board's total size. Limits above the configured maximum are clamped.
func (s *Service) GetTopN(ctx context.Context, key board.Key, limit, offset int) (types.Page, error) {
	if limit <= 0 || offset < 0 {
		return types.Page{}, fmt.Errorf("%w: limit must be positive and offset non-negative", ErrInvalidArgument)
	}
	limit = min(limit, s.maxLimit)

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	rows, err := s.store.Range(ctx, key, offset, offset+limit-1)
	if err != nil {
		return types.Page{}, storeErr("range", err)
	}
	total, err := s.store.Cardinality(ctx, key)
	if err != nil {
		return types.Page{}, storeErr("cardinality", err)
	}
	return types.Page{
		Board:   key.String(),
		Entries: s.decode(ctx, rows),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// GetRank returns member's standing on key.
func (s *Service) GetRank(ctx context.Context, member model.Member, key board.Key) (types.RankResult, error) {
	if member.UserID == "" {
		return types.RankResult{}, fmt.Errorf("%w: userId is required", ErrInvalidArgument)
	}
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	res := types.RankResult{Board: key.String(), UserID: member.UserID, DisplayName: member.DisplayName}
	st, ok, err := s.standing(ctx, key, member.Encode())
	if err != nil {
		return types.RankResult{}, err
	}
	if ok {
		res.Ranked, res.Rank, res.Score = true, st.Rank, st.Score
	}
	return res, nil
}

// GetRanksAcrossCategories reads member's standing on the global board and
// each listed category board. Boards the member is absent from are omitted.
// Any store failure fails the whole call rather than returning a partial
// view.
func (s *Service) GetRanksAcrossCategories(ctx context.Context, member model.Member, categoryIDs []string) (types.MemberRanks, error) {
	if member.UserID == "" {
		return types.MemberRanks{}, fmt.Errorf("%w: userId is required", ErrInvalidArgument)
	}
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	encoded := member.Encode()
	out := types.MemberRanks{
		UserID:      member.UserID,
		DisplayName: member.DisplayName,
		Categories:  make(map[string]types.BoardRank, len(categoryIDs)),
	}

	st, ok, err := s.standing(ctx, board.Global, encoded)
	if err != nil {
		return types.MemberRanks{}, err
	}
	if ok {
		out.Global = &st
	}
	for _, id := range categoryIDs {
		if id == "" {
			continue
		}
		st, ok, err := s.standing(ctx, board.CategoryKey(id), encoded)
		if err != nil {
			return types.MemberRanks{}, err
		}
		if ok {
			out.Categories[id] = st
		}
	}
	return out, nil
}

// GetNeighbors returns the entries within radius positions of member on
// key, member included. An unranked member has no neighbors.
func (s *Service) GetNeighbors(ctx context.Context, member model.Member, key board.Key, radius int) ([]types.Entry, error) {
	if member.UserID == "" || radius < 0 {
		return nil, fmt.Errorf("%w: userId is required and radius must be non-negative", ErrInvalidArgument)
	}
	radius = min(radius, s.maxRadius)

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	rank, ok, err := s.store.Rank(ctx, key, member.Encode())
	if err != nil {
		return nil, storeErr("rank", err)
	}
	if !ok {
		return []types.Entry{}, nil
	}
	pos := rank - 1
	rows, err := s.store.Range(ctx, key, max(0, pos-radius), pos+radius)
	if err != nil {
		return nil, storeErr("range", err)
	}
	return s.decode(ctx, rows), nil
}

// GetTopForPeriod returns the top of the board currently serving period.
// Year has no board of its own and reads the all-time board.
func (s *Service) GetTopForPeriod(ctx context.Context, period board.Period, limit int) (types.Page, error) {
	key, err := s.policy.KeyForPeriod(period, s.now())
	if err != nil {
		return types.Page{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return s.GetTopN(ctx, key, limit, 0)
}

func (s *Service) standing(ctx context.Context, key board.Key, member string) (types.BoardRank, bool, error) {
	rank, ok, err := s.store.Rank(ctx, key, member)
	if err != nil {
		return types.BoardRank{}, false, storeErr("rank", err)
	}
	if !ok {
		return types.BoardRank{}, false, nil
	}
	score, ok, err := s.store.Score(ctx, key, member)
	if err != nil {
		return types.BoardRank{}, false, storeErr("score", err)
	}
	if !ok {
		// Removed between the two reads.
		return types.BoardRank{}, false, nil
	}
	return types.BoardRank{Rank: rank, Score: score}, true, nil
}

// decode turns raw rows into API entries, skipping rows whose member cannot
// be decoded.
func (s *Service) decode(ctx context.Context, rows []repository.Entry) []types.Entry {
	out := make([]types.Entry, 0, len(rows))
	for _, r := range rows {
		m, err := model.DecodeMember(r.Member)
		if err != nil {
			metrics.RecordDecodeSkipped()
			s.log.Debug(ctx, "skipping undecodable board member", logger.String("member", r.Member), logger.Error(err))
			continue
		}
		out = append(out, types.Entry{Rank: r.Rank, UserID: m.UserID, DisplayName: m.DisplayName, Score: r.Score})
	}
	return out
}

func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrInvalidRange) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
