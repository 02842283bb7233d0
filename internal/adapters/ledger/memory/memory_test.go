package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/ledger/ledgertest"
	"github.com/okian/podium/internal/domain/model"
)

func TestMemoryLedger(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger {
		return New()
	})
}

func TestMemoryLedger_InactivePlayers(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.UpsertCategory(ctx, model.Category{ID: "chess", Active: true}))
	_, err := l.Append(ctx, model.ScoreRecord{UserID: "u1", CategoryID: "chess", Value: 3}, "Ada")
	require.NoError(t, err)

	l.SetPlayerActive("u1", false)

	users, err := l.ListActiveUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	n, err := l.CountDistinctUsers(ctx, "chess")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryLedger_Instrumented(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger {
		return ledger.Instrument(New())
	})
}
