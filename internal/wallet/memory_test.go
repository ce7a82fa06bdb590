package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lv-margintrade/internal/currency"
)

var (
	usd = currency.Currency{Code: "USD", Precision: 2}
	eur = currency.Currency{Code: "EUR", Precision: 2}
)

func TestMemoryReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Deposit(ctx, "alice", decimal.NewFromInt(100), usd))

	ref := Ref{PositionID: "p1"}
	require.NoError(t, m.ReserveMargin(ctx, "alice", decimal.NewFromInt(60), usd, ref))

	free, err := m.GetUsefulBalance(ctx, "alice", usd)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.NewFromInt(40)), "got %s", free)
	assert.True(t, m.ReservedBalance("alice", usd).Equal(decimal.NewFromInt(60)))

	require.NoError(t, m.ReleaseMargin(ctx, "alice", decimal.NewFromInt(60), usd, ref))
	free, err = m.GetUsefulBalance(ctx, "alice", usd)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.NewFromInt(100)))
	assert.True(t, m.ReservedBalance("alice", usd).IsZero())
}

func TestMemoryOverdraftLeavesBalancesUntouched(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Deposit(ctx, "alice", decimal.NewFromInt(50), usd))

	err := m.ReserveMargin(ctx, "alice", decimal.NewFromInt(51), usd, Ref{})
	assert.ErrorIs(t, err, ErrOverdraft)

	free, err := m.GetUsefulBalance(ctx, "alice", usd)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.NewFromInt(50)))
	assert.True(t, m.ReservedBalance("alice", usd).IsZero())
}

func TestMemoryReleaseBeyondReserved(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Deposit(ctx, "alice", decimal.NewFromInt(100), usd))
	require.NoError(t, m.ReserveMargin(ctx, "alice", decimal.NewFromInt(30), usd, Ref{}))

	err := m.ReleaseMargin(ctx, "alice", decimal.NewFromInt(31), usd, Ref{})
	assert.Error(t, err)
}

func TestMemoryApplyPnL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Deposit(ctx, "alice", decimal.NewFromInt(100), usd))

	require.NoError(t, m.ApplyPnL(ctx, "alice", decimal.NewFromFloat(12.5), usd, Ref{TradeID: "t1"}))
	require.NoError(t, m.ApplyPnL(ctx, "alice", decimal.NewFromFloat(-40), usd, Ref{TradeID: "t2"}))

	free, err := m.GetUsefulBalance(ctx, "alice", usd)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.NewFromFloat(72.5)), "got %s", free)
}

func TestMemoryBalancesAreCurrencyScoped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Deposit(ctx, "alice", decimal.NewFromInt(100), usd))
	require.NoError(t, m.Deposit(ctx, "alice", decimal.NewFromInt(30), eur))
	require.NoError(t, m.Deposit(ctx, "bob", decimal.NewFromInt(7), usd))
	require.NoError(t, m.ReserveMargin(ctx, "alice", decimal.NewFromInt(10), eur, Ref{}))

	balances, err := m.ListBalances(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "EUR", balances[0].Currency)
	assert.True(t, balances[0].Available.Equal(decimal.NewFromInt(20)))
	assert.True(t, balances[0].Reserved.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "USD", balances[1].Currency)
	assert.True(t, balances[1].Available.Equal(decimal.NewFromInt(100)))

	free, err := m.GetUsefulBalance(ctx, "bob", usd)
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.NewFromInt(7)))
}

func TestMemoryRejectsNonPositiveDeposit(t *testing.T) {
	m := NewMemory()
	assert.Error(t, m.Deposit(context.Background(), "alice", decimal.Zero, usd))
}
