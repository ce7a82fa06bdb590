package trade

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lv-margintrade/internal/margin"
	"lv-margintrade/internal/marketdata"
	"lv-margintrade/internal/types"
)

func orderParams() OrderParams {
	return OrderParams{
		UserID:           "alice",
		Symbol:           "ACME",
		Amount:           decimal.NewFromInt(10),
		Side:             types.SideBuy,
		StopLossDistance: decimal.NewFromInt(5),
		ExpectedRate:     decimal.NewFromInt(105),
	}
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.PlaceOrder(ctx, orderParams())
	require.NoError(t, err)

	order, err := f.store.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderPending, order.State)
	assert.Nil(t, order.PositionID)
}

func TestPlaceOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := orderParams()
	p.Amount = decimal.RequireFromString("0.5")
	_, err := f.svc.PlaceOrder(ctx, p)
	assert.ErrorIs(t, err, ErrWrongAmount)

	p = orderParams()
	p.ExpectedRate = decimal.Zero
	_, err = f.svc.PlaceOrder(ctx, p)
	assert.ErrorIs(t, err, margin.ErrZeroRate)
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.PlaceOrder(ctx, orderParams())
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelOrder(ctx, id))

	order, err := f.store.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCanceled, order.State)

	// A canceled order cannot be canceled again.
	assert.ErrorIs(t, f.svc.CancelOrder(ctx, id), ErrOrderNotPending)
}

func TestOrderTriggerOpensPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	id, err := f.svc.PlaceOrder(ctx, orderParams())
	require.NoError(t, err)

	// Move the bid through the expected rate and re-evaluate watches.
	f.quotes.Set(marketdata.Quote{
		Symbol: "ACME",
		Bid:    decimal.NewFromInt(105),
		Ask:    decimal.NewFromInt(106),
	})
	f.gw.Tick(ctx)

	order, err := f.store.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderExecuted, order.State)
	require.NotNil(t, order.PositionID)

	position, err := f.store.GetPosition(ctx, *order.PositionID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpened, position.State)
	assert.True(t, position.OpenRate.Equal(decimal.NewFromInt(105)))
	assert.Equal(t, "alice", position.UserID)
}

func TestOrderTriggerWhenConditionAlreadyHolds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	// Bid already at 100; an order expecting 99 fires on the next evaluation.
	p := orderParams()
	p.ExpectedRate = decimal.NewFromInt(99)
	id, err := f.svc.PlaceOrder(ctx, p)
	require.NoError(t, err)
	f.gw.Tick(ctx)

	order, err := f.store.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderExecuted, order.State)
	require.NotNil(t, order.PositionID)
}

func TestOrderTriggerFailureKeepsOrderPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// No deposit: the open fails the balance check.

	p := orderParams()
	p.ExpectedRate = decimal.NewFromInt(99)
	id, err := f.svc.PlaceOrder(ctx, p)
	require.NoError(t, err)
	f.gw.Tick(ctx)

	order, err := f.store.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderPending, order.State, "failed open leaves the order armed")
	assert.Nil(t, order.PositionID)

	// Funding the account and triggering again succeeds.
	f.deposit(t, "alice", 1000)
	f.gw.Tick(ctx)
	order, err = f.store.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.OrderExecuted, order.State)
}

func TestCancelLosesToConcurrentTrigger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, "alice", 1000)

	p := orderParams()
	p.ExpectedRate = decimal.NewFromInt(99)
	id, err := f.svc.PlaceOrder(ctx, p)
	require.NoError(t, err)
	f.gw.Tick(ctx)

	// The trigger already executed the order; the late cancel is rejected.
	assert.ErrorIs(t, f.svc.CancelOrder(ctx, id), ErrOrderNotPending)
}
