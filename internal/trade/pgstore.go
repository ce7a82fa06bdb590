package trade

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"lv-margintrade/internal/model"
	"lv-margintrade/internal/types"
)

// PGStore persists trading state in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const positionColumns = "id, user_id, symbol, side, opening_amount, amount, asked_rate, open_rate, close_rate, stop_loss, asked_stop_distance, take_profit, state, current_margin, pnl, open_date, close_date, last_modified"

func (s *PGStore) CreatePosition(ctx context.Context, p model.Position) (string, error) {
	now := time.Now().UTC()
	var id string
	err := s.pool.QueryRow(ctx, "insert into positions (user_id, symbol, side, opening_amount, amount, asked_rate, open_rate, close_rate, stop_loss, asked_stop_distance, take_profit, state, current_margin, pnl, open_date, close_date, last_modified) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) returning id",
		p.UserID, p.Symbol, string(p.Side), p.OpeningAmount, p.Amount, p.AskedRate, p.OpenRate, p.CloseRate, p.StopLoss, p.AskedStopDistance, p.TakeProfit, string(p.State), p.CurrentMargin, p.PnL, now, p.CloseDate, now).Scan(&id)
	return id, err
}

func (s *PGStore) GetPosition(ctx context.Context, id string) (model.Position, error) {
	row := s.pool.QueryRow(ctx, "select "+positionColumns+" from positions where id = $1", id)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Position{}, ErrNotFound
	}
	return p, err
}

func (s *PGStore) UpdatePosition(ctx context.Context, p model.Position) error {
	tag, err := s.pool.Exec(ctx, "update positions set amount = $2, open_rate = $3, close_rate = $4, stop_loss = $5, take_profit = $6, state = $7, current_margin = $8, pnl = $9, open_date = $10, close_date = $11, last_modified = $12 where id = $1",
		p.ID, p.Amount, p.OpenRate, p.CloseRate, p.StopLoss, p.TakeProfit, string(p.State), p.CurrentMargin, p.PnL, p.OpenDate, p.CloseDate, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, "select "+positionColumns+" from positions where user_id = $1 order by open_date asc, id asc", userID)
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}

func (s *PGStore) ListOpenPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, "select "+positionColumns+" from positions where user_id = $1 and state in ('opened','partially_closed') order by open_date asc, id asc", userID)
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}

func (s *PGStore) ListOpenPositionsBySymbol(ctx context.Context, symbol string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, "select "+positionColumns+" from positions where symbol = $1 and state in ('opened','partially_closed') order by open_date asc, id asc", symbol)
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var side, state string
	err := row.Scan(&p.ID, &p.UserID, &p.Symbol, &side, &p.OpeningAmount, &p.Amount, &p.AskedRate, &p.OpenRate, &p.CloseRate, &p.StopLoss, &p.AskedStopDistance, &p.TakeProfit, &state, &p.CurrentMargin, &p.PnL, &p.OpenDate, &p.CloseDate, &p.LastModified)
	if err != nil {
		return p, err
	}
	p.Side = types.Side(side)
	p.State = types.PositionState(state)
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const orderColumns = "id, user_id, symbol, amount, side, stop_loss_distance, take_profit_distance, expected_rate, position_id, state, open_date, last_modified"

func (s *PGStore) CreateOrder(ctx context.Context, o model.Order) (string, error) {
	now := time.Now().UTC()
	var id string
	err := s.pool.QueryRow(ctx, "insert into orders (user_id, symbol, amount, side, stop_loss_distance, take_profit_distance, expected_rate, position_id, state, open_date, last_modified) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) returning id",
		o.UserID, o.Symbol, o.Amount, string(o.Side), o.StopLossDistance, o.TakeProfitDistance, o.ExpectedRate, o.PositionID, string(o.State), now, now).Scan(&id)
	return id, err
}

func (s *PGStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	row := s.pool.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

func (s *PGStore) UpdateOrder(ctx context.Context, o model.Order) error {
	tag, err := s.pool.Exec(ctx, "update orders set position_id = $2, state = $3, last_modified = $4 where id = $1",
		o.ID, o.PositionID, string(o.State), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, "select "+orderColumns+" from orders where user_id = $1 order by open_date asc, id asc", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, state string
	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &o.Amount, &side, &o.StopLossDistance, &o.TakeProfitDistance, &o.ExpectedRate, &o.PositionID, &state, &o.OpenDate, &o.LastModified)
	if err != nil {
		return o, err
	}
	o.Side = types.Side(side)
	o.State = types.OrderState(state)
	return o, nil
}

func (s *PGStore) CreateTrade(ctx context.Context, t model.Trade) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, "insert into trades (user_id, position_id, symbol, asked_rate, rate, amount, side, success, position_state, house_trade_id, time) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) returning id",
		t.UserID, t.PositionID, t.Symbol, t.AskedRate, t.Rate, t.Amount, string(t.Side), t.Success, string(t.PositionState), t.HouseTradeID, time.Now().UTC()).Scan(&id)
	return id, err
}

func (s *PGStore) FinalizeTrade(ctx context.Context, tradeID string, state types.PositionState) error {
	tag, err := s.pool.Exec(ctx, "update trades set position_state = $2 where id = $1", tradeID, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CreateHouseTrade(ctx context.Context, t model.HouseTrade) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, "insert into house_trades (symbol, rate, amount, side, success, time) values ($1,$2,$3,$4,$5,$6) returning id",
		t.Symbol, t.Rate, t.Amount, string(t.Side), t.Success, time.Now().UTC()).Scan(&id)
	return id, err
}

func (s *PGStore) ListTradesByPosition(ctx context.Context, positionID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, "select id, user_id, position_id, symbol, asked_rate, rate, amount, side, success, position_state, house_trade_id, time from trades where position_id = $1 order by time asc, id asc", positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, state string
		if err := rows.Scan(&t.ID, &t.UserID, &t.PositionID, &t.Symbol, &t.AskedRate, &t.Rate, &t.Amount, &side, &t.Success, &state, &t.HouseTradeID, &t.Time); err != nil {
			return nil, err
		}
		t.Side = types.Side(side)
		t.PositionState = types.PositionState(state)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ConsumeTicket inserts the ticket id, relying on the primary key to reject
// a second confirmation with the same ticket.
func (s *PGStore) ConsumeTicket(ctx context.Context, ticketID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "insert into trade_tickets (id, consumed_at) values ($1, $2) on conflict (id) do nothing", ticketID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AddProfitability(ctx context.Context, userID, symbol string, assetClass types.AssetClass, pnl decimal.Decimal) error {
	_, err := s.pool.Exec(ctx, "insert into profitability (user_id, symbol, asset_class, pnl, positions) values ($1,$2,$3,$4,1) on conflict (user_id, symbol, asset_class) do update set pnl = profitability.pnl + excluded.pnl, positions = profitability.positions + 1",
		userID, symbol, string(assetClass), pnl)
	return err
}

func (s *PGStore) ListProfitability(ctx context.Context, userID string) ([]model.Profitability, error) {
	rows, err := s.pool.Query(ctx, "select user_id, symbol, asset_class, pnl, positions from profitability where user_id = $1 order by symbol asc, asset_class asc", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Profitability
	for rows.Next() {
		var row model.Profitability
		var assetClass string
		if err := rows.Scan(&row.UserID, &row.Symbol, &assetClass, &row.PnL, &row.Positions); err != nil {
			return nil, err
		}
		row.AssetClass = types.AssetClass(assetClass)
		out = append(out, row)
	}
	return out, rows.Err()
}
