package trade

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lv-margintrade/internal/model"
	"lv-margintrade/internal/types"
)

// MemoryStore keeps all trading state in process.
type MemoryStore struct {
	mu            sync.RWMutex
	positions     map[string]model.Position
	orders        map[string]model.Order
	trades        map[string]model.Trade
	houseTrades   map[string]model.HouseTrade
	tickets       map[string]struct{}
	profitability map[string]*model.Profitability
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions:     make(map[string]model.Position),
		orders:        make(map[string]model.Order),
		trades:        make(map[string]model.Trade),
		houseTrades:   make(map[string]model.HouseTrade),
		tickets:       make(map[string]struct{}),
		profitability: make(map[string]*model.Profitability),
	}
}

func (s *MemoryStore) CreatePosition(_ context.Context, p model.Position) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.OpenDate = now
	p.LastModified = now
	s.positions[p.ID] = p
	return p.ID, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, id string) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return model.Position{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpdatePosition(_ context.Context, p model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		return ErrNotFound
	}
	p.LastModified = time.Now().UTC()
	s.positions[p.ID] = p
	return nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out, nil
}

func (s *MemoryStore) ListOpenPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.UserID == userID && p.State.AcceptsClose() {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out, nil
}

func (s *MemoryStore) ListOpenPositionsBySymbol(_ context.Context, symbol string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.Symbol == symbol && p.State.AcceptsClose() {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out, nil
}

func sortPositions(ps []model.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].OpenDate.Equal(ps[j].OpenDate) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].OpenDate.Before(ps[j].OpenDate)
	})
}

func (s *MemoryStore) CreateOrder(_ context.Context, o model.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.OpenDate = now
	o.LastModified = now
	s.orders[o.ID] = o
	return o.ID, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return ErrNotFound
	}
	o.LastModified = time.Now().UTC()
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenDate.Before(out[j].OpenDate) })
	return out, nil
}

func (s *MemoryStore) CreateTrade(_ context.Context, t model.Trade) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Time = time.Now().UTC()
	s.trades[t.ID] = t
	return t.ID, nil
}

func (s *MemoryStore) FinalizeTrade(_ context.Context, tradeID string, state types.PositionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[tradeID]
	if !ok {
		return ErrNotFound
	}
	t.PositionState = state
	s.trades[tradeID] = t
	return nil
}

func (s *MemoryStore) CreateHouseTrade(_ context.Context, t model.HouseTrade) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Time = time.Now().UTC()
	s.houseTrades[t.ID] = t
	return t.ID, nil
}

func (s *MemoryStore) ListTradesByPosition(_ context.Context, positionID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Trade
	for _, t := range s.trades {
		if t.PositionID == positionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (s *MemoryStore) ConsumeTicket(_ context.Context, ticketID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.tickets[ticketID]; seen {
		return false, nil
	}
	s.tickets[ticketID] = struct{}{}
	return true, nil
}

func profitabilityKey(userID, symbol string, assetClass types.AssetClass) string {
	return userID + "|" + symbol + "|" + string(assetClass)
}

func (s *MemoryStore) AddProfitability(_ context.Context, userID, symbol string, assetClass types.AssetClass, pnl decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := profitabilityKey(userID, symbol, assetClass)
	row, ok := s.profitability[key]
	if !ok {
		row = &model.Profitability{UserID: userID, Symbol: symbol, AssetClass: assetClass}
		s.profitability[key] = row
	}
	row.PnL = row.PnL.Add(pnl)
	row.Positions++
	return nil
}

func (s *MemoryStore) ListProfitability(_ context.Context, userID string) ([]model.Profitability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Profitability
	for _, row := range s.profitability {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol == out[j].Symbol {
			return out[i].AssetClass < out[j].AssetClass
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}
