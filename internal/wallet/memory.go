package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"lv-margintrade/internal/currency"
)

type balance struct {
	available decimal.Decimal
	reserved  decimal.Decimal
}

// Memory is an in-process wallet keyed by user and currency. It backs tests
// and the immediate-confirmation setup; the production path uses the
// ledger-backed implementation.
type Memory struct {
	mu       sync.Mutex
	balances map[string]*balance
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[string]*balance)}
}

func key(userID, code string) string {
	return userID + "/" + code
}

func (m *Memory) get(userID string, cur currency.Currency) *balance {
	b, ok := m.balances[key(userID, cur.Code)]
	if !ok {
		b = &balance{}
		m.balances[key(userID, cur.Code)] = b
	}
	return b
}

// Deposit adds free balance. Test and seeding helper.
func (m *Memory) Deposit(_ context.Context, userID string, amount decimal.Decimal, cur currency.Currency) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("deposit amount must be positive, got %s", amount)
	}
	m.mu.Lock()
	b := m.get(userID, cur)
	b.available = b.available.Add(amount)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListBalances(_ context.Context, userID string) ([]Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Balance
	prefix := userID + "/"
	for k, b := range m.balances {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, Balance{Currency: k[len(prefix):], Available: b.available, Reserved: b.reserved})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (m *Memory) GetUsefulBalance(_ context.Context, userID string, cur currency.Currency) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(userID, cur).available, nil
}

// ReservedBalance is a test helper exposing the reserved side.
func (m *Memory) ReservedBalance(userID string, cur currency.Currency) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(userID, cur).reserved
}

func (m *Memory) ReserveMargin(_ context.Context, userID string, amount decimal.Decimal, cur currency.Currency, _ Ref) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative reserve amount %s", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.get(userID, cur)
	if b.available.LessThan(amount) {
		return ErrOverdraft
	}
	b.available = b.available.Sub(amount)
	b.reserved = b.reserved.Add(amount)
	return nil
}

func (m *Memory) ReleaseMargin(_ context.Context, userID string, amount decimal.Decimal, cur currency.Currency, _ Ref) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative release amount %s", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.get(userID, cur)
	if b.reserved.LessThan(amount) {
		return fmt.Errorf("release %s exceeds reserved %s", amount, b.reserved)
	}
	b.reserved = b.reserved.Sub(amount)
	b.available = b.available.Add(amount)
	return nil
}

func (m *Memory) ApplyPnL(_ context.Context, userID string, amount decimal.Decimal, cur currency.Currency, _ Ref) error {
	m.mu.Lock()
	b := m.get(userID, cur)
	b.available = b.available.Add(amount)
	m.mu.Unlock()
	return nil
}
