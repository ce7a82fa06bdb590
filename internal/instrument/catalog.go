package instrument

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lv-margintrade/internal/types"
)

var ErrNotFound = errors.New("instrument not found")

// Catalog is the read-only instrument lookup the trade core depends on.
type Catalog interface {
	BySymbol(ctx context.Context, symbol string) (Instrument, error)
	List(ctx context.Context) ([]Instrument, error)
}

// MemoryCatalog serves a fixed instrument set. Used in tests and in
// single-process deployments seeded at startup.
type MemoryCatalog struct {
	mu          sync.RWMutex
	instruments map[string]Instrument
}

func NewMemoryCatalog(instruments ...Instrument) *MemoryCatalog {
	c := &MemoryCatalog{instruments: make(map[string]Instrument, len(instruments))}
	for _, in := range instruments {
		c.instruments[strings.ToUpper(in.Symbol)] = in
	}
	return c
}

func (c *MemoryCatalog) Put(in Instrument) {
	c.mu.Lock()
	c.instruments[strings.ToUpper(in.Symbol)] = in
	c.mu.Unlock()
}

func (c *MemoryCatalog) BySymbol(_ context.Context, symbol string) (Instrument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	in, ok := c.instruments[strings.ToUpper(symbol)]
	if !ok {
		return Instrument{}, ErrNotFound
	}
	return in, nil
}

func (c *MemoryCatalog) List(_ context.Context) ([]Instrument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Instrument, 0, len(c.instruments))
	for _, in := range c.instruments {
		out = append(out, in)
	}
	return out, nil
}

// PGCatalog reads instruments from postgres.
type PGCatalog struct {
	pool *pgxpool.Pool
}

func NewPGCatalog(pool *pgxpool.Pool) *PGCatalog {
	return &PGCatalog{pool: pool}
}

const instrumentColumns = `symbol, description, base_asset, quote_currency, quote_precision, asset_class,
	stop_distance_absolute, minimum_stop_distance, slippage_absolute, slippage,
	minimum_margin_absolute, minimum_margin, min_trade_size, trade_size_increment,
	tick_size, display_tick_size, active, tradable, new_positions_allowed, shortable`

func (c *PGCatalog) BySymbol(ctx context.Context, symbol string) (Instrument, error) {
	row := c.pool.QueryRow(ctx, "select "+instrumentColumns+" from instruments where symbol = $1", strings.ToUpper(symbol))
	in, err := scanInstrument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Instrument{}, ErrNotFound
	}
	return in, err
}

func (c *PGCatalog) List(ctx context.Context) ([]Instrument, error) {
	rows, err := c.pool.Query(ctx, "select "+instrumentColumns+" from instruments where active order by symbol")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Instrument
	for rows.Next() {
		in, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanInstrument(row pgx.Row) (Instrument, error) {
	var in Instrument
	var assetClass string
	err := row.Scan(
		&in.Symbol, &in.Description, &in.BaseAsset, &in.QuoteAsset.Code, &in.QuoteAsset.Precision, &assetClass,
		&in.StopDistanceAbsolute, &in.MinimumStopDistance, &in.SlippageAbsolute, &in.Slippage,
		&in.MinimumMarginAbsolute, &in.MinimumMargin, &in.MinTradeSize, &in.TradeSizeIncrement,
		&in.TickSize, &in.DisplayTickSize, &in.Active, &in.Tradable, &in.NewPositionsAllowed, &in.Shortable,
	)
	if err != nil {
		return in, err
	}
	in.AssetClass = types.AssetClass(assetClass)
	return in, nil
}
