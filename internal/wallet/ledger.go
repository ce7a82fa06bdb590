package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"lv-margintrade/internal/currency"
	"lv-margintrade/internal/types"
)

// Ledger is the postgres wallet. Every margin reservation, release and PnL
// application is a double-entry transfer between hash-chained ledger entries,
// so the collateral trail can be audited and verified after the fact.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) GetUsefulBalance(ctx context.Context, userID string, cur currency.Currency) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := l.pool.QueryRow(ctx, `
		select coalesce(sum(le.amount), 0)
		from accounts a
		left join ledger_entries le on le.account_id = a.id
		where a.owner_user_id = $1 and a.currency = $2 and a.kind = $3`,
		userID, cur.Code, string(types.AccountKindAvailable)).Scan(&sum)
	return sum, err
}

func (l *Ledger) ListBalances(ctx context.Context, userID string) ([]Balance, error) {
	rows, err := l.pool.Query(ctx, `
		select a.currency,
		       coalesce(sum(le.amount) filter (where a.kind = 'available'), 0),
		       coalesce(sum(le.amount) filter (where a.kind = 'reserved'), 0)
		from accounts a
		left join ledger_entries le on le.account_id = a.id
		where a.owner_type = 'user' and a.owner_user_id = $1
		group by a.currency
		order by a.currency`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.Currency, &b.Available, &b.Reserved); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Deposit credits a user's available account from the house account.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount decimal.Decimal, cur currency.Currency) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("deposit amount must be positive")
	}
	return l.inTx(ctx, func(tx pgx.Tx) error {
		available, err := l.ensureAccount(ctx, tx, userID, cur.Code, types.AccountKindAvailable)
		if err != nil {
			return err
		}
		house, err := l.ensureHouseAccount(ctx, tx, cur.Code)
		if err != nil {
			return err
		}
		return l.transfer(ctx, tx, house, available, amount, types.LedgerEntryTypeDeposit, Ref{})
	})
}

func (l *Ledger) ReserveMargin(ctx context.Context, userID string, amount decimal.Decimal, cur currency.Currency, ref Ref) error {
	if amount.IsZero() {
		return nil
	}
	return l.inTx(ctx, func(tx pgx.Tx) error {
		available, err := l.ensureAccount(ctx, tx, userID, cur.Code, types.AccountKindAvailable)
		if err != nil {
			return err
		}
		reserved, err := l.ensureAccount(ctx, tx, userID, cur.Code, types.AccountKindReserved)
		if err != nil {
			return err
		}
		balance, err := accountBalance(ctx, tx, available)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return ErrOverdraft
		}
		return l.transfer(ctx, tx, available, reserved, amount, types.LedgerEntryTypeReserve, ref)
	})
}

func (l *Ledger) ReleaseMargin(ctx context.Context, userID string, amount decimal.Decimal, cur currency.Currency, ref Ref) error {
	if amount.IsZero() {
		return nil
	}
	return l.inTx(ctx, func(tx pgx.Tx) error {
		available, err := l.ensureAccount(ctx, tx, userID, cur.Code, types.AccountKindAvailable)
		if err != nil {
			return err
		}
		reserved, err := l.ensureAccount(ctx, tx, userID, cur.Code, types.AccountKindReserved)
		if err != nil {
			return err
		}
		return l.transfer(ctx, tx, reserved, available, amount, types.LedgerEntryTypeRelease, ref)
	})
}

// ApplyPnL settles realized PnL against the house account: a profit moves
// cash house -> user, a loss user -> house.
func (l *Ledger) ApplyPnL(ctx context.Context, userID string, amount decimal.Decimal, cur currency.Currency, ref Ref) error {
	if amount.IsZero() {
		return nil
	}
	return l.inTx(ctx, func(tx pgx.Tx) error {
		available, err := l.ensureAccount(ctx, tx, userID, cur.Code, types.AccountKindAvailable)
		if err != nil {
			return err
		}
		house, err := l.ensureHouseAccount(ctx, tx, cur.Code)
		if err != nil {
			return err
		}
		if amount.IsPositive() {
			return l.transfer(ctx, tx, house, available, amount, types.LedgerEntryTypePnL, ref)
		}
		return l.transfer(ctx, tx, available, house, amount.Neg(), types.LedgerEntryTypePnL, ref)
	})
}

func (l *Ledger) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *Ledger) ensureAccount(ctx context.Context, tx pgx.Tx, userID, code string, kind types.AccountKind) (string, error) {
	var id string
	err := tx.QueryRow(ctx, "select id from accounts where owner_type = 'user' and owner_user_id = $1 and currency = $2 and kind = $3", userID, code, string(kind)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = tx.QueryRow(ctx, "insert into accounts (owner_type, owner_user_id, currency, kind) values ('user', $1, $2, $3) returning id", userID, code, string(kind)).Scan(&id)
	return id, err
}

func (l *Ledger) ensureHouseAccount(ctx context.Context, tx pgx.Tx, code string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, "select id from accounts where owner_type = 'house' and owner_user_id is null and currency = $1 and kind = $2", code, string(types.AccountKindAvailable)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = tx.QueryRow(ctx, "insert into accounts (owner_type, owner_user_id, currency, kind) values ('house', null, $1, $2) returning id", code, string(types.AccountKindAvailable)).Scan(&id)
	return id, err
}

func accountBalance(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.QueryRow(ctx, "select coalesce(sum(amount), 0) from ledger_entries where account_id = $1", accountID).Scan(&sum)
	return sum, err
}

func (l *Ledger) transfer(ctx context.Context, tx pgx.Tx, fromAccountID, toAccountID string, amount decimal.Decimal, entryType types.LedgerEntryType, ref Ref) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("transfer amount must be positive")
	}
	var txID string
	err := tx.QueryRow(ctx, "insert into ledger_txs (position_id, trade_id, created_at) values (nullif($1,''), nullif($2,''), $3) returning id",
		ref.PositionID, ref.TradeID, time.Now().UTC()).Scan(&txID)
	if err != nil {
		return err
	}
	if err := appendEntry(ctx, tx, txID, fromAccountID, amount.Neg(), entryType); err != nil {
		return err
	}
	return appendEntry(ctx, tx, txID, toAccountID, amount, entryType)
}

func appendEntry(ctx context.Context, tx pgx.Tx, txID, accountID string, amount decimal.Decimal, entryType types.LedgerEntryType) error {
	// Entries hash-chain over a single serialized sequence.
	if _, err := tx.Exec(ctx, "select pg_advisory_xact_lock(1)"); err != nil {
		return err
	}
	var prevHash *string
	err := tx.QueryRow(ctx, "select encode(hash, 'hex') from ledger_entries order by sequence desc limit 1").Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var entryID string
	var seq int64
	err = tx.QueryRow(ctx, "insert into ledger_entries (tx_id, account_id, amount, entry_type, prev_hash, created_at) values ($1, $2, $3, $4, decode(nullif($5,''), 'hex'), $6) returning id, sequence",
		txID, accountID, amount, string(entryType), deref(prevHash), time.Now().UTC()).Scan(&entryID, &seq)
	if err != nil {
		return err
	}
	hash := entryHash(entryID, txID, accountID, amount, entryType, seq, prevHash)
	_, err = tx.Exec(ctx, "update ledger_entries set hash = decode($1, 'hex') where id = $2", hash, entryID)
	return err
}

func entryHash(entryID, txID, accountID string, amount decimal.Decimal, entryType types.LedgerEntryType, seq int64, prevHash *string) string {
	buf := entryID + "|" + txID + "|" + accountID + "|" + amount.String() + "|" + string(entryType) + "|" + strconv.FormatInt(seq, 10) + "|"
	if prevHash != nil {
		buf += *prevHash
	}
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
