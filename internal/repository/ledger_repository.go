package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/model"
)

// LedgerRepo provides data access to the `ledgers` table (the ledger
// store).  Balances never go negative: increments are guarded in SQL and
// the schema carries a CHECK constraint as a second line.
type LedgerRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewLedgerRepo returns a new LedgerRepo bound to the provided database.
func NewLedgerRepo(db *sql.DB, d database.Dialect) *LedgerRepo {
	return &LedgerRepo{db: db, dialect: d}
}

// Get fetches the ledger of account.
func (r *LedgerRepo) Get(ctx context.Context, account model.AccountID) (model.Ledger, error) {
	return r.get(ctx, r.db, account, "")
}

// GetTx fetches the ledger through tx and locks it until the transaction
// ends.
func (r *LedgerRepo) GetTx(ctx context.Context, tx *sql.Tx, account model.AccountID) (model.Ledger, error) {
	return r.get(ctx, tx, account, r.dialect.LockSuffix())
}

func (r *LedgerRepo) get(ctx context.Context, q queryer, account model.AccountID, lock string) (model.Ledger, error) {
	l := model.Ledger{Account: account}
	err := q.QueryRowContext(ctx,
		"SELECT standard_credits, special_credits FROM ledgers WHERE account_id = ? LIMIT 1"+lock,
		string(account)).Scan(&l.Standard, &l.Special)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ledger{}, ErrNotFound
	}
	if err != nil {
		return model.Ledger{}, Classify(err)
	}
	return l, nil
}

// CreateTx inserts the starting ledger of a new account.
func (r *LedgerRepo) CreateTx(ctx context.Context, tx *sql.Tx, l model.Ledger) error {
	if l.Standard < 0 || l.Special < 0 {
		return ErrNegativeBalance
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO ledgers (account_id, standard_credits, special_credits) VALUES (?, ?, ?)",
		string(l.Account), l.Standard, l.Special)
	if err != nil {
		if isDuplicate(err) {
			return ErrAccountExists
		}
		return Classify(err)
	}
	return nil
}

// IncrementTx adds the deltas to the account's counters inside the
// caller's transaction.  The update only applies when both resulting
// values stay non-negative; otherwise ErrNegativeBalance is returned and
// the caller must abort.  Values are never clamped.
func (r *LedgerRepo) IncrementTx(ctx context.Context, tx *sql.Tx, account model.AccountID, standardDelta, specialDelta int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE ledgers
		    SET standard_credits = standard_credits + ?, special_credits = special_credits + ?
		  WHERE account_id = ? AND standard_credits + ? >= 0 AND special_credits + ? >= 0`,
		standardDelta, specialDelta, string(account), standardDelta, specialDelta)
	if err != nil {
		return Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	// Zero rows: either the account is missing or the guard rejected it.
	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM ledgers WHERE account_id = ?", string(account)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return Classify(err)
	}
	return fmt.Errorf("%w: account %s standard%+d special%+d", ErrNegativeBalance, account, standardDelta, specialDelta)
}

// ListBalances returns the balances of every account keyed by account.
func (r *LedgerRepo) ListBalances(ctx context.Context) (map[model.AccountID]model.Balance, error) {
	return r.listBalances(ctx, r.db)
}

// ListBalancesTx is like ListBalances but reads through tx.
func (r *LedgerRepo) ListBalancesTx(ctx context.Context, tx *sql.Tx) (map[model.AccountID]model.Balance, error) {
	return r.listBalances(ctx, tx)
}

func (r *LedgerRepo) listBalances(ctx context.Context, q queryer) (map[model.AccountID]model.Balance, error) {
	rows, err := q.QueryContext(ctx, "SELECT account_id, standard_credits, special_credits FROM ledgers")
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()
	out := map[model.AccountID]model.Balance{}
	for rows.Next() {
		var (
			acc string
			b   model.Balance
		)
		if err := rows.Scan(&acc, &b.StandardCredits, &b.SpecialCredits); err != nil {
			return nil, err
		}
		out[model.AccountID(acc)] = b
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(err)
	}
	return out, nil
}
