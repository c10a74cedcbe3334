// Package reservation applies the click, purchase and release rules to
// the grid and ledger stores.  It is the only code that writes cells and
// ledgers after initialisation.  Every operation runs in one database
// transaction that re-reads current state before deciding, so re-running
// an operation after a conflict is always safe.  The engine itself never
// retries.
package reservation

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/table-reservation/internal/model"
    "github.com/iliyamo/table-reservation/internal/repository"
)

// Options configures an Engine.  Zero values fall back to DefaultPolicy,
// a notifier that drops events and a five second transaction timeout.
type Options struct {
    Policy    *Policy
    Notifier  Notifier
    TxTimeout time.Duration
}

// Engine executes reservation operations.
type Engine struct {
    db       *sql.DB
    cells    *repository.CellRepo
    ledgers  *repository.LedgerRepo
    policy   Policy
    notifier Notifier
    timeout  time.Duration
}

// New constructs an Engine over the given stores.
func New(db *sql.DB, cells *repository.CellRepo, ledgers *repository.LedgerRepo, opts Options) *Engine {
    e := &Engine{db: db, cells: cells, ledgers: ledgers, policy: DefaultPolicy(), notifier: nopNotifier{}, timeout: 5 * time.Second}
    if opts.Policy != nil {
        e.policy = *opts.Policy
    }
    if opts.Notifier != nil {
        e.notifier = opts.Notifier
    }
    if opts.TxTimeout > 0 {
        e.timeout = opts.TxTimeout
    }
    return e
}

// Policy returns the credit rules in effect.
func (e *Engine) Policy() Policy { return e.policy }

// ClickResult reports the outcome of a click.  Changed is false when the
// click was ignored (no credits, or the cell belongs to someone else).
type ClickResult struct {
    Changed bool
    Cell    model.Cell
    Ledger  model.Ledger
}

// PurchaseResult reports a committed bulk purchase.
type PurchaseResult struct {
    Cells  []model.Cell
    Cost   int64
    Gain   int64
    Ledger model.Ledger
}

// ReleaseResult reports a release.  Cells is empty when nothing was held.
type ReleaseResult struct {
    Cells  []model.Cell
    Refund int64
    Ledger model.Ledger
}

// run executes fn in a transaction bounded by the engine timeout and maps
// store errors onto the engine taxonomy.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
    ctx, cancel := context.WithTimeout(ctx, e.timeout)
    defer cancel()
    return translate(repository.WithTx(ctx, e.db, func(tx *sql.Tx) error {
        return fn(ctx, tx)
    }))
}

func (e *Engine) notify(ctx context.Context, c Commit) {
    c.At = time.Now().UTC()
    e.notifier.Committed(ctx, c)
}

// Click applies the click table to cell (row, col) on behalf of account.
//
//  free, special >= 1        -> purchased/single, special -1
//  free, standard >= 1       -> held/single, standard -1
//  free, no credits          -> unchanged
//  held by account           -> free, standard + refund(seat type)
//  purchased by account      -> free, special +1
//  owned by another account  -> unchanged
//
// With Policy.DoubleToggle a held single owned by account is upgraded to
// a held double while the account still has a standard credit.
func (e *Engine) Click(ctx context.Context, account model.AccountID, row, col int) (ClickResult, error) {
    var res ClickResult
    var std, spec int64
    err := e.run(ctx, func(ctx context.Context, tx *sql.Tx) error {
        cur, err := e.cells.GetTx(ctx, tx, row, col)
        if err != nil {
            return err
        }
        led, err := e.ledgers.GetTx(ctx, tx, account)
        if err != nil {
            return err
        }
        res = ClickResult{Cell: cur, Ledger: led}

        t, err := e.policy.decide(cur, account, led)
        if errors.Is(err, ErrInvalidTransition) || t.patch == nil {
            return nil
        }
        patch := repository.FreePatch()
        if t.patch.status != model.StatusFree {
            patch = repository.ClaimPatch(t.patch.status, t.patch.seat, account)
        }
        if err := e.cells.CompareAndSetTx(ctx, tx, cur, patch); err != nil {
            return err
        }
        if err := e.ledgers.IncrementTx(ctx, tx, account, t.standard, t.special); err != nil {
            if errors.Is(err, repository.ErrNegativeBalance) {
                // The balance moved between our read and the write.
                return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
            }
            return err
        }
        if res.Cell, err = e.cells.GetTx(ctx, tx, row, col); err != nil {
            return err
        }
        if res.Ledger, err = e.ledgers.GetTx(ctx, tx, account); err != nil {
            return err
        }
        res.Changed = true
        std, spec = t.standard, t.special
        return nil
    })
    if err != nil {
        return ClickResult{}, err
    }
    if res.Changed {
        e.notify(ctx, Commit{Kind: KindClick, Account: account, Cells: []model.Cell{res.Cell}, Standard: std, Special: spec})
    }
    return res, nil
}

// heldBy lists (and on MySQL locks) the cells account currently holds.
func (e *Engine) heldBy(ctx context.Context, tx *sql.Tx, account model.AccountID) ([]model.Cell, error) {
    held := model.StatusHeld
    return e.cells.ListTx(ctx, tx, repository.CellFilter{Owner: &account, Status: &held})
}

// moveHeld applies patch to exactly the given held cells of account.  A
// short count means a concurrent writer changed one of them.
func (e *Engine) moveHeld(ctx context.Context, tx *sql.Tx, account model.AccountID, cells []model.Cell, patch repository.CellPatch) error {
    ids := make([]uint64, len(cells))
    for i, c := range cells {
        ids[i] = c.ID
    }
    held := model.StatusHeld
    n, err := e.cells.UpdateManyTx(ctx, tx, repository.CellFilter{Owner: &account, Status: &held, IDs: ids}, patch)
    if err != nil {
        return err
    }
    if n != int64(len(ids)) {
        return fmt.Errorf("%w: %d of %d held cells changed", ErrTransactionConflict, n, len(ids))
    }
    return nil
}

// Purchase converts every cell held by account to purchased.  The
// account pays the summed seat price in standard credits and gains
// Policy.SpecialGain special credits per cell.
func (e *Engine) Purchase(ctx context.Context, account model.AccountID) (PurchaseResult, error) {
    var res PurchaseResult
    err := e.run(ctx, func(ctx context.Context, tx *sql.Tx) error {
        held, err := e.heldBy(ctx, tx, account)
        if err != nil {
            return err
        }
        if len(held) == 0 {
            return ErrNothingSelected
        }
        led, err := e.ledgers.GetTx(ctx, tx, account)
        if err != nil {
            return err
        }
        var cost int64
        for _, c := range held {
            cost += e.policy.price(c.SeatType)
        }
        gain := e.policy.SpecialGain * int64(len(held))
        if led.Standard < cost {
            return fmt.Errorf("%w: cost %d, standard %d", ErrInsufficientCredits, cost, led.Standard)
        }
        if err := e.moveHeld(ctx, tx, account, held, repository.CellPatch{Status: model.StatusPurchased}); err != nil {
            return err
        }
        if err := e.ledgers.IncrementTx(ctx, tx, account, -cost, gain); err != nil {
            if errors.Is(err, repository.ErrNegativeBalance) {
                return fmt.Errorf("%w: %v", ErrInsufficientCredits, err)
            }
            return err
        }
        for i := range held {
            held[i].Status = model.StatusPurchased
        }
        if led, err = e.ledgers.GetTx(ctx, tx, account); err != nil {
            return err
        }
        res = PurchaseResult{Cells: held, Cost: cost, Gain: gain, Ledger: led}
        return nil
    })
    if err != nil {
        return PurchaseResult{}, err
    }
    e.notify(ctx, Commit{Kind: KindPurchase, Account: account, Cells: res.Cells, Standard: -res.Cost, Special: res.Gain})
    return res, nil
}

// Release frees every cell account holds and refunds what the holds
// cost.  Purchased cells are never touched.  A second call finds nothing
// and commits nothing.
func (e *Engine) Release(ctx context.Context, account model.AccountID) (ReleaseResult, error) {
    var res ReleaseResult
    err := e.run(ctx, func(ctx context.Context, tx *sql.Tx) error {
        held, err := e.heldBy(ctx, tx, account)
        if err != nil || len(held) == 0 {
            return err
        }
        var refund int64
        for _, c := range held {
            refund += e.policy.refund(c.SeatType)
        }
        if err := e.moveHeld(ctx, tx, account, held, repository.FreePatch()); err != nil {
            return err
        }
        if err := e.ledgers.IncrementTx(ctx, tx, account, refund, 0); err != nil {
            return err
        }
        led, err := e.ledgers.GetTx(ctx, tx, account)
        if err != nil {
            return err
        }
        for i := range held {
            held[i].Status = model.StatusFree
            held[i].Owner = nil
            held[i].SeatType = nil
        }
        res = ReleaseResult{Cells: held, Refund: refund, Ledger: led}
        return nil
    })
    if err != nil {
        return ReleaseResult{}, err
    }
    if len(res.Cells) > 0 {
        e.notify(ctx, Commit{Kind: KindRelease, Account: account, Cells: res.Cells, Standard: res.Refund})
    }
    return res, nil
}
