package reservation

import (
    "context"
    "errors"
    "fmt"

    "github.com/iliyamo/table-reservation/internal/repository"
)

var (
    // ErrNotFound means the referenced cell or account does not exist.
    ErrNotFound = errors.New("reservation: not found")
    // ErrInvalidTransition is a click on a cell owned by another account.
    // The engine absorbs it; callers never see it.
    ErrInvalidTransition = errors.New("reservation: invalid transition")
    // ErrInsufficientCredits means a purchase costs more than the account holds.
    ErrInsufficientCredits = errors.New("reservation: insufficient credits")
    // ErrNothingSelected means a purchase was requested with no held cells.
    ErrNothingSelected = errors.New("reservation: nothing selected")
    // ErrTransactionConflict means the store aborted the transaction because
    // of a concurrent conflicting write.
    ErrTransactionConflict = errors.New("reservation: transaction conflict")
)

// IsRetryable reports whether err may be resolved by simply re-invoking
// the operation.  Every operation re-reads current state, so a re-run
// after a conflict is safe.
func IsRetryable(err error) bool {
    return errors.Is(err, ErrTransactionConflict)
}

// translate maps store errors onto the engine's taxonomy.  Engine errors
// pass through untouched.
func translate(err error) error {
    switch {
    case err == nil:
        return nil
    case errors.Is(err, ErrNotFound), errors.Is(err, ErrInsufficientCredits),
        errors.Is(err, ErrNothingSelected), errors.Is(err, ErrTransactionConflict):
        return err
    case errors.Is(err, repository.ErrConflict), errors.Is(err, context.DeadlineExceeded):
        return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
    case errors.Is(err, repository.ErrNotFound):
        return fmt.Errorf("%w: %v", ErrNotFound, err)
    }
    return err
}
