package reservation

import (
    "context"
    "time"

    "github.com/iliyamo/table-reservation/internal/model"
)

// Kind names the operation that produced a commit.
type Kind string

const (
    KindClick    Kind = "click"
    KindPurchase Kind = "purchase"
    KindRelease  Kind = "release"
)

// Commit describes one committed engine transaction.  Cells holds the
// state of the touched cells after the commit.
type Commit struct {
    Kind     Kind
    Account  model.AccountID
    Cells    []model.Cell
    Standard int64 // net change of the account's standard credits
    Special  int64 // net change of the account's special credits
    At       time.Time
}

// Notifier is told about every committed transaction.  It is never
// called for rolled back or no-op operations.  Implementations must not
// block for long; the engine calls them synchronously after commit.
type Notifier interface {
    Committed(ctx context.Context, c Commit)
}

// NotifierFunc adapts an ordinary function to Notifier.
type NotifierFunc func(ctx context.Context, c Commit)

func (f NotifierFunc) Committed(ctx context.Context, c Commit) { f(ctx, c) }

type nopNotifier struct{}

func (nopNotifier) Committed(context.Context, Commit) {}
