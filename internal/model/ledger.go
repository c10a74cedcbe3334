package model

// Ledger holds the two independent credit counters of an account.
// Both counters are never negative.  Rows live in the `ledgers` table.
//
// Fields:
//  Account  – owning household account.
//  Standard – primary spend unit, refundable on release.
//  Special  – secondary unit allowing direct purchase.
type Ledger struct {
    Account  AccountID // ledgers.account_id
    Standard int64     // ledgers.standard_credits
    Special  int64     // ledgers.special_credits
}

// Balance is the public view of a ledger as sent in snapshots.
type Balance struct {
    StandardCredits int64 `json:"standardCredits"`
    SpecialCredits  int64 `json:"specialCredits"`
}

// Balance returns the public view of l.
func (l Ledger) Balance() Balance {
    return Balance{StandardCredits: l.Standard, SpecialCredits: l.Special}
}
