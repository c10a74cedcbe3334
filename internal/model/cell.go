package model

// AccountID identifies a household account.  Ledgers, cell owners and
// push-channel subscriptions are all keyed by this value.
type AccountID string

// OccupancyStatus is the lifecycle state of a cell.
type OccupancyStatus string

const (
    StatusFree      OccupancyStatus = "free"      // nobody owns the cell
    StatusHeld      OccupancyStatus = "held"      // claimed with standard credits, not finalised
    StatusPurchased OccupancyStatus = "purchased" // finalised by special credit or bulk purchase
)

// Valid reports whether s is one of the known statuses.
func (s OccupancyStatus) Valid() bool {
    switch s {
    case StatusFree, StatusHeld, StatusPurchased:
        return true
    }
    return false
}

// SeatType describes how many places a claimed cell occupies.
type SeatType string

const (
    SeatSingle SeatType = "S"
    SeatDouble SeatType = "D"
)

// Cell represents one addressable table on the grid.  It mirrors a
// row of the `cells` table.  (Row, Col) is unique.
//
// Fields:
//  ID       – primary key identifier.
//  Row      – zero-based row index.
//  Col      – zero-based column index.
//  Status   – occupancy status (free, held, purchased).
//  SeatType – nil when the cell is free.
//  Owner    – owning account, nil when the cell is free.
//  Label    – display name; assigned once and never changed.
type Cell struct {
    ID       uint64          // cells.id
    Row      int             // cells.row_idx
    Col      int             // cells.col_idx
    Status   OccupancyStatus // cells.status
    SeatType *SeatType       // cells.seat_type (nullable)
    Owner    *AccountID      // cells.owner_account (nullable)
    Label    string          // cells.label
}

// OwnedBy reports whether the cell is currently owned by account.
func (c Cell) OwnedBy(account AccountID) bool {
    return c.Owner != nil && *c.Owner == account
}

// Consistent reports whether owner and seat type agree with the status:
// both are set exactly when the cell is not free.
func (c Cell) Consistent() bool {
    if c.Status == StatusFree {
        return c.Owner == nil && c.SeatType == nil
    }
    return c.Owner != nil && c.SeatType != nil
}

// SeatTypePtr returns a pointer to t; handy for building patches.
func SeatTypePtr(t SeatType) *SeatType { return &t }

// AccountPtr returns a pointer to a.
func AccountPtr(a AccountID) *AccountID { return &a }
