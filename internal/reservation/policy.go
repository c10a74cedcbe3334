package reservation

import "github.com/iliyamo/table-reservation/internal/model"

// Policy holds the credit rules applied by the engine.
//
// Fields:
//  Price        – standard credits charged per cell at bulk purchase.
//  Refund       – standard credits returned when a held cell is freed;
//                 matches what was spent to build the hold.
//  SpecialGain  – special credits granted per purchased cell.  It is a
//                 flat constant and deliberately not derived from Price.
//  DoubleToggle – when set, an owner's click on a held single upgrades it
//                 to a double (one more standard credit) instead of
//                 freeing it; a click on a held double frees it.
type Policy struct {
    Price        map[model.SeatType]int64
    Refund       map[model.SeatType]int64
    SpecialGain  int64
    DoubleToggle bool
}

// DefaultPolicy returns single=1, double=2 for both price and refund
// with one special credit gained per purchased cell.
func DefaultPolicy() Policy {
    return Policy{
        Price:       map[model.SeatType]int64{model.SeatSingle: 1, model.SeatDouble: 2},
        Refund:      map[model.SeatType]int64{model.SeatSingle: 1, model.SeatDouble: 2},
        SpecialGain: 1,
    }
}

func (p Policy) price(t *model.SeatType) int64 {
    if t == nil {
        return 0
    }
    return p.Price[*t]
}

func (p Policy) refund(t *model.SeatType) int64 {
    if t == nil {
        return 0
    }
    return p.Refund[*t]
}

// transition is the outcome of evaluating one click.
type transition struct {
    patch    *cellPatch
    standard int64
    special  int64
}

type cellPatch struct {
    status model.OccupancyStatus
    seat   model.SeatType // empty means the cell is freed
}

// decide evaluates the click table for cell c and account a holding l.
// A nil patch means the click leaves everything unchanged.  Clicks on
// cells owned by another account return ErrInvalidTransition.
func (p Policy) decide(c model.Cell, a model.AccountID, l model.Ledger) (transition, error) {
    switch {
    case c.Status == model.StatusFree:
        switch {
        case l.Special >= 1:
            return transition{patch: &cellPatch{model.StatusPurchased, model.SeatSingle}, special: -1}, nil
        case l.Standard >= 1:
            return transition{patch: &cellPatch{model.StatusHeld, model.SeatSingle}, standard: -1}, nil
        }
        return transition{}, nil
    case !c.OwnedBy(a):
        return transition{}, ErrInvalidTransition
    case c.Status == model.StatusHeld:
        if p.DoubleToggle && c.SeatType != nil && *c.SeatType == model.SeatSingle && l.Standard >= 1 {
            return transition{patch: &cellPatch{model.StatusHeld, model.SeatDouble}, standard: -1}, nil
        }
        return transition{patch: &cellPatch{status: model.StatusFree}, standard: p.refund(c.SeatType)}, nil
    case c.Status == model.StatusPurchased:
        return transition{patch: &cellPatch{status: model.StatusFree}, special: 1}, nil
    }
    return transition{}, ErrInvalidTransition
}
