package model

// CellView is the wire form of a cell inside a snapshot.
type CellView struct {
    Row             int             `json:"row"`
    Col             int             `json:"col"`
    OccupancyStatus OccupancyStatus `json:"occupancyStatus"`
    SeatType        *SeatType       `json:"seatType"`
    OwnerAccount    *AccountID      `json:"ownerAccount"`
    Label           string          `json:"label"`
}

// ViewOf converts a stored cell to its wire form.
func ViewOf(c Cell) CellView {
    return CellView{
        Row:             c.Row,
        Col:             c.Col,
        OccupancyStatus: c.Status,
        SeatType:        c.SeatType,
        OwnerAccount:    c.Owner,
        Label:           c.Label,
    }
}

// Snapshot is the full grid plus every account balance.
type Snapshot struct {
    Cells    []CellView            `json:"cells"`
    Balances map[AccountID]Balance `json:"balances"`
}

// Envelope wraps every message pushed to or received from a client.
type Envelope struct {
    Type    string `json:"type"`
    Payload any    `json:"payload,omitempty"`
}

// Message types exchanged over the push channel.
const (
    MsgSnapshot = "snapshot"
    MsgError    = "error"
    MsgClick    = "click"
    MsgPurchase = "purchase"
    MsgRelease  = "release"
)
