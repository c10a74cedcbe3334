// Package queue defines message payloads exchanged over the message broker.
package queue

// PurchaseConfirmedQueue is the durable queue purchase events go to.
const PurchaseConfirmedQueue = "purchase.confirmed"

// PurchaseConfirmedEvent is published after a purchase commits.  It
// carries enough for downstream consumers to log or notify without
// querying the primary database.
type PurchaseConfirmedEvent struct {
    Account     string   `json:"account"`
    Cells       []Cell   `json:"cells"`
    Labels      []string `json:"labels"`
    Cost        int64    `json:"cost"`
    SpecialGain int64    `json:"special_gain"`
    ConfirmedAt string   `json:"confirmed_at"`
}

// Cell is one purchased position.
type Cell struct {
    Row      int    `json:"row"`
    Col      int    `json:"col"`
    SeatType string `json:"seat_type"`
}
