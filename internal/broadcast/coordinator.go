// Package broadcast keeps every connected client in sync.  After each
// committed reservation transaction it reads a consistent snapshot of
// the grid and all balances and pushes it to every live session.
package broadcast

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/presence"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/reservation"
)

// Coordinator assembles snapshots and fans them out to the presence
// registry.  It implements reservation.Notifier: commits only schedule a
// publish, which Run performs, so bursts of commits coalesce into one
// snapshot.
type Coordinator struct {
	db      *sql.DB
	cells   *repository.CellRepo
	ledgers *repository.LedgerRepo
	reg     *presence.Registry
	trigger chan struct{}

	// pubMu spans read and fan-out so snapshots reach every channel in
	// the order they were read.
	pubMu sync.Mutex
}

// New builds a Coordinator.  Call Run in its own goroutine.
func New(db *sql.DB, cells *repository.CellRepo, ledgers *repository.LedgerRepo, reg *presence.Registry) *Coordinator {
	return &Coordinator{db: db, cells: cells, ledgers: ledgers, reg: reg, trigger: make(chan struct{}, 1)}
}

// Snapshot reads all cells and balances inside one transaction.
func (c *Coordinator) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := repository.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		cells, err := c.cells.ListAllTx(ctx, tx)
		if err != nil {
			return err
		}
		balances, err := c.ledgers.ListBalancesTx(ctx, tx)
		if err != nil {
			return err
		}
		snap.Cells = make([]model.CellView, len(cells))
		for i, cell := range cells {
			snap.Cells[i] = model.ViewOf(cell)
		}
		snap.Balances = balances
		return nil
	})
	return snap, err
}

// PublishSnapshot sends one fresh snapshot to every live session.  A
// failed send only closes that channel; unregistering it and releasing
// its holds is left to the channel's own close path.  Send failures never
// stop delivery to the others and are not reported.  Only a failure to
// read the snapshot is returned.  Concurrent calls are serialised, so a
// channel never receives an older snapshot after a newer one.
func (c *Coordinator) PublishSnapshot(ctx context.Context) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	snap, err := c.Snapshot(ctx)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(model.Envelope{Type: model.MsgSnapshot, Payload: snap})
	if err != nil {
		return err
	}
	c.reg.ForEach(func(s presence.Session) {
		if err := s.Channel.Send(msg); err != nil {
			log.Printf("broadcast: drop session account=%s session=%s: %v", s.Account, s.ID, err)
			s.Channel.Close("send failed")
		}
	})
	return nil
}

// Trigger schedules a publish without blocking.  Triggers that arrive
// while one is already pending are merged.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Committed implements reservation.Notifier.
func (c *Coordinator) Committed(_ context.Context, _ reservation.Commit) {
	c.Trigger()
}

// Run publishes a snapshot for every trigger until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.trigger:
			if err := c.PublishSnapshot(ctx); err != nil && ctx.Err() == nil {
				log.Printf("broadcast: publish snapshot: %v", err)
			}
		}
	}
}

// Notifiers fans one commit out to several notifiers in order.
type Notifiers []reservation.Notifier

func (ns Notifiers) Committed(ctx context.Context, commit reservation.Commit) {
	for _, n := range ns {
		if n != nil {
			n.Committed(ctx, commit)
		}
	}
}
