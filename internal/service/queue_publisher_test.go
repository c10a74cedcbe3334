package queue_publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/model"
	q "github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/reservation"
)

func purchase() reservation.Commit {
	return reservation.Commit{
		Kind:    reservation.KindPurchase,
		Account: "casa-1",
		Cells: []model.Cell{
			{Row: 0, Col: 0, Label: "A-01", SeatType: model.SeatTypePtr(model.SeatSingle)},
			{Row: 2, Col: 1, Label: "B-03", SeatType: model.SeatTypePtr(model.SeatDouble)},
		},
		Standard: -3,
		Special:  2,
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEventFrom(t *testing.T) {
	ev := EventFrom(purchase())
	assert.Equal(t, "casa-1", ev.Account)
	assert.Equal(t, int64(3), ev.Cost)
	assert.Equal(t, int64(2), ev.SpecialGain)
	assert.Equal(t, []string{"A-01", "B-03"}, ev.Labels)
	assert.Equal(t, q.Cell{Row: 2, Col: 1, SeatType: "D"}, ev.Cells[1])
	assert.Equal(t, "2026-03-01T12:00:00Z", ev.ConfirmedAt)
}

func TestCommitted_PublishesPurchasesOnly(t *testing.T) {
	got := make(chan []byte, 4)
	p := New("")
	p.send = func(_ context.Context, body []byte) error {
		got <- body
		return nil
	}

	p.Committed(context.Background(), reservation.Commit{Kind: reservation.KindClick, Account: "casa-1"})
	p.Committed(context.Background(), reservation.Commit{Kind: reservation.KindRelease, Account: "casa-1"})
	p.Committed(context.Background(), purchase())

	select {
	case body := <-got:
		var ev q.PurchaseConfirmedEvent
		require.NoError(t, json.Unmarshal(body, &ev))
		assert.Equal(t, "casa-1", ev.Account)
		assert.Len(t, ev.Cells, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("purchase event not published")
	}
	assert.Never(t, func() bool { return len(got) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestCommitted_SendErrorIsSwallowed(t *testing.T) {
	done := make(chan struct{})
	p := New("amqp://nowhere")
	p.send = func(context.Context, []byte) error {
		defer close(done)
		return errors.New("broker down")
	}
	p.Committed(context.Background(), purchase())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send not attempted")
	}
}
