package ws_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/iliyamo/table-reservation/internal/broadcast"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/database/dbtest"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/presence"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/reservation"
	"github.com/iliyamo/table-reservation/internal/utils"
	"github.com/iliyamo/table-reservation/internal/ws"
)

const secret = "ws-secret"

type server struct {
	url     string
	cells   *repository.CellRepo
	ledgers *repository.LedgerRepo
	reg     *presence.Registry
	coord   *broadcast.Coordinator
}

func start(t *testing.T, opts ...func(*ws.Handler)) *server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db := dbtest.Open(t)
	cells := repository.NewCellRepo(db, database.SQLite)
	ledgers := repository.NewLedgerRepo(db, database.SQLite)
	require.NoError(t, cells.BulkInsert(ctx, []model.Cell{
		{Row: 0, Col: 0, Label: "A-01"}, {Row: 0, Col: 1, Label: "B-01"},
		{Row: 1, Col: 0, Label: "A-02"}, {Row: 1, Col: 1, Label: "B-02"},
	}))
	require.NoError(t, repository.WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := ledgers.CreateTx(ctx, tx, model.Ledger{Account: "casa-1", Standard: 2}); err != nil {
			return err
		}
		return ledgers.CreateTx(ctx, tx, model.Ledger{Account: "casa-2", Standard: 1})
	}))

	reg := presence.New()
	coord := broadcast.New(db, cells, ledgers, reg)
	go coord.Run(ctx)
	eng := reservation.New(db, cells, ledgers, reservation.Options{Notifier: coord})

	h := &ws.Handler{Secret: secret, Registry: reg, Engine: eng, Broadcast: coord}
	for _, opt := range opts {
		opt(h)
	}
	e := echo.New()
	e.GET("/ws", h.Serve)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &server{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", cells: cells, ledgers: ledgers, reg: reg, coord: coord}
}

func (s *server) dial(t *testing.T, account model.AccountID) *websocket.Conn {
	t.Helper()
	return s.dialFor(t, account, time.Hour)
}

func (s *server) dialFor(t *testing.T, account model.AccountID, ttl time.Duration) *websocket.Conn {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, 1, account, model.RoleUser, ttl)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, s.url+"?token="+tok.Token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Code    string          `json:"code"`
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var m message
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// until reads messages until one satisfies ok.
func until(t *testing.T, conn *websocket.Conn, ok func(message) bool) message {
	t.Helper()
	for i := 0; i < 20; i++ {
		if m := read(t, conn); ok(m) {
			return m
		}
	}
	t.Fatal("expected message never arrived")
	return message{}
}

func snapshotWhere(t *testing.T, pred func(model.Snapshot) bool) func(message) bool {
	return func(m message) bool {
		if m.Type != model.MsgSnapshot {
			return false
		}
		var snap model.Snapshot
		require.NoError(t, json.Unmarshal(m.Payload, &snap))
		return pred(snap)
	}
}

func cellAt(snap model.Snapshot, row, col int) model.CellView {
	for _, c := range snap.Cells {
		if c.Row == row && c.Col == col {
			return c
		}
	}
	return model.CellView{}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func click(row, col int) any {
	return map[string]any{"type": model.MsgClick, "payload": map[string]int{"row": row, "col": col}}
}

func TestServe_RejectsInvalidToken(t *testing.T) {
	s := start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, s.url+"?token=garbage", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Equal(t, 0, s.reg.Len())
}

func TestServe_SnapshotOnConnectAndAfterClick(t *testing.T) {
	s := start(t)
	conn := s.dial(t, "casa-1")

	first := read(t, conn)
	require.Equal(t, model.MsgSnapshot, first.Type)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	assert.Len(t, snap.Cells, 4)
	assert.Equal(t, int64(2), snap.Balances["casa-1"].StandardCredits)

	send(t, conn, click(0, 1))
	until(t, conn, snapshotWhere(t, func(s model.Snapshot) bool {
		c := cellAt(s, 0, 1)
		return c.OccupancyStatus == model.StatusHeld && c.OwnerAccount != nil && *c.OwnerAccount == "casa-1" &&
			s.Balances["casa-1"].StandardCredits == 1
	}))
}

func TestServe_ErrorsAreReportedToSender(t *testing.T) {
	s := start(t)
	a := s.dial(t, "casa-1")
	read(t, a)

	send(t, a, map[string]string{"type": model.MsgPurchase})
	m := until(t, a, func(m message) bool { return m.Type == model.MsgError })
	assert.Equal(t, "nothing_selected", m.Code)

	send(t, a, map[string]string{"type": "dance"})
	m = until(t, a, func(m message) bool { return m.Type == model.MsgError })
	assert.Equal(t, "unknown_type", m.Code)

	send(t, a, map[string]any{"type": model.MsgClick, "payload": map[string]int{"row": 0}})
	m = until(t, a, func(m message) bool { return m.Type == model.MsgError })
	assert.Equal(t, "bad_request", m.Code)

	send(t, a, click(9, 9))
	m = until(t, a, func(m message) bool { return m.Type == model.MsgError })
	assert.Equal(t, "not_found", m.Code)
}

func TestServe_PurchaseOverChannel(t *testing.T) {
	s := start(t)
	conn := s.dial(t, "casa-1")
	read(t, conn)

	send(t, conn, click(1, 1))
	send(t, conn, map[string]string{"type": model.MsgPurchase})
	until(t, conn, snapshotWhere(t, func(s model.Snapshot) bool {
		return cellAt(s, 1, 1).OccupancyStatus == model.StatusPurchased &&
			s.Balances["casa-1"] == model.Balance{StandardCredits: 0, SpecialCredits: 1}
	}))
}

func TestServe_DisconnectReleasesHolds(t *testing.T) {
	s := start(t)
	conn := s.dial(t, "casa-2")
	read(t, conn)

	send(t, conn, click(0, 0))
	until(t, conn, snapshotWhere(t, func(s model.Snapshot) bool {
		return cellAt(s, 0, 0).OccupancyStatus == model.StatusHeld
	}))
	conn.Close(websocket.StatusNormalClosure, "bye")

	require.Eventually(t, func() bool {
		c, err := s.cells.Get(context.Background(), 0, 0)
		if err != nil || c.Status != model.StatusFree {
			return false
		}
		l, err := s.ledgers.Get(context.Background(), "casa-2")
		return err == nil && l.Standard == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return s.reg.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServe_ReplacedSessionKeepsHolds(t *testing.T) {
	s := start(t)
	old := s.dial(t, "casa-1")
	read(t, old)
	send(t, old, click(0, 0))
	until(t, old, snapshotWhere(t, func(s model.Snapshot) bool {
		return cellAt(s, 0, 0).OccupancyStatus == model.StatusHeld
	}))

	fresh := s.dial(t, "casa-1")
	read(t, fresh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	for err == nil {
		_, _, err = old.Read(ctx)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	assert.Never(t, func() bool {
		c, err := s.cells.Get(context.Background(), 0, 0)
		return err != nil || c.Status != model.StatusHeld
	}, 300*time.Millisecond, 20*time.Millisecond)
	cur, ok := s.reg.Current("casa-1")
	require.True(t, ok)
	assert.Equal(t, 1, s.reg.Len())
	assert.NotEmpty(t, cur.ID)
}

func TestServe_DroppedByBroadcasterReleasesHolds(t *testing.T) {
	s := start(t, func(h *ws.Handler) {
		h.QueueSize = 1
		h.WriteWait = 200 * time.Millisecond
	})
	ctx := context.Background()
	conn := s.dial(t, "casa-2")
	read(t, conn)
	send(t, conn, click(0, 0))
	until(t, conn, snapshotWhere(t, func(s model.Snapshot) bool {
		return cellAt(s, 0, 0).OccupancyStatus == model.StatusHeld
	}))

	// Large snapshots fill the socket quickly once the peer stops reading.
	var extra []model.Cell
	for r := 10; r < 70; r++ {
		for c := 0; c < 50; c++ {
			extra = append(extra, model.Cell{Row: r, Col: c, Label: "filler-label"})
		}
	}
	require.NoError(t, s.cells.BulkInsert(ctx, extra))

	// The client never reads again; keep publishing until the broadcaster
	// gives up on it and its close path frees the hold.
	require.Eventually(t, func() bool {
		_ = s.coord.PublishSnapshot(ctx)
		c, err := s.cells.Get(ctx, 0, 0)
		if err != nil || c.Status != model.StatusFree {
			return false
		}
		l, err := s.ledgers.Get(ctx, "casa-2")
		return err == nil && l.Standard == 1
	}, 20*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return s.reg.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServe_ClosesWhenTokenExpires(t *testing.T) {
	s := start(t)
	conn := s.dialFor(t, "casa-1", 2*time.Second)
	read(t, conn)
	send(t, conn, click(1, 0))
	until(t, conn, snapshotWhere(t, func(s model.Snapshot) bool {
		return cellAt(s, 1, 0).OccupancyStatus == model.StatusHeld
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	for err == nil {
		_, _, err = conn.Read(ctx)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	// An expired session ends like any disconnect: holds go back.
	require.Eventually(t, func() bool {
		c, err := s.cells.Get(context.Background(), 1, 0)
		return err == nil && c.Status == model.StatusFree
	}, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return s.reg.Len() == 0 }, time.Second, 10*time.Millisecond)
}
