package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"nhooyr.io/websocket"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/presence"
	"github.com/iliyamo/table-reservation/internal/reservation"
	"github.com/iliyamo/table-reservation/internal/utils"
)

// Reservations is the part of reservation.Engine the push channel uses.
type Reservations interface {
	Click(ctx context.Context, account model.AccountID, row, col int) (reservation.ClickResult, error)
	Purchase(ctx context.Context, account model.AccountID) (reservation.PurchaseResult, error)
	Release(ctx context.Context, account model.AccountID) (reservation.ReleaseResult, error)
}

// Publisher pushes a fresh snapshot to every live session.
type Publisher interface {
	PublishSnapshot(ctx context.Context) error
}

const readLimit = 4096

// Handler upgrades GET /ws?token=<jwt> requests.
type Handler struct {
	Secret    string
	Registry  *presence.Registry
	Engine    Reservations
	Broadcast Publisher
	// Origins are host patterns accepted besides the request host.
	Origins []string
	// QueueSize, PingEvery and WriteWait tune each client; zero means
	// defaults.
	QueueSize int
	PingEvery time.Duration
	WriteWait time.Duration
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type clickPayload struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Serve runs one connection until the peer goes away or its token
// expires.  An unverifiable token is answered with a policy violation
// close.  When the connection ends while it is still the account's
// current session, the account's holds are released.
func (h *Handler) Serve(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{OriginPatterns: h.Origins})
	if err != nil {
		c.Logger().Warnf("[ws] accept: %v", err)
		return nil
	}
	conn.SetReadLimit(readLimit)

	claims, err := utils.ParseAccessToken(h.Secret, c.QueryParam("token"))
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "invalid token")
		return nil
	}
	account := claims.Account

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newClient(conn, h.QueueSize, h.PingEvery, h.WriteWait)
	session, prev := h.Registry.Register(account, client)
	if prev != nil {
		prev.Close("replaced by new session")
	}
	go client.pump(ctx)
	log.Printf("ws: connected account=%s session=%s", account, session.ID)

	// The token only authorises the session until it expires.
	if claims.ExpiresAt != nil {
		expiry := time.AfterFunc(time.Until(claims.ExpiresAt.Time), func() {
			log.Printf("ws: token expired account=%s session=%s", account, session.ID)
			client.Close("token expired")
		})
		defer expiry.Stop()
	}

	if err := h.Broadcast.PublishSnapshot(ctx); err != nil {
		log.Printf("ws: initial snapshot account=%s: %v", account, err)
	}

	h.readLoop(ctx, conn, client, account)
	client.Close("connection closed")

	if h.Registry.Remove(account, session.ID) {
		rctx, rcancel := context.WithTimeout(context.Background(), 10*time.Second)
		res, err := h.Engine.Release(rctx, account)
		rcancel()
		if err != nil {
			log.Printf("ws: release on disconnect account=%s: %v", account, err)
		} else if len(res.Cells) > 0 {
			log.Printf("ws: released %d cells on disconnect account=%s", len(res.Cells), account)
		}
	}
	log.Printf("ws: disconnected account=%s session=%s", account, session.ID)
	return nil
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, account model.AccountID) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st != websocket.StatusNormalClosure && st != websocket.StatusGoingAway && st != -1 {
				log.Printf("ws: read account=%s: %v", account, err)
			}
			return
		}
		select {
		case <-client.Done():
			// Closed (expired, replaced or dropped): ignore late requests.
			return
		default:
		}
		if err := h.dispatch(ctx, account, data); err != nil {
			if msg, merr := json.Marshal(toErrorMessage(err)); merr == nil {
				if serr := client.Send(msg); serr != nil {
					return
				}
			}
		}
	}
}

var (
	errBadRequest  = errors.New("ws: bad request")
	errUnknownType = errors.New("ws: unknown message type")
)

func (h *Handler) dispatch(ctx context.Context, account model.AccountID, data []byte) error {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return errBadRequest
	}
	switch in.Type {
	case model.MsgClick:
		var p clickPayload
		if len(in.Payload) == 0 || json.Unmarshal(in.Payload, &p) != nil || p.Row == nil || p.Col == nil {
			return errBadRequest
		}
		_, err := h.Engine.Click(ctx, account, *p.Row, *p.Col)
		return err
	case model.MsgPurchase:
		_, err := h.Engine.Purchase(ctx, account)
		return err
	case model.MsgRelease:
		_, err := h.Engine.Release(ctx, account)
		return err
	default:
		return errUnknownType
	}
}

func toErrorMessage(err error) errorMessage {
	m := errorMessage{Type: model.MsgError}
	switch {
	case errors.Is(err, errBadRequest):
		m.Code, m.Message = "bad_request", "malformed message"
	case errors.Is(err, errUnknownType):
		m.Code, m.Message = "unknown_type", "unknown message type"
	case errors.Is(err, reservation.ErrNotFound):
		m.Code, m.Message = "not_found", "no such cell or account"
	case errors.Is(err, reservation.ErrNothingSelected):
		m.Code, m.Message = "nothing_selected", "no held cells to purchase"
	case errors.Is(err, reservation.ErrInsufficientCredits):
		m.Code, m.Message = "insufficient_credits", "not enough standard credits"
	case errors.Is(err, reservation.ErrTransactionConflict):
		m.Code, m.Message = "conflict", "concurrent update, try again"
	default:
		m.Code, m.Message = "internal", "internal error"
	}
	return m
}
