// Package ws serves the push channel over WebSocket.  Each connection is
// registered with the presence registry, receives a snapshot after every
// committed reservation and sends click, purchase and release requests.
package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

var (
	ErrClientClosed = errors.New("ws: client closed")
	ErrClientSlow   = errors.New("ws: send queue full")
)

const (
	defaultQueue = 16
	writeWait    = 5 * time.Second
	pingEvery    = 30 * time.Second
)

// Client is the outbound half of one WebSocket connection.  Messages are
// queued by Send and written by a single writer goroutine (see pump), so
// a slow peer never blocks the broadcaster.  It implements
// presence.Channel.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	once   sync.Once
	mu     sync.Mutex
	reason string

	pingEvery time.Duration
	writeWait time.Duration
}

func newClient(conn *websocket.Conn, queue int, ping, write time.Duration) *Client {
	if queue <= 0 {
		queue = defaultQueue
	}
	if ping <= 0 {
		ping = pingEvery
	}
	if write <= 0 {
		write = writeWait
	}
	return &Client{
		conn:      conn,
		send:      make(chan []byte, queue),
		done:      make(chan struct{}),
		pingEvery: ping,
		writeWait: write,
	}
}

// Send queues msg.  It fails when the client is closed or its queue is
// full; in both cases nothing more will be delivered.
func (c *Client) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrClientSlow
	}
}

// Close asks the writer to terminate the connection with a policy
// violation status carrying reason.  Only the first call counts.
func (c *Client) Close(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} { return c.done }

// pump writes queued messages and pings the peer until the client is
// closed, a write fails or ctx ends.  It owns closing the connection.
func (c *Client) pump(ctx context.Context) {
	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close("connection finished")
			c.conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-c.done:
			c.conn.Close(websocket.StatusPolicyViolation, c.closeReason())
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, c.writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Printf("ws: write failed: %v", err)
				c.Close("write failed")
				c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Printf("ws: ping failed: %v", err)
				c.Close("ping failed")
				c.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}
