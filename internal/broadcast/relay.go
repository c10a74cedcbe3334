package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/reservation"
)

// DefaultRelayChannel is the Redis pub/sub channel used for commit
// notices between instances.
const DefaultRelayChannel = "tables:commits"

// notice is the payload exchanged between instances.  It only has to
// wake the receivers; they read the state from the shared database.
type notice struct {
	Instance string           `json:"instance"`
	Kind     reservation.Kind `json:"kind"`
	Account  model.AccountID  `json:"account"`
}

// RedisRelay lets several service instances share one database.  Each
// local commit is published on a Redis channel; notices from the other
// instances trigger a local snapshot publish so their clients see the
// change too.
type RedisRelay struct {
	rdb      *redis.Client
	channel  string
	instance string
	onRemote func()

	minBackoff, maxBackoff time.Duration
	attempts               int // subscriptions started by Listen
}

// NewRedisRelay creates a relay with a random instance id.  onRemote runs
// for every notice published by another instance.
func NewRedisRelay(rdb *redis.Client, channel string, onRemote func()) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		rdb: rdb, channel: channel, instance: uuid.NewString(), onRemote: onRemote,
		minBackoff: time.Second, maxBackoff: 30 * time.Second,
	}
}

// Instance returns the id stamped on notices from this process.
func (r *RedisRelay) Instance() string { return r.instance }

// Committed implements reservation.Notifier.  Publish failures are
// logged; local clients are notified independently.
func (r *RedisRelay) Committed(ctx context.Context, c reservation.Commit) {
	b, err := json.Marshal(notice{Instance: r.instance, Kind: c.Kind, Account: c.Account})
	if err != nil {
		return
	}
	if err := r.rdb.Publish(ctx, r.channel, string(b)).Err(); err != nil {
		log.Printf("relay: publish %s: %v", r.channel, err)
	}
}

// handle processes one raw notice and reports whether it came from
// another instance.
func (r *RedisRelay) handle(payload string) bool {
	var n notice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		log.Printf("relay: bad notice: %v", err)
		return false
	}
	if n.Instance == r.instance {
		return false
	}
	if r.onRemote != nil {
		r.onRemote()
	}
	return true
}

// Listen follows the relay channel until ctx is cancelled.  A lost or
// failed subscription is retried with exponential backoff, so a Redis
// outage only pauses cross-instance updates.
func (r *RedisRelay) Listen(ctx context.Context) {
	backoff := r.minBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		r.attempts++
		subscribed, err := r.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			backoff = r.minBackoff // reset after a working subscription
		}
		log.Printf("relay: subscription to %s ended: %v; retrying in %s", r.channel, err, backoff)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if backoff < r.maxBackoff {
			backoff *= 2
		}
	}
}

// listenOnce runs one subscription.  subscribed reports whether it got
// past the initial confirmation.
func (r *RedisRelay) listenOnce(ctx context.Context) (subscribed bool, err error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, errors.New("subscription channel closed")
			}
			r.handle(msg.Payload)
		}
	}
}
