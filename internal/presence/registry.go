// Package presence tracks which accounts have a live push-channel
// subscription.  An account has at most one live subscription: a new
// registration replaces the previous one.
package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/table-reservation/internal/model"
)

// Channel is the outbound half of a push connection.
type Channel interface {
	// Send queues msg for delivery.  An error means the channel is
	// closed or cannot keep up and will not deliver further messages.
	Send(msg []byte) error
	// Close terminates the connection with a human-readable reason.
	Close(reason string)
}

// Session is one live registration.
type Session struct {
	ID      string
	Account model.AccountID
	Channel Channel
	Since   time.Time
}

// Registry is a concurrency-safe map from account to its current
// session.  Create one with New at startup; it holds no global state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[model.AccountID]Session
}

func New() *Registry {
	return &Registry{sessions: map[model.AccountID]Session{}}
}

// Register makes ch the account's current channel and returns the new
// session.  If another channel was registered for the account it is
// returned so the caller can close it; the registry never closes
// channels itself.
func (r *Registry) Register(account model.AccountID, ch Channel) (Session, Channel) {
	s := Session{ID: uuid.NewString(), Account: account, Channel: ch, Since: time.Now().UTC()}
	r.mu.Lock()
	prev, ok := r.sessions[account]
	r.sessions[account] = s
	r.mu.Unlock()
	if ok {
		return s, prev.Channel
	}
	return s, nil
}

// Unregister drops the account's session, whichever it is.
func (r *Registry) Unregister(account model.AccountID) {
	r.mu.Lock()
	delete(r.sessions, account)
	r.mu.Unlock()
}

// Remove drops the account's session only if sessionID is still the
// current one.  It reports whether it removed anything.  Connection
// close paths use it so a replaced connection cannot evict the session
// that superseded it.
func (r *Registry) Remove(account model.AccountID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[account]
	if !ok || s.ID != sessionID {
		return false
	}
	delete(r.sessions, account)
	return true
}

// Current reports the live session of account.
func (r *Registry) Current(account model.AccountID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[account]
	return s, ok
}

// ForEach calls fn for every live session.  It iterates over a copy
// taken under the read lock, so fn may call back into the registry and
// registrations racing with the iteration never crash it.
func (r *Registry) ForEach(fn func(Session)) {
	r.mu.RLock()
	list := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()
	for _, s := range list {
		fn(s)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes and forgets every session.  Used at shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	list := r.sessions
	r.sessions = map[model.AccountID]Session{}
	r.mu.Unlock()
	for _, s := range list {
		s.Channel.Close(reason)
	}
}
