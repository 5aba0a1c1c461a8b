// Package session tracks the live participants of the relay room. The
// Registry is the single piece of shared mutable state in the system; every
// mutation and every fan-out snapshot goes through its lock.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Channel is the outbound write capability for one connection. A Channel
// that is no longer writable reports IsOpen() == false and is skipped
// during fan-out; Send on a skippable channel may also return an error.
type Channel interface {
	Send(data []byte) error
	IsOpen() bool
}

// Session is one live connection's identity within the room.
type Session struct {
	// ID is assigned at connect time and never reused within the process.
	ID string
	// Name is the display name, a generated guest name until renamed.
	Name string
	// Channel is the session's exclusively-owned outbound handle.
	Channel Channel
}

// Registry maps session IDs to live sessions. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	guestSeq int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add registers a new session for the given channel, assigning a unique ID
// and the next guest name.
//
// Postcondition: The guest counter has advanced even if the session is
// later removed; guest numbers are never reused within the process.
func (r *Registry) Add(ch Channel) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.guestSeq++
	sess := &Session{
		ID:      uuid.NewString(),
		Name:    fmt.Sprintf("Guest-%02d", r.guestSeq),
		Channel: ch,
	}
	r.sessions[sess.ID] = sess
	return sess
}

// Remove deletes and returns the session with the given ID.
//
// Postcondition: Returns (session, true) on the first removal and
// (nil, false) on any subsequent one, so error-then-close on the same
// connection deregisters exactly once.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return sess, true
}

// Rename sets the session's display name to the trimmed form of name.
//
// Postcondition: Returns (applied name, true) if the name changed, or
// ("", false) when the session is unknown, the trimmed name is empty, or
// it equals the current name. No mutation happens in the false cases.
func (r *Registry) Rename(id, name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.Name == trimmed {
		return "", false
	}
	sess.Name = trimmed
	return trimmed, true
}

// Get returns the session for the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Channels returns a snapshot of every registered channel. The copy is
// safe to iterate while the registry mutates underneath a concurrent
// disconnect.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]Channel, 0, len(r.sessions))
	for _, sess := range r.sessions {
		channels = append(channels, sess.Channel)
	}
	return channels
}
