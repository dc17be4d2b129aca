package session

import (
	"sync"
	"time"
)

// DefaultPendingLimit caps each role's pending queue when no limit is
// configured.
const DefaultPendingLimit = 256

// Registry is the single source of truth for session existence. It owns the
// code -> session map and the connection -> code reverse index used to route
// messages that carry no explicit code.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byConn   map[string]string // connection ID -> code
	gen      *Generator

	pendingLimit int
}

// NewRegistry creates an empty registry. Codes are minted by gen; each role's
// pending queue is capped at pendingLimit (DefaultPendingLimit when <= 0).
func NewRegistry(gen *Generator, pendingLimit int) *Registry {
	if gen == nil {
		gen = NewGenerator(DefaultCodeLength)
	}
	if pendingLimit <= 0 {
		pendingLimit = DefaultPendingLimit
	}
	return &Registry{
		sessions:     make(map[string]*Session),
		byConn:       make(map[string]string),
		gen:          gen,
		pendingLimit: pendingLimit,
	}
}

// Create registers a new session in waiting status and returns it. With code
// empty a unique code is minted (collision-checked against live sessions);
// otherwise the pre-chosen code is validated against the configured format
// and rejected with ErrCodeTaken if a live session already holds it.
func (r *Registry) Create(code string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code == "" {
		generated, err := r.gen.Generate(func(c string) bool {
			_, exists := r.sessions[c]
			return exists
		})
		if err != nil {
			return nil, err
		}
		code = generated
	} else {
		if !r.gen.Valid(code) {
			return nil, ErrBadCode
		}
		if _, exists := r.sessions[code]; exists {
			return nil, ErrCodeTaken
		}
	}

	sess := newSession(code, r.pendingLimit, time.Now())
	r.sessions[code] = sess
	return sess, nil
}

// Lookup retrieves a session by code for routing, touching its activity
// timestamp on a hit.
func (r *Registry) Lookup(code string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[code]
	r.mu.RUnlock()
	if ok {
		sess.Touch(time.Now())
	}
	return sess, ok
}

// Peek retrieves a session by code without touching its activity timestamp.
// For diagnostic existence checks only.
func (r *Registry) Peek(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[code]
	return sess, ok
}

// Delete removes the session and releases its buffers and handles.
// Idempotent.
func (r *Registry) Delete(code string) {
	r.mu.Lock()
	sess, ok := r.sessions[code]
	if ok {
		delete(r.sessions, code)
		for connID, c := range r.byConn {
			if c == code {
				delete(r.byConn, connID)
			}
		}
	}
	r.mu.Unlock()
	if ok {
		sess.release()
	}
}

// Associate records connID -> code in the reverse index. Maintained by the
// role binder on every bind.
func (r *Registry) Associate(connID, code string) {
	r.mu.Lock()
	r.byConn[connID] = code
	r.mu.Unlock()
}

// Dissociate drops connID from the reverse index.
func (r *Registry) Dissociate(connID string) {
	r.mu.Lock()
	delete(r.byConn, connID)
	r.mu.Unlock()
}

// FindByConn resolves the session a connection is bound to via the reverse
// index. Never scans sessions.
func (r *Registry) FindByConn(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	sess, ok := r.sessions[code]
	return sess, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep deletes every session whose last activity is older than idle,
// regardless of connection state, and returns the number removed. Deletion is
// unconditional: an idle session by definition has nothing to notify.
func (r *Registry) Sweep(now time.Time, idle time.Duration) int {
	r.mu.RLock()
	var stale []string
	for code, sess := range r.sessions {
		if now.Sub(sess.LastActivity()) > idle {
			stale = append(stale, code)
		}
	}
	r.mu.RUnlock()

	for _, code := range stale {
		r.Delete(code)
	}
	return len(stale)
}
