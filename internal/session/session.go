package session

import (
	"encoding/json"
	"sync"
	"time"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final. Terminal statuses are never
// overwritten.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var statusRank = map[Status]int{
	StatusWaiting:    0,
	StatusConnecting: 1,
	StatusConnected:  2,
	StatusCompleted:  3,
	StatusFailed:     3,
}

// Role identifies one of the exactly two logical participants in a session.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Other returns the counterpart role.
func (r Role) Other() Role {
	if r == RoleSender {
		return RoleReceiver
	}
	return RoleSender
}

// ParseRole validates a role string from the wire.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSender:
		return RoleSender, true
	case RoleReceiver:
		return RoleReceiver, true
	}
	return "", false
}

// Frame is a single deliverable unit: either a structured text message (an
// encoded protocol envelope) or a raw binary payload. Binary frames are
// relayed and buffered byte-for-byte.
type Frame struct {
	Binary bool
	Data   []byte
}

// TextFrame wraps an encoded envelope.
func TextFrame(data []byte) Frame { return Frame{Data: data} }

// BinaryFrame wraps a raw payload.
func BinaryFrame(data []byte) Frame { return Frame{Binary: true, Data: data} }

// SendFunc delivers a frame to a live connection. Implementations serialize
// writes themselves and bound them with a write deadline.
type SendFunc func(Frame) error

// Conn is a non-owning handle to a live connection. The per-connection read
// task owns the underlying socket; sessions hold only this handle and drop it
// on unbind. Close, when set, tears down the underlying connection and is
// used when a rebind evicts a stale handle.
type Conn struct {
	ID    string
	Send  SendFunc
	Close func()
}

// Session pairs exactly two roles under a shared code and buffers traffic for
// whichever role is momentarily not connected.
//
// All mutation happens under the session mutex; sends performed while holding
// it are bounded by the connection's write deadline, and sessions are
// independent, so one stalled session never blocks another.
type Session struct {
	code      string
	createdAt time.Time

	mu           sync.Mutex
	status       Status
	conns        map[Role]*Conn
	pending      map[Role][]Frame
	pendingLimit int
	offer        json.RawMessage
	answer       json.RawMessage
	lastActivity time.Time
}

func newSession(code string, pendingLimit int, now time.Time) *Session {
	return &Session{
		code:         code,
		createdAt:    now,
		status:       StatusWaiting,
		conns:        make(map[Role]*Conn, 2),
		pending:      make(map[Role][]Frame, 2),
		pendingLimit: pendingLimit,
		lastActivity: now,
	}
}

// Code returns the immutable pairing code.
func (s *Session) Code() string { return s.code }

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Advance moves the session to next and reports whether the transition was
// accepted. Terminal states are never overwritten, and non-terminal
// transitions only move forward.
func (s *Session) Advance(next Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(next)
}

func (s *Session) advanceLocked(next Status) bool {
	if s.status.Terminal() {
		return false
	}
	if !next.Terminal() && statusRank[next] <= statusRank[s.status] {
		return false
	}
	s.status = next
	return true
}

// Touch records activity at now. Every inbound message, bind, and rebind
// touches the session; the idle sweep keys off this timestamp.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SetOffer stores the creator's opaque handshake payload.
func (s *Session) SetOffer(offer json.RawMessage) {
	s.mu.Lock()
	s.offer = offer
	s.mu.Unlock()
}

// Offer returns the stored handshake payload, or nil.
func (s *Session) Offer() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offer
}

// SetAnswer stores the joiner's opaque handshake response and moves the
// session into connecting.
func (s *Session) SetAnswer(answer json.RawMessage) {
	s.mu.Lock()
	s.answer = answer
	s.advanceLocked(StatusConnecting)
	s.mu.Unlock()
}

// Answer returns the stored handshake response, or nil.
func (s *Session) Answer() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer
}

// Claim binds conn to a role. With want set, the role is bound
// last-write-wins: an existing handle for that role is evicted and returned
// so the caller can close it. With want empty, conn takes the free role
// (preferring receiver when both are free) and ErrSessionFull is returned if
// both roles already hold live connections. Claims for the same session
// serialize on the session mutex, so two connections racing for the last free
// role resolve to exactly one winner.
func (s *Session) Claim(want Role, conn *Conn, now time.Time) (Role, *Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := want
	if role == "" {
		switch {
		case s.conns[RoleReceiver] == nil:
			role = RoleReceiver
		case s.conns[RoleSender] == nil:
			role = RoleSender
		default:
			return "", nil, ErrSessionFull
		}
	}

	evicted := s.conns[role]
	s.conns[role] = conn
	s.lastActivity = now
	return role, evicted, nil
}

// Unbind drops the role's connection handle if it still is connID. A handle
// that was already replaced by a rebind is left alone. Buffers survive
// unbinding; only session deletion releases them.
func (s *Session) Unbind(role Role, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conns[role]
	if conn == nil || conn.ID != connID {
		return false
	}
	delete(s.conns, role)
	return true
}

// RoleOf returns the role currently bound to connID.
func (s *Session) RoleOf(connID string) (Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for role, conn := range s.conns {
		if conn != nil && conn.ID == connID {
			return role, true
		}
	}
	return "", false
}

// BothBound reports whether both roles hold live connections.
func (s *Session) BothBound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[RoleSender] != nil && s.conns[RoleReceiver] != nil
}

// NoneBound reports whether neither role holds a live connection.
func (s *Session) NoneBound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[RoleSender] == nil && s.conns[RoleReceiver] == nil
}

// Enqueue appends a frame to role's pending queue. Returns ErrBufferOverflow
// once the configured cap is exceeded.
func (s *Session) Enqueue(role Role, frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(role, frame)
}

func (s *Session) enqueueLocked(role Role, frame Frame) error {
	if s.pendingLimit > 0 && len(s.pending[role]) >= s.pendingLimit {
		return ErrBufferOverflow
	}
	s.pending[role] = append(s.pending[role], frame)
	return nil
}

// Deliver sends a frame to role, falling back to the pending queue when the
// role has no live connection, when the queue is already non-empty (direct
// delivery would reorder around undrained frames), or when the send fails.
// A failed send also drops the dead handle so the next bind is treated as a
// fresh (re)connect. Reports whether the frame was buffered.
func (s *Session) Deliver(role Role, frame Frame) (buffered bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn := s.conns[role]
	if conn == nil || len(s.pending[role]) > 0 {
		return true, s.enqueueLocked(role, frame)
	}
	if err := conn.Send(frame); err != nil {
		delete(s.conns, role)
		return true, s.enqueueLocked(role, frame)
	}
	return false, nil
}

// Flush drains role's pending queue to its bound connection in enqueue order,
// removing each frame only after a successful send. The first send failure
// aborts the flush and leaves the remainder queued, so a partial flush never
// reorders or drops frames.
func (s *Session) Flush(role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn := s.conns[role]
	if conn == nil {
		return nil
	}
	queue := s.pending[role]
	for len(queue) > 0 {
		if err := conn.Send(queue[0]); err != nil {
			s.pending[role] = queue
			delete(s.conns, role)
			return err
		}
		queue = queue[1:]
	}
	s.pending[role] = nil
	return nil
}

// TrySend delivers a frame to role's live connection without falling back to
// the buffer. Used for server notifications that are only meaningful to a
// currently reachable peer. Returns false when the role is unbound or the
// send fails; a failed send drops the dead handle.
func (s *Session) TrySend(role Role, frame Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conns[role]
	if conn == nil {
		return false
	}
	if err := conn.Send(frame); err != nil {
		delete(s.conns, role)
		return false
	}
	return true
}

// PendingLen returns the number of frames queued for role.
func (s *Session) PendingLen(role Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[role])
}

// release drops buffers and handles on session deletion.
func (s *Session) release() {
	s.mu.Lock()
	s.pending = make(map[Role][]Frame)
	s.conns = make(map[Role]*Conn)
	s.mu.Unlock()
}
