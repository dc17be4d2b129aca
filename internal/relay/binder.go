package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sonicshare/sonicshare/internal/session"
	"github.com/sonicshare/sonicshare/pkg/protocol"
)

// Binder attaches connections to sessions as one of the two roles, keeps the
// registry's reverse index current, and flushes buffered traffic to a role
// the moment it (re)binds.
type Binder struct {
	reg *session.Registry
	log *slog.Logger
}

// NewBinder creates a binder over reg.
func NewBinder(reg *session.Registry, log *slog.Logger) *Binder {
	return &Binder{reg: reg, log: log}
}

// Create registers a new session. code may be a pre-chosen pairing code
// (validated against the configured format) or empty to mint one; offer is
// the creator's opaque handshake payload, handed to the joiner later. When
// conn is non-nil it is bound as the sender role immediately; a connection
// may hold only one binding at a time.
func (b *Binder) Create(conn *session.Conn, code string, offer json.RawMessage) (*session.Session, error) {
	if conn != nil {
		if _, bound := b.reg.FindByConn(conn.ID); bound {
			return nil, session.ErrConnBound
		}
	}
	sess, err := b.reg.Create(code)
	if err != nil {
		return nil, err
	}
	if len(offer) > 0 {
		sess.SetOffer(offer)
	}
	if conn != nil {
		if _, _, err := sess.Claim(session.RoleSender, conn, time.Now()); err != nil {
			return nil, err
		}
		b.reg.Associate(conn.ID, sess.Code())
	}
	b.log.Info("session created", "code", sess.Code())
	return sess, nil
}

// Bind attaches conn to the session registered under code. With want empty
// the connection joins as the remaining free role; a role whose connection
// dropped is free again, so re-joining replaces it, and only a session with
// both roles currently connected yields ErrSessionFull. With want set the
// role is bound last-write-wins: a still-live prior connection for that role
// is evicted and closed rather than admitted as a third participant.
//
// On success the role's buffered frames are flushed, in order, before any
// other traffic, and if both roles are now live each side receives a ready
// notification.
func (b *Binder) Bind(conn *session.Conn, code string, want session.Role) (*session.Session, session.Role, error) {
	if _, bound := b.reg.FindByConn(conn.ID); bound {
		return nil, "", session.ErrConnBound
	}
	sess, ok := b.reg.Lookup(code)
	if !ok {
		return nil, "", session.ErrInvalidCode
	}

	role, evicted, err := sess.Claim(want, conn, time.Now())
	if err != nil {
		return nil, "", err
	}
	b.reg.Associate(conn.ID, code)
	if evicted != nil && evicted.ID != conn.ID {
		b.reg.Dissociate(evicted.ID)
		if evicted.Close != nil {
			evicted.Close()
		}
		b.log.Info("connection evicted by rebind", "code", code, "role", role)
	}

	if err := sess.Flush(role); err != nil {
		// The new connection died mid-flush; the remainder stays queued for
		// the next bind and the read loop will report the disconnect.
		b.log.Warn("flush aborted", "code", code, "role", role, "error", err)
		return sess, role, nil
	}

	b.notifyReady(sess)
	b.log.Info("peer bound", "code", code, "role", role, "conn_id", conn.ID)
	return sess, role, nil
}

// Disconnect handles the loss of a connection: the role unbinds but the
// session and its buffers survive, pending reconnection or the idle sweep.
// When the loss leaves zero bound peers on a non-terminal session, the
// session is marked failed.
func (b *Binder) Disconnect(connID string) {
	sess, ok := b.reg.FindByConn(connID)
	b.reg.Dissociate(connID)
	if !ok {
		return
	}
	role, bound := sess.RoleOf(connID)
	if bound {
		sess.Unbind(role, connID)
		b.log.Info("peer disconnected", "code", sess.Code(), "role", role)
	}
	if sess.NoneBound() && !sess.Status().Terminal() {
		sess.Advance(session.StatusFailed)
		b.log.Info("both peers gone, session failed", "code", sess.Code())
	}
}

// notifyReady tells both peers the counterpart is bound. Sent whenever a bind
// results in both roles being live on a non-terminal session; the waiting ->
// connecting transition rides on the first such notification.
func (b *Binder) notifyReady(sess *session.Session) {
	if !sess.BothBound() || sess.Status().Terminal() {
		return
	}
	sess.Advance(session.StatusConnecting)

	env, err := protocol.NewEnvelope(protocol.TypeReady, protocol.NewMsgID(), protocol.Ready{Code: sess.Code()})
	if err != nil {
		return
	}
	env.Code = sess.Code()
	data, err := env.Encode()
	if err != nil {
		return
	}
	for _, role := range []session.Role{session.RoleSender, session.RoleReceiver} {
		sess.TrySend(role, session.TextFrame(data))
	}
}
