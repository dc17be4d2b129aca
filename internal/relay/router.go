package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/sonicshare/sonicshare/internal/session"
	"github.com/sonicshare/sonicshare/pkg/protocol"
)

// Router forwards inbound frames from a bound connection to the counterpart
// role, buffering when that role is not reachable. Structured messages pass
// an allow-list before relaying; binary frames are relayed byte-for-byte
// without inspection, since they carry the actual transfer payload.
type Router struct {
	reg *session.Registry
	log *slog.Logger
}

// NewRouter creates a router over reg.
func NewRouter(reg *session.Registry, log *slog.Logger) *Router {
	return &Router{reg: reg, log: log}
}

// Route resolves the session for connID via the reverse index and dispatches
// the frame. Frames from unbound connections are dropped; the router never
// scans or guesses.
func (rt *Router) Route(connID string, frame session.Frame) {
	sess, ok := rt.reg.FindByConn(connID)
	if !ok {
		rt.log.Debug("frame from unbound connection dropped", "conn_id", connID)
		return
	}
	from, ok := sess.RoleOf(connID)
	if !ok {
		return
	}
	sess.Touch(time.Now())

	if frame.Binary {
		rt.forward(sess, from.Other(), frame)
		return
	}

	var env protocol.Envelope
	if err := json.Unmarshal(frame.Data, &env); err != nil {
		rt.log.Warn("malformed message dropped", "code", sess.Code(), "role", from, "error", err)
		return
	}
	if err := env.ValidateBasic(); err != nil {
		rt.log.Warn("invalid envelope dropped", "code", sess.Code(), "role", from, "error", err)
		return
	}

	switch env.Type {
	case protocol.TypePing:
		rt.pong(sess, from)
		return
	case protocol.TypePong:
		// Keepalive acknowledgement; activity was already touched.
		return
	}

	if !protocol.Relayable(env.Type) {
		rt.log.Debug("unrecognized message type dropped", "code", sess.Code(), "type", env.Type)
		return
	}

	// Status side effects apply whether or not the forward below lands.
	switch env.Type {
	case protocol.TypeAnswer:
		sess.Advance(session.StatusConnecting)
	case protocol.TypeTransferReady:
		sess.Advance(session.StatusConnected)
	case protocol.TypeTransferComplete:
		sess.Advance(session.StatusCompleted)
		rt.log.Info("transfer completed", "code", sess.Code())
	case protocol.TypeTransferFailed:
		sess.Advance(session.StatusFailed)
		rt.log.Info("transfer failed", "code", sess.Code())
	}

	// Forward the original bytes so peer-set fields survive untouched.
	rt.forward(sess, from.Other(), frame)
}

// Deliver sends a frame to a role of the session registered under code,
// buffering when that role is unreachable. Backs the REST answer/candidate
// submissions, which address a role directly rather than a connection.
func (rt *Router) Deliver(sess *session.Session, to session.Role, frame session.Frame) {
	sess.Touch(time.Now())
	rt.forward(sess, to, frame)
}

func (rt *Router) forward(sess *session.Session, to session.Role, frame session.Frame) {
	buffered, err := sess.Deliver(to, frame)
	if err != nil {
		if errors.Is(err, session.ErrBufferOverflow) {
			rt.overflow(sess, to)
		}
		return
	}
	if buffered {
		rt.log.Debug("frame buffered", "code", sess.Code(), "role", to, "queued", sess.PendingLen(to))
	}
}

// overflow handles a pending queue exceeding its cap: the session fails and
// both sides are told, if reachable. The frame that overflowed is gone; after
// a reap or failure delivery is no longer guaranteed.
func (rt *Router) overflow(sess *session.Session, to session.Role) {
	if !sess.Advance(session.StatusFailed) {
		return
	}
	rt.log.Warn("pending buffer overflow, session failed", "code", sess.Code(), "role", to)

	env, err := protocol.NewEnvelope(protocol.TypeError, protocol.NewMsgID(), protocol.Error{
		Code:    protocol.ErrCodeBufferOverflow,
		Message: "pending message buffer exceeded, session failed",
	})
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

func (rt *Router) pong(sess *session.Session, to session.Role) {
	env, err := protocol.NewEnvelope(protocol.TypePong, protocol.NewMsgID(), nil)
	if err != nil {
		return
	}
	env.Code = sess.Code()
	data, err := env.Encode()
	if err != nil {
		return
	}
	sess.TrySend(to, session.TextFrame(data))
}
