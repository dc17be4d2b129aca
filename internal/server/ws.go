package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonicshare/sonicshare/internal/session"
	"github.com/sonicshare/sonicshare/internal/termio"
	"github.com/sonicshare/sonicshare/pkg/protocol"
)

// handleWS is the live bidirectional channel. Query parameters:
//
//	action  "create" to mint a session and bind as sender; default is join
//	code    pairing code (required for join, optional pre-chosen on create)
//	role    "sender" or "receiver"; optional on join (free role is picked)
//
// Each connection is serviced by this handler's read loop until disconnect;
// the liveness keepalive (read deadline plus periodic pings) rides on the
// same loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	action := q.Get("action")
	code := q.Get("code")
	roleRaw := q.Get("role")

	var want session.Role
	if roleRaw != "" {
		role, ok := session.ParseRole(roleRaw)
		if !ok {
			sendError(w, http.StatusBadRequest, "role must be 'sender' or 'receiver'")
			return
		}
		want = role
	}

	if action != "create" {
		if code == "" {
			sendError(w, http.StatusBadRequest, "missing code")
			return
		}
		// Passive existence check so a bad code fails before the upgrade.
		if _, ok := s.reg.Peek(code); !ok {
			sendError(w, http.StatusNotFound, "invalid or expired code")
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(int64(s.cfg.MaxMessageBytes))
	}

	var writeMu sync.Mutex
	sendFrame := func(f session.Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		mt := websocket.TextMessage
		if f.Binary {
			mt = websocket.BinaryMessage
		}
		return conn.WriteMessage(mt, f.Data)
	}

	idle := s.cfg.IdleTimeout
	if idle > 0 {
		conn.SetReadDeadline(time.Now().Add(idle))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(idle))
			return nil
		})
		conn.SetPingHandler(func(appData string) error {
			conn.SetReadDeadline(time.Now().Add(idle))
			writeMu.Lock()
			err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(s.cfg.WriteTimeout))
			writeMu.Unlock()
			return err
		})
	}

	connID := protocol.NewMsgID()
	handle := &session.Conn{
		ID:    connID,
		Send:  sendFrame,
		Close: func() { _ = conn.Close() },
	}

	var sess *session.Session
	var role session.Role
	if action == "create" {
		sess, err = s.binder.Create(handle, code, nil)
		role = session.RoleSender
	} else {
		sess, role, err = s.binder.Bind(handle, code, want)
	}
	if err != nil {
		s.sendWSError(sendFrame, err)
		return
	}
	defer s.binder.Disconnect(connID)

	if action == "create" {
		env, err := protocol.NewEnvelope(protocol.TypeCode, protocol.NewMsgID(), protocol.CodeAssigned{
			Code:   sess.Code(),
			Status: string(sess.Status()),
		})
		if err == nil {
			env.Code = sess.Code()
			if data, err := env.Encode(); err == nil {
				if err := sendFrame(session.TextFrame(data)); err != nil {
					return
				}
			}
		}
	}

	fmt.Fprintf(termio.Stdout(), "peer connected code=%s role=%s conn_id=%s\n", sess.Code(), role, connID)
	defer fmt.Fprintf(termio.Stdout(), "peer disconnected code=%s role=%s\n", sess.Code(), role)

	// Proactive keepalive: ping a quiet connection instead of closing it, so
	// an idle-but-present human does not lose the channel to intermediary
	// timeouts.
	if s.cfg.KeepaliveInterval > 0 {
		stopPing := make(chan struct{})
		defer close(stopPing)
		go func() {
			ticker := time.NewTicker(s.cfg.KeepaliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stopPing:
					return
				case <-ticker.C:
					writeMu.Lock()
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
					writeMu.Unlock()
				}
			}
		}()
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.log.Info("websocket idle timeout", "code", sess.Code(), "role", role)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read error", "code", sess.Code(), "role", role, "error", err)
			}
			return
		}
		if idle > 0 {
			conn.SetReadDeadline(time.Now().Add(idle))
		}

		switch messageType {
		case websocket.TextMessage:
			s.router.Route(connID, session.TextFrame(message))
		case websocket.BinaryMessage:
			s.router.Route(connID, session.BinaryFrame(message))
		}
	}
}

// sendWSError reports a bind failure over the freshly upgraded connection
// before it is dropped. Only the requester learns about it.
func (s *Server) sendWSError(send session.SendFunc, bindErr error) {
	code := protocol.ErrCodeInvalidCode
	msg := "invalid or expired code"
	switch {
	case errors.Is(bindErr, session.ErrSessionFull):
		code = protocol.ErrCodeSessionFull
		msg = "session already has two connected peers"
	case errors.Is(bindErr, session.ErrInvalidCode):
	case errors.Is(bindErr, session.ErrBadCode):
		msg = "malformed code"
	case errors.Is(bindErr, session.ErrCodeTaken):
		msg = "code already in use"
	case errors.Is(bindErr, session.ErrConnBound):
		msg = "connection already bound to a session"
	default:
		s.log.Error("bind failed", "error", bindErr)
	}

	env, err := protocol.NewEnvelope(protocol.TypeError, protocol.NewMsgID(), protocol.Error{
		Code:    code,
		Message: msg,
	})
	if err != nil {
		return
	}
	if data, err := env.Encode(); err == nil {
		_ = send(session.TextFrame(data))
	}
}
