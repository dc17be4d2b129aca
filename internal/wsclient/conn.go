package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonicshare/sonicshare/pkg/protocol"
)

// Conn is a peer-side WebSocket connection to the relay server.
type Conn struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	writeMu sync.Mutex
}

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// Dial establishes a WebSocket connection to the server. wsURL should be the
// full URL including the /ws path and query parameters (action, code, role).
func Dial(ctx context.Context, wsURL string, logger *slog.Logger) (*Conn, error) {
	conn, resp, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}
	return &Conn{conn: conn, logger: logger}, nil
}

// SendEnvelope sends a structured message.
func (c *Conn) SendEnvelope(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// SendBinary sends a raw binary frame; the relay forwards it byte-for-byte.
func (c *Conn) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

// ReadLoop reads frames until the connection closes or ctx is cancelled.
// Structured messages are decoded and passed to onEnv; binary frames go to
// onBinary unmodified. Either callback may be nil.
func (c *Conn) ReadLoop(ctx context.Context, onEnv func(env protocol.Envelope), onBinary func(data []byte)) error {
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.writeMu.Lock()
				c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				err := c.conn.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		// Closing the connection forces ReadMessage() to unblock instantly.
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return err
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		switch messageType {
		case websocket.TextMessage:
			var env protocol.Envelope
			if err := json.Unmarshal(message, &env); err != nil {
				c.logger.Warn("invalid envelope from server", "error", err)
				continue
			}
			if onEnv != nil {
				onEnv(env)
			}
		case websocket.BinaryMessage:
			if onBinary != nil {
				onBinary(message)
			}
		}
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
