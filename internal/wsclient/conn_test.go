package wsclient

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sonicshare/sonicshare/internal/config"
	"github.com/sonicshare/sonicshare/internal/relay"
	"github.com/sonicshare/sonicshare/internal/server"
	"github.com/sonicshare/sonicshare/internal/session"
	"github.com/sonicshare/sonicshare/pkg/protocol"
)

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.WriteTimeout = 2 * time.Second
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := session.NewRegistry(session.NewGenerator(cfg.CodeLength), cfg.PendingLimit)
	srv := server.New(cfg, log, reg, relay.NewBinder(reg, log), relay.NewRouter(reg, log))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
}

func TestDialRejectedWithServerError(t *testing.T) {
	ts := newRelayServer(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := Dial(context.Background(), wsURL(ts, "code=999999&role=receiver"), log)
	if err == nil {
		t.Fatal("dial with unknown code should fail")
	}
	if !strings.Contains(err.Error(), "invalid or expired code") {
		t.Errorf("error = %v, want the server's error body included", err)
	}
}

func TestPairAndRelayThroughClient(t *testing.T) {
	ts := newRelayServer(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connA, err := Dial(ctx, wsURL(ts, "action=create"), log)
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close()

	envsA := make(chan protocol.Envelope, 16)
	binA := make(chan []byte, 16)
	go connA.ReadLoop(ctx, func(env protocol.Envelope) { envsA <- env }, func(data []byte) { binA <- data })

	var code string
	select {
	case env := <-envsA:
		if env.Type != protocol.TypeCode {
			t.Fatalf("first envelope = %s, want code", env.Type)
		}
		var assigned protocol.CodeAssigned
		if err := env.DecodePayload(&assigned); err != nil {
			t.Fatalf("payload: %v", err)
		}
		code = assigned.Code
	case <-time.After(2 * time.Second):
		t.Fatal("never received the assigned code")
	}

	connB, err := Dial(ctx, wsURL(ts, "code="+code+"&role=receiver"), log)
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	envsB := make(chan protocol.Envelope, 16)
	binB := make(chan []byte, 16)
	go connB.ReadLoop(ctx, func(env protocol.Envelope) { envsB <- env }, func(data []byte) { binB <- data })

	for name, ch := range map[string]chan protocol.Envelope{"A": envsA, "B": envsB} {
		select {
		case env := <-ch:
			if env.Type != protocol.TypeReady {
				t.Fatalf("peer %s got %s, want ready", name, env.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("peer %s never heard ready", name)
		}
	}

	// Structured relay A -> B.
	env, err := protocol.NewEnvelope(protocol.TypeTransferStart, protocol.NewMsgID(), map[string]string{"transfer_id": "t1"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := connA.SendEnvelope(env); err != nil {
		t.Fatalf("SendEnvelope: %v", err)
	}
	select {
	case got := <-envsB:
		if got.Type != protocol.TypeTransferStart {
			t.Fatalf("B got %s, want transfer_start", got.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("B never received the relayed message")
	}

	// Binary relay B -> A, byte-exact.
	payload := []byte{0x00, 0xFF, 0x10, 0x7F, 0x80, 0x01}
	if err := connB.SendBinary(payload); err != nil {
		t.Fatalf("SendBinary: %v", err)
	}
	select {
	case got := <-binA:
		if !bytes.Equal(got, payload) {
			t.Fatalf("binary = %v, want %v", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("A never received the binary frame")
	}
}
