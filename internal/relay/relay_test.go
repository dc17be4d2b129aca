package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sonicshare/sonicshare/internal/session"
	"github.com/sonicshare/sonicshare/pkg/protocol"
)

// peer is a fake connection endpoint capturing everything sent to it.
type peer struct {
	mu     sync.Mutex
	frames []session.Frame
	fail   bool
	closed bool
}

func (p *peer) conn(id string) *session.Conn {
	return &session.Conn{
		ID: id,
		Send: func(f session.Frame) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.fail {
				return io.ErrClosedPipe
			}
			p.frames = append(p.frames, f)
			return nil
		},
		Close: func() {
			p.mu.Lock()
			p.closed = true
			p.mu.Unlock()
		},
	}
}

func (p *peer) setFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func (p *peer) got() []session.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]session.Frame, len(p.frames))
	copy(out, p.frames)
	return out
}

// types decodes captured text frames into their envelope types.
func (p *peer) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range p.got() {
		if f.Binary {
			out = append(out, "<binary>")
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(f.Data, &env); err != nil {
			t.Fatalf("captured frame is not an envelope: %v", err)
		}
		out = append(out, env.Type)
	}
	return out
}

func (p *peer) wasClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// textEnv builds an encoded envelope frame of the given type.
func textEnv(t *testing.T, msgType string, payload any) session.Frame {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, protocol.NewMsgID(), payload)
	if err != nil {
		t.Fatalf("NewEnvelope error = %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode error = %v", err)
	}
	return session.TextFrame(data)
}

// newHarness wires a registry, binder, and router over a small pending cap.
func newHarness(pendingLimit int) (*session.Registry, *Binder, *Router) {
	reg := session.NewRegistry(session.NewGenerator(6), pendingLimit)
	log := testLogger()
	return reg, NewBinder(reg, log), NewRouter(reg, log)
}
