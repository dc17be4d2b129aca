package session

import (
	"errors"
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return NewRegistry(NewGenerator(6), 16)
}

func TestRegistryCreateUniqueCodes(t *testing.T) {
	reg := newTestRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess, err := reg.Create("")
		if err != nil {
			t.Fatalf("Create error = %v", err)
		}
		code := sess.Code()
		if len(code) != 6 {
			t.Fatalf("code length = %d, want 6", len(code))
		}
		if seen[code] {
			t.Fatalf("duplicate code %s among live sessions", code)
		}
		seen[code] = true
		if sess.Status() != StatusWaiting {
			t.Errorf("initial status = %s, want waiting", sess.Status())
		}
	}
	if reg.Count() != 50 {
		t.Errorf("Count = %d, want 50", reg.Count())
	}
}

func TestRegistryCreatePreChosenCode(t *testing.T) {
	reg := newTestRegistry()
	sess, err := reg.Create("482913")
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if sess.Code() != "482913" {
		t.Errorf("code = %s, want 482913", sess.Code())
	}

	if _, err := reg.Create("482913"); !errors.Is(err, ErrCodeTaken) {
		t.Errorf("duplicate create error = %v, want ErrCodeTaken", err)
	}
	if _, err := reg.Create("abc"); !errors.Is(err, ErrBadCode) {
		t.Errorf("malformed create error = %v, want ErrBadCode", err)
	}

	// Deleting frees the code for reuse.
	reg.Delete("482913")
	if _, err := reg.Create("482913"); err != nil {
		t.Errorf("create after delete error = %v", err)
	}
}

func TestRegistryLookupTouchesPeekDoesNot(t *testing.T) {
	reg := newTestRegistry()
	sess, err := reg.Create("111111")
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	sess.Touch(time.Now().Add(-time.Hour))
	stale := sess.LastActivity()

	if _, ok := reg.Peek("111111"); !ok {
		t.Fatal("Peek should find the session")
	}
	if !sess.LastActivity().Equal(stale) {
		t.Error("Peek must not touch last activity")
	}

	if _, ok := reg.Lookup("111111"); !ok {
		t.Fatal("Lookup should find the session")
	}
	if sess.LastActivity().Equal(stale) {
		t.Error("Lookup should touch last activity")
	}

	if _, ok := reg.Lookup("999999"); ok {
		t.Error("Lookup of unknown code should miss")
	}
}

func TestRegistryDeleteIdempotent(t *testing.T) {
	reg := newTestRegistry()
	sess, err := reg.Create("111111")
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if err := sess.Enqueue(RoleReceiver, TextFrame([]byte("queued"))); err != nil {
		t.Fatalf("Enqueue error = %v", err)
	}

	reg.Delete("111111")
	reg.Delete("111111") // second delete is a no-op
	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
	if n := sess.PendingLen(RoleReceiver); n != 0 {
		t.Errorf("buffers not released on delete: PendingLen = %d", n)
	}
}

func TestRegistryFindByConn(t *testing.T) {
	reg := newTestRegistry()
	if _, err := reg.Create("111111"); err != nil {
		t.Fatalf("Create error = %v", err)
	}

	if _, ok := reg.FindByConn("conn-1"); ok {
		t.Fatal("FindByConn before Associate should miss")
	}

	reg.Associate("conn-1", "111111")
	sess, ok := reg.FindByConn("conn-1")
	if !ok {
		t.Fatal("FindByConn after Associate should hit")
	}
	if sess.Code() != "111111" {
		t.Errorf("code = %s, want 111111", sess.Code())
	}

	reg.Dissociate("conn-1")
	if _, ok := reg.FindByConn("conn-1"); ok {
		t.Error("FindByConn after Dissociate should miss")
	}

	// Deleting the session also clears its index entries.
	reg.Associate("conn-2", "111111")
	reg.Delete("111111")
	if _, ok := reg.FindByConn("conn-2"); ok {
		t.Error("FindByConn after Delete should miss")
	}
}

func TestRegistrySweep(t *testing.T) {
	reg := newTestRegistry()
	stale, err := reg.Create("111111")
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	fresh, err := reg.Create("222222")
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}

	now := time.Now()
	stale.Touch(now.Add(-11 * time.Minute))
	fresh.Touch(now.Add(-1 * time.Minute))

	if n := reg.Sweep(now, 10*time.Minute); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, ok := reg.Peek("111111"); ok {
		t.Error("idle session should have been deleted")
	}
	if _, ok := reg.Peek("222222"); !ok {
		t.Error("active session should survive the sweep")
	}
}
