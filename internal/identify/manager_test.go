package identify

import (
	"errors"
	"testing"
	"time"
)

func TestManagerGetReturnsCopy(t *testing.T) {
	m := NewManager(time.Minute)
	created := m.Create(quartet(), 0.25)

	got, err := m.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Candidates = got.Candidates[:1]
	got.AskedAttributes = append(got.AskedAttributes, "tablet_shape")

	again, err := m.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(again.Candidates) != 4 {
		t.Fatalf("candidates = %d, stored session was mutated through a snapshot", len(again.Candidates))
	}
	if len(again.AskedAttributes) != 0 {
		t.Fatalf("asked = %v, stored session was mutated through a snapshot", again.AskedAttributes)
	}
}

func TestManagerGetUnknownSession(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestManagerBeginUpdateConflicts(t *testing.T) {
	m := NewManager(time.Minute)
	created := m.Create(quartet(), 0.25)

	first, err := m.BeginUpdate(created.ID)
	if err != nil {
		t.Fatalf("BeginUpdate() error = %v", err)
	}
	if _, err := m.BeginUpdate(created.ID); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("second BeginUpdate error = %v, want ErrSessionBusy", err)
	}

	first.Confidence = 0.5
	m.Commit(first)

	got, err := m.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("confidence = %v, commit was not applied", got.Confidence)
	}
	if _, err := m.BeginUpdate(created.ID); err != nil {
		t.Fatalf("BeginUpdate after commit error = %v", err)
	}
}

func TestManagerAbortReleasesWithoutApplying(t *testing.T) {
	m := NewManager(time.Minute)
	created := m.Create(quartet(), 0.25)

	s, err := m.BeginUpdate(created.ID)
	if err != nil {
		t.Fatalf("BeginUpdate() error = %v", err)
	}
	s.Confidence = 0.99
	m.Abort(created.ID)

	got, err := m.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Confidence != 0.25 {
		t.Fatalf("confidence = %v, aborted update leaked", got.Confidence)
	}
	if _, err := m.BeginUpdate(created.ID); err != nil {
		t.Fatalf("BeginUpdate after abort error = %v", err)
	}
}

func TestManagerBeginUpdateRejectsCompleted(t *testing.T) {
	m := NewManager(time.Minute)
	created := m.Create(quartet(), 0.25)

	s, err := m.BeginUpdate(created.ID)
	if err != nil {
		t.Fatalf("BeginUpdate() error = %v", err)
	}
	s.Status = StatusCompleted
	m.Commit(s)

	if _, err := m.BeginUpdate(created.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("error = %v, want ErrSessionNotActive", err)
	}
}

func TestManagerExpiresInactiveSessions(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	expired := make(chan *Session, 1)
	m.SetExpireHook(func(s *Session) { expired <- s })

	created := m.Create(quartet(), 0.25)
	time.Sleep(25 * time.Millisecond)

	if _, err := m.Get(created.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound for an expired session", err)
	}
	select {
	case s := <-expired:
		if s.Status != StatusExpired {
			t.Fatalf("status = %q, want expired", s.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("expire hook was not called")
	}

	// Expired sessions never come back.
	if _, err := m.Get(created.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestManagerEndIsIdempotent(t *testing.T) {
	m := NewManager(time.Minute)
	created := m.Create(quartet(), 0.25)

	s, err := m.End(created.ID)
	if err != nil || s == nil {
		t.Fatalf("End() = %v, %v", s, err)
	}
	if _, err := m.Get(created.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after End error = %v, want ErrSessionNotFound", err)
	}

	s, err = m.End(created.ID)
	if err != nil {
		t.Fatalf("second End() error = %v", err)
	}
	if s != nil {
		t.Fatalf("second End() returned a session, want nil")
	}
}

func TestManagerActiveCount(t *testing.T) {
	m := NewManager(time.Minute)
	a := m.Create(quartet(), 0.25)
	m.Create(quartet(), 0.25)
	if got := m.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", got)
	}
	if _, err := m.End(a.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if got := m.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", got)
	}
}
