package identify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clintwin/pillfinder/internal/catalog"
)

// Manager owns the in-memory session table. All reads return clones so
// callers can never mutate shared state; writes go through the
// BeginUpdate/Commit pair, which also serializes conflicting updates on the
// same session.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(candidates []catalog.MedicineRecord, confidence float64) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		Candidates:     candidates,
		Confidence:     confidence,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

// Get returns a snapshot of the session. Sessions past the inactivity
// timeout are expired lazily here, so a stale id is indistinguishable from
// an unknown one.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expireLocked(s) {
		return nil, ErrSessionNotFound
	}
	return clone(s), nil
}

// BeginUpdate checks out an active session for mutation. While checked out,
// a second BeginUpdate on the same id fails with ErrSessionBusy. The caller
// must finish with Commit or Abort.
func (m *Manager) BeginUpdate(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expireLocked(s) {
		return nil, ErrSessionNotFound
	}
	if s.Status != StatusActive {
		return nil, ErrSessionNotActive
	}
	if s.busy {
		return nil, ErrSessionBusy
	}
	s.busy = true
	return clone(s), nil
}

// Commit stores the updated session and releases the busy latch. A session
// ended while the update was in flight stays gone.
func (m *Manager) Commit(updated *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[updated.ID]; !ok {
		return
	}
	next := clone(updated)
	next.LastActivityAt = time.Now().UTC()
	next.busy = false
	m.sessions[updated.ID] = next
}

// Abort releases the busy latch without applying changes.
func (m *Manager) Abort(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.busy = false
	}
}

// End removes the session. Idempotent: ending an unknown or already-removed
// session returns nil, nil.
func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	delete(m.sessions, sessionID)
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireLocked transitions a timed-out session to expired and drops it from
// the table. Caller holds m.mu. Busy sessions are skipped: the in-flight
// update refreshes LastActivityAt on commit.
func (m *Manager) expireLocked(s *Session) bool {
	if s.busy {
		return false
	}
	if time.Now().UTC().Sub(s.LastActivityAt) < m.inactivityTimeout {
		return false
	}
	s.Status = StatusExpired
	delete(m.sessions, s.ID)
	if m.onExpire != nil {
		expired := clone(s)
		go m.onExpire(expired)
	}
	return true
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.busy {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusExpired
		delete(m.sessions, s.ID)
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
