package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"refinery/internal/logging"
)

// Store is the ordered collection of sessions plus the active pointer.
//
// Invariant: exactly one session is active whenever the store is non-empty.
// Every mutation is durably written through the KV immediately after the
// in-memory update.
type Store struct {
	mu       sync.RWMutex
	kv       KV
	sessions []*Session
	activeID string
}

// NewStore wraps a KV. Call Load before use.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Load rehydrates the collection from durable storage. A missing record
// leaves the store empty; a corrupt record is discarded with a log line, not
// surfaced as an error - startup must never crash on bad state.
func (st *Store) Load() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	raw, ok, err := st.kv.Get(KeySessions)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	if !ok {
		return nil
	}

	var sessions []*Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		logging.Session("discarding corrupt session record: %v", err)
		_ = st.kv.Delete(KeySessions)
		_ = st.kv.Delete(KeyActive)
		return nil
	}
	st.sessions = sessions

	active, ok, err := st.kv.Get(KeyActive)
	if err != nil {
		return fmt.Errorf("failed to load active session id: %w", err)
	}
	if ok && st.byIDLocked(active) != nil {
		st.activeID = active
	} else if len(st.sessions) > 0 {
		// Active pointer missing or dangling: fall back deterministically.
		st.activeID = st.newestLocked().ID
	}

	logging.Session("loaded %d session(s), active=%s", len(st.sessions), st.activeID)
	return nil
}

// Add appends a session and makes it active.
func (st *Store) Add(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions = append(st.sessions, s)
	st.activeID = s.ID
	return st.persistLocked()
}

// Sessions returns the sessions in creation order.
func (st *Store) Sessions() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, len(st.sessions))
	copy(out, st.sessions)
	return out
}

// Len returns the number of sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Get returns the session with the given id, or nil.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.byIDLocked(id)
}

// Active returns the active session, or nil for an empty store.
func (st *Store) Active() *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.byIDLocked(st.activeID)
}

// ActiveID returns the active session id.
func (st *Store) ActiveID() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.activeID
}

// Activate switches the active pointer. The caller is responsible for
// rehydrating the model connection from the session's exchange history.
func (st *Store) Activate(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.byIDLocked(id) == nil {
		return fmt.Errorf("no session with id %s", id)
	}
	st.activeID = id
	logging.Session("activated session %s", id)
	return st.persistLocked()
}

// Rename sets a user-supplied session name.
func (st *Store) Rename(id, name string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.byIDLocked(id)
	if s == nil {
		return fmt.Errorf("no session with id %s", id)
	}
	s.Name = name
	return st.persistLocked()
}

// Update persists the current state of a session already in the collection.
// The session replaces its slot wholesale so readers never observe a
// half-updated record alongside a stale one.
func (st *Store) Update(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, existing := range st.sessions {
		if existing.ID == s.ID {
			st.sessions[i] = s
			return st.persistLocked()
		}
	}
	return fmt.Errorf("no session with id %s", s.ID)
}

// Delete removes a session. Removing the active session promotes the
// most-recently-created remaining one; removing the last session clears all
// persisted state, and the caller must create a fresh session.
func (st *Store) Delete(id string) (remaining int, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := -1
	for i, s := range st.sessions {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return len(st.sessions), fmt.Errorf("no session with id %s", id)
	}

	st.sessions = append(st.sessions[:idx], st.sessions[idx+1:]...)

	if len(st.sessions) == 0 {
		st.activeID = ""
		_ = st.kv.Delete(KeySessions)
		_ = st.kv.Delete(KeyActive)
		logging.Session("deleted last session %s, cleared persisted state", id)
		return 0, nil
	}

	if st.activeID == id {
		st.activeID = st.newestLocked().ID
		logging.Session("deleted active session %s, promoted %s", id, st.activeID)
	}
	return len(st.sessions), st.persistLocked()
}

func (st *Store) byIDLocked(id string) *Session {
	for _, s := range st.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// newestLocked returns the session with the largest CreatedAt.
func (st *Store) newestLocked() *Session {
	var newest *Session
	for _, s := range st.sessions {
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	return newest
}

// persistLocked writes both keys. The in-memory form and the on-disk
// serialization round-trip exactly; nothing is dropped.
func (st *Store) persistLocked() error {
	data, err := json.MarshalIndent(st.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	if err := st.kv.Set(KeySessions, string(data)); err != nil {
		return err
	}
	return st.kv.Set(KeyActive, st.activeID)
}
