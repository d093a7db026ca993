package session

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/colbyharris/pcforge/internal/filelock"
)

// DefaultLockTimeout bounds how long load/flush wait on the cross-process
// guard before the operation is abandoned for this cycle
const DefaultLockTimeout = 5 * time.Second

// Store owns the authoritative in-memory session map and mirrors it to a
// single JSON file. The file guard serializes load/flush across cooperating
// processes; the in-process mutex serializes them across goroutines. The
// mirror is never read outside Load
type Store struct {
	path        string
	guard       *filelock.Guard
	lockTimeout time.Duration

	mu       sync.RWMutex
	sessions map[int64]*Session

	// One turn may mutate a given user's record at a time. Different users
	// proceed concurrently
	userMu    sync.Mutex
	userLocks map[int64]*sync.Mutex
}

// NewStore creates a store mirroring to path, guarded by the given marker
// lock. Call Load before first use
func NewStore(path string, guard *filelock.Guard) *Store {
	return &Store{
		path:        path,
		guard:       guard,
		lockTimeout: DefaultLockTimeout,
		sessions:    make(map[int64]*Session),
		userLocks:   make(map[int64]*sync.Mutex),
	}
}

// Load reads the durable mirror and reconstructs the in-memory map. A
// missing mirror yields an empty map. A malformed mirror also yields an
// empty map, logged prominently because it implies silent data loss
func (s *Store) Load() error {
	handle, err := s.guard.Acquire(s.lockTimeout)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	defer handle.Release()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load sessions: read %s: %w", s.path, err)
	}

	loaded := make(map[int64]*Session)
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Printf("[STORE]: MALFORMED session mirror %s, starting empty (previous sessions are lost): %v", s.path, err)
		return nil
	}

	s.mu.Lock()
	s.sessions = loaded
	s.mu.Unlock()

	log.Printf("[STORE]: loaded %d session(s) from %s", len(loaded), s.path)
	return nil
}

// GetOrCreate returns a snapshot of the user's record, creating a fresh
// collecting-phase record when none exists. Always stamps activity
func (s *Store) GetOrCreate(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = newSession(userID, time.Now().UTC())
		s.sessions[userID] = sess
	}
	sess.Touch(time.Now().UTC())

	return sess.clone()
}

// Get returns a snapshot of the user's record without creating one
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Update applies fn to the user's record under the store lock. Returns false
// when no record exists. All record mutation funnels through here so the
// in-memory map never needs more than this one mutex
func (s *Store) Update(userID int64, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	fn(sess)
	return true
}

// Flush serializes the entire in-memory map and atomically replaces the
// mirror. The temp-then-rename discipline keeps the previous mirror intact
// if the write fails partway
func (s *Store) Flush() error {
	handle, err := s.guard.Acquire(s.lockTimeout)
	if err != nil {
		return fmt.Errorf("flush sessions: %w", err)
	}
	defer handle.Release()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("flush sessions: encode: %w", err)
	}

	return writeFileAtomic(s.path, data)
}

// Delete removes the user's record and flushes the mirror
func (s *Store) Delete(userID int64) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()

	return s.Flush()
}

// EvictStale removes records whose last activity is older than maxAge and
// flushes when anything was removed. Safe to call repeatedly
func (s *Store) EvictStale(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	var removed int
	for id, sess := range s.sessions {
		if sess.LastActivityAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}

	log.Printf("[STORE]: evicted %d stale session(s)", removed)
	return removed, s.Flush()
}

// Count returns the number of active sessions
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// LockUser acquires the per-identity turn lock, so only one inbound message
// drives a given user's phase transitions at a time. The returned func
// releases it
func (s *Store) LockUser(userID int64) func() {
	s.userMu.Lock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	s.userMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Close flushes the mirror one final time on shutdown
func (s *Store) Close() error {
	return s.Flush()
}

// writeFileAtomic writes data to a temp file in the target's directory and
// renames it over the target
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}
