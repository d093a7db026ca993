// Package filelock provides a cooperative, coarse-grained lock backed by a
// filesystem marker so it is visible across independent bot processes sharing
// the same data directory.
package filelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// ErrLockTimeout is returned when the marker could not be created within the
// acquisition timeout
var ErrLockTimeout = errors.New("filelock: timed out acquiring lock")

// retryInterval is the fixed backoff between acquisition attempts
const retryInterval = 100 * time.Millisecond

// marker is the payload written into the lock file so stale holders can be
// identified across process restarts
type marker struct {
	PID        int       `json:"pid"`
	Instance   string    `json:"instance"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Guard is a mutual-exclusion lock keyed by a marker file path. The zero
// value is not usable; construct with New
type Guard struct {
	path     string
	instance string
}

// New creates a guard for the given marker path. The instance string
// identifies this process in marker payloads (see cmd/pcforge)
func New(path, instance string) *Guard {
	return &Guard{path: path, instance: instance}
}

// Path returns the marker file path
func (g *Guard) Path() string {
	return g.path
}

// Handle represents a held lock. Release must be called on every exit path
type Handle struct {
	guard    *Guard
	released bool
}

// Acquire attempts to atomically create the marker file, retrying with a
// fixed backoff until timeout elapses. A stale marker left by a previous
// incarnation of this process is reclaimed on the way
func (g *Guard) Acquire(timeout time.Duration) (*Handle, error) {
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(g.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			payload, merr := json.Marshal(marker{
				PID:        os.Getpid(),
				Instance:   g.instance,
				AcquiredAt: time.Now().UTC(),
			})
			if merr == nil {
				_, _ = f.Write(payload)
			}
			_ = f.Close()
			return &Handle{guard: g}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("filelock: create marker %s: %w", g.path, err)
		}

		// Marker exists. If it was left by a dead holder of this process id
		// (a previous incarnation of this bot), reclaim it immediately
		if g.reclaimOwn() {
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, g.path)
		}
		time.Sleep(retryInterval)
	}
}

// Release removes the marker file. It is idempotent and safe to call when
// the marker is already absent
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true

	if err := os.Remove(h.guard.path); err != nil && !os.IsNotExist(err) {
		log.Printf("[FILELOCK]: failed to remove marker %s: %v", h.guard.path, err)
	}
}

// ReclaimStale removes the marker if it is unreadable, has no parseable
// payload, or is older than ttl. Intended as a startup sweep so a crashed
// holder's marker does not wedge the store until an operator intervenes.
// Returns true if a marker was removed
func (g *Guard) ReclaimStale(ttl time.Duration) bool {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return false
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		// Acquire creates the marker before writing its payload, so a
		// concurrent holder mid-acquire looks unparseable for a moment.
		// Only remove once the file itself has outlived the ttl
		info, statErr := os.Stat(g.path)
		if statErr != nil || time.Since(info.ModTime()) <= ttl {
			return false
		}
		log.Printf("[FILELOCK]: removing unparseable marker %s", g.path)
		return g.remove()
	}

	if time.Since(m.AcquiredAt) > ttl {
		log.Printf("[FILELOCK]: removing stale marker %s (held by pid %d since %s)",
			g.path, m.PID, m.AcquiredAt.Format(time.RFC3339))
		return g.remove()
	}

	return false
}

// reclaimOwn removes a marker written by this process id under a different
// instance token. The pid match with a mismatched instance means the marker
// survived a crash and pid reuse landed on us
func (g *Guard) reclaimOwn() bool {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return false
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}

	if m.PID == os.Getpid() && m.Instance != g.instance {
		log.Printf("[FILELOCK]: reclaiming marker %s from previous incarnation", g.path)
		return g.remove()
	}

	return false
}

func (g *Guard) remove() bool {
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		log.Printf("[FILELOCK]: failed to remove marker %s: %v", g.path, err)
		return false
	}
	return true
}
