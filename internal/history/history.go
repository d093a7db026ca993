// Package history persists completed builds and session summaries to
// append-only text logs. These logs are write-mostly: the collective log is
// read back only for display, never by the session store.
package history

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/colbyharris/pcforge/internal/filelock"
)

// buildFrame opens every collective-log entry. Sequence numbers are derived
// by counting these frames at append time rather than from a stored counter
const buildFrame = "=== BUILD #"

// Log is the append-only collective builds file, shared across processes via
// its guard
type Log struct {
	path        string
	guard       *filelock.Guard
	lockTimeout time.Duration
}

// NewLog creates a collective log at path protected by guard
func NewLog(path string, guard *filelock.Guard) *Log {
	return &Log{path: path, guard: guard, lockTimeout: 5 * time.Second}
}

// Append writes a framed entry and returns the sequence number it received.
// The number is recomputed by scanning the log inside the critical section,
// so concurrent appenders cannot claim the same one
func (l *Log) Append(entry string) (int, error) {
	handle, err := l.guard.Acquire(l.lockTimeout)
	if err != nil {
		return 0, fmt.Errorf("history: append: %w", err)
	}
	defer handle.Release()

	number := l.nextNumberLocked()
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("history: open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s%d - %s ===\n%s\n\n", buildFrame, number, timestamp, strings.TrimSpace(entry)); err != nil {
		return 0, fmt.Errorf("history: write %s: %w", l.path, err)
	}

	log.Printf("[HISTORY]: saved build #%d", number)
	return number, nil
}

// NextBuildNumber returns the sequence number the next Append would get
func (l *Log) NextBuildNumber() (int, error) {
	handle, err := l.guard.Acquire(l.lockTimeout)
	if err != nil {
		return 0, fmt.Errorf("history: next number: %w", err)
	}
	defer handle.Release()

	return l.nextNumberLocked(), nil
}

// Read returns the full collective log, empty when none exists yet
func (l *Log) Read() (string, error) {
	handle, err := l.guard.Acquire(l.lockTimeout)
	if err != nil {
		return "", fmt.Errorf("history: read: %w", err)
	}
	defer handle.Release()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("history: read %s: %w", l.path, err)
	}
	return string(data), nil
}

// nextNumberLocked scans the log for prior frames. Caller holds the guard
func (l *Log) nextNumberLocked() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 1
	}
	return strings.Count(string(data), buildFrame) + 1
}

// Audit is the compressed per-save session summary log. Entries are tagged
// with the writing process instance and never read back by the program
type Audit struct {
	path        string
	guard       *filelock.Guard
	instance    string
	lockTimeout time.Duration
}

// NewAudit creates an audit log at path protected by guard
func NewAudit(path string, guard *filelock.Guard, instance string) *Audit {
	return &Audit{path: path, guard: guard, instance: instance, lockTimeout: 5 * time.Second}
}

// Append writes one summary block for the given user
func (a *Audit) Append(userID int64, lines []string) error {
	handle, err := a.guard.Acquire(a.lockTimeout)
	if err != nil {
		return fmt.Errorf("history: audit append: %w", err)
	}
	defer handle.Release()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: audit open %s: %w", a.path, err)
	}
	defer f.Close()

	header := fmt.Sprintf("[%s] User:%d Instance:%s", time.Now().UTC().Format(time.RFC3339), userID, a.instance)
	block := header + "\n" + strings.Join(lines, "\n") + "\n\n"

	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("history: audit write %s: %w", a.path, err)
	}
	return nil
}
