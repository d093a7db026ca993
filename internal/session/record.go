// Package session holds the per-user build session record and the
// concurrency-safe persistent store that backs it.
package session

import "time"

// Phase is the current stage of a session's conversation. It is the single
// source of truth for message dispatch
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseCollecting       Phase = "collecting"
	PhaseGenerating       Phase = "generating"
	PhaseRefining         Phase = "refining"
	PhaseAwaitingFeedback Phase = "awaiting_feedback"
	PhaseClosed           Phase = "closed"
)

// Message roles in the transcript
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single transcript entry
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session is a user's build session record. Pure data; all mutation under
// store locks happens through Store.Update
type Session struct {
	UserID         int64             `json:"user_id"`
	Transcript     []Message         `json:"transcript,omitempty"`
	Slots          map[string]string `json:"slots,omitempty"`
	Phase          Phase             `json:"phase"`
	BuildResult    string            `json:"build_result,omitempty"`
	Feedback       string            `json:"feedback,omitempty"`
	EditLog        []string          `json:"edit_log,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
}

// newSession creates a fresh record in the collecting phase
func newSession(userID int64, now time.Time) *Session {
	return &Session{
		UserID:         userID,
		Slots:          make(map[string]string),
		Phase:          PhaseCollecting,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Append adds a message to the transcript
func (s *Session) Append(role, text string) {
	s.Transcript = append(s.Transcript, Message{Role: role, Text: text})
}

// TranscriptTail returns the last n transcript messages (all of them when
// fewer exist). The returned slice aliases the transcript and must not be
// mutated
func (s *Session) TranscriptTail(n int) []Message {
	if n <= 0 || n >= len(s.Transcript) {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// Touch stamps the last-activity timestamp
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

// clone returns a deep copy so callers can read a snapshot without holding
// store locks
func (s *Session) clone() Session {
	out := *s

	out.Transcript = make([]Message, len(s.Transcript))
	copy(out.Transcript, s.Transcript)

	out.EditLog = make([]string, len(s.EditLog))
	copy(out.EditLog, s.EditLog)

	out.Slots = make(map[string]string, len(s.Slots))
	for k, v := range s.Slots {
		out.Slots[k] = v
	}

	return out
}
