// Package flow drives a session through its conversation phases. It owns
// every phase transition; the transport layer only delivers messages and
// renders replies.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/colbyharris/pcforge/internal/build"
	"github.com/colbyharris/pcforge/internal/history"
	"github.com/colbyharris/pcforge/internal/policy"
	"github.com/colbyharris/pcforge/internal/session"
)

// Reply kinds let the transport pick presentation without parsing text
const (
	KindAssistant = "assistant"
	KindBuild     = "build"
	KindInfo      = "info"
	KindPrompt    = "prompt"
	KindError     = "error"
)

// Reply is one outbound message, transport-neutral
type Reply struct {
	Kind  string
	Title string
	Body  string
}

// Generating is the surface of the recommendation generator the machine
// drives at transition points
type Generating interface {
	Greeting() string
	Converse(ctx context.Context, sess session.Session) (string, error)
	GenerateBuild(ctx context.Context, sess session.Session) (string, error)
	Refine(ctx context.Context, sess session.Session, userMessage string) (string, error)
	Compress(ctx context.Context, sess session.Session) string
}

// ChangeDetector decides whether a refinement exchange should trigger a full
// regeneration. Pluggable so the heuristic can be tuned or swapped without
// touching the machine
type ChangeDetector func(userMessage, reply string) bool

var changeWords = []string{
	"change", "upgrade", "downgrade", "replace", "swap", "different",
	"better", "cheaper", "more", "less", "instead", "rather", "prefer",
}

// DefaultChangeDetector fires when the user's message carries a change
// keyword and the assistant's reply affirms a change was made. Soft
// classifier; false positives and negatives are accepted
func DefaultChangeDetector(userMessage, reply string) bool {
	msg := strings.ToLower(userMessage)

	var requested bool
	for _, w := range changeWords {
		if strings.Contains(msg, w) {
			requested = true
			break
		}
	}
	return requested && strings.Contains(strings.ToLower(reply), "change")
}

// Machine routes each inbound message to the handler for the session's
// current phase. One Machine serves all users; per-user serialization comes
// from the store's turn lock
type Machine struct {
	store    *session.Store
	gen      Generating
	keywords policy.Keywords
	builds   *history.Log
	audit    *history.Audit
	changed  ChangeDetector
}

// NewMachine wires the machine. A nil detector gets the default heuristic
func NewMachine(store *session.Store, gen Generating, keywords policy.Keywords, builds *history.Log, audit *history.Audit, changed ChangeDetector) *Machine {
	if changed == nil {
		changed = DefaultChangeDetector
	}
	return &Machine{
		store:    store,
		gen:      gen,
		keywords: keywords,
		builds:   builds,
		audit:    audit,
		changed:  changed,
	}
}

// Start begins a build session for the user. An already-active session is
// left alone so an accidental command cannot wipe progress
func (m *Machine) Start(userID int64) []Reply {
	release := m.store.LockUser(userID)
	defer release()

	if sess, ok := m.store.Get(userID); ok && sess.Phase != session.PhaseClosed {
		return []Reply{{
			Kind:  KindInfo,
			Title: "Build In Progress",
			Body:  "You already have a build session going. Keep chatting, or type `restart` to start over.",
		}}
	}

	m.store.GetOrCreate(userID)
	defer m.finishTurn(userID)

	return []Reply{{
		Kind:  KindAssistant,
		Title: "PC Builder Assistant",
		Body:  m.gen.Greeting(),
	}}
}

// Handle processes one inbound message for the user. Returns nil when the
// user has no active session, so the transport can fall through to command
// handling
func (m *Machine) Handle(ctx context.Context, userID int64, content string) []Reply {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	release := m.store.LockUser(userID)
	defer release()

	sess, ok := m.store.Get(userID)
	if !ok {
		return nil
	}

	switch strings.ToLower(content) {
	case "cancel":
		return m.cancelLocked(userID)
	case "restart":
		return m.restartLocked(userID)
	case "done":
		// During feedback capture "done" is the feedback, not a control token
		if sess.Phase == session.PhaseRefining {
			return m.closeLocked(userID)
		}
	}

	defer m.finishTurn(userID)

	switch sess.Phase {
	case session.PhaseCollecting:
		return m.collectingTurn(ctx, userID, content)
	case session.PhaseAwaitingFeedback:
		return m.feedbackTurn(ctx, userID, content)
	case session.PhaseRefining:
		return m.refineTurn(ctx, userID, content)
	case session.PhaseGenerating:
		return []Reply{{
			Kind:  KindInfo,
			Title: "Hold On",
			Body:  "Still working on your build, one moment!",
		}}
	default:
		return []Reply{{
			Kind:  KindInfo,
			Title: "No Active Build",
			Body:  "Use `!build` to start a new PC build.",
		}}
	}
}

// Cancel removes the user's session from outside a turn (the `!cancel`
// command path)
func (m *Machine) Cancel(userID int64) []Reply {
	release := m.store.LockUser(userID)
	defer release()

	return m.cancelLocked(userID)
}

// Restart wipes the user's session and begins a fresh one
func (m *Machine) Restart(userID int64) []Reply {
	release := m.store.LockUser(userID)
	defer release()

	return m.restartLocked(userID)
}

// Status reports the session's phase and slot progress
func (m *Machine) Status(userID int64) []Reply {
	sess, ok := m.store.Get(userID)
	if !ok {
		return []Reply{{
			Kind:  KindInfo,
			Title: "No Active Build",
			Body:  "Use `!build` to start a new PC build.",
		}}
	}

	missing := m.keywords.MissingForSession(sess.Slots, sess.Transcript)
	body := fmt.Sprintf("Phase: %s\nPreferences collected: %d/%d", sess.Phase, len(policy.RequiredSlots)-len(missing), len(policy.RequiredSlots))
	if len(missing) > 0 {
		body += "\nStill needed: " + strings.Join(missing, ", ")
	}

	return []Reply{{Kind: KindInfo, Title: "Build Status", Body: body}}
}

func (m *Machine) cancelLocked(userID int64) []Reply {
	if _, ok := m.store.Get(userID); !ok {
		return []Reply{{
			Kind:  KindInfo,
			Title: "Nothing To Cancel",
			Body:  "No active PC build session to cancel.",
		}}
	}

	if err := m.store.Delete(userID); err != nil {
		log.Printf("[FLOW]: cancel flush for user %d: %v", userID, err)
	}
	return []Reply{{
		Kind:  KindInfo,
		Title: "Build Cancelled",
		Body:  "PC build cancelled. Use `!build` to start again.",
	}}
}

func (m *Machine) restartLocked(userID int64) []Reply {
	if err := m.store.Delete(userID); err != nil {
		log.Printf("[FLOW]: restart flush for user %d: %v", userID, err)
	}
	m.store.GetOrCreate(userID)
	defer m.finishTurn(userID)

	return []Reply{{
		Kind:  KindInfo,
		Title: "Restarting PC Build",
		Body:  "Starting fresh! " + m.gen.Greeting(),
	}}
}

func (m *Machine) closeLocked(userID int64) []Reply {
	if err := m.store.Delete(userID); err != nil {
		log.Printf("[FLOW]: close flush for user %d: %v", userID, err)
	}
	return []Reply{{
		Kind:  KindInfo,
		Title: "All Done",
		Body:  "Awesome! Enjoy your new PC build! Use `!build` anytime to create another.",
	}}
}

// sessionExpired is the reply when the record disappeared mid-turn, e.g.
// background eviction racing an inbound message. The turn stops instead of
// proceeding on an empty record
func (m *Machine) sessionExpired() []Reply {
	return []Reply{{
		Kind:  KindInfo,
		Title: "Session Expired",
		Body:  "Your build session expired. Use `!build` to start a new one.",
	}}
}

// collectingTurn runs one interview exchange. The build path fires when the
// model emits its ready sentinel, or when the completion policy says every
// slot is already covered, whichever comes first
func (m *Machine) collectingTurn(ctx context.Context, userID int64, content string) []Reply {
	m.store.Update(userID, func(s *session.Session) {
		s.Append(session.RoleUser, content)
	})
	sess, ok := m.store.Get(userID)
	if !ok {
		return m.sessionExpired()
	}

	reply, err := m.gen.Converse(ctx, sess)
	if err != nil {
		log.Printf("[FLOW]: interview turn for user %d: %v", userID, err)
		return []Reply{{
			Kind:  KindError,
			Title: "Oops",
			Body:  "Sorry, I ran into an issue there. What would you like to tell me about your build?",
		}}
	}

	if strings.Contains(reply, build.ReadyMarker) {
		return m.runBuild(ctx, userID)
	}

	if m.keywords.Complete(sess.Slots, sess.Transcript) {
		log.Printf("[FLOW]: all preferences collected for user %d, generating", userID)
		return m.runBuild(ctx, userID)
	}

	m.store.Update(userID, func(s *session.Session) {
		s.Append(session.RoleAssistant, reply)
	})
	return []Reply{{Kind: KindAssistant, Title: "PC Builder Assistant", Body: reply}}
}

// runBuild generates the recommendation and presents it. Failure drops the
// session back to Collecting so the same turn can be retried
func (m *Machine) runBuild(ctx context.Context, userID int64) []Reply {
	m.store.Update(userID, func(s *session.Session) {
		s.Phase = session.PhaseGenerating
	})
	sess, ok := m.store.Get(userID)
	if !ok {
		return m.sessionExpired()
	}

	result, err := m.gen.GenerateBuild(ctx, sess)
	if err != nil {
		log.Printf("[FLOW]: build generation for user %d: %v", userID, err)
		m.store.Update(userID, func(s *session.Session) {
			s.Phase = session.PhaseCollecting
		})
		if errors.Is(err, build.ErrCatalogUnavailable) {
			return []Reply{{
				Kind:  KindError,
				Title: "Build Generation Error",
				Body:  "I can't reach the parts catalog right now, so I can't put a build together. Please try again in a bit.",
			}}
		}
		return []Reply{{
			Kind:  KindError,
			Title: "Build Generation Error",
			Body:  "Sorry, I ran into an issue generating your build. Send another message and I'll try again.",
		}}
	}

	m.store.Update(userID, func(s *session.Session) {
		s.BuildResult = result
		s.Phase = session.PhaseAwaitingFeedback
	})

	return []Reply{
		{Kind: KindBuild, Title: "Your Custom PC Build", Body: result},
		{
			Kind:  KindPrompt,
			Title: "Quick Feedback",
			Body:  "Did you like this build? Let me know what you think! Then we can refine it together.",
		},
	}
}

// feedbackTurn captures the next message verbatim as feedback, exactly once,
// logs the finished build to the collective file, and opens refinement
func (m *Machine) feedbackTurn(ctx context.Context, userID int64, content string) []Reply {
	m.store.Update(userID, func(s *session.Session) {
		s.Feedback = content
		s.Phase = session.PhaseRefining
	})
	sess, ok := m.store.Get(userID)
	if !ok {
		return m.sessionExpired()
	}

	entry := m.gen.Compress(ctx, sess)
	if number, err := m.builds.Append(entry); err != nil {
		log.Printf("[FLOW]: collective log append for user %d: %v", userID, err)
	} else {
		log.Printf("[FLOW]: build #%d recorded for user %d", number, userID)
	}

	return []Reply{{
		Kind:  KindPrompt,
		Title: "Want To Refine Your Build?",
		Body: "Thanks for the feedback! Ask about parts, request upgrades or downgrades, " +
			"change colors or RGB, or just chat about your build.\n\n" +
			"Type `done` when you're happy, or `restart` to start over.",
	}}
}

// refineTurn answers a change request or question against the current build
// and regenerates when the change heuristic fires
func (m *Machine) refineTurn(ctx context.Context, userID int64, content string) []Reply {
	m.store.Update(userID, func(s *session.Session) {
		s.EditLog = append(s.EditLog, content)
	})
	sess, ok := m.store.Get(userID)
	if !ok {
		return m.sessionExpired()
	}

	reply, err := m.gen.Refine(ctx, sess, content)
	if err != nil {
		log.Printf("[FLOW]: refinement for user %d: %v", userID, err)
		return []Reply{{
			Kind:  KindError,
			Title: "Oops",
			Body:  "Sorry, I ran into an issue there. What were you thinking about changing?",
		}}
	}

	replies := []Reply{{Kind: KindAssistant, Title: "Build Assistant", Body: reply}}

	if m.changed(content, reply) {
		result, err := m.gen.GenerateBuild(ctx, sess)
		if err != nil {
			log.Printf("[FLOW]: regeneration for user %d: %v", userID, err)
			replies = append(replies, Reply{
				Kind:  KindError,
				Title: "Oops",
				Body:  "I couldn't regenerate the build just now, but your request is noted. Try asking again.",
			})
			return replies
		}

		m.store.Update(userID, func(s *session.Session) {
			s.BuildResult = result
		})
		replies = append(replies, Reply{Kind: KindBuild, Title: "Your Updated PC Build", Body: result})
	}

	return replies
}

// finishTurn stamps activity, flushes the mirror, and appends the audit
// block. None of these may fail the turn
func (m *Machine) finishTurn(userID int64) {
	m.store.Update(userID, func(s *session.Session) {
		s.Touch(time.Now().UTC())
	})

	if err := m.store.Flush(); err != nil {
		log.Printf("[FLOW]: flush after turn for user %d: %v", userID, err)
	}

	sess, ok := m.store.Get(userID)
	if !ok {
		return
	}
	if err := m.audit.Append(userID, auditLines(sess)); err != nil {
		log.Printf("[FLOW]: audit append for user %d: %v", userID, err)
	}
}

func auditLines(sess session.Session) []string {
	lines := []string{
		"phase: " + string(sess.Phase),
		fmt.Sprintf("slots: %d/%d", len(sess.Slots), len(policy.RequiredSlots)),
		fmt.Sprintf("messages: %d", len(sess.Transcript)),
	}
	if sess.Feedback != "" {
		lines = append(lines, "feedback: "+sess.Feedback)
	}
	return lines
}
