// Package build produces and refines PC build recommendations by prompting
// a text-generation backend with the parts catalog and a session snapshot.
package build

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/colbyharris/pcforge/internal/session"
)

// transcriptWindow bounds how much conversation is fed to the model
const transcriptWindow = 30

// TextClient is the single-prompt surface of the generation backend
type TextClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator builds prompts from session snapshots and the parts catalog and
// delegates the actual text generation to a TextClient
type Generator struct {
	llm         TextClient
	catalogPath string
	greeting    string
}

// NewGenerator creates a generator reading the catalog from catalogPath on
// every call, so catalog updates take effect without a restart. An empty
// greeting keeps the default opener
func NewGenerator(llm TextClient, catalogPath, greeting string) *Generator {
	if greeting == "" {
		greeting = Greeting
	}
	return &Generator{llm: llm, catalogPath: catalogPath, greeting: greeting}
}

// Greeting returns the preloaded first assistant message for new sessions
func (g *Generator) Greeting() string {
	return g.greeting
}

// CheckCatalog reports whether the catalog is currently loadable. Used by
// health reporting
func (g *Generator) CheckCatalog() error {
	_, err := loadCatalog(g.catalogPath)
	return err
}

// Converse runs one interview turn: the reply either continues the
// conversation or carries the ReadyMarker sentinel when all fields are
// collected
func (g *Generator) Converse(ctx context.Context, sess session.Session) (string, error) {
	prompt := conversePrompt(sess.TranscriptTail(transcriptWindow), sess.Slots, g.greeting)

	reply, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("interview turn for user %d: %w", sess.UserID, err)
	}
	return reply, nil
}

// GenerateBuild produces a full recommendation document from the session's
// preferences and the catalog
func (g *Generator) GenerateBuild(ctx context.Context, sess session.Session) (string, error) {
	catalog, err := loadCatalog(g.catalogPath)
	if err != nil {
		return "", err
	}

	log.Printf("[BUILD]: generating build for user %d (catalog %d bytes)", sess.UserID, len(catalog))

	result, err := g.llm.Complete(ctx, buildPrompt(sess, catalog))
	if err != nil {
		return "", fmt.Errorf("build generation for user %d: %w", sess.UserID, err)
	}
	return result, nil
}

// Refine answers a post-build question or change request against the
// current recommendation
func (g *Generator) Refine(ctx context.Context, sess session.Session, userMessage string) (string, error) {
	catalog, err := loadCatalog(g.catalogPath)
	if err != nil {
		return "", err
	}

	reply, err := g.llm.Complete(ctx, refinePrompt(sess, userMessage, catalog))
	if err != nil {
		return "", fmt.Errorf("refinement for user %d: %w", sess.UserID, err)
	}
	return reply, nil
}

// Compress renders a completed session into a compact history-log entry.
// When the model fails it falls back to a deterministic extraction so the
// history sink still gets an entry
func (g *Generator) Compress(ctx context.Context, sess session.Session) string {
	entry, err := g.llm.Complete(ctx, compressPrompt(sess))
	if err == nil && strings.TrimSpace(entry) != "" {
		return strings.TrimSpace(entry)
	}

	log.Printf("[BUILD]: compression fell back to extraction for user %d: %v", sess.UserID, err)
	return compressFallback(sess)
}

// compressFallback extracts a compact entry without the model: simplified
// preferences, the component lines of the build, and a bucketed feedback
// verdict
func compressFallback(sess session.Session) string {
	var lines []string

	for _, name := range []string{"color", "rgb_level", "aesthetics", "use_case", "budget"} {
		if v := sess.Slots[name]; v != "" {
			lines = append(lines, strings.ToLower(strings.TrimSpace(v)))
		}
	}

	lines = append(lines, extractParts(sess.BuildResult)...)

	if sess.Feedback != "" {
		lines = append(lines, feedbackVerdict(sess.Feedback))
	}

	if len(lines) == 0 {
		return "(empty session)"
	}
	return strings.Join(lines, "\n")
}

// extractParts pulls the component lines out of a build document's
// COMPONENT BREAKDOWN section
func extractParts(buildResult string) []string {
	var parts []string
	in := false
	for _, line := range strings.Split(buildResult, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		switch {
		case strings.Contains(upper, "COMPONENT BREAKDOWN"):
			in = true
		case strings.Contains(upper, "EXTRA NOTES") || strings.Contains(upper, "DEBUG PRICE CHECK"):
			in = false
		case in && strings.Contains(line, ":") && len(line) < 200:
			parts = append(parts, line)
		}
	}
	if len(parts) > 8 {
		parts = parts[:8]
	}
	return parts
}

// feedbackVerdict buckets free-text feedback into a short verdict
func feedbackVerdict(feedback string) string {
	f := strings.ToLower(feedback)
	switch {
	case containsAny(f, "love", "perfect", "great"):
		return "loved it"
	case containsAny(f, "expensive", "too much"):
		return "too expensive"
	case containsAny(f, "good", "nice"):
		return "liked it"
	case containsAny(f, "bad", "hate"):
		return "didn't like"
	default:
		return "mixed feelings"
	}
}
