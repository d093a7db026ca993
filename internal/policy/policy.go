// Package policy decides when a session has collected enough preference
// information to generate a build. The keyword heuristics are intentionally
// permissive: a slot implied by free text must never block completion just
// because no structured value was captured.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/colbyharris/pcforge/internal/session"
)

// RequiredSlots are the seven preference fields a build needs. Order matters
// only for prompt construction
var RequiredSlots = []string{
	"budget",
	"color",
	"rgb_level",
	"aesthetics",
	"use_case",
	"upgradeability",
	"extra_notes",
}

// Keywords maps each slot to the words whose presence in the transcript
// satisfies it without a structured value. Budget additionally requires a
// digit somewhere in the transcript
type Keywords map[string][]string

// DefaultKeywords returns the built-in keyword sets
func DefaultKeywords() Keywords {
	return Keywords{
		"budget":         {"$", "dollar", "budget", "price", "cost", "around", "under", "over"},
		"color":          {"black", "white", "red", "blue", "green", "pink", "purple", "rgb"},
		"rgb_level":      {"rgb", "light", "led", "none", "lots", "some"},
		"aesthetics":     {"look", "aesthetic", "style", "performance", "balanced"},
		"use_case":       {"fortnite", "league", "minecraft", "valorant", "gaming", "streaming", "work"},
		"upgradeability": {"upgrade", "wont", "won't", "might", "will", "nah"},
		"extra_notes":    {"special", "request", "requirement", "need", "want", "none", "no", "nah"},
	}
}

// LoadKeywords reads keyword overrides from a YAML file mapping slot names to
// word lists. Slots absent from the file keep their defaults; unknown slots
// are rejected so typos don't silently disable a heuristic
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read keywords %s: %w", path, err)
	}

	var overrides map[string][]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("policy: parse keywords %s: %w", path, err)
	}

	for slot, words := range overrides {
		if _, ok := kw[slot]; !ok {
			return nil, fmt.Errorf("policy: unknown slot %q in %s", slot, path)
		}
		kw[slot] = words
	}

	return kw, nil
}

// Complete reports whether every required slot is satisfied, either by a
// non-empty structured value or by its keyword set appearing in the
// transcript
func (kw Keywords) Complete(slots map[string]string, transcript []session.Message) bool {
	return len(kw.missing(slots, transcript)) == 0
}

// Missing returns the required slots with no structured value yet, in
// canonical order. Used to tell the generator what to ask about next
func Missing(slots map[string]string) []string {
	var out []string
	for _, name := range RequiredSlots {
		if slots[name] == "" {
			out = append(out, name)
		}
	}
	return out
}

// MissingForSession returns the still-unsatisfied slots counting both
// routes, in canonical order. Used for status reporting
func (kw Keywords) MissingForSession(slots map[string]string, transcript []session.Message) []string {
	return kw.missing(slots, transcript)
}

func (kw Keywords) missing(slots map[string]string, transcript []session.Message) []string {
	chat := flatten(transcript)

	var out []string
	for _, name := range RequiredSlots {
		if slots[name] != "" {
			continue
		}
		if kw.satisfiedByChat(name, chat) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (kw Keywords) satisfiedByChat(slot, chat string) bool {
	hit := false
	for _, word := range kw[slot] {
		if strings.Contains(chat, word) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}

	// Budget keywords only count alongside at least one digit
	if slot == "budget" {
		return strings.ContainsAny(chat, "0123456789")
	}
	return true
}

// flatten lowercases and joins the transcript text for keyword scanning
func flatten(transcript []session.Message) string {
	var b strings.Builder
	for _, m := range transcript {
		b.WriteString(strings.ToLower(m.Text))
		b.WriteString(" ")
	}
	return b.String()
}
