package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colbyharris/pcforge/internal/session"
)

func userSays(texts ...string) []session.Message {
	var out []session.Message
	for _, t := range texts {
		out = append(out, session.Message{Role: session.RoleUser, Text: t})
	}
	return out
}

func TestComplete_AllSlotsStructured(t *testing.T) {
	kw := DefaultKeywords()

	slots := map[string]string{}
	// Fill slots one at a time in a scrambled order; completion must only
	// flip on the last one regardless of order
	order := []string{"extra_notes", "budget", "use_case", "color", "upgradeability", "rgb_level", "aesthetics"}
	for i, name := range order {
		slots[name] = "something"
		if i < len(order)-1 {
			assert.False(t, kw.Complete(slots, nil), "incomplete after %d slots", i+1)
		}
	}
	assert.True(t, kw.Complete(slots, nil))
}

func TestComplete_BudgetFallbackRoute(t *testing.T) {
	kw := DefaultKeywords()

	// Six of seven slots structured, budget never captured
	slots := map[string]string{
		"color":          "white",
		"rgb_level":      "7",
		"aesthetics":     "8",
		"use_case":       "fortnite",
		"upgradeability": "might upgrade",
		"extra_notes":    "none",
	}
	assert.False(t, kw.Complete(slots, nil))

	// A message with only digits and the word "budget" satisfies the slot
	// via the keyword route without any structured value being set
	transcript := userSays("my budget is 1200")
	assert.True(t, kw.Complete(slots, transcript))
	assert.Empty(t, slots["budget"], "fallback must not write the slot")
}

func TestComplete_BudgetKeywordNeedsDigit(t *testing.T) {
	kw := DefaultKeywords()

	slots := map[string]string{
		"color":          "black",
		"rgb_level":      "0",
		"aesthetics":     "3",
		"use_case":       "work",
		"upgradeability": "won't",
		"extra_notes":    "none",
	}

	assert.False(t, kw.Complete(slots, userSays("not sure about my budget yet")))
	assert.True(t, kw.Complete(slots, userSays("budget is about 900")))
}

func TestComplete_AllSlotsViaChat(t *testing.T) {
	kw := DefaultKeywords()

	transcript := userSays(
		"around $1000",
		"white please",
		"lots of rgb",
		"looks matter, balanced maybe",
		"mostly fortnite",
		"might upgrade later",
		"no special requests",
	)
	assert.True(t, kw.Complete(map[string]string{}, transcript))
}

func TestMissing(t *testing.T) {
	slots := map[string]string{"budget": "1000", "color": "black"}
	assert.Equal(t,
		[]string{"rgb_level", "aesthetics", "use_case", "upgradeability", "extra_notes"},
		Missing(slots))

	for _, name := range RequiredSlots {
		slots[name] = "x"
	}
	assert.Empty(t, Missing(slots))
}

func TestLoadKeywords(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides merge with defaults", func(t *testing.T) {
		path := filepath.Join(dir, "keywords.yaml")
		require.NoError(t, os.WriteFile(path, []byte("use_case:\n  - blender\n  - rendering\n"), 0o644))

		kw, err := LoadKeywords(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"blender", "rendering"}, kw["use_case"])
		assert.Equal(t, DefaultKeywords()["budget"], kw["budget"])
	})

	t.Run("unknown slot rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("useCase:\n  - blender\n"), 0o644))

		_, err := LoadKeywords(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadKeywords(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}
