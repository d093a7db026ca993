package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colbyharris/pcforge/internal/session"
)

// fakeClient records the last prompt and replies with canned content
type fakeClient struct {
	lastPrompt string
	reply      string
	err        error
}

func (f *fakeClient) Complete(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.reply, f.err
}

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parts_catalog")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testSession() session.Session {
	return session.Session{
		UserID: 42,
		Slots: map[string]string{
			"budget":   "2000",
			"color":    "white",
			"use_case": "fortnite",
		},
		Transcript: []session.Message{
			{Role: session.RoleUser, Text: "hi"},
			{Role: session.RoleAssistant, Text: "what's your budget?"},
		},
	}
}

func TestGenerator_Converse(t *testing.T) {
	client := &fakeClient{reply: "Got it! What color scheme do you like?"}
	gen := NewGenerator(client, writeCatalog(t, "I|CPU|Ryzen 5 $200"), "")

	reply, err := gen.Converse(context.Background(), testSession())
	require.NoError(t, err)
	assert.Equal(t, "Got it! What color scheme do you like?", reply)

	// The prompt carries the transcript, the collected answers, the missing
	// fields, and the sentinel contract
	assert.Contains(t, client.lastPrompt, "User: hi")
	assert.Contains(t, client.lastPrompt, "- budget: 2000")
	assert.Contains(t, client.lastPrompt, "rgb_level, aesthetics")
	assert.Contains(t, client.lastPrompt, ReadyMarker)
}

func TestGenerator_GreetingOverride(t *testing.T) {
	client := &fakeClient{reply: "ok"}

	t.Run("default when empty", func(t *testing.T) {
		gen := NewGenerator(client, writeCatalog(t, "I|CPU|Ryzen 5 $200"), "")
		assert.Equal(t, Greeting, gen.Greeting())
	})

	t.Run("custom greeting flows into the interview prompt", func(t *testing.T) {
		gen := NewGenerator(client, writeCatalog(t, "I|CPU|Ryzen 5 $200"), "Welcome to the build lab! What's your budget?")
		assert.Equal(t, "Welcome to the build lab! What's your budget?", gen.Greeting())

		_, err := gen.Converse(context.Background(), testSession())
		require.NoError(t, err)
		assert.Contains(t, client.lastPrompt, "PRELOADED: Welcome to the build lab! What's your budget?")
		assert.NotContains(t, client.lastPrompt, "PRELOADED: "+Greeting)
	})
}

func TestGenerator_ConverseError(t *testing.T) {
	client := &fakeClient{err: errors.New("boom")}
	gen := NewGenerator(client, writeCatalog(t, "I|CPU|Ryzen 5 $200"), "")

	_, err := gen.Converse(context.Background(), testSession())
	assert.Error(t, err)
}

func TestGenerator_GenerateBuild(t *testing.T) {
	client := &fakeClient{reply: "Frost Rig\nCOMPONENT BREAKDOWN\nCPU: Ryzen 5"}
	gen := NewGenerator(client, writeCatalog(t, "I|CPU|Ryzen 5 $200\nI|Case|NZXT H5 $90"), "")

	result, err := gen.GenerateBuild(context.Background(), testSession())
	require.NoError(t, err)
	assert.Contains(t, result, "COMPONENT BREAKDOWN")

	// Catalog and derived cap flow into the prompt
	assert.Contains(t, client.lastPrompt, "I|Case|NZXT H5 $90")
	assert.Contains(t, client.lastPrompt, "$1700")
	assert.Contains(t, client.lastPrompt, "DEBUG PRICE CHECK")
}

func TestGenerator_CatalogUnavailable(t *testing.T) {
	client := &fakeClient{reply: "irrelevant"}

	t.Run("missing file", func(t *testing.T) {
		gen := NewGenerator(client, filepath.Join(t.TempDir(), "nope"), "")
		_, err := gen.GenerateBuild(context.Background(), testSession())
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
		assert.ErrorIs(t, gen.CheckCatalog(), ErrCatalogUnavailable)
	})

	t.Run("empty file", func(t *testing.T) {
		gen := NewGenerator(client, writeCatalog(t, "   \n"), "")
		_, err := gen.GenerateBuild(context.Background(), testSession())
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
	})
}

func TestGenerator_Refine(t *testing.T) {
	client := &fakeClient{reply: "Sure, I changed the GPU to an RX 9070."}
	gen := NewGenerator(client, writeCatalog(t, "I|GPU|RX 9070 $550"), "")

	sess := testSession()
	sess.BuildResult = "Frost Rig\nCOMPONENT BREAKDOWN\nGPU: RTX 5060"

	reply, err := gen.Refine(context.Background(), sess, "can you upgrade the gpu?")
	require.NoError(t, err)
	assert.Contains(t, reply, "RX 9070")

	assert.Contains(t, client.lastPrompt, "GPU: RTX 5060")
	assert.Contains(t, client.lastPrompt, "can you upgrade the gpu?")
}

func TestGenerator_CompressFallsBack(t *testing.T) {
	client := &fakeClient{err: errors.New("model down")}
	gen := NewGenerator(client, writeCatalog(t, "I|CPU|Ryzen 5 $200"), "")

	sess := testSession()
	sess.BuildResult = "Frost Rig\nCOMPONENT BREAKDOWN\nCPU: Ryzen 5 7600\n---\nRAM: 32GB DDR5\nEXTRA NOTES\nnothing"
	sess.Feedback = "love it, perfect"

	entry := gen.Compress(context.Background(), sess)
	assert.Contains(t, entry, "white")
	assert.Contains(t, entry, "CPU: Ryzen 5 7600")
	assert.Contains(t, entry, "RAM: 32GB DDR5")
	assert.Contains(t, entry, "loved it")
	assert.NotContains(t, entry, "EXTRA NOTES")
}

func TestGenerator_CompressUsesModelWhenAvailable(t *testing.T) {
	client := &fakeClient{reply: "white\n7/10\nfortnite\nRX 9070\nloved it"}
	gen := NewGenerator(client, writeCatalog(t, "I|CPU|Ryzen 5 $200"), "")

	entry := gen.Compress(context.Background(), testSession())
	assert.Equal(t, "white\n7/10\nfortnite\nRX 9070\nloved it", entry)
}

func TestFeedbackVerdict(t *testing.T) {
	tests := []struct {
		feedback string
		verdict  string
	}{
		{"Love it!", "loved it"},
		{"way too much money, expensive", "too expensive"},
		{"pretty good", "liked it"},
		{"hate the case", "didn't like"},
		{"hmm", "mixed feelings"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.verdict, feedbackVerdict(tt.feedback), tt.feedback)
	}
}
