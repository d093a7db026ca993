package discord

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/colbyharris/pcforge/internal/flow"
)

func TestChunkString(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, chunkString("   ", 10))
	})

	t.Run("short stays whole", func(t *testing.T) {
		chunks := chunkString("a short message", 100)
		assert.Equal(t, []string{"a short message"}, chunks)
	})

	t.Run("long splits under limit", func(t *testing.T) {
		long := strings.Repeat("One sentence here. ", 50)
		chunks := chunkString(long, 100)
		assert.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 100)
			assert.NotEmpty(t, c)
		}
	})

	t.Run("prefers sentence boundary", func(t *testing.T) {
		chunks := chunkString("First sentence. Second sentence that goes on for a while.", 30)
		assert.Equal(t, "First sentence.", chunks[0])
	})
}

func TestKindColor(t *testing.T) {
	assert.Equal(t, 0x00ff00, kindColor(flow.KindAssistant))
	assert.Equal(t, 0x9932cc, kindColor(flow.KindBuild))
	assert.Equal(t, 0xff0000, kindColor(flow.KindError))
	assert.Equal(t, 0xffaa00, kindColor(flow.KindInfo))
	assert.Equal(t, 0xffaa00, kindColor("unknown"))
}
