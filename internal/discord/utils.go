package discord

import (
	"regexp"
	"strings"

	"github.com/colbyharris/pcforge/internal/flow"
)

// embedBodyLimit keeps chunks under Discord's 4096-char embed description cap
const embedBodyLimit = 4000

// kindColor maps a reply kind to its embed color
func kindColor(kind string) int {
	switch kind {
	case flow.KindAssistant:
		return 0x00ff00
	case flow.KindBuild:
		return 0x9932cc
	case flow.KindPrompt:
		return 0x0099ff
	case flow.KindError:
		return 0xff0000
	default:
		return 0xffaa00
	}
}

// chunkString splits a long string into smaller chunks, ensuring no chunk exceeds the specified size
func chunkString(s string, size int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for len(s) > size {
		// Try to split on paragraph or sentence boundaries
		split := findSplit(s[:size])
		out = append(out, strings.TrimSpace(s[:split]))
		s = s[split:]
	}
	if strings.TrimSpace(s) != "" {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// splitRe is a regex to find natural split points in text
var splitRe = regexp.MustCompile(`(?s)(.*?[\n\r]{2}|.*?[.!?])$`)

// findSplit finds the index of a good split point in the string
func findSplit(s string) int {
	m := splitRe.FindStringSubmatchIndex(s)
	if len(m) >= 4 {
		return m[3]
	}
	return len(s)
}
