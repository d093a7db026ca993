package build

import (
	"fmt"
	"strings"

	"github.com/colbyharris/pcforge/internal/policy"
	"github.com/colbyharris/pcforge/internal/session"
)

// ReadyMarker is the sentinel the interview model appends once every
// preference field has been collected
const ReadyMarker = "<READY_TO_BUILD>"

// Greeting is the default preloaded first assistant message shown when a
// session starts. The interview prompt tells the model not to repeat it.
// Overridable per deployment via the generator's greeting text
const Greeting = "Hey! I'm your AI PC builder. What's your budget for this build?"

// formatHistory renders a transcript tail as "Role: text" lines
func formatHistory(tail []session.Message) string {
	var out []string
	for _, m := range tail {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		role := "Assistant"
		if m.Role == session.RoleUser {
			role = "User"
		}
		out = append(out, role+": "+text)
	}
	return strings.Join(out, "\n")
}

// formatAnswers renders collected slots as bullet lines in canonical order
func formatAnswers(slots map[string]string) string {
	var out []string
	for _, name := range policy.RequiredSlots {
		if v := slots[name]; v != "" {
			out = append(out, fmt.Sprintf("- %s: %s", name, v))
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, "\n")
}

// conversePrompt builds the interview-phase prompt: conversation so far,
// collected answers, the fields still missing, and the ready sentinel
// contract
func conversePrompt(tail []session.Message, slots map[string]string, greeting string) string {
	missing := policy.Missing(slots)
	missingText := "none"
	if len(missing) > 0 {
		missingText = strings.Join(missing, ", ")
	}

	return fmt.Sprintf(`You are the onboarding wizard for an AI PC builder. Friendly, concise, conversational.
The UI already showed the first assistant message below - do NOT repeat it; continue naturally from it:
PRELOADED: %s

Conversation so far:
%s

Collected answers so far (if any):
%s

Fields to capture (ONLY these 7 fields - do NOT ask about components):
- budget (freeform; numbers or ranges like 800-1500 are fine)
- color (recommend black/white, but accept any choice; suggest RGB can provide exotic colors)
- rgb_level preference (number 0-10 OR words like "none", "subtle", "medium", "lots", "max")
- aesthetics preference (number 0-10 OR words like "low", "balanced", "high")
- use_case (freeform: games, streaming, editing, etc.)
- upgradeability (freeform: "won't upgrade", "might upgrade", "will upgrade")
- extra_notes (freeform: any special requirements, or "none")

Missing fields: %s

Instructions:
- Ask ONLY ONE question at a time and keep responses under 100 words.
- ACCEPT simple answers (like "fortnite", "nah") and move to the next field; never ask "just to confirm".
- Do NOT ask about specific components (AMD vs Intel, cooling types, etc.) - only the 7 fields above.
- Always end with a single question to keep the conversation flowing.

IMPORTANT: You MUST end your message with %s when you have collected information for ALL 7 fields.`,
		greeting, formatHistory(tail), formatAnswers(slots), missingText, ReadyMarker)
}

// buildPrompt assembles the full build-generation prompt from the catalog
// blob, the derived budget cap, and the user's preferences
func buildPrompt(sess session.Session, catalog string) string {
	ceiling, budgetLine := BudgetCeiling(sess.Slots["budget"])

	return fmt.Sprintf(`You are a friendly PC build expert. Using the compact catalog below and the user's brief, design a cohesive build that balances performance, noise, thermals, and value.

CATALOG (compact, one line per item):
%s

How to read the catalog:
- Only lines that start with "I|" are items; format is I|Category|Name $Price.
- Treat these catalog prices as the ONLY valid prices; never estimate prices from elsewhere.
- Use them for internal comparisons, but do not output any prices outside DEBUG PRICE CHECK.

COST RULES (hard constraints):
- Absolute budget cap: $%d. Sum your chosen parts' catalog prices before answering; revise until the total is under the cap.

BUDGET AND CONTEXT:
- %s
- Use case: %s
- Color scheme: %s
- RGB preference (0-10): %s
- Aesthetics priority (0-10): %s
- Upgradeability: %s
- Extra notes: %s

Selection guidance:
- Value first: spend where it matters (CPU/GPU/SSD), then refine cooling and looks.
- Keep parts physically and electrically compatible (sockets, clearances, connectors).
- You MUST select a case from the catalog matching the color preference.

OUTPUT FORMAT (strict):
- Start with a single-line build name, then 2-3 short descriptive paragraphs.
- Add the exact title: COMPONENT BREAKDOWN
  Then one line per component in this order: CPU, SSD, (optional) HDD, Case, Power Supply, CPU Cooler, Graphics Card, RAM, Motherboard, (optional) Fans.
  After each line add 1-3 sentences explaining the choice, then a line with just ---
- Add the exact title: EXTRA NOTES and briefly address the user's special considerations.
- Add the exact title: DEBUG PRICE CHECK
  Then list each selected component as "Name = $<price>" and finish with "TOTAL = $<sum>".

Output exactly ONE complete build and keep the exact section titles so the app can parse them.`,
		catalog, ceiling, budgetLine,
		slotOr(sess.Slots, "use_case", "General use"),
		slotOr(sess.Slots, "color", "Black"),
		slotOr(sess.Slots, "rgb_level", "5"),
		slotOr(sess.Slots, "aesthetics", "5"),
		slotOr(sess.Slots, "upgradeability", "I might upgrade"),
		sess.Slots["extra_notes"])
}

// refinePrompt assembles the post-build refinement prompt
func refinePrompt(sess session.Session, userMessage, catalog string) string {
	return fmt.Sprintf(`You are a friendly PC build assistant helping refine an existing build. The user already received their recommendation and wants changes or has questions.

CURRENT BUILD:
%s

USER'S REQUEST:
%s

USER PREFERENCES:
- Budget: %s
- Use Case: %s
- Color: %s
- RGB Level: %s/10
- Aesthetics: %s/10
- Upgradeability: %s
- Extra Notes: %s

PARTS CATALOG (for reference):
%s

Instructions:
- Be conversational; if they want different parts, suggest specific alternatives from the catalog.
- Explain trade-offs for upgrades/downgrades; focus on value, performance, and compatibility.
- Keep responses under 100 words and end with a single question.`,
		sess.BuildResult, userMessage,
		slotOr(sess.Slots, "budget", "N/A"),
		slotOr(sess.Slots, "use_case", "N/A"),
		slotOr(sess.Slots, "color", "N/A"),
		slotOr(sess.Slots, "rgb_level", "N/A"),
		slotOr(sess.Slots, "aesthetics", "N/A"),
		slotOr(sess.Slots, "upgradeability", "N/A"),
		slotOr(sess.Slots, "extra_notes", "N/A"),
		catalog)
}

// compressPrompt asks the model for a compact history-log entry describing a
// completed session
func compressPrompt(sess session.Session) string {
	var convo strings.Builder
	for _, m := range sess.Transcript {
		convo.WriteString(m.Role + ": " + m.Text + " ")
	}

	buildText := sess.BuildResult
	if len(buildText) > 1000 {
		buildText = buildText[:1000]
	}

	return fmt.Sprintf(`Create a compressed PC build entry: one item per line, no labels. Lines in order: color, rgb/10, aesthetics/10, use case, budget tier, "EN: <one-line note about user needs or confusion>", then the main chosen parts, then a short feedback verdict.

Based on this conversation and build:
CONVERSATION: %s
BUILD: %s
FEEDBACK: %s

Respond with ONLY the compressed entry.`,
		strings.TrimSpace(convo.String()), buildText, sess.Feedback)
}

func slotOr(slots map[string]string, name, fallback string) string {
	if v := slots[name]; v != "" {
		return v
	}
	return fallback
}
