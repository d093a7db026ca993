package build

import (
	"fmt"
	"regexp"
	"strings"
)

// Fallback ceilings applied when the budget slot has no parseable number
const (
	defaultGamingCeiling  = 800
	defaultAdviceCeiling  = 1200
	defaultGeneralCeiling = 1000
)

var budgetNumberRe = regexp.MustCompile(`\d[\d,]*`)

// BudgetCeiling derives the hard spending cap from the free-text budget
// slot. A parseable number v yields min(floor(v*0.85), v-200); the cap never
// sits closer than $200 under the stated budget. Unparseable text falls back
// to a keyword-matched default. Returns the ceiling and the budget line used
// in the generation prompt
func BudgetCeiling(text string) (int, string) {
	if m := budgetNumberRe.FindString(strings.ReplaceAll(text, ",", "")); m != "" {
		v := 0
		for _, ch := range m {
			v = v*10 + int(ch-'0')
		}

		ceiling := v * 85 / 100
		if v-200 < ceiling {
			ceiling = v - 200
		}
		return ceiling, fmt.Sprintf("MAXIMUM TOTAL BUDGET: $%d (absolute maximum, do not exceed)", ceiling)
	}

	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "fortnite", "gaming", "game"):
		return defaultGamingCeiling, fmt.Sprintf("RECOMMENDED GAMING BUDGET: $%d (good for competitive gaming)", defaultGamingCeiling)
	case containsAny(lower, "budget", "cost", "price", "spend", "afford"):
		return defaultAdviceCeiling, fmt.Sprintf("RECOMMENDED BUDGET: $%d (balanced performance and value)", defaultAdviceCeiling)
	default:
		return defaultGeneralCeiling, fmt.Sprintf("RECOMMENDED BUDGET: $%d (good starting point)", defaultGeneralCeiling)
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
