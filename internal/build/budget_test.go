package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetCeiling(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		ceiling int
	}{
		// 85% of 1000 is 850, but the cap never sits closer than $200
		// under the stated budget, so 800 wins
		{name: "small budget takes the -200 bound", input: "1000", ceiling: 800},
		// 85% of 2000 is 1700, well under 2000-200=1800
		{name: "large budget takes the 85% bound", input: "2000", ceiling: 1700},
		{name: "exact crossover", input: "1333", ceiling: 1133},
		{name: "commas stripped", input: "$2,000", ceiling: 1700},
		{name: "number inside a sentence", input: "somewhere around 1500 I guess", ceiling: 1275},
		{name: "gaming keyword default", input: "no idea, maybe for fortnite", ceiling: 800},
		{name: "budget keyword default", input: "whatever a sensible budget is", ceiling: 1200},
		{name: "plain default", input: "dunno", ceiling: 1000},
		{name: "empty slot", input: "", ceiling: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ceiling, line := BudgetCeiling(tt.input)
			assert.Equal(t, tt.ceiling, ceiling)
			assert.NotEmpty(t, line)
		})
	}
}

func TestBudgetCeiling_LineMentionsCeiling(t *testing.T) {
	_, line := BudgetCeiling("2000")
	assert.Contains(t, line, "$1700")

	_, line = BudgetCeiling("for gaming")
	assert.Contains(t, line, "$800")
}
