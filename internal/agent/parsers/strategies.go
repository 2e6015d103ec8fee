package parsers

import (
	"regexp"
	"strings"

	"github.com/audience-andy/server/internal/agent/model"
)

const maxStrategyBlocks = 50

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// ParseStrategies splits completion text on blank lines. Every non-empty
// block becomes one strategy, numbered from 1.
func ParseStrategies(text string) []model.MarketingStrategy {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	out := []model.MarketingStrategy{}
	for _, block := range blankLine.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if len(out) >= maxStrategyBlocks {
			break
		}
		out = append(out, model.MarketingStrategy{ID: len(out) + 1, Content: block})
	}
	return out
}
