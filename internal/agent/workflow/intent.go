package workflow

import "strings"

var analysisKeywords = []string{
	"analyze", "analysis", "research", "check", "explore", "look at", "review", "evaluate", "assess",
}

// findURL returns the first whitespace token that starts with "http".
func findURL(text string) string {
	for _, tok := range strings.Fields(text) {
		if strings.HasPrefix(tok, "http") {
			return tok
		}
	}
	return ""
}

func hasAnalysisIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range analysisKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isCancel(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cancel", "stop":
		return true
	}
	return false
}
