// Package guardrail holds deterministic pre-LLM checks that can
// short-circuit the capture pipeline into needs_review without a model call.
package guardrail

import (
	"regexp"
	"strings"
)

var (
	numberedLineRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+`)
	bulletLineRe   = regexp.MustCompile(`(?m)^\s*[*-]\s+`)
	sentenceEndRe  = regexp.MustCompile(`[.!?](?:\s|$)`)
	connectorRe    = regexp.MustCompile(`(?i)\b(?:and also|also|additionally|furthermore|moreover|plus)\b`)
)

// Detect reports whether text probably contains multiple distinct thoughts.
// It is pure and deliberately crude: LLMs are unreliable at self-reporting
// compound input, so this runs before any model call. The thresholds are a
// contract shared with the test suite; do not tune them.
//
// Triggers, any one of which is enough:
//   - a numbered list line, or two or more bullet lines
//   - two or more sentence boundaries combined with an additive connector
//     word or a semicolon
//   - four or more sentence boundaries regardless of connectors
//
// Empty or whitespace-only input is not multi-thought; the caller handles
// emptiness separately.
func Detect(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	if numberedLineRe.MatchString(text) {
		return true
	}
	if len(bulletLineRe.FindAllStringIndex(text, 3)) >= 2 {
		return true
	}

	boundaries := len(sentenceEndRe.FindAllStringIndex(text, -1))
	if boundaries >= 4 {
		return true
	}
	if boundaries >= 2 && (connectorRe.MatchString(text) || strings.Contains(text, ";")) {
		return true
	}

	return false
}
