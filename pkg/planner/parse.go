package planner

import (
	"regexp"
	"strings"
)

// listMarker matches numbered ("1.", "2)", "3:") and bulleted ("-", "*", "•")
// list prefixes.
var listMarker = regexp.MustCompile(`^\s*(?:\d+\s*[.):]|[-*•])\s+`)

// parsePlan extracts step descriptions from an LLM response. Tolerates
// numbered, bulleted and plain-line formats. Blank lines are ignored. When
// the response uses list markers, preamble before the first marker and
// trailing commentary after the last marker line are discarded.
func parsePlan(text string) []string {
	lines := strings.Split(text, "\n")

	marked := false
	for _, line := range lines {
		if listMarker.MatchString(line) {
			marked = true
			break
		}
	}

	var steps []string
	inList := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !marked {
			steps = append(steps, trimmed)
			continue
		}
		if listMarker.MatchString(line) {
			inList = true
			steps = append(steps, strings.TrimSpace(listMarker.ReplaceAllString(line, "")))
			continue
		}
		if inList {
			// First non-list line after the list: trailing commentary.
			break
		}
		// Preamble before the list starts.
	}

	// A marker wrapping no text yields an empty step; drop those.
	out := steps[:0]
	for _, s := range steps {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
