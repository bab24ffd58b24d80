// Package flow is the multi-agent entry point: it scores task complexity,
// picks an execution strategy (single, sequential, parallel) and emits the
// coarse user-facing progress stages. Step execution itself is shared with
// the workflow engine through the step runner.
package flow

import (
	"strings"

	"github.com/taskweave/taskweave/pkg/workflow"
)

// conjunctions signal multiple chained subtasks.
var conjunctions = []string{
	"and then", "after that", "followed by", "once that is done", "e depois",
}

// timeConsumingMarkers signal broad or exhaustive work.
var timeConsumingMarkers = []string{
	"all", "every", "entire", "complete", "comprehensive",
	"detailed", "thorough", "full", "in depth",
}

// ComplexityAnalyzer computes the [0,1] score driving strategy selection.
type ComplexityAnalyzer struct {
	classifier *workflow.Classifier
}

// NewComplexityAnalyzer creates an analyzer reusing the step classifier's
// tool-keyword set as one of its signals.
func NewComplexityAnalyzer(classifier *workflow.Classifier) *ComplexityAnalyzer {
	return &ComplexityAnalyzer{classifier: classifier}
}

// Score combines length, conjunction, tool-keyword and breadth signals.
// Deterministic for a given task string.
func (a *ComplexityAnalyzer) Score(task string) float64 {
	lower := strings.ToLower(task)
	score := lengthSignal(task)

	hits := 0
	for _, c := range conjunctions {
		if strings.Contains(lower, c) {
			hits++
		}
	}
	score += min(float64(hits)*0.15, 0.3)

	score += min(float64(a.classifier.KeywordHits(task))*0.1, 0.2)

	for _, marker := range timeConsumingMarkers {
		if containsWord(lower, marker) {
			score += 0.15
			break
		}
	}

	return min(score, 1.0)
}

func lengthSignal(task string) float64 {
	switch n := len(task); {
	case n < 60:
		return 0.0
	case n < 160:
		return 0.15
	case n < 300:
		return 0.25
	default:
		return 0.35
	}
}

// containsWord matches marker as a whole word (or phrase) inside text.
func containsWord(text, marker string) bool {
	idx := strings.Index(text, marker)
	for idx >= 0 {
		beforeOK := idx == 0 || !isAlnum(text[idx-1])
		end := idx + len(marker)
		afterOK := end == len(text) || !isAlnum(text[end])
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(text[idx+1:], marker)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isAlnum(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9')
}
