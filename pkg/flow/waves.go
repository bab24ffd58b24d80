package flow

import (
	"strings"

	"github.com/taskweave/taskweave/pkg/workflow"
)

// stopwords excluded from the dependency overlap check. Overlap on filler
// words is not a dependency signal.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "for": {}, "to": {},
	"in": {}, "on": {}, "with": {}, "from": {}, "into": {}, "then": {},
	"that": {}, "this": {}, "it": {}, "its": {}, "each": {}, "all": {},
	"is": {}, "are": {}, "be": {}, "by": {}, "as": {}, "at": {}, "or": {},
}

// minOverlap is the number of shared content tokens treated as a
// dependency between two step descriptions.
const minOverlap = 2

// partitionWaves groups plan steps into execution waves. Two steps share a
// wave when neither textually references the other's subject matter (token
// overlap below minOverlap). A step lands one wave after the latest step it
// depends on. When the heuristic has no signal to work with, every step
// gets its own wave, which degrades to sequential execution.
func partitionWaves(steps []workflow.Step) [][]int {
	tokens := make([]map[string]struct{}, len(steps))
	for i, step := range steps {
		tokens[i] = contentTokens(step.Description)
		if len(tokens[i]) == 0 {
			return sequentialWaves(len(steps))
		}
	}

	waves := make([]int, len(steps))
	maxWave := 0
	for j := range steps {
		wave := 0
		for i := 0; i < j; i++ {
			if overlap(tokens[i], tokens[j]) >= minOverlap && waves[i]+1 > wave {
				wave = waves[i] + 1
			}
		}
		waves[j] = wave
		if wave > maxWave {
			maxWave = wave
		}
	}

	out := make([][]int, maxWave+1)
	for j, wave := range waves {
		out[wave] = append(out[wave], j)
	}
	return out
}

func sequentialWaves(n int) [][]int {
	out := make([][]int, n)
	for i := range out {
		out[i] = []int{i}
	}
	return out
}

func contentTokens(description string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(description)) {
		token := strings.Trim(field, ".,;:!?()[]\"'")
		if len(token) < 3 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for token := range a {
		if _, ok := b[token]; ok {
			n++
		}
	}
	return n
}

// hasParallelism reports whether any wave holds two or more steps.
func hasParallelism(waves [][]int) bool {
	for _, wave := range waves {
		if len(wave) >= 2 {
			return true
		}
	}
	return false
}
