package workflow

import (
	"strings"

	"github.com/taskweave/taskweave/pkg/config"
)

// Classifier is the deterministic keyword-based step classifier. A pure
// function of the step description: lower-case, tokenize, check membership
// in the tool-keyword set. A match means a tool step; ties break toward
// tool. It never resolves the tool name; that is the tool executor's job.
type Classifier struct {
	keywords map[string]struct{}
}

// NewClassifier builds a classifier from the configured keyword set.
func NewClassifier(cfg *config.ClassifierConfig) *Classifier {
	keywords := make(map[string]struct{}, len(cfg.ToolKeywords))
	for _, kw := range cfg.ToolKeywords {
		keywords[strings.ToLower(kw)] = struct{}{}
	}
	return &Classifier{keywords: keywords}
}

// Classify assigns the step kind for a description.
func (c *Classifier) Classify(description string) StepKind {
	if c.KeywordHits(description) > 0 {
		return StepKindTool
	}
	return StepKindGeneric
}

// KeywordHits counts tool-keyword occurrences in the description. The
// multi-agent flow reuses this as a complexity signal.
func (c *Classifier) KeywordHits(description string) int {
	hits := 0
	for _, token := range tokenize(description) {
		if _, ok := c.keywords[token]; ok {
			hits++
		}
	}
	return hits
}

// tokenize lower-cases and splits on non-letter/digit runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
