package orchestrator

import (
	"regexp"
	"strconv"
)

// DefaultConfidence is reported when no usable percentage appears in a
// stage's output.
const DefaultConfidence = 75

// ConfidenceExtractor derives an advisory 0-100 score from free text.
type ConfidenceExtractor interface {
	Extract(text string) int
}

// ConfidenceFunc adapts a function to ConfidenceExtractor.
type ConfidenceFunc func(text string) int

// Extract calls f.
func (f ConfidenceFunc) Extract(text string) int { return f(text) }

var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// PercentExtractor returns the largest "NN%" figure in the text that does not
// exceed 100. Figures above 100 are ignored; with none left it returns
// DefaultConfidence.
type PercentExtractor struct{}

// Extract implements ConfidenceExtractor.
func (PercentExtractor) Extract(text string) int {
	best := -1
	for _, m := range percentPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > 100 {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best < 0 {
		return DefaultConfidence
	}
	return best
}
