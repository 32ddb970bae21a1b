package workflow

import (
	"regexp"
	"strings"
)

var (
	sequentialRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(then|next|after|followed by|and then)\b`),
		regexp.MustCompile(`\b(first|second|third|finally)\b`),
		regexp.MustCompile(`\b(step by step|one by one)\b`),
	}
	conditionalRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(if|when|unless|provided that)\b`),
		regexp.MustCompile(`\b(depending on|based on|in case)\b`),
	}
	iterativeRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(for each|every|all|repeat)\b`),
		regexp.MustCompile(`\b(loop|iterate|multiple times)\b`),
	}
	compoundRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(and|also|plus|additionally)\b`),
		regexp.MustCompile(`\b(both|all|multiple)\b`),
	}
)

// maxEstimatedSteps caps dynamic plans.
const maxEstimatedSteps = 10

// AnalyzeComplexity scans for connective markers. Detection order matters:
// sequential markers dominate conditional, then iterative, then compound.
func AnalyzeComplexity(text string) Complexity {
	lower := strings.ToLower(text)
	switch {
	case anyMatch(sequentialRes, lower):
		return ComplexitySequential
	case anyMatch(conditionalRes, lower):
		return ComplexityConditional
	case anyMatch(iterativeRes, lower):
		return ComplexityIterative
	case anyMatch(compoundRes, lower):
		return ComplexityCompound
	default:
		return ComplexitySimple
	}
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// EstimateSteps derives a step count from the complexity base plus literal
// connective counts, capped at 10.
func EstimateSteps(text string, complexity Complexity) int {
	base := map[Complexity]int{
		ComplexitySimple:      1,
		ComplexityCompound:    2,
		ComplexitySequential:  3,
		ComplexityConditional: 3,
		ComplexityIterative:   4,
	}
	steps, ok := base[complexity]
	if !ok {
		steps = 1
	}

	lower := strings.ToLower(text)
	steps += strings.Count(lower, "and")
	steps += strings.Count(lower, "then")

	if steps > maxEstimatedSteps {
		steps = maxEstimatedSteps
	}
	return steps
}

// contextDependencyRes map reference phrasings to dependency labels.
var contextDependencyRes = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`\b(that|this|it|the previous|the last)\b`), "previous_interaction"},
	{regexp.MustCompile(`\b(my|our|the current)\b`), "user_context"},
	{regexp.MustCompile(`\b(continue|resume|follow up)\b`), "ongoing_workflow"},
}

// ContextDependencies labels the context references an utterance makes.
func ContextDependencies(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, dep := range contextDependencyRes {
		if dep.re.MatchString(lower) {
			out = append(out, dep.label)
		}
	}
	return out
}
