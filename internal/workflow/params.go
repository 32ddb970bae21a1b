package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/convo"
)

type patternValue struct {
	re    *regexp.Regexp
	value string
}

var (
	urgencyPatterns = []patternValue{
		{regexp.MustCompile(`\b(urgent|asap|immediately|right away|now)\b`), "high"},
		{regexp.MustCompile(`\b(soon|quickly|fast)\b`), "medium"},
		{regexp.MustCompile(`\b(later|eventually|when convenient)\b`), "low"},
	}
	timeframePatterns = []patternValue{
		{regexp.MustCompile(`\b(today|this morning|this afternoon|tonight)\b`), "today"},
		{regexp.MustCompile(`\b(tomorrow|next day)\b`), "tomorrow"},
		{regexp.MustCompile(`\b(next week|this week)\b`), "this_week"},
		{regexp.MustCompile(`\b(next month|this month)\b`), "this_month"},
	}
	formatPatterns = []patternValue{
		{regexp.MustCompile(`\b(pdf|portable document)\b`), "pdf"},
		{regexp.MustCompile(`\b(word|doc|docx|document)\b`), "docx"},
		{regexp.MustCompile(`\b(presentation|slides|ppt|powerpoint)\b`), "pptx"},
		{regexp.MustCompile(`\b(spreadsheet|excel|xlsx)\b`), "xlsx"},
		{regexp.MustCompile(`\b(markdown|md)\b`), "md"},
		{regexp.MustCompile(`\b(text|txt)\b`), "txt"},
	}
	priorityPatterns = []patternValue{
		{regexp.MustCompile(`\b(critical|urgent|emergency|asap|immediately)\b`), "high"},
		{regexp.MustCompile(`\b(important|priority|soon|quick)\b`), "medium"},
		{regexp.MustCompile(`\b(low priority|when convenient|later|eventually)\b`), "low"},
	}
	audiencePatterns = []patternValue{
		{regexp.MustCompile(`\b(team|colleagues|coworkers)\b`), "internal_team"},
		{regexp.MustCompile(`\b(client|customer|customer service)\b`), "external_client"},
		{regexp.MustCompile(`\b(management|boss|supervisor)\b`), "management"},
		{regexp.MustCompile(`\b(public|everyone|general)\b`), "public"},
		{regexp.MustCompile(`\b(technical|developer|engineer)\b`), "technical"},
	}
)

func firstPatternValue(patterns []patternValue, text string) (string, bool) {
	for _, pv := range patterns {
		if pv.re.MatchString(text) {
			return pv.value, true
		}
	}
	return "", false
}

// ResolveParameters merges four parameter sources in precedence order:
// literals extracted by the classifier, contextual reuse from the
// conversation, rule inference from the text, and prompted placeholders
// for required fields still missing. The first occurrence of a name wins.
func ResolveParameters(text string, result classify.Result, context *convo.Context) []Parameter {
	var out []Parameter
	seen := make(map[string]bool)
	add := func(p Parameter) {
		if !seen[p.Name] {
			seen[p.Name] = true
			out = append(out, p)
		}
	}

	for name, value := range result.Parameters {
		add(Parameter{
			Name:        name,
			Value:       value,
			Source:      SourceLiteral,
			Confidence:  0.9,
			Description: "directly extracted from the utterance",
		})
	}

	if context != nil {
		for _, p := range contextualParameters(result.Category, context) {
			add(p)
		}
	}
	for _, p := range inferredParameters(strings.ToLower(text), result.Category) {
		add(p)
	}

	for _, name := range classify.RequiredParameters(result.Category) {
		add(Parameter{
			Name:        name,
			Source:      SourcePrompted,
			Required:    true,
			Description: fmt.Sprintf("required parameter: %s", name),
		})
	}
	return out
}

// contextualParameters reuses values from recent same-category interactions
// (confidence 0.7) and the active parameter set (confidence 0.8).
func contextualParameters(category classify.Category, context *convo.Context) []Parameter {
	var out []Parameter
	seen := make(map[string]bool)

	for _, in := range context.Recent(5) {
		if in.Category != category {
			continue
		}
		for name, value := range in.Parameters {
			if value == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, Parameter{
				Name:        name,
				Value:       value,
				Source:      SourceContextual,
				Confidence:  0.7,
				Description: fmt.Sprintf("reused from a previous %s command", category),
			})
		}
	}

	for name, value := range context.ActiveParameters {
		if value == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Parameter{
			Name:        name,
			Value:       value,
			Source:      SourceContextual,
			Confidence:  0.8,
			Description: "carried from the active conversation",
		})
	}
	return out
}

// inferredParameters applies the rule catalog: urgency and timeframe for
// time-sensitive categories, document format, and priority and audience
// for any category.
func inferredParameters(lower string, category classify.Category) []Parameter {
	var out []Parameter

	if category == classify.CategoryCalendar || category == classify.CategoryReminders {
		if v, ok := firstPatternValue(urgencyPatterns, lower); ok {
			out = append(out, Parameter{
				Name: "urgency", Value: v, Source: SourceInferred, Confidence: 0.6,
				Description: "inferred from time pressure wording",
			})
		}
		if v, ok := firstPatternValue(timeframePatterns, lower); ok {
			out = append(out, Parameter{
				Name: "timeframe", Value: v, Source: SourceInferred, Confidence: 0.6,
				Description: "inferred from time expressions",
			})
		}
	}

	if category == classify.CategoryDocument {
		if v, ok := firstPatternValue(formatPatterns, lower); ok {
			out = append(out, Parameter{
				Name: "format", Value: v, Source: SourceInferred, Confidence: 0.7,
				Description: "inferred from file-type keywords",
			})
		}
	}

	if v, ok := firstPatternValue(priorityPatterns, lower); ok {
		out = append(out, Parameter{
			Name: "priority", Value: v, Source: SourceInferred, Confidence: 0.6,
			Description: "inferred priority level",
		})
	}
	if v, ok := firstPatternValue(audiencePatterns, lower); ok {
		out = append(out, Parameter{
			Name: "audience", Value: v, Source: SourceInferred, Confidence: 0.5,
			Description: "inferred target audience",
		})
	}
	return out
}
