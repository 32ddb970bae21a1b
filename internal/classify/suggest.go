package classify

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// fuzzyMatchThreshold is the Jaro-Winkler distance above which a spoken
// token counts as one of a suggestion group's trigger keywords. Transcribed
// speech misspells often, so exact matching alone misses too much.
const fuzzyMatchThreshold = 0.88

// suggestionGroup maps trigger keywords to suggestion templates.
type suggestionGroup struct {
	keywords  []string
	templates []string
}

var suggestionGroups = []suggestionGroup{
	{
		keywords: []string{"create", "make", "generate", "write"},
		templates: []string{
			"Try: 'Create a document about [topic]'",
			"Try: 'Generate a PDF report on [subject]'",
		},
	},
	{
		keywords: []string{"send", "email", "mail"},
		templates: []string{
			"Try: 'Send an email to [recipient] about [subject]'",
			"Try: 'Compose a message to the team'",
		},
	},
	{
		keywords: []string{"search", "find", "look"},
		templates: []string{
			"Try: 'Search for information about [topic]'",
			"Try: 'Find details on [subject]'",
		},
	},
	{
		keywords: []string{"schedule", "meeting", "appointment"},
		templates: []string{
			"Try: 'Schedule a meeting with [person] tomorrow'",
			"Try: 'Book an appointment for [date/time]'",
		},
	},
}

// genericSuggestions apply when no keyword group triggers.
var genericSuggestions = []string{
	"Try being more specific about what you want to do",
	"Use action words like 'create', 'send', 'search', or 'schedule'",
	"Include details like recipients, topics, or dates",
}

// Suggest produces up to three recovery suggestions for an unclear
// utterance, driven by fuzzy keyword matching over the normalized text.
func Suggest(text string) []string {
	tokens := strings.Fields(text)

	var out []string
	for _, group := range suggestionGroups {
		if groupMatches(tokens, group.keywords) {
			out = append(out, group.templates...)
		}
	}
	if len(out) == 0 {
		out = append(out, genericSuggestions...)
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

func groupMatches(tokens, keywords []string) bool {
	for _, token := range tokens {
		for _, kw := range keywords {
			if token == kw {
				return true
			}
			if matchr.JaroWinkler(token, kw, false) >= fuzzyMatchThreshold {
				return true
			}
		}
	}
	return false
}
