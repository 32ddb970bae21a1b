package convo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jmolinaso/voxbridge/internal/classify"
)

var (
	documentTopicRes = []*regexp.Regexp{
		regexp.MustCompile(`about\s+(.+?)(?:\s+in\s|\s+for\s|$)`),
		regexp.MustCompile(`\bon\s+(.+?)(?:\s+in\s|\s+for\s|$)`),
		regexp.MustCompile(`regarding\s+(.+?)(?:\s+in\s|\s+for\s|$)`),
	}
	searchTopicRes = []*regexp.Regexp{
		regexp.MustCompile(`search\s+for\s+(.+)$`),
		regexp.MustCompile(`find\s+(.+)$`),
		regexp.MustCompile(`about\s+(.+)$`),
	}
)

// extractTopic derives a topic string from an utterance. Only document
// generation and web search carry topic signal; every other category
// returns empty, leaving the current topic unchanged.
func extractTopic(text string, category classify.Category) string {
	var patterns []*regexp.Regexp
	switch category {
	case classify.CategoryDocument:
		patterns = documentTopicRes
	case classify.CategoryWebSearch:
		patterns = searchTopicRes
	default:
		return ""
	}

	lower := strings.ToLower(text)
	for _, re := range patterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// seedSuggestions are offered when a conversation has no history yet.
var seedSuggestions = []string{
	"Try asking me to create a document",
	"You can send emails through voice commands",
	"Ask me to search for information",
	"Schedule meetings with voice commands",
}

// categorySuggestions maps a recently used category to natural follow-ups.
var categorySuggestions = map[classify.Category][]string{
	classify.CategoryDocument: {
		"Generate another document on a different topic",
		"Create a PDF version of your document",
		"Send the document via email",
	},
	classify.CategoryEmail: {
		"Schedule a follow-up meeting",
		"Create a document to attach to your email",
		"Search for more information on the topic",
	},
	classify.CategoryWebSearch: {
		"Create a document with the search results",
		"Send the information via email",
		"Set a reminder about the topic",
	},
	classify.CategoryCalendar: {
		"Send calendar invites to attendees",
		"Create agenda documents for meetings",
		"Set reminders for upcoming events",
	},
}

// buildSuggestions derives follow-up suggestions from the last few
// interactions and the current topic, deduplicated and capped at five.
func buildSuggestions(c *Context) []string {
	if c == nil || len(c.History) == 0 {
		return append([]string(nil), seedSuggestions...)
	}

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	seenCategory := make(map[classify.Category]bool)
	for _, in := range c.Recent(3) {
		if seenCategory[in.Category] {
			continue
		}
		seenCategory[in.Category] = true
		for _, s := range categorySuggestions[in.Category] {
			add(s)
		}
	}

	if c.CurrentTopic != "" {
		add(fmt.Sprintf("Search for more details about %s", c.CurrentTopic))
		add(fmt.Sprintf("Create a document about %s", c.CurrentTopic))
	}

	if len(out) == 0 {
		return append([]string(nil), seedSuggestions...)
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
