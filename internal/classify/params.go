package classify

import (
	"regexp"
	"strings"
)

var (
	emailAddrRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	subjectRes = compileAll(
		`about\s+(.+?)(?:\s+to\s|$)`,
		`regarding\s+(.+?)(?:\s+to\s|$)`,
		`subject\s+(.+?)(?:\s+to\s|$)`,
	)

	docFormatRe = regexp.MustCompile(`\b(pdf|docx|doc|txt|markdown)\b`)
	docTopicRes = compileAll(
		`about\s+(.+?)(?:\s+in\s|\s+for\s|$)`,
		`\bon\s+(.+?)(?:\s+in\s|\s+for\s|$)`,
		`document\s+(.+?)(?:\s+in\s|\s+for\s|$)`,
	)

	calendarTimeRes = compileAll(
		`\b(tomorrow|today|tonight|next\s+week|next\s+month)\b`,
		`\b(\d{1,2}:\d{2}\s*(?:am|pm)?)\b`,
		`\b(\d{1,2}\s*(?:am|pm))\b`,
		`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`,
		`\b((?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2})\b`,
	)
	attendeesRe = regexp.MustCompile(`with\s+(.+?)(?:\s+at\s|\s+on\s|\s+for\s|$)`)

	searchQueryRes = compileAll(
		`search\s+(?:for\s+)?(.+)$`,
		`find\s+(.+)$`,
		`look\s+up\s+(.+)$`,
		`what\s+is\s+(.+)$`,
		`tell\s+me\s+about\s+(.+)$`,
	)

	mathExprRe = regexp.MustCompile(`[\d+\-*/().\s]{3,}`)

	reminderTaskRes = compileAll(
		`remind\s+me\s+to\s+(.+?)(?:\s+at\s|\s+in\s|\s+on\s|$)`,
		`reminder\s+(?:for|to)\s+(.+?)(?:\s+at\s|\s+in\s|\s+on\s|$)`,
		`remember\s+to\s+(.+?)(?:\s+at\s|\s+in\s|\s+on\s|$)`,
	)
	reminderTimeRes = compileAll(
		`\b(in\s+\d+\s+(?:minutes?|hours?|days?))\b`,
		`\bat\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\b`,
		`\b(tomorrow|tonight|next\s+week)\b`,
	)
)

// ExtractParameters pulls category-scoped parameters out of normalized
// text. Extraction is best-effort: missing parameters are simply absent,
// never an error. The result map is never nil.
func ExtractParameters(text string, category Category) map[string]string {
	params := make(map[string]string)

	switch category {
	case CategoryEmail:
		if m := emailAddrRe.FindString(text); m != "" {
			params["recipient"] = m
		}
		if v := firstCapture(subjectRes, text); v != "" {
			params["subject"] = v
		}

	case CategoryDocument:
		if m := docFormatRe.FindString(text); m != "" {
			params["format"] = m
		}
		if v := firstCapture(docTopicRes, text); v != "" {
			params["content_topic"] = v
		}

	case CategoryCalendar:
		if v := firstCapture(calendarTimeRes, text); v != "" {
			params["date_time"] = v
		}
		if m := attendeesRe.FindStringSubmatch(text); m != nil {
			params["attendees"] = strings.TrimSpace(m[1])
		}

	case CategoryWebSearch:
		if v := firstCapture(searchQueryRes, text); v != "" {
			params["query"] = v
		}

	case CategoryCalculations:
		if m := strings.TrimSpace(mathExprRe.FindString(text)); m != "" {
			params["expression"] = m
		}

	case CategoryReminders:
		if v := firstCapture(reminderTaskRes, text); v != "" {
			params["task"] = v
		}
		if v := firstCapture(reminderTimeRes, text); v != "" {
			params["time"] = v
		}
	}

	return params
}

// firstCapture returns the trimmed first capture group of the first regex
// that matches, or empty.
func firstCapture(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
