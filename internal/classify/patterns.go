package classify

import "regexp"

// categoryPatterns holds the per-category regex families and exemplar
// sentences. Patterns run against normalized text; a match contributes a
// fixed 0.8 pattern score. Exemplars feed the similarity backend.
type categoryPatterns struct {
	patterns  []*regexp.Regexp
	exemplars []string
	// parameters lists the names a classification may extract.
	parameters []string
	// required lists the subset that must be resolved before dispatch.
	required []string
}

// patternTable is the classification knowledge base, fixed at init.
var patternTable = map[Category]categoryPatterns{
	CategoryDocument: {
		patterns: compileAll(
			`\b(create|generate|make|write)\s+(a\s+)?(document|doc|pdf|report|letter|memo)\b`,
			`\bdocument\s+(about|for|on)\b`,
			`\bwrite\s+me\s+a\b`,
			`\bcreate\s+a\s+(pdf|word|doc)\b`,
		),
		exemplars: []string{
			"create a document about artificial intelligence",
			"generate a pdf report on sales data",
			"generate a pdf report about machine learning",
			"write me a letter to the customer",
			"make a document for the meeting",
		},
		parameters: []string{"content_topic", "format", "template", "audience"},
		required:   []string{"content_topic", "format"},
	},
	CategoryEmail: {
		patterns: compileAll(
			`\b(send|compose|write)\s+(an?\s+)?(email|mail|message)\b`,
			`\bemail\s+(to|about)\b`,
			`\bsend\s+.*\s+to\s+[\w@.]+\b`,
			`\bcompose\s+a\s+(message|mail)\b`,
		),
		exemplars: []string{
			"send an email to john@example.com",
			"compose a message about the project",
			"write an email to the team",
			"send mail to support",
		},
		parameters: []string{"recipient", "subject", "content", "priority", "attachments"},
		required:   []string{"recipient", "subject"},
	},
	CategoryCalendar: {
		patterns: compileAll(
			`\b(schedule|book|create|add)\s+(an?\s+)?(meeting|appointment|event)\b`,
			`\bmeet\s+with\b`,
			`\b(calendar|schedule)\s+(for|on)\b`,
			`\bset\s+up\s+a\s+(meeting|call)\b`,
		),
		exemplars: []string{
			"schedule a meeting with the team",
			"book an appointment for tomorrow",
			"create an event for the conference",
			"meet with sarah at 3 pm",
		},
		parameters: []string{"date_time", "duration", "attendees", "location", "agenda"},
		required:   []string{"date_time", "attendees"},
	},
	CategoryWebSearch: {
		patterns: compileAll(
			`\b(search|find|look up|google)\s+(for|about)?\b`,
			`\bwhat\s+is\b`,
			`\bhow\s+to\b`,
			`\btell\s+me\s+about\b`,
		),
		exemplars: []string{
			"search for python tutorials",
			"what is machine learning",
			"find information about climate change",
			"look up the weather forecast",
		},
		parameters: []string{"query", "search_type", "num_results"},
		required:   []string{"query"},
	},
	CategoryCalculations: {
		patterns: compileAll(
			`\b(calculate|compute|what\s+is)\s+[\d\+\-\*\/\s]+`,
			`\b\d+\s*[\+\-\*\/]\s*\d+\b`,
			`\bmath\s+(problem|calculation)\b`,
			`\bconvert\s+\d+\b`,
		),
		exemplars: []string{
			"calculate 15 plus 27",
			"what is 100 divided by 4",
			"compute the square root of 64",
			"convert 100 usd to eur",
		},
		parameters: []string{"expression", "operation", "units"},
		required:   []string{"expression"},
	},
	CategoryReminders: {
		patterns: compileAll(
			`\b(remind|alert)\s+me\b`,
			`\bset\s+(a\s+)?(reminder|alarm)\b`,
			`\bdo\s+not\s+forget\b`,
			`\bremember\s+to\b`,
		),
		exemplars: []string{
			"remind me to call mom",
			"set a reminder for the meeting",
			"do not forget to buy groceries",
			"alert me in 30 minutes",
		},
		parameters: []string{"task", "time", "frequency", "priority"},
		required:   []string{"task", "time"},
	},
	CategorySystem: {
		patterns: compileAll(
			`\b(open|close|launch|start|stop|quit)\s+(the\s+)?(app|application|program|calculator|browser)\b`,
			`\b(increase|decrease|set)\s+(the\s+)?(volume|brightness)\b`,
			`\b(turn\s+(on|off)|enable|disable)\b`,
			`\bsystem\s+(restart|shutdown)\b`,
		),
		exemplars: []string{
			"open the calculator app",
			"increase the volume",
			"turn off bluetooth",
			"close safari",
		},
		parameters: []string{"action", "target", "value"},
	},
	CategoryConversation: {
		patterns: compileAll(
			`\b(hello|hi|hey|good\s+(morning|afternoon|evening))\b`,
			`\bhow\s+are\s+you\b`,
			`\bwhat\s+can\s+you\s+do\b`,
			`\btell\s+me\s+a\s+(joke|story)\b`,
		),
		exemplars: []string{
			"hello there",
			"how are you doing",
			"what can you help me with",
			"tell me a joke",
		},
		parameters: []string{"greeting_type", "conversation_topic"},
	},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Patterns returns the raw pattern strings declared for a category, for the
// introspection endpoint. Unknown categories return nil.
func Patterns(category Category) []string {
	entry, ok := patternTable[category]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.patterns))
	for _, re := range entry.patterns {
		out = append(out, re.String())
	}
	return out
}

// RequiredParameters returns the parameter names that must be resolved
// before a command in this category can be dispatched.
func RequiredParameters(category Category) []string {
	entry, ok := patternTable[category]
	if !ok {
		return nil
	}
	return append([]string(nil), entry.required...)
}

// patternScore returns 0.8 when any pattern of the category matches text,
// else 0. The contribution is binary, not graded.
func patternScore(text string, category Category) float64 {
	entry, ok := patternTable[category]
	if !ok {
		return 0
	}
	for _, re := range entry.patterns {
		if re.MatchString(text) {
			return 0.8
		}
	}
	return 0
}
