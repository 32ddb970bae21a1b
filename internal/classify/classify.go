// Package classify turns a single utterance into a typed intent.
//
// The classifier is single-shot and pure on its inputs plus an optional
// context snapshot: the same text, user, session, and snapshot always yield
// the same [Result]. Category scoring combines regex pattern matching with
// a similarity backend abstracted as [SimilarityScorer], so the classifier
// keeps its contract in degraded mode when the main backend is unavailable.
package classify

import (
	"time"
)

// Category is one element of the closed classification target set.
type Category string

// The closed category set. Declaration order is significant: ties in
// combined score resolve to the category declared first.
const (
	CategoryDocument     Category = "document_generation"
	CategoryEmail        Category = "email"
	CategoryCalendar     Category = "calendar"
	CategoryWebSearch    Category = "web_search"
	CategoryCalculations Category = "calculations"
	CategoryReminders    Category = "reminders"
	CategorySystem       Category = "system_control"
	CategoryConversation Category = "general_conversation"
	CategoryUnknown      Category = "unknown"
)

// Categories lists the closed set in declaration order, unknown last.
var Categories = []Category{
	CategoryDocument,
	CategoryEmail,
	CategoryCalendar,
	CategoryWebSearch,
	CategoryCalculations,
	CategoryReminders,
	CategorySystem,
	CategoryConversation,
	CategoryUnknown,
}

// IsValid reports whether c is a member of the closed set.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ConfidenceLevel partitions [0,1] into coarse bands for clients.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"     // > 0.8
	ConfidenceMedium  ConfidenceLevel = "medium"   // (0.5, 0.8]
	ConfidenceLow     ConfidenceLevel = "low"      // (0.3, 0.5]
	ConfidenceVeryLow ConfidenceLevel = "very_low" // <= 0.3
)

// LevelFor maps a confidence score to its [ConfidenceLevel] band.
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence > 0.8:
		return ConfidenceHigh
	case confidence > 0.5:
		return ConfidenceMedium
	case confidence > 0.3:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// confirmationThreshold is the confidence below which a result requires
// explicit user confirmation before acting.
const confirmationThreshold = 0.7

// Result is an immutable classification outcome.
type Result struct {
	Category       Category          `json:"category"`
	Intent         string            `json:"intent"`
	Confidence     float64           `json:"confidence"`
	Parameters     map[string]string `json:"parameters"`
	ContextUsed    bool              `json:"context_used"`
	Suggestions    []string          `json:"suggestions"`
	RawText        string            `json:"raw_text"`
	NormalizedText string            `json:"normalized_text"`

	PreprocessingTime  time.Duration `json:"preprocessing_time_ns"`
	ClassificationTime time.Duration `json:"classification_time_ns"`
}

// ConfidenceLevel returns the coarse band for the result's confidence.
func (r Result) ConfidenceLevel() ConfidenceLevel {
	return LevelFor(r.Confidence)
}

// RequiresConfirmation reports whether the gateway should ask the user to
// confirm before dispatching: true when confidence is below 0.7 or the
// category is unknown.
func (r Result) RequiresConfirmation() bool {
	return r.Confidence < confirmationThreshold || r.Category == CategoryUnknown
}

// Snapshot is an immutable view of a conversation context taken at
// classification time. The classifier never holds a live context handle.
type Snapshot struct {
	// LastCategory is the category of the most recent interaction, used for
	// the context continuity boost.
	LastCategory Category

	// ActiveParameters are the context's current carried parameters.
	ActiveParameters map[string]string

	// CurrentTopic is the context's active topic, if any.
	CurrentTopic string
}
