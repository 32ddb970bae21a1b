package classify

import (
	"testing"
)

func newTestClassifier() *Classifier {
	return New(Options{})
}

func TestClassify_DocumentCommand(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("create a PDF report about machine learning", nil)

	if r.Category != CategoryDocument {
		t.Fatalf("category = %q, want %q", r.Category, CategoryDocument)
	}
	if r.Confidence < 0.7 {
		t.Errorf("confidence = %.3f, want >= 0.7", r.Confidence)
	}
	if got := r.Parameters["format"]; got != "pdf" {
		t.Errorf("format = %q, want pdf", got)
	}
	if got := r.Parameters["content_topic"]; got != "machine learning" {
		t.Errorf("content_topic = %q, want machine learning", got)
	}
	if len(r.Suggestions) != 0 {
		t.Errorf("suggestions = %v, want none", r.Suggestions)
	}
	if r.Intent != "document_generation_intent" {
		t.Errorf("intent = %q", r.Intent)
	}
}

func TestClassify_EmailRecipientExtraction(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("send an email to john@example.com about the quarterly review", nil)

	if r.Category != CategoryEmail {
		t.Fatalf("category = %q, want %q", r.Category, CategoryEmail)
	}
	if got := r.Parameters["recipient"]; got != "john@example.com" {
		t.Errorf("recipient = %q", got)
	}
	if got := r.Parameters["subject"]; got != "the quarterly review" {
		t.Errorf("subject = %q", got)
	}
}

func TestClassify_Gibberish(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("xyz blarg zxc", nil)

	if r.Category != CategoryUnknown {
		t.Fatalf("category = %q, want unknown", r.Category)
	}
	if r.Confidence >= 0.3 {
		t.Errorf("confidence = %.3f, want < 0.3", r.Confidence)
	}
	if !r.RequiresConfirmation() {
		t.Error("RequiresConfirmation = false, want true")
	}
	if len(r.Suggestions) != 3 {
		t.Errorf("got %d suggestions, want exactly 3", len(r.Suggestions))
	}
}

func TestClassify_EmptyText(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("", nil)

	if r.Category != CategoryUnknown {
		t.Fatalf("category = %q, want unknown", r.Category)
	}
	if r.Confidence != 0 {
		t.Errorf("confidence = %.3f, want 0", r.Confidence)
	}
	if len(r.Suggestions) == 0 {
		t.Error("want non-empty suggestions for empty text")
	}
}

func TestClassify_ContextBoost(t *testing.T) {
	c := newTestClassifier()

	// A text that pattern-matches calendar but only weakly.
	text := "book an appointment for tomorrow morning"

	plain := c.Classify(text, nil)
	boosted := c.Classify(text, &Snapshot{LastCategory: CategoryCalendar})

	if plain.Category != CategoryCalendar || boosted.Category != CategoryCalendar {
		t.Fatalf("categories = %q / %q, want calendar", plain.Category, boosted.Category)
	}
	diff := boosted.Confidence - plain.Confidence
	if diff < 0.09 || diff > 0.11 {
		t.Errorf("context boost = %.3f, want ~0.1", diff)
	}
	if !boosted.ContextUsed {
		t.Error("ContextUsed = false on boosted result")
	}
	if plain.ContextUsed {
		t.Error("ContextUsed = true without a snapshot")
	}
}

func TestClassify_MismatchedContextDoesNotBoost(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("search for golang tutorials", &Snapshot{LastCategory: CategoryEmail})
	if r.Category != CategoryWebSearch {
		t.Fatalf("category = %q, want web_search", r.Category)
	}
	if r.ContextUsed {
		t.Error("ContextUsed = true, want false when last category differs")
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := newTestClassifier()
	snap := &Snapshot{LastCategory: CategoryWebSearch}

	a := c.Classify("what is the capital of france", snap)
	b := c.Classify("what is the capital of france", snap)

	if a.Category != b.Category || a.Confidence != b.Confidence || a.Intent != b.Intent {
		t.Errorf("results differ: %+v vs %+v", a, b)
	}
}

func TestClassify_SuggestionsOnlyBelowThreshold(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		name string
		text string
	}{
		{"high confidence", "send an email to team@example.com about the launch"},
		{"unknown", "frobnicate the wizzle"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := c.Classify(tc.text, nil)
			hasSuggestions := len(r.Suggestions) > 0
			wantSuggestions := r.Confidence < 0.5
			if hasSuggestions != wantSuggestions {
				t.Errorf("confidence %.3f with %d suggestions", r.Confidence, len(r.Suggestions))
			}
		})
	}
}

func TestClassify_CalculationsExpression(t *testing.T) {
	c := newTestClassifier()

	r := c.Classify("calculate 15 + 27", nil)
	if r.Category != CategoryCalculations {
		t.Fatalf("category = %q, want calculations", r.Category)
	}
	if got := r.Parameters["expression"]; got != "15 + 27" {
		t.Errorf("expression = %q, want 15 + 27", got)
	}
}

func TestClassify_TimingsPopulated(t *testing.T) {
	c := newTestClassifier()
	r := c.Classify("schedule a meeting with sarah tomorrow", nil)
	if r.ClassificationTime <= 0 {
		t.Error("ClassificationTime not populated")
	}
}

func TestClassifier_Metrics(t *testing.T) {
	c := newTestClassifier()

	c.Classify("send an email to a@b.com", nil)
	c.Classify("what is the weather", nil)
	c.Classify("blorp", nil)

	m := c.Metrics()
	if m.Total != 3 {
		t.Errorf("total = %d, want 3", m.Total)
	}
	var sum int64
	for _, v := range m.ByCategory {
		sum += v
	}
	if sum != 3 {
		t.Errorf("category counts sum = %d, want 3", sum)
	}
}

type panicScorer struct{}

func (panicScorer) Score(string, Category) float64 { panic("model gone") }

func TestClassify_FallbackOnScorerPanic(t *testing.T) {
	c := New(Options{Scorer: panicScorer{}})

	r := c.Classify("send an email to ops@example.com about the outage", nil)

	// Pattern fallback alone still identifies the category.
	if r.Category != CategoryEmail {
		t.Errorf("category = %q, want email via fallback", r.Category)
	}
	if m := c.Metrics(); m.DegradedScores == 0 {
		t.Error("degraded counter not incremented")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Um, send an email", ", send an email"},
		{"don't forget the meeting", "do not forget the meeting"},
		{"won't work", "will not work"},
		{"  lots   of    space  ", "lots of space"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       ConfidenceLevel
	}{
		{0.95, ConfidenceHigh},
		{0.8, ConfidenceMedium},
		{0.6, ConfidenceMedium},
		{0.5, ConfidenceLow},
		{0.35, ConfidenceLow},
		{0.3, ConfidenceVeryLow},
		{0, ConfidenceVeryLow},
	}
	for _, tc := range tests {
		if got := LevelFor(tc.confidence); got != tc.want {
			t.Errorf("LevelFor(%.2f) = %q, want %q", tc.confidence, got, tc.want)
		}
	}
}

func TestRequiredParameters(t *testing.T) {
	got := RequiredParameters(CategoryEmail)
	want := []string{"recipient", "subject"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
	if RequiredParameters(Category("nope")) != nil {
		t.Error("unknown category should return nil")
	}
}
