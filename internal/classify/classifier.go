package classify

import (
	"log/slog"
	"sync"
	"time"
)

// unknownThreshold is the combined score below which the result degrades to
// the unknown category.
const unknownThreshold = 0.3

// suggestionThreshold is the confidence below which suggestions are
// attached. At or above it the suggestion list is always empty.
const suggestionThreshold = 0.5

// contextBoost is added to a category's combined score when the snapshot's
// last category matches it.
const contextBoost = 0.1

// Classifier scores utterances against the closed category set. It is
// stateless apart from aggregated performance counters and safe for
// concurrent use.
type Classifier struct {
	scorer   SimilarityScorer
	fallback SimilarityScorer
	logger   *slog.Logger

	mu       sync.Mutex
	total    int64
	degraded int64
	elapsed  time.Duration
	byCat    map[Category]int64
}

// Options configures a [Classifier].
type Options struct {
	// Scorer is the similarity backend. Defaults to the built-in tf-idf
	// model fit on the category exemplars.
	Scorer SimilarityScorer

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// New builds a Classifier. The pattern-only fallback backend is always
// installed alongside the main scorer.
func New(opts Options) *Classifier {
	scorer := opts.Scorer
	if scorer == nil {
		scorer = NewTFIDFScorer()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		scorer:   scorer,
		fallback: NewPatternFallbackScorer(),
		logger:   logger,
		byCat:    make(map[Category]int64),
	}
}

// Classify scores text against every category and returns the winning
// classification. snapshot may be nil when no conversation context applies.
//
// The result is deterministic for a given (text, snapshot) pair: ties in
// combined score resolve to the category declared first in [Categories].
func (c *Classifier) Classify(text string, snapshot *Snapshot) Result {
	prepStart := time.Now()
	normalized := Normalize(text)
	prepTime := time.Since(prepStart)

	classifyStart := time.Now()

	bestCategory := CategoryUnknown
	bestScore := 0.0
	contextUsed := false

	for _, category := range Categories {
		if category == CategoryUnknown {
			continue
		}
		pattern := patternScore(normalized, category)
		similarity := c.similarity(normalized, category)
		combined := 0.6*pattern + 0.4*similarity

		boosted := false
		if snapshot != nil && snapshot.LastCategory == category {
			combined += contextBoost
			boosted = true
		}

		if combined > bestScore {
			bestScore = combined
			bestCategory = category
			contextUsed = boosted
		}
	}

	if bestScore < unknownThreshold {
		bestCategory = CategoryUnknown
		contextUsed = false
	}

	result := Result{
		Category:       bestCategory,
		Intent:         string(bestCategory) + "_intent",
		Confidence:     bestScore,
		Parameters:     ExtractParameters(normalized, bestCategory),
		ContextUsed:    contextUsed,
		RawText:        text,
		NormalizedText: normalized,
	}
	if result.Confidence < suggestionThreshold {
		result.Suggestions = Suggest(normalized)
	}

	result.PreprocessingTime = prepTime
	result.ClassificationTime = time.Since(classifyStart)

	c.record(result)
	return result
}

// similarity asks the main backend, falling through to the pattern-only
// backend on a panic so a broken model never takes classification down.
func (c *Classifier) similarity(text string, category Category) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("similarity backend failed, using pattern fallback",
				"category", category, "panic", r)
			c.mu.Lock()
			c.degraded++
			c.mu.Unlock()
			score = c.fallback.Score(text, category)
		}
	}()
	return c.scorer.Score(text, category)
}

func (c *Classifier) record(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.elapsed += r.PreprocessingTime + r.ClassificationTime
	c.byCat[r.Category]++
}

// Metrics is an aggregate view of classifier activity since start.
type Metrics struct {
	Total          int64              `json:"total_classifications"`
	DegradedScores int64              `json:"degraded_scores"`
	AverageLatency time.Duration      `json:"average_latency_ns"`
	ByCategory     map[Category]int64 `json:"by_category"`
}

// Metrics returns a copy of the aggregate counters.
func (c *Classifier) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		Total:          c.total,
		DegradedScores: c.degraded,
		ByCategory:     make(map[Category]int64, len(c.byCat)),
	}
	if c.total > 0 {
		m.AverageLatency = c.elapsed / time.Duration(c.total)
	}
	for k, v := range c.byCat {
		m.ByCategory[k] = v
	}
	return m
}
