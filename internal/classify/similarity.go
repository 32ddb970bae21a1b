package classify

import (
	"math"
	"strings"
)

// SimilarityScorer scores how close a normalized utterance is to a category,
// in [0,1]. Implementations must be safe for concurrent use after
// construction.
type SimilarityScorer interface {
	Score(text string, category Category) float64
}

// tfidfScorer is the default backend: a bag-of-weights model fit once over
// the category exemplars, scoring input by the maximum cosine similarity
// against any exemplar of the target category.
type tfidfScorer struct {
	idf       map[string]float64
	exemplars map[Category][]map[string]float64
}

// NewTFIDFScorer fits the default similarity backend on the built-in
// category exemplars.
func NewTFIDFScorer() SimilarityScorer {
	corpus := make([][]string, 0, 32)
	byCategory := make(map[Category][][]string, len(patternTable))
	for category, entry := range patternTable {
		for _, ex := range entry.exemplars {
			tokens := tokenize(ex)
			corpus = append(corpus, tokens)
			byCategory[category] = append(byCategory[category], tokens)
		}
	}

	// Inverse document frequency over the exemplar corpus, smoothed so
	// unseen terms never divide by zero.
	df := make(map[string]int)
	for _, doc := range corpus {
		for term := range termSet(doc) {
			df[term]++
		}
	}
	idf := make(map[string]float64, len(df))
	n := float64(len(corpus))
	for term, count := range df {
		idf[term] = math.Log((n+1)/(float64(count)+1)) + 1
	}

	s := &tfidfScorer{
		idf:       idf,
		exemplars: make(map[Category][]map[string]float64, len(byCategory)),
	}
	for category, docs := range byCategory {
		for _, doc := range docs {
			s.exemplars[category] = append(s.exemplars[category], s.vectorize(doc))
		}
	}
	return s
}

func (s *tfidfScorer) Score(text string, category Category) float64 {
	vectors, ok := s.exemplars[category]
	if !ok {
		return 0
	}
	input := s.vectorize(tokenize(text))
	if len(input) == 0 {
		return 0
	}

	best := 0.0
	for _, ex := range vectors {
		if sim := cosine(input, ex); sim > best {
			best = sim
		}
	}
	return best
}

// vectorize builds a normalized tf-idf weight map for a token list. Terms
// absent from the fitted vocabulary get the neutral smoothed idf.
func (s *tfidfScorer) vectorize(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	vec := make(map[string]float64, len(tf))
	for term, count := range tf {
		idf, ok := s.idf[term]
		if !ok {
			idf = 1
		}
		vec[term] = (count / float64(len(tokens))) * idf
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for term, wa := range a {
		na += wa * wa
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		nb += wb * wb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func termSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// patternOnlyScorer is the degraded-mode backend used when the main
// similarity model cannot be built or is unavailable. It reuses the regex
// pattern families, so classification keeps its contract with reduced
// resolution.
type patternOnlyScorer struct{}

// NewPatternFallbackScorer returns the degraded-mode similarity backend.
func NewPatternFallbackScorer() SimilarityScorer {
	return patternOnlyScorer{}
}

func (patternOnlyScorer) Score(text string, category Category) float64 {
	if patternScore(text, category) > 0 {
		return 1
	}
	return 0
}
