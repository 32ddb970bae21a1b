// Package search is the web-search tool service. It fans a query out to
// every configured provider concurrently, merges by URL, and ranks with a
// composite score favoring authoritative domains and title matches.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

const toolName = "search"

const (
	defaultResultCount = 10
	defaultCacheTTL    = time.Hour
	factCheckFanout    = 20
)

var capabilities = []string{
	"web_search",
	"knowledge_query",
	"fact_check",
	"research",
}

// Domains whose results get the authoritative ranking boost.
var authoritativeDomains = []string{"wikipedia.org", "britannica.com", ".gov", ".edu"}

var factCheckDomains = []string{"snopes.com", "factcheck.org", "politifact.com", "reuters.com/fact-check"}

var credibilityIndicators = []string{"verified", "confirmed", "debunked", "false", "true", "misleading"}

// Service implements the broker tool contract for search.
type Service struct {
	providers []Provider
	knowledge Provider
	rdb       redis.Cmdable
	cacheTTL  time.Duration
	logger    *slog.Logger
	running   atomic.Bool
}

// Options configures the search service.
type Options struct {
	// BingKey and SerpKey enable the keyed providers when non-empty. The
	// free DuckDuckGo provider is always on.
	BingKey string
	SerpKey string

	// Providers overrides the provider set entirely; used by tests.
	Providers []Provider

	// Knowledge overrides the encyclopedic backend; defaults to Wikipedia.
	Knowledge Provider

	// Redis caches merged results when non-nil.
	Redis redis.Cmdable

	// CacheTTL is the merged-result cache lifetime. Defaults to 1h.
	CacheTTL time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New builds the search service.
func New(opts Options) *Service {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	providers := opts.Providers
	if providers == nil {
		providers = []Provider{duckduckgo{client: opts.HTTPClient}}
		if opts.BingKey != "" {
			providers = append(providers, bing{client: opts.HTTPClient, key: opts.BingKey})
		}
		if opts.SerpKey != "" {
			providers = append(providers, serp{client: opts.HTTPClient, key: opts.SerpKey})
		}
	}
	knowledge := opts.Knowledge
	if knowledge == nil {
		knowledge = wikipedia{client: opts.HTTPClient}
	}

	return &Service{
		providers: providers,
		knowledge: knowledge,
		rdb:       opts.Redis,
		cacheTTL:  opts.CacheTTL,
		logger:    opts.Logger,
	}
}

func (s *Service) Name() string           { return toolName }
func (s *Service) Capabilities() []string { return append([]string(nil), capabilities...) }

func (s *Service) Start(context.Context) error {
	s.running.Store(true)
	return nil
}

func (s *Service) Shutdown(context.Context) error {
	s.running.Store(false)
	return nil
}

func (s *Service) Ping(context.Context) error {
	if !s.running.Load() {
		return fault.New(fault.KindToolStopped, toolName, "not running")
	}
	return nil
}

// Execute dispatches one search command.
func (s *Service) Execute(ctx context.Context, command string, params map[string]string) (map[string]any, error) {
	query := strings.TrimSpace(params["query"])
	if query == "" {
		query = strings.TrimSpace(params["statement"])
	}
	if query == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "query is required")
	}

	switch command {
	case "web_search":
		return s.webSearch(ctx, query, resultCount(params), params["type"])
	case "knowledge_query":
		return s.knowledgeQuery(ctx, query)
	case "fact_check":
		return s.factCheck(ctx, query)
	case "research":
		return s.research(ctx, query, resultCount(params))
	default:
		return nil, fault.Newf(fault.KindUnsupportedCommand, toolName, "unknown command %q", command)
	}
}

func resultCount(params map[string]string) int {
	if n, err := strconv.Atoi(params["n"]); err == nil && n > 0 {
		return n
	}
	return defaultResultCount
}

// searchPage is the typed, cacheable shape of one merged web search.
// Cached pages decode back into this struct so consumers like factCheck
// keep working with []Result instead of json-decoded []any.
type searchPage struct {
	Query          string   `json:"query"`
	Results        []Result `json:"results"`
	TotalResults   int      `json:"total_results"`
	SearchEngines  []string `json:"search_engines"`
	ProcessingTime float64  `json:"processing_time"`
	Cached         bool     `json:"cached"`
}

func (p searchPage) response() map[string]any {
	return map[string]any{
		"query":           p.Query,
		"results":         p.Results,
		"total_results":   p.TotalResults,
		"search_engines":  p.SearchEngines,
		"processing_time": p.ProcessingTime,
		"cached":          p.Cached,
	}
}

func (s *Service) webSearch(ctx context.Context, query string, n int, searchType string) (map[string]any, error) {
	page, err := s.runSearch(ctx, query, n, searchType)
	if err != nil {
		return nil, err
	}
	return page.response(), nil
}

func (s *Service) runSearch(ctx context.Context, query string, n int, searchType string) (searchPage, error) {
	start := time.Now()

	cacheKey := searchCacheKey("web_search", query, n, searchType)
	if cached := s.cacheGet(ctx, cacheKey); cached != nil {
		cached.Cached = true
		return *cached, nil
	}

	merged := s.fanOut(ctx, query, n)
	ranked := rankAndDeduplicate(merged, query)
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	engines := make([]string, len(s.providers))
	for i, p := range s.providers {
		engines[i] = p.Name()
	}

	page := searchPage{
		Query:          query,
		Results:        ranked,
		TotalResults:   len(ranked),
		SearchEngines:  engines,
		ProcessingTime: time.Since(start).Seconds(),
	}
	s.cachePut(ctx, cacheKey, page)
	return page, nil
}

// fanOut queries every provider concurrently. A provider failure is
// logged and contributes nothing; the search succeeds with whatever the
// rest returned.
func (s *Service) fanOut(ctx context.Context, query string, n int) []Result {
	var mu sync.Mutex
	var merged []Result

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range s.providers {
		g.Go(func() error {
			results, err := p.Search(ctx, query, n)
			if err != nil {
				s.logger.Warn("search provider failed", "provider", p.Name(), "error", err)
				return nil
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return merged
}

// rankAndDeduplicate drops repeated URLs (first occurrence wins) and
// orders by relevance plus the authoritative-domain and title-match
// boosts.
func rankAndDeduplicate(results []Result, query string) []Result {
	seen := make(map[string]bool)
	unique := results[:0:0]
	for _, r := range results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		unique = append(unique, r)
	}

	lowerQuery := strings.ToLower(query)
	score := func(r Result) float64 {
		s := r.Relevance
		if isAuthoritative(r.URL) {
			s += 0.2
		}
		if strings.Contains(strings.ToLower(r.Title), lowerQuery) {
			s += 0.1
		}
		return s
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return score(unique[i]) > score(unique[j])
	})
	return unique
}

func isAuthoritative(resultURL string) bool {
	lower := strings.ToLower(resultURL)
	for _, domain := range authoritativeDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

func (s *Service) knowledgeQuery(ctx context.Context, query string) (map[string]any, error) {
	results, err := s.knowledge.Search(ctx, query, 1)
	if err != nil {
		s.logger.Warn("knowledge source failed", "error", err)
		results = nil
	}
	return map[string]any{
		"query":            query,
		"sources":          []string{s.knowledge.Name()},
		"results":          results,
		"confidence_score": knowledgeConfidence(results),
	}, nil
}

// knowledgeConfidence grows with the share of authoritative sources in
// the result set; an empty set has no confidence at all.
func knowledgeConfidence(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	authoritative := 0
	for _, r := range results {
		if isAuthoritative(r.URL) {
			authoritative++
		}
	}
	confidence := float64(authoritative)/float64(len(results)) + 0.3
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func (s *Service) factCheck(ctx context.Context, statement string) (map[string]any, error) {
	page, err := s.runSearch(ctx, "fact check: "+statement, factCheckFanout, "news")
	if err != nil {
		return nil, err
	}

	var factCheckSources []Result
	var indicators []Result
	for _, r := range page.Results {
		lowerURL := strings.ToLower(r.URL)
		for _, domain := range factCheckDomains {
			if strings.Contains(lowerURL, domain) {
				factCheckSources = append(factCheckSources, r)
				break
			}
		}
		lowerSnippet := strings.ToLower(r.Snippet)
		for _, indicator := range credibilityIndicators {
			if strings.Contains(lowerSnippet, indicator) {
				indicators = append(indicators, r)
				break
			}
		}
	}

	confidence := "medium"
	recommendation := "Verify with multiple sources"
	if len(factCheckSources) > 0 {
		confidence = "high"
		recommendation = "Fact-check sources available"
	}

	return map[string]any{
		"statement":              statement,
		"fact_check_sources":     factCheckSources,
		"credibility_indicators": indicators,
		"confidence_level":       confidence,
		"recommendation":         recommendation,
	}, nil
}

// research pairs a broad web search with the encyclopedic backend.
func (s *Service) research(ctx context.Context, query string, n int) (map[string]any, error) {
	web, err := s.webSearch(ctx, query, n, "research")
	if err != nil {
		return nil, err
	}
	knowledge, err := s.knowledgeQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"query":     query,
		"web":       web,
		"knowledge": knowledge,
	}, nil
}

func searchCacheKey(operation, query string, n int, searchType string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%d:%s", operation, query, n, searchType))
	return "search_cache:" + hex.EncodeToString(sum[:])
}

func (s *Service) cacheGet(ctx context.Context, key string) *searchPage {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var cached searchPage
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}
	return &cached
}

func (s *Service) cachePut(ctx context.Context, key string, page searchPage) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("search cache write failed", "error", err)
	}
}
