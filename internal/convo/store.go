package convo

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/fault"
)

// Redis key layout. The per-context key carries the context JSON with a TTL
// matching the idle expiry; the per-user set tracks active session ids.
func contextKey(user, session string) string { return "context:" + user + ":" + session }
func userSessionsKey(user string) string     { return "user_sessions:" + user }

// Store owns all conversation contexts for this process. The local map is
// authoritative for the hot path; Redis mirrors every save so contexts
// survive restarts and are shared across instances.
//
// All writes to a given (user, session) are serialized by the store mutex.
// Redis mirroring happens outside the lock on a deep copy.
type Store struct {
	maxContexts int
	maxHistory  int
	idleExpiry  time.Duration
	rdb         redis.Cmdable
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	contexts map[string]*Context

	hits     int64
	misses   int64
	redisOps int64
}

// Options configures a [Store].
type Options struct {
	// MaxContexts bounds the local map. Defaults to 100.
	MaxContexts int

	// MaxHistory bounds per-context interaction history. Defaults to 20.
	MaxHistory int

	// IdleExpiry is the idle timeout after which a context is dropped.
	// Defaults to 30m. Also used as the Redis TTL.
	IdleExpiry time.Duration

	// Redis is the optional mirror tier. Nil keeps the store local-only.
	Redis redis.Cmdable

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewStore builds a Store.
func NewStore(opts Options) *Store {
	maxContexts := opts.MaxContexts
	if maxContexts <= 0 {
		maxContexts = 100
	}
	maxHistory := opts.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	idle := opts.IdleExpiry
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		maxContexts: maxContexts,
		maxHistory:  maxHistory,
		idleExpiry:  idle,
		rdb:         opts.Redis,
		logger:      logger,
		now:         time.Now,
		contexts:    make(map[string]*Context),
	}
}

func localKey(user, session string) string { return user + "\x00" + session }

// Get returns a copy of the context for (user, session). With createIfMissing
// a fresh context is created and persisted; otherwise a missing context
// returns nil without error.
func (s *Store) Get(ctx context.Context, user, session string, createIfMissing bool) *Context {
	now := s.now()

	s.mu.Lock()
	if c, ok := s.contexts[localKey(user, session)]; ok && !c.Expired(s.idleExpiry, now) {
		s.hits++
		out := c.clone()
		s.mu.Unlock()
		return out
	}
	delete(s.contexts, localKey(user, session))
	s.mu.Unlock()

	if c := s.loadFromRedis(ctx, user, session); c != nil && !c.Expired(s.idleExpiry, now) {
		s.mu.Lock()
		s.hits++
		s.storeLocalLocked(c)
		s.mu.Unlock()
		return c.clone()
	}

	s.mu.Lock()
	s.misses++
	s.mu.Unlock()

	if !createIfMissing {
		return nil
	}
	c := newContext(user, session, now)
	s.mu.Lock()
	s.storeLocalLocked(c)
	snapshot := c.clone()
	s.mu.Unlock()
	s.mirror(ctx, snapshot)
	return snapshot
}

// AppendInteraction records one completed turn: history append, parameter
// merge, topic update, and activity bump, as a single atomic update.
func (s *Store) AppendInteraction(ctx context.Context, user, session, userText, assistantText string, category classify.Category, params map[string]string) {
	now := s.now()

	s.mu.Lock()
	key := localKey(user, session)
	c, ok := s.contexts[key]
	if !ok || c.Expired(s.idleExpiry, now) {
		c = newContext(user, session, now)
		s.storeLocalLocked(c)
	}

	for k, v := range params {
		c.ActiveParameters[k] = v
	}
	snapshot := make(map[string]string, len(c.ActiveParameters))
	for k, v := range c.ActiveParameters {
		snapshot[k] = v
	}
	c.append(Interaction{
		Timestamp:     now,
		UserText:      userText,
		AssistantText: assistantText,
		Category:      category,
		Parameters:    snapshot,
	}, s.maxHistory)
	if category != classify.CategoryConversation {
		if topic := extractTopic(userText, category); topic != "" {
			c.CurrentTopic = topic
		}
	}
	mirror := c.clone()
	s.mu.Unlock()

	s.mirror(ctx, mirror)
}

// SetPreference records a user preference on the context.
func (s *Store) SetPreference(ctx context.Context, user, session, name, value string) {
	s.mu.Lock()
	key := localKey(user, session)
	c, ok := s.contexts[key]
	if !ok {
		c = newContext(user, session, s.now())
		s.storeLocalLocked(c)
	}
	c.Preferences[name] = value
	mirror := c.clone()
	s.mu.Unlock()

	s.mirror(ctx, mirror)
}

// Snapshot returns the classifier view of a context, or nil when none
// exists. It never creates a context.
func (s *Store) Snapshot(ctx context.Context, user, session string) *classify.Snapshot {
	c := s.Get(ctx, user, session, false)
	if c == nil {
		return nil
	}
	snap := c.Snapshot()
	return &snap
}

// Summary is an aggregate view of one conversation.
type Summary struct {
	User              string              `json:"user_id"`
	Session           string              `json:"session_id"`
	TotalInteractions int                 `json:"total_interactions"`
	CategoriesUsed    []classify.Category `json:"categories_used"`
	CurrentTopic      string              `json:"current_topic,omitempty"`
	RecentTopics      []string            `json:"recent_topics"`
	LastActivity      time.Time           `json:"last_activity"`
	DurationMinutes   float64             `json:"session_duration_minutes"`
	ActiveParameters  map[string]string   `json:"active_parameters"`
	Preferences       map[string]string   `json:"preferences"`
}

// Summary aggregates a context. Fails with [fault.KindNotFound] when the
// conversation does not exist.
func (s *Store) Summary(ctx context.Context, user, session string) (Summary, error) {
	c := s.Get(ctx, user, session, false)
	if c == nil {
		return Summary{}, fault.New(fault.KindNotFound, "convo", "no context for session")
	}

	var categories []classify.Category
	seenCategory := make(map[classify.Category]bool)
	var topics []string
	for _, in := range c.History {
		if !seenCategory[in.Category] {
			seenCategory[in.Category] = true
			categories = append(categories, in.Category)
		}
		if len(topics) < 3 {
			if t := extractTopic(in.UserText, in.Category); t != "" && !contains(topics, t) {
				topics = append(topics, t)
			}
		}
	}

	return Summary{
		User:              user,
		Session:           session,
		TotalInteractions: len(c.History),
		CategoriesUsed:    categories,
		CurrentTopic:      c.CurrentTopic,
		RecentTopics:      topics,
		LastActivity:      c.LastActivity,
		DurationMinutes:   s.now().Sub(c.CreatedAt).Minutes(),
		ActiveParameters:  c.ActiveParameters,
		Preferences:       c.Preferences,
	}, nil
}

// Suggestions returns follow-up suggestions for a conversation. A missing
// or empty conversation gets the seed list.
func (s *Store) Suggestions(ctx context.Context, user, session string) []string {
	return buildSuggestions(s.Get(ctx, user, session, false))
}

// Clear removes one conversation from both tiers.
func (s *Store) Clear(ctx context.Context, user, session string) {
	s.mu.Lock()
	delete(s.contexts, localKey(user, session))
	s.mu.Unlock()

	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, contextKey(user, session)).Err(); err != nil {
		s.logger.Warn("redis delete context failed", "error", err)
	}
	if err := s.rdb.SRem(ctx, userSessionsKey(user), session).Err(); err != nil {
		s.logger.Warn("redis srem session failed", "error", err)
	}
	s.logger.Info("cleared context", "user", user, "session", session)
}

// ClearUser removes every conversation belonging to user.
func (s *Store) ClearUser(ctx context.Context, user string) {
	for _, session := range s.UserSessions(ctx, user) {
		s.Clear(ctx, user, session)
	}
}

// UserSessions lists the active session ids for a user, preferring the
// shared set and falling back to the local map.
func (s *Store) UserSessions(ctx context.Context, user string) []string {
	if s.rdb != nil {
		sessions, err := s.rdb.SMembers(ctx, userSessionsKey(user)).Result()
		if err == nil {
			return sessions
		}
		s.logger.Warn("redis smembers failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var sessions []string
	prefix := user + "\x00"
	for key := range s.contexts {
		if strings.HasPrefix(key, prefix) {
			sessions = append(sessions, strings.TrimPrefix(key, prefix))
		}
	}
	return sessions
}

// CleanupExpired drops idle-expired contexts from the local map and returns
// how many were removed. Redis entries expire via their TTL.
func (s *Store) CleanupExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, c := range s.contexts {
		if c.Expired(s.idleExpiry, now) {
			delete(s.contexts, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("expired contexts removed", "count", removed)
	}
	return removed
}

// Run sweeps expired contexts every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupExpired()
		}
	}
}

// Metrics is a point-in-time view of store effectiveness.
type Metrics struct {
	CacheHits      int64   `json:"cache_hits"`
	CacheMisses    int64   `json:"cache_misses"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	RedisOps       int64   `json:"redis_operations"`
	LocalContexts  int     `json:"local_contexts"`
	RedisConnected bool    `json:"redis_connected"`
}

// Metrics returns the aggregate counters.
func (s *Store) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		CacheHits:      s.hits,
		CacheMisses:    s.misses,
		RedisOps:       s.redisOps,
		LocalContexts:  len(s.contexts),
		RedisConnected: s.rdb != nil,
	}
	if total := s.hits + s.misses; total > 0 {
		m.CacheHitRate = float64(s.hits) / float64(total)
	}
	return m
}

// storeLocalLocked inserts c, dropping the oldest-by-activity fifth when
// the map is full. Caller holds s.mu.
func (s *Store) storeLocalLocked(c *Context) {
	key := localKey(c.User, c.Session)
	if _, exists := s.contexts[key]; !exists && len(s.contexts) >= s.maxContexts {
		s.evictOldestLocked()
	}
	s.contexts[key] = c
}

func (s *Store) evictOldestLocked() {
	n := len(s.contexts) / 5
	if n < 1 {
		n = 1
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(s.contexts))
	for key, c := range s.contexts {
		all = append(all, aged{key, c.LastActivity})
	}
	for i := 0; i < n; i++ {
		oldest := -1
		for j, a := range all {
			if a.key == "" {
				continue
			}
			if oldest < 0 || a.at.Before(all[oldest].at) {
				oldest = j
			}
		}
		if oldest < 0 {
			return
		}
		delete(s.contexts, all[oldest].key)
		all[oldest].key = ""
	}
	s.logger.Debug("evicted oldest contexts", "count", n)
}

// loadFromRedis fetches and decodes a mirrored context, nil on miss or any
// Redis failure.
func (s *Store) loadFromRedis(ctx context.Context, user, session string) *Context {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, contextKey(user, session)).Result()
	s.mu.Lock()
	s.redisOps++
	s.mu.Unlock()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("redis get context failed", "error", err)
		}
		return nil
	}
	var c Context
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		s.logger.Warn("stored context undecodable", "error", err)
		return nil
	}
	if c.ActiveParameters == nil {
		c.ActiveParameters = make(map[string]string)
	}
	if c.Preferences == nil {
		c.Preferences = make(map[string]string)
	}
	return &c
}

// mirror writes a context copy to Redis with the idle-expiry TTL and tracks
// the session in the per-user set. Failures are logged and swallowed.
func (s *Store) mirror(ctx context.Context, c *Context) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(c)
	if err != nil {
		s.logger.Warn("context marshal failed", "error", err)
		return
	}
	if err := s.rdb.Set(ctx, contextKey(c.User, c.Session), raw, s.idleExpiry).Err(); err != nil {
		s.logger.Warn("redis save context failed", "error", err)
		return
	}
	if err := s.rdb.SAdd(ctx, userSessionsKey(c.User), c.Session).Err(); err != nil {
		s.logger.Warn("redis track session failed", "error", err)
		return
	}
	if err := s.rdb.Expire(ctx, userSessionsKey(c.User), s.idleExpiry).Err(); err != nil {
		s.logger.Warn("redis expire sessions failed", "error", err)
	}
	s.mu.Lock()
	s.redisOps++
	s.mu.Unlock()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
