// Package analytics is the behaviour analytics sink. Track never blocks
// the request path: events go into a bounded buffer and are dropped on
// overflow. A background drainer folds batches into per-user profiles;
// a cleaner drops profiles inactive beyond the retention window.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBufferSize = 1000
	defaultBatchSize  = 50
	defaultRetention  = 30 * 24 * time.Hour

	// flushInterval releases a partial batch when traffic is slow.
	flushInterval = time.Second

	// cleanInterval is how often the retention cleaner runs.
	cleanInterval = time.Hour
)

// Event is one tracked command interaction.
type Event struct {
	UserID    string
	SessionID string
	Category  string
	Command   string
	Success   bool
	Timestamp time.Time
}

// Profile is the aggregated behaviour of one user.
type Profile struct {
	UserID           string         `json:"user_id"`
	TotalCommands    int            `json:"total_commands"`
	CommandFrequency map[string]int `json:"command_frequency"`
	SuccessRate      float64        `json:"success_rate"`
	AvgCommandLength float64        `json:"avg_command_length"`
	BehaviorPatterns []string       `json:"behavior_patterns"`
	EngagementTier   string         `json:"engagement_tier"`
	LastActive       time.Time      `json:"last_active"`

	successes   int
	totalLength int
}

// ProfileStore persists profiles; the pgx implementation lives in
// postgres.go. A nil store keeps profiles in memory only.
type ProfileStore interface {
	Upsert(ctx context.Context, p Profile) error
	DeleteInactive(ctx context.Context, cutoff time.Time) (int, error)
}

// Sink buffers events and maintains profiles.
type Sink struct {
	events    chan Event
	batchSize int
	retention time.Duration
	store     ProfileStore
	logger    *slog.Logger
	now       func() time.Time
	dropped   atomic.Int64

	mu       sync.Mutex
	profiles map[string]*Profile
}

// Options configures the sink. Zero values take the defaults.
type Options struct {
	BufferSize int
	BatchSize  int
	Retention  time.Duration
	Store      ProfileStore
	Logger     *slog.Logger
}

// New builds an empty sink. Call [Sink.Run] to start draining.
func New(opts Options) *Sink {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sink{
		events:    make(chan Event, opts.BufferSize),
		batchSize: opts.BatchSize,
		retention: opts.Retention,
		store:     opts.Store,
		logger:    opts.Logger,
		now:       time.Now,
		profiles:  make(map[string]*Profile),
	}
}

// Track enqueues an event without blocking. On overflow the event is
// dropped and counted.
func (s *Sink) Track(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many events were lost to overflow.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Pending reports how many events await draining.
func (s *Sink) Pending() int { return len(s.events) }

// Run drains batches into profiles until ctx is canceled. Intended to
// run as a single background goroutine.
func (s *Sink) Run(ctx context.Context) {
	flush := time.NewTicker(flushInterval)
	clean := time.NewTicker(cleanInterval)
	defer flush.Stop()
	defer clean.Stop()

	batch := make([]Event, 0, s.batchSize)
	for {
		select {
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= s.batchSize {
				s.apply(ctx, batch)
				batch = batch[:0]
			}
		case <-flush.C:
			if len(batch) > 0 {
				s.apply(ctx, batch)
				batch = batch[:0]
			}
		case <-clean.C:
			s.cleanup(ctx)
		case <-ctx.Done():
			if len(batch) > 0 {
				s.apply(context.Background(), batch)
			}
			return
		}
	}
}

// apply folds a batch of events into the profile map and flushes the
// touched profiles to the store.
func (s *Sink) apply(ctx context.Context, batch []Event) {
	touched := make(map[string]bool, len(batch))

	s.mu.Lock()
	for _, ev := range batch {
		if ev.UserID == "" {
			continue
		}
		p, ok := s.profiles[ev.UserID]
		if !ok {
			p = &Profile{
				UserID:           ev.UserID,
				CommandFrequency: make(map[string]int),
			}
			s.profiles[ev.UserID] = p
		}

		p.TotalCommands++
		p.CommandFrequency[ev.Category]++
		if ev.Success {
			p.successes++
		}
		p.totalLength += len(ev.Command)
		p.SuccessRate = float64(p.successes) / float64(p.TotalCommands)
		p.AvgCommandLength = float64(p.totalLength) / float64(p.TotalCommands)
		p.EngagementTier = engagementTier(p.TotalCommands)
		p.BehaviorPatterns = inferPatterns(p)
		if ev.Timestamp.After(p.LastActive) {
			p.LastActive = ev.Timestamp
		}
		touched[ev.UserID] = true
	}

	var flush []Profile
	if s.store != nil {
		for userID := range touched {
			flush = append(flush, *s.profiles[userID])
		}
	}
	s.mu.Unlock()

	for _, p := range flush {
		if err := s.store.Upsert(ctx, p); err != nil {
			s.logger.Warn("profile flush failed", "user_id", p.UserID, "error", err)
		}
	}
}

// cleanup drops profiles inactive beyond the retention window.
func (s *Sink) cleanup(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.retention)

	s.mu.Lock()
	removed := 0
	for userID, p := range s.profiles {
		if p.LastActive.Before(cutoff) {
			delete(s.profiles, userID)
			removed++
		}
	}
	s.mu.Unlock()

	if s.store != nil {
		if n, err := s.store.DeleteInactive(ctx, cutoff); err != nil {
			s.logger.Warn("stored profile cleanup failed", "error", err)
		} else {
			removed += n
		}
	}
	if removed > 0 {
		s.logger.Info("cleaned inactive profiles", "removed", removed)
	}
}

// profileGetter is the optional read side of a ProfileStore;
// [PostgresStore] implements it.
type profileGetter interface {
	Get(ctx context.Context, userID string) (Profile, bool, error)
}

// Profile returns one user's profile. The in-memory aggregate wins; users
// whose last activity predates this process are read back from the store
// when it supports lookups.
func (s *Sink) Profile(ctx context.Context, userID string) (Profile, bool, error) {
	if p, ok := s.ProfileFor(userID); ok {
		return p, true, nil
	}
	if getter, ok := s.store.(profileGetter); ok {
		return getter.Get(ctx, userID)
	}
	return Profile{}, false, nil
}

// ProfileFor returns a copy of one user's profile.
func (s *Sink) ProfileFor(userID string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// Profiles returns copies of every profile, sorted by user id.
func (s *Sink) Profiles() []Profile {
	s.mu.Lock()
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, *p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func engagementTier(total int) string {
	switch {
	case total >= 200:
		return "power"
	case total >= 50:
		return "regular"
	case total >= 10:
		return "casual"
	default:
		return "new"
	}
}

// inferPatterns derives coarse behaviour tags from the aggregates.
func inferPatterns(p *Profile) []string {
	var patterns []string

	for category, count := range p.CommandFrequency {
		if p.TotalCommands >= 5 && float64(count)/float64(p.TotalCommands) >= 0.4 {
			patterns = append(patterns, "prefers_"+category)
		}
	}
	sort.Strings(patterns)

	if p.TotalCommands >= 5 {
		switch {
		case p.AvgCommandLength < 20:
			patterns = append(patterns, "terse_commands")
		case p.AvgCommandLength > 80:
			patterns = append(patterns, "verbose_commands")
		}
		if p.SuccessRate < 0.5 {
			patterns = append(patterns, "high_failure_rate")
		}
	}
	return patterns
}
