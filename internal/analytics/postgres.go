package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the user_profiles table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS user_profiles (
    user_id            TEXT PRIMARY KEY,
    total_commands     INTEGER NOT NULL DEFAULT 0,
    command_frequency  JSONB NOT NULL DEFAULT '{}',
    success_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_command_length DOUBLE PRECISION NOT NULL DEFAULT 0,
    behavior_patterns  JSONB NOT NULL DEFAULT '[]',
    engagement_tier    TEXT NOT NULL DEFAULT 'new',
    last_active        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_user_profiles_last_active ON user_profiles(last_active);
`

// DB is the database interface used by [PostgresStore]. Both
// *pgxpool.Pool and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists user profiles in PostgreSQL. Structured
// sub-fields are serialised as JSONB.
type PostgresStore struct {
	db DB
}

var _ ProfileStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store on the given connection or pool. The
// caller is responsible for calling [PostgresStore.Migrate] before
// issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("analytics: migrate: %w", err)
	}
	return nil
}

// Upsert creates or replaces one user's profile.
func (s *PostgresStore) Upsert(ctx context.Context, p Profile) error {
	freqJSON, err := json.Marshal(emptyCounts(p.CommandFrequency))
	if err != nil {
		return fmt.Errorf("analytics: marshal command_frequency: %w", err)
	}
	patternsJSON, err := json.Marshal(emptySlice(p.BehaviorPatterns))
	if err != nil {
		return fmt.Errorf("analytics: marshal behavior_patterns: %w", err)
	}

	const query = `
		INSERT INTO user_profiles (
			user_id, total_commands, command_frequency, success_rate,
			avg_command_length, behavior_patterns, engagement_tier, last_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id) DO UPDATE SET
			total_commands = EXCLUDED.total_commands,
			command_frequency = EXCLUDED.command_frequency,
			success_rate = EXCLUDED.success_rate,
			avg_command_length = EXCLUDED.avg_command_length,
			behavior_patterns = EXCLUDED.behavior_patterns,
			engagement_tier = EXCLUDED.engagement_tier,
			last_active = EXCLUDED.last_active,
			updated_at = now()`

	_, err = s.db.Exec(ctx, query,
		p.UserID, p.TotalCommands, freqJSON, p.SuccessRate,
		p.AvgCommandLength, patternsJSON, p.EngagementTier, p.LastActive,
	)
	if err != nil {
		return fmt.Errorf("analytics: upsert profile %q: %w", p.UserID, err)
	}
	return nil
}

// Get retrieves one profile. It returns (Profile{}, false, nil) when no
// profile exists for the user.
func (s *PostgresStore) Get(ctx context.Context, userID string) (Profile, bool, error) {
	const query = `
		SELECT user_id, total_commands, command_frequency, success_rate,
		       avg_command_length, behavior_patterns, engagement_tier, last_active
		FROM user_profiles
		WHERE user_id = $1`

	var (
		p            Profile
		freqJSON     []byte
		patternsJSON []byte
	)
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.TotalCommands, &freqJSON, &p.SuccessRate,
		&p.AvgCommandLength, &patternsJSON, &p.EngagementTier, &p.LastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, false, nil
		}
		return Profile{}, false, fmt.Errorf("analytics: get profile %q: %w", userID, err)
	}

	if err := json.Unmarshal(freqJSON, &p.CommandFrequency); err != nil {
		return Profile{}, false, fmt.Errorf("analytics: unmarshal command_frequency: %w", err)
	}
	if err := json.Unmarshal(patternsJSON, &p.BehaviorPatterns); err != nil {
		return Profile{}, false, fmt.Errorf("analytics: unmarshal behavior_patterns: %w", err)
	}
	return p, true, nil
}

// DeleteInactive removes profiles whose last activity predates cutoff
// and returns how many were removed.
func (s *PostgresStore) DeleteInactive(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `DELETE FROM user_profiles WHERE last_active < $1`
	tag, err := s.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("analytics: delete inactive profiles: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// emptyCounts ensures JSON marshalling produces "{}" instead of "null".
func emptyCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

// emptySlice ensures JSON marshalling produces "[]" instead of "null".
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
