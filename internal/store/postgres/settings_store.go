package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkoval/tradepilot/internal/domain"
)

// SettingsStore implements domain.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

var _ domain.SettingsStore = (*SettingsStore)(nil)

// Load reads the full catalog and merges it over defaults.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("postgres: load settings: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return domain.Settings{}, fmt.Errorf("postgres: scan settings row: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return domain.Settings{}, fmt.Errorf("postgres: read settings rows: %w", err)
	}

	return domain.SettingsFromKV(kv)
}

// Seed writes the catalog for keys that do not exist yet. Existing rows are
// left untouched so operator edits survive a restart.
func (s *SettingsStore) Seed(ctx context.Context, st domain.Settings) error {
	const query = `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING`

	for k, v := range st.KV() {
		if _, err := s.pool.Exec(ctx, query, k, v); err != nil {
			return fmt.Errorf("postgres: seed setting %s: %w", k, err)
		}
	}
	return nil
}

// Put upserts a single key.
func (s *SettingsStore) Put(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres: put setting %s: %w", key, err)
	}
	return nil
}
