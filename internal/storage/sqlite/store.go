// Package sqlite provides the on-device SQLite profile gateway.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mdrv/python-game/internal/profile"
	"github.com/mdrv/python-game/internal/storage"
)

// Store persists kid profiles in a single SQLite table. The full profile is
// kept as a JSON document; name and timestamps are copied into indexed
// columns for listing.
type Store struct {
	path string

	mu    sync.RWMutex
	sqlDB *sql.DB
	table string
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// New returns a store for the database file at path. Nothing is opened
// until Init.
func New(path string) *Store {
	return &Store{path: path}
}

// Init opens the database and creates the profile table and its indexes.
func (s *Store) Init(ctx context.Context, cfg storage.Config) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return &storage.Error{Op: "init", Err: err}
	}
	if strings.TrimSpace(s.path) == "" {
		return fmt.Errorf("%w: storage path is required", storage.ErrUnavailable)
	}

	dsn := "file:" + filepath.Clean(s.path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("%w: open sqlite db: %v", storage.ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("%w: ping sqlite db: %v", storage.ErrUnavailable, err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			last_played_at INTEGER NOT NULL,
			data           TEXT NOT NULL,
			updated_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_name ON %[1]s(name);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_last_played_at ON %[1]s(last_played_at DESC);
	`, cfg.Store)
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("%w: create %s table: %v", storage.ErrUnavailable, cfg.Store, err)
	}

	s.mu.Lock()
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
	s.sqlDB = sqlDB
	s.table = cfg.Store
	s.mu.Unlock()
	return nil
}

func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sqlDB != nil
}

func (s *Store) handle() (*sql.DB, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sqlDB == nil {
		return nil, "", storage.ErrNotInitialized
	}
	return s.sqlDB, s.table, nil
}

func (s *Store) Get(ctx context.Context, id string) (*profile.KidProfile, error) {
	db, table, err := s.handle()
	if err != nil {
		return nil, &storage.Error{Op: "get", ID: id, Err: err}
	}

	var data string
	err = db.QueryRowContext(ctx, `SELECT data FROM `+table+` WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &storage.Error{Op: "get", ID: id, Err: err}
	}

	var p profile.KidProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, &storage.Error{Op: "get", ID: id, Err: fmt.Errorf("decode profile: %w", err)}
	}
	return &p, nil
}

func (s *Store) Put(ctx context.Context, p *profile.KidProfile) storage.SaveResult {
	db, table, err := s.handle()
	if err != nil {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: err})
	}

	data, err := json.Marshal(p)
	if err != nil {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: err})
	}

	now := time.Now().UTC()
	_, err = db.ExecContext(
		ctx,
		`INSERT INTO `+table+` (id, name, created_at, last_played_at, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   last_played_at = excluded.last_played_at,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		p.ID,
		p.Name,
		toMillis(p.CreatedAt),
		toMillis(p.LastPlayedAt),
		string(data),
		toMillis(now),
	)
	if err != nil {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: err})
	}
	return storage.SaveResult{Success: true, Timestamp: now}
}

func (s *Store) Delete(ctx context.Context, id string) error {
	db, table, err := s.handle()
	if err != nil {
		return &storage.Error{Op: "delete", ID: id, Err: err}
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return &storage.Error{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// ListAll returns every profile, most recently played first.
func (s *Store) ListAll(ctx context.Context) ([]*profile.KidProfile, error) {
	db, table, err := s.handle()
	if err != nil {
		return nil, &storage.Error{Op: "list", Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT id, data FROM `+table+` ORDER BY last_played_at DESC, id`)
	if err != nil {
		return nil, &storage.Error{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []*profile.KidProfile
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, &storage.Error{Op: "list", Err: err}
		}
		var p profile.KidProfile
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, &storage.Error{Op: "list", ID: id, Err: fmt.Errorf("decode profile: %w", err)}
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.Error{Op: "list", Err: err}
	}
	return out, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sqlDB == nil {
		return nil
	}
	err := s.sqlDB.Close()
	s.sqlDB = nil
	return err
}
