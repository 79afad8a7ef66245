// Package postgres provides the server-side profile gateway and the story
// event journal, both backed by Postgres.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/mdrv/python-game/internal/config"
	"github.com/mdrv/python-game/internal/events"
	"github.com/mdrv/python-game/internal/profile"
	"github.com/mdrv/python-game/internal/storage"
)

// EventRow represents a journaled event.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	GameID    string                 `json:"game_id"`
	ProfileID *string                `json:"profile_id,omitempty"`
}

// Client is a profile gateway and event journal over one Postgres pool.
type Client struct {
	dsn    string
	gameID string

	mu    sync.RWMutex
	db    *sql.DB
	table string
}

// DSNFromEnv builds a lib/pq connection string from PG* variables.
// The password may come from PGPASSWORD or PGPASSWORD_FILE.
func DSNFromEnv() (string, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "bearcu")
	dbname := getEnv("PGDATABASE", "bearcu")
	sslmode := getEnv("PGSSLMODE", "disable")
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return "", err
	}

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode), nil
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode), nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// New returns a client for dsn. Events are tagged with gameID.
// Nothing is opened until Init.
func New(dsn, gameID string) *Client {
	return &Client{dsn: dsn, gameID: gameID}
}

// Init connects and creates the profile and event tables.
func (c *Client) Init(ctx context.Context, cfg storage.Config) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return &storage.Error{Op: "init", Err: err}
	}

	db, err := sql.Open("postgres", c.dsn)
	if err != nil {
		return fmt.Errorf("%w: open postgres: %v", storage.ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: ping postgres: %v", storage.ErrUnavailable, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			last_played_at TIMESTAMPTZ NOT NULL,
			data           JSONB NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_name ON %[1]s(name);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_last_played_at ON %[1]s(last_played_at DESC);

		CREATE TABLE IF NOT EXISTS story_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			game_id    TEXT NOT NULL,
			profile_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_story_events_ts ON story_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_story_events_profile_id ON story_events(profile_id);
	`, cfg.Store)
	if _, err := db.ExecContext(ctx, query); err != nil {
		db.Close()
		return fmt.Errorf("%w: create tables: %v", storage.ErrUnavailable, err)
	}

	c.mu.Lock()
	if c.db != nil {
		c.db.Close()
	}
	c.db = db
	c.table = cfg.Store
	c.mu.Unlock()
	return nil
}

func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

func (c *Client) handle() (*sql.DB, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, "", storage.ErrNotInitialized
	}
	return c.db, c.table, nil
}

func (c *Client) Get(ctx context.Context, id string) (*profile.KidProfile, error) {
	db, table, err := c.handle()
	if err != nil {
		return nil, &storage.Error{Op: "get", ID: id, Err: err}
	}

	var data []byte
	err = db.QueryRowContext(ctx, `SELECT data FROM `+table+` WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &storage.Error{Op: "get", ID: id, Err: err}
	}

	var p profile.KidProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &storage.Error{Op: "get", ID: id, Err: fmt.Errorf("failed to unmarshal profile: %w", err)}
	}
	return &p, nil
}

func (c *Client) Put(ctx context.Context, p *profile.KidProfile) storage.SaveResult {
	db, table, err := c.handle()
	if err != nil {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: err})
	}

	data, err := json.Marshal(p)
	if err != nil {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: err})
	}

	query := `
		INSERT INTO ` + table + ` (id, name, created_at, last_played_at, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			last_played_at = EXCLUDED.last_played_at,
			data = EXCLUDED.data,
			updated_at = now()
	`
	if _, err := db.ExecContext(ctx, query, p.ID, p.Name, p.CreatedAt, p.LastPlayedAt, data); err != nil {
		return storage.Failed(&storage.Error{Op: "put", ID: p.ID, Err: err})
	}
	return storage.Saved()
}

func (c *Client) Delete(ctx context.Context, id string) error {
	db, table, err := c.handle()
	if err != nil {
		return &storage.Error{Op: "delete", ID: id, Err: err}
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id); err != nil {
		return &storage.Error{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// ListAll returns every profile, most recently played first.
func (c *Client) ListAll(ctx context.Context) ([]*profile.KidProfile, error) {
	db, table, err := c.handle()
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
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, &storage.Error{Op: "list", Err: err}
		}
		var p profile.KidProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, &storage.Error{Op: "list", ID: id, Err: fmt.Errorf("failed to unmarshal profile: %w", err)}
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.Error{Op: "list", Err: err}
	}
	return out, nil
}

// AppendEvent journals one event. A "profile_id" field, when present, is
// copied into its own column.
func (c *Client) AppendEvent(ts time.Time, level, event, msg string, fields map[string]interface{}) error {
	db, _, err := c.handle()
	if err != nil {
		return err
	}

	var fieldsJSON []byte
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var profilePtr *string
	if id, ok := fields["profile_id"].(string); ok && id != "" {
		profilePtr = &id
	}

	query := `
		INSERT INTO story_events (ts, level, event, msg, fields, game_id, profile_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.gameID, profilePtr)
	return err
}

// QueryEvents returns the last limit events for this game, newest first.
// A non-empty profileID narrows the result to that profile.
func (c *Client) QueryEvents(ctx context.Context, profileID string, limit int) ([]EventRow, error) {
	db, _, err := c.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, game_id, profile_id
		FROM story_events
		WHERE game_id = $1 AND ($2 = '' OR profile_id = $2)
		ORDER BY ts DESC, event_id DESC
		LIMIT $3
	`
	rows, err := db.QueryContext(ctx, query, c.gameID, profileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, pid sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.GameID, &pid); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if pid.Valid {
			e.ProfileID = &pid.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// JournalEvents returns a profile's journaled events, newest first, in the
// shape the emitter produced them.
func (c *Client) JournalEvents(ctx context.Context, profileID string, limit int) ([]events.Event, error) {
	rows, err := c.QueryEvents(ctx, profileID, limit)
	if err != nil {
		return nil, err
	}
	return toEvents(rows), nil
}

func toEvents(rows []EventRow) []events.Event {
	out := make([]events.Event, 0, len(rows))
	for _, r := range rows {
		e := events.Event{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Level:     r.Level,
			Name:      r.Event,
			Fields:    r.Fields,
		}
		if r.Message != nil {
			e.Message = *r.Message
		}
		out = append(out, e)
	}
	return out
}

// Close closes the database connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
