package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"levelbot/internal/models"
)

// PostgresStore persists progression records one row per user, with the XP
// history as a JSONB column. It caches nothing: reads and writes go straight
// to the database, which makes individual operations safe under concurrency
// without extra locking here.
type PostgresStore struct {
	conn   *sql.DB
	logger *slog.Logger
}

// NewPostgresStore opens the database and ensures the schema exists.
func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{conn: conn, logger: logger}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createTables() error {
	_, err := s.conn.Exec(`
	CREATE TABLE IF NOT EXISTS progression (
		user_id TEXT PRIMARY KEY,
		xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		last_daily TEXT NOT NULL DEFAULT '',
		xp_history JSONB NOT NULL DEFAULT '[]'
	)`)
	if err != nil {
		return fmt.Errorf("failed to create progression table: %w", err)
	}
	return nil
}

// Get returns the record for a user.
func (s *PostgresStore) Get(userID string) (models.UserProgression, bool) {
	var rec models.UserProgression
	var history []byte
	err := s.conn.QueryRow(
		"SELECT xp, level, last_daily, xp_history FROM progression WHERE user_id = $1",
		userID).Scan(&rec.XP, &rec.Level, &rec.LastDaily, &history)
	if err == sql.ErrNoRows {
		return models.UserProgression{}, false
	}
	if err != nil {
		s.logger.Error("failed to read progression row", "user", userID, "error", err)
		return models.UserProgression{}, false
	}
	if err := json.Unmarshal(history, &rec.XPHistory); err != nil {
		s.logger.Warn("malformed xp history, dropping", "user", userID, "error", err)
		rec.XPHistory = nil
	}
	return rec.Normalize(), true
}

// Put upserts the record for a user.
func (s *PostgresStore) Put(userID string, rec models.UserProgression) error {
	history, err := json.Marshal(rec.XPHistory)
	if err != nil {
		return fmt.Errorf("failed to encode xp history: %w", err)
	}
	if rec.XPHistory == nil {
		history = []byte("[]")
	}

	_, err = s.conn.Exec(`
	INSERT INTO progression (user_id, xp, level, last_daily, xp_history)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id) DO UPDATE SET
		xp = EXCLUDED.xp,
		level = EXCLUDED.level,
		last_daily = EXCLUDED.last_daily,
		xp_history = EXCLUDED.xp_history`,
		userID, rec.XP, rec.Level, rec.LastDaily, history)
	if err != nil {
		return fmt.Errorf("failed to upsert progression row: %w", err)
	}
	return nil
}

// All returns every record keyed by user id.
func (s *PostgresStore) All() map[string]models.UserProgression {
	rows, err := s.conn.Query("SELECT user_id, xp, level, last_daily, xp_history FROM progression")
	if err != nil {
		s.logger.Error("failed to list progression rows", "error", err)
		return map[string]models.UserProgression{}
	}
	defer rows.Close()

	out := make(map[string]models.UserProgression)
	for rows.Next() {
		var id string
		var rec models.UserProgression
		var history []byte
		if err := rows.Scan(&id, &rec.XP, &rec.Level, &rec.LastDaily, &history); err != nil {
			s.logger.Error("failed to scan progression row", "error", err)
			continue
		}
		if err := json.Unmarshal(history, &rec.XPHistory); err != nil {
			rec.XPHistory = nil
		}
		out[id] = rec.Normalize()
	}
	return out
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}
