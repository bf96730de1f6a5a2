package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists state snapshots in a single-row-per-user table.
// The snapshot is stored as a JSON document so the save(load()) round trip
// is exact regardless of schema evolution.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	createTableSQL := `CREATE TABLE IF NOT EXISTS intent_state (
		user_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create intent_state table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, userID string) (*State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM intent_state WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}
	state := &State{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return state, nil
}

func (s *SQLiteStore) Save(ctx context.Context, state *State) error {
	state.trim()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO intent_state (user_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		state.UserID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
