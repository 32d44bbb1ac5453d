package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"hokm-server/internal/engine"
)

// SQLiteStore is a single-file Store backend for standalone
// deployments and local development: one connection, WAL journaling,
// busy_timeout tuned for a single writer rather than connection-pool
// contention.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a sqlite database at
// dbPath and ensures its schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		if parent := filepath.Dir(dbPath); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS rooms (
    room_code TEXT PRIMARY KEY,
    state_json TEXT NOT NULL,
    version INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
    player_id TEXT PRIMARY KEY,
    room_code TEXT NOT NULL,
    slot INTEGER NOT NULL,
    connection_status TEXT NOT NULL,
    last_seen_ms INTEGER NOT NULL,
    expires_at_ms INTEGER NOT NULL
);
`)
	return err
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) GetState(ctx context.Context, roomCode string) (StoredState, error) {
	var stateJSON string
	var version int64
	err := s.db.QueryRowContext(ctx, `
SELECT state_json, version FROM rooms WHERE room_code = ?
`, roomCode).Scan(&stateJSON, &version)
	if err == sql.ErrNoRows {
		return StoredState{}, ErrNotFound
	}
	if err != nil {
		return StoredState{}, err
	}
	state, err := DecodeState([]byte(stateJSON))
	if err != nil {
		return StoredState{}, err
	}
	return StoredState{State: state, Version: version}, nil
}

// PutState performs the CAS write inside one transaction: an UPDATE
// guarded by the expected version (or an INSERT when expectedVersion is
// 0), with RowsAffected deciding whether the guard held rather than
// trusting a bare Exec to mean success.
func (s *SQLiteStore) PutState(ctx context.Context, roomCode string, state engine.GameState, expectedVersion int64) (int64, error) {
	encoded, err := EncodeState(state)
	if err != nil {
		return 0, err
	}
	newVersion := expectedVersion + 1
	nowMs := time.Now().UTC().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if expectedVersion == 0 {
		res, err := tx.ExecContext(ctx, `
INSERT INTO rooms (room_code, state_json, version, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(room_code) DO NOTHING
`, roomCode, string(encoded), newVersion, nowMs)
		if err != nil {
			return 0, err
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if inserted == 0 {
			// The room already exists; even at version 1 this write
			// must fail, because the stored state is someone else's.
			return 0, ErrConcurrentWrite
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return newVersion, nil
	}

	res, err := tx.ExecContext(ctx, `
UPDATE rooms SET state_json = ?, version = ?, updated_at_ms = ?
WHERE room_code = ? AND version = ?
`, string(encoded), newVersion, nowMs, roomCode, expectedVersion)
	if err != nil {
		return 0, err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rowsAffected == 0 {
		return 0, ErrConcurrentWrite
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (s *SQLiteStore) DeleteRoom(ctx context.Context, roomCode string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_code = ?`, roomCode)
	return err
}

func (s *SQLiteStore) IterActiveRooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room_code FROM rooms ORDER BY room_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *SQLiteStore) GetSession(ctx context.Context, playerID string) (Session, error) {
	var sess Session
	var status string
	var lastSeenMs, expiresAtMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT room_code, slot, connection_status, last_seen_ms, expires_at_ms
FROM sessions WHERE player_id = ?
`, playerID).Scan(&sess.RoomCode, &sess.Slot, &status, &lastSeenMs, &expiresAtMs)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if time.Now().UTC().UnixMilli() > expiresAtMs {
		return Session{}, ErrNotFound
	}
	sess.PlayerID = playerID
	sess.ConnectionStatus = ConnectionStatus(status)
	sess.LastSeen = time.UnixMilli(lastSeenMs).UTC()
	return sess, nil
}

func (s *SQLiteStore) PutSession(ctx context.Context, playerID string, session Session, ttl time.Duration) error {
	nowMs := time.Now().UTC().UnixMilli()
	expiresAtMs := nowMs + ttl.Milliseconds()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (player_id, room_code, slot, connection_status, last_seen_ms, expires_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET
    room_code = excluded.room_code,
    slot = excluded.slot,
    connection_status = excluded.connection_status,
    last_seen_ms = excluded.last_seen_ms,
    expires_at_ms = excluded.expires_at_ms
`, playerID, session.RoomCode, session.Slot, string(session.ConnectionStatus), nowMs, expiresAtMs)
	return err
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, playerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE player_id = ?`, playerID)
	return err
}
