// Package store persists account credentials and the leaderboard in SQLite,
// and archives per-tick snapshots as Parquet batches.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with thread-safe operations. It is never
// called under the world lock.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Account is one row of the players table: a durable key bound to an
// external identity proof.
type Account struct {
	UID       string
	Paste     string
	Key       string
	CreatedAt int64
	LastLogin int64
}

// Open creates a database connection and initializes the schema. Use
// ":memory:" for tests.
func Open(dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_journal_mode=WAL&_synchronous=NORMAL"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS players (
			uid TEXT PRIMARY KEY,
			paste TEXT NOT NULL,
			key TEXT UNIQUE NOT NULL,
			created_at INTEGER NOT NULL,
			last_login INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL,
			player_name TEXT NOT NULL,
			season_id TEXT NOT NULL DEFAULT 'all_time',
			now_length INTEGER NOT NULL DEFAULT 0,
			max_length INTEGER NOT NULL DEFAULT 0,
			kills INTEGER DEFAULT 0,
			deaths INTEGER DEFAULT 0,
			games_played INTEGER DEFAULT 0,
			total_food INTEGER DEFAULT 0,
			last_round INTEGER NOT NULL DEFAULT 0,
			timestamp INTEGER NOT NULL,
			FOREIGN KEY (uid) REFERENCES players(uid),
			UNIQUE (uid, season_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_uid ON leaderboard(uid)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_season_max_length
			ON leaderboard(season_id, max_length DESC)`,
	}
	for _, stmt := range schema {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// AccountByUID returns the account for uid, or nil when none exists.
func (d *DB) AccountByUID(uid string) (*Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var a Account
	err := d.conn.QueryRow(
		`SELECT uid, paste, key, created_at, last_login FROM players WHERE uid = ?`, uid,
	).Scan(&a.UID, &a.Paste, &a.Key, &a.CreatedAt, &a.LastLogin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &a, nil
}

// UIDByKey resolves a durable key back to its uid. Returns "" when the key
// does not exist (or has been rotated away).
func (d *DB) UIDByKey(key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var uid string
	err := d.conn.QueryRow(`SELECT uid FROM players WHERE key = ?`, key).Scan(&uid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query key: %w", err)
	}
	return uid, nil
}

// InsertAccount creates a new account row.
func (d *DB) InsertAccount(uid, paste, key string, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(
		`INSERT INTO players (uid, paste, key, created_at, last_login) VALUES (?, ?, ?, ?, ?)`,
		uid, paste, key, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// RotateAccountKey atomically replaces the stored proof and key for uid,
// invalidating the previous key.
func (d *DB) RotateAccountKey(uid, paste, newKey string, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(
		`UPDATE players SET paste = ?, key = ?, last_login = ? WHERE uid = ?`,
		paste, newKey, now, uid,
	)
	if err != nil {
		return fmt.Errorf("rotate key: %w", err)
	}
	return nil
}

// TouchLogin refreshes the last-login timestamp for uid.
func (d *DB) TouchLogin(uid string, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(`UPDATE players SET last_login = ? WHERE uid = ?`, now, uid)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}
