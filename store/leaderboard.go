package store

import (
	"fmt"
)

// SeasonAllTime is the default season bucket.
const SeasonAllTime = "all_time"

// LeaderboardEntry is one per-uid row of aggregated gameplay stats.
type LeaderboardEntry struct {
	UID         string `json:"uid"`
	PlayerName  string `json:"player_name"`
	NowLength   int    `json:"now_length"`
	MaxLength   int    `json:"max_length"`
	Kills       int    `json:"kills"`
	Deaths      int    `json:"deaths"`
	GamesPlayed int    `json:"games_played"`
	TotalFood   int    `json:"total_food"`
	LastRound   int    `json:"last_round"`
	Timestamp   int64  `json:"timestamp"`
}

// RecordGrowth upserts a uid's row after it eats: current length, peak
// length, and food total all advance.
func (d *DB) RecordGrowth(uid, name string, length, round int, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(`
		INSERT INTO leaderboard (uid, player_name, season_id, now_length, max_length, total_food, last_round, timestamp)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(uid, season_id) DO UPDATE SET
			player_name = excluded.player_name,
			now_length = excluded.now_length,
			max_length = MAX(max_length, excluded.max_length),
			total_food = total_food + 1,
			last_round = excluded.last_round,
			timestamp = excluded.timestamp`,
		uid, name, SeasonAllTime, length, length, round, now,
	)
	if err != nil {
		return fmt.Errorf("record growth: %w", err)
	}
	return nil
}

// RecordDeath upserts a uid's row after its snake dies: one more death, one
// more finished game, current length back to zero.
func (d *DB) RecordDeath(uid, name string, round int, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(`
		INSERT INTO leaderboard (uid, player_name, season_id, now_length, deaths, games_played, last_round, timestamp)
		VALUES (?, ?, ?, 0, 1, 1, ?, ?)
		ON CONFLICT(uid, season_id) DO UPDATE SET
			player_name = excluded.player_name,
			now_length = 0,
			deaths = deaths + 1,
			games_played = games_played + 1,
			last_round = excluded.last_round,
			timestamp = excluded.timestamp`,
		uid, name, SeasonAllTime, round, now,
	)
	if err != nil {
		return fmt.Errorf("record death: %w", err)
	}
	return nil
}

// RecordKill credits a kill to the uid whose body the victim ran into.
func (d *DB) RecordKill(uid string, round int, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(`
		INSERT INTO leaderboard (uid, player_name, season_id, kills, last_round, timestamp)
		VALUES (?, '', ?, 1, ?, ?)
		ON CONFLICT(uid, season_id) DO UPDATE SET
			kills = kills + 1,
			last_round = excluded.last_round,
			timestamp = excluded.timestamp`,
		uid, SeasonAllTime, round, now,
	)
	if err != nil {
		return fmt.Errorf("record kill: %w", err)
	}
	return nil
}

// TopByMaxLength returns the leaderboard ordered by peak length, kills
// breaking ties.
func (d *DB) TopByMaxLength(limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.Query(`
		SELECT uid, player_name, now_length, max_length, kills, deaths, games_played, total_food, last_round, timestamp
		FROM leaderboard
		WHERE season_id = ?
		ORDER BY max_length DESC, kills DESC
		LIMIT ?`,
		SeasonAllTime, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(
			&e.UID, &e.PlayerName, &e.NowLength, &e.MaxLength, &e.Kills,
			&e.Deaths, &e.GamesPlayed, &e.TotalFood, &e.LastRound, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
