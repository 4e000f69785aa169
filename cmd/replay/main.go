// Command replay inspects archived game snapshots. The server writes one
// parquet row per tick; this tool queries those batches with DuckDB to list
// archived rounds or dump the full state of a single round.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

func main() {
	dataDir := flag.String("data", "snapshots", "Directory containing snapshot parquet batches")
	round := flag.Int("round", -1, "Dump the full state of this round")
	limit := flag.Int("limit", 50, "Max rows when listing")
	flag.Parse()

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		log.Fatalf("failed to open duckdb: %v", err)
	}
	defer db.Close()

	glob := filepath.Join(*dataDir, "*.parquet")
	if matches, _ := filepath.Glob(glob); len(matches) == 0 {
		log.Fatalf("no parquet batches under %s", *dataDir)
	}
	source := fmt.Sprintf("read_parquet('%s')", strings.ReplaceAll(glob, "'", "''"))

	if *round >= 0 {
		dumpRound(db, source, *round)
		return
	}
	listRounds(db, source, *limit)
}

func listRounds(db *sql.DB, source string, limit int) {
	rows, err := db.Query(fmt.Sprintf(`
		SELECT round, timestamp, players, foods
		FROM %s
		ORDER BY round DESC
		LIMIT ?`, source), limit)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	fmt.Printf("%-10s %-15s %-8s %-6s\n", "ROUND", "TIMESTAMP", "PLAYERS", "FOODS")
	for rows.Next() {
		var round, players, foods int32
		var timestamp int64
		if err := rows.Scan(&round, &timestamp, &players, &foods); err != nil {
			log.Fatalf("scan failed: %v", err)
		}
		fmt.Printf("%-10d %-15d %-8d %-6d\n", round, timestamp, players, foods)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("rows: %v", err)
	}
}

func dumpRound(db *sql.DB, source string, round int) {
	var state []byte
	err := db.QueryRow(fmt.Sprintf(`
		SELECT state FROM %s WHERE round = ? ORDER BY timestamp DESC LIMIT 1`, source), round).Scan(&state)
	if err == sql.ErrNoRows {
		log.Fatalf("round %d not found in archive", round)
	}
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}

	var pretty json.RawMessage = state
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		os.Stdout.Write(state)
		return
	}
	os.Stdout.Write(append(out, '\n'))
}
