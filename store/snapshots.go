package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/codingsnake/server/game"
)

// SnapshotRow is one archived tick. State holds the full snapshot JSON; the
// scalar columns exist so batches can be filtered without decoding it.
type SnapshotRow struct {
	ServerID           string `parquet:"server_id,dict"`
	Round              int32  `parquet:"round"`
	Timestamp          int64  `parquet:"timestamp"`
	NextRoundTimestamp int64  `parquet:"next_round_timestamp"`
	Players            int32  `parquet:"players"`
	Foods              int32  `parquet:"foods"`
	State              []byte `parquet:"state,zstd"`
}

// SnapshotArchive buffers per-tick snapshots and flushes them as Parquet
// batch files. Files are written into outDir/tmp and renamed into outDir, so
// readers never observe a partially-written batch.
type SnapshotArchive struct {
	outDir     string
	serverID   string
	flushEvery int

	mu   sync.Mutex
	rows []SnapshotRow
}

// NewSnapshotArchive creates an archive flushing every flushEvery rounds.
func NewSnapshotArchive(outDir, serverID string, flushEvery int) (*SnapshotArchive, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	if flushEvery <= 0 {
		flushEvery = 256
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	if err := os.MkdirAll(filepath.Join(absOut, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &SnapshotArchive{
		outDir:     absOut,
		serverID:   serverID,
		flushEvery: flushEvery,
	}, nil
}

// Append buffers one tick's snapshot, flushing when the batch is full.
func (a *SnapshotArchive) Append(snap game.FullSnapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.rows = append(a.rows, SnapshotRow{
		ServerID:           a.serverID,
		Round:              int32(snap.Round),
		Timestamp:          snap.Timestamp,
		NextRoundTimestamp: snap.NextRoundTimestamp,
		Players:            int32(len(snap.Players)),
		Foods:              int32(len(snap.Foods)),
		State:              state,
	})
	if len(a.rows) >= a.flushEvery {
		_, err := a.flushLocked()
		return err
	}
	return nil
}

// Flush writes any buffered rows out immediately. The returned path is empty
// when there was nothing to write.
func (a *SnapshotArchive) Flush() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

func (a *SnapshotArchive) flushLocked() (string, error) {
	if len(a.rows) == 0 {
		return "", nil
	}

	name := fmt.Sprintf("snapshots_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(a.outDir, name)
	tmpPath := filepath.Join(a.outDir, "tmp", name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, a.rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("state"),
		parquet.KeyValueMetadata("schema", "snapshot_row_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	a.rows = a.rows[:0]
	return finalPath, nil
}

// ReadSnapshotBatch reads every row of one archived batch file back.
func ReadSnapshotBatch(path string) ([]SnapshotRow, error) {
	rows, err := parquet.ReadFile[SnapshotRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}
