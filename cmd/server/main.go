// Command server runs the authoritative snake game server: the tick engine,
// the session layer, and the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/codingsnake/server/api"
	"github.com/codingsnake/server/config"
	"github.com/codingsnake/server/engine"
	"github.com/codingsnake/server/game"
	"github.com/codingsnake/server/logging"
	"github.com/codingsnake/server/luogu"
	"github.com/codingsnake/server/player"
	"github.com/codingsnake/server/ratelimit"
	"github.com/codingsnake/server/store"
)

func main() {
	configPath := flag.String("config", getEnvOrDefault("SNAKE_CONFIG", "config.json"), "Path to JSON config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := loadConfig(*configPath)

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(logging.NewHandler(os.Stdout, level))
	slog.SetDefault(logger)

	if cfg.Server.Threads > 0 {
		runtime.GOMAXPROCS(cfg.Server.Threads)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	board := game.NewBoard(cfg.Game.MapWidth, cfg.Game.MapHeight,
		rand.New(rand.NewSource(time.Now().UnixNano())))

	eng := engine.New(board, engine.Config{
		RoundPeriod:      time.Duration(cfg.Game.RoundTimeMs) * time.Millisecond,
		InitialLength:    cfg.Game.InitialLength,
		InvincibleRounds: cfg.Game.InvincibleRounds,
		SafeRadius:       cfg.Game.SafeRadius,
		TargetFoodCount:  cfg.Game.TargetFoodCount,
	}, logger)

	verifier := luogu.NewVerifier(cfg.Auth.LuoguBaseURL, cfg.Auth.ValidationText,
		time.Duration(cfg.Auth.FetchTimeoutMs)*time.Millisecond)

	manager := player.NewManager(db, verifier, eng, player.AuthConfig{
		UniversalPaste:      cfg.Auth.UniversalPaste,
		AllowUniversalPaste: cfg.Auth.AllowUniversalPaste,
	}, logger)
	eng.AttachSessions(manager)
	eng.AttachStats(&leaderboardSink{db: db, log: logger})

	serverID := uuid.New().String()

	var archive *store.SnapshotArchive
	if cfg.Snapshot.Enabled {
		archive, err = store.NewSnapshotArchive(cfg.Snapshot.OutDir, serverID, cfg.Snapshot.FlushRounds)
		if err != nil {
			log.Fatalf("failed to open snapshot archive: %v", err)
		}
		eng.AttachSnapshots(&archiveSink{archive: archive, log: logger})
	}

	limiter := ratelimit.New()
	routes := api.New(eng, manager, db, limiter, cfg, logger, serverID).Routes()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go eng.Run(ctx)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "server_id", serverID,
			"map", fmt.Sprintf("%dx%d", cfg.Game.MapWidth, cfg.Game.MapHeight),
			"round_ms", cfg.Game.RoundTimeMs)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	if archive != nil {
		if path, err := archive.Flush(); err != nil {
			logger.Error("snapshot flush", "err", err)
		} else if path != "" {
			logger.Info("snapshot batch flushed", "path", path)
		}
	}
}

// loadConfig falls back to the defaults when the file is absent, so a bare
// binary still starts.
func loadConfig(path string) config.Config {
	if _, err := os.Stat(path); err != nil {
		log.Printf("config file %s not found, using defaults", path)
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// leaderboardSink feeds tick events into the SQLite leaderboard. It runs
// after the world lock is released.
type leaderboardSink struct {
	db  *store.DB
	log *slog.Logger
}

func (s *leaderboardSink) RecordDeath(uid, name string, length, round int, killerUID string) {
	now := time.Now().UnixMilli()
	if err := s.db.RecordDeath(uid, name, round, now); err != nil {
		s.log.Error("leaderboard death update failed", "uid", uid, "err", err)
	}
	if killerUID != "" && killerUID != uid {
		if err := s.db.RecordKill(killerUID, round, now); err != nil {
			s.log.Error("leaderboard kill update failed", "uid", killerUID, "err", err)
		}
	}
}

func (s *leaderboardSink) RecordGrowth(uid, name string, length, round int) {
	if err := s.db.RecordGrowth(uid, name, length, round, time.Now().UnixMilli()); err != nil {
		s.log.Error("leaderboard growth update failed", "uid", uid, "err", err)
	}
}

// archiveSink forwards tick snapshots into the parquet archive.
type archiveSink struct {
	archive *store.SnapshotArchive
	log     *slog.Logger
}

func (s *archiveSink) Archive(snap game.FullSnapshot) {
	if err := s.archive.Append(snap); err != nil {
		s.log.Error("snapshot archive append failed", "round", snap.Round, "err", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
