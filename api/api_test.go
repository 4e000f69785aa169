package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codingsnake/server/config"
	"github.com/codingsnake/server/engine"
	"github.com/codingsnake/server/game"
	"github.com/codingsnake/server/player"
	"github.com/codingsnake/server/ratelimit"
	"github.com/codingsnake/server/store"
)

type envelope struct {
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data map[string]any `json:"data"`
}

type testServer struct {
	ts      *httptest.Server
	engine  *engine.Engine
	players *player.Manager
	cfg     config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Game.MapWidth = 20
	cfg.Game.MapHeight = 20
	cfg.Game.InitialLength = 3
	cfg.Game.InvincibleRounds = 2
	cfg.Game.TargetFoodCount = 0
	cfg.Auth.UniversalPaste = "bypass-for-tests"
	cfg.Auth.AllowUniversalPaste = true
	cfg.RateLimit.Move = config.Rule{MaxRequests: 3, WindowSeconds: 60}
	cfg.RateLimit.Login = config.Rule{MaxRequests: 100, WindowSeconds: 60}
	cfg.RateLimit.Join = config.Rule{MaxRequests: 100, WindowSeconds: 60}
	cfg.RateLimit.Map = config.Rule{MaxRequests: 100, WindowSeconds: 60}
	cfg.RateLimit.MapDelta = config.Rule{MaxRequests: 100, WindowSeconds: 60}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	board := game.NewBoard(cfg.Game.MapWidth, cfg.Game.MapHeight, rand.New(rand.NewSource(11)))
	eng := engine.New(board, engine.Config{
		RoundPeriod:      time.Duration(cfg.Game.RoundTimeMs) * time.Millisecond,
		InitialLength:    cfg.Game.InitialLength,
		InvincibleRounds: cfg.Game.InvincibleRounds,
		SafeRadius:       cfg.Game.SafeRadius,
		TargetFoodCount:  cfg.Game.TargetFoodCount,
	}, log)

	// The universal paste is enabled above, so logins never leave the process.
	verifier := failingVerifier{}
	manager := player.NewManager(db, verifier, eng, player.AuthConfig{
		UniversalPaste:      cfg.Auth.UniversalPaste,
		AllowUniversalPaste: cfg.Auth.AllowUniversalPaste,
	}, log)
	eng.AttachSessions(manager)

	srv := New(eng, manager, db, ratelimit.New(), cfg, log, "test-server")
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, engine: eng, players: manager, cfg: cfg}
}

type failingVerifier struct{}

func (failingVerifier) Verify(ctx context.Context, uid, paste string) error {
	panic("external verifier must not be reached in tests")
}

func (s *testServer) post(t *testing.T, path string, body any) (int, envelope) {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(s.ts.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, env
}

func (s *testServer) get(t *testing.T, path string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(s.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, env
}

func (s *testServer) loginAndJoin(t *testing.T, uid, name string) (token, playerID string) {
	t.Helper()
	_, env := s.post(t, "/api/game/login", map[string]string{"uid": uid, "paste": "bypass-for-tests"})
	if env.Code != 0 {
		t.Fatalf("login code = %d: %s", env.Code, env.Msg)
	}
	key := env.Data["key"].(string)

	_, env = s.post(t, "/api/game/join", map[string]string{"key": key, "name": name})
	if env.Code != 0 {
		t.Fatalf("join code = %d: %s", env.Code, env.Msg)
	}
	return env.Data["token"].(string), env.Data["id"].(string)
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	status, env := s.get(t, "/api/status")
	if status != http.StatusOK || env.Code != 0 {
		t.Fatalf("status = %d, code = %d", status, env.Code)
	}
	size := env.Data["map_size"].(map[string]any)
	if size["width"].(float64) != 20 || size["height"].(float64) != 20 {
		t.Fatalf("map size = %v", size)
	}
	if env.Data["round_time"].(float64) != float64(s.cfg.Game.RoundTimeMs) {
		t.Fatalf("round_time = %v", env.Data["round_time"])
	}
	if env.Data["version"].(string) == "" || env.Data["server_id"].(string) == "" {
		t.Fatal("version/server_id missing")
	}
}

func TestLoginValidation(t *testing.T) {
	s := newTestServer(t)
	status, env := s.post(t, "/api/game/login", map[string]string{"uid": "42"})
	if status != http.StatusBadRequest || env.Code != 400 {
		t.Fatalf("missing paste: status=%d code=%d", status, env.Code)
	}

	_, env = s.post(t, "/api/game/login", map[string]string{"uid": "42", "paste": "bypass-for-tests"})
	if env.Code != 0 || env.Data["key"].(string) == "" {
		t.Fatalf("bypass login failed: %+v", env)
	}
}

func TestJoinFlow(t *testing.T) {
	s := newTestServer(t)
	_, env := s.post(t, "/api/game/login", map[string]string{"uid": "42", "paste": "bypass-for-tests"})
	key := env.Data["key"].(string)

	status, env := s.post(t, "/api/game/join", map[string]string{"key": key, "name": "alice", "color": "#FF0000"})
	if status != http.StatusOK || env.Code != 0 {
		t.Fatalf("join: status=%d code=%d msg=%s", status, env.Code, env.Msg)
	}
	if env.Data["id"].(string) == "" || env.Data["token"].(string) == "" {
		t.Fatal("join response missing id/token")
	}
	mapState := env.Data["map_state"].(map[string]any)
	if len(mapState["players"].([]any)) != 1 {
		t.Fatalf("join map_state players = %v", mapState["players"])
	}

	// A second live session for the same uid conflicts.
	status, env = s.post(t, "/api/game/join", map[string]string{"key": key, "name": "alice2"})
	if status != http.StatusConflict || env.Code != 409 {
		t.Fatalf("duplicate join: status=%d code=%d", status, env.Code)
	}

	// Bad inputs map to 400/401.
	if _, env = s.post(t, "/api/game/join", map[string]string{"key": "bogus", "name": "x"}); env.Code != 401 {
		t.Fatalf("bogus key code = %d", env.Code)
	}
	if _, env = s.post(t, "/api/game/join", map[string]string{"key": key, "name": ""}); env.Code != 400 {
		t.Fatalf("empty name code = %d", env.Code)
	}
	if _, env = s.post(t, "/api/game/join", map[string]string{"key": key, "name": "bob", "color": "blue"}); env.Code != 400 {
		t.Fatalf("bad color code = %d", env.Code)
	}
}

func TestMoveFlow(t *testing.T) {
	s := newTestServer(t)
	token, playerID := s.loginAndJoin(t, "42", "alice")

	status, env := s.post(t, "/api/game/move", map[string]string{"token": "bogus", "direction": "up"})
	if status != http.StatusUnauthorized || env.Code != 401 {
		t.Fatalf("bogus token: status=%d code=%d", status, env.Code)
	}

	if _, env = s.post(t, "/api/game/move", map[string]string{"token": token, "direction": "sideways"}); env.Code != 400 {
		t.Fatalf("bad direction code = %d", env.Code)
	}

	if _, env = s.post(t, "/api/game/move", map[string]string{"token": token, "direction": "up"}); env.Code != 0 {
		t.Fatalf("move code = %d: %s", env.Code, env.Msg)
	}

	// Death flips the endpoint to the 404 "you are dead" signal.
	s.players.MarkDead(playerID)
	status, env = s.post(t, "/api/game/move", map[string]string{"token": token, "direction": "up"})
	if status != http.StatusNotFound || env.Code != 404 {
		t.Fatalf("dead move: status=%d code=%d", status, env.Code)
	}
}

func TestMoveRateLimit(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.loginAndJoin(t, "42", "alice")

	for i := 0; i < 3; i++ {
		if _, env := s.post(t, "/api/game/move", map[string]string{"token": token, "direction": "up"}); env.Code != 0 {
			t.Fatalf("move %d code = %d", i+1, env.Code)
		}
	}
	status, env := s.post(t, "/api/game/move", map[string]string{"token": token, "direction": "up"})
	if status != http.StatusTooManyRequests || env.Code != 429 {
		t.Fatalf("throttled move: status=%d code=%d", status, env.Code)
	}
	if _, ok := env.Data["retry_after"]; !ok {
		t.Fatal("429 response missing retry_after")
	}
}

func TestMapEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.loginAndJoin(t, "42", "alice")

	_, env := s.get(t, "/api/game/map")
	if env.Code != 0 {
		t.Fatalf("map code = %d", env.Code)
	}
	mapState := env.Data["map_state"].(map[string]any)
	if len(mapState["players"].([]any)) != 1 {
		t.Fatalf("map players = %v", mapState["players"])
	}

	_, env = s.get(t, "/api/game/map/delta")
	if env.Code != 0 {
		t.Fatalf("delta code = %d", env.Code)
	}
	deltaState := env.Data["delta_state"].(map[string]any)
	if len(deltaState["joined_players"].([]any)) != 1 {
		t.Fatalf("delta joined = %v", deltaState["joined_players"])
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, env := s.get(t, "/api/leaderboard")
	if env.Code != 0 {
		t.Fatalf("leaderboard code = %d", env.Code)
	}
	if _, ok := env.Data["entries"]; !ok {
		t.Fatal("leaderboard response missing entries")
	}
	if _, env := s.get(t, "/api/leaderboard?limit=9999"); env.Code != 400 {
		t.Fatalf("oversized limit code = %d", env.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, s.ts.URL+"/api/status", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS header missing")
	}
}
