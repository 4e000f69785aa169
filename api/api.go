// Package api exposes the game over HTTP/JSON. Every response is the
// envelope {"code": int, "msg": string, "data": any|null}; code 0 is
// success, otherwise the code matches the HTTP error class. On
// /api/game/move a code of 404 specifically tells the client its snake is
// dead.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codingsnake/server/config"
	"github.com/codingsnake/server/engine"
	"github.com/codingsnake/server/game"
	"github.com/codingsnake/server/luogu"
	"github.com/codingsnake/server/player"
	"github.com/codingsnake/server/ratelimit"
	"github.com/codingsnake/server/store"
)

// ProtocolVersion is reported by /api/status.
const ProtocolVersion = "1.0"

const (
	codeOK           = 0
	codeBadRequest   = 400
	codeUnauthorized = 401
	codeNotFound     = 404
	codeConflict     = 409
	codeRateLimited  = 429
	codeInternal     = 500
	codeUnavailable  = 503
)

type response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

// Server holds the handler dependencies.
type Server struct {
	engine   *engine.Engine
	players  *player.Manager
	db       *store.DB
	limiter  *ratelimit.Limiter
	cfg      config.Config
	log      *slog.Logger
	serverID string
}

// New creates the HTTP layer.
func New(eng *engine.Engine, players *player.Manager, db *store.DB, limiter *ratelimit.Limiter, cfg config.Config, log *slog.Logger, serverID string) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:   eng,
		players:  players,
		db:       db,
		limiter:  limiter,
		cfg:      cfg,
		log:      log,
		serverID: serverID,
	}
}

// Routes builds the full handler chain: routing, CORS, and the exception
// barrier that turns panics into code 500.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/game/login", s.handleLogin)
	mux.HandleFunc("POST /api/game/join", s.handleJoin)
	mux.HandleFunc("GET /api/game/map", s.handleGetMap)
	mux.HandleFunc("GET /api/game/map/delta", s.handleGetMapDelta)
	mux.HandleFunc("POST /api/game/move", s.handleMove)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	return s.recoverPanics(corsMiddleware(mux))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, codeOK, "ok", map[string]any{
		"map_size": map[string]int{
			"width":  s.cfg.Game.MapWidth,
			"height": s.cfg.Game.MapHeight,
		},
		"round_time": s.cfg.Game.RoundTimeMs,
		"round":      s.engine.Round(),
		"version":    ProtocolVersion,
		"server_id":  s.serverID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID   string `json:"uid"`
		Paste string `json:"paste"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" || req.Paste == "" {
		writeResponse(w, codeBadRequest, "uid and paste are required", nil)
		return
	}
	if !s.allow(w, "login", clientIP(r), s.cfg.RateLimit.Login) {
		return
	}

	key, err := s.players.Login(r.Context(), req.UID, req.Paste)
	switch {
	case err == nil:
		writeResponse(w, codeOK, "ok", map[string]string{"key": key})
	case errors.Is(err, luogu.ErrUnavailable):
		writeResponse(w, codeUnavailable, "identity proof service unavailable", nil)
	case errors.Is(err, player.ErrLoginRejected):
		writeResponse(w, codeUnauthorized, "identity proof rejected", nil)
	default:
		s.log.Error("login failed", "err", err)
		writeResponse(w, codeInternal, "internal error", nil)
	}
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeResponse(w, codeBadRequest, "key is required", nil)
		return
	}
	if !s.allow(w, "join", clientIP(r), s.cfg.RateLimit.Join) {
		return
	}

	result, err := s.players.Join(req.Key, req.Name, req.Color)
	switch {
	case err == nil:
		writeResponse(w, codeOK, "ok", map[string]any{
			"id":        result.PlayerID,
			"token":     result.Token,
			"map_state": s.engine.FullSnapshot(),
		})
	case errors.Is(err, player.ErrInvalidKey):
		writeResponse(w, codeUnauthorized, "invalid key", nil)
	case errors.Is(err, player.ErrInvalidName):
		writeResponse(w, codeBadRequest, "invalid player name", nil)
	case errors.Is(err, player.ErrInvalidColor):
		writeResponse(w, codeBadRequest, "invalid color format", nil)
	case errors.Is(err, player.ErrAlreadyInGame):
		writeResponse(w, codeConflict, "player already in game", nil)
	default:
		s.log.Error("join failed", "err", err)
		writeResponse(w, codeInternal, "internal error", nil)
	}
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, "map", clientIP(r), s.cfg.RateLimit.Map) {
		return
	}
	writeResponse(w, codeOK, "ok", map[string]any{
		"map_state": s.engine.FullSnapshot(),
	})
}

func (s *Server) handleGetMapDelta(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, "map_delta", clientIP(r), s.cfg.RateLimit.MapDelta) {
		return
	}
	writeResponse(w, codeOK, "ok", map[string]any{
		"delta_state": s.engine.DeltaSnapshot(),
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token     string `json:"token"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeResponse(w, codeBadRequest, "token and direction are required", nil)
		return
	}

	playerID, ok := s.players.ValidateToken(req.Token)
	if !ok {
		writeResponse(w, codeUnauthorized, "invalid token", nil)
		return
	}

	dir, ok := game.ParseDirection(req.Direction)
	if !ok {
		writeResponse(w, codeBadRequest, "invalid direction", nil)
		return
	}

	if !s.allow(w, "move", playerID, s.cfg.RateLimit.Move) {
		return
	}

	// 404 here is the protocol's "you are dead" signal.
	if !s.players.IsInGame(playerID) {
		writeResponse(w, codeNotFound, "player is not in game", nil)
		return
	}

	s.engine.SetIntent(playerID, dir)
	writeResponse(w, codeOK, "ok", map[string]any{})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeResponse(w, codeBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	entries, err := s.db.TopByMaxLength(limit)
	if err != nil {
		s.log.Error("leaderboard query failed", "err", err)
		writeResponse(w, codeInternal, "internal error", nil)
		return
	}
	writeResponse(w, codeOK, "ok", map[string]any{"entries": entries})
}

// allow checks the endpoint's rate limit and writes the 429 response itself
// when the caller is over it.
func (s *Server) allow(w http.ResponseWriter, endpoint, clientKey string, rule config.Rule) bool {
	key := endpoint + ":" + clientKey
	window := time.Duration(rule.WindowSeconds) * time.Second
	if s.limiter.Allow(key, rule.MaxRequests, window) {
		return true
	}
	retry := s.limiter.RetryAfter(key, rule.MaxRequests, window)
	writeResponse(w, codeRateLimited, "rate limit exceeded", map[string]any{
		"retry_after": int(math.Ceil(retry.Seconds())),
	})
	return false
}

func writeResponse(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if code != codeOK {
		status = code
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response{Code: code, Msg: msg, Data: data})
}

// clientIP prefers X-Forwarded-For, falling back to the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// recoverPanics is the top-level exception barrier: any panic in a handler
// becomes a code 500 with a safe message.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic", "path", r.URL.Path, "panic", rec)
				writeResponse(w, codeInternal, "internal error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
