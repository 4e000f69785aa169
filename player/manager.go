// Package player manages accounts and live game sessions: the login flow
// that binds a durable key to an external identity proof, the join flow that
// issues per-session tokens and spawns snakes, and the token/key lookups the
// HTTP layer authenticates with.
package player

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/codingsnake/server/game"
	"github.com/codingsnake/server/luogu"
	"github.com/codingsnake/server/store"
)

var (
	ErrLoginRejected = errors.New("player: identity proof rejected")
	ErrInvalidKey    = errors.New("player: key does not resolve")
	ErrInvalidName   = errors.New("player: invalid player name")
	ErrInvalidColor  = errors.New("player: invalid color format")
	ErrAlreadyInGame = errors.New("player: uid already has a session in game")
)

// Verifier proves that a (uid, paste) pair identifies a real account.
type Verifier interface {
	Verify(ctx context.Context, uid, paste string) error
}

// Arena spawns and removes snakes; implemented by the tick engine.
type Arena interface {
	Spawn(id, uid, name, color string) (*game.PlayerState, error)
	Remove(playerID string)
}

// Player is one game session: identity, credentials, and the live snake.
type Player struct {
	UID    string
	ID     string
	Name   string
	Color  string
	Key    string
	Token  string
	InGame bool
	State  *game.PlayerState
}

// AuthConfig carries the login tunables.
type AuthConfig struct {
	// UniversalPaste short-circuits external verification when supplied as
	// the proof. Only honored when AllowUniversalPaste is set; meant for
	// local testing, never production.
	UniversalPaste      string
	AllowUniversalPaste bool
}

// JoinResult is the successful outcome of a join.
type JoinResult struct {
	PlayerID string
	Token    string
}

// Manager owns the uid/key/token maps and the player sessions.
type Manager struct {
	db       *store.DB
	verifier Verifier
	arena    Arena
	auth     AuthConfig
	log      *slog.Logger

	mu       sync.RWMutex
	uidToKey map[string]string
	keyToUID map[string]string
	players  map[string]*Player // by player id
	tokens   map[string]string  // token -> player id
	rng      *rand.Rand
}

// NewManager wires the session layer together.
func NewManager(db *store.DB, verifier Verifier, arena Arena, auth AuthConfig, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		db:       db,
		verifier: verifier,
		arena:    arena,
		auth:     auth,
		log:      log,
		uidToKey: make(map[string]string),
		keyToUID: make(map[string]string),
		players:  make(map[string]*Player),
		tokens:   make(map[string]string),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Login verifies the identity proof and returns the durable account key.
// A first login creates the account; a matching proof returns the stored
// key; a differing proof rotates the key, invalidating the old one.
//
// The external fetch runs before any lock is taken and never under one.
func (m *Manager) Login(ctx context.Context, uid, paste string) (string, error) {
	bypass := m.auth.AllowUniversalPaste && m.auth.UniversalPaste != "" && paste == m.auth.UniversalPaste
	if bypass {
		m.log.Info("universal paste accepted", "uid", uid)
	} else if err := m.verifier.Verify(ctx, uid, paste); err != nil {
		if errors.Is(err, luogu.ErrUnavailable) {
			return "", err
		}
		m.log.Warn("login verification failed", "uid", uid, "err", err)
		return "", fmt.Errorf("%w: %v", ErrLoginRejected, err)
	}

	now := time.Now().UnixMilli()
	account, err := m.db.AccountByUID(uid)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if account != nil {
		if account.Paste == paste {
			if err := m.db.TouchLogin(uid, now); err != nil {
				return "", err
			}
			m.uidToKey[uid] = account.Key
			m.keyToUID[account.Key] = uid
			m.log.Info("login with matching proof", "uid", uid)
			return account.Key, nil
		}

		newKey := m.generateKey(uid)
		if err := m.db.RotateAccountKey(uid, paste, newKey, now); err != nil {
			return "", err
		}
		delete(m.keyToUID, account.Key)
		m.uidToKey[uid] = newKey
		m.keyToUID[newKey] = uid
		m.log.Info("login with new proof, key rotated", "uid", uid)
		return newKey, nil
	}

	key := m.generateKey(uid)
	if err := m.db.InsertAccount(uid, paste, key, now); err != nil {
		return "", err
	}
	m.uidToKey[uid] = key
	m.keyToUID[key] = uid
	m.log.Info("new account registered", "uid", uid)
	return key, nil
}

// Join admits a player into the arena: validates inputs, enforces one
// in-game session per uid, issues the player id and session token, and
// spawns the snake.
func (m *Manager) Join(key, name, color string) (*JoinResult, error) {
	uid, ok := m.ValidateKey(key)
	if !ok {
		return nil, ErrInvalidKey
	}
	if !ValidName(name) {
		return nil, ErrInvalidName
	}
	if color == "" {
		color = presetColors[m.randInt(len(presetColors))]
	} else if !ValidColor(color) {
		return nil, ErrInvalidColor
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var stale *Player
	for _, p := range m.players {
		if p.UID != uid {
			continue
		}
		if p.InGame {
			return nil, ErrAlreadyInGame
		}
		stale = p
	}
	// A dead session for the same uid is replaced by the new one.
	if stale != nil {
		delete(m.tokens, stale.Token)
		delete(m.players, stale.ID)
	}

	playerID := m.generatePlayerID(uid)
	token := m.generateToken(playerID)

	state, err := m.arena.Spawn(playerID, uid, name, color)
	if err != nil {
		return nil, err
	}

	m.players[playerID] = &Player{
		UID:    uid,
		ID:     playerID,
		Name:   name,
		Color:  color,
		Key:    key,
		Token:  token,
		InGame: true,
		State:  state,
	}
	m.tokens[token] = playerID

	m.log.Info("player joined", "uid", uid, "player", playerID, "name", name)
	return &JoinResult{PlayerID: playerID, Token: token}, nil
}

// ValidateToken resolves a session token to a player id. Tokens are
// ephemeral and live only in memory; there is no database fallback.
func (m *Manager) ValidateToken(token string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[token]
	return id, ok
}

// ValidateKey resolves a durable key to a uid, checking memory first and the
// database second.
func (m *Manager) ValidateKey(key string) (string, bool) {
	m.mu.RLock()
	uid, ok := m.keyToUID[key]
	m.mu.RUnlock()
	if ok {
		return uid, true
	}

	uid, err := m.db.UIDByKey(key)
	if err != nil {
		m.log.Error("key lookup failed", "err", err)
		return "", false
	}
	if uid == "" {
		return "", false
	}

	m.mu.Lock()
	m.keyToUID[key] = uid
	m.uidToKey[uid] = key
	m.mu.Unlock()
	return uid, true
}

// PlayerByID returns the session for a player id.
func (m *Manager) PlayerByID(playerID string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[playerID]
	return p, ok
}

// IsInGame reports whether the player id has a live snake.
func (m *Manager) IsInGame(playerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[playerID]
	return ok && p.InGame
}

// MarkDead flips a session to the dead state. The token stays resolvable so
// the move endpoint can tell the client it is dead rather than unknown.
func (m *Manager) MarkDead(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[playerID]; ok {
		p.InGame = false
	}
}

// Remove destroys a session and its token, and pulls the snake from the
// arena if it is still there.
func (m *Manager) Remove(playerID string) {
	m.mu.Lock()
	p, ok := m.players[playerID]
	if ok {
		delete(m.tokens, p.Token)
		delete(m.players, playerID)
	}
	m.mu.Unlock()

	if ok {
		m.arena.Remove(playerID)
		m.log.Info("player removed", "player", playerID)
	}
}

// RemoveAll destroys every session, e.g. on a server reset. Account-level
// key caches are kept so players can rejoin without logging in again.
func (m *Manager) RemoveAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	m.players = make(map[string]*Player)
	m.tokens = make(map[string]string)
	m.mu.Unlock()

	for _, id := range ids {
		m.arena.Remove(id)
	}
	m.log.Info("all players removed", "count", len(ids))
}

func (m *Manager) randInt(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Intn(n)
}

// generateKey derives a fresh account key: SHA-256 over uid, wall clock and
// a random salt.
func (m *Manager) generateKey(uid string) string {
	input := uid + strconv.FormatInt(time.Now().UnixNano(), 10) + strconv.Itoa(m.rng.Intn(1000000))
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// generateToken derives the session token bound to one player id.
func (m *Manager) generateToken(playerID string) string {
	input := playerID + strconv.FormatInt(time.Now().UnixNano(), 10) + strconv.Itoa(m.rng.Intn(1000000))
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// generatePlayerID builds the readable session id: p_{uid}_{6-digit-rand}.
func (m *Manager) generatePlayerID(uid string) string {
	return fmt.Sprintf("p_%s_%06d", uid, 100000+m.rng.Intn(900000))
}
