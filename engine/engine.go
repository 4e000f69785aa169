// Package engine drives world advancement on a fixed cadence. It owns the
// single write path to the world: HTTP handlers only read snapshots under the
// read lock or queue move intents in a side store.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codingsnake/server/game"
)

// ErrNoSafeSpawn is returned when spawn sampling cannot find a free area.
var ErrNoSafeSpawn = errors.New("engine: no safe spawn position available")

// Config carries the tunables of one arena.
type Config struct {
	RoundPeriod      time.Duration
	InitialLength    int
	InvincibleRounds int
	SafeRadius       int
	TargetFoodCount  int
}

// Sessions is notified when a player's snake dies, so the session layer can
// flip the player to the dead state while keeping its token resolvable.
type Sessions interface {
	MarkDead(playerID string)
}

// StatsSink receives gameplay events for the leaderboard. Implementations
// are called after the world lock is released and may hit the database.
type StatsSink interface {
	RecordDeath(uid, name string, length, round int, killerUID string)
	RecordGrowth(uid, name string, length, round int)
}

// SnapshotSink receives the full snapshot produced by each completed tick.
type SnapshotSink interface {
	Archive(snap game.FullSnapshot)
}

// Engine advances the world once per round period.
type Engine struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu    sync.RWMutex
	world *game.World
	board *game.Board

	intents *intentStore

	sessions  Sessions
	stats     StatsSink
	snapshots SnapshotSink
}

// New creates an engine over a fresh world.
func New(board *game.Board, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		world:   game.NewWorld(),
		board:   board,
		intents: newIntentStore(),
	}
}

// AttachSessions registers the session layer death callback.
func (e *Engine) AttachSessions(s Sessions) { e.sessions = s }

// AttachStats registers the leaderboard sink.
func (e *Engine) AttachStats(s StatsSink) { e.stats = s }

// AttachSnapshots registers the snapshot archive sink.
func (e *Engine) AttachSnapshots(s SnapshotSink) { e.snapshots = s }

// Spawn places a new snake at a safe position and inserts the player into
// the world. The join is recorded in the delta log.
func (e *Engine) Spawn(id, uid, name, color string) (*game.PlayerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.board.RandomSafePosition(e.world.PlayersSorted(), e.cfg.SafeRadius)
	if pos.IsNull() {
		return nil, ErrNoSafeSpawn
	}
	// Keep the no-food-under-snakes invariant if the spawn lands on food.
	if e.world.HasFoodAt(pos) {
		e.world.RemoveFood(pos)
	}
	snake := game.NewSnake(pos, e.cfg.InitialLength)
	snake.SetInvincibleRounds(e.cfg.InvincibleRounds)

	ps := &game.PlayerState{ID: id, UID: uid, Name: name, Color: color, Snake: snake}
	e.world.AddPlayer(ps)
	e.log.Info("player spawned", "player", id, "pos", pos, "invincible", e.cfg.InvincibleRounds)
	return ps, nil
}

// Remove erases a player from the world without recording a death.
func (e *Engine) Remove(playerID string) {
	e.mu.Lock()
	e.world.RemovePlayer(playerID)
	e.mu.Unlock()
	e.intents.Drop(playerID)
}

// SetIntent queues a direction for the player. The slot holds one direction;
// later intents before the next tick overwrite earlier ones.
func (e *Engine) SetIntent(playerID string, d game.Direction) {
	e.intents.Set(playerID, d)
}

// FullSnapshot serializes the whole world under the read lock.
func (e *Engine) FullSnapshot() game.FullSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world.FullSnapshot()
}

// DeltaSnapshot serializes the most recently completed tick's delta under the
// read lock.
func (e *Engine) DeltaSnapshot() game.DeltaSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world.DeltaSnapshot()
}

// Round returns the current round number.
func (e *Engine) Round() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world.Round()
}

// Run drives the tick loop until ctx is cancelled. Each iteration sleeps to
// the next deadline, advances the world, then dispatches events outside the
// world lock. If a tick overruns its slot the deadline skips ahead by whole
// periods so the published next-tick timestamp stays accurate.
func (e *Engine) Run(ctx context.Context) {
	period := e.cfg.RoundPeriod
	deadline := e.now().Add(period)

	for {
		wait := deadline.Sub(e.now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		events := e.tick()
		e.dispatch(events)

		deadline = deadline.Add(period)
		if now := e.now(); now.After(deadline) {
			behind := now.Sub(deadline)
			skip := int64(behind/period) + 1
			e.log.Warn("tick overrun, realigning", "round", events.round, "skipped_periods", skip)
			deadline = deadline.Add(period * time.Duration(skip))
		}
	}
}

const (
	fateMove = iota
	fateCancel
	fateDie
)

type mover struct {
	ps      *game.PlayerState
	newHead game.Point
	col     game.Collision
	hitID   string
	fate    int
	ate     bool
}

type deathEvent struct {
	id, uid, name string
	length, round int
	killerUID     string
}

type growthEvent struct {
	uid, name     string
	length, round int
}

type tickEvents struct {
	round    int
	deaths   []deathEvent
	growths  []growthEvent
	snapshot game.FullSnapshot
}

// tick performs one world advancement under the write lock.
//
// Classification runs against the world as it was at the start of the tick:
// all proposed heads are computed and classified before any move is applied,
// so iteration order cannot change survival outcomes. Head-to-head meetings
// on an empty cell are resolved afterwards with a deterministic ascending-id
// tie break.
func (e *Engine) tick() tickEvents {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := e.world

	// The delta buffers still hold the previous tick's changes, visible to
	// readers until this moment.
	w.ClearDeltaTracking()
	w.IncrementRound()
	now := e.now().UnixMilli()
	w.SetTimestamp(now)
	w.SetNextRoundTimestamp(now + e.cfg.RoundPeriod.Milliseconds())

	events := tickEvents{round: w.Round()}

	players := w.PlayersSorted()
	preFood := w.CloneFoodSet()

	// Consume intents and collect proposed moves, in ascending id order.
	movers := make([]*mover, 0, len(players))
	for _, ps := range players {
		if d, ok := e.intents.Take(ps.ID); ok {
			ps.Snake.SetDirection(d) // reversals are silently discarded
		}
		if ps.Snake.Direction() == game.DirNone {
			continue
		}
		movers = append(movers, &mover{
			ps:      ps,
			newHead: ps.Snake.Head().Translate(ps.Snake.Direction()),
		})
	}

	// Classify every proposed head before applying any move; the live body
	// sets are still the pre-tick sets here.
	for _, m := range movers {
		m.col, m.hitID = e.board.CheckCollision(m.ps, m.newHead, players)
		switch {
		case m.col == game.CollisionNone:
			m.fate = fateMove
		case m.ps.Snake.InvincibleRounds() > 0:
			m.fate = fateCancel
		default:
			m.fate = fateDie
		}
	}

	// Head-to-head: movers cleared for the same empty cell fight for it.
	byCell := make(map[game.Point][]*mover)
	for _, m := range movers {
		if m.col == game.CollisionNone {
			byCell[m.newHead] = append(byCell[m.newHead], m)
		}
	}
	for cell, group := range byCell {
		if len(group) < 2 {
			continue
		}
		// group preserves ascending id order; the first invincible
		// participant, if any, takes the cell.
		var winner *mover
		for _, m := range group {
			if m.ps.Snake.InvincibleRounds() > 0 {
				winner = m
				break
			}
		}
		for _, m := range group {
			if m == winner {
				continue
			}
			if m.ps.Snake.InvincibleRounds() > 0 {
				m.fate = fateCancel
			} else {
				m.fate = fateDie
			}
		}
		if w.HasFoodAt(cell) {
			w.RemoveFood(cell)
			if winner != nil {
				winner.ate = true
			}
		}
	}

	// Apply outcomes in ascending id order.
	for _, m := range movers {
		snake := m.ps.Snake
		switch m.fate {
		case fateDie:
			length := snake.Length()
			snake.Kill()
			w.TrackPlayerDied(m.ps.ID)
			w.RemovePlayer(m.ps.ID)
			killerUID := ""
			if m.col == game.CollisionOther && m.hitID != "" {
				for _, other := range players {
					if other.ID == m.hitID {
						killerUID = other.UID
						break
					}
				}
			}
			events.deaths = append(events.deaths, deathEvent{
				id: m.ps.ID, uid: m.ps.UID, name: m.ps.Name,
				length: length, round: w.Round(), killerUID: killerUID,
			})
			e.log.Info("player died", "player", m.ps.ID, "cause", m.col.String(), "round", w.Round())

		case fateCancel:
			// Invincibility cancels the move; the direction stays set.

		case fateMove:
			if !m.ate {
				if _, had := preFood[m.newHead]; had && w.HasFoodAt(m.newHead) {
					w.RemoveFood(m.newHead)
					m.ate = true
				}
			}
			if m.ate {
				snake.Grow()
			}
			snake.MoveWithDelta()
			if m.ate {
				events.growths = append(events.growths, growthEvent{
					uid: m.ps.UID, name: m.ps.Name,
					length: snake.Length(), round: w.Round(),
				})
			}
		}
	}

	// Every snake processed this tick burns one round of invincibility.
	for _, ps := range players {
		if ps.Snake.Alive() {
			ps.Snake.DecrementInvincibility()
		}
	}

	// Replenish food up to the configured target using the post-move
	// occupancy index.
	if missing := e.cfg.TargetFoodCount - w.FoodCount(); missing > 0 {
		occupied := make(map[game.Point]int)
		for _, ps := range w.PlayersSorted() {
			for _, p := range ps.Snake.Blocks() {
				occupied[p]++
			}
		}
		for _, p := range e.board.GenerateFood(missing, occupied, w.CloneFoodSet()) {
			w.AddFood(p)
		}
	}

	events.snapshot = w.FullSnapshot()
	return events
}

// dispatch fans tick events out to the attached sinks, outside the world
// lock. Sink failures never stall the loop.
func (e *Engine) dispatch(events tickEvents) {
	for _, d := range events.deaths {
		if e.sessions != nil {
			e.sessions.MarkDead(d.id)
		}
		if e.stats != nil {
			e.stats.RecordDeath(d.uid, d.name, d.length, d.round, d.killerUID)
		}
	}
	if e.stats != nil {
		for _, g := range events.growths {
			e.stats.RecordGrowth(g.uid, g.name, g.length, g.round)
		}
	}
	if e.snapshots != nil {
		e.snapshots.Archive(events.snapshot)
	}
}
