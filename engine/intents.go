package engine

import (
	"sync"

	"github.com/codingsnake/server/game"
)

// intentStore holds one queued direction per player. The last intent written
// before a tick wins; the engine takes and clears the slot each tick. The
// store has its own mutex so the move endpoint never contends with the world
// lock.
type intentStore struct {
	mu    sync.Mutex
	slots map[string]game.Direction
}

func newIntentStore() *intentStore {
	return &intentStore{slots: make(map[string]game.Direction)}
}

// Set overwrites the player's queued direction.
func (s *intentStore) Set(playerID string, d game.Direction) {
	s.mu.Lock()
	s.slots[playerID] = d
	s.mu.Unlock()
}

// Take consumes the player's queued direction, clearing the slot.
func (s *intentStore) Take(playerID string) (game.Direction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.slots[playerID]
	if ok {
		delete(s.slots, playerID)
	}
	return d, ok
}

// Drop discards any queued direction for the player.
func (s *intentStore) Drop(playerID string) {
	s.mu.Lock()
	delete(s.slots, playerID)
	s.mu.Unlock()
}
