package game

// PlayerSnapshot is the public projection of a player: everything a client
// needs to draw the snake, nothing that authenticates it.
type PlayerSnapshot struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Color            string  `json:"color"`
	Head             Point   `json:"head"`
	Blocks           []Point `json:"blocks"`
	Length           int     `json:"length"`
	InvincibleRounds int     `json:"invincible_rounds"`
}

// FullSnapshot is a self-contained serialization of the world, sufficient to
// initialize a client from scratch.
type FullSnapshot struct {
	Round              int              `json:"round"`
	Timestamp          int64            `json:"timestamp"`
	NextRoundTimestamp int64            `json:"next_round_timestamp"`
	Players            []PlayerSnapshot `json:"players"`
	Foods              []Point          `json:"foods"`
}

// DeltaPlayer is the minimal per-player motion record carried by a delta.
type DeltaPlayer struct {
	ID               string `json:"id"`
	Head             Point  `json:"head"`
	Direction        string `json:"direction"`
	Length           int    `json:"length"`
	InvincibleRounds int    `json:"invincible_rounds"`
}

// DeltaSnapshot is the compact diff between the previous round and this one.
// A client holding the full snapshot at round R applies the delta published
// at R+1 to reconstruct the full state at R+1; a client that falls further
// behind must refetch the full map.
type DeltaSnapshot struct {
	Round              int              `json:"round"`
	Timestamp          int64            `json:"timestamp"`
	NextRoundTimestamp int64            `json:"next_round_timestamp"`
	Players            []DeltaPlayer    `json:"players"`
	JoinedPlayers      []PlayerSnapshot `json:"joined_players"`
	DiedPlayers        []string         `json:"died_players"`
	AddedFoods         []Point          `json:"added_foods"`
	RemovedFoods       []Point          `json:"removed_foods"`
}

func snapshotPlayer(ps *PlayerState) PlayerSnapshot {
	blocks := ps.Snake.Blocks()
	out := PlayerSnapshot{
		ID:               ps.ID,
		Name:             ps.Name,
		Color:            ps.Color,
		Blocks:           make([]Point, len(blocks)),
		Length:           ps.Snake.Length(),
		InvincibleRounds: ps.Snake.InvincibleRounds(),
	}
	copy(out.Blocks, blocks)
	if len(blocks) > 0 {
		out.Head = blocks[0]
	}
	return out
}

// FullSnapshot serializes the whole world. Players are emitted in ascending
// id order so snapshots of equal states compare equal.
func (w *World) FullSnapshot() FullSnapshot {
	snap := FullSnapshot{
		Round:              w.round,
		Timestamp:          w.timestamp,
		NextRoundTimestamp: w.nextRoundTimestamp,
		Players:            make([]PlayerSnapshot, 0, len(w.players)),
		Foods:              make([]Point, len(w.foods)),
	}
	for _, ps := range w.PlayersSorted() {
		if !ps.Snake.Alive() {
			continue
		}
		snap.Players = append(snap.Players, snapshotPlayer(ps))
	}
	copy(snap.Foods, w.foods)
	return snap
}

// DeltaSnapshot serializes the changes logged since the last tick boundary,
// plus the minimal motion record for every live player.
func (w *World) DeltaSnapshot() DeltaSnapshot {
	delta := DeltaSnapshot{
		Round:              w.round,
		Timestamp:          w.timestamp,
		NextRoundTimestamp: w.nextRoundTimestamp,
		Players:            make([]DeltaPlayer, 0, len(w.players)),
		JoinedPlayers:      make([]PlayerSnapshot, 0, len(w.joinedPlayers)),
		DiedPlayers:        make([]string, 0, len(w.diedPlayers)),
		AddedFoods:         make([]Point, 0, len(w.addedFoods)),
		RemovedFoods:       make([]Point, 0, len(w.removedFoods)),
	}

	for _, ps := range w.PlayersSorted() {
		if !ps.Snake.Alive() {
			continue
		}
		delta.Players = append(delta.Players, DeltaPlayer{
			ID:               ps.ID,
			Head:             ps.Snake.Head(),
			Direction:        ps.Snake.Direction().String(),
			Length:           ps.Snake.Length(),
			InvincibleRounds: ps.Snake.InvincibleRounds(),
		})
	}

	for _, id := range w.joinedPlayers {
		ps := w.players[id]
		if ps == nil || !ps.Snake.Alive() {
			continue
		}
		delta.JoinedPlayers = append(delta.JoinedPlayers, snapshotPlayer(ps))
	}

	delta.DiedPlayers = append(delta.DiedPlayers, w.diedPlayers...)
	delta.AddedFoods = append(delta.AddedFoods, w.addedFoods...)
	delta.RemovedFoods = append(delta.RemovedFoods, w.removedFoods...)
	return delta
}
