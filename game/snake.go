package game

// Snake is an ordered chain of occupied cells with the head at index 0,
// mirrored by a hash set for O(1) collision queries. The chain and the set
// always contain exactly the same cells; MoveWithDelta and Kill are the only
// mutations that touch them and each updates both together, so callers can
// never observe a torn state.
type Snake struct {
	blocks           []Point
	blockSet         map[Point]struct{}
	direction        Direction
	invincibleRounds int
	alive            bool
	growthPending    int
}

// MoveResult describes the cell-level effect of one move, so callers can
// update occupancy indices without re-walking the body.
type MoveResult struct {
	Moved       bool
	NewHead     Point
	TailRemoved bool
	RemovedTail Point
}

// NewSnake creates a live snake occupying a single cell. The snake reaches
// initialLength naturally: the first initialLength-1 moves do not remove the
// tail.
func NewSnake(head Point, initialLength int) *Snake {
	if initialLength < 1 {
		panic("game: snake initial length must be at least 1")
	}
	return &Snake{
		blocks:        []Point{head},
		blockSet:      map[Point]struct{}{head: {}},
		direction:     DirNone,
		alive:         true,
		growthPending: initialLength - 1,
	}
}

// MoveWithDelta advances the snake one cell in its current direction. A snake
// with no direction set, or a dead snake, does not move. While growth is
// pending the tail is kept, consuming one unit of growth.
func (s *Snake) MoveWithDelta() MoveResult {
	var res MoveResult
	if !s.alive || s.direction == DirNone {
		return res
	}

	newHead := s.blocks[0].Translate(s.direction)
	res.Moved = true
	res.NewHead = newHead

	if s.growthPending > 0 {
		s.growthPending--
	} else {
		tail := s.blocks[len(s.blocks)-1]
		s.blocks = s.blocks[:len(s.blocks)-1]
		delete(s.blockSet, tail)
		res.TailRemoved = true
		res.RemovedTail = tail
	}

	body := make([]Point, 0, len(s.blocks)+1)
	body = append(body, newHead)
	body = append(body, s.blocks...)
	s.blocks = body
	s.blockSet[newHead] = struct{}{}

	return res
}

// Grow schedules one unit of growth: the next move keeps the tail.
func (s *Snake) Grow() {
	s.growthPending++
}

// Head returns the head cell. Calling Head on a dead snake is a programming
// error.
func (s *Snake) Head() Point {
	if len(s.blocks) == 0 {
		panic("game: head of a dead snake")
	}
	return s.blocks[0]
}

// Blocks returns the body chain, head first. The returned slice is the
// snake's backing storage; callers must not modify it.
func (s *Snake) Blocks() []Point {
	return s.blocks
}

// Length returns the number of occupied cells.
func (s *Snake) Length() int {
	return len(s.blocks)
}

// Direction returns the current movement direction.
func (s *Snake) Direction() Direction {
	return s.direction
}

// SetDirection updates the movement direction. Reversals of the current
// non-NONE direction are ignored, as is DirNone itself.
func (s *Snake) SetDirection(d Direction) {
	if d == DirNone {
		return
	}
	if s.direction != DirNone && d.IsOppositeOf(s.direction) {
		return
	}
	s.direction = d
}

// InvincibleRounds returns the remaining invincibility countdown.
func (s *Snake) InvincibleRounds() int {
	return s.invincibleRounds
}

// SetInvincibleRounds sets the invincibility countdown.
func (s *Snake) SetInvincibleRounds(rounds int) {
	s.invincibleRounds = rounds
}

// DecrementInvincibility ticks the invincibility countdown down toward zero.
func (s *Snake) DecrementInvincibility() {
	if s.invincibleRounds > 0 {
		s.invincibleRounds--
	}
}

// Alive reports whether the snake is still on the board.
func (s *Snake) Alive() bool {
	return s.alive
}

// Kill marks the snake dead and releases its cells.
func (s *Snake) Kill() {
	s.alive = false
	s.blocks = nil
	s.blockSet = make(map[Point]struct{})
}

// CollidesWithSelf reports whether p lies on the snake's own body, excluding
// the current head cell.
func (s *Snake) CollidesWithSelf(p Point) bool {
	if len(s.blocks) <= 1 {
		return false
	}
	if p == s.blocks[0] {
		return false
	}
	_, ok := s.blockSet[p]
	return ok
}

// CollidesWithBody reports whether p lies on any of the snake's cells,
// including the head.
func (s *Snake) CollidesWithBody(p Point) bool {
	_, ok := s.blockSet[p]
	return ok
}

// CloneBodySet returns a copy of the body cell set.
func (s *Snake) CloneBodySet() map[Point]struct{} {
	out := make(map[Point]struct{}, len(s.blockSet))
	for p := range s.blockSet {
		out[p] = struct{}{}
	}
	return out
}
