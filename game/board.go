package game

import "math/rand"

// Collision classifies the outcome of moving a head onto a cell.
type Collision int

const (
	CollisionNone Collision = iota
	CollisionWall
	CollisionSelf
	CollisionOther
)

func (c Collision) String() string {
	switch c {
	case CollisionWall:
		return "wall"
	case CollisionSelf:
		return "self"
	case CollisionOther:
		return "other_snake"
	}
	return "none"
}

// Board holds the grid dimensions and owns spawn and food placement sampling.
// Board is not safe for concurrent use; callers hold the world write lock.
type Board struct {
	width  int
	height int
	rng    *rand.Rand
}

// NewBoard creates a board of the given dimensions using rng for sampling.
func NewBoard(width, height int, rng *rand.Rand) *Board {
	return &Board{width: width, height: height, rng: rng}
}

func (b *Board) Width() int  { return b.width }
func (b *Board) Height() int { return b.height }

// Contains reports whether p lies inside the grid.
func (b *Board) Contains(p Point) bool {
	return p.X >= 0 && p.X < b.width && p.Y >= 0 && p.Y < b.height
}

// CheckCollision classifies the move of player ps onto newHead against the
// current body sets. Priority is fixed: wall, then self, then another snake.
// For CollisionOther the id of the snake that was hit is returned.
// Invincibility does not change the classification; the engine decides
// whether a non-NONE result is fatal.
func (b *Board) CheckCollision(ps *PlayerState, newHead Point, all []*PlayerState) (Collision, string) {
	if !b.Contains(newHead) {
		return CollisionWall, ""
	}
	if ps.Snake.CollidesWithSelf(newHead) {
		return CollisionSelf, ""
	}
	for _, other := range all {
		if other.ID == ps.ID || !other.Snake.Alive() {
			continue
		}
		if other.Snake.CollidesWithBody(newHead) {
			return CollisionOther, other.ID
		}
	}
	return CollisionNone, ""
}

// RandomSafePosition samples a spawn cell whose surrounding radius-square
// contains no live body cell. Sampling is clamped radius cells away from the
// edges; if that sub-rectangle is empty the whole grid is used. Returns
// NoPosition when no safe cell is found within the attempt budget.
func (b *Board) RandomSafePosition(players []*PlayerState, radius int) Point {
	if b.width <= 0 || b.height <= 0 {
		return NoPosition
	}
	if radius < 0 {
		radius = 0
	}

	totalCells := b.width * b.height
	maxAttempts := max(100, totalCells/10)
	if maxAttempts > totalCells {
		maxAttempts = totalCells
	}

	minX, maxX := radius, b.width-1-radius
	minY, maxY := radius, b.height-1-radius
	if minX > maxX || minY > maxY {
		minX, maxX = 0, b.width-1
		minY, maxY = 0, b.height-1
	}

	occupied := make(map[Point]struct{})
	for _, ps := range players {
		if !ps.Snake.Alive() {
			continue
		}
		for _, p := range ps.Snake.Blocks() {
			occupied[p] = struct{}{}
		}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := Point{
			X: minX + b.rng.Intn(maxX-minX+1),
			Y: minY + b.rng.Intn(maxY-minY+1),
		}
		if b.isSafeArea(candidate, radius, occupied) {
			return candidate
		}
	}
	return NoPosition
}

func (b *Board) isSafeArea(center Point, radius int, occupied map[Point]struct{}) bool {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			p := Point{X: center.X + dx, Y: center.Y + dy}
			if !b.Contains(p) {
				continue
			}
			if _, ok := occupied[p]; ok {
				return false
			}
		}
	}
	return true
}

// GenerateFood places up to count new food cells, avoiding occupied cells,
// existing food, and cells already chosen in this call. occupied maps each
// body cell to its occupation count, letting the engine reuse its post-move
// index instead of re-walking every snake. Each food gets up to 100 sampling
// attempts; count is capped at half the grid.
func (b *Board) GenerateFood(count int, occupied map[Point]int, existingFood map[Point]struct{}) []Point {
	if count <= 0 || b.width <= 0 || b.height <= 0 {
		return nil
	}

	const maxAttemptsPerFood = 100
	if limit := b.width * b.height / 2; count > limit {
		count = max(1, limit)
	}

	foods := make([]Point, 0, count)
	chosen := make(map[Point]struct{}, count)

	for i := 0; i < count; i++ {
		for attempt := 0; attempt < maxAttemptsPerFood; attempt++ {
			candidate := Point{X: b.rng.Intn(b.width), Y: b.rng.Intn(b.height)}
			if _, ok := existingFood[candidate]; ok {
				continue
			}
			if _, ok := chosen[candidate]; ok {
				continue
			}
			if _, ok := occupied[candidate]; ok {
				continue
			}
			foods = append(foods, candidate)
			chosen[candidate] = struct{}{}
			break
		}
	}
	return foods
}
