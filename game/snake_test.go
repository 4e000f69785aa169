package game

import (
	"testing"
)

// checkSnakeInvariants verifies the chain and the body set agree exactly.
func checkSnakeInvariants(t *testing.T, s *Snake) {
	t.Helper()
	blocks := s.Blocks()
	if s.Length() != len(blocks) {
		t.Fatalf("Length() = %d but %d blocks", s.Length(), len(blocks))
	}
	seen := make(map[Point]struct{}, len(blocks))
	for _, p := range blocks {
		if !s.CollidesWithBody(p) {
			t.Fatalf("block %v missing from body set", p)
		}
		seen[p] = struct{}{}
	}
	if len(seen) != len(s.CloneBodySet()) {
		t.Fatalf("body set has %d cells, chain has %d distinct", len(s.CloneBodySet()), len(seen))
	}
}

func TestNewSnakeStartsAsSingleCell(t *testing.T) {
	s := NewSnake(Point{X: 3, Y: 3}, 3)
	if !s.Alive() {
		t.Fatal("new snake should be alive")
	}
	if s.Length() != 1 {
		t.Fatalf("new snake length = %d, want 1", s.Length())
	}
	if s.Direction() != DirNone {
		t.Fatalf("new snake direction = %v, want none", s.Direction())
	}
	checkSnakeInvariants(t, s)
}

func TestSnakeGrowsToInitialLength(t *testing.T) {
	s := NewSnake(Point{X: 1, Y: 3}, 3)
	s.SetDirection(DirRight)

	// The first two moves consume the pending growth; no tail is removed.
	for i := 0; i < 2; i++ {
		res := s.MoveWithDelta()
		if !res.Moved || res.TailRemoved {
			t.Fatalf("move %d: result %+v, want moved without tail removal", i, res)
		}
		checkSnakeInvariants(t, s)
	}
	if s.Length() != 3 {
		t.Fatalf("length after growth = %d, want 3", s.Length())
	}

	// The third move is steady state: head advances, tail pops.
	res := s.MoveWithDelta()
	if !res.Moved || !res.TailRemoved {
		t.Fatalf("steady-state move result %+v", res)
	}
	if res.NewHead != (Point{X: 4, Y: 3}) {
		t.Fatalf("new head = %v, want (4,3)", res.NewHead)
	}
	if res.RemovedTail != (Point{X: 1, Y: 3}) {
		t.Fatalf("removed tail = %v, want (1,3)", res.RemovedTail)
	}
	if s.Length() != 3 {
		t.Fatalf("steady-state length = %d, want 3", s.Length())
	}
	if s.CollidesWithBody(Point{X: 1, Y: 3}) {
		t.Fatal("removed tail still in body set")
	}
	checkSnakeInvariants(t, s)
}

func TestSnakeDoesNotMoveWithoutDirection(t *testing.T) {
	s := NewSnake(Point{X: 3, Y: 3}, 3)
	if res := s.MoveWithDelta(); res.Moved {
		t.Fatal("snake with no direction moved")
	}
}

func TestSetDirectionRejectsReversal(t *testing.T) {
	s := NewSnake(Point{X: 3, Y: 3}, 1)
	s.SetDirection(DirRight)
	s.SetDirection(DirLeft)
	if s.Direction() != DirRight {
		t.Fatalf("direction = %v after attempted reversal, want right", s.Direction())
	}
	s.SetDirection(DirUp)
	if s.Direction() != DirUp {
		t.Fatalf("direction = %v, want up", s.Direction())
	}
	s.SetDirection(DirNone)
	if s.Direction() != DirUp {
		t.Fatal("DirNone should never overwrite a set direction")
	}
}

func TestGrowPreservesTailForOneMove(t *testing.T) {
	s := NewSnake(Point{X: 1, Y: 3}, 1)
	s.SetDirection(DirRight)
	s.MoveWithDelta() // head (2,3), length 1

	s.Grow()
	res := s.MoveWithDelta()
	if res.TailRemoved {
		t.Fatal("growth move removed the tail")
	}
	if s.Length() != 2 {
		t.Fatalf("length after growth move = %d, want 2", s.Length())
	}

	res = s.MoveWithDelta()
	if !res.TailRemoved {
		t.Fatal("post-growth move should remove the tail again")
	}
	checkSnakeInvariants(t, s)
}

func TestKillClearsBody(t *testing.T) {
	s := NewSnake(Point{X: 3, Y: 3}, 3)
	s.Kill()
	if s.Alive() {
		t.Fatal("killed snake still alive")
	}
	if s.Length() != 0 {
		t.Fatalf("killed snake length = %d", s.Length())
	}
	if s.CollidesWithBody(Point{X: 3, Y: 3}) {
		t.Fatal("killed snake still occupies cells")
	}
	if res := s.MoveWithDelta(); res.Moved {
		t.Fatal("killed snake moved")
	}
}

func TestCollidesWithSelfExcludesHead(t *testing.T) {
	s := NewSnake(Point{X: 1, Y: 1}, 3)
	s.SetDirection(DirRight)
	s.MoveWithDelta()
	s.MoveWithDelta() // blocks: (3,1) (2,1) (1,1)

	if s.CollidesWithSelf(Point{X: 3, Y: 1}) {
		t.Fatal("head cell must not count as self collision")
	}
	if !s.CollidesWithSelf(Point{X: 2, Y: 1}) {
		t.Fatal("body cell should count as self collision")
	}
	if !s.CollidesWithBody(Point{X: 3, Y: 1}) {
		t.Fatal("head cell counts for body collision")
	}
	if s.CollidesWithSelf(Point{X: 9, Y: 9}) {
		t.Fatal("free cell misreported")
	}
}

func TestInvincibilityCountdown(t *testing.T) {
	s := NewSnake(Point{X: 1, Y: 1}, 1)
	s.SetInvincibleRounds(2)
	s.DecrementInvincibility()
	if s.InvincibleRounds() != 1 {
		t.Fatalf("invincible rounds = %d, want 1", s.InvincibleRounds())
	}
	s.DecrementInvincibility()
	s.DecrementInvincibility()
	if s.InvincibleRounds() != 0 {
		t.Fatalf("invincible rounds = %d, want 0 (never negative)", s.InvincibleRounds())
	}
}
