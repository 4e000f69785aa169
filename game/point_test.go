package game

import "testing"

func TestPointHashDistinguishesNegatives(t *testing.T) {
	points := []Point{
		{X: 0, Y: 0},
		{X: 0, Y: -1},
		{X: -1, Y: 0},
		{X: -1, Y: -1},
		{X: 1, Y: 0},
		{X: 0, Y: 1},
		{X: 256, Y: 0},
		{X: 0, Y: 256},
	}
	seen := make(map[uint64]Point)
	for _, p := range points {
		h := p.Hash()
		if prev, ok := seen[h]; ok {
			t.Errorf("hash collision between %v and %v", prev, p)
		}
		seen[h] = p
	}
}

func TestPointSentinel(t *testing.T) {
	if !NoPosition.IsNull() {
		t.Error("NoPosition should be null")
	}
	if (Point{X: 0, Y: 0}).IsNull() {
		t.Error("origin should not be null")
	}
	if (Point{X: -1, Y: 0}).IsNull() {
		t.Error("(-1,0) should not be null")
	}
}

func TestPointTranslate(t *testing.T) {
	start := Point{X: 5, Y: 5}
	tests := []struct {
		dir  Direction
		want Point
	}{
		{DirUp, Point{X: 5, Y: 4}},
		{DirDown, Point{X: 5, Y: 6}},
		{DirLeft, Point{X: 4, Y: 5}},
		{DirRight, Point{X: 6, Y: 5}},
		{DirNone, Point{X: 5, Y: 5}},
	}
	for _, tc := range tests {
		if got := start.Translate(tc.dir); got != tc.want {
			t.Errorf("Translate(%v) = %v, want %v", tc.dir, got, tc.want)
		}
	}
}

func TestPointLess(t *testing.T) {
	if !(Point{X: 1, Y: 9}).Less(Point{X: 2, Y: 0}) {
		t.Error("x should dominate ordering")
	}
	if !(Point{X: 1, Y: 1}).Less(Point{X: 1, Y: 2}) {
		t.Error("y should break ties")
	}
	if (Point{X: 1, Y: 1}).Less(Point{X: 1, Y: 1}) {
		t.Error("a point is not less than itself")
	}
}
