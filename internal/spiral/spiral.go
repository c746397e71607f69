// Package spiral implements the deterministic square-spiral lattice used to
// place tiles on the canvas. Every component that produces or consumes tile
// coordinates must go through the constants and functions defined here; the
// step size in particular exists exactly once in the codebase.
package spiral

import "errors"

const (
	// TileSize is the edge length of one rendered tile in canvas units.
	TileSize = 150
	// TileGap is the visual gap between adjacent tiles. It is part of the
	// lattice step and must never be added again by a renderer.
	TileGap = 10
	// Step is the lattice constant: the distance between the origins of two
	// adjacent tiles.
	Step = TileSize + TileGap
)

// ErrOccupancyCorrupt is returned by Allocate when an occupied position is
// not on the lattice at all. That can only happen if stored positions were
// corrupted; callers must treat it as fatal rather than retry.
var ErrOccupancyCorrupt = errors.New("spiral: occupied position off lattice")

// Position is a lattice coordinate. Values are always integer multiples of
// Step.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PositionAt returns the lattice position of the given spiral index. Index 0
// maps to the origin; successive indices trace an outward square spiral
// starting upward. The function is pure and total for index >= 0.
func PositionAt(index int) Position {
	var pos Position
	dx, dy := 0, -1
	segment := 1
	segmentPassed := 0
	for i := 0; i < index; i++ {
		pos.X += dx * Step
		pos.Y += dy * Step
		segmentPassed++
		if segmentPassed == segment {
			segmentPassed = 0
			dx, dy = -dy, dx
			// Runs lengthen every second turn: 1,1,2,2,3,3,... Growing on
			// the turns into a vertical direction keeps the enumeration on
			// the classic square spiral.
			if dy != 0 {
				segment++
			}
		}
	}
	return pos
}

// Allocate returns the lowest-index spiral position absent from occupied.
//
// Persisted occupancy is the source of truth: the next slot is re-derived
// from it on every call instead of trusting a running counter, so concurrent
// writers can never silently agree on stale state. Positions that are not
// multiples of Step cannot have come from this enumeration; they are
// rejected with ErrOccupancyCorrupt before any scanning. In a healthy store
// the occupancy set is a prefix of the enumeration and the scan stops at
// index len(occupied).
func Allocate(occupied map[Position]struct{}) (Position, error) {
	for pos := range occupied {
		if pos.X%Step != 0 || pos.Y%Step != 0 {
			return Position{}, ErrOccupancyCorrupt
		}
	}
	for index := 0; index <= len(occupied); index++ {
		pos := PositionAt(index)
		if _, taken := occupied[pos]; !taken {
			return pos, nil
		}
	}
	// Unreachable: len(occupied) positions cannot fill len(occupied)+1
	// distinct slots.
	return Position{}, ErrOccupancyCorrupt
}
