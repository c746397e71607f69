package spiral

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPositionAtOrigin(t *testing.T) {
	require.Equal(t, Position{0, 0}, PositionAt(0))
}

func TestPositionAtFirstRing(t *testing.T) {
	want := []Position{
		{0, -Step},
		{Step, -Step},
		{Step, 0},
		{Step, Step},
		{0, Step},
		{-Step, Step},
		{-Step, 0},
		{-Step, -Step},
	}
	for i, w := range want {
		require.Equal(t, w, PositionAt(i+1), "index %d", i+1)
	}
}

func TestPositionAtSecondRing(t *testing.T) {
	// Runs lengthen every second turn, so after the first ring the walk
	// goes up three before turning right again.
	want := []Position{
		{-Step, -2 * Step},
		{0, -2 * Step},
		{Step, -2 * Step},
		{2 * Step, -2 * Step},
		{2 * Step, -Step},
	}
	for i, w := range want {
		require.Equal(t, w, PositionAt(i+9), "index %d", i+9)
	}
}

func TestPositionAtDeterministic(t *testing.T) {
	for _, index := range []int{0, 1, 7, 100, 9999} {
		first := PositionAt(index)
		require.Equal(t, first, PositionAt(index), "index %d", index)
	}
}

func TestPositionAtNoCollisions(t *testing.T) {
	const bound = 10000
	seen := make(map[Position]int, bound)
	for i := 0; i < bound; i++ {
		pos := PositionAt(i)
		if prev, dup := seen[pos]; dup {
			t.Fatalf("indices %d and %d both map to %+v", prev, i, pos)
		}
		seen[pos] = i
	}
}

func TestPositionAtOnLattice(t *testing.T) {
	for i := 0; i < 1000; i++ {
		pos := PositionAt(i)
		require.Zero(t, pos.X%Step, "index %d x", i)
		require.Zero(t, pos.Y%Step, "index %d y", i)
	}
}

func TestAllocateEmpty(t *testing.T) {
	pos, err := Allocate(nil)
	require.NoError(t, err)
	require.Equal(t, Position{0, 0}, pos)
}

func TestAllocatePrefix(t *testing.T) {
	for _, k := range []int{1, 2, 9, 25, 100} {
		occupied := make(map[Position]struct{}, k)
		for i := 0; i < k; i++ {
			occupied[PositionAt(i)] = struct{}{}
		}
		pos, err := Allocate(occupied)
		require.NoError(t, err)
		require.Equal(t, PositionAt(k), pos, "prefix of %d", k)
	}
}

func TestAllocateFillsGap(t *testing.T) {
	// A hole left in the prefix is refilled before the frontier advances.
	occupied := make(map[Position]struct{})
	for i := 0; i < 10; i++ {
		if i == 4 {
			continue
		}
		occupied[PositionAt(i)] = struct{}{}
	}
	pos, err := Allocate(occupied)
	require.NoError(t, err)
	require.Equal(t, PositionAt(4), pos)
}

func TestAllocateCorruptOccupancy(t *testing.T) {
	// A position that is not a multiple of Step cannot have come from the
	// enumeration; allocation must refuse it outright.
	occupied := map[Position]struct{}{
		{X: 7, Y: 13}: {},
	}
	_, err := Allocate(occupied)
	require.ErrorIs(t, err, ErrOccupancyCorrupt)

	occupied = map[Position]struct{}{
		PositionAt(0):        {},
		{X: Step + 1, Y: 0}: {},
	}
	_, err = Allocate(occupied)
	require.ErrorIs(t, err, ErrOccupancyCorrupt)
}

func TestAllocateToleratesOnLatticeOutlier(t *testing.T) {
	// A record far along the spiral is a gap, not corruption: the scan
	// still fills the lowest free slot.
	occupied := map[Position]struct{}{
		PositionAt(5000): {},
	}
	pos, err := Allocate(occupied)
	require.NoError(t, err)
	require.Equal(t, Position{0, 0}, pos)
}

func TestStepSingleSourced(t *testing.T) {
	// Renderers derive geometry from TileSize and TileGap; the allocator
	// steps by Step. Pin the relation so the two views cannot drift.
	require.Equal(t, TileSize+TileGap, Step)
}
