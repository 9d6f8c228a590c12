package seating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func occupy(refs ...SeatRef) map[SeatRef]bool {
	m := make(map[SeatRef]bool, len(refs))
	for _, r := range refs {
		m[r] = true
	}
	return m
}

func refs(seats []Assigned) []SeatRef {
	out := make([]SeatRef, 0, len(seats))
	for _, s := range seats {
		out = append(out, SeatRef{Row: s.Row, Seat: s.Seat})
	}
	return out
}

func TestAssignEmptyVenueStartsNormalZone(t *testing.T) {
	seats := Assign(nil, 3, 10, 2, false)
	require.Len(t, seats, 2)
	assert.Equal(t, []SeatRef{{1, 3}, {1, 4}}, refs(seats))
	for _, s := range seats {
		assert.False(t, s.Accessible)
	}
}

func TestAssignAccessibleEmptyVenueTakesFrontLeftEdge(t *testing.T) {
	seats := Assign(nil, 3, 10, 2, true)
	require.Len(t, seats, 2)
	assert.Equal(t, []SeatRef{{1, 1}, {1, 2}}, refs(seats))
	assert.True(t, seats[0].Accessible)
	assert.False(t, seats[1].Accessible)
}

func TestAssignExactBlockPreferred(t *testing.T) {
	// Row 1 normal zone has a 6-run (surplus 4); row 2 has an exact 2-run
	// between occupied seats. The exact match must win.
	occ := occupy(SeatRef{2, 3}, SeatRef{2, 6}, SeatRef{2, 7}, SeatRef{2, 8})
	seats := Assign(occ, 3, 10, 2, false)
	assert.Equal(t, []SeatRef{{2, 4}, {2, 5}}, refs(seats))
}

func TestAssignRejectsSurplusOneInEarlyPhases(t *testing.T) {
	// Row 1 normal zone leaves a 3-run (surplus 1 for qty 2); row 2 has a
	// 4-run (surplus 2). The surplus-2 block wins to avoid stranding a
	// single seat.
	occ := occupy(
		SeatRef{1, 6}, SeatRef{1, 7}, SeatRef{1, 8},
		SeatRef{2, 7}, SeatRef{2, 8},
	)
	seats := Assign(occ, 2, 10, 2, false)
	assert.Equal(t, []SeatRef{{2, 3}, {2, 4}}, refs(seats))
}

func TestAssignSurplusOneAcceptedAsLastResort(t *testing.T) {
	// One row, only a 3-run in the widened zone for qty 2: surplus 1 must
	// eventually be accepted.
	occ := occupy(
		SeatRef{1, 1}, SeatRef{1, 2}, SeatRef{1, 3}, SeatRef{1, 4},
		SeatRef{1, 8}, SeatRef{1, 9}, SeatRef{1, 10},
	)
	seats := Assign(occ, 1, 10, 2, false)
	assert.Equal(t, []SeatRef{{1, 5}, {1, 6}}, refs(seats))
}

func TestAssignFullRowIncludesLeftZone(t *testing.T) {
	// Normal and right zones fully occupied in both rows; only the left
	// accessibility zones are free. Phase 4 hands them out anyway.
	occ := make(map[SeatRef]bool)
	for row := 1; row <= 2; row++ {
		for seat := 3; seat <= 10; seat++ {
			occ[SeatRef{Row: row, Seat: seat}] = true
		}
	}
	seats := Assign(occ, 2, 10, 2, false)
	assert.Equal(t, []SeatRef{{1, 1}, {1, 2}}, refs(seats))
}

func TestAssignClusterSpansRowsWhenNoRowFits(t *testing.T) {
	// Every row has at most one free seat outside a single column, so no
	// single-row phase can fit 4; the cluster search must find a connected
	// block across rows.
	occ := make(map[SeatRef]bool)
	for row := 1; row <= 4; row++ {
		for seat := 1; seat <= 6; seat++ {
			if seat != 3 && !(row == 1 && seat == 4) {
				occ[SeatRef{Row: row, Seat: seat}] = true
			}
		}
	}
	seats := Assign(occ, 4, 6, 4, false)
	require.Len(t, seats, 4)
	assertConnected(t, seats)
	for _, s := range seats {
		assert.False(t, occ[SeatRef{Row: s.Row, Seat: s.Seat}], "assigned an occupied seat")
	}
}

func TestAssignFluidFillWhenDisconnected(t *testing.T) {
	// Free seats exist but no connected pair does; fluid fill takes them
	// row-major.
	occ := make(map[SeatRef]bool)
	for row := 1; row <= 2; row++ {
		for seat := 1; seat <= 5; seat++ {
			occ[SeatRef{Row: row, Seat: seat}] = true
		}
	}
	delete(occ, SeatRef{1, 2})
	delete(occ, SeatRef{2, 4})
	seats := Assign(occ, 2, 5, 2, false)
	assert.Equal(t, []SeatRef{{1, 2}, {2, 4}}, refs(seats))
}

func TestAssignNeverReturnsOccupiedOrDuplicateSeats(t *testing.T) {
	occ := occupy(
		SeatRef{1, 1}, SeatRef{1, 4}, SeatRef{1, 5},
		SeatRef{2, 2}, SeatRef{2, 9}, SeatRef{3, 6},
	)
	for qty := 1; qty <= 6; qty++ {
		for _, accessible := range []bool{false, true} {
			seats := Assign(occ, 3, 10, qty, accessible)
			seen := make(map[SeatRef]bool)
			for _, s := range seats {
				ref := SeatRef{Row: s.Row, Seat: s.Seat}
				assert.False(t, occ[ref], "qty=%d accessible=%v returned occupied seat %v", qty, accessible, ref)
				assert.False(t, seen[ref], "qty=%d accessible=%v returned duplicate seat %v", qty, accessible, ref)
				seen[ref] = true
			}
		}
	}
}

func TestAssignDeterministic(t *testing.T) {
	occ := occupy(
		SeatRef{1, 3}, SeatRef{1, 4}, SeatRef{2, 1},
		SeatRef{2, 8}, SeatRef{3, 5}, SeatRef{4, 2},
	)
	first := Assign(occ, 4, 12, 3, false)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Assign(occ, 4, 12, 3, false))
	}
}

func TestAssignAccessibleFallsBackAcrossRows(t *testing.T) {
	// Front row edges occupied; the left edge of row 2 should be chosen
	// and carry the accessibility flag.
	occ := occupy(
		SeatRef{1, 1}, SeatRef{1, 2},
		SeatRef{1, 9}, SeatRef{1, 10},
	)
	seats := Assign(occ, 3, 10, 2, true)
	assert.Equal(t, []SeatRef{{2, 1}, {2, 2}}, refs(seats))
	assert.True(t, seats[0].Accessible)
}

func TestAssignAccessibleExactlyOneFlag(t *testing.T) {
	occ := occupy(SeatRef{1, 1}, SeatRef{2, 1}, SeatRef{3, 1})
	for qty := 1; qty <= 5; qty++ {
		seats := Assign(occ, 3, 10, qty, true)
		require.NotEmpty(t, seats, "qty=%d", qty)
		flagged := 0
		for _, s := range seats {
			if s.Accessible {
				flagged++
			}
		}
		assert.Equal(t, 1, flagged, "qty=%d", qty)
	}
}

func TestAssignAccessibleRightEdgeWhenLeftBlocked(t *testing.T) {
	occ := occupy(SeatRef{1, 1})
	seats := Assign(occ, 1, 10, 2, true)
	assert.Equal(t, []SeatRef{{1, 9}, {1, 10}}, refs(seats))
	// The edge seat (seat 10) is the wheelchair position.
	for _, s := range seats {
		if s.Seat == 10 {
			assert.True(t, s.Accessible)
		} else {
			assert.False(t, s.Accessible)
		}
	}
}

func TestAssignInsufficientCapacityReturnsPartial(t *testing.T) {
	occ := make(map[SeatRef]bool)
	for seat := 1; seat <= 5; seat++ {
		occ[SeatRef{Row: 1, Seat: seat}] = true
	}
	delete(occ, SeatRef{1, 3})
	seats := Assign(occ, 1, 5, 3, false)
	assert.Equal(t, []SeatRef{{1, 3}}, refs(seats))
}

// assertConnected checks that every seat has at least one 4-directional
// neighbor within the result.
func assertConnected(t *testing.T, seats []Assigned) {
	t.Helper()
	member := make(map[SeatRef]bool, len(seats))
	for _, s := range seats {
		member[SeatRef{Row: s.Row, Seat: s.Seat}] = true
	}
	for _, s := range seats {
		connected := member[SeatRef{s.Row, s.Seat - 1}] ||
			member[SeatRef{s.Row, s.Seat + 1}] ||
			member[SeatRef{s.Row - 1, s.Seat}] ||
			member[SeatRef{s.Row + 1, s.Seat}]
		assert.True(t, connected, "seat %v disconnected from cluster", s)
	}
}
