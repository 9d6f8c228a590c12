// Package seating implements the pure seat assignment algorithm. It maps a
// requested quantity and an accessibility need onto concrete seats given
// the set of already-occupied seats and the venue shape. The package does
// no I/O and is fully deterministic: identical inputs always produce
// identical output, which the tests and the venue chart endpoint rely on.
//
// Venue model: every row has a left accessibility zone (seats 1 and 2), a
// normal zone in the middle, and a right accessibility zone (the last two
// seats). Rows and seats are 1-indexed; row 1 is the front row.
package seating

import "sort"

// Accessibility zone width at each end of a row.
const edgeZone = 2

// SeatRef identifies a physical seat position.
type SeatRef struct {
	Row  int
	Seat int
}

// Assigned is one seat chosen by the algorithm. Accessible marks the
// single wheelchair position of an accessibility order; companions and
// normal-order seats carry false.
type Assigned struct {
	Row        int
	Seat       int
	Accessible bool
}

// Assign picks quantity seats avoiding everything in occupied. The result
// is sorted by row then seat. When the venue cannot hold the full quantity
// anywhere, the trailing fluid-fill phase returns whatever free seats
// remain (possibly none); callers guard against that case with the
// aggregate availability counter before ever reaching this code.
func Assign(occupied map[SeatRef]bool, rows, seatsPerRow, quantity int, needsAccessibility bool) []Assigned {
	if rows <= 0 || seatsPerRow <= 0 || quantity <= 0 {
		return nil
	}
	v := venue{rows: rows, seatsPerRow: seatsPerRow, occupied: occupied}
	if needsAccessibility {
		return v.assignAccessible(quantity)
	}
	return v.assignNormal(quantity)
}

type venue struct {
	rows        int
	seatsPerRow int
	occupied    map[SeatRef]bool
}

func (v venue) free(row, seat int) bool {
	if row < 1 || row > v.rows || seat < 1 || seat > v.seatsPerRow {
		return false
	}
	return !v.occupied[SeatRef{Row: row, Seat: seat}]
}

// normalLo/normalHi bound the normal zone. For very narrow rows the normal
// zone can be empty, in which case the earlier phases simply find nothing.
func (v venue) normalLo() int { return edgeZone + 1 }
func (v venue) normalHi() int { return v.seatsPerRow - edgeZone }

// assignNormal walks the phases of the normal-order algorithm, stopping at
// the first phase that yields a result:
//
//  1. contiguous block inside the normal zone, surplus-1 rejected
//  2. widened to normal+right zone, surplus-1 still rejected
//  3. normal+right zone, surplus-1 accepted
//  4. full row including the left zone, surplus-1 accepted
//  5. best connected cluster across rows
//  6. fluid fill, row-major, no adjacency guarantee
//
// Surplus-1 is rejected in the early phases because it strands a single
// seat that is unlikely to ever sell.
func (v venue) assignNormal(quantity int) []Assigned {
	if seats := v.findBlock(v.normalLo(), v.normalHi(), quantity, false); seats != nil {
		return seats
	}
	if seats := v.findBlock(v.normalLo(), v.seatsPerRow, quantity, false); seats != nil {
		return seats
	}
	if seats := v.findBlock(v.normalLo(), v.seatsPerRow, quantity, true); seats != nil {
		return seats
	}
	if seats := v.findBlock(1, v.seatsPerRow, quantity, true); seats != nil {
		return seats
	}
	if seats := v.findCluster(quantity); seats != nil {
		return seats
	}
	return v.fluidFill(quantity)
}

// assignAccessible prefers the front-row edges, then edge seats further
// back, then falls through to the cluster search and the normal phases.
// Exactly one seat of the result is flagged as the accessibility seat.
func (v venue) assignAccessible(quantity int) []Assigned {
	// Front row first, left edge before right.
	if seats := v.edgeRun(1, quantity, false); seats != nil {
		return seats
	}
	if seats := v.edgeRun(1, quantity, true); seats != nil {
		return seats
	}
	// Remaining rows, all left edges before any right edge so wheelchair
	// positions cluster on one aisle.
	for row := 2; row <= v.rows; row++ {
		if seats := v.edgeRun(row, quantity, false); seats != nil {
			return seats
		}
	}
	for row := 2; row <= v.rows; row++ {
		if seats := v.edgeRun(row, quantity, true); seats != nil {
			return seats
		}
	}
	if seats := v.findCluster(quantity); seats != nil {
		return flagAccessible(v, seats)
	}
	return flagAccessible(v, v.assignNormal(quantity))
}

// edgeRun tries to seat the party contiguously against one edge of a row,
// the edge seat itself being the wheelchair position.
func (v venue) edgeRun(row, quantity int, rightEdge bool) []Assigned {
	seats := make([]Assigned, 0, quantity)
	for i := 0; i < quantity; i++ {
		seat := 1 + i
		if rightEdge {
			seat = v.seatsPerRow - i
		}
		if !v.free(row, seat) {
			return nil
		}
		seats = append(seats, Assigned{Row: row, Seat: seat, Accessible: i == 0})
	}
	sortAssigned(seats)
	return seats
}

// flagAccessible marks exactly one seat of a fallback result as the
// accessibility seat: the lowest-row seat inside an edge zone when one
// exists, otherwise the first seat.
func flagAccessible(v venue, seats []Assigned) []Assigned {
	if len(seats) == 0 {
		return seats
	}
	for i := range seats {
		seats[i].Accessible = false
	}
	for i, s := range seats {
		if s.Seat <= edgeZone || s.Seat > v.seatsPerRow-edgeZone {
			seats[i].Accessible = true
			return seats
		}
	}
	seats[0].Accessible = true
	return seats
}

// findBlock searches every row for a contiguous free run inside [lo, hi]
// that can hold quantity seats. An exact-size run anywhere wins
// immediately; otherwise the run with the smallest surplus wins, with a
// surplus of exactly one rejected unless allowSurplusOne is set. Ties go
// to the lower row, then the leftmost run. Seats are taken from the start
// of the run.
func (v venue) findBlock(lo, hi, quantity int, allowSurplusOne bool) []Assigned {
	if lo > hi {
		return nil
	}
	bestSurplus := -1
	var bestRow, bestStart int
	for row := 1; row <= v.rows; row++ {
		for start := lo; start <= hi; {
			if !v.free(row, start) {
				start++
				continue
			}
			end := start
			for end+1 <= hi && v.free(row, end+1) {
				end++
			}
			length := end - start + 1
			if length >= quantity {
				surplus := length - quantity
				if surplus == 0 {
					return v.takeRun(row, start, quantity)
				}
				if (surplus != 1 || allowSurplusOne) && (bestSurplus == -1 || surplus < bestSurplus) {
					bestSurplus = surplus
					bestRow = row
					bestStart = start
				}
			}
			start = end + 1
		}
	}
	if bestSurplus == -1 {
		return nil
	}
	return v.takeRun(bestRow, bestStart, quantity)
}

func (v venue) takeRun(row, start, quantity int) []Assigned {
	seats := make([]Assigned, 0, quantity)
	for s := start; s < start+quantity; s++ {
		seats = append(seats, Assigned{Row: row, Seat: s})
	}
	return seats
}

// findCluster runs a breadth-first search from every anchor seat (a free
// seat next to an occupied seat or a row edge), then from every remaining
// free seat, growing a connected set of the requested size. Anchors are
// tried first to bias the search toward filling existing gaps instead of
// opening new ones. All grown candidates are scored and the best one wins.
func (v venue) findCluster(quantity int) []Assigned {
	if quantity < 2 {
		return nil
	}
	starts := v.searchOrder()
	bestScore := 0
	var best []SeatRef
	for _, start := range starts {
		cand := v.growCluster(start, quantity)
		if cand == nil {
			continue
		}
		score := v.scoreCluster(cand)
		if best == nil || score < bestScore {
			best = cand
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	seats := make([]Assigned, 0, len(best))
	for _, ref := range best {
		seats = append(seats, Assigned{Row: ref.Row, Seat: ref.Seat})
	}
	sortAssigned(seats)
	return seats
}

// searchOrder lists BFS start seats: anchors in row-major order, then the
// remaining free seats in row-major order.
func (v venue) searchOrder() []SeatRef {
	anchors := make([]SeatRef, 0)
	interior := make([]SeatRef, 0)
	for row := 1; row <= v.rows; row++ {
		for seat := 1; seat <= v.seatsPerRow; seat++ {
			if !v.free(row, seat) {
				continue
			}
			ref := SeatRef{Row: row, Seat: seat}
			if v.isAnchor(row, seat) {
				anchors = append(anchors, ref)
			} else {
				interior = append(interior, ref)
			}
		}
	}
	return append(anchors, interior...)
}

func (v venue) isAnchor(row, seat int) bool {
	if seat == 1 || seat == v.seatsPerRow {
		return true
	}
	for _, n := range neighbors(row, seat) {
		if n.Row >= 1 && n.Row <= v.rows && n.Seat >= 1 && n.Seat <= v.seatsPerRow && v.occupied[n] {
			return true
		}
	}
	return false
}

func neighbors(row, seat int) [4]SeatRef {
	// Left and right before the adjacent rows keeps clusters stretched
	// along a row rather than stacked across rows.
	return [4]SeatRef{
		{Row: row, Seat: seat - 1},
		{Row: row, Seat: seat + 1},
		{Row: row - 1, Seat: seat},
		{Row: row + 1, Seat: seat},
	}
}

// growCluster BFS-expands from start over free seats until quantity seats
// are collected. Returns nil when the connected component is too small.
func (v venue) growCluster(start SeatRef, quantity int) []SeatRef {
	visited := map[SeatRef]bool{start: true}
	cluster := []SeatRef{start}
	frontier := []SeatRef{start}
	for len(cluster) < quantity && len(frontier) > 0 {
		next := make([]SeatRef, 0)
		for _, cur := range frontier {
			for _, n := range neighbors(cur.Row, cur.Seat) {
				if visited[n] || !v.free(n.Row, n.Seat) {
					continue
				}
				visited[n] = true
				cluster = append(cluster, n)
				next = append(next, n)
				if len(cluster) == quantity {
					return cluster
				}
			}
		}
		frontier = next
	}
	if len(cluster) < quantity {
		return nil
	}
	return cluster
}

// scoreCluster ranks a candidate; lower is better. Row compactness
// dominates, then front-row proximity, then gap avoidance (free in-row
// neighbors left around the cluster), then centering.
func (v venue) scoreCluster(cluster []SeatRef) int {
	minRow, maxRow := cluster[0].Row, cluster[0].Row
	rowSum := 0
	seatSum := 0
	member := make(map[SeatRef]bool, len(cluster))
	for _, ref := range cluster {
		member[ref] = true
		rowSum += ref.Row
		seatSum += ref.Seat
		if ref.Row < minRow {
			minRow = ref.Row
		}
		if ref.Row > maxRow {
			maxRow = ref.Row
		}
	}
	gaps := 0
	for _, ref := range cluster {
		for _, n := range []SeatRef{{ref.Row, ref.Seat - 1}, {ref.Row, ref.Seat + 1}} {
			if !member[n] && v.free(n.Row, n.Seat) {
				gaps++
			}
		}
	}
	center := (v.seatsPerRow + 1) * len(cluster) // 2*sum of centered seat numbers
	offCenter := 2*seatSum - center
	if offCenter < 0 {
		offCenter = -offCenter
	}
	return (maxRow-minRow)*1000 + rowSum*50 + gaps*10 + offCenter
}

// fluidFill takes free seats row-major with no adjacency guarantee. It may
// return fewer than quantity seats when the venue is nearly full.
func (v venue) fluidFill(quantity int) []Assigned {
	seats := make([]Assigned, 0, quantity)
	for row := 1; row <= v.rows && len(seats) < quantity; row++ {
		for seat := 1; seat <= v.seatsPerRow && len(seats) < quantity; seat++ {
			if v.free(row, seat) {
				seats = append(seats, Assigned{Row: row, Seat: seat})
			}
		}
	}
	return seats
}

func sortAssigned(seats []Assigned) {
	sort.Slice(seats, func(i, j int) bool {
		if seats[i].Row != seats[j].Row {
			return seats[i].Row < seats[j].Row
		}
		return seats[i].Seat < seats[j].Seat
	})
}
