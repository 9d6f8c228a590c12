package seating

import "strings"

// Chart renders the occupancy grid as text for the venue debug endpoint.
// Rows are labelled A, B, C, ... from the front; '.' is a free seat, 'x'
// an occupied one, and '|' separates the accessibility zones from the
// normal zone. Output is deterministic for a given occupied set.
func Chart(occupied map[SeatRef]bool, rows, seatsPerRow int) string {
	var b strings.Builder
	for row := 1; row <= rows; row++ {
		b.WriteString(RowLabel(row))
		b.WriteByte(' ')
		for seat := 1; seat <= seatsPerRow; seat++ {
			if seat == edgeZone+1 || seat == seatsPerRow-edgeZone+1 {
				b.WriteByte('|')
			}
			if occupied[SeatRef{Row: row, Seat: seat}] {
				b.WriteByte('x')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// RowLabel converts a 1-indexed row number to its spreadsheet-style
// letter label: 1 -> A, 26 -> Z, 27 -> AA.
func RowLabel(row int) string {
	label := ""
	for row > 0 {
		row--
		label = string(rune('A'+row%26)) + label
		row /= 26
	}
	return label
}
