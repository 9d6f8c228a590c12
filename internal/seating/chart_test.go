package seating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowLabel(t *testing.T) {
	assert.Equal(t, "A", RowLabel(1))
	assert.Equal(t, "Z", RowLabel(26))
	assert.Equal(t, "AA", RowLabel(27))
	assert.Equal(t, "AB", RowLabel(28))
	assert.Equal(t, "AZ", RowLabel(52))
	assert.Equal(t, "BA", RowLabel(53))
}

func TestChartMarksZonesAndOccupancy(t *testing.T) {
	occupied := map[SeatRef]bool{
		{Row: 1, Seat: 1}: true,
		{Row: 2, Seat: 5}: true,
	}
	got := Chart(occupied, 2, 8)
	want := "A x.|....|..\n" +
		"B ..|..x.|..\n"
	assert.Equal(t, want, got)
}
