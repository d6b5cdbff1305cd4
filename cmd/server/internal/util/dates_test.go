package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDays(t *testing.T) {
	tests := []struct {
		date string
		n    int
		want string
	}{
		{"2024-03-10", 0, "2024-03-10"},
		{"2024-03-10", 1, "2024-03-11"},
		{"2024-02-28", 1, "2024-02-29"},
		{"2023-12-31", 1, "2024-01-01"},
		{"2024-03-01", -1, "2024-02-29"},
	}
	for _, tt := range tests {
		got, err := AddDays(tt.date, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := AddDays("2024/03/10", 1)
	assert.Error(t, err)
}

func TestCompareDatesAndDaysBetween(t *testing.T) {
	c, err := CompareDates("2024-03-09", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = CompareDates("2024-03-10", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = CompareDates("2024-03-11", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	d, err := DaysBetween("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, 30, d)

	_, err = CompareDates("bad", "2024-03-10")
	assert.Error(t, err)
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, "2024-03-10", Today(clock))

	clock.AddDays(2)
	assert.Equal(t, "2024-03-12", Today(clock))

	clock.Set(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-01-01", Today(clock))
}

func TestSystemClockLocation(t *testing.T) {
	loc := time.FixedZone("UTC+14", 14*3600)
	clock := SystemClock{Location: loc}
	assert.Equal(t, loc, clock.Now().Location())
}
