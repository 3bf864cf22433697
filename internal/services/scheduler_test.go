package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid afternoon",
			now:  time.Date(2025, 6, 1, 15, 30, 0, 0, loc),
			want: time.Date(2025, 6, 2, 0, 0, 0, 0, loc),
		},
		{
			name: "exactly midnight schedules the next day",
			now:  time.Date(2025, 6, 1, 0, 0, 0, 0, loc),
			want: time.Date(2025, 6, 2, 0, 0, 0, 0, loc),
		},
		{
			name: "one second before midnight",
			now:  time.Date(2025, 6, 1, 23, 59, 59, 0, loc),
			want: time.Date(2025, 6, 2, 0, 0, 0, 0, loc),
		},
		{
			name: "month rollover",
			now:  time.Date(2025, 6, 30, 12, 0, 0, 0, loc),
			want: time.Date(2025, 7, 1, 0, 0, 0, 0, loc),
		},
		{
			name: "year rollover",
			now:  time.Date(2025, 12, 31, 18, 0, 0, 0, loc),
			want: time.Date(2026, 1, 1, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, NextMidnight(tt.now, loc).Equal(tt.want))
		})
	}
}

func TestNextMidnight_AcrossDSTTransition(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	// 2025-03-30 is the spring-forward night in Rome: the day is 23h long.
	now := time.Date(2025, 3, 29, 22, 0, 0, 0, loc)
	next := NextMidnight(now, loc)
	assert.Equal(t, time.Date(2025, 3, 30, 0, 0, 0, 0, loc).Unix(), next.Unix())
	// And from inside the short day the following midnight is still 00:00.
	after := NextMidnight(next.Add(time.Hour), loc)
	assert.Equal(t, 0, after.Hour())
	assert.Equal(t, 31, after.Day())
}

func TestNextFixedHour(t *testing.T) {
	loc := time.UTC

	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "before the hour fires today",
			now:  time.Date(2025, 6, 1, 9, 0, 0, 0, loc),
			hour: 13,
			want: time.Date(2025, 6, 1, 13, 0, 0, 0, loc),
		},
		{
			name: "after the hour fires tomorrow",
			now:  time.Date(2025, 6, 1, 14, 0, 0, 0, loc),
			hour: 13,
			want: time.Date(2025, 6, 2, 13, 0, 0, 0, loc),
		},
		{
			name: "exactly on the hour fires tomorrow",
			now:  time.Date(2025, 6, 1, 13, 0, 0, 0, loc),
			hour: 13,
			want: time.Date(2025, 6, 2, 13, 0, 0, 0, loc),
		},
		{
			name: "one nanosecond before still fires today",
			now:  time.Date(2025, 6, 1, 12, 59, 59, 999999999, loc),
			hour: 13,
			want: time.Date(2025, 6, 1, 13, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, NextFixedHour(tt.now, loc, tt.hour).Equal(tt.want))
		})
	}
}
