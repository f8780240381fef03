package utils

import (
	"testing"
	"time"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(3 * time.Second)
	if got := c.Since(start); got != 3*time.Second {
		t.Fatalf("Since = %v, want 3s", got)
	}
}

func TestHoursToDuration(t *testing.T) {
	tests := []struct {
		hours float64
		want  time.Duration
	}{
		{0, 0},
		{0.0002, 0},
		{0.5, 30 * time.Minute},
		{2, 2 * time.Hour},
	}
	for _, tt := range tests {
		if got := HoursToDuration(tt.hours, 0.0002); got != tt.want {
			t.Errorf("HoursToDuration(%v) = %v, want %v", tt.hours, got, tt.want)
		}
	}
}
