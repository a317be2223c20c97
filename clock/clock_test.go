package clock

import (
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	c := NewManual(10)
	if c.Now() != 10 {
		t.Fatalf("Now = %d", c.Now())
	}
	if got := c.Advance(5); got != 15 {
		t.Errorf("Advance = %d", got)
	}
	c.Set(3)
	if c.Now() != 3 {
		t.Errorf("Set: Now = %d", c.Now())
	}
}

func TestWall(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewWall(genesis, 3*time.Second)

	tests := []struct {
		at   time.Time
		want uint64
	}{
		{genesis.Add(-time.Minute), 0},
		{genesis, 0},
		{genesis.Add(2999 * time.Millisecond), 0},
		{genesis.Add(3 * time.Second), 1},
		{genesis.Add(time.Minute), 20},
	}
	for _, tt := range tests {
		w.now = func() time.Time { return tt.at }
		if got := w.Now(); got != tt.want {
			t.Errorf("Now at %s = %d, want %d", tt.at.Sub(genesis), got, tt.want)
		}
	}

	if NewWall(genesis, 0).Step() != time.Second {
		t.Error("zero step should default to one second")
	}
}
