// Package clock supplies the discrete time unit the hub schedules against.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current discrete time unit.
type Clock interface {
	Now() uint64
}

// Manual is a clock advanced explicitly. The zero value starts at 0.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

// NewManual creates a manual clock at start.
func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by n units and returns the new time.
func (m *Manual) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += n
	return m.now
}

// Set jumps the clock to t.
func (m *Manual) Set(t uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Wall derives time units from wall-clock time as the number of whole steps
// elapsed since genesis.
type Wall struct {
	genesis time.Time
	step    time.Duration
	now     func() time.Time
}

// NewWall creates a wall clock. A non-positive step defaults to one second.
func NewWall(genesis time.Time, step time.Duration) *Wall {
	if step <= 0 {
		step = time.Second
	}
	return &Wall{genesis: genesis, step: step, now: time.Now}
}

func (w *Wall) Now() uint64 {
	elapsed := w.now().Sub(w.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / w.step)
}

// Step returns the duration of one time unit.
func (w *Wall) Step() time.Duration { return w.step }
