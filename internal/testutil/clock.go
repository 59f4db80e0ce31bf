package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a manually driven lapse.Clock. With a non-zero step, every
// call to Now moves it forward afterwards, which gives each stored chunk and
// snapshot its own timestamp without sleeping. Safe for concurrent use.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStubClock creates a StubClock that stays at t until advanced.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// NewSteppingClock creates a StubClock that advances by step after every Now.
func NewSteppingClock(t time.Time, step time.Duration) *StubClock {
	return &StubClock{now: t, step: step}
}

// FixedClock returns a StubClock set to the start of a recording,
// 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d, e.g. to open a gap between epochs.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// IDGenerator hands out "<prefix>-1", "<prefix>-2", ... so tests can predict
// epoch and draft identifiers.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewStubIDGenerator returns ids of the form "id-N".
func NewStubIDGenerator() *IDGenerator {
	return NewPrefixedIDGenerator("id")
}

// NewPrefixedIDGenerator returns ids of the form "<prefix>-N".
func NewPrefixedIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
