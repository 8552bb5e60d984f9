// Package timeutil supplies the clock runs are stamped with.
package timeutil

import (
	"sync"
	"time"
)

// Clock reads the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Elapsed returns the time on c since start.
func Elapsed(c Clock, start time.Time) time.Duration {
	return c.Now().Sub(start)
}

// StepClock is a deterministic clock for tests. Every Now call returns the
// current reading and then moves it forward by Step.
type StepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepClock returns a clock that first reads start and advances by step
// on each read.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{next: start, step: step}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Skip moves the next reading forward by d without consuming a read.
func (c *StepClock) Skip(d time.Duration) {
	c.mu.Lock()
	c.next = c.next.Add(d)
	c.mu.Unlock()
}
