// Package rng serialises access to a shared random number generator so a
// Monte Carlo run consumes the same draws regardless of worker count.
package rng

import (
	"context"
	"sync"
	"sync/atomic"

	"mixedpower/ports"
)

// Locked wraps an RNG with a mutex around every draw-and-advance and counts
// the draws it hands out.
type Locked struct {
	mu    sync.Mutex
	src   ports.RNG
	draws atomic.Int64
}

// NewLocked wraps src. Wrapping an existing *Locked returns it unchanged.
func NewLocked(src ports.RNG) *Locked {
	if l, ok := src.(*Locked); ok {
		return l
	}
	return &Locked{src: src}
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.draws.Add(1)
	return l.src.Float64()
}

func (l *Locked) NormFloat64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.draws.Add(1)
	return l.src.NormFloat64()
}

// Draws returns how many values have been drawn through the wrapper
func (l *Locked) Draws() int64 {
	return l.draws.Load()
}

// Sequencer hands out turns 0, 1, 2, ... in order. A caller holding turn i
// runs only after turn i-1 has finished, which fixes the order in which
// replicates consume the shared stream.
type Sequencer struct {
	turns []chan struct{}
}

// NewSequencer creates a sequencer for n turns
func NewSequencer(n int) *Sequencer {
	turns := make([]chan struct{}, n+1)
	for i := range turns {
		turns[i] = make(chan struct{})
	}
	close(turns[0])
	return &Sequencer{turns: turns}
}

// Do waits for turn i, runs fn and passes the turn on. It returns the
// context error if ctx is cancelled while waiting; fn is then not run.
// The turn is passed on even if fn panics.
func (s *Sequencer) Do(ctx context.Context, i int, fn func()) error {
	select {
	case <-s.turns[i]:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer close(s.turns[i+1])
	fn()
	return nil
}
