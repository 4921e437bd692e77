package rng

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockedCountsDraws(t *testing.T) {
	l := NewLocked(rand.New(rand.NewSource(1)))
	assert.Zero(t, l.Draws())

	l.Float64()
	l.NormFloat64()
	assert.Equal(t, int64(2), l.Draws())
	assert.Same(t, l, NewLocked(l))
}

func TestLockedMatchesUnderlyingStream(t *testing.T) {
	ref := rand.New(rand.NewSource(42))
	l := NewLocked(rand.New(rand.NewSource(42)))
	for i := 0; i < 10; i++ {
		assert.Equal(t, ref.NormFloat64(), l.NormFloat64())
	}
}

func TestSequencerOrdersTurns(t *testing.T) {
	const n = 50
	seq := NewSequencer(n)
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := seq.Do(context.Background(), i, func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestSequencerHonoursCancellation(t *testing.T) {
	seq := NewSequencer(3)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := seq.Do(ctx, 2, func() { ran = true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}
