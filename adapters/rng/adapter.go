package rng

import (
	"context"
	"fmt"
	"math/rand"
)

// Adapter implements ports.RNGPort with math/rand sources
type Adapter struct{}

// NewAdapter creates the seeded stream adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if name != "" {
		seed += int64(hashString(name))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// GridStream derives the stream for one sweep grid point from the base seed
func (a *Adapter) GridStream(ctx context.Context, baseSeed int64, subN, itemN int) (*rand.Rand, error) {
	if subN < 1 || itemN < 1 {
		return nil, fmt.Errorf("grid point (%d, %d) must be positive", subN, itemN)
	}
	key := fmt.Sprintf("grid/sub=%d/item=%d", subN, itemN)
	return rand.New(rand.NewSource(baseSeed + int64(hashString(key)))), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2
	}
	return hash
}
