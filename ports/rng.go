package ports

import (
	"context"
	"math/rand"
)

// RNG is the entropy source consumed by design generation and response
// simulation. *rand.Rand satisfies it.
type RNG interface {
	Float64() float64
	NormFloat64() float64
}

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// GridStream derives an independent stream for one sweep grid point, so
	// results at (subN, itemN) do not depend on which other points ran
	GridStream(ctx context.Context, baseSeed int64, subN, itemN int) (*rand.Rand, error)
}
