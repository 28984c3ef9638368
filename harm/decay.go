package harm

import (
	"fmt"
	"math"
)

// =============================================================================
// DECAY FUNCTION
// =============================================================================

// Decay returns the residual of origin points after elapsedDays:
//
//	lambda = ln(2) / halfLifeDays
//	result = origin * exp(-lambda * elapsedDays)
//
// Decay(p, h, 0) == p, the result is non-increasing in elapsedDays and never
// negative for p >= 0.
func Decay(origin, halfLifeDays, elapsedDays float64) (float64, error) {
	if !(halfLifeDays > 0) {
		return 0, fmt.Errorf("half-life %v: %w", halfLifeDays, ErrInvalidHalfLife)
	}
	if elapsedDays < 0 || math.IsNaN(elapsedDays) {
		return 0, fmt.Errorf("elapsed %v days: %w", elapsedDays, ErrInvalidInterval)
	}
	if elapsedDays == 0 {
		return origin, nil
	}
	lambda := math.Ln2 / halfLifeDays
	return origin * math.Exp(-lambda*elapsedDays), nil
}
