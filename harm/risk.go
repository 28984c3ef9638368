package harm

import "strings"

// =============================================================================
// RISK MULTIPLIER - One scalar per user, always >= 1.0
// =============================================================================

// RiskWeights turns a UserRiskProfile into a multiplier. Weights are
// configuration; flags missing from the maps contribute nothing.
type RiskWeights struct {
	YouthAge     int // ages below this add YouthWeight
	YouthWeight  float64
	SeniorAge    int // ages at or above this add SeniorWeight
	SeniorWeight float64

	Sex         map[Sex]float64
	Health      map[string]float64
	Psychiatric map[string]float64

	Cap float64 // upper bound, 0 = uncapped
}

// DefaultRiskWeights returns the shipped weights.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		YouthAge:     21,
		YouthWeight:  0.3,
		SeniorAge:    65,
		SeniorWeight: 0.2,
		Sex:          map[Sex]float64{},
		Health: map[string]float64{
			"hepatic":        0.3,
			"cardiovascular": 0.3,
			"respiratory":    0.2,
			"diabetes":       0.2,
			"pregnancy":      0.5,
		},
		Psychiatric: map[string]float64{
			"depression":             0.2,
			"anxiety":                0.15,
			"bipolar":                0.3,
			"psychosis_history":      0.4,
			"substance_use_disorder": 0.4,
		},
		Cap: 2.5,
	}
}

// Multiplier returns 1.0 for a nil profile or one with no recognised factors.
func (w RiskWeights) Multiplier(p *UserRiskProfile) float64 {
	m := 1.0
	if p == nil {
		return m
	}

	if p.Age != nil {
		switch age := *p.Age; {
		case w.YouthAge > 0 && age < w.YouthAge:
			m += w.YouthWeight
		case w.SeniorAge > 0 && age >= w.SeniorAge:
			m += w.SeniorWeight
		}
	}
	m += w.Sex[p.Sex]
	m += sumFlags(w.Health, p.HealthConditions)
	m += sumFlags(w.Psychiatric, p.PsychiatricConditions)

	if w.Cap > 0 && m > w.Cap {
		m = w.Cap
	}
	if m < 1.0 {
		m = 1.0
	}
	return m
}

// sumFlags adds each distinct known flag once.
func sumFlags(weights map[string]float64, flags []string) float64 {
	seen := make(map[string]bool, len(flags))
	total := 0.0
	for _, f := range flags {
		f = strings.ToLower(strings.TrimSpace(f))
		if seen[f] {
			continue
		}
		seen[f] = true
		total += weights[f]
	}
	return total
}
