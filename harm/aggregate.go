/*
aggregate.go - The single scoring algorithm

PURPOSE:
  Given one user's full history and a reference instant, computes the current
  score, the all-time score and the breakdown. The logging preview, the
  snapshot writer and the chart replay all go through Aggregate; there is no
  second formula anywhere.

ALGORITHM:
  1. Sort substance events by OccurredAt (storage order is never trusted) and
     drop soft-deleted ones and anything after the reference instant.
  2. For each event: residual = Decay(origin, half_life(category), elapsed).
     SubstanceHarm += residual, AllTimeScore += origin.
  3. InterventionReduction = sum of eligible intervention points + break credit.
  4. DecayReduction = AllTimeScore - SubstanceHarm.
  5. CurrentScore = clamp(SubstanceHarm - InterventionReduction, 0, 100).

INVARIANTS:
  - CurrentScore in [0, 100]
  - AllTimeScore >= 0, never decayed or reduced, non-decreasing as events
    are added
  - Empty history -> all zeros, not an error

SEE ALSO:
  - decay.go, reducer.go, calculator.go: per-event math
  - replay.go: repeated Aggregate across days
*/
package harm

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ScoreFloor   = 0.0
	ScoreCeiling = 100.0
)

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator holds the configuration of the engine. It is immutable after
// construction and safe for concurrent use.
type Aggregator struct {
	Rates *RateTable
	Risk  RiskWeights
}

// NewAggregator creates an aggregator over rates with the default risk weights.
func NewAggregator(rates *RateTable) *Aggregator {
	return &Aggregator{Rates: rates, Risk: DefaultRiskWeights()}
}

// OriginPoints values a draft event for the given profile. This is the one
// entry point for both the instant preview and persistence.
func (a *Aggregator) OriginPoints(in OriginInput) (decimal.Decimal, error) {
	return ComputeOriginPoints(a.Rates, in)
}

// Aggregate computes the breakdown of h as of at.
func (a *Aggregator) Aggregate(h History, at time.Time) (ScoreBreakdown, error) {
	return a.aggregatePrepared(prepare(h), at)
}

// =============================================================================
// PREPARED HISTORY - Sorted, live-only copy
// =============================================================================

type preparedHistory struct {
	userID        UserID
	substances    []SubstanceEvent
	interventions []InterventionEvent
	breaks        []AbstinenceBreak
	profile       *UserRiskProfile
}

// prepare copies the live events and sorts them chronologically, ties broken
// by ID, so summation order (and therefore rounding) is reproducible.
func prepare(h History) preparedHistory {
	p := preparedHistory{userID: h.UserID, profile: h.Profile}

	for _, e := range h.Substances {
		if !e.IsDeleted() {
			p.substances = append(p.substances, e)
		}
	}
	sort.SliceStable(p.substances, func(i, j int) bool {
		a, b := p.substances[i], p.substances[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})

	for _, e := range h.Interventions {
		if !e.IsDeleted() {
			p.interventions = append(p.interventions, e)
		}
	}
	sort.SliceStable(p.interventions, func(i, j int) bool {
		a, b := p.interventions[i], p.interventions[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})

	for _, b := range h.Breaks {
		if !b.IsDeleted() {
			p.breaks = append(p.breaks, b)
		}
	}
	sort.SliceStable(p.breaks, func(i, j int) bool {
		a, b := p.breaks[i], p.breaks[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})

	return p
}

func (a *Aggregator) aggregatePrepared(p preparedHistory, at time.Time) (ScoreBreakdown, error) {
	out := ZeroBreakdown(p.userID, at)

	var (
		substanceHarm float64
		allTime       float64
		reduction     float64
	)

	// 1-2. Substance harm, decayed and raw.
	for _, e := range p.substances {
		if e.OccurredAt.After(at) {
			break // sorted: everything after is in the future too
		}
		origin, err := a.originOf(e, p.profile)
		if err != nil {
			return ScoreBreakdown{}, err
		}
		residual, err := Decay(origin, a.Rates.HalfLifeDays(e.Category), ElapsedDays(e.OccurredAt, at))
		if err != nil {
			return ScoreBreakdown{}, err
		}
		substanceHarm += residual
		allTime += origin
		out.Factors.SubstanceEvents++
	}

	// 3. Interventions inside the window plus abstinence credit.
	for _, e := range p.interventions {
		if e.OccurredAt.After(at) {
			break
		}
		if !InterventionEligible(at, e.OccurredAt) {
			continue
		}
		reduction += ComputeReduction(e.Kind, e.Magnitude, e.Quality, at, e.OccurredAt)
		out.Factors.Interventions++
	}
	for _, b := range p.breaks {
		days, ok := BreakDaysElapsed(b, at)
		if !ok {
			continue
		}
		reduction += ComputeBreakCredit(days)
		out.Factors.Breaks++
	}

	// 4-5. Rounded components; the score derives from the rounded parts so a
	// stored snapshot is self-consistent.
	out.SubstanceHarm = RoundPoints(substanceHarm)
	out.AllTimeScore = RoundPoints(allTime)
	out.InterventionReduction = RoundPoints(reduction)
	out.DecayReduction = out.AllTimeScore.Sub(out.SubstanceHarm)
	if out.DecayReduction.IsNegative() {
		out.DecayReduction = decimal.Zero
	}
	out.CurrentScore = clampScore(out.SubstanceHarm.Sub(out.InterventionReduction))

	return out, nil
}

// originOf returns the stored origin points, valuing Unvalued rows with the
// supplied profile.
func (a *Aggregator) originOf(e SubstanceEvent, profile *UserRiskProfile) (float64, error) {
	if !e.Unvalued || e.Quantity <= 0 {
		return e.OriginPoints.InexactFloat64(), nil
	}
	d, err := ComputeOriginPoints(a.Rates, OriginInput{
		Category:       e.Category,
		Subtype:        e.Subtype,
		Quantity:       e.Quantity,
		Context:        e.Context,
		RiskMultiplier: a.Risk.Multiplier(profile),
	})
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

var (
	scoreFloor   = decimal.NewFromFloat(ScoreFloor)
	scoreCeiling = decimal.NewFromFloat(ScoreCeiling)
)

func clampScore(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(scoreFloor) {
		return scoreFloor
	}
	if v.GreaterThan(scoreCeiling) {
		return scoreCeiling
	}
	return v
}
