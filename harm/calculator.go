package harm

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HARM POINT CALCULATOR - Origin points for one substance event
// =============================================================================

// MultiSubstanceMultiplier applies when another category was used the same day.
const MultiSubstanceMultiplier = 1.5

// OriginInput is everything that determines an event's origin points.
type OriginInput struct {
	Category              Category
	Subtype               string
	Quantity              float64
	Context               UseContext
	RiskMultiplier        float64 // values below 1.0 (including unset) count as 1.0
	SameDayMultiSubstance bool
}

// ContextMultiplier scales base harm by the setting of use.
func ContextMultiplier(c UseContext) float64 {
	switch c {
	case ContextParty:
		return 1.2
	case ContextSolo:
		return 1.5
	case ContextTherapeutic:
		return 0.7
	default:
		return 1.0
	}
}

// ComputeOriginPoints converts one substance-use event into origin points:
//
//	base   = base_rate(category, subtype) * quantity
//	points = base * context * risk [* 1.5 if same-day multi-substance]
//
// rounded to 2 decimal places. Quantity <= 0 is rejected; substituting a
// default quantity is the caller's decision, never made here.
func ComputeOriginPoints(rates *RateTable, in OriginInput) (decimal.Decimal, error) {
	if !(in.Quantity > 0) || math.IsInf(in.Quantity, 0) {
		return decimal.Zero, &InvalidQuantityError{Quantity: in.Quantity}
	}

	base := rates.BaseRate(in.Category, in.Subtype) * in.Quantity
	points := base * ContextMultiplier(in.Context) * effectiveRisk(in.RiskMultiplier)
	if in.SameDayMultiSubstance {
		points *= MultiSubstanceMultiplier
	}
	return RoundPoints(points), nil
}

// RoundPoints rounds to 2 dp. Every stored amount goes through here so that
// recomputation never drifts.
func RoundPoints(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(2)
}

func effectiveRisk(m float64) float64 {
	if m < 1.0 || math.IsNaN(m) {
		return 1.0
	}
	return m
}

// =============================================================================
// SAME-DAY MULTI-SUBSTANCE DETECTION
// =============================================================================

// SameDayMultiSubstance reports whether any other live event of the same user
// falls on the same UTC calendar day as (category, at) with a different
// category. exclude skips the event being edited.
func SameDayMultiSubstance(existing []SubstanceEvent, category Category, at time.Time, exclude EventID) bool {
	day := DateOf(at)
	for _, e := range existing {
		if e.IsDeleted() || (exclude != "" && e.ID == exclude) {
			continue
		}
		if e.Category != category && day.Contains(e.OccurredAt) {
			return true
		}
	}
	return false
}

// ReflagSameDay re-evaluates the multi-substance flag of every live, valued
// event on the given days. It returns copies of the events whose flag
// changed, with MultiSubstance already set to the new value.
func ReflagSameDay(events []SubstanceEvent, days ...Date) []SubstanceEvent {
	var changed []SubstanceEvent
	for _, e := range events {
		if e.IsDeleted() || e.Unvalued || !onAnyDay(e.OccurredAt, days) {
			continue
		}
		multi := SameDayMultiSubstance(events, e.Category, e.OccurredAt, e.ID)
		if multi != e.MultiSubstance {
			e.MultiSubstance = multi
			changed = append(changed, e)
		}
	}
	return changed
}

func onAnyDay(t time.Time, days []Date) bool {
	for _, d := range days {
		if d.Contains(t) {
			return true
		}
	}
	return false
}
