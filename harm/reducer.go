/*
reducer.go - Intervention and abstinence reduction points

PURPOSE:
  Converts logged interventions and abstinence breaks into points subtracted
  from decayed substance harm.

INTERVENTION RULES (magnitude in minutes unless noted):
  sleep       quality good/excellent -> 3, fair -> 1.5, else 0
  exercise    >= 30 min -> 2, >= 15 min -> 1
  meditation  >= 10 min -> 1.5, >= 5 min -> 0.75
  hydration   >= 64 oz -> 1, >= 32 oz -> 0.5
  nutrition   logged -> 1
  therapy     session -> 2.5
  social      logged -> 1

ELIGIBILITY:
  An intervention counts only while ref - occurred <= 7 days. Past the window
  it contributes exactly 0: a hard cutoff, not a decay.

ABSTINENCE CREDIT:
  Not windowed. min(days_elapsed, 28) * 4 per active or completed break.

SEE ALSO:
  - aggregate.go: sums reductions into InterventionReduction
*/
package harm

import "time"

const (
	// InterventionWindow is the eligibility window of an intervention.
	InterventionWindow = 7 * 24 * time.Hour

	// BreakCreditCapDays caps abstinence credit at four weeks.
	BreakCreditCapDays = 28

	// BreakCreditPerDay is the credit earned per abstinent day.
	BreakCreditPerDay = 4.0
)

// =============================================================================
// SLEEP QUALITY
// =============================================================================

type SleepQuality string

const (
	SleepPoor      SleepQuality = "poor"
	SleepFair      SleepQuality = "fair"
	SleepGood      SleepQuality = "good"
	SleepExcellent SleepQuality = "excellent"
)

// ClassifySleep maps a 1-10 rating to a quality band. Without a rating the
// duration decides: 7h or more is good, 5h or more fair.
func ClassifySleep(quality *int, minutes float64) SleepQuality {
	if quality != nil {
		switch q := *quality; {
		case q >= 9:
			return SleepExcellent
		case q >= 7:
			return SleepGood
		case q >= 4:
			return SleepFair
		default:
			return SleepPoor
		}
	}
	switch {
	case minutes >= 7*60:
		return SleepGood
	case minutes >= 5*60:
		return SleepFair
	default:
		return SleepPoor
	}
}

// =============================================================================
// INTERVENTION REDUCTION
// =============================================================================

// InterventionEligible reports whether an intervention at occurred counts as
// of ref. Interventions after ref never count.
func InterventionEligible(ref, occurred time.Time) bool {
	age := ref.Sub(occurred)
	return age >= 0 && age <= InterventionWindow
}

// ComputeReduction returns the reduction points of one intervention as of ref.
func ComputeReduction(kind InterventionKind, magnitude float64, quality *int, ref, occurred time.Time) float64 {
	if !InterventionEligible(ref, occurred) {
		return 0
	}
	return interventionPoints(kind, magnitude, quality)
}

func interventionPoints(kind InterventionKind, magnitude float64, quality *int) float64 {
	switch kind {
	case InterventionSleep:
		switch ClassifySleep(quality, magnitude) {
		case SleepGood, SleepExcellent:
			return 3
		case SleepFair:
			return 1.5
		}
		return 0

	case InterventionExercise:
		switch {
		case magnitude >= 30:
			return 2
		case magnitude >= 15:
			return 1
		}
		return 0

	case InterventionMeditation:
		switch {
		case magnitude >= 10:
			return 1.5
		case magnitude >= 5:
			return 0.75
		}
		return 0

	case InterventionHydration:
		switch {
		case magnitude >= 64:
			return 1
		case magnitude >= 32:
			return 0.5
		}
		return 0

	case InterventionNutrition:
		return 1
	case InterventionTherapy:
		return 2.5
	case InterventionSocial:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// ABSTINENCE CREDIT
// =============================================================================

// ComputeBreakCredit returns min(daysElapsed, 28) * 4. Negative input earns 0.
func ComputeBreakCredit(daysElapsed int) float64 {
	if daysElapsed <= 0 {
		return 0
	}
	if daysElapsed > BreakCreditCapDays {
		daysElapsed = BreakCreditCapDays
	}
	return float64(daysElapsed) * BreakCreditPerDay
}

// BreakDaysElapsed returns the whole abstinent days of b as of ref and whether
// the break earns credit at all. Only active and completed breaks that have
// started by ref earn credit; the count runs from Start to the earlier of End
// and ref's calendar day.
func BreakDaysElapsed(b AbstinenceBreak, ref time.Time) (int, bool) {
	if b.IsDeleted() {
		return 0, false
	}
	if b.Status != BreakActive && b.Status != BreakCompleted {
		return 0, false
	}
	refDay := DateOf(ref)
	if b.Start.After(refDay) {
		return 0, false
	}
	last := refDay
	if b.End != nil {
		last = minDate(*b.End, refDay)
	}
	days := DaysBetween(b.Start, last)
	if days < 0 {
		days = 0
	}
	return days, true
}
