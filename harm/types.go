/*
Package harm provides the Harm Index Engine.

PURPOSE:
  Turns a user's history of timestamped events (substance use, wellness
  interventions, abstinence breaks) into a bounded "current" score that decays
  over time, an unbounded "all-time" ledger of harm ever logged, and a daily
  time series for charts. Every call site (instant preview, persistence,
  charts) goes through the same pure functions in this package.

KEY CONCEPTS IN THIS FILE (types.go):
  - SubstanceEvent: one logged use, carrying its immutable origin points
  - InterventionEvent: sleep, exercise, therapy... within a 7-day window
  - AbstinenceBreak: a declared period of non-use earning capped credit
  - UserRiskProfile: inputs to the per-user risk multiplier
  - ScoreBreakdown / HarmSnapshot: computed state at one reference instant

DESIGN PRINCIPLES:
  1. Source of truth is always the raw event lists; snapshots are a cache
  2. Origin points are computed once at creation and never re-derived
  3. Scores are replayed from the events, never kept as a running total
  4. Every call takes an explicit user ID, no ambient "current user"

SEE ALSO:
  - calculator.go: origin points for one substance event
  - aggregate.go: the single scoring algorithm
  - replay.go: daily time series built on the aggregator
*/
package harm

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type EventID string

// =============================================================================
// SUBSTANCE EVENTS
// =============================================================================

// Category is a substance category. Categories are configuration data: the
// rate table decides what each one costs, unknown values fall back to defaults.
type Category string

const (
	CategoryAlcohol     Category = "alcohol"
	CategoryCannabis    Category = "cannabis"
	CategoryPsychedelic Category = "psychedelic"
	CategoryStimulant   Category = "stimulant"
	CategoryOther       Category = "other" // custom substances, subtype carries the name
)

// UseContext is the social setting of a use event.
type UseContext string

const (
	ContextSmallSocial UseContext = "small_social"
	ContextParty       UseContext = "party"
	ContextSolo        UseContext = "solo"
	ContextTherapeutic UseContext = "therapeutic"
	ContextWork        UseContext = "work"
	ContextOther       UseContext = "other"
)

// SubstanceEvent is one logged substance use.
//
// OriginPoints and RiskMultiplier are fixed when the event is created. Later
// profile changes never touch them; an edit of the event itself recomputes
// OriginPoints with the stored multiplier. MultiSubstance follows the live
// events of the same UTC day and is refreshed, with the stored multiplier,
// whenever that day's events change.
//
// Unvalued marks rows imported without origin points. Only those are valued
// at aggregation time; a stored zero is a real value.
type SubstanceEvent struct {
	ID         EventID
	UserID     UserID
	Category   Category
	Subtype    string
	Quantity   float64
	Context    UseContext
	OccurredAt time.Time

	OriginPoints   decimal.Decimal
	RiskMultiplier float64
	MultiSubstance bool
	Unvalued       bool

	CreatedAt time.Time
	DeletedAt *time.Time
}

func (e SubstanceEvent) IsDeleted() bool { return e.DeletedAt != nil }

// =============================================================================
// INTERVENTIONS
// =============================================================================

type InterventionKind string

const (
	InterventionSleep      InterventionKind = "sleep"
	InterventionExercise   InterventionKind = "exercise"
	InterventionMeditation InterventionKind = "meditation"
	InterventionHydration  InterventionKind = "hydration"
	InterventionNutrition  InterventionKind = "nutrition"
	InterventionTherapy    InterventionKind = "therapy"
	InterventionSocial     InterventionKind = "social"
)

// InterventionEvent is one logged wellness activity.
// Magnitude units depend on Kind: minutes for sleep, exercise and meditation,
// fluid ounces for hydration; the remaining kinds only need to be logged.
type InterventionEvent struct {
	ID         EventID
	UserID     UserID
	Kind       InterventionKind
	OccurredAt time.Time
	Magnitude  float64
	Quality    *int // 1-10, optional

	CreatedAt time.Time
	DeletedAt *time.Time
}

func (e InterventionEvent) IsDeleted() bool { return e.DeletedAt != nil }

// =============================================================================
// ABSTINENCE BREAKS
// =============================================================================

// ScopeAll marks a break covering every category.
const ScopeAll Category = "all"

type BreakStatus string

const (
	BreakActive     BreakStatus = "active"
	BreakCompleted  BreakStatus = "completed"
	BreakEndedEarly BreakStatus = "ended_early"
)

// AbstinenceBreak is a declared period of non-use. End is nil while ongoing.
type AbstinenceBreak struct {
	ID     EventID
	UserID UserID
	Scope  Category
	Start  Date
	End    *Date
	Status BreakStatus

	CreatedAt time.Time
	DeletedAt *time.Time
}

func (b AbstinenceBreak) IsDeleted() bool { return b.DeletedAt != nil }

// =============================================================================
// RISK PROFILE
// =============================================================================

type Sex string

const (
	SexUnspecified Sex = ""
	SexFemale      Sex = "female"
	SexMale        Sex = "male"
	SexIntersex    Sex = "intersex"
	SexOther       Sex = "other"
)

// UserRiskProfile holds the inputs of the risk multiplier (see risk.go).
type UserRiskProfile struct {
	UserID                UserID
	Age                   *int
	Sex                   Sex
	HealthConditions      []string
	PsychiatricConditions []string
	UpdatedAt             time.Time
}

// =============================================================================
// HISTORY - Everything the aggregator needs for one user
// =============================================================================

// History is the full event history of one user as supplied by a store.
// Order is not assumed; the aggregator sorts by OccurredAt itself.
type History struct {
	UserID        UserID
	Substances    []SubstanceEvent
	Interventions []InterventionEvent
	Breaks        []AbstinenceBreak
	Profile       *UserRiskProfile
}

func (h History) IsEmpty() bool {
	return len(h.Substances) == 0 && len(h.Interventions) == 0 && len(h.Breaks) == 0
}

// =============================================================================
// SCORE BREAKDOWN - Computed state at a reference instant
// =============================================================================

// FactorCounts records how many events contributed to a breakdown.
type FactorCounts struct {
	SubstanceEvents int
	Interventions   int // inside the eligibility window
	Breaks          int // earning credit
}

// ScoreBreakdown is the aggregator output. All amounts are rounded to 2 dp.
type ScoreBreakdown struct {
	UserID UserID
	AsOf   time.Time

	CurrentScore          decimal.Decimal // clamp(SubstanceHarm - InterventionReduction, 0, 100)
	AllTimeScore          decimal.Decimal // undecayed sum of origin points
	SubstanceHarm         decimal.Decimal // decayed sum of origin points
	InterventionReduction decimal.Decimal
	DecayReduction        decimal.Decimal // AllTimeScore - SubstanceHarm, informational

	Factors FactorCounts
}

// ZeroBreakdown is the breakdown of an empty history.
func ZeroBreakdown(userID UserID, asOf time.Time) ScoreBreakdown {
	return ScoreBreakdown{
		UserID:                userID,
		AsOf:                  asOf,
		CurrentScore:          decimal.Zero,
		AllTimeScore:          decimal.Zero,
		SubstanceHarm:         decimal.Zero,
		InterventionReduction: decimal.Zero,
		DecayReduction:        decimal.Zero,
	}
}

// =============================================================================
// HARM SNAPSHOT - One persisted row per user per calendar day
// =============================================================================

// HarmSnapshot is the stored daily summary. (UserID, Date) is unique.
type HarmSnapshot struct {
	UserID UserID
	Date   Date

	Score                 decimal.Decimal
	AllTimeScore          decimal.Decimal
	SubstanceHarm         decimal.Decimal
	InterventionReduction decimal.Decimal
	DecayReduction        decimal.Decimal
	Factors               FactorCounts
}

// NewSnapshot builds the row stored for date from a breakdown.
func NewSnapshot(date Date, b ScoreBreakdown) HarmSnapshot {
	return HarmSnapshot{
		UserID:                b.UserID,
		Date:                  date,
		Score:                 b.CurrentScore,
		AllTimeScore:          b.AllTimeScore,
		SubstanceHarm:         b.SubstanceHarm,
		InterventionReduction: b.InterventionReduction,
		DecayReduction:        b.DecayReduction,
		Factors:               b.Factors,
	}
}
