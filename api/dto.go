/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

ENCODING:
  - Scores and points are decimal strings rounded to 2 places ("12.34")
  - Calendar days are "YYYY-MM-DD" (UTC)
  - Instants are RFC3339

VALIDATION:
  Validation is done in the tracker and engine, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rates.go: RateTableJSON
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/harm-index/factory"
	"github.com/warp/harm-index/harm"
	"github.com/warp/harm-index/tracker"
)

// =============================================================================
// SCORES
// =============================================================================

// FactorsDTO counts what contributed to a breakdown.
type FactorsDTO struct {
	SubstanceEvents int `json:"substance_events"`
	Interventions   int `json:"interventions"`
	Breaks          int `json:"breaks"`
}

// BreakdownDTO is a score breakdown.
type BreakdownDTO struct {
	UserID                string     `json:"user_id"`
	AsOf                  string     `json:"as_of"`
	CurrentScore          string     `json:"current_score"`
	AllTimeScore          string     `json:"all_time_score"`
	SubstanceHarm         string     `json:"substance_harm"`
	InterventionReduction string     `json:"intervention_reduction"`
	DecayReduction        string     `json:"decay_reduction"`
	Factors               FactorsDTO `json:"factors"`

	// Degraded is set when the history could not be loaded and the values
	// are zeros rather than the user's real score.
	Degraded bool   `json:"degraded,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// AllTimeDTO is the undecayed total.
type AllTimeDTO struct {
	UserID       string `json:"user_id"`
	AllTimeScore string `json:"all_time_score"`
	Degraded     bool   `json:"degraded,omitempty"`
	Warning      string `json:"warning,omitempty"`
}

// PointDTO is one day of a replayed history.
type PointDTO struct {
	Date  string `json:"date"`
	Score string `json:"score"`
}

// HistoryResponse wraps a replay.
type HistoryResponse struct {
	UserID string     `json:"user_id"`
	From   string     `json:"from"`
	To     string     `json:"to"`
	Points []PointDTO `json:"points"`
}

// SnapshotDTO is one stored daily row.
type SnapshotDTO struct {
	Date                  string     `json:"date"`
	Score                 string     `json:"score"`
	AllTimeScore          string     `json:"all_time_score"`
	SubstanceHarm         string     `json:"substance_harm"`
	InterventionReduction string     `json:"intervention_reduction"`
	DecayReduction        string     `json:"decay_reduction"`
	Factors               FactorsDTO `json:"factors"`
}

// =============================================================================
// SUBSTANCE EVENTS
// =============================================================================

// SubstanceRequest creates, updates, or previews a substance event.
type SubstanceRequest struct {
	Category   string  `json:"category"`
	Subtype    string  `json:"subtype"`
	Quantity   float64 `json:"quantity"`
	Context    string  `json:"context"`
	OccurredAt string  `json:"occurred_at,omitempty"` // RFC3339, empty = now
}

// SubstanceEventDTO is a stored substance event.
type SubstanceEventDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Category       string  `json:"category"`
	Subtype        string  `json:"subtype"`
	Quantity       float64 `json:"quantity"`
	Context        string  `json:"context"`
	OccurredAt     string  `json:"occurred_at"`
	OriginPoints   string  `json:"origin_points"`
	RiskMultiplier float64 `json:"risk_multiplier"`
	MultiSubstance bool    `json:"multi_substance"`
	SnapshotStale  bool    `json:"snapshot_stale,omitempty"`
}

// PreviewDTO is the instant valuation of a draft.
type PreviewDTO struct {
	OriginPoints   string       `json:"origin_points"`
	RiskMultiplier float64      `json:"risk_multiplier"`
	MultiSubstance bool         `json:"multi_substance"`
	BaseRate       float64      `json:"base_rate"`
	HalfLifeDays   float64      `json:"half_life_days"`
	RateFallback   bool         `json:"rate_fallback,omitempty"`
	Projected      BreakdownDTO `json:"projected"`
}

// =============================================================================
// INTERVENTIONS
// =============================================================================

// InterventionRequest logs an intervention.
type InterventionRequest struct {
	Kind       string  `json:"kind"`
	Magnitude  float64 `json:"magnitude"`
	Quality    *int    `json:"quality,omitempty"`
	OccurredAt string  `json:"occurred_at,omitempty"`
}

// InterventionDTO is a stored intervention.
type InterventionDTO struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	Kind          string  `json:"kind"`
	Magnitude     float64 `json:"magnitude"`
	Quality       *int    `json:"quality,omitempty"`
	OccurredAt    string  `json:"occurred_at"`
	SnapshotStale bool    `json:"snapshot_stale,omitempty"`
}

// =============================================================================
// BREAKS
// =============================================================================

// StartBreakRequest starts an abstinence break.
type StartBreakRequest struct {
	Scope string `json:"scope,omitempty"` // category or "all"
	Start string `json:"start,omitempty"` // YYYY-MM-DD, empty = today
}

// CloseBreakRequest completes or ends a break.
type CloseBreakRequest struct {
	End string `json:"end,omitempty"` // YYYY-MM-DD, empty = today
}

// BreakDTO is a stored abstinence break.
type BreakDTO struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	Scope         string  `json:"scope"`
	Start         string  `json:"start"`
	End           *string `json:"end,omitempty"`
	Status        string  `json:"status"`
	SnapshotStale bool    `json:"snapshot_stale,omitempty"`
}

// =============================================================================
// RISK PROFILE
// =============================================================================

// RiskProfileRequest replaces a user's risk profile.
type RiskProfileRequest struct {
	Age                   *int     `json:"age,omitempty"`
	Sex                   string   `json:"sex,omitempty"`
	HealthConditions      []string `json:"health_conditions"`
	PsychiatricConditions []string `json:"psychiatric_conditions"`
}

// RiskProfileDTO is a stored risk profile with its current multiplier.
type RiskProfileDTO struct {
	UserID                string   `json:"user_id"`
	Age                   *int     `json:"age,omitempty"`
	Sex                   string   `json:"sex,omitempty"`
	HealthConditions      []string `json:"health_conditions"`
	PsychiatricConditions []string `json:"psychiatric_conditions"`
	RiskMultiplier        float64  `json:"risk_multiplier"`
	SnapshotStale         bool     `json:"snapshot_stale,omitempty"`
}

// =============================================================================
// ADMIN
// =============================================================================

// RecomputeResponse reports snapshot refreshes.
type RecomputeResponse struct {
	Users     int               `json:"users"`
	Succeeded int               `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// RatesResponse exposes the active rate table.
type RatesResponse = factory.RateTableJSON

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func fixed(d decimal.Decimal) string { return d.StringFixed(2) }

func toFactorsDTO(f harm.FactorCounts) FactorsDTO {
	return FactorsDTO{SubstanceEvents: f.SubstanceEvents, Interventions: f.Interventions, Breaks: f.Breaks}
}

func toBreakdownDTO(b harm.ScoreBreakdown) BreakdownDTO {
	return BreakdownDTO{
		UserID:                string(b.UserID),
		AsOf:                  b.AsOf.UTC().Format(time.RFC3339),
		CurrentScore:          fixed(b.CurrentScore),
		AllTimeScore:          fixed(b.AllTimeScore),
		SubstanceHarm:         fixed(b.SubstanceHarm),
		InterventionReduction: fixed(b.InterventionReduction),
		DecayReduction:        fixed(b.DecayReduction),
		Factors:               toFactorsDTO(b.Factors),
	}
}

func toSnapshotDTO(s harm.HarmSnapshot) SnapshotDTO {
	return SnapshotDTO{
		Date:                  s.Date.String(),
		Score:                 fixed(s.Score),
		AllTimeScore:          fixed(s.AllTimeScore),
		SubstanceHarm:         fixed(s.SubstanceHarm),
		InterventionReduction: fixed(s.InterventionReduction),
		DecayReduction:        fixed(s.DecayReduction),
		Factors:               toFactorsDTO(s.Factors),
	}
}

func toSubstanceDTO(e harm.SubstanceEvent) SubstanceEventDTO {
	return SubstanceEventDTO{
		ID:             string(e.ID),
		UserID:         string(e.UserID),
		Category:       string(e.Category),
		Subtype:        e.Subtype,
		Quantity:       e.Quantity,
		Context:        string(e.Context),
		OccurredAt:     e.OccurredAt.UTC().Format(time.RFC3339),
		OriginPoints:   fixed(e.OriginPoints),
		RiskMultiplier: e.RiskMultiplier,
		MultiSubstance: e.MultiSubstance,
	}
}

func toPreviewDTO(p tracker.Preview) PreviewDTO {
	return PreviewDTO{
		OriginPoints:   fixed(p.OriginPoints),
		RiskMultiplier: p.RiskMultiplier,
		MultiSubstance: p.MultiSubstance,
		BaseRate:       p.Rate.BaseRate,
		HalfLifeDays:   p.Rate.HalfLifeDays,
		RateFallback:   p.Rate.Fallback,
		Projected:      toBreakdownDTO(p.Projected),
	}
}

func toInterventionDTO(e harm.InterventionEvent) InterventionDTO {
	return InterventionDTO{
		ID:         string(e.ID),
		UserID:     string(e.UserID),
		Kind:       string(e.Kind),
		Magnitude:  e.Magnitude,
		Quality:    e.Quality,
		OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339),
	}
}

func toBreakDTO(b harm.AbstinenceBreak) BreakDTO {
	dto := BreakDTO{
		ID:     string(b.ID),
		UserID: string(b.UserID),
		Scope:  string(b.Scope),
		Start:  b.Start.String(),
		Status: string(b.Status),
	}
	if b.End != nil {
		end := b.End.String()
		dto.End = &end
	}
	return dto
}

func toRiskProfileDTO(p harm.UserRiskProfile, multiplier float64) RiskProfileDTO {
	return RiskProfileDTO{
		UserID:                string(p.UserID),
		Age:                   p.Age,
		Sex:                   string(p.Sex),
		HealthConditions:      orEmpty(p.HealthConditions),
		PsychiatricConditions: orEmpty(p.PsychiatricConditions),
		RiskMultiplier:        multiplier,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
