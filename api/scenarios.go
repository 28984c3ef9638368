/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	histories for demos. Each scenario seeds one user with substance events,
	interventions, breaks, and optionally a risk profile, all placed relative
	to today so decay is visible immediately.

AVAILABLE SCENARIOS:

	weekend-drinking: Two beers at a party, a night of good sleep
	mixed-night:      Alcohol and a stimulant on the same day, anxiety profile
	cannabis-break:   Regular cannabis use followed by an active break
	recovery:         One psychedelic session three weeks ago, full recovery

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Set the risk profile through the tracker
 3. Log events through the tracker, so values and snapshots are real

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mixed-night"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: tracker-backed handlers
  - tracker/mutations.go: the write path used here
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/harm-index/harm"
	"github.com/warp/harm-index/substance"
	"github.com/warp/harm-index/tracker"
)

// DemoUser is the user every scenario seeds.
const DemoUser harm.UserID = "demo-user"

// Resetter clears the database.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "weekend-drinking",
		Name:        "Weekend Drinking",
		Description: "Two beers at a party yesterday, eight hours of good sleep",
	},
	{
		ID:          "mixed-night",
		Name:        "Mixed Night",
		Description: "Wine and a stimulant on the same day for a user with an anxiety disorder",
	},
	{
		ID:          "cannabis-break",
		Name:        "Cannabis Break",
		Description: "A week of evening cannabis, then a ten-day break still running",
	},
	{
		ID:          "recovery",
		Name:        "Recovery",
		Description: "One psilocybin session three weeks ago, decayed to nothing",
	},
}

type scenarioLoader func(ctx context.Context, t *tracker.Tracker, today harm.Date) error

var scenarioLoaders = map[string]scenarioLoader{
	"weekend-drinking": loadWeekendDrinking,
	"mixed-night":      loadMixedNight,
	"cannabis-break":   loadCannabisBreak,
	"recovery":         loadRecovery,
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last scenario loaded, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.scenario()})
}

// LoadScenario resets the database and seeds the chosen scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		writeError(w, statusFor(err), "Failed to load scenario", err)
		return
	}

	b, err := h.Tracker.GetCurrentScore(r.Context(), DemoUser)
	dto := toBreakdownDTO(b)
	if err != nil {
		dto.Degraded = true
		dto.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// ResetDatabase clears every record.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusNotImplemented, "Reset not supported by this store", nil)
		return
	}
	if err := h.Resetter.Reset(r.Context()); err != nil {
		writeError(w, statusFor(err), "Failed to reset database", err)
		return
	}
	h.setScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return fmt.Errorf("unknown scenario %q: %w", id, harm.ErrNotFound)
	}
	if h.Resetter == nil {
		return fmt.Errorf("scenario %s: store cannot be reset", id)
	}
	if err := h.Resetter.Reset(ctx); err != nil {
		return err
	}
	if err := load(ctx, h.Tracker, h.Tracker.Today()); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.setScenario(id)
	h.log.Info("scenario loaded", zap.String("scenario_id", id))
	return nil
}

func (h *Handler) scenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// at places an event hours into the given day.
func at(d harm.Date, hours float64) time.Time {
	return d.StartOfDay().Add(time.Duration(hours * float64(time.Hour)))
}

// settle drops stale-snapshot errors; the events are stored and the final
// score is recomputed when read.
func settle(err error) error {
	if err == nil || tracker.IsStale(err) {
		return nil
	}
	return err
}

func logSubstance(ctx context.Context, t *tracker.Tracker, d tracker.SubstanceDraft) error {
	d.UserID = DemoUser
	_, err := t.LogSubstance(ctx, d)
	return settle(err)
}

func logIntervention(ctx context.Context, t *tracker.Tracker, d tracker.InterventionDraft) error {
	d.UserID = DemoUser
	_, err := t.LogIntervention(ctx, d)
	return settle(err)
}

func quality(q int) *int { return &q }

func loadWeekendDrinking(ctx context.Context, t *tracker.Tracker, today harm.Date) error {
	yesterday := today.AddDays(-1)
	if err := logSubstance(ctx, t, tracker.SubstanceDraft{
		Category:   harm.CategoryAlcohol,
		Subtype:    substance.Beer,
		Quantity:   2,
		Context:    harm.ContextParty,
		OccurredAt: at(yesterday, 21),
	}); err != nil {
		return err
	}
	return logIntervention(ctx, t, tracker.InterventionDraft{
		Kind:       harm.InterventionSleep,
		Magnitude:  480,
		Quality:    quality(8),
		OccurredAt: at(today, 8),
	})
}

func loadMixedNight(ctx context.Context, t *tracker.Tracker, today harm.Date) error {
	age := 19
	if _, err := t.SetRiskProfile(ctx, harm.UserRiskProfile{
		UserID:                DemoUser,
		Age:                   &age,
		PsychiatricConditions: []string{"anxiety"},
	}); settle(err) != nil {
		return err
	}

	night := today.AddDays(-2)
	drafts := []tracker.SubstanceDraft{
		{Category: harm.CategoryAlcohol, Subtype: substance.Wine, Quantity: 3, Context: harm.ContextSmallSocial, OccurredAt: at(night, 20)},
		{Category: harm.CategoryStimulant, Subtype: substance.Cocaine, Quantity: 1, Context: harm.ContextParty, OccurredAt: at(night, 23)},
	}
	for _, d := range drafts {
		if err := logSubstance(ctx, t, d); err != nil {
			return err
		}
	}
	return logIntervention(ctx, t, tracker.InterventionDraft{
		Kind:       harm.InterventionHydration,
		Magnitude:  2,
		OccurredAt: at(today.AddDays(-1), 10),
	})
}

func loadCannabisBreak(ctx context.Context, t *tracker.Tracker, today harm.Date) error {
	breakStart := today.AddDays(-10)
	for i := 7; i >= 1; i-- {
		if err := logSubstance(ctx, t, tracker.SubstanceDraft{
			Category:   harm.CategoryCannabis,
			Subtype:    substance.Flower,
			Quantity:   1,
			Context:    harm.ContextSolo,
			OccurredAt: at(breakStart.AddDays(-i), 22),
		}); err != nil {
			return err
		}
	}
	_, err := t.StartBreak(ctx, DemoUser, harm.CategoryCannabis, breakStart)
	if settle(err) != nil {
		return err
	}
	return logIntervention(ctx, t, tracker.InterventionDraft{
		Kind:       harm.InterventionExercise,
		Magnitude:  45,
		OccurredAt: at(today, 7),
	})
}

func loadRecovery(ctx context.Context, t *tracker.Tracker, today harm.Date) error {
	if err := logSubstance(ctx, t, tracker.SubstanceDraft{
		Category:   harm.CategoryPsychedelic,
		Subtype:    substance.Psilocybin,
		Quantity:   1,
		Context:    harm.ContextTherapeutic,
		OccurredAt: at(today.AddDays(-21), 14),
	}); err != nil {
		return err
	}
	return logIntervention(ctx, t, tracker.InterventionDraft{
		Kind:       harm.InterventionMeditation,
		Magnitude:  20,
		OccurredAt: at(today.AddDays(-1), 9),
	})
}
