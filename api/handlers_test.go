package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/harm-index/api"
	"github.com/warp/harm-index/harm"
	"github.com/warp/harm-index/harm/store"
	"github.com/warp/harm-index/substance"
	"github.com/warp/harm-index/tracker"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var noon = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// failingSnapshots stores events but cannot write snapshots.
type failingSnapshots struct {
	*store.Memory
}

func (f failingSnapshots) UpsertSnapshot(context.Context, harm.HarmSnapshot) error {
	return harm.NewStoreError("upsert snapshot", errors.New("disk full"))
}

func newTestTracker(st harm.Store) *tracker.Tracker {
	n := 0
	return tracker.New(st, harm.NewAggregator(substance.DefaultRateTable()),
		tracker.WithClock(func() time.Time { return noon }),
		tracker.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		}))
}

func newTestRouter(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	h := api.NewHandler(newTestTracker(mem), mem, nil)
	return api.NewRouter(h, nil), mem
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func twoBeers(ctx string) api.SubstanceRequest {
	return api.SubstanceRequest{
		Category:   "alcohol",
		Subtype:    "beer",
		Quantity:   2,
		Context:    ctx,
		OccurredAt: noon.Format(time.RFC3339),
	}
}

// =============================================================================
// SCORES AND SUBSTANCES
// =============================================================================

func TestLogSubstance_ThenScore(t *testing.T) {
	router, _ := newTestRouter(t)

	// GIVEN: Two beers logged in a small social setting
	rec := do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	e := decode[api.SubstanceEventDTO](t, rec)
	assert.Equal(t, "6.00", e.OriginPoints)
	assert.False(t, e.MultiSubstance)
	assert.False(t, e.SnapshotStale)

	// WHEN: Reading the score
	rec = do(t, router, http.MethodGet, "/api/users/u1/score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decode[api.BreakdownDTO](t, rec)

	// THEN: All-time keeps the origin points; current has decayed a little
	assert.Equal(t, "6.00", b.AllTimeScore)
	assert.Equal(t, 1, b.Factors.SubstanceEvents)
	assert.False(t, b.Degraded)
	assert.NotEqual(t, "6.00", b.CurrentScore)

	rec = do(t, router, http.MethodGet, "/api/users/u1/score/all-time", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "6.00", decode[api.AllTimeDTO](t, rec).AllTimeScore)
}

func TestPreview_DoesNotWrite(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users/u1/substances/preview", twoBeers("party"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[api.PreviewDTO](t, rec)
	assert.Equal(t, "7.20", p.OriginPoints)
	assert.Equal(t, 3.0, p.BaseRate)
	assert.Equal(t, "7.20", p.Projected.AllTimeScore)

	rec = do(t, router, http.MethodGet, "/api/users/u1/score", nil)
	assert.Equal(t, "0.00", decode[api.BreakdownDTO](t, rec).AllTimeScore)
}

func TestRiskProfile_AppliesToNewEvents(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPut, "/api/users/u1/risk-profile", api.RiskProfileRequest{
		PsychiatricConditions: []string{"anxiety"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 1.15, decode[api.RiskProfileDTO](t, rec).RiskMultiplier, 1e-9)

	rec = do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("party"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "8.28", decode[api.SubstanceEventDTO](t, rec).OriginPoints)
}

func TestUpdateAndDeleteSubstance(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.SubstanceEventDTO](t, rec).ID

	update := twoBeers("small_social")
	update.Quantity = 4
	rec = do(t, router, http.MethodPut, "/api/users/u1/substances/"+id, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "12.00", decode[api.SubstanceEventDTO](t, rec).OriginPoints)

	rec = do(t, router, http.MethodDelete, "/api/users/u1/substances/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/users/u1/score", nil)
	assert.Equal(t, "0.00", decode[api.BreakdownDTO](t, rec).AllTimeScore)

	rec = do(t, router, http.MethodDelete, "/api/users/u1/substances/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "second delete")
}

func TestLogSubstance_Rejects(t *testing.T) {
	router, _ := newTestRouter(t)

	bad := twoBeers("party")
	bad.Quantity = 0
	rec := do(t, router, http.MethodPost, "/api/users/u1/substances", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, rec).Details, "quantity")

	bad = twoBeers("party")
	bad.OccurredAt = "yesterday"
	rec = do(t, router, http.MethodPost, "/api/users/u1/substances", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/substances", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

// =============================================================================
// INTERVENTIONS AND BREAKS
// =============================================================================

func TestIntervention_LogAndReject(t *testing.T) {
	router, _ := newTestRouter(t)
	quality := 11
	rec := do(t, router, http.MethodPost, "/api/users/u1/interventions", api.InterventionRequest{
		Kind: "sleep", Magnitude: 480, Quality: &quality,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	quality = 8
	rec = do(t, router, http.MethodPost, "/api/users/u1/interventions", api.InterventionRequest{
		Kind: "sleep", Magnitude: 480, Quality: &quality,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[api.InterventionDTO](t, rec).ID

	rec = do(t, router, http.MethodDelete, "/api/users/u1/interventions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBreak_Lifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	// GIVEN: A break started a week ago
	rec := do(t, router, http.MethodPost, "/api/users/u1/breaks", api.StartBreakRequest{Scope: "alcohol", Start: "2026-03-25"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[api.BreakDTO](t, rec)
	assert.Equal(t, "active", b.Status)
	assert.Nil(t, b.End)

	// WHEN: Ended early
	rec = do(t, router, http.MethodPost, "/api/users/u1/breaks/"+b.ID+"/end-early", api.CloseBreakRequest{End: "2026-03-30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decode[api.BreakDTO](t, rec)
	assert.Equal(t, "ended_early", closed.Status)
	require.NotNil(t, closed.End)
	assert.Equal(t, "2026-03-30", *closed.End)

	// THEN: It cannot be closed again
	rec = do(t, router, http.MethodPost, "/api/users/u1/breaks/"+b.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/users/u1/breaks/nope/complete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/users/u1/breaks/"+b.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBreak_EndBeforeStart(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/users/u1/breaks", api.StartBreakRequest{Start: "2026-03-25"})
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[api.BreakDTO](t, rec)
	assert.Equal(t, "all", b.Scope)

	rec = do(t, router, http.MethodPost, "/api/users/u1/breaks/"+b.ID+"/complete", api.CloseBreakRequest{End: "2026-03-20"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// HISTORY AND SNAPSHOTS
// =============================================================================

func TestHistory(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))

	rec := do(t, router, http.MethodGet, "/api/users/u1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h := decode[api.HistoryResponse](t, rec)
	assert.Equal(t, "2026-03-02", h.From)
	assert.Equal(t, "2026-04-01", h.To)
	require.Len(t, h.Points, 31)
	assert.Equal(t, "0.00", h.Points[0].Score)

	rec = do(t, router, http.MethodGet, "/api/users/u1/score", nil)
	assert.Equal(t, decode[api.BreakdownDTO](t, rec).CurrentScore, h.Points[30].Score,
		"last replay point equals the current score")

	rec = do(t, router, http.MethodGet, "/api/users/u1/history?from=2026-04-02&to=2026-04-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/users/u1/history?from=april", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshots_WrittenByMutations(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))

	rec := do(t, router, http.MethodGet, "/api/users/u1/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snaps := decode[[]api.SnapshotDTO](t, rec)
	require.Len(t, snaps, 1)
	assert.Equal(t, "2026-04-01", snaps[0].Date)

	rec = do(t, router, http.MethodGet, "/api/users/u1/score", nil)
	assert.Equal(t, decode[api.BreakdownDTO](t, rec).CurrentScore, snaps[0].Score)

	rec = do(t, router, http.MethodPost, "/api/users/u1/recompute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snaps[0], decode[api.SnapshotDTO](t, rec))
}

// =============================================================================
// FAILURE MODES
// =============================================================================

func TestScore_DegradedWhenStoreFails(t *testing.T) {
	router, mem := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))
	mem.SetFailure(errors.New("connection refused"))

	rec := do(t, router, http.MethodGet, "/api/users/u1/score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decode[api.BreakdownDTO](t, rec)
	assert.True(t, b.Degraded)
	assert.Equal(t, "0.00", b.CurrentScore)
	assert.NotEmpty(t, b.Warning)

	rec = do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogSubstance_StaleSnapshot(t *testing.T) {
	mem := store.NewMemory()
	router := api.NewRouter(api.NewHandler(newTestTracker(failingSnapshots{mem}), mem, nil), nil)

	rec := do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decode[api.SubstanceEventDTO](t, rec).SnapshotStale)

	rec = do(t, router, http.MethodGet, "/api/users/u1/score", nil)
	assert.Equal(t, "6.00", decode[api.BreakdownDTO](t, rec).AllTimeScore, "event kept")
}

// =============================================================================
// ADMIN AND SCENARIOS
// =============================================================================

func TestRecomputeAll(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))
	do(t, router, http.MethodPost, "/api/users/u2/substances", twoBeers("party"))

	rec := do(t, router, http.MethodPost, "/api/admin/recompute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[api.RecomputeResponse](t, rec)
	assert.Equal(t, 2, res.Users)
	assert.Equal(t, 2, res.Succeeded)
	assert.Empty(t, res.Failed)
}

func TestGetRates(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/api/rates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rates := decode[api.RatesResponse](t, rec)
	assert.Len(t, rates.Categories, len(substance.Categories()))
}

func TestScenarios(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/users/u1/substances", twoBeers("small_social"))

	rec := do(t, router, http.MethodGet, "/api/scenarios/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.ScenarioDTO](t, rec), 4)

	for _, id := range []string{"weekend-drinking", "mixed-night", "cannabis-break", "recovery"} {
		rec = do(t, router, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: id})
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", id, rec.Body.String())
		b := decode[api.BreakdownDTO](t, rec)
		assert.Equal(t, string(api.DemoUser), b.UserID)
		assert.NotEqual(t, "0.00", b.AllTimeScore, id)
	}

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "recovery", decode[map[string]string](t, rec)["scenario_id"])

	rec = do(t, router, http.MethodGet, "/api/users/u1/score", nil)
	assert.Equal(t, "0.00", decode[api.BreakdownDTO](t, rec).AllTimeScore, "scenario load resets")

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScenarios_CurrentReadDuringLoad(t *testing.T) {
	// GIVEN: A router loading scenarios back to back
	// WHEN: Other requests read the current scenario at the same time
	// THEN: Every read sees a known id and the last load wins

	router, _ := newTestRouter(t)
	ids := []string{"weekend-drinking", "mixed-night", "cannabis-break", "recovery"}
	known := map[string]bool{"": true}
	for _, id := range ids {
		known[id] = true
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
				var body map[string]string
				if assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body)) {
					assert.True(t, known[body["scenario_id"]], body["scenario_id"])
				}
			}
		}()
	}
	for _, id := range ids {
		rec := do(t, router, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: id})
		assert.Equal(t, http.StatusOK, rec.Code, id)
	}
	close(done)
	wg.Wait()

	rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "recovery", decode[map[string]string](t, rec)["scenario_id"])
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
