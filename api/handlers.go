/*
handlers.go - HTTP API handlers for the harm index engine

PURPOSE:
  Exposes the tracker via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the tracker.

ENDPOINTS:
  Scores:
    GET    /api/users/{id}/score              Current breakdown (end of today)
    GET    /api/users/{id}/score/all-time     Undecayed total
    GET    /api/users/{id}/score/at?at=       Breakdown at an RFC3339 instant
    GET    /api/users/{id}/history?from=&to=  Daily replay (YYYY-MM-DD)
    GET    /api/users/{id}/snapshots?from=&to= Stored daily rows
    POST   /api/users/{id}/recompute          Refresh today's snapshot

  Substance events:
    POST   /api/users/{id}/substances          Log
    POST   /api/users/{id}/substances/preview  Value without writing
    PUT    /api/users/{id}/substances/{eid}    Edit
    DELETE /api/users/{id}/substances/{eid}    Soft delete

  Interventions:
    POST   /api/users/{id}/interventions
    DELETE /api/users/{id}/interventions/{eid}

  Breaks:
    POST   /api/users/{id}/breaks
    POST   /api/users/{id}/breaks/{bid}/complete
    POST   /api/users/{id}/breaks/{bid}/end-early
    DELETE /api/users/{id}/breaks/{bid}

  Profile:
    PUT    /api/users/{id}/risk-profile

  Admin:
    GET    /api/rates                 Active rate table
    POST   /api/admin/recompute       Refresh every user's snapshot

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Event or break not found
  - 409: Break already closed
  - 503: Store unavailable on a write
  Reads that fail to load history answer 200 with a zero breakdown and
  "degraded": true. Writes whose follow-up recompute failed answer 201 with
  "snapshot_stale": true; the event is stored.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/harm-index/factory"
	"github.com/warp/harm-index/harm"
	"github.com/warp/harm-index/tracker"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tracker     *tracker.Tracker
	RateFactory *factory.RateFactory

	// Resetter clears all data before a scenario load. Nil disables scenarios.
	Resetter Resetter

	// Concurrency bounds /api/admin/recompute.
	Concurrency int

	log *zap.Logger

	mu              sync.Mutex // guards currentScenario
	currentScenario string
}

// NewHandler creates a handler over t. A nil logger discards output.
func NewHandler(t *tracker.Tracker, resetter Resetter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Tracker:     t,
		RateFactory: factory.NewRateFactory(),
		Resetter:    resetter,
		Concurrency: tracker.DefaultConcurrency,
		log:         log.Named("api"),
	}
}

func userIDParam(r *http.Request) harm.UserID {
	return harm.UserID(chi.URLParam(r, "id"))
}

// =============================================================================
// SCORE HANDLERS
// =============================================================================

// GetScore returns the current breakdown.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	b, err := h.Tracker.GetCurrentScore(r.Context(), userIDParam(r))
	h.writeBreakdown(w, b, err)
}

// GetScoreAt returns the breakdown at ?at=RFC3339.
func (h *Handler) GetScoreAt(w http.ResponseWriter, r *http.Request) {
	at, err := parseInstant(r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at (use RFC3339)", err)
		return
	}
	if at.IsZero() {
		writeError(w, http.StatusBadRequest, "at is required", nil)
		return
	}
	b, err := h.Tracker.ScoreAt(r.Context(), userIDParam(r), at)
	h.writeBreakdown(w, b, err)
}

func (h *Handler) writeBreakdown(w http.ResponseWriter, b harm.ScoreBreakdown, err error) {
	dto := toBreakdownDTO(b)
	if err != nil {
		if harm.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Cannot compute score", err)
			return
		}
		dto.Degraded = true
		dto.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetAllTimeScore returns the undecayed total.
func (h *Handler) GetAllTimeScore(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	total, err := h.Tracker.GetAllTimeScore(r.Context(), userID)
	dto := AllTimeDTO{UserID: string(userID), AllTimeScore: fixed(total)}
	if err != nil {
		dto.Degraded = true
		dto.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetHistory replays daily scores. from defaults to 30 days before to; to
// defaults to today.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r, 30)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}
	userID := userIDParam(r)

	resp := HistoryResponse{UserID: string(userID), From: from.String(), To: to.String(), Points: []PointDTO{}}
	for pt, err := range h.Tracker.History(r.Context(), userID, from, to) {
		if err != nil {
			writeError(w, statusFor(err), "Failed to replay history", err)
			return
		}
		resp.Points = append(resp.Points, PointDTO{Date: pt.Date.String(), Score: fixed(pt.Score)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSnapshots returns stored daily rows.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r, 30)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}
	snaps, err := h.Tracker.ListSnapshots(r.Context(), userIDParam(r), from, to)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list snapshots", err)
		return
	}
	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Recompute refreshes today's snapshot for one user.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Tracker.RecomputeAndStore(r.Context(), userIDParam(r))
	if err != nil {
		writeError(w, statusFor(err), "Failed to recompute snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// =============================================================================
// SUBSTANCE HANDLERS
// =============================================================================

func (h *Handler) decodeSubstance(w http.ResponseWriter, r *http.Request) (tracker.SubstanceDraft, bool) {
	var req SubstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return tracker.SubstanceDraft{}, false
	}
	at, err := parseInstant(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at (use RFC3339)", err)
		return tracker.SubstanceDraft{}, false
	}
	return tracker.SubstanceDraft{
		UserID:     userIDParam(r),
		Category:   harm.Category(req.Category),
		Subtype:    req.Subtype,
		Quantity:   req.Quantity,
		Context:    harm.UseContext(req.Context),
		OccurredAt: at,
	}, true
}

// LogSubstance stores a new substance event.
func (h *Handler) LogSubstance(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.decodeSubstance(w, r)
	if !ok {
		return
	}
	e, err := h.Tracker.LogSubstance(r.Context(), draft)
	dto := toSubstanceDTO(e)
	if !h.writeMutation(w, err, "Failed to log substance", &dto.SnapshotStale) {
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// PreviewSubstance values a draft without writing it.
func (h *Handler) PreviewSubstance(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.decodeSubstance(w, r)
	if !ok {
		return
	}
	p, err := h.Tracker.Preview(r.Context(), draft)
	if err != nil && harm.IsClientError(err) {
		writeError(w, http.StatusBadRequest, "Invalid substance event", err)
		return
	}
	dto := toPreviewDTO(p)
	if err != nil {
		dto.Projected.Degraded = true
		dto.Projected.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// UpdateSubstance edits a substance event.
func (h *Handler) UpdateSubstance(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.decodeSubstance(w, r)
	if !ok {
		return
	}
	e, err := h.Tracker.UpdateSubstance(r.Context(), harm.EventID(chi.URLParam(r, "eid")), draft)
	dto := toSubstanceDTO(e)
	if !h.writeMutation(w, err, "Failed to update substance", &dto.SnapshotStale) {
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// DeleteSubstance soft-deletes a substance event.
func (h *Handler) DeleteSubstance(w http.ResponseWriter, r *http.Request) {
	err := h.Tracker.DeleteSubstance(r.Context(), userIDParam(r), harm.EventID(chi.URLParam(r, "eid")))
	h.writeDeletion(w, err, "Failed to delete substance")
}

// =============================================================================
// INTERVENTION HANDLERS
// =============================================================================

// LogIntervention stores a new intervention.
func (h *Handler) LogIntervention(w http.ResponseWriter, r *http.Request) {
	var req InterventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at, err := parseInstant(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at (use RFC3339)", err)
		return
	}

	e, err := h.Tracker.LogIntervention(r.Context(), tracker.InterventionDraft{
		UserID:     userIDParam(r),
		Kind:       harm.InterventionKind(req.Kind),
		Magnitude:  req.Magnitude,
		Quality:    req.Quality,
		OccurredAt: at,
	})
	dto := toInterventionDTO(e)
	if !h.writeMutation(w, err, "Failed to log intervention", &dto.SnapshotStale) {
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// DeleteIntervention soft-deletes an intervention.
func (h *Handler) DeleteIntervention(w http.ResponseWriter, r *http.Request) {
	err := h.Tracker.DeleteIntervention(r.Context(), userIDParam(r), harm.EventID(chi.URLParam(r, "eid")))
	h.writeDeletion(w, err, "Failed to delete intervention")
}

// =============================================================================
// BREAK HANDLERS
// =============================================================================

// StartBreak opens an abstinence break.
func (h *Handler) StartBreak(w http.ResponseWriter, r *http.Request) {
	var req StartBreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := parseDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use YYYY-MM-DD)", err)
		return
	}

	b, err := h.Tracker.StartBreak(r.Context(), userIDParam(r), harm.Category(req.Scope), start)
	dto := toBreakDTO(b)
	if !h.writeMutation(w, err, "Failed to start break", &dto.SnapshotStale) {
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// CompleteBreak marks an active break completed.
func (h *Handler) CompleteBreak(w http.ResponseWriter, r *http.Request) {
	h.closeBreak(w, r, h.Tracker.CompleteBreak)
}

// EndBreakEarly marks an active break ended early.
func (h *Handler) EndBreakEarly(w http.ResponseWriter, r *http.Request) {
	h.closeBreak(w, r, h.Tracker.EndBreakEarly)
}

type closeFunc func(ctx context.Context, userID harm.UserID, id harm.EventID, end harm.Date) (harm.AbstinenceBreak, error)

func (h *Handler) closeBreak(w http.ResponseWriter, r *http.Request, closeFn closeFunc) {
	var req CloseBreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	end, err := parseDay(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end (use YYYY-MM-DD)", err)
		return
	}

	b, err := closeFn(r.Context(), userIDParam(r), harm.EventID(chi.URLParam(r, "bid")), end)
	dto := toBreakDTO(b)
	if !h.writeMutation(w, err, "Failed to close break", &dto.SnapshotStale) {
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// DeleteBreak soft-deletes a break.
func (h *Handler) DeleteBreak(w http.ResponseWriter, r *http.Request) {
	err := h.Tracker.DeleteBreak(r.Context(), userIDParam(r), harm.EventID(chi.URLParam(r, "bid")))
	h.writeDeletion(w, err, "Failed to delete break")
}

// =============================================================================
// RISK PROFILE HANDLERS
// =============================================================================

// SetRiskProfile replaces the user's risk profile.
func (h *Handler) SetRiskProfile(w http.ResponseWriter, r *http.Request) {
	var req RiskProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Tracker.SetRiskProfile(r.Context(), harm.UserRiskProfile{
		UserID:                userIDParam(r),
		Age:                   req.Age,
		Sex:                   harm.Sex(req.Sex),
		HealthConditions:      req.HealthConditions,
		PsychiatricConditions: req.PsychiatricConditions,
	})
	dto := toRiskProfileDTO(p, h.Tracker.Aggregator().Risk.Multiplier(&p))
	if !h.writeMutation(w, err, "Failed to save risk profile", &dto.SnapshotStale) {
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetRates returns the active rate table.
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.RateFactory.ToJSON(h.Tracker.Aggregator().Rates))
}

// RecomputeAll refreshes today's snapshot for every user.
func (h *Handler) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.Tracker.RecomputeAll(r.Context(), h.Concurrency)
	if err != nil {
		writeError(w, statusFor(err), "Failed to recompute snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecomputeResponse(res))
}

func toRecomputeResponse(res tracker.BatchResult) RecomputeResponse {
	resp := RecomputeResponse{Users: res.Users, Succeeded: res.Succeeded}
	if len(res.Failed) > 0 {
		resp.Failed = make(map[string]string, len(res.Failed))
		for id, err := range res.Failed {
			resp.Failed[string(id)] = err.Error()
		}
	}
	return resp
}

// =============================================================================
// HELPERS
// =============================================================================

// writeMutation handles the error of a write. It returns true when the
// caller should still write the body: on success, or when only the snapshot
// refresh failed (stale is then set).
func (h *Handler) writeMutation(w http.ResponseWriter, err error, message string, stale *bool) bool {
	if err == nil {
		return true
	}
	if tracker.IsStale(err) {
		*stale = true
		return true
	}
	writeError(w, statusFor(err), message, err)
	return false
}

func (h *Handler) writeDeletion(w http.ResponseWriter, err error, message string) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case tracker.IsStale(err):
		writeJSON(w, http.StatusOK, map[string]bool{"snapshot_stale": true})
	default:
		writeError(w, statusFor(err), message, err)
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, harm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, harm.ErrInvalidTransition):
		return http.StatusConflict
	case harm.IsClientError(err):
		return http.StatusBadRequest
	case harm.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseRange reads ?from=&to=. to defaults to today; from defaults to
// span days before to.
func (h *Handler) parseRange(r *http.Request, span int) (harm.Date, harm.Date, error) {
	q := r.URL.Query()
	to, err := parseDay(q.Get("to"))
	if err != nil {
		return harm.Date{}, harm.Date{}, err
	}
	if to.IsZero() {
		to = h.Tracker.Today()
	}
	from, err := parseDay(q.Get("from"))
	if err != nil {
		return harm.Date{}, harm.Date{}, err
	}
	if from.IsZero() {
		from = to.AddDays(-span)
	}
	return from, to, nil
}

// parseDay parses YYYY-MM-DD; empty yields the zero Date.
func parseDay(s string) (harm.Date, error) {
	if s == "" {
		return harm.Date{}, nil
	}
	return harm.ParseDate(s)
}

// parseInstant parses RFC3339; empty yields the zero time.
func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", s, err)
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
