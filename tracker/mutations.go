package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/harm-index/harm"
)

// =============================================================================
// SUBSTANCE EVENTS
// =============================================================================

// SubstanceDraft is a substance event before it is valued and stored.
type SubstanceDraft struct {
	UserID     harm.UserID
	Category   harm.Category
	Subtype    string
	Quantity   float64
	Context    harm.UseContext
	OccurredAt time.Time // zero means now
}

// Preview is what logging a draft would produce.
type Preview struct {
	OriginPoints   decimal.Decimal
	RiskMultiplier float64
	MultiSubstance bool
	Rate           harm.RateLookup

	// Projected is the current score with the draft included.
	Projected harm.ScoreBreakdown
}

// Preview values a draft exactly as LogSubstance would, without writing.
// When the history cannot be loaded the origin points are still computed
// (no profile, no multi-substance check) and returned with the error.
func (t *Tracker) Preview(ctx context.Context, d SubstanceDraft) (Preview, error) {
	d = t.normalizeDraft(d)
	h, loadErr := t.store.LoadHistory(ctx, d.UserID)
	if loadErr != nil {
		h = harm.History{UserID: d.UserID}
	}

	e, lookup, err := t.valueDraft(h, d, "")
	if err != nil {
		return Preview{}, err
	}
	p := Preview{
		OriginPoints:   e.OriginPoints,
		RiskMultiplier: e.RiskMultiplier,
		MultiSubstance: e.MultiSubstance,
		Rate:           lookup,
	}

	h.Substances = append(append([]harm.SubstanceEvent(nil), h.Substances...), e)
	ref := t.Today().EndOfDay()
	if e.OccurredAt.After(ref) {
		ref = e.OccurredAt
	}
	p.Projected, err = t.agg.Aggregate(h, ref)
	if err != nil {
		return Preview{}, err
	}
	return p, loadErr
}

// LogSubstance values and stores a new event, then recomputes today's snapshot.
func (t *Tracker) LogSubstance(ctx context.Context, d SubstanceDraft) (harm.SubstanceEvent, error) {
	d = t.normalizeDraft(d)

	unlock := t.locks.lock(d.UserID)
	defer unlock()

	h, err := t.store.LoadHistory(ctx, d.UserID)
	if err != nil {
		return harm.SubstanceEvent{}, err
	}
	e, lookup, err := t.valueDraft(h, d, "")
	if err != nil {
		return harm.SubstanceEvent{}, err
	}
	t.logFallback(d, lookup)

	e.ID = harm.EventID(t.newID())
	e.CreatedAt = t.now().UTC()
	if err := t.store.SaveSubstanceEvent(ctx, e); err != nil {
		return harm.SubstanceEvent{}, err
	}
	t.log.Info("substance logged",
		zap.String("user_id", string(e.UserID)),
		zap.String("event_id", string(e.ID)),
		zap.String("category", string(e.Category)),
		zap.String("origin_points", e.OriginPoints.StringFixed(2)))

	return e, t.afterSubstanceWrite(ctx, e.UserID, "log substance", harm.DateOf(e.OccurredAt))
}

// UpdateSubstance edits an event. Origin points are recomputed with the
// multiplier stored at creation; later profile changes never apply. An
// Unvalued row takes the current profile's multiplier and becomes valued.
func (t *Tracker) UpdateSubstance(ctx context.Context, id harm.EventID, d SubstanceDraft) (harm.SubstanceEvent, error) {
	unlock := t.locks.lock(d.UserID)
	defer unlock()

	existing, err := t.store.GetSubstanceEvent(ctx, d.UserID, id)
	if err != nil {
		return harm.SubstanceEvent{}, err
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = existing.OccurredAt
	}
	d = t.normalizeDraft(d)

	h, err := t.store.LoadHistory(ctx, d.UserID)
	if err != nil {
		return harm.SubstanceEvent{}, err
	}
	risk := existing.RiskMultiplier
	if existing.Unvalued {
		risk = t.agg.Risk.Multiplier(h.Profile)
	}
	multi := harm.SameDayMultiSubstance(h.Substances, d.Category, d.OccurredAt, id)
	origin, err := t.agg.OriginPoints(harm.OriginInput{
		Category:              d.Category,
		Subtype:               d.Subtype,
		Quantity:              d.Quantity,
		Context:               d.Context,
		RiskMultiplier:        risk,
		SameDayMultiSubstance: multi,
	})
	if err != nil {
		return harm.SubstanceEvent{}, err
	}

	updated := existing
	updated.Category = d.Category
	updated.Subtype = d.Subtype
	updated.Quantity = d.Quantity
	updated.Context = d.Context
	updated.OccurredAt = d.OccurredAt
	updated.OriginPoints = origin
	updated.RiskMultiplier = risk
	updated.MultiSubstance = multi
	updated.Unvalued = false
	if err := t.store.SaveSubstanceEvent(ctx, updated); err != nil {
		return harm.SubstanceEvent{}, err
	}
	return updated, t.afterSubstanceWrite(ctx, d.UserID, "update substance",
		harm.DateOf(existing.OccurredAt), harm.DateOf(updated.OccurredAt))
}

// DeleteSubstance soft-deletes an event.
func (t *Tracker) DeleteSubstance(ctx context.Context, userID harm.UserID, id harm.EventID) error {
	unlock := t.locks.lock(userID)
	defer unlock()

	existing, err := t.store.GetSubstanceEvent(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := t.store.DeleteSubstanceEvent(ctx, userID, id, t.now().UTC()); err != nil {
		return err
	}
	return t.afterSubstanceWrite(ctx, userID, "delete substance", harm.DateOf(existing.OccurredAt))
}

// afterSubstanceWrite brings the multi-substance flag of every event on the
// touched days in line with the day's live events, then recomputes today's
// snapshot. The written event is already stored; a failure here is reported
// as a *harm.StaleSnapshotError and the next write on the day retries it.
func (t *Tracker) afterSubstanceWrite(ctx context.Context, userID harm.UserID, op string, days ...harm.Date) error {
	if err := t.reflagDays(ctx, userID, days...); err != nil {
		t.log.Error("multi-substance reflag failed",
			zap.String("user_id", string(userID)),
			zap.String("op", op),
			zap.Error(err))
		return &harm.StaleSnapshotError{UserID: userID, Err: err}
	}
	return t.afterWrite(ctx, userID, op)
}

// reflagDays revalues, with their stored risk multiplier, the events whose
// multi-substance flag changed.
func (t *Tracker) reflagDays(ctx context.Context, userID harm.UserID, days ...harm.Date) error {
	h, err := t.store.LoadHistory(ctx, userID)
	if err != nil {
		return err
	}
	for _, e := range harm.ReflagSameDay(h.Substances, days...) {
		origin, err := t.agg.OriginPoints(harm.OriginInput{
			Category:              e.Category,
			Subtype:               e.Subtype,
			Quantity:              e.Quantity,
			Context:               e.Context,
			RiskMultiplier:        e.RiskMultiplier,
			SameDayMultiSubstance: e.MultiSubstance,
		})
		if err != nil {
			return fmt.Errorf("revalue %s: %w", e.ID, err)
		}
		e.OriginPoints = origin
		if err := t.store.SaveSubstanceEvent(ctx, e); err != nil {
			return err
		}
		t.log.Debug("multi-substance flag changed",
			zap.String("user_id", string(userID)),
			zap.String("event_id", string(e.ID)),
			zap.Bool("multi_substance", e.MultiSubstance),
			zap.String("origin_points", origin.StringFixed(2)))
	}
	return nil
}

func (t *Tracker) normalizeDraft(d SubstanceDraft) SubstanceDraft {
	if d.Category == "" {
		d.Category = harm.CategoryOther
	}
	d.Subtype = strings.TrimSpace(d.Subtype)
	if d.Context == "" {
		d.Context = harm.ContextOther
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = t.now()
	}
	d.OccurredAt = d.OccurredAt.UTC()
	return d
}

// valueDraft is the one path from draft to valued event, shared by Preview
// and LogSubstance.
func (t *Tracker) valueDraft(h harm.History, d SubstanceDraft, exclude harm.EventID) (harm.SubstanceEvent, harm.RateLookup, error) {
	lookup, _ := t.agg.Rates.Resolve(d.Category, d.Subtype)
	risk := t.agg.Risk.Multiplier(h.Profile)
	multi := harm.SameDayMultiSubstance(h.Substances, d.Category, d.OccurredAt, exclude)

	origin, err := t.agg.OriginPoints(harm.OriginInput{
		Category:              d.Category,
		Subtype:               d.Subtype,
		Quantity:              d.Quantity,
		Context:               d.Context,
		RiskMultiplier:        risk,
		SameDayMultiSubstance: multi,
	})
	if err != nil {
		return harm.SubstanceEvent{}, lookup, err
	}
	return harm.SubstanceEvent{
		UserID:         d.UserID,
		Category:       d.Category,
		Subtype:        d.Subtype,
		Quantity:       d.Quantity,
		Context:        d.Context,
		OccurredAt:     d.OccurredAt,
		OriginPoints:   origin,
		RiskMultiplier: risk,
		MultiSubstance: multi,
	}, lookup, nil
}

func (t *Tracker) logFallback(d SubstanceDraft, lookup harm.RateLookup) {
	if !lookup.Fallback {
		return
	}
	if !t.agg.Rates.Known(d.Category) {
		t.log.Warn("unknown substance category, using default rates",
			zap.String("category", string(d.Category)),
			zap.Float64("base_rate", lookup.BaseRate),
			zap.Float64("half_life_days", lookup.HalfLifeDays))
		return
	}
	t.log.Info("unknown subtype, using category default",
		zap.String("category", string(d.Category)),
		zap.String("subtype", d.Subtype),
		zap.String("default_subtype", lookup.Subtype))
}

// =============================================================================
// INTERVENTIONS
// =============================================================================

type InterventionDraft struct {
	UserID     harm.UserID
	Kind       harm.InterventionKind
	Magnitude  float64
	Quality    *int
	OccurredAt time.Time // zero means now
}

func (t *Tracker) LogIntervention(ctx context.Context, d InterventionDraft) (harm.InterventionEvent, error) {
	if d.Magnitude < 0 {
		return harm.InterventionEvent{}, fmt.Errorf("magnitude %v: %w", d.Magnitude, harm.ErrInvalidIntervention)
	}
	if d.Quality != nil && (*d.Quality < 1 || *d.Quality > 10) {
		return harm.InterventionEvent{}, fmt.Errorf("quality %d outside 1-10: %w", *d.Quality, harm.ErrInvalidIntervention)
	}
	if d.Kind == "" {
		return harm.InterventionEvent{}, fmt.Errorf("missing kind: %w", harm.ErrInvalidIntervention)
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = t.now()
	}

	unlock := t.locks.lock(d.UserID)
	defer unlock()

	e := harm.InterventionEvent{
		ID:         harm.EventID(t.newID()),
		UserID:     d.UserID,
		Kind:       d.Kind,
		OccurredAt: d.OccurredAt.UTC(),
		Magnitude:  d.Magnitude,
		Quality:    d.Quality,
		CreatedAt:  t.now().UTC(),
	}
	if err := t.store.SaveIntervention(ctx, e); err != nil {
		return harm.InterventionEvent{}, err
	}
	return e, t.afterWrite(ctx, e.UserID, "log intervention")
}

func (t *Tracker) DeleteIntervention(ctx context.Context, userID harm.UserID, id harm.EventID) error {
	unlock := t.locks.lock(userID)
	defer unlock()

	if err := t.store.DeleteIntervention(ctx, userID, id, t.now().UTC()); err != nil {
		return err
	}
	return t.afterWrite(ctx, userID, "delete intervention")
}

// =============================================================================
// ABSTINENCE BREAKS
// =============================================================================

// StartBreak opens an active break. A zero start means today.
func (t *Tracker) StartBreak(ctx context.Context, userID harm.UserID, scope harm.Category, start harm.Date) (harm.AbstinenceBreak, error) {
	if start.IsZero() {
		start = t.Today()
	}
	if scope == "" {
		scope = harm.ScopeAll
	}

	unlock := t.locks.lock(userID)
	defer unlock()

	b := harm.AbstinenceBreak{
		ID:        harm.EventID(t.newID()),
		UserID:    userID,
		Scope:     scope,
		Start:     start,
		Status:    harm.BreakActive,
		CreatedAt: t.now().UTC(),
	}
	if err := t.store.SaveBreak(ctx, b); err != nil {
		return harm.AbstinenceBreak{}, err
	}
	return b, t.afterWrite(ctx, userID, "start break")
}

// CompleteBreak closes an active break that ran its course.
func (t *Tracker) CompleteBreak(ctx context.Context, userID harm.UserID, id harm.EventID, end harm.Date) (harm.AbstinenceBreak, error) {
	return t.closeBreak(ctx, userID, id, end, harm.BreakCompleted)
}

// EndBreakEarly closes an active break that was abandoned. It earns no credit.
func (t *Tracker) EndBreakEarly(ctx context.Context, userID harm.UserID, id harm.EventID, end harm.Date) (harm.AbstinenceBreak, error) {
	return t.closeBreak(ctx, userID, id, end, harm.BreakEndedEarly)
}

func (t *Tracker) closeBreak(ctx context.Context, userID harm.UserID, id harm.EventID, end harm.Date, status harm.BreakStatus) (harm.AbstinenceBreak, error) {
	if end.IsZero() {
		end = t.Today()
	}

	unlock := t.locks.lock(userID)
	defer unlock()

	b, err := t.store.GetBreak(ctx, userID, id)
	if err != nil {
		return harm.AbstinenceBreak{}, err
	}
	if b.Status != harm.BreakActive {
		return harm.AbstinenceBreak{}, fmt.Errorf("break %s %s -> %s: %w", id, b.Status, status, harm.ErrInvalidTransition)
	}
	if end.Before(b.Start) {
		return harm.AbstinenceBreak{}, fmt.Errorf("break %s: end %s before start %s: %w", id, end, b.Start, harm.ErrInvalidRange)
	}

	b.End = &end
	b.Status = status
	if err := t.store.SaveBreak(ctx, b); err != nil {
		return harm.AbstinenceBreak{}, err
	}
	return b, t.afterWrite(ctx, userID, "close break")
}

func (t *Tracker) DeleteBreak(ctx context.Context, userID harm.UserID, id harm.EventID) error {
	unlock := t.locks.lock(userID)
	defer unlock()

	if err := t.store.DeleteBreak(ctx, userID, id, t.now().UTC()); err != nil {
		return err
	}
	return t.afterWrite(ctx, userID, "delete break")
}

// =============================================================================
// RISK PROFILE
// =============================================================================

// SetRiskProfile replaces the profile. Existing events keep their origin
// points; only events logged afterwards (and legacy rows) see the change.
func (t *Tracker) SetRiskProfile(ctx context.Context, p harm.UserRiskProfile) (harm.UserRiskProfile, error) {
	if p.Age != nil && (*p.Age < 0 || *p.Age > 130) {
		return harm.UserRiskProfile{}, fmt.Errorf("age %d: %w", *p.Age, harm.ErrInvalidRange)
	}

	unlock := t.locks.lock(p.UserID)
	defer unlock()

	p.UpdatedAt = t.now().UTC()
	if err := t.store.SaveRiskProfile(ctx, p); err != nil {
		return harm.UserRiskProfile{}, err
	}
	return p, t.afterWrite(ctx, p.UserID, "set risk profile")
}

// IsStale reports whether err only means the snapshot lags the stored event.
func IsStale(err error) bool {
	var stale *harm.StaleSnapshotError
	return errors.As(err, &stale)
}
