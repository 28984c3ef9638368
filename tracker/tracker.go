/*
Package tracker is the per-user facade over the harm engine and a Store.

PURPOSE:
  Loads a user's history, runs the single aggregator, and keeps one snapshot
  per user per day in step with logged events. Every operation takes an
  explicit user ID.

READ PATHS (degrade, never fail the caller's UI):
  GetCurrentScore  breakdown as of the end of today
  GetAllTimeScore  undecayed harm ever logged
  GetHistory       one point per day, replayed from events
  ScoreAt          breakdown at an arbitrary instant
  On store failure these return a zero breakdown together with the error.

WRITE PATHS (surface errors so callers can retry):
  RecomputeAndStore   writes today's snapshot
  Log/Update/Delete*  write the event, then recompute. A failed recompute
                      never rolls back the event: the stored event is
                      returned with a *harm.StaleSnapshotError.

CONCURRENCY:
  Mutations and recomputes of one user are serialized by a per-user lock so
  two near-simultaneous writes cannot interleave their snapshot upserts.
  Different users proceed in parallel.

SEE ALSO:
  - harm/aggregate.go: the scoring algorithm
  - mutations.go: event writes
*/
package tracker

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/harm-index/harm"
)

// Tracker is safe for concurrent use.
type Tracker struct {
	store harm.Store
	agg   *harm.Aggregator
	log   *zap.Logger
	now   func() time.Time
	newID func() string
	locks *userLocks
}

type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l.Named("tracker")
		}
	}
}

// WithIDGenerator overrides uuid.NewString for event IDs.
func WithIDGenerator(f func() string) Option {
	return func(t *Tracker) { t.newID = f }
}

func New(store harm.Store, agg *harm.Aggregator, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		agg:   agg,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
		locks: newUserLocks(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Aggregator returns the engine configuration in use.
func (t *Tracker) Aggregator() *harm.Aggregator { return t.agg }

// Today returns the current UTC calendar day per the tracker's clock.
func (t *Tracker) Today() harm.Date { return harm.DateOf(t.now()) }

// =============================================================================
// READ PATHS
// =============================================================================

// GetCurrentScore returns the breakdown as of the end of today. It equals
// today's snapshot row and the last point of a replay ending today.
func (t *Tracker) GetCurrentScore(ctx context.Context, userID harm.UserID) (harm.ScoreBreakdown, error) {
	return t.ScoreAt(ctx, userID, t.Today().EndOfDay())
}

// GetAllTimeScore returns the undecayed total of every live event's origin
// points, future-dated ones included.
func (t *Tracker) GetAllTimeScore(ctx context.Context, userID harm.UserID) (decimal.Decimal, error) {
	h, err := t.store.LoadHistory(ctx, userID)
	if err != nil {
		t.log.Warn("load history failed, serving zero all-time score",
			zap.String("user_id", string(userID)), zap.Error(err))
		return decimal.Zero, err
	}
	at := t.Today().EndOfDay()
	for _, e := range h.Substances {
		if !e.IsDeleted() && e.OccurredAt.After(at) {
			at = e.OccurredAt
		}
	}
	b, err := t.agg.Aggregate(h, at)
	if err != nil {
		return decimal.Zero, err
	}
	return b.AllTimeScore, nil
}

// ScoreAt returns the breakdown as of at.
func (t *Tracker) ScoreAt(ctx context.Context, userID harm.UserID, at time.Time) (harm.ScoreBreakdown, error) {
	h, err := t.store.LoadHistory(ctx, userID)
	if err != nil {
		t.log.Warn("load history failed, serving zero breakdown",
			zap.String("user_id", string(userID)), zap.Error(err))
		return harm.ZeroBreakdown(userID, at), err
	}
	b, err := t.agg.Aggregate(h, at)
	if err != nil {
		return harm.ZeroBreakdown(userID, at), err
	}
	return b, nil
}

// History streams one point per day in [from, to]. The user's events are
// loaded when iteration starts; ranging again reloads them.
func (t *Tracker) History(ctx context.Context, userID harm.UserID, from, to harm.Date) iter.Seq2[harm.Point, error] {
	return func(yield func(harm.Point, error) bool) {
		if err := harm.ValidateRange(from, to); err != nil {
			yield(harm.Point{}, err)
			return
		}
		h, err := t.store.LoadHistory(ctx, userID)
		if err != nil {
			yield(harm.Point{}, err)
			return
		}
		for pt, err := range t.agg.Replay(ctx, harm.ReplayInput{History: h, From: from, To: to}) {
			if !yield(pt, err) || err != nil {
				return
			}
		}
	}
}

// GetHistory collects History into a slice.
func (t *Tracker) GetHistory(ctx context.Context, userID harm.UserID, from, to harm.Date) ([]harm.Point, error) {
	var points []harm.Point
	for pt, err := range t.History(ctx, userID, from, to) {
		if err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	return points, nil
}

// ListSnapshots returns the stored daily rows in [from, to].
func (t *Tracker) ListSnapshots(ctx context.Context, userID harm.UserID, from, to harm.Date) ([]harm.HarmSnapshot, error) {
	if err := harm.ValidateRange(from, to); err != nil {
		return nil, err
	}
	return t.store.ListSnapshots(ctx, userID, from, to)
}

// =============================================================================
// RECOMPUTE
// =============================================================================

// RecomputeAndStore writes exactly one snapshot for today. Repeating it with
// no event change in between leaves an identical row.
func (t *Tracker) RecomputeAndStore(ctx context.Context, userID harm.UserID) (harm.HarmSnapshot, error) {
	unlock := t.locks.lock(userID)
	defer unlock()
	return t.recomputeLocked(ctx, userID)
}

func (t *Tracker) recomputeLocked(ctx context.Context, userID harm.UserID) (harm.HarmSnapshot, error) {
	today := t.Today()
	h, err := t.store.LoadHistory(ctx, userID)
	if err != nil {
		return harm.HarmSnapshot{}, err
	}
	b, err := t.agg.Aggregate(h, today.EndOfDay())
	if err != nil {
		return harm.HarmSnapshot{}, err
	}
	snap, err := harm.UpsertDailySnapshot(ctx, t.store, userID, today, b)
	if err != nil {
		return harm.HarmSnapshot{}, err
	}
	t.log.Debug("snapshot stored",
		zap.String("user_id", string(userID)),
		zap.String("date", today.String()),
		zap.String("score", snap.Score.StringFixed(2)))
	return snap, nil
}

// afterWrite recomputes following a successful event write. The write is
// never undone; a failure is reported as *harm.StaleSnapshotError.
func (t *Tracker) afterWrite(ctx context.Context, userID harm.UserID, op string) error {
	if _, err := t.recomputeLocked(ctx, userID); err != nil {
		t.log.Error("recompute after write failed",
			zap.String("user_id", string(userID)),
			zap.String("op", op),
			zap.Error(err))
		return &harm.StaleSnapshotError{UserID: userID, Err: err}
	}
	return nil
}
