/*
store.go - Persistence interfaces consumed by the engine's callers

PURPOSE:
  Defines the boundary between the pure engine and storage. The engine itself
  never touches a store; the tracker loads a History, runs the aggregator, and
  writes one HarmSnapshot per user per day.

KEY INTERFACES:
  HistoryReader: full event history for one user
  EventWriter:   create/update/soft-delete of events, breaks, profiles
  SnapshotStore: idempotent daily snapshot upsert

IDEMPOTENCY:
  UpsertSnapshot is keyed by (UserID, Date): update if the row exists, insert
  otherwise. Writing the same snapshot twice leaves identical rows.

IMPLEMENTATIONS:
  - harm/store/memory.go: in-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite

ERRORS:
  Implementations wrap backend failures with NewStoreError so callers can
  test errors.Is(err, ErrStoreUnavailable). Missing records are ErrNotFound.
*/
package harm

import (
	"context"
	"time"
)

// HistoryReader loads the raw events of one user. Soft-deleted records may be
// included; the aggregator skips them.
type HistoryReader interface {
	LoadHistory(ctx context.Context, userID UserID) (History, error)
}

// EventWriter persists source-of-truth records. Save* is insert-or-replace by ID.
type EventWriter interface {
	SaveSubstanceEvent(ctx context.Context, e SubstanceEvent) error
	GetSubstanceEvent(ctx context.Context, userID UserID, id EventID) (SubstanceEvent, error)
	DeleteSubstanceEvent(ctx context.Context, userID UserID, id EventID, at time.Time) error

	SaveIntervention(ctx context.Context, e InterventionEvent) error
	DeleteIntervention(ctx context.Context, userID UserID, id EventID, at time.Time) error

	SaveBreak(ctx context.Context, b AbstinenceBreak) error
	GetBreak(ctx context.Context, userID UserID, id EventID) (AbstinenceBreak, error)
	DeleteBreak(ctx context.Context, userID UserID, id EventID, at time.Time) error

	SaveRiskProfile(ctx context.Context, p UserRiskProfile) error

	// ListUsers returns every user with at least one record, sorted.
	ListUsers(ctx context.Context) ([]UserID, error)
}

// SnapshotStore persists derived daily snapshots.
type SnapshotStore interface {
	// UpsertSnapshot writes the row for (s.UserID, s.Date), replacing any existing one.
	UpsertSnapshot(ctx context.Context, s HarmSnapshot) error

	// GetSnapshot returns nil, nil when no row exists.
	GetSnapshot(ctx context.Context, userID UserID, date Date) (*HarmSnapshot, error)

	// ListSnapshots returns rows in [from, to] ordered by date.
	ListSnapshots(ctx context.Context, userID UserID, from, to Date) ([]HarmSnapshot, error)
}

// Store is everything the tracker needs.
type Store interface {
	HistoryReader
	EventWriter
	SnapshotStore
}

// UpsertDailySnapshot stores the aggregate result b as userID's row for date.
func UpsertDailySnapshot(ctx context.Context, s SnapshotStore, userID UserID, date Date, b ScoreBreakdown) (HarmSnapshot, error) {
	snap := NewSnapshot(date, b)
	snap.UserID = userID
	if err := s.UpsertSnapshot(ctx, snap); err != nil {
		return HarmSnapshot{}, err
	}
	return snap, nil
}
