// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/harm-index/harm"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var _ harm.Store = (*Memory)(nil)

type Memory struct {
	mu            sync.RWMutex
	substances    map[harm.UserID][]harm.SubstanceEvent
	interventions map[harm.UserID][]harm.InterventionEvent
	breaks        map[harm.UserID][]harm.AbstinenceBreak
	profiles      map[harm.UserID]harm.UserRiskProfile
	snapshots     map[snapshotKey]harm.HarmSnapshot

	// failWith, when set, makes every call fail. Used to exercise degraded paths.
	failWith error
}

type snapshotKey struct {
	UserID harm.UserID
	Date   string
}

func NewMemory() *Memory {
	return &Memory{
		substances:    make(map[harm.UserID][]harm.SubstanceEvent),
		interventions: make(map[harm.UserID][]harm.InterventionEvent),
		breaks:        make(map[harm.UserID][]harm.AbstinenceBreak),
		profiles:      make(map[harm.UserID]harm.UserRiskProfile),
		snapshots:     make(map[snapshotKey]harm.HarmSnapshot),
	}
}

// SetFailure makes every subsequent call return a store error wrapping err.
// Pass nil to restore normal operation.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *Memory) fail(op string) error {
	if m.failWith != nil {
		return harm.NewStoreError(op, m.failWith)
	}
	return nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (m *Memory) LoadHistory(_ context.Context, userID harm.UserID) (harm.History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("load history"); err != nil {
		return harm.History{}, err
	}

	h := harm.History{
		UserID:        userID,
		Substances:    append([]harm.SubstanceEvent(nil), m.substances[userID]...),
		Interventions: append([]harm.InterventionEvent(nil), m.interventions[userID]...),
		Breaks:        append([]harm.AbstinenceBreak(nil), m.breaks[userID]...),
	}
	if p, ok := m.profiles[userID]; ok {
		h.Profile = &p
	}
	return h, nil
}

// =============================================================================
// SUBSTANCE EVENTS
// =============================================================================

// SaveSubstanceEvent inserts in OccurredAt order, replacing an existing ID.
func (m *Memory) SaveSubstanceEvent(_ context.Context, e harm.SubstanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("save substance event"); err != nil {
		return err
	}

	events := removeByID(m.substances[e.UserID], e.ID, func(x harm.SubstanceEvent) harm.EventID { return x.ID })

	// Binary search for insertion point
	i := sort.Search(len(events), func(i int) bool {
		return events[i].OccurredAt.After(e.OccurredAt)
	})
	events = append(events, harm.SubstanceEvent{})
	copy(events[i+1:], events[i:])
	events[i] = e
	m.substances[e.UserID] = events
	return nil
}

func (m *Memory) GetSubstanceEvent(_ context.Context, userID harm.UserID, id harm.EventID) (harm.SubstanceEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("get substance event"); err != nil {
		return harm.SubstanceEvent{}, err
	}
	for _, e := range m.substances[userID] {
		if e.ID == id && !e.IsDeleted() {
			return e, nil
		}
	}
	return harm.SubstanceEvent{}, fmt.Errorf("substance event %s: %w", id, harm.ErrNotFound)
}

func (m *Memory) DeleteSubstanceEvent(_ context.Context, userID harm.UserID, id harm.EventID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete substance event"); err != nil {
		return err
	}
	events := m.substances[userID]
	for i := range events {
		if events[i].ID == id && !events[i].IsDeleted() {
			events[i].DeletedAt = &at
			return nil
		}
	}
	return fmt.Errorf("substance event %s: %w", id, harm.ErrNotFound)
}

// =============================================================================
// INTERVENTIONS
// =============================================================================

func (m *Memory) SaveIntervention(_ context.Context, e harm.InterventionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("save intervention"); err != nil {
		return err
	}

	events := removeByID(m.interventions[e.UserID], e.ID, func(x harm.InterventionEvent) harm.EventID { return x.ID })
	i := sort.Search(len(events), func(i int) bool {
		return events[i].OccurredAt.After(e.OccurredAt)
	})
	events = append(events, harm.InterventionEvent{})
	copy(events[i+1:], events[i:])
	events[i] = e
	m.interventions[e.UserID] = events
	return nil
}

func (m *Memory) DeleteIntervention(_ context.Context, userID harm.UserID, id harm.EventID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete intervention"); err != nil {
		return err
	}
	events := m.interventions[userID]
	for i := range events {
		if events[i].ID == id && !events[i].IsDeleted() {
			events[i].DeletedAt = &at
			return nil
		}
	}
	return fmt.Errorf("intervention %s: %w", id, harm.ErrNotFound)
}

// =============================================================================
// ABSTINENCE BREAKS
// =============================================================================

func (m *Memory) SaveBreak(_ context.Context, b harm.AbstinenceBreak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("save break"); err != nil {
		return err
	}
	breaks := removeByID(m.breaks[b.UserID], b.ID, func(x harm.AbstinenceBreak) harm.EventID { return x.ID })
	m.breaks[b.UserID] = append(breaks, b)
	return nil
}

func (m *Memory) GetBreak(_ context.Context, userID harm.UserID, id harm.EventID) (harm.AbstinenceBreak, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("get break"); err != nil {
		return harm.AbstinenceBreak{}, err
	}
	for _, b := range m.breaks[userID] {
		if b.ID == id && !b.IsDeleted() {
			return b, nil
		}
	}
	return harm.AbstinenceBreak{}, fmt.Errorf("break %s: %w", id, harm.ErrNotFound)
}

func (m *Memory) DeleteBreak(_ context.Context, userID harm.UserID, id harm.EventID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete break"); err != nil {
		return err
	}
	breaks := m.breaks[userID]
	for i := range breaks {
		if breaks[i].ID == id && !breaks[i].IsDeleted() {
			breaks[i].DeletedAt = &at
			return nil
		}
	}
	return fmt.Errorf("break %s: %w", id, harm.ErrNotFound)
}

// =============================================================================
// RISK PROFILES & USERS
// =============================================================================

func (m *Memory) SaveRiskProfile(_ context.Context, p harm.UserRiskProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("save risk profile"); err != nil {
		return err
	}
	p.HealthConditions = append([]string(nil), p.HealthConditions...)
	p.PsychiatricConditions = append([]string(nil), p.PsychiatricConditions...)
	m.profiles[p.UserID] = p
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]harm.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("list users"); err != nil {
		return nil, err
	}

	seen := make(map[harm.UserID]bool)
	for u := range m.substances {
		seen[u] = true
	}
	for u := range m.interventions {
		seen[u] = true
	}
	for u := range m.breaks {
		seen[u] = true
	}
	for u := range m.profiles {
		seen[u] = true
	}

	users := make([]harm.UserID, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// UpsertSnapshot replaces the row for (UserID, Date).
func (m *Memory) UpsertSnapshot(_ context.Context, s harm.HarmSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("upsert snapshot"); err != nil {
		return err
	}
	m.snapshots[snapshotKey{UserID: s.UserID, Date: s.Date.String()}] = s
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, userID harm.UserID, date harm.Date) (*harm.HarmSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("get snapshot"); err != nil {
		return nil, err
	}
	s, ok := m.snapshots[snapshotKey{UserID: userID, Date: date.String()}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) ListSnapshots(_ context.Context, userID harm.UserID, from, to harm.Date) ([]harm.HarmSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("list snapshots"); err != nil {
		return nil, err
	}
	var result []harm.HarmSnapshot
	for k, s := range m.snapshots {
		if k.UserID == userID && from.BeforeOrEqual(s.Date) && s.Date.BeforeOrEqual(to) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// SnapshotCount returns the number of stored rows for a user.
func (m *Memory) SnapshotCount(userID harm.UserID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.snapshots {
		if k.UserID == userID {
			n++
		}
	}
	return n
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("reset"); err != nil {
		return err
	}
	m.substances = make(map[harm.UserID][]harm.SubstanceEvent)
	m.interventions = make(map[harm.UserID][]harm.InterventionEvent)
	m.breaks = make(map[harm.UserID][]harm.AbstinenceBreak)
	m.profiles = make(map[harm.UserID]harm.UserRiskProfile)
	m.snapshots = make(map[snapshotKey]harm.HarmSnapshot)
	return nil
}

func removeByID[T any](items []T, id harm.EventID, idOf func(T) harm.EventID) []T {
	out := items[:0:0]
	for _, it := range items {
		if idOf(it) != id {
			out = append(out, it)
		}
	}
	return out
}
