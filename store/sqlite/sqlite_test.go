package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/harm-index/harm"
	"github.com/warp/harm-index/store/sqlite"
	"github.com/warp/harm-index/substance"
	"github.com/warp/harm-index/tracker"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var noon = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func TestStore_SubstanceEventRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := harm.SubstanceEvent{
		ID:             "e1",
		UserID:         "u1",
		Category:       harm.CategoryAlcohol,
		Subtype:        substance.Wine,
		Quantity:       1.5,
		Context:        harm.ContextParty,
		OccurredAt:     noon.Add(123 * time.Millisecond),
		OriginPoints:   decimal.RequireFromString("6.30"),
		RiskMultiplier: 1.3,
		MultiSubstance: true,
		CreatedAt:      noon,
	}
	require.NoError(t, store.SaveSubstanceEvent(ctx, e))

	got, err := store.GetSubstanceEvent(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, e.Category, got.Category)
	assert.Equal(t, e.Subtype, got.Subtype)
	assert.Equal(t, e.Quantity, got.Quantity)
	assert.Equal(t, e.Context, got.Context)
	assert.True(t, e.OccurredAt.Equal(got.OccurredAt))
	assert.Equal(t, "6.30", got.OriginPoints.StringFixed(2))
	assert.Equal(t, 1.3, got.RiskMultiplier)
	assert.True(t, got.MultiSubstance)
	assert.Nil(t, got.DeletedAt)

	// Upsert by ID
	e.Quantity = 2
	require.NoError(t, store.SaveSubstanceEvent(ctx, e))
	h, err := store.LoadHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, h.Substances, 1)
	assert.Equal(t, 2.0, h.Substances[0].Quantity)
}

func TestStore_UnvaluedDistinctFromZero(t *testing.T) {
	// GIVEN: One row imported without origin points and one valued at 0.00
	// WHEN: Both are read back
	// THEN: Only the imported row is Unvalued

	store := newTestStore(t)
	ctx := context.Background()

	imported := harm.SubstanceEvent{
		ID: "imported", UserID: "u1", Category: harm.CategoryAlcohol, Subtype: substance.Beer,
		Quantity: 1, Context: harm.ContextOther, OccurredAt: noon, CreatedAt: noon, Unvalued: true,
	}
	zero := imported
	zero.ID = "zero"
	zero.Quantity = 0.001
	zero.Unvalued = false
	zero.RiskMultiplier = 1
	require.NoError(t, store.SaveSubstanceEvent(ctx, imported))
	require.NoError(t, store.SaveSubstanceEvent(ctx, zero))

	got, err := store.GetSubstanceEvent(ctx, "u1", "imported")
	require.NoError(t, err)
	assert.True(t, got.Unvalued)
	assert.True(t, got.OriginPoints.IsZero())

	got, err = store.GetSubstanceEvent(ctx, "u1", "zero")
	require.NoError(t, err)
	assert.False(t, got.Unvalued)
	assert.Equal(t, "0.00", got.OriginPoints.StringFixed(2))
}

func TestStore_SoftDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSubstanceEvent(ctx, harm.SubstanceEvent{
		ID: "e1", UserID: "u1", Category: harm.CategoryAlcohol, Quantity: 1, OccurredAt: noon, CreatedAt: noon,
	}))
	require.NoError(t, store.DeleteSubstanceEvent(ctx, "u1", "e1", noon.Add(time.Hour)))

	_, err := store.GetSubstanceEvent(ctx, "u1", "e1")
	assert.ErrorIs(t, err, harm.ErrNotFound)
	assert.ErrorIs(t, store.DeleteSubstanceEvent(ctx, "u1", "e1", noon), harm.ErrNotFound)
	assert.ErrorIs(t, store.DeleteSubstanceEvent(ctx, "other-user", "e1", noon), harm.ErrNotFound)

	h, err := store.LoadHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, h.Substances, 1)
	require.NotNil(t, h.Substances[0].DeletedAt)
	assert.True(t, h.Substances[0].DeletedAt.Equal(noon.Add(time.Hour)))
}

func TestStore_LoadHistoryAllCollections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	quality := 7
	age := 30
	end := harm.NewDate(2026, 3, 20)

	require.NoError(t, store.SaveSubstanceEvent(ctx, harm.SubstanceEvent{
		ID: "s2", UserID: "u1", Category: harm.CategoryCannabis, Quantity: 1, OccurredAt: noon, CreatedAt: noon,
	}))
	require.NoError(t, store.SaveSubstanceEvent(ctx, harm.SubstanceEvent{
		ID: "s1", UserID: "u1", Category: harm.CategoryAlcohol, Quantity: 1, OccurredAt: noon.Add(-time.Hour), CreatedAt: noon,
	}))
	require.NoError(t, store.SaveIntervention(ctx, harm.InterventionEvent{
		ID: "i1", UserID: "u1", Kind: harm.InterventionSleep, Magnitude: 480, Quality: &quality, OccurredAt: noon, CreatedAt: noon,
	}))
	require.NoError(t, store.SaveIntervention(ctx, harm.InterventionEvent{
		ID: "i2", UserID: "u1", Kind: harm.InterventionNutrition, OccurredAt: noon, CreatedAt: noon,
	}))
	require.NoError(t, store.SaveBreak(ctx, harm.AbstinenceBreak{
		ID: "b1", UserID: "u1", Scope: harm.ScopeAll, Start: harm.NewDate(2026, 3, 1), End: &end,
		Status: harm.BreakCompleted, CreatedAt: noon,
	}))
	require.NoError(t, store.SaveRiskProfile(ctx, harm.UserRiskProfile{
		UserID: "u1", Age: &age, Sex: harm.SexFemale, HealthConditions: []string{"hepatic"}, UpdatedAt: noon,
	}))
	require.NoError(t, store.SaveSubstanceEvent(ctx, harm.SubstanceEvent{
		ID: "x1", UserID: "u2", Category: harm.CategoryAlcohol, Quantity: 1, OccurredAt: noon, CreatedAt: noon,
	}))

	h, err := store.LoadHistory(ctx, "u1")
	require.NoError(t, err)

	require.Len(t, h.Substances, 2)
	assert.Equal(t, harm.EventID("s1"), h.Substances[0].ID, "ordered by occurred_at")

	require.Len(t, h.Interventions, 2)
	require.NotNil(t, h.Interventions[0].Quality)
	assert.Equal(t, 7, *h.Interventions[0].Quality)
	assert.Nil(t, h.Interventions[1].Quality)

	require.Len(t, h.Breaks, 1)
	require.NotNil(t, h.Breaks[0].End)
	assert.True(t, h.Breaks[0].End.Equal(end))
	assert.Equal(t, harm.BreakCompleted, h.Breaks[0].Status)

	require.NotNil(t, h.Profile)
	assert.Equal(t, 30, *h.Profile.Age)
	assert.Equal(t, harm.SexFemale, h.Profile.Sex)
	assert.Equal(t, []string{"hepatic"}, h.Profile.HealthConditions)
	assert.Empty(t, h.Profile.PsychiatricConditions)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []harm.UserID{"u1", "u2"}, users)
}

func TestStore_BreakGetAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBreak(ctx, harm.AbstinenceBreak{
		ID: "b1", UserID: "u1", Scope: harm.CategoryAlcohol, Start: harm.NewDate(2026, 3, 1),
		Status: harm.BreakActive, CreatedAt: noon,
	}))
	b, err := store.GetBreak(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Nil(t, b.End)
	assert.Equal(t, harm.CategoryAlcohol, b.Scope)

	require.NoError(t, store.DeleteBreak(ctx, "u1", "b1", noon))
	_, err = store.GetBreak(ctx, "u1", "b1")
	assert.True(t, harm.IsNotFound(err))

	require.NoError(t, store.SaveIntervention(ctx, harm.InterventionEvent{ID: "i1", UserID: "u1", Kind: harm.InterventionSocial, OccurredAt: noon, CreatedAt: noon}))
	require.NoError(t, store.DeleteIntervention(ctx, "u1", "i1", noon))
	assert.ErrorIs(t, store.DeleteIntervention(ctx, "u1", "i1", noon), harm.ErrNotFound)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestStore_UpsertSnapshotOneRowPerDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	d := harm.NewDate(2026, 4, 1)

	snap := harm.HarmSnapshot{
		UserID:                "u1",
		Date:                  d,
		Score:                 decimal.RequireFromString("4.24"),
		AllTimeScore:          decimal.RequireFromString("6"),
		SubstanceHarm:         decimal.RequireFromString("4.24"),
		InterventionReduction: decimal.Zero,
		DecayReduction:        decimal.RequireFromString("1.76"),
		Factors:               harm.FactorCounts{SubstanceEvents: 1},
	}
	require.NoError(t, store.UpsertSnapshot(ctx, snap))
	snap.Score = decimal.RequireFromString("2.24")
	snap.InterventionReduction = decimal.RequireFromString("2")
	require.NoError(t, store.UpsertSnapshot(ctx, snap))

	got, err := store.GetSnapshot(ctx, "u1", d)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2.24", got.Score.StringFixed(2))
	assert.Equal(t, "6.00", got.AllTimeScore.StringFixed(2))
	assert.Equal(t, 1, got.Factors.SubstanceEvents)

	missing, err := store.GetSnapshot(ctx, "u1", d.AddDays(1))
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := store.ListSnapshots(ctx, "u1", d.AddDays(-7), d.AddDays(7))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_RecomputeTwiceIsByteIdentical(t *testing.T) {
	// GIVEN: A tracker over SQLite with logged events
	// WHEN: RecomputeAndStore runs twice with no event changes
	// THEN: The stored row text is identical

	store := newTestStore(t)
	ctx := context.Background()
	now := noon
	tr := tracker.New(store, harm.NewAggregator(substance.DefaultRateTable()),
		tracker.WithClock(func() time.Time { return now }))

	_, err := tr.LogSubstance(ctx, tracker.SubstanceDraft{
		UserID: "u1", Category: harm.CategoryAlcohol, Subtype: substance.Beer,
		Quantity: 2, Context: harm.ContextSmallSocial, OccurredAt: noon.Add(-26 * time.Hour),
	})
	require.NoError(t, err)

	_, err = tr.RecomputeAndStore(ctx, "u1")
	require.NoError(t, err)
	first, err := store.RawSnapshotRow(ctx, "u1", harm.DateOf(now))
	require.NoError(t, err)

	now = noon.Add(3 * time.Hour)
	_, err = tr.RecomputeAndStore(ctx, "u1")
	require.NoError(t, err)
	second, err := store.RawSnapshotRow(ctx, "u1", harm.DateOf(now))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "2026-04-01", first[1])
	assert.Equal(t, "6.00", first[3])
}

func TestStore_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harm.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveRiskProfile(ctx, harm.UserRiskProfile{UserID: "u1", UpdatedAt: noon}))
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	users, err := reopened.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []harm.UserID{"u1"}, users)
}

func TestStore_ClosedDatabaseIsStoreUnavailable(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.LoadHistory(context.Background(), "u1")
	assert.ErrorIs(t, err, harm.ErrStoreUnavailable)
	assert.True(t, harm.IsRetryable(err))
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRiskProfile(ctx, harm.UserRiskProfile{UserID: "u1", UpdatedAt: noon}))
	require.NoError(t, store.Reset(ctx))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}
