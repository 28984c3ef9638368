package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/harm-index/api"
	"github.com/warp/harm-index/harm"
	"github.com/warp/harm-index/harm/store"
	"github.com/warp/harm-index/tracker"
)

func seed(t *testing.T, tr *tracker.Tracker, users ...harm.UserID) {
	t.Helper()
	for _, u := range users {
		_, err := tr.LogSubstance(context.Background(), tracker.SubstanceDraft{
			UserID: u, Category: harm.CategoryAlcohol, Quantity: 1, OccurredAt: noon,
		})
		require.NoError(t, err)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	mem := store.NewMemory()
	tr := newTestTracker(mem)
	seed(t, tr, "u1", "u2", "u3")

	core, logs := observer.New(zap.InfoLevel)
	s := api.NewSnapshotScheduler(tr, zap.New(core))

	res, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Users)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, res, s.Last())
	assert.Equal(t, 1, logs.FilterMessage("recompute run complete").Len())
	assert.Equal(t, 1, mem.SnapshotCount("u1"))
}

func TestScheduler_ListFailure(t *testing.T) {
	mem := store.NewMemory()
	s := api.NewSnapshotScheduler(newTestTracker(mem), nil)
	mem.SetFailure(errors.New("locked"))

	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, harm.ErrStoreUnavailable)
}

func TestScheduler_StartStop(t *testing.T) {
	mem := store.NewMemory()
	tr := newTestTracker(mem)
	seed(t, tr, "u1")

	s := api.NewSnapshotScheduler(tr, nil)
	s.Interval = time.Hour
	s.Start()
	s.Start() // no-op while running

	// The first run happens immediately on start.
	require.Eventually(t, func() bool { return s.Last().Users == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestScheduler_Disabled(t *testing.T) {
	s := api.NewSnapshotScheduler(newTestTracker(store.NewMemory()), nil)
	s.Enabled = false
	s.Start()
	s.Stop()
	assert.Zero(t, s.Last().Users)
}
