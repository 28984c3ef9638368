package harm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harm-index/harm"
)

func replayHistory() harm.History {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	return harm.History{
		UserID: testUser,
		Substances: []harm.SubstanceEvent{
			beerEvent("e1", at),
			beerEvent("e2", at.AddDate(0, 0, 3)),
		},
		Interventions: []harm.InterventionEvent{
			{ID: "i1", Kind: harm.InterventionExercise, Magnitude: 30, OccurredAt: at.AddDate(0, 0, 4)},
		},
	}
}

func TestReplay_OnePointPerDayMatchingAggregate(t *testing.T) {
	// GIVEN: A short history
	// WHEN: Replayed across two weeks
	// THEN: Each point equals a direct Aggregate at that day's end

	agg := newAggregator()
	h := replayHistory()
	from, to := harm.NewDate(2026, 3, 30), harm.NewDate(2026, 4, 12)

	points, err := agg.ReplayAll(context.Background(), harm.ReplayInput{History: h, From: from, To: to})
	require.NoError(t, err)
	require.Len(t, points, 14)

	for i, pt := range points {
		assert.True(t, pt.Date.Equal(from.AddDays(i)))
		direct, err := agg.Aggregate(h, pt.Date.EndOfDay())
		require.NoError(t, err)
		assert.True(t, direct.CurrentScore.Equal(pt.Score), "day %s", pt.Date)
	}

	assertDecimal(t, "0.00", points[0].Score, "before any event")
	assertDecimal(t, "6.00", points[2].Breakdown.AllTimeScore)
	assertDecimal(t, "12.00", points[13].Breakdown.AllTimeScore)
}

func TestReplay_SingleDay(t *testing.T) {
	d := harm.NewDate(2026, 4, 1)
	points, err := newAggregator().ReplayAll(context.Background(), harm.ReplayInput{History: replayHistory(), From: d, To: d})
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestReplay_Restartable(t *testing.T) {
	agg := newAggregator()
	seq := agg.Replay(context.Background(), harm.ReplayInput{
		History: replayHistory(),
		From:    harm.NewDate(2026, 4, 1),
		To:      harm.NewDate(2026, 4, 8),
	})

	collect := func() []string {
		var out []string
		for pt, err := range seq {
			require.NoError(t, err)
			out = append(out, pt.Score.StringFixed(2))
		}
		return out
	}

	first := collect()
	second := collect()
	assert.Equal(t, first, second)
	assert.Len(t, first, 8)
}

func TestReplay_EarlyBreakStopsCleanly(t *testing.T) {
	n := 0
	for _, err := range newAggregator().Replay(context.Background(), harm.ReplayInput{
		History: replayHistory(),
		From:    harm.NewDate(2026, 1, 1),
		To:      harm.NewDate(2026, 12, 31),
	}) {
		require.NoError(t, err)
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestReplay_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newAggregator().ReplayAll(ctx, harm.ReplayInput{
		History: replayHistory(),
		From:    harm.NewDate(2026, 4, 1),
		To:      harm.NewDate(2026, 4, 30),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplay_InvalidRange(t *testing.T) {
	agg := newAggregator()
	ctx := context.Background()

	_, err := agg.ReplayAll(ctx, harm.ReplayInput{From: harm.NewDate(2026, 4, 2), To: harm.NewDate(2026, 4, 1)})
	assert.ErrorIs(t, err, harm.ErrInvalidRange)

	_, err = agg.ReplayAll(ctx, harm.ReplayInput{From: harm.NewDate(2000, 1, 1), To: harm.NewDate(2026, 1, 1)})
	assert.ErrorIs(t, err, harm.ErrInvalidRange)

	_, err = agg.ReplayAll(ctx, harm.ReplayInput{To: harm.NewDate(2026, 1, 1)})
	assert.ErrorIs(t, err, harm.ErrInvalidRange)
}

func TestReplay_CapLimitsToday(t *testing.T) {
	// GIVEN: An event later today than "now"
	// WHEN: Replayed with Cap = now
	// THEN: Today's point does not see it

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	h := harm.History{UserID: testUser, Substances: []harm.SubstanceEvent{beerEvent("e1", now.Add(3*time.Hour))}}
	d := harm.DateOf(now)

	points, err := newAggregator().ReplayAll(context.Background(), harm.ReplayInput{History: h, From: d, To: d, Cap: now})
	require.NoError(t, err)
	assertDecimal(t, "0.00", points[0].Score)
}
