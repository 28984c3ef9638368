/*
replay.go - Daily time series for charts

PURPOSE:
  Produces one point per calendar day in [From, To] by calling the aggregator
  with reference = end of that day. There is no running total: each point is
  an independent Aggregate call, so a chart value and a point-in-time query for
  the same day can never disagree.

SEQUENCE PROPERTIES:
  - Lazy: points are computed as the consumer pulls them
  - Finite: bounded by the range (at most MaxReplayDays)
  - Restartable: ranging over the sequence again recomputes from scratch
  - Abandonable: a cancelled context stops the sequence with ctx.Err()

EXAMPLE:
  for pt, err := range agg.Replay(ctx, harm.ReplayInput{History: h, From: d1, To: d2}) {
      if err != nil {
          return err
      }
      chart = append(chart, pt)
  }

SEE ALSO:
  - aggregate.go: the algorithm each point runs
*/
package harm

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

// MaxReplayDays bounds one replay request (ten years).
const MaxReplayDays = 3660

// Point is one day of the series.
type Point struct {
	Date      Date
	Score     decimal.Decimal
	Breakdown ScoreBreakdown
}

// ReplayInput describes a replay request.
type ReplayInput struct {
	History History
	From    Date
	To      Date

	// Cap, when set, bounds each day's reference instant (typically "now" so
	// today's point never looks past the present).
	Cap time.Time
}

// ReferenceFor returns the instant a day is scored at.
func (in ReplayInput) ReferenceFor(d Date) time.Time {
	ref := d.EndOfDay()
	if !in.Cap.IsZero() && in.Cap.Before(ref) {
		return in.Cap
	}
	return ref
}

// ValidateRange checks From <= To and the span limit.
func ValidateRange(from, to Date) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidRange)
	}
	if from.After(to) {
		return fmt.Errorf("%w: from %s after to %s", ErrInvalidRange, from, to)
	}
	if n := DaysBetween(from, to) + 1; n > MaxReplayDays {
		return fmt.Errorf("%w: %d days exceeds %d", ErrInvalidRange, n, MaxReplayDays)
	}
	return nil
}

// Replay returns the lazy daily series. An invalid range yields a single error.
func (a *Aggregator) Replay(ctx context.Context, in ReplayInput) iter.Seq2[Point, error] {
	return func(yield func(Point, error) bool) {
		if err := ValidateRange(in.From, in.To); err != nil {
			yield(Point{}, err)
			return
		}
		p := prepare(in.History)
		for d := in.From; d.BeforeOrEqual(in.To); d = d.AddDays(1) {
			if err := ctx.Err(); err != nil {
				yield(Point{}, err)
				return
			}
			b, err := a.aggregatePrepared(p, in.ReferenceFor(d))
			if err != nil {
				yield(Point{}, fmt.Errorf("replay %s: %w", d, err))
				return
			}
			if !yield(Point{Date: d, Score: b.CurrentScore, Breakdown: b}, nil) {
				return
			}
		}
	}
}

// ReplayAll collects the full series.
func (a *Aggregator) ReplayAll(ctx context.Context, in ReplayInput) ([]Point, error) {
	var points []Point
	if err := ValidateRange(in.From, in.To); err == nil {
		points = make([]Point, 0, DaysBetween(in.From, in.To)+1)
	}
	for pt, err := range a.Replay(ctx, in) {
		if err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	return points, nil
}
