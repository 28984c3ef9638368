package tracker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/harm-index/harm"
)

// DefaultConcurrency bounds RecomputeAll when no limit is given.
const DefaultConcurrency = 4

// BatchResult summarizes a RecomputeAll run.
type BatchResult struct {
	Users     int
	Succeeded int
	Failed    map[harm.UserID]error
}

// RecomputeAll refreshes today's snapshot for every known user. One user's
// failure does not stop the others; only listing users or a cancelled
// context fails the whole run.
func (t *Tracker) RecomputeAll(ctx context.Context, concurrency int) (BatchResult, error) {
	users, err := t.store.ListUsers(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var (
		mu  sync.Mutex
		res = BatchResult{Users: len(users), Failed: make(map[harm.UserID]error)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, u := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := t.RecomputeAndStore(gctx, u)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				res.Failed[u] = err
				t.log.Error("recompute failed", zap.String("user_id", string(u)), zap.Error(err))
				return nil
			}
			res.Succeeded++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	t.log.Info("recompute batch finished",
		zap.Int("users", res.Users),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}
