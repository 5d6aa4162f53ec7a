package metrics

import (
	"context"
	"time"
)

// PoolStatsFunc reports acquired and idle connection counts.
type PoolStatsFunc func() (acquired, idle int32)

// TrackPool samples stats into the DB connection gauges every interval
// until ctx is done.
func TrackPool(ctx context.Context, interval time.Duration, stats PoolStatsFunc) {
	sample := func() {
		acquired, idle := stats()
		DBConnectionsActive.Set(float64(acquired))
		DBConnectionsIdle.Set(float64(idle))
	}

	sample()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}
