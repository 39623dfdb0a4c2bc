// Package reaper periodically reclaims sessions abandoned without a clean
// end: rooms whose last activity is stale get completed and their
// ephemeral keys removed.
package reaper

import (
	"context"
	"log"
	"time"
)

// Sweeper reclaims inactive sessions. Satisfied by the coordinator.
type Sweeper interface {
	ReapExpired(ctx context.Context, olderThan time.Duration) (int, error)
}

// Reaper runs a sweep on a fixed interval.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration
	maxIdle  time.Duration
}

// New creates a Reaper that sweeps every interval, reclaiming rooms idle
// longer than maxIdle.
func New(sweeper Sweeper, interval, maxIdle time.Duration) *Reaper {
	return &Reaper{sweeper: sweeper, interval: interval, maxIdle: maxIdle}
}

// Run sweeps until the context is cancelled. The first sweep happens after
// one full interval.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("session reaper started interval=%s max_idle=%s", r.interval, r.maxIdle)
	for {
		select {
		case <-ctx.Done():
			log.Printf("session reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.sweeper.ReapExpired(ctx, r.maxIdle); err != nil {
				log.Printf("reap sweep failed err=%v", err)
			}
		}
	}
}
