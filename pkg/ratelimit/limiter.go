// Package ratelimit implements the process-wide cloud API gate: a caller
// acquiring it is suspended until at least T_api has elapsed since the
// previous release. It is shared by every drive worker, so cloud calls
// across all drives are serialized to a minimum inter-call gap — not a
// FIFO queue, just mutual exclusion with a floor on cadence.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// TAPI is the minimum interval between any two cloud API calls.
const TAPI = 3 * time.Second

// Gate is a token bucket with burst 1 refilled every TAPI, which is exactly
// "suspend until now - last_release >= TAPI, then reset" expressed as a
// rate limiter instead of a hand-rolled mutex+clock.
type Gate struct {
	limiter *rate.Limiter
}

// New builds a gate with the standard 3 s cadence.
func New() *Gate {
	return &Gate{limiter: rate.NewLimiter(rate.Every(TAPI), 1)}
}

// Acquire blocks until the gate permits the next cloud call, or ctx is
// cancelled first.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
