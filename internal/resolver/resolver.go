// Package resolver executes concurrency-bounded, rate-limited batch profile
// resolution with partial-failure tolerance.
package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/clock"
	"github.com/atkit/botfleet/internal/ratelimit"
)

const (
	// BatchSize is the number of identifiers per upstream request.
	BatchSize = 25
	// MaxConcurrent bounds in-flight batch requests.
	MaxConcurrent = 5
	// StaggerDelay spaces out request starts within a concurrent group.
	StaggerDelay = 50 * time.Millisecond
)

// ProfileAPI is the batch resolution endpoint.
type ProfileAPI interface {
	GetProfiles(ctx context.Context, actors []string) ([]atproto.ProfileView, atproto.RateLimitMeta, error)
}

// Stats counts the requests issued and the batches that failed during one
// Resolve call. The caller decides whether cumulative errors breach its
// abort threshold.
type Stats struct {
	Requests int
	Errors   int
}

// Resolver fans identifier batches out to the profile API.
type Resolver struct {
	api     ProfileAPI
	limiter *ratelimit.Limiter
	host    string
	clock   clock.Clock
	logger  *zap.Logger
}

// New builds a Resolver. host labels the limiter state the resolver gates on.
func New(api ProfileAPI, limiter *ratelimit.Limiter, host string, clk clock.Clock, logger *zap.Logger) *Resolver {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		api:     api,
		limiter: limiter,
		host:    host,
		clock:   clk,
		logger:  logger,
	}
}

// Resolve splits ids into batches of BatchSize, runs up to MaxConcurrent
// batches at a time, and merges results keyed by identifier. A failed batch
// contributes zero results and one error count; it never aborts siblings.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (map[string]atproto.ProfileView, Stats) {
	merged := make(map[string]atproto.ProfileView, len(ids))
	stats := Stats{}

	var batches [][]string
	for i := 0; i < len(ids); i += BatchSize {
		end := min(i+BatchSize, len(ids))
		batches = append(batches, ids[i:end])
	}

	for i := 0; i < len(batches); i += MaxConcurrent {
		group := batches[i:min(i+MaxConcurrent, len(batches))]

		// Cancellation is not a batch failure; hand back what resolved so far.
		if err := r.limiter.WaitN(ctx, r.host, len(group)); err != nil {
			r.logger.Warn("rate limit wait aborted", zap.Error(err))
			return merged, stats
		}

		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for idx, batch := range group {
			wg.Add(1)
			go func(idx int, batch []string) {
				defer wg.Done()
				r.clock.Sleep(ctx, time.Duration(idx)*StaggerDelay)

				profiles, meta, err := r.api.GetProfiles(ctx, batch)
				mu.Lock()
				defer mu.Unlock()
				stats.Requests++
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.Errors++
					r.recordFailure(batch, err)
					return
				}
				r.limiter.Update(r.host, meta)
				for _, p := range profiles {
					merged[p.DID] = p
				}
			}(idx, batch)
		}
		wg.Wait()

		r.clock.Sleep(ctx, StaggerDelay)
	}

	return merged, stats
}

func (r *Resolver) recordFailure(batch []string, err error) {
	var se *atproto.StatusError
	if errors.As(err, &se) && se.RateLimit.Present {
		r.limiter.Update(r.host, se.RateLimit)
	}
	if atproto.IsRateLimited(err) {
		r.logger.Error("batch rejected by rate limit", zap.Int("size", len(batch)), zap.Error(err))
		return
	}
	r.logger.Error("batch resolution failed", zap.Int("size", len(batch)), zap.Error(err))
}
