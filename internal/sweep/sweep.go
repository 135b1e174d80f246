// Package sweep drives the lazy auto-completion of ended bookings. Reads
// trigger it opportunistically and an optional ticker runs it periodically;
// both paths are throttled so bursts of reads do not stampede the store.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ovenbook/internal/clock"
	"ovenbook/internal/metrics"
)

const lockKey = "ovenbook:sweep:lock"

// Completer transitions every ended ACTIVE booking to COMPLETED.
type Completer interface {
	AutoCompleteBookings(ctx context.Context) (int, error)
}

type Config struct {
	// MinGap is the shortest time between two sweeps. Zero disables throttling.
	MinGap time.Duration
	// Interval enables the background loop when positive.
	Interval time.Duration
}

type Runner struct {
	completer Completer
	clock     clock.Clock
	cfg       Config
	limiter   *rate.Limiter
	redis     *redis.Client
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewRunner(completer Completer, clk clock.Clock, cfg Config, logger zerolog.Logger) *Runner {
	r := &Runner{
		completer: completer,
		clock:     clk,
		cfg:       cfg,
		logger:    logger.With().Str("component", "sweep").Logger(),
	}
	if cfg.MinGap > 0 {
		r.limiter = rate.NewLimiter(rate.Every(cfg.MinGap), 1)
	}
	return r
}

// UseRedisLock shares the throttle between instances through a Redis key.
func (r *Runner) UseRedisLock(client *redis.Client) {
	r.redis = client
}

// Trigger runs a sweep unless one ran within MinGap. It returns the number
// of bookings completed; a skipped sweep returns 0 and no error.
func (r *Runner) Trigger(ctx context.Context) (int, error) {
	if !r.acquire(ctx) {
		metrics.IncSweepSkipped()
		return 0, nil
	}
	return r.Run(ctx)
}

// Run sweeps unconditionally.
func (r *Runner) Run(ctx context.Context) (int, error) {
	n, err := r.completer.AutoCompleteBookings(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("sweep failed")
		return 0, err
	}
	if n > 0 {
		r.logger.Info().Int("completed", n).Msg("bookings auto-completed")
	}
	return n, nil
}

func (r *Runner) acquire(ctx context.Context) bool {
	if r.cfg.MinGap <= 0 {
		return true
	}
	if r.redis != nil {
		ok, err := r.redis.SetNX(ctx, lockKey, r.clock.Now().UTC().Format(time.RFC3339Nano), r.cfg.MinGap).Result()
		if err == nil {
			return ok
		}
		r.logger.Warn().Err(err).Msg("redis sweep lock unavailable, using local throttle")
	}
	return r.limiter.AllowN(r.clock.Now(), 1)
}

// Start runs the periodic loop until ctx is done or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		return
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		r.logger.Info().Dur("interval", r.cfg.Interval).Msg("sweep loop started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				_, _ = r.Trigger(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.running {
		r.running = false
		close(r.stopCh)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
