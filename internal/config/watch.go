package config

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OvensSyncFunc applies a validated ovens.yaml to the oven store.
type OvensSyncFunc func(ctx context.Context, cfg *OvensConfig) error

// OvensWatcher polls ovens.yaml and hands every changed revision to a sync
// function. A revision that fails to parse or to sync is retried on the next
// tick; a revision identical to the last applied one is skipped.
type OvensWatcher struct {
	path     string
	interval time.Duration
	sync     OvensSyncFunc
	logger   zerolog.Logger

	mu      sync.Mutex
	lastMod time.Time
	applied *OvensConfig
}

func NewOvensWatcher(path string, interval time.Duration, sync OvensSyncFunc, logger zerolog.Logger) *OvensWatcher {
	if path == "" {
		path = "configs/ovens.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &OvensWatcher{
		path:     path,
		interval: interval,
		sync:     sync,
		logger:   logger.With().Str("component", "ovens_watcher").Str("path", path).Logger(),
	}
}

// Reload reads the file and syncs it if its content differs from the last
// applied revision. It reports whether a sync happened.
func (w *OvensWatcher) Reload(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	cfg, err := LoadOvensConfig(w.path)
	if err != nil {
		return false, err
	}
	if w.applied != nil && slices.Equal(w.applied.Ovens, cfg.Ovens) {
		w.lastMod = info.ModTime()
		return false, nil
	}
	if w.sync != nil {
		if err := w.sync(ctx, cfg); err != nil {
			return false, err
		}
	}
	w.applied = cfg
	w.lastMod = info.ModTime()
	w.logger.Info().Str("summary", cfg.String()).Msg("ovens config applied")
	return true, nil
}

// Applied returns the last synced revision, nil before the first sync.
func (w *OvensWatcher) Applied() *OvensConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applied
}

// Start applies the file once and then polls it until ctx is cancelled.
// The initial load must succeed.
func (w *OvensWatcher) Start(ctx context.Context) error {
	if _, err := w.Reload(ctx); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

func (w *OvensWatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.modified() {
				continue
			}
			if _, err := w.Reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn().Err(err).Msg("ovens config not applied, retrying")
			}
		}
	}
}

func (w *OvensWatcher) modified() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return info.ModTime().After(w.lastMod)
}
