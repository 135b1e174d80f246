// Package directory is the read-mostly oven lookup used by presentation and
// notification code. It reads through an optional Redis cache; booking
// validation never goes through it and always reads the store in-transaction.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ovenbook/internal/events"
	"ovenbook/internal/metrics"
	"ovenbook/internal/model"
)

const (
	keyPrefix = "ovenbook:"
	listKey   = keyPrefix + "ovens"
)

func ovenKey(id int64) string {
	return fmt.Sprintf("%soven:%d", keyPrefix, id)
}

// Source is the authoritative oven lookup.
type Source interface {
	ListOvens(ctx context.Context) ([]*model.Oven, error)
	GetOven(ctx context.Context, id int64) (*model.Oven, error)
}

type Directory struct {
	source   Source
	redis    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

func New(source Source, logger zerolog.Logger) *Directory {
	return &Directory{
		source: source,
		logger: logger.With().Str("component", "directory").Logger(),
	}
}

// UseRedisCache configures optional Redis caching of oven lookups.
func (d *Directory) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	d.redis = redisClient
	d.cacheTTL = ttl
}

// ListOvens returns all ovens.
func (d *Directory) ListOvens(ctx context.Context) ([]*model.Oven, error) {
	var cached []*model.Oven
	if d.readCache(ctx, listKey, &cached) {
		return cached, nil
	}

	ovens, err := d.source.ListOvens(ctx)
	if err != nil {
		return nil, err
	}
	d.writeCache(ctx, listKey, ovens)
	return ovens, nil
}

// GetOven returns one oven; errors from the source pass through unchanged.
func (d *Directory) GetOven(ctx context.Context, id int64) (*model.Oven, error) {
	var cached model.Oven
	if d.readCache(ctx, ovenKey(id), &cached) {
		return &cached, nil
	}

	oven, err := d.source.GetOven(ctx, id)
	if err != nil {
		return nil, err
	}
	d.writeCache(ctx, ovenKey(id), oven)
	return oven, nil
}

// Invalidate drops cached entries for the oven and the oven list.
func (d *Directory) Invalidate(ctx context.Context, ovenID int64) {
	if d.redis == nil {
		return
	}
	keys := []string{listKey}
	if ovenID != 0 {
		keys = append(keys, ovenKey(ovenID))
	}
	if err := d.redis.Del(ctx, keys...).Err(); err != nil {
		d.logger.Warn().Err(err).Int64("oven_id", ovenID).Msg("cache invalidation failed")
	}
}

// HandleEvent invalidates the cache on oven lifecycle events.
func (d *Directory) HandleEvent(ctx context.Context, e events.Event) error {
	var id int64
	if e.Oven != nil {
		id = e.Oven.ID
	}
	d.Invalidate(ctx, id)
	return nil
}

// Subscribe wires cache invalidation to the bus.
func (d *Directory) Subscribe(bus *events.EventBus) {
	for _, topic := range []string{events.TopicOvenChanged, events.TopicOvenMaintenance, events.TopicOvenAvailable} {
		bus.Subscribe(topic, d.HandleEvent)
	}
}

func (d *Directory) readCache(ctx context.Context, key string, out any) bool {
	if d.redis == nil || d.cacheTTL <= 0 {
		return false
	}
	val, err := d.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			d.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.IncOvenCache("miss")
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncOvenCache("miss")
		return false
	}
	metrics.IncOvenCache("hit")
	return true
}

func (d *Directory) writeCache(ctx context.Context, key string, val any) {
	if d.redis == nil || d.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = d.redis.Set(ctx, key, data, d.cacheTTL).Err()
}
