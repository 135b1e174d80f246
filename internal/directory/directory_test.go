package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ovenbook/internal/events"
	"ovenbook/internal/model"
)

type countingSource struct {
	ovens map[int64]*model.Oven
	lists int
	gets  int
}

func (s *countingSource) ListOvens(context.Context) ([]*model.Oven, error) {
	s.lists++
	out := make([]*model.Oven, 0, len(s.ovens))
	for id := int64(1); id <= int64(len(s.ovens)); id++ {
		cp := *s.ovens[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *countingSource) GetOven(_ context.Context, id int64) (*model.Oven, error) {
	s.gets++
	o, ok := s.ovens[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *o
	return &cp, nil
}

func setup(t *testing.T) (*Directory, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	src := &countingSource{ovens: map[int64]*model.Oven{
		1: {ID: 1, Name: "O1", Type: model.OvenTypeAqueous, Status: model.OvenAvailable, MaxTemp: 200},
		2: {ID: 2, Name: "O2", Type: model.OvenTypeNonAqueous, Status: model.OvenAvailable, MaxTemp: 300},
	}}
	d := New(src, zerolog.Nop())
	d.UseRedisCache(client, time.Minute)
	return d, src, mr
}

func TestReadThrough(t *testing.T) {
	d, src, _ := setup(t)
	ctx := context.Background()

	first, err := d.ListOvens(ctx)
	require.NoError(t, err)
	second, err := d.ListOvens(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.lists)

	o, err := d.GetOven(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "O2", o.Name)
	_, err = d.GetOven(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, src.gets)

	_, err = d.GetOven(ctx, 9)
	assert.Error(t, err)
}

func TestInvalidateOnOvenEvent(t *testing.T) {
	d, src, mr := setup(t)
	ctx := context.Background()
	bus := events.NewEventBus(zerolog.Nop())
	d.Subscribe(bus)

	_, err := d.GetOven(ctx, 1)
	require.NoError(t, err)
	_, err = d.ListOvens(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(ovenKey(1)))

	src.ovens[1].Status = model.OvenMaintenance
	bus.Publish(ctx, events.Event{Type: events.TopicOvenMaintenance, Oven: &model.Oven{ID: 1}})
	assert.False(t, mr.Exists(ovenKey(1)))
	assert.False(t, mr.Exists(listKey))

	o, err := d.GetOven(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.OvenMaintenance, o.Status)
	assert.Equal(t, 2, src.gets)
}

func TestCacheExpires(t *testing.T) {
	d, src, mr := setup(t)
	ctx := context.Background()

	_, err := d.ListOvens(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = d.ListOvens(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.lists)
}

func TestWithoutRedis(t *testing.T) {
	src := &countingSource{ovens: map[int64]*model.Oven{1: {ID: 1, Name: "O1"}}}
	d := New(src, zerolog.Nop())
	_, err := d.ListOvens(context.Background())
	require.NoError(t, err)
	_, err = d.ListOvens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.lists)
	d.Invalidate(context.Background(), 1)
}
