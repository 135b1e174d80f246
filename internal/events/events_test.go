package events

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"ovenbook/internal/model"
)

func TestTopicFor(t *testing.T) {
	assert.Equal(t, TopicAutoCancelled, TopicFor(model.EventAutoCancelled))
	assert.Equal(t, TopicCreated, TopicFor(model.EventCreated))
	assert.Equal(t, TopicRemoved, TopicFor(model.EventRemoved))
}

func TestEventBusDispatch(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	var typed, all []string
	bus.Subscribe(TopicCancelled, func(_ context.Context, e Event) error {
		typed = append(typed, e.Type)
		return errors.New("handler failure is swallowed")
	})
	bus.SubscribeAll(func(_ context.Context, e Event) error {
		all = append(all, e.Type)
		return nil
	})

	bus.Publish(context.Background(), Event{Type: TopicCancelled})
	bus.Publish(context.Background(), Event{Type: TopicCreated})

	assert.Equal(t, []string{TopicCancelled}, typed)
	assert.Equal(t, []string{TopicCancelled, TopicCreated}, all)
}

func TestEventBusStampsTime(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	var got Event
	bus.Subscribe(TopicCreated, func(_ context.Context, e Event) error {
		got = e
		return nil
	})
	bus.Publish(context.Background(), Event{Type: TopicCreated})
	assert.False(t, got.OccurredAt.IsZero())
}
