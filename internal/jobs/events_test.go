package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Message: "1"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "2"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "3"})

	events := bus.Since(1)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].Message)
	assert.Equal(t, "3", events[1].Message)
}

func TestEventBusSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	bus.Publish(Event{Message: "before"})

	ch, cancel := bus.Subscribe(4)
	bus.Publish(Event{Message: "after"})

	got := <-ch
	assert.Equal(t, "after", got.Message)
	assert.Equal(t, int64(2), got.Seq)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	assert.NotPanics(t, func() { bus.Publish(Event{Message: "late"}) })
}

func TestEventBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus(10)
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})

	assert.Equal(t, "1", (<-ch).Message)
	assert.Len(t, bus.Since(0), 2)
}
