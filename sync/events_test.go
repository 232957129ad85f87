package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_FanOut(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(Event{Type: EventState, State: StateDone})

	assert.Equal(t, StateDone, (<-a).State)
	assert.Equal(t, StateDone, (<-b).State)
}

func TestEventBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()

	for i := 0; i < cap(ch)+5; i++ {
		bus.Publish(Event{Type: EventAction})
	}

	assert.Len(t, ch, cap(ch))
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// A publish after unsubscribe must not reach the closed channel.
	bus.Publish(Event{Type: EventState, State: StateDone})
}
