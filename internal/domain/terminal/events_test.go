package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusFiltersByKind(t *testing.T) {
	bus := NewBus(nil)

	var all, closed []EventKind
	bus.Subscribe(func(ev Event) { all = append(all, ev.Kind) })
	bus.Subscribe(func(ev Event) { closed = append(closed, ev.Kind) }, EventClosed)

	bus.Publish(Event{Kind: EventData})
	bus.Publish(Event{Kind: EventClosed})

	assert.Equal(t, []EventKind{EventData, EventClosed}, all)
	assert.Equal(t, []EventKind{EventClosed}, closed)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	count := 0
	unsubscribe := bus.Subscribe(func(Event) { count++ })
	bus.Publish(Event{Kind: EventData})
	unsubscribe()
	bus.Publish(Event{Kind: EventData})

	assert.Equal(t, 1, count)
}

func TestBusRecoversListenerPanic(t *testing.T) {
	bus := NewBus(nil)

	delivered := false
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Publish(Event{Kind: EventPaused}) })
	assert.True(t, delivered)
}
