package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishOrder(t *testing.T) {
	bus := NewBus()
	var order []string

	bus.Subscribe(EventIssueAdded, 10, func(Event) { order = append(order, "low") })
	bus.Subscribe(EventIssueAdded, 1, func(Event) { order = append(order, "high") })
	bus.Subscribe(EventIssueAdded, 1, func(Event) { order = append(order, "high2") })

	bus.Publish(EventIssueAdded, nil)

	assert.Equal(t, []string{"high", "high2", "low"}, order)
}

func TestWildcardSubscriber(t *testing.T) {
	bus := NewBus()
	var seen []string

	bus.Subscribe("*", 0, func(ev Event) { seen = append(seen, ev.Name) })

	bus.Publish(EventIssueAdded, nil)
	bus.Publish(EventAlertSent, nil)

	assert.Equal(t, []string{EventIssueAdded, EventAlertSent}, seen)
}

func TestHandlerPanicIsolation(t *testing.T) {
	bus := NewBus()
	called := false

	bus.Subscribe(EventAlertSent, 0, func(Event) { panic("boom") })
	bus.Subscribe(EventAlertSent, 1, func(Event) { called = true })

	assert.NotPanics(t, func() { bus.Publish(EventAlertSent, nil) })
	assert.True(t, called)
}

func TestPayloadDelivery(t *testing.T) {
	bus := NewBus()
	var got any

	bus.Subscribe(EventCycleDone, 0, func(ev Event) { got = ev.Payload })
	bus.Publish(EventCycleDone, 42)

	assert.Equal(t, 42, got)
}
