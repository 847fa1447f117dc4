package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscriberReceivesMatchingTypeOnly(t *testing.T) {
	b := NewBus(8)
	sub := b.Subscribe("cache.evicted")

	b.Publish(Event{Type: "cache.evicted", Data: map[string]interface{}{"key": "k1"}})
	b.Publish(Event{Type: "lock.expired"})

	events := sub.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, EventType("cache.evicted"), events[0].Type)
}

func TestBus_SubscribeWithNoTypesReceivesEverything(t *testing.T) {
	b := NewBus(8)
	sub := b.Subscribe()

	b.Publish(Event{Type: "cache.evicted"})
	b.Publish(Event{Type: "lock.expired"})

	assert.Len(t, sub.Drain(), 2)
}

func TestBus_PreservesEmissionOrderPerSubscriber(t *testing.T) {
	b := NewBus(8)
	sub := b.Subscribe("step")

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "step", Data: map[string]interface{}{"i": i}})
	}

	events := sub.Drain()
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, i, e.Data["i"])
	}
}

func TestBus_BoundedQueueDropsOldestAndCountsLoss(t *testing.T) {
	b := NewBus(2)
	sub := b.Subscribe("step")

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "step", Data: map[string]interface{}{"i": i}})
	}

	events := sub.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, 3, events[0].Data["i"])
	assert.Equal(t, 4, events[1].Data["i"])
	assert.Equal(t, int64(3), sub.LostEvents())
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(8)
	sub := b.Subscribe("step")
	b.Unsubscribe(sub)

	b.Publish(Event{Type: "step"})

	assert.Empty(t, sub.Drain())
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBus_TypeCountsTracksPublishedEvents(t *testing.T) {
	b := NewBus(8)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	counts := b.TypeCounts()
	assert.Equal(t, int64(2), counts[EventType("a")])
	assert.Equal(t, int64(1), counts[EventType("b")])
}

func TestBus_TotalLostSumsAcrossSubscribers(t *testing.T) {
	b := NewBus(1)
	b.Subscribe("step")
	b.Subscribe("step")

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: "step"})
	}

	assert.Equal(t, int64(4), b.TotalLost())
}

func TestBus_LastSeenTracksMostRecentPublish(t *testing.T) {
	b := NewBus(8)
	_, ok := b.LastSeen("step")
	assert.False(t, ok)

	b.Publish(Event{Type: "step"})
	at, ok := b.LastSeen("step")
	assert.True(t, ok)
	assert.WithinDuration(t, at, at, 0)
}

func TestBus_NotifySignalsNewEvent(t *testing.T) {
	b := NewBus(8)
	sub := b.Subscribe("step")

	b.Publish(Event{Type: "step"})

	select {
	case <-sub.Notify():
	default:
		t.Fatal("expected a notification after Publish")
	}
}
