package events_test

import (
	"testing"

	"github.com/chittyos/chittychain/internal/ledger/events"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := events.New()
	var order []int
	bus.Subscribe(func(any) { order = append(order, 1) })
	bus.Subscribe(func(any) { order = append(order, 2) })

	bus.Publish(events.BlockCommitted{Index: 1})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.New()
	calls := 0
	unsubscribe := bus.Subscribe(func(any) { calls++ })
	bus.Publish(events.BlockCommitted{Index: 1})
	unsubscribe()
	bus.Publish(events.BlockCommitted{Index: 2})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPublishDeliversTypedEvent(t *testing.T) {
	bus := events.New()
	var got any
	bus.Subscribe(func(e any) { got = e })
	bus.Publish(events.ArtifactMinted{ID: "a1", BlockIndex: 3})
	minted, ok := got.(events.ArtifactMinted)
	if !ok || minted.ID != "a1" || minted.BlockIndex != 3 {
		t.Fatalf("got = %#v, want ArtifactMinted{a1, 3}", got)
	}
}
