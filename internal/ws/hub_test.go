package ws

import (
	"testing"

	"github.com/chartlylabs/vstate/pkg/delta"
)

func TestHubPublishFansOutToSubscribersOfSameCoordinate(t *testing.T) {
	h := NewHub()
	ch := h.subscribe("COORD1")
	defer h.unsubscribe("COORD1", ch)

	h.Publish("COORD1", TailEvent{CoordID: "COORD1", DeltaID: "D1", State: delta.Object()})

	select {
	case ev := <-ch:
		if ev.DeltaID != "D1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected an event to be delivered")
	}
}

func TestHubPublishIgnoresOtherCoordinates(t *testing.T) {
	h := NewHub()
	ch := h.subscribe("COORD1")
	defer h.unsubscribe("COORD1", ch)

	h.Publish("COORD2", TailEvent{CoordID: "COORD2", DeltaID: "D1", State: delta.Object()})

	select {
	case ev := <-ch:
		t.Fatalf("expected no event for a different coordinate, got %+v", ev)
	default:
	}
}

func TestHubPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub()
	ch := h.subscribe("COORD1")
	defer h.unsubscribe("COORD1", ch)

	for i := 0; i < subscriberBuffer+4; i++ {
		h.Publish("COORD1", TailEvent{CoordID: "COORD1", DeltaID: "D", State: delta.Object()})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
			continue
		default:
		}
		break
	}
	if count != subscriberBuffer {
		t.Fatalf("expected exactly %d buffered events, got %d", subscriberBuffer, count)
	}
}

func TestHubUnsubscribeRemovesCoordinateEntryWhenEmpty(t *testing.T) {
	h := NewHub()
	ch := h.subscribe("COORD1")
	h.unsubscribe("COORD1", ch)

	h.mu.Lock()
	_, exists := h.subs["COORD1"]
	h.mu.Unlock()
	if exists {
		t.Fatal("expected coordinate entry to be removed once its last subscriber unsubscribes")
	}
}
