package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventOrderPlaced, 4)
	defer unsub()

	b.Publish(Message{
		Event:          EventOrderPlaced,
		SubscriptionID: "sub-1",
		Symbol:         "BTCUSDT",
		Price:          50000,
	})

	select {
	case got := <-ch:
		if got.SubscriptionID != "sub-1" || got.Price != 50000 {
			t.Fatalf("message = %+v", got)
		}
		if got.At.IsZero() {
			t.Fatal("publish should stamp At")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSubscribeAllSeesEveryTopic(t *testing.T) {
	b := NewBus()
	all, unsub := b.SubscribeAll(8)
	defer unsub()

	b.Publish(Message{Event: EventOrderPlaced, SubscriptionID: "sub-1"})
	b.Publish(Message{Event: EventRiskAlert, SubscriptionID: "sub-1", Reason: "cooldown"})

	var got []Event
	for i := 0; i < 2; i++ {
		select {
		case msg := <-all:
			got = append(got, msg.Event)
		case <-time.After(time.Second):
			t.Fatalf("only %d of 2 events delivered", len(got))
		}
	}
	if got[0] != EventOrderPlaced || got[1] != EventRiskAlert {
		t.Fatalf("events = %v", got)
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe(EventOrderPlaced, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Buffer of 1, nobody reading: the second publish must drop.
		b.Publish(Message{Event: EventOrderPlaced, SubscriptionID: "a"})
		b.Publish(Message{Event: EventOrderPlaced, SubscriptionID: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventRiskAlert, 4)
	unsub()

	b.Publish(Message{Event: EventRiskAlert, SubscriptionID: "sub-1"})

	if _, ok := <-ch; ok {
		t.Fatal("unsubscribed channel should be closed and empty")
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := NewBus()
	orders, unsubOrders := b.Subscribe(EventOrderPlaced, 4)
	defer unsubOrders()

	b.Publish(Message{Event: EventPositionClosed, SubscriptionID: "sub-1"})

	select {
	case got := <-orders:
		t.Fatalf("received event from another topic: %+v", got)
	default:
	}
}
