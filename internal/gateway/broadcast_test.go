package gateway

import "testing"

func TestBroadcaster_PublishDeliversToAllSubscribers(t *testing.T) {
	b := newBroadcaster[int](4)
	subA := b.Subscribe()
	subB := b.Subscribe()
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	b.Publish(7)

	if got := <-subA.C(); got != 7 {
		t.Errorf("subA got %d, want 7", got)
	}
	if got := <-subB.C(); got != 7 {
		t.Errorf("subB got %d, want 7", got)
	}
}

func TestBroadcaster_FullSubscriberIsKilledNotBlocked(t *testing.T) {
	b := newBroadcaster[int](1)
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer fast.Unsubscribe()

	b.Publish(1) // fills both buffers
	if got := <-fast.C(); got != 1 { // fast drains its buffer; slow does not
		t.Errorf("fast subscriber's first value = %d, want 1", got)
	}
	dropped := b.Publish(2)

	if len(dropped) != 1 {
		t.Fatalf("expected exactly one dropped subscriber, got %d", len(dropped))
	}

	if _, ok := <-slow.C(); ok {
		t.Errorf("slow subscriber's channel should be closed after being dropped")
	}

	if got := <-fast.C(); got != 2 {
		t.Errorf("fast subscriber's second value = %d, want 2", got)
	}
}

func TestBroadcaster_UnsubscribeIsIdempotent(t *testing.T) {
	b := newBroadcaster[int](1)
	sub := b.Subscribe()

	sub.Unsubscribe()
	sub.Unsubscribe() // must not panic on double close

	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("subscriber count = %d, want 0", n)
	}
}

func TestBroadcaster_CloseClosesEverySubscription(t *testing.T) {
	b := newBroadcaster[int](1)
	subA := b.Subscribe()
	subB := b.Subscribe()

	b.Close()

	if _, ok := <-subA.C(); ok {
		t.Error("subA channel should be closed")
	}
	if _, ok := <-subB.C(); ok {
		t.Error("subB channel should be closed")
	}
}
