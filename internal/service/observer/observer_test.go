package observer

import "testing"

func TestRegistry_NotifyInSubscriptionOrder(t *testing.T) {
	var r Registry
	var calls []int

	r.Subscribe(func() { calls = append(calls, 1) })
	unsubscribe := r.Subscribe(func() { calls = append(calls, 2) })
	r.Subscribe(func() { calls = append(calls, 3) })

	r.Notify()
	if len(calls) != 3 || calls[0] != 1 || calls[1] != 2 || calls[2] != 3 {
		t.Fatalf("unexpected call order: %v", calls)
	}

	unsubscribe()
	unsubscribe()
	calls = nil
	r.Notify()
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 3 {
		t.Fatalf("unexpected calls after unsubscribe: %v", calls)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", r.Len())
	}
}

func TestRegistry_SubscriberMayResubscribe(t *testing.T) {
	var r Registry
	fired := 0
	r.Subscribe(func() {
		fired++
		r.Subscribe(func() {})
	})

	r.Notify()
	if fired != 1 {
		t.Fatalf("expected 1 call, got %d", fired)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", r.Len())
	}
}

func TestRegistry_NilFunc(t *testing.T) {
	var r Registry
	r.Subscribe(nil)()
	if r.Len() != 0 {
		t.Fatal("nil subscriber must not be registered")
	}
}
