package waitress

import (
	"testing"
	"time"
)

func TestWaitressOfferResolvesMatchingWaiter(t *testing.T) {
	w := New()
	m := Matcher{HasAddress: true, Address: 0x1234, Endpoint: 1, ClusterID: 0x0500, CommandIdentifier: 0x00}
	ch, cancel := w.Wait(m, time.Second)
	defer cancel()

	p := Payload{Address: 0x1234, Endpoint: 1, ClusterID: 0x0500, CommandIdentifier: 0x00}
	if !w.Offer(p) {
		t.Fatal("expected Offer to match")
	}
	select {
	case res := <-ch:
		if res.Timeout {
			t.Fatal("unexpected timeout result")
		}
		if res.Payload != p {
			t.Fatalf("resolved with wrong payload: %+v", res.Payload)
		}
	default:
		t.Fatal("expected a result to be available")
	}
	if w.Len() != 0 {
		t.Fatalf("waiter not removed after match, Len()=%d", w.Len())
	}
}

func TestWaitressOfferIgnoresNonMatchingFields(t *testing.T) {
	w := New()
	m := Matcher{HasAddress: true, Address: 0x1234, Endpoint: 1, ClusterID: 0x0500}
	_, cancel := w.Wait(m, time.Second)
	defer cancel()

	if w.Offer(Payload{Address: 0x9999, Endpoint: 1, ClusterID: 0x0500}) {
		t.Fatal("must not match on wrong address")
	}
	if w.Offer(Payload{Address: 0x1234, Endpoint: 2, ClusterID: 0x0500}) {
		t.Fatal("must not match on wrong endpoint")
	}
	if w.Offer(Payload{Address: 0x1234, Endpoint: 1, ClusterID: 0x0006}) {
		t.Fatal("must not match on wrong cluster")
	}
	if w.Len() != 1 {
		t.Fatalf("waiter should still be registered, Len()=%d", w.Len())
	}
}

func TestWaitressFirstMatchWinsInsertionOrder(t *testing.T) {
	w := New()
	m := Matcher{HasAddress: true, Address: 0x1234, Endpoint: 1, ClusterID: 0x0500}
	first, cancelFirst := w.Wait(m, time.Second)
	defer cancelFirst()
	second, cancelSecond := w.Wait(m, time.Second)
	defer cancelSecond()

	p := Payload{Address: 0x1234, Endpoint: 1, ClusterID: 0x0500}
	if !w.Offer(p) {
		t.Fatal("expected match")
	}
	select {
	case <-first:
	default:
		t.Fatal("expected first-registered waiter to resolve")
	}
	select {
	case <-second:
		t.Fatal("second waiter must not have resolved")
	default:
	}
}

func TestWaitressCancelRemovesWaiter(t *testing.T) {
	w := New()
	m := Matcher{HasAddress: true, Address: 0x1234, Endpoint: 1}
	_, cancel := w.Wait(m, time.Second)
	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", w.Len())
	}
	cancel()
	if w.Len() != 0 {
		t.Fatalf("Len() = %d after cancel, want 0", w.Len())
	}
}

func TestWaitressExpiresOnDeadline(t *testing.T) {
	w := New()
	m := Matcher{HasAddress: true, Address: 0x1234, Endpoint: 1}
	ch, cancel := w.Wait(m, 10*time.Millisecond)
	defer cancel()

	select {
	case res := <-ch:
		if !res.Timeout {
			t.Fatal("expected timeout result")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not expire in time")
	}
	if w.Len() != 0 {
		t.Fatalf("expired waiter not removed, Len()=%d", w.Len())
	}
}
