package pending

import (
	"testing"
	"time"

	"deconz-adapter/internal/aps"
)

func mustTsn(v uint8) *uint8 { return &v }

func TestTableMatchResolvesAndRemoves(t *testing.T) {
	tbl := New(nil)
	ch := tbl.Register(0x1234, 0x0000, 0x8002, nil, time.Second)

	resp := &aps.DataResponse{SrcAddr16: 0x1234, ProfileID: 0x0000, ClusterID: 0x8002}
	if !tbl.Match(resp, nil) {
		t.Fatal("expected match")
	}
	select {
	case res := <-ch:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Response != resp {
			t.Fatal("resolved with wrong response")
		}
	default:
		t.Fatal("expected a result to be available")
	}
	if tbl.Len() != 0 {
		t.Fatalf("entry not removed after match, Len()=%d", tbl.Len())
	}
}

func TestTableMatchRequiresTsnWhenSet(t *testing.T) {
	tbl := New(nil)
	ch := tbl.Register(0x1234, 0x0104, 0x0006, mustTsn(7), time.Second)

	resp := &aps.DataResponse{SrcAddr16: 0x1234, ProfileID: 0x0104, ClusterID: 0x0006}
	if tbl.Match(resp, mustTsn(8)) {
		t.Fatal("must not match on wrong tsn")
	}
	if tbl.Match(resp, nil) {
		t.Fatal("must not match when responder tsn is absent but entry wants one")
	}
	if !tbl.Match(resp, mustTsn(7)) {
		t.Fatal("expected match with correct tsn")
	}
	select {
	case res := <-ch:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
	default:
		t.Fatal("expected a result")
	}
}

func TestTableSweepExpiresOldEntries(t *testing.T) {
	tbl := New(nil)
	ch := tbl.Register(0x1234, 0x0000, 0x8002, nil, 10*time.Millisecond)

	tbl.sweepOnce(time.Now().Add(-1 * time.Millisecond)) // not yet expired
	select {
	case <-ch:
		t.Fatal("should not have expired yet")
	default:
	}

	tbl.sweepOnce(time.Now().Add(time.Hour)) // force expiry
	select {
	case res := <-ch:
		if res.Err != ErrTimeout {
			t.Fatalf("expected ErrTimeout, got %v", res.Err)
		}
	default:
		t.Fatal("expected timeout result")
	}
	if tbl.Len() != 0 {
		t.Fatalf("expired entry not removed, Len()=%d", tbl.Len())
	}
}

func TestTableDefaultTimeoutAppliedForNonPositive(t *testing.T) {
	tbl := New(nil)
	ch := tbl.Register(0x1234, 0x0000, 0x8002, nil, 0)
	tbl.mu.Lock()
	got := tbl.entries[0].timeout
	tbl.mu.Unlock()
	if got != DefaultTimeout {
		t.Fatalf("timeout = %v, want default %v", got, DefaultTimeout)
	}
	_ = ch
}

func TestTableStartStopSweeper(t *testing.T) {
	tbl := New(nil)
	tbl.Start()
	ch := tbl.Register(0x1234, 0x0000, 0x8002, nil, 5*time.Millisecond)
	select {
	case res := <-ch:
		if res.Err != ErrTimeout {
			t.Fatalf("expected ErrTimeout, got %v", res.Err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("sweeper did not expire entry in time")
	}
	tbl.Stop()
}
