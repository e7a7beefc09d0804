package aps

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitQueueBoundsConcurrency(t *testing.T) {
	q := NewSubmitQueue(2)
	var active atomic.Int32
	var maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Submit(context.Background(), func() error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := maxActive.Load(); got > 2 {
		t.Fatalf("max concurrent submissions = %d, want <= 2", got)
	}
}

func TestSubmitQueueRespectsContextCancel(t *testing.T) {
	q := NewSubmitQueue(1)
	block := make(chan struct{})
	go func() {
		_ = q.Submit(context.Background(), func() error {
			<-block
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // ensure the slot is taken

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Submit(ctx, func() error { return nil })
	if err == nil {
		t.Fatal("expected context deadline error, got nil")
	}
	close(block)
}
