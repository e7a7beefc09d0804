// Package waitress implements the second, independent request/response
// matcher described in the spec's §4.5: callers register a predicate over
// an arbitrary ZCL frame plus a deadline, and the first arriving payload
// that satisfies the predicate resolves it. It is kept deliberately
// separate from the pending-request table (internal/pending) — see the
// spec's §9 "dual matching paths" design note — because it matches on ZCL
// frame fields (endpoint, frame type, command, direction) rather than on the
// table's (address, profile, cluster, tsn) key.
package waitress

import (
	"sync"
	"time"
)

// Direction mirrors the ZCL frame-control direction bit.
type Direction uint8

const (
	DirectionToServer Direction = 0
	DirectionToClient Direction = 1
)

// FrameType mirrors the ZCL frame-control frame-type field.
type FrameType uint8

const (
	FrameTypeGlobal  FrameType = 0
	FrameTypeCluster FrameType = 1
)

// Payload is the subset of an inbound ZCL frame the waitress matches
// against. Address is a network-order-agnostic identifier: either the
// 16-bit short address or, for IEEE-addressed indications, the 64-bit
// address formatted the same way the caller supplied it to Matcher.Address.
type Payload struct {
	Address           uint64
	Endpoint          uint8
	Tsn               uint8
	FrameType         FrameType
	ClusterID         uint16
	CommandIdentifier uint8
	Direction         Direction
}

// Matcher describes what a waiter is looking for (§3.4). Address and Tsn
// are optional (zero value HasAddress/HasTsn false means "don't care").
type Matcher struct {
	Address           uint64
	HasAddress        bool
	Endpoint          uint8
	Tsn               uint8
	HasTsn            bool
	FrameType         FrameType
	ClusterID         uint16
	CommandIdentifier uint8
	Direction         Direction
}

// Matches reports whether p satisfies m (§3.4).
func (m Matcher) Matches(p Payload) bool {
	if m.HasAddress && m.Address != p.Address {
		return false
	}
	if m.Endpoint != p.Endpoint {
		return false
	}
	if m.HasTsn && m.Tsn != p.Tsn {
		return false
	}
	if m.FrameType != p.FrameType {
		return false
	}
	if m.ClusterID != p.ClusterID {
		return false
	}
	if m.CommandIdentifier != p.CommandIdentifier {
		return false
	}
	if m.Direction != p.Direction {
		return false
	}
	return true
}

// Result is delivered exactly once to a registered waiter.
type Result struct {
	Payload Payload
	Timeout bool
}

type waiter struct {
	id      uint64
	matcher Matcher
	ch      chan Result
	deadline time.Time
}

// Waitress is a multi-consumer fanout matcher: an arriving payload is
// offered to every waiter in insertion order, the first match wins, and
// the entry is removed. Uniqueness of matches is not required (§3.4).
type Waitress struct {
	mu      sync.Mutex
	waiters []*waiter
	nextID  uint64
}

// New creates an empty waitress.
func New() *Waitress {
	return &Waitress{}
}

// Wait registers a matcher with a deadline and returns a channel that
// receives exactly one Result, plus a cancel function that removes the
// entry (§5 "Cancellation": the waitress supports explicit cancel, unlike
// the pending-request table).
func (w *Waitress) Wait(m Matcher, timeout time.Duration) (<-chan Result, func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	wa := &waiter{
		id:       id,
		matcher:  m,
		ch:       make(chan Result, 1),
		deadline: time.Now().Add(timeout),
	}
	w.waiters = append(w.waiters, wa)
	w.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(timeout, func() {
		w.expire(id)
	})

	cancel := func() {
		timer.Stop()
		w.remove(id)
	}
	return wa.ch, cancel
}

// Offer presents an arriving payload to all waiters, resolving and
// removing the first match found in insertion order. Returns true if some
// waiter matched.
func (w *Waitress) Offer(p Payload) bool {
	w.mu.Lock()
	for i, wa := range w.waiters {
		if wa.matcher.Matches(p) {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			w.mu.Unlock()
			wa.ch <- Result{Payload: p}
			return true
		}
	}
	w.mu.Unlock()
	return false
}

func (w *Waitress) expire(id uint64) {
	w.mu.Lock()
	for i, wa := range w.waiters {
		if wa.id == id {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			w.mu.Unlock()
			wa.ch <- Result{Timeout: true}
			return
		}
	}
	w.mu.Unlock()
}

func (w *Waitress) remove(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, wa := range w.waiters {
		if wa.id == id {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

// Len reports the number of currently registered waiters. Test/diagnostic
// helper.
func (w *Waitress) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters)
}
