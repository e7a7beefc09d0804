// Package pending implements the pending-request table: the correlation
// structure that lets a dispatcher call "await" a specific downstream ZDP/
// ZCL reply keyed on (short address, profile, cluster, optional tsn), with
// a background sweeper retiring entries that never got an answer.
//
// Modeled on the teacher's channel-per-in-flight-request pattern
// (internal/ncp/nrf52840.go's hlPending/zclPending maps), generalized from
// "keyed by sequence number alone" to the four-field match rule in the
// spec's §3.3, and from a map to a linear scan since the expected in-flight
// set size is small (§9 design notes).
package pending

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"deconz-adapter/internal/aps"
)

// ErrTimeout is returned when no matching indication arrives within the
// entry's timeout window.
var ErrTimeout = errors.New("waiting for response TIMEOUT")

// DefaultTimeout is used when a caller registers an entry with a
// non-positive or unspecified timeout (§3.3).
const DefaultTimeout = 60 * time.Second

// SweepInterval is how often the background sweeper checks for expired
// entries (§4.4).
const SweepInterval = 1 * time.Second

// Result is delivered on an entry's channel exactly once: either a matched
// response or a timeout error.
type Result struct {
	Response *aps.DataResponse
	Tsn      uint8
	Err      error
}

type entry struct {
	addr16    uint16
	profileID uint16
	clusterID uint16
	tsn       *uint8
	createdAt time.Time
	timeout   time.Duration
	ch        chan Result
}

// Table holds in-flight waitForData promises and drives the timeout
// sweeper (§3.3, §4.4).
type Table struct {
	mu      sync.Mutex
	entries []*entry
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates an empty pending-request table. Call Start to begin the
// timeout sweeper.
func New(logger *slog.Logger) *Table {
	return &Table{
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches the 1 Hz sweeper goroutine (§4.4). Idempotent-safe to call
// once; call Stop to terminate it.
func (t *Table) Start() {
	t.wg.Add(1)
	go t.sweepLoop()
}

// Stop terminates the sweeper and waits for it to exit.
func (t *Table) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

func (t *Table) sweepLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			t.sweepOnce(now)
		case <-t.stopCh:
			return
		}
	}
}

// sweepOnce expires entries older than their timeout. It never inspects a
// response payload — the sweeper's only job is age-based rejection, and it
// must not attempt header parsing (§9 open questions, last bullet).
func (t *Table) sweepOnce(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.entries[:0]
	for _, e := range t.entries {
		if now.Sub(e.createdAt) > e.timeout {
			e.ch <- Result{Err: ErrTimeout}
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

// Register adds a waiting entry and returns the channel its eventual result
// will be delivered on. tsn is nil when the caller does not want to match on
// transaction sequence number. timeout <= 0 uses DefaultTimeout.
func (t *Table) Register(addr16, profileID, clusterID uint16, tsn *uint8, timeout time.Duration) <-chan Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &entry{
		addr16:    addr16,
		profileID: profileID,
		clusterID: clusterID,
		tsn:       tsn,
		createdAt: time.Now(),
		timeout:   timeout,
		ch:        make(chan Result, 1),
	}
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	return e.ch
}

// Match offers an indication to the table (§3.3 match semantics). respTsn
// is the indication's transaction sequence number as the inbound router
// found it: byte 0 of the payload for ZDP, the parsed ZCL header's tsn for
// other profiles, or nil when neither is available (empty ZDP payload,
// unparseable ZCL header). Returns true if some entry matched and was
// resolved and removed.
func (t *Table) Match(resp *aps.DataResponse, respTsn *uint8) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.addr16 != resp.SrcAddr16 || e.profileID != resp.ProfileID || e.clusterID != resp.ClusterID {
			continue
		}
		if e.tsn != nil {
			if respTsn == nil || *e.tsn != *respTsn {
				continue
			}
		}
		result := Result{Response: resp}
		if respTsn != nil {
			result.Tsn = *respTsn
		}
		e.ch <- result
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
		return true
	}
	return false
}

// Len reports the number of currently registered entries. Test/diagnostic
// helper.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
