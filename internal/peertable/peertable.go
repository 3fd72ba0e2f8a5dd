// Package peertable tracks known peers in a room: address, port,
// display name, and last-seen timestamp, with a background sweep that
// evicts peers that have gone quiet (spec §4.5).
package peertable

import (
	"container/list"
	"sync"
	"time"

	"localchat/internal/debuglog"
)

const (
	// SweepInterval is how often the background sweep runs.
	SweepInterval = 5 * time.Second

	// Timeout is the inactivity threshold past which a peer is evicted.
	Timeout = 30 * time.Second

	// evictGrace is the delay between marking a peer timed out and
	// actually removing it, so a late datagram arriving mid-sweep does
	// not cause a re-emitted eviction notification for the same peer.
	evictGrace = 1 * time.Second
)

// Record is a single peer's tracked state.
type Record struct {
	PeerID      string
	Addr        string
	Port        int
	DisplayName string
	LastSeen    time.Time
}

type entry struct {
	rec      Record
	timedOut bool
	timedAt  time.Time
}

// Table is the peer table. Zero value is not usable; use New.
type Table struct {
	mu    sync.Mutex
	now   func() time.Time
	hot   map[string]*list.Element
	order *list.List

	onEvict func(peerID string)
}

// Options configures a Table; all fields are optional.
type Options struct {
	// Now overrides the clock, for deterministic sweep/TTL tests.
	Now func() time.Time
	// OnEvict is called (outside the table's lock) once per peer that is
	// actually removed, never more than once per peer.
	OnEvict func(peerID string)
}

// New constructs an empty peer table.
func New(opts Options) *Table {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Table{
		now:     now,
		hot:     make(map[string]*list.Element),
		order:   list.New(),
		onEvict: opts.OnEvict,
	}
}

// Touch refreshes (or inserts) a peer record's last-seen timestamp.
// Called for every inbound datagram whose peerId differs from the local
// identity, per spec §4.5.
func (t *Table) Touch(peerID, addr string, port int, displayName string) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.hot[peerID]; ok {
		ent := el.Value.(*entry)
		ent.rec.Addr = addr
		ent.rec.Port = port
		if displayName != "" {
			ent.rec.DisplayName = displayName
		}
		ent.rec.LastSeen = now
		ent.timedOut = false
		t.order.MoveToFront(el)
		return
	}
	ent := &entry{rec: Record{
		PeerID:      peerID,
		Addr:        addr,
		Port:        port,
		DisplayName: displayName,
		LastSeen:    now,
	}}
	el := t.order.PushFront(ent)
	t.hot[peerID] = el
}

// Remove immediately removes a peer (used on an explicit leave
// envelope), independent of the timeout sweep.
func (t *Table) Remove(peerID string) {
	t.mu.Lock()
	el, ok := t.hot[peerID]
	if ok {
		t.order.Remove(el)
		delete(t.hot, peerID)
	}
	t.mu.Unlock()
}

// List returns a snapshot of every peer currently tracked, most
// recently seen first.
func (t *Table) List() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.hot))
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).rec)
	}
	return out
}

// Len reports the number of peers currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hot)
}

// Sweep runs one pass of the mark-then-evict timeout check. A peer
// first observed as stale is marked timed-out; only on a later sweep,
// after evictGrace has elapsed, is it actually removed. This two-phase
// shape prevents a late datagram that arrives between "marked" and
// "removed" from producing a spurious re-eviction.
func (t *Table) Sweep() {
	now := t.now()
	var evicted []string

	t.mu.Lock()
	for el := t.order.Front(); el != nil; {
		next := el.Next()
		ent := el.Value.(*entry)
		stale := now.Sub(ent.rec.LastSeen) > Timeout
		switch {
		case !stale:
			ent.timedOut = false
		case stale && !ent.timedOut:
			ent.timedOut = true
			ent.timedAt = now
		case stale && ent.timedOut && now.Sub(ent.timedAt) >= evictGrace:
			t.order.Remove(el)
			delete(t.hot, ent.rec.PeerID)
			evicted = append(evicted, ent.rec.PeerID)
		}
		el = next
	}
	t.mu.Unlock()

	for _, id := range evicted {
		debuglog.Debugf("peertable: evicted peer %s after timeout", id)
		if t.onEvict != nil {
			t.onEvict(id)
		}
	}
}

// RunSweeper starts a background goroutine that calls Sweep every
// SweepInterval until stop is closed.
func (t *Table) RunSweeper(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}
