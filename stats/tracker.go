package stats

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"aprswx/packet"
)

// Tracker counts ingested packets by decoded type.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so per-packet increments
	// don't fight over a mutex
	typeCounts sync.Map // string -> *atomic.Uint64
	total      atomic.Uint64
	duplicates atomic.Uint64
	start      atomic.Int64
}

// NewTracker creates a new stats tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// Record counts one decoded packet.
func (t *Tracker) Record(p *packet.Packet) {
	t.total.Add(1)
	incrementCounter(&t.typeCounts, string(p.Type))
}

// RecordDuplicate counts a packet suppressed by dedup.
func (t *Tracker) RecordDuplicate() {
	t.duplicates.Add(1)
}

// TypeCounts returns a copy of per-type counts.
func (t *Tracker) TypeCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	t.typeCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

// Total returns the number of packets recorded.
func (t *Tracker) Total() uint64 {
	return t.total.Load()
}

// Duplicates returns the number of packets suppressed as duplicates.
func (t *Tracker) Duplicates() uint64 {
	return t.duplicates.Load()
}

// Uptime returns how long the tracker has been running.
func (t *Tracker) Uptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Reset clears all counters.
func (t *Tracker) Reset() {
	t.typeCounts.Range(func(key, _ any) bool {
		t.typeCounts.Delete(key)
		return true
	})
	t.total.Store(0)
	t.duplicates.Store(0)
	t.start.Store(time.Now().UnixNano())
}

// Print displays the current statistics.
func (t *Tracker) Print() {
	started := time.Unix(0, t.start.Load())
	fmt.Printf("Packets: %s total, %s duplicates, running since %s\n",
		humanize.Comma(int64(t.total.Load())),
		humanize.Comma(int64(t.duplicates.Load())),
		humanize.RelTime(started, time.Now(), "ago", "from now"))

	fmt.Printf("Packets by type: ")
	first := true
	t.typeCounts.Range(func(key, value any) bool {
		if !first {
			fmt.Printf(", ")
		}
		fmt.Printf("%s=%d", key.(string), value.(*atomic.Uint64).Load())
		first = false
		return true
	})
	if first {
		fmt.Printf("(none)")
	}
	fmt.Println()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
