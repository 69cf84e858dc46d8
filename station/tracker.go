// Package station maintains last-known state per source identity from
// decoded position packets and emits station updates on the stations topic.
package station

import (
	"sort"
	"sync"
	"time"

	"aprswx/hub"
	"aprswx/packet"
)

// State is the last-known view of one station. Keyed by the full source
// identity (callsign plus SSID suffix when present). States are updated in
// place and never deleted; staleness is the reader's concern.
type State struct {
	Callsign    string       `json:"callsign"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	SymbolTable string       `json:"symbol_table"`
	SymbolCode  string       `json:"symbol_code"`
	Category    string       `json:"symbol_category"`
	Class       packet.Class `json:"station_type"`
	LastHeard   time.Time    `json:"last_heard"`
	LastComment string       `json:"last_comment"`
	PacketCount int          `json:"packet_count"`
}

// Sink receives station upserts for durable storage. Implementations must
// not block; failures are the sink's concern.
type Sink interface {
	UpsertStation(st State)
}

// Tracker derives station state from position packets. Safe for concurrent
// use, though in practice only the connection read-loop feeds it.
type Tracker struct {
	mu       sync.Mutex
	stations map[string]*State
	events   *hub.Hub
	sink     Sink
}

// New creates a Tracker publishing to events. sink may be nil when no
// durable store is wired.
func New(events *hub.Hub, sink Sink) *Tracker {
	return &Tracker{
		stations: make(map[string]*State),
		events:   events,
		sink:     sink,
	}
}

// HandlePacket updates station state from a position packet with a fix.
// The update is unconditional: last writer wins, packet count and last-heard
// always advance. Non-position packets and fixless positions are ignored.
func (t *Tracker) HandlePacket(p *packet.Packet) {
	if p == nil || p.Type != packet.TypePosition || p.Position == nil || !p.Position.HasFix {
		return
	}
	pos := p.Position

	t.mu.Lock()
	st, ok := t.stations[p.Source]
	if !ok {
		st = &State{Callsign: p.Source}
		t.stations[p.Source] = st
	}
	st.Latitude = pos.Latitude
	st.Longitude = pos.Longitude
	st.SymbolTable = string(pos.SymbolTable)
	st.SymbolCode = string(pos.SymbolCode)
	st.Category = packet.SymbolCategory(pos.SymbolTable, pos.SymbolCode)
	st.Class = packet.ClassifySymbol(pos.SymbolTable, pos.SymbolCode)
	st.LastHeard = p.Time
	st.LastComment = pos.Comment
	st.PacketCount++
	snapshot := *st
	t.mu.Unlock()

	if t.sink != nil {
		t.sink.UpsertStation(snapshot)
	}
	if t.events != nil {
		t.events.Publish(hub.Event{
			Topic:      hub.TopicStations,
			Kind:       "station_update",
			Source:     snapshot.Callsign,
			PacketType: string(packet.TypePosition),
			Payload:    snapshot,
			Time:       p.Time,
		})
	}
}

// Get returns a copy of the state for one identity.
func (t *Tracker) Get(callsign string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.stations[callsign]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Count returns the number of tracked stations.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stations)
}

// Snapshot returns copies of all station states, most recently heard first.
// Used to seed newly connected clients.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	states := make([]State, 0, len(t.stations))
	for _, st := range t.stations {
		states = append(states, *st)
	}
	t.mu.Unlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].LastHeard.After(states[j].LastHeard)
	})
	return states
}
