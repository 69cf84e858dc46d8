package stats

import (
	"testing"
	"time"

	"aprswx/packet"
)

func TestRecordCountsByType(t *testing.T) {
	tr := NewTracker()
	tr.Record(packet.Decode("A>B:>status one", time.Now()))
	tr.Record(packet.Decode("A>B:>status two", time.Now()))
	tr.Record(packet.Decode("A>B:=4042.77N/07400.36W>", time.Now()))
	tr.RecordDuplicate()

	if got := tr.Total(); got != 3 {
		t.Errorf("Total() = %d, want 3", got)
	}
	if got := tr.Duplicates(); got != 1 {
		t.Errorf("Duplicates() = %d, want 1", got)
	}
	counts := tr.TypeCounts()
	if counts["status"] != 2 {
		t.Errorf("status count = %d, want 2", counts["status"])
	}
	if counts["position"] != 1 {
		t.Errorf("position count = %d, want 1", counts["position"])
	}
}

func TestResetClearsCounters(t *testing.T) {
	tr := NewTracker()
	tr.Record(packet.Decode("A>B:>status", time.Now()))
	tr.RecordDuplicate()
	tr.Reset()

	if tr.Total() != 0 || tr.Duplicates() != 0 {
		t.Errorf("after reset: total=%d duplicates=%d", tr.Total(), tr.Duplicates())
	}
	if len(tr.TypeCounts()) != 0 {
		t.Errorf("type counts not cleared: %v", tr.TypeCounts())
	}
}
