package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"aprswx/config"
	"aprswx/packet"
	"aprswx/station"

	_ "modernc.org/sqlite"
)

func testConfig(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		Enabled:                true,
		DBPath:                 filepath.Join(t.TempDir(), "aprswx.db"),
		QueueSize:              100,
		BatchSize:              10,
		BatchIntervalMS:        20,
		BusyTimeoutMS:          1000,
		RetentionSeconds:       3600,
		CleanupIntervalSeconds: 3600,
	}
}

func TestAppendPacketPersistsRow(t *testing.T) {
	cfg := testConfig(t)
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Start()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.AppendPacket(packet.Decode("KD8ABC-9>APZ001,WIDE1-1:=4042.77N/07400.36W>Test", at))
	w.AppendPacket(packet.Decode("N0WX-3>APZ001:_23844728c054s000g005t072r000p000P000b10020h50", at))

	time.Sleep(200 * time.Millisecond)
	w.Stop()

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var packets, weather int
	if err := db.QueryRow(`select count(*) from packets`).Scan(&packets); err != nil {
		t.Fatalf("count packets: %v", err)
	}
	if packets != 2 {
		t.Fatalf("packets = %d, want 2", packets)
	}
	if err := db.QueryRow(`select count(*) from weather`).Scan(&weather); err != nil {
		t.Fatalf("count weather: %v", err)
	}
	if weather != 1 {
		t.Fatalf("weather rows = %d, want 1", weather)
	}

	var temperature int
	if err := db.QueryRow(`select temperature from weather`).Scan(&temperature); err != nil {
		t.Fatalf("read temperature: %v", err)
	}
	if temperature != 72 {
		t.Fatalf("temperature = %d, want 72", temperature)
	}
}

func TestUpsertStationKeepsOneRowPerCallsign(t *testing.T) {
	cfg := testConfig(t)
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Start()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.UpsertStation(station.State{
		Callsign:  "KD8ABC-9",
		Latitude:  40.71,
		Longitude: -74.0,
		LastHeard: base,
	})
	w.UpsertStation(station.State{
		Callsign:    "KD8ABC-9",
		Latitude:    40.72,
		Longitude:   -74.01,
		LastHeard:   base.Add(time.Minute),
		PacketCount: 2,
	})

	time.Sleep(200 * time.Millisecond)

	stations, err := w.ActiveStations(10)
	if err != nil {
		t.Fatalf("ActiveStations: %v", err)
	}
	if len(stations) != 1 {
		t.Fatalf("stations = %d, want 1", len(stations))
	}
	if stations[0].PacketCount != 2 {
		t.Errorf("packet count = %d, want 2", stations[0].PacketCount)
	}
	if !stations[0].LastHeard.Equal(base.Add(time.Minute)) {
		t.Errorf("last heard = %v, want %v", stations[0].LastHeard, base.Add(time.Minute))
	}
	w.Stop()
}

func TestRecentPacketsRedecodesRaw(t *testing.T) {
	cfg := testConfig(t)
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Start()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.AppendPacket(packet.Decode("KD8ABC-9>APZ001:=4042.77N/07400.36W>Test", at))

	time.Sleep(200 * time.Millisecond)

	packets, err := w.RecentPackets(10)
	if err != nil {
		t.Fatalf("RecentPackets: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("packets = %d, want 1", len(packets))
	}
	p := packets[0]
	if p.Type != packet.TypePosition {
		t.Errorf("type = %s, want position", p.Type)
	}
	if !p.Time.Equal(at) {
		t.Errorf("time = %v, want %v", p.Time, at)
	}
	if p.Position == nil || !p.Position.HasFix {
		t.Error("expected a decoded fix from the stored raw line")
	}
	w.Stop()
}
