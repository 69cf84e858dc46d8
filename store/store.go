// Package store persists decoded packets, station state and weather
// observations to SQLite asynchronously. The hot path never blocks on the
// writer: enqueue is non-blocking and backpressure drops writes (counted).
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"aprswx/config"
	"aprswx/packet"
	"aprswx/station"

	_ "modernc.org/sqlite"
)

// Writer is the durable sink behind the core's append/upsert interface.
type Writer struct {
	cfg       config.StoreConfig
	db        *sql.DB
	packets   chan *packet.Packet
	stations  chan station.State
	stop      chan struct{}
	dropCount atomic.Uint64
}

// NewWriter opens (creating if needed) the SQLite database and prepares the
// schema. Call Start to begin draining the queues.
func NewWriter(cfg config.StoreConfig) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if _, err := db.Exec(`pragma journal_mode=WAL; pragma synchronous=NORMAL; pragma busy_timeout=` + fmt.Sprintf("%d", cfg.BusyTimeoutMS)); err != nil {
		return nil, fmt.Errorf("store: pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	qsize := cfg.QueueSize
	if qsize <= 0 {
		qsize = 10000
	}
	return &Writer{
		cfg:      cfg,
		db:       db,
		packets:  make(chan *packet.Packet, qsize),
		stations: make(chan station.State, qsize),
		stop:     make(chan struct{}),
	}, nil
}

// Start launches the insert and retention loops.
func (w *Writer) Start() {
	go w.insertLoop()
	go w.cleanupLoop()
}

// Stop signals the loops to exit and closes the database. Queued writes not
// yet flushed at stop time are flushed best-effort.
func (w *Writer) Stop() {
	close(w.stop)
	_ = w.db.Close()
}

// AppendPacket enqueues a decoded packet for archival. Fire-and-forget:
// a full queue drops the write.
func (w *Writer) AppendPacket(p *packet.Packet) {
	if w == nil || p == nil {
		return
	}
	select {
	case w.packets <- p:
	default:
		w.dropCount.Add(1)
	}
}

// UpsertStation enqueues a station-state upsert. Implements station.Sink.
func (w *Writer) UpsertStation(st station.State) {
	if w == nil {
		return
	}
	select {
	case w.stations <- st:
	default:
		w.dropCount.Add(1)
	}
}

// Drops returns the number of writes dropped under backpressure.
func (w *Writer) Drops() uint64 {
	return w.dropCount.Load()
}

func (w *Writer) insertLoop() {
	packetBatch := make([]*packet.Packet, 0, w.cfg.BatchSize)
	stationBatch := make([]station.State, 0, w.cfg.BatchSize)
	interval := time.Duration(w.cfg.BatchIntervalMS) * time.Millisecond
	timer := time.NewTimer(interval)
	defer timer.Stop()

	flushAll := func() {
		w.flushPackets(packetBatch)
		packetBatch = packetBatch[:0]
		w.flushStations(stationBatch)
		stationBatch = stationBatch[:0]
	}

	for {
		select {
		case <-w.stop:
			flushAll()
			return
		case p := <-w.packets:
			packetBatch = append(packetBatch, p)
			if len(packetBatch) >= w.cfg.BatchSize {
				flushAll()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(interval)
			}
		case st := <-w.stations:
			stationBatch = append(stationBatch, st)
			if len(stationBatch) >= w.cfg.BatchSize {
				flushAll()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(interval)
			}
		case <-timer.C:
			if len(packetBatch) > 0 || len(stationBatch) > 0 {
				flushAll()
			}
			timer.Reset(interval)
		}
	}
}

func (w *Writer) flushPackets(batch []*packet.Packet) {
	if len(batch) == 0 {
		return
	}
	tx, err := w.db.Begin()
	if err != nil {
		log.Printf("store: begin tx: %v", err)
		return
	}
	pktStmt, err := tx.Prepare(`insert into packets(ts, source, dest, path, packet_type, raw, diagnostic) values(?,?,?,?,?,?,?)`)
	if err != nil {
		log.Printf("store: prepare packets: %v", err)
		_ = tx.Rollback()
		return
	}
	wxStmt, err := tx.Prepare(`insert into weather(ts, source, wind_direction, wind_speed, wind_gust, temperature, rainfall_1h, pressure, humidity) values(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		log.Printf("store: prepare weather: %v", err)
		_ = pktStmt.Close()
		_ = tx.Rollback()
		return
	}
	for _, p := range batch {
		if p == nil {
			continue
		}
		if _, err := pktStmt.Exec(
			p.Time.UTC().Unix(),
			p.Source,
			p.Destination,
			p.Path,
			string(p.Type),
			p.Raw,
			p.Diagnostic,
		); err != nil {
			log.Printf("store: insert packet failed: %v", err)
		}
		if p.Type == packet.TypeWeather && p.Weather != nil {
			wx := p.Weather
			if _, err := wxStmt.Exec(
				p.Time.UTC().Unix(),
				p.Source,
				nullableInt(wx.WindDirection, wx.HasWindDirection),
				nullableInt(wx.WindSpeed, wx.HasWindSpeed),
				nullableInt(wx.WindGust, wx.HasWindGust),
				nullableInt(wx.Temperature, wx.HasTemperature),
				nullableFloat(wx.Rainfall1h, wx.HasRainfall1h),
				nullableFloat(wx.Pressure, wx.HasPressure),
				nullableInt(wx.Humidity, wx.HasHumidity),
			); err != nil {
				log.Printf("store: insert weather failed: %v", err)
			}
		}
	}
	_ = pktStmt.Close()
	_ = wxStmt.Close()
	if err := tx.Commit(); err != nil {
		log.Printf("store: commit packets: %v", err)
	}
}

func (w *Writer) flushStations(batch []station.State) {
	if len(batch) == 0 {
		return
	}
	tx, err := w.db.Begin()
	if err != nil {
		log.Printf("store: begin tx: %v", err)
		return
	}
	stmt, err := tx.Prepare(`insert into stations(callsign, latitude, longitude, symbol_table, symbol_code, category, station_type, last_heard, last_comment, packet_count)
		values(?,?,?,?,?,?,?,?,?,?)
		on conflict(callsign) do update set
			latitude=excluded.latitude,
			longitude=excluded.longitude,
			symbol_table=excluded.symbol_table,
			symbol_code=excluded.symbol_code,
			category=excluded.category,
			station_type=excluded.station_type,
			last_heard=excluded.last_heard,
			last_comment=excluded.last_comment,
			packet_count=excluded.packet_count`)
	if err != nil {
		log.Printf("store: prepare stations: %v", err)
		_ = tx.Rollback()
		return
	}
	for _, st := range batch {
		if _, err := stmt.Exec(
			st.Callsign,
			st.Latitude,
			st.Longitude,
			st.SymbolTable,
			st.SymbolCode,
			st.Category,
			string(st.Class),
			st.LastHeard.UTC().Unix(),
			st.LastComment,
			st.PacketCount,
		); err != nil {
			log.Printf("store: upsert station failed: %v", err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		log.Printf("store: commit stations: %v", err)
	}
}

func (w *Writer) cleanupLoop() {
	interval := time.Duration(w.cfg.CleanupIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.cleanupOnce()
		}
	}
}

func (w *Writer) cleanupOnce() {
	cutoff := time.Now().UTC().Unix() - int64(w.cfg.RetentionSeconds)
	if _, err := w.db.Exec(`delete from packets where ts < ?`, cutoff); err != nil {
		log.Printf("store: cleanup packets: %v", err)
	}
	if _, err := w.db.Exec(`delete from weather where ts < ?`, cutoff); err != nil {
		log.Printf("store: cleanup weather: %v", err)
	}
}

// RecentPackets returns up to limit archived packets, newest first, rebuilt
// by re-decoding the stored raw lines. Used to seed new client connections.
func (w *Writer) RecentPackets(limit int) ([]*packet.Packet, error) {
	if w == nil || w.db == nil {
		return nil, fmt.Errorf("store: writer is nil")
	}
	if limit <= 0 {
		return []*packet.Packet{}, nil
	}
	rows, err := w.db.Query(`select ts, raw from packets order by ts desc limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query recent packets: %w", err)
	}
	defer rows.Close()

	results := make([]*packet.Packet, 0, limit)
	for rows.Next() {
		var (
			ts  int64
			raw string
		)
		if err := rows.Scan(&ts, &raw); err != nil {
			return nil, fmt.Errorf("store: scan packet: %w", err)
		}
		p := packet.Decode(raw, time.Unix(ts, 0).UTC())
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate packets: %w", err)
	}
	return results, nil
}

// ActiveStations returns up to limit stations, most recently heard first.
func (w *Writer) ActiveStations(limit int) ([]station.State, error) {
	if w == nil || w.db == nil {
		return nil, fmt.Errorf("store: writer is nil")
	}
	if limit <= 0 {
		return []station.State{}, nil
	}
	rows, err := w.db.Query(`select callsign, latitude, longitude, symbol_table, symbol_code, category, station_type, last_heard, last_comment, packet_count from stations order by last_heard desc limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query stations: %w", err)
	}
	defer rows.Close()

	results := make([]station.State, 0, limit)
	for rows.Next() {
		var (
			st        station.State
			class     string
			lastHeard int64
		)
		if err := rows.Scan(&st.Callsign, &st.Latitude, &st.Longitude, &st.SymbolTable, &st.SymbolCode, &st.Category, &class, &lastHeard, &st.LastComment, &st.PacketCount); err != nil {
			return nil, fmt.Errorf("store: scan station: %w", err)
		}
		st.Class = packet.Class(class)
		st.LastHeard = time.Unix(lastHeard, 0).UTC()
		results = append(results, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate stations: %w", err)
	}
	return results, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
	create table if not exists packets (
		id integer primary key autoincrement,
		ts integer,
		source text,
		dest text,
		path text,
		packet_type text,
		raw text,
		diagnostic text
	);
	create index if not exists idx_packets_ts on packets(ts);
	create index if not exists idx_packets_source_ts on packets(source, ts);
	create index if not exists idx_packets_type_ts on packets(packet_type, ts);

	create table if not exists stations (
		callsign text primary key,
		latitude real,
		longitude real,
		symbol_table text,
		symbol_code text,
		category text,
		station_type text,
		last_heard integer,
		last_comment text,
		packet_count integer
	);
	create index if not exists idx_stations_heard on stations(last_heard);

	create table if not exists weather (
		id integer primary key autoincrement,
		ts integer,
		source text,
		wind_direction integer,
		wind_speed integer,
		wind_gust integer,
		temperature integer,
		rainfall_1h real,
		pressure real,
		humidity integer
	);
	create index if not exists idx_weather_ts on weather(ts);
	create index if not exists idx_weather_source_ts on weather(source, ts);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	return nil
}

func nullableInt(v int, has bool) any {
	if !has {
		return nil
	}
	return v
}

func nullableFloat(v float64, has bool) any {
	if !has {
		return nil
	}
	return v
}
