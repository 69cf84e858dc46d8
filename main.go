package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aprswx/aprsis"
	"aprswx/config"
	"aprswx/dedup"
	"aprswx/hub"
	"aprswx/mqtt"
	"aprswx/packet"
	"aprswx/station"
	"aprswx/stats"
	"aprswx/store"
	"aprswx/ws"
)

// Version will be set at build time
var Version = "dev"

func main() {
	fmt.Printf("APRSwx ingest v%s starting...\n", Version)

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	cfg.Print()

	// Create stats tracker
	statsTracker := stats.NewTracker()

	// Create the event hub all consumers hang off
	events := hub.New(cfg.Server.QueueSize)

	// SQLite writer if enabled; it doubles as the station sink and the
	// packet-history source for new WebSocket connections
	var writer *store.Writer
	var sink station.Sink
	var history ws.PacketHistory
	if cfg.Store.Enabled {
		writer, err = store.NewWriter(cfg.Store)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		writer.Start()
		sink = writer
		history = writer
		log.Printf("Store writing to %s", cfg.Store.DBPath)
	}

	// Station tracker publishes station_update events as positions arrive
	tracker := station.New(events, sink)

	// Create deduplicator if enabled
	var suppressor *dedup.Suppressor
	if cfg.Dedup.Enabled {
		window := time.Duration(cfg.Dedup.WindowSeconds) * time.Second
		suppressor = dedup.New(window)
		log.Printf("Deduplication enabled with %v window", window)
	}

	// APRS-IS client; status transitions are broadcast so clients can show
	// feed health
	client := aprsis.NewClient(cfg.APRSIS.Host, cfg.APRSIS.Port, cfg.Server.QueueSize, func(st aprsis.Status) {
		events.Publish(hub.Event{
			Topic:   hub.TopicPackets,
			Kind:    "connection_status",
			Payload: st,
			Time:    st.Time,
		})
	})

	filter := aprsis.Filter{
		Latitude:  cfg.APRSIS.Latitude,
		Longitude: cfg.APRSIS.Longitude,
		RangeKM:   cfg.APRSIS.RangeKM,
	}
	if err := client.Connect(cfg.APRSIS.Callsign, cfg.APRSIS.Passcode, filter); err != nil {
		log.Fatalf("Failed to connect to APRS-IS: %v", err)
	}

	// Pipeline: feed → dedup → store → tracker → hub
	go processPackets(client.Packets(), suppressor, writer, tracker, events, statsTracker)

	// WebSocket server
	server := ws.NewServer(cfg.Server.Listen, events, tracker, history)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start WebSocket server: %v", err)
	}

	// Optional MQTT bridge
	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge, err = mqtt.NewBridge(cfg.MQTT, events)
		if err != nil {
			log.Printf("Warning: MQTT bridge unavailable: %v", err)
		}
	}

	// Start stats display goroutine
	statsInterval := time.Duration(cfg.Stats.DisplayIntervalSeconds) * time.Second
	go displayStats(statsInterval, statsTracker, events, tracker, writer)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	fmt.Println("\nIngest is running. Press Ctrl+C to stop.")
	fmt.Printf("WebSocket endpoint: ws://%s/ws\n", cfg.Server.Listen)
	fmt.Printf("\nStatistics will be displayed every %d seconds...\n", cfg.Stats.DisplayIntervalSeconds)
	fmt.Println("---")

	// Wait for shutdown signal
	sig := <-sigChan
	fmt.Printf("\nReceived signal: %v\n", sig)
	fmt.Println("Shutting down gracefully...")

	// Stop the feed first so nothing new enters the pipeline
	client.Disconnect()

	if bridge != nil {
		bridge.Stop()
	}
	server.Stop()
	if writer != nil {
		writer.Stop()
	}

	fmt.Println("Shutdown complete.")
}

// processPackets drains the feed and drives every consumer. Duplicates are
// dropped before anything downstream sees them; the store append happens
// before broadcast so history never lags the live stream.
func processPackets(packets <-chan *packet.Packet, suppressor *dedup.Suppressor, writer *store.Writer, tracker *station.Tracker, events *hub.Hub, statsTracker *stats.Tracker) {
	for p := range packets {
		if suppressor != nil && suppressor.IsDuplicate(p.Raw, p.Time) {
			statsTracker.RecordDuplicate()
			continue
		}
		statsTracker.Record(p)

		if writer != nil {
			writer.AppendPacket(p)
		}
		tracker.HandlePacket(p)

		ev := hub.Event{
			Topic:      hub.TopicPackets,
			Kind:       "packet_update",
			Source:     p.Source,
			PacketType: string(p.Type),
			Payload:    p,
			Time:       p.Time,
		}
		events.Publish(ev)

		if p.Type == packet.TypeWeather {
			ev.Topic = hub.TopicWeather
			ev.Kind = "weather_update"
			events.Publish(ev)
		}
	}
}

// displayStats periodically prints pipeline statistics.
func displayStats(interval time.Duration, statsTracker *stats.Tracker, events *hub.Hub, tracker *station.Tracker, writer *store.Writer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		fmt.Println("--- Statistics ---")
		statsTracker.Print()
		published, drops := events.Stats()
		fmt.Printf("Hub: %d subscribers, %d events published, %d dropped\n",
			events.SubscriberCount(), published, drops)
		fmt.Printf("Stations tracked: %d\n", tracker.Count())
		if writer != nil {
			fmt.Printf("Store: %d writes dropped\n", writer.Drops())
		}
		fmt.Println("------------------")
	}
}
