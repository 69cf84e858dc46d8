// Command feedtail connects to an APRS-IS relay with the same client the
// ingest uses and prints each decoded packet as one JSON line. Standalone
// debugging utility: no store, no hub, no server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"

	"aprswx/aprsis"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	host := flag.String("host", "rotate.aprs2.net", "APRS-IS relay host")
	port := flag.Int("port", 14580, "APRS-IS relay port")
	callsign := flag.String("callsign", "", "login callsign")
	passcode := flag.Int("passcode", 0, "login passcode (0 computes it from the callsign)")
	lat := flag.Float64("lat", 0, "range filter latitude")
	lon := flag.Float64("lon", 0, "range filter longitude")
	rangeKM := flag.Int("range", 0, "range filter radius in km (0 disables the filter)")
	flag.Parse()

	if *callsign == "" {
		fmt.Fprintln(os.Stderr, "feedtail: -callsign is required")
		os.Exit(2)
	}
	if *passcode == 0 {
		code, err := aprsis.Passcode(*callsign)
		if err != nil {
			log.Fatalf("feedtail: %v", err)
		}
		*passcode = code
	}

	client := aprsis.NewClient(*host, *port, 256, func(st aprsis.Status) {
		log.Printf("feedtail: %s %s", st.State, st.Reason)
	})
	filter := aprsis.Filter{Latitude: *lat, Longitude: *lon, RangeKM: *rangeKM}
	if err := client.Connect(*callsign, *passcode, filter); err != nil {
		log.Fatalf("feedtail: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case p := <-client.Packets():
			if err := enc.Encode(p); err != nil {
				log.Printf("feedtail: encode: %v", err)
			}
		case <-sigChan:
			client.Disconnect()
			return
		}
	}
}
