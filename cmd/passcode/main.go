// Command passcode prints the APRS-IS passcode for a callsign. Standalone
// helper for operators filling in config.yaml.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"aprswx/aprsis"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: passcode <callsign>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	callsign := flag.Arg(0)
	code, err := aprsis.Passcode(callsign)
	if err != nil {
		log.Fatalf("passcode: %v", err)
	}
	fmt.Printf("%s: %d\n", callsign, code)
}
