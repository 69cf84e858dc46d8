package aprsis

import (
	"fmt"
	"strings"
)

// Passcode computes the APRS-IS passcode for a callsign. The SSID suffix is
// ignored; the base call must be 1-6 characters.
func Passcode(callsign string) (int, error) {
	call := strings.ToUpper(strings.Split(callsign, "-")[0])
	if len(call) < 1 || len(call) > 6 {
		return 0, fmt.Errorf("aprsis: invalid callsign for passcode: %s", callsign)
	}

	hash := 0x73e2
	high := true
	for _, ch := range call {
		if high {
			hash ^= int(ch) << 8
		} else {
			hash ^= int(ch)
		}
		high = !high
	}
	return hash & 0x7fff, nil
}
