// Package packet decodes raw APRS-IS text lines (TNC2 framing) into typed
// packet values. Decoding is a pure function: malformed input always yields
// an Unknown packet with a diagnostic, never an error or a panic.
package packet

import "time"

// Type identifies the decoded variant of a packet.
type Type string

const (
	TypePosition Type = "position"
	TypeWeather  Type = "weather"
	TypeMessage  Type = "message"
	TypeStatus   Type = "status"
	TypeUnknown  Type = "unknown"
)

// Packet is one decoded APRS line. Source, Raw and Time are always set;
// exactly one of the payload pointers matching Type is non-nil (Unknown
// carries none, with Diagnostic explaining why when framing failed).
type Packet struct {
	Source      string    `json:"source_callsign"`
	Destination string    `json:"destination,omitempty"`
	Path        string    `json:"path,omitempty"`
	Raw         string    `json:"raw_packet"`
	Type        Type      `json:"packet_type"`
	Time        time.Time `json:"timestamp"`

	Position *Position `json:"position,omitempty"`
	Weather  *Weather  `json:"weather,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	Status   *Status   `json:"status,omitempty"`

	Diagnostic string `json:"diagnostic,omitempty"`
}

// Position is an uncompressed position report. HasFix reports whether both
// coordinates were extracted; the remaining fields are best-effort.
type Position struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	HasFix      bool    `json:"has_fix"`
	SymbolTable byte    `json:"symbol_table"`
	SymbolCode  byte    `json:"symbol_code"`
	Comment     string  `json:"comment,omitempty"`
}

// Weather carries the fields a weather report actually contained. Each value
// is paired with a Has flag; absent or non-numeric fields stay unset.
type Weather struct {
	WindDirection    int     `json:"wind_direction,omitempty"`
	HasWindDirection bool    `json:"-"`
	WindSpeed        int     `json:"wind_speed,omitempty"`
	HasWindSpeed     bool    `json:"-"`
	WindGust         int     `json:"wind_gust,omitempty"`
	HasWindGust      bool    `json:"-"`
	Temperature      int     `json:"temperature,omitempty"`
	HasTemperature   bool    `json:"-"`
	Rainfall1h       float64 `json:"rainfall_1h,omitempty"`
	HasRainfall1h    bool    `json:"-"`
	Pressure         float64 `json:"pressure,omitempty"`
	HasPressure      bool    `json:"-"`
	Humidity         int     `json:"humidity,omitempty"`
	HasHumidity      bool    `json:"-"`
}

// Message is a directed text message.
type Message struct {
	Addressee string `json:"addressee"`
	Text      string `json:"message"`
	Number    string `json:"message_number,omitempty"`
	IsAck     bool   `json:"is_ack"`
}

// Status is a free-text status report.
type Status struct {
	Text string `json:"status"`
}
