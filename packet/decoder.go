package packet

import (
	"strconv"
	"strings"
	"time"
)

// Decode parses one raw APRS-IS line into a Packet. The accepted framing is
// SOURCE>DESTINATION,PATH:INFO; a line missing the '>' or the info separator
// ':' decodes to an Unknown packet carrying a diagnostic. Decode never
// returns nil and never panics on hostile input.
func Decode(raw string, now time.Time) *Packet {
	p := &Packet{
		Raw:  raw,
		Type: TypeUnknown,
		Time: now.UTC(),
	}

	gt := strings.IndexByte(raw, '>')
	if gt <= 0 {
		p.Diagnostic = "missing '>' separator"
		return p
	}
	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		p.Diagnostic = "missing info field separator"
		return p
	}
	if colon < gt {
		p.Diagnostic = "info separator before header"
		return p
	}

	p.Source = raw[:gt]
	header := raw[gt+1 : colon]
	if comma := strings.IndexByte(header, ','); comma >= 0 {
		p.Destination = header[:comma]
		p.Path = header[comma+1:]
	} else {
		p.Destination = header
	}

	info := raw[colon+1:]
	if info == "" {
		p.Diagnostic = "empty info field"
		return p
	}

	switch info[0] {
	case '!', '=':
		p.Type = TypePosition
		p.Position = decodePosition(info[1:])
	case '/', '@':
		// Timestamped position reports carry a 7-character timestamp
		// (DDHHMMz or HHMMSSh) before the position body.
		p.Type = TypePosition
		if len(info) > 8 {
			p.Position = decodePosition(info[8:])
		} else {
			p.Position = &Position{SymbolTable: '/', SymbolCode: '/'}
		}
	case '_':
		p.Type = TypeWeather
		p.Weather = decodeWeather(info[1:])
	case '>':
		p.Type = TypeStatus
		p.Status = &Status{Text: info[1:]}
	case ':':
		p.Type = TypeMessage
		p.Message = decodeMessage(info[1:])
	default:
		p.Diagnostic = "unrecognized data type identifier"
	}
	return p
}

// decodePosition extracts coordinates, symbol and comment from an
// uncompressed position body (the info field with its identifier stripped).
// Short or malformed bodies keep whichever fields could be extracted.
func decodePosition(data string) *Position {
	pos := &Position{SymbolTable: '/', SymbolCode: '/'}
	if len(data) < 19 {
		return pos
	}

	lat, latOK := parseCoordinate(data[0:8], 2, 'S')
	lon, lonOK := parseCoordinate(data[9:18], 3, 'W')
	if latOK && lonOK {
		pos.Latitude = lat
		pos.Longitude = lon
		pos.HasFix = true
	}

	pos.SymbolTable = data[8]
	pos.SymbolCode = data[18]
	if len(data) > 19 {
		pos.Comment = data[19:]
	}
	return pos
}

// parseCoordinate converts an APRS DDMM.MM<hemi> (or DDDMM.MM<hemi>) field
// to decimal degrees. degDigits is 2 for latitude and 3 for longitude;
// negHemi flips the sign ('S' or 'W').
func parseCoordinate(field string, degDigits int, negHemi byte) (float64, bool) {
	if len(field) != degDigits+6 {
		return 0, false
	}
	deg, err := strconv.ParseFloat(field[:degDigits], 64)
	if err != nil {
		return 0, false
	}
	min, err := strconv.ParseFloat(field[degDigits:degDigits+5], 64)
	if err != nil {
		return 0, false
	}
	value := deg + min/60.0
	if field[degDigits+5] == negHemi {
		value = -value
	}
	return value, true
}

// decodeWeather handles both weather layouts seen on the feed: the
// slash-separated form (dir/speed-gust/temp/rain/pressure/humidity) and the
// positionless letter-coded form (c054s000g005t072...b10020h50). Fields
// missing or non-numeric in the input are simply absent from the result.
func decodeWeather(data string) *Weather {
	wx := &Weather{}
	if strings.ContainsRune(data, '/') {
		parseSlashWeather(wx, data)
	}
	parseCodedWeather(wx, data)
	return wx
}

func parseSlashWeather(wx *Weather, data string) {
	parts := strings.Split(data, "/")
	if len(parts) >= 2 {
		if v, ok := parseAllDigits(parts[1]); ok {
			wx.WindDirection = v
			wx.HasWindDirection = true
		}
	}
	if len(parts) >= 3 && strings.ContainsRune(parts[2], 'g') {
		speed, gust, _ := strings.Cut(parts[2], "g")
		if v, ok := parseAllDigits(speed); ok {
			wx.WindSpeed = v
			wx.HasWindSpeed = true
		}
		if v, ok := parseAllDigits(gust); ok {
			wx.WindGust = v
			wx.HasWindGust = true
		}
	}
	if len(parts) >= 4 {
		if v, ok := parseAllDigits(parts[3]); ok {
			wx.Temperature = v
			wx.HasTemperature = true
		}
	}
	if len(parts) >= 5 {
		if v, ok := parseAllDigits(parts[4]); ok {
			wx.Rainfall1h = float64(v) / 100.0
			wx.HasRainfall1h = true
		}
	}
	if len(parts) >= 6 {
		if v, ok := parseAllDigits(parts[5]); ok {
			wx.Pressure = float64(v) / 10.0
			wx.HasPressure = true
		}
	}
	if len(parts) >= 7 {
		if v, ok := parseAllDigits(parts[6]); ok {
			wx.Humidity = v
			wx.HasHumidity = true
		}
	}
}

// codedFieldWidths gives the digit count following each letter tag in the
// positionless layout. The p and P rain accumulations are consumed so their
// digits are not mistaken for other fields, but they are not retained.
var codedFieldWidths = map[byte]int{
	'c': 3, // wind direction, degrees
	's': 3, // wind speed, mph
	'g': 3, // wind gust, mph
	't': 3, // temperature, Fahrenheit
	'r': 3, // rain last hour, hundredths of an inch
	'p': 3, // rain last 24h (consumed, unused)
	'P': 3, // rain since midnight (consumed, unused)
	'b': 5, // barometric pressure, tenths of millibar
	'h': 2, // humidity, percent
}

func parseCodedWeather(wx *Weather, data string) {
	i := 0
	for i < len(data) {
		width, tagged := codedFieldWidths[data[i]]
		if !tagged {
			i++
			continue
		}
		tag := data[i]
		i++
		end := i + width
		if end > len(data) {
			break
		}
		v, ok := parseAllDigits(data[i:end])
		i = end
		if !ok {
			continue
		}
		switch tag {
		case 'c':
			if !wx.HasWindDirection {
				wx.WindDirection = v
				wx.HasWindDirection = true
			}
		case 's':
			if !wx.HasWindSpeed {
				wx.WindSpeed = v
				wx.HasWindSpeed = true
			}
		case 'g':
			if !wx.HasWindGust {
				wx.WindGust = v
				wx.HasWindGust = true
			}
		case 't':
			if !wx.HasTemperature {
				wx.Temperature = v
				wx.HasTemperature = true
			}
		case 'r':
			if !wx.HasRainfall1h {
				wx.Rainfall1h = float64(v) / 100.0
				wx.HasRainfall1h = true
			}
		case 'b':
			if !wx.HasPressure {
				wx.Pressure = float64(v) / 10.0
				wx.HasPressure = true
			}
		case 'h':
			if !wx.HasHumidity {
				wx.Humidity = v
				wx.HasHumidity = true
			}
		}
	}
}

// decodeMessage parses ADDRESSEE:text{number. A body without the second ':'
// yields an empty message payload rather than a decode failure.
func decodeMessage(data string) *Message {
	msg := &Message{}
	addressee, body, found := strings.Cut(data, ":")
	if !found {
		return msg
	}
	msg.Addressee = strings.TrimSpace(addressee)

	text := body
	if idx := strings.IndexByte(body, '{'); idx >= 0 {
		text = body[:idx]
		number := body[idx+1:]
		if j := strings.IndexByte(number, '}'); j >= 0 {
			number = number[:j]
		}
		msg.Number = number
	}
	msg.Text = strings.TrimSpace(text)
	msg.IsAck = strings.EqualFold(msg.Text, "ack")
	return msg
}

func parseAllDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
