package packet

// Class is the coarse station classification derived from the map symbol.
type Class string

const (
	ClassMobile  Class = "mobile"
	ClassFixed   Class = "fixed"
	ClassUnknown Class = "unknown"
)

type symbolKey struct {
	Table byte
	Code  byte
}

// symbolCategories maps (symbol table, symbol code) pairs to a display
// category. The table covers the symbols commonly seen on the feed; lookups
// for anything else fall back to "unknown".
var symbolCategories = map[symbolKey]string{
	{'/', '!'}: "police",
	{'/', '#'}: "digipeater",
	{'/', '$'}: "phone",
	{'/', '%'}: "dx cluster",
	{'/', '&'}: "gateway",
	{'/', '*'}: "snow",
	{'/', '+'}: "red cross",
	{'/', '-'}: "house",
	{'/', '.'}: "marker",
	{'/', '/'}: "marker",
	{'/', '>'}: "car",
	{'/', 'A'}: "aid station",
	{'/', 'B'}: "bicycle",
	{'/', 'C'}: "canoe",
	{'/', 'E'}: "eyeball",
	{'/', 'F'}: "farm vehicle",
	{'/', 'H'}: "hotel",
	{'/', 'I'}: "island",
	{'/', 'K'}: "school",
	{'/', 'L'}: "lighthouse",
	{'/', 'M'}: "mountain",
	{'/', 'N'}: "navigation buoy",
	{'/', 'O'}: "balloon",
	{'/', 'P'}: "police",
	{'/', 'R'}: "recreational vehicle",
	{'/', 'S'}: "shuttle",
	{'/', 'T'}: "sstv",
	{'/', 'U'}: "bus",
	{'/', 'W'}: "water station",
	{'/', 'X'}: "helicopter",
	{'/', 'Y'}: "yacht",
	{'/', '['}: "jogger",
	{'/', '\\'}: "triangle",
	{'/', '^'}: "aircraft",
	{'/', '_'}: "weather station",
	{'/', 'a'}: "ambulance",
	{'/', 'b'}: "bicycle",
	{'/', 'f'}: "fire truck",
	{'/', 'g'}: "glider",
	{'/', 'j'}: "jeep",
	{'/', 'k'}: "truck",
	{'/', 'r'}: "repeater",
	{'/', 's'}: "ship",
	{'/', 'u'}: "truck (18-wheeler)",
	{'/', 'v'}: "van",
	{'/', 'y'}: "yagi at qth",
	{'\\', '_'}: "weather site",
	{'\\', '>'}: "car (alt)",
	{'\\', '^'}: "aircraft (alt)",
	{'\\', '-'}: "house (hf)",
	{'\\', '#'}: "digipeater (alt)",
}

// mobileCodes and fixedCodes drive the coarse classification. Codes in
// neither set classify as unknown regardless of table.
var mobileCodes = map[byte]bool{
	'>': true, '<': true, 'B': true, 'C': true, 'F': true, 'O': true,
	'R': true, 'S': true, 'U': true, 'X': true, 'Y': true, '[': true,
	'^': true, 'a': true, 'b': true, 'f': true, 'g': true, 'j': true,
	'k': true, 's': true, 'u': true, 'v': true,
}

var fixedCodes = map[byte]bool{
	'!': true, '#': true, '$': true, '%': true, '&': true, '+': true,
	'-': true, '.': true, '/': true, 'A': true, 'H': true, 'I': true,
	'K': true, 'L': true, 'M': true, 'N': true, 'P': true, 'T': true,
	'W': true, '_': true, 'r': true, 'y': true,
}

// SymbolCategory returns the display category for a symbol pair. It is total:
// unmapped pairs return "unknown".
func SymbolCategory(table, code byte) string {
	if cat, ok := symbolCategories[symbolKey{table, code}]; ok {
		return cat
	}
	return "unknown"
}

// ClassifySymbol maps a symbol pair to a coarse mobile/fixed/unknown class.
// Total for every possible pair.
func ClassifySymbol(table, code byte) Class {
	switch {
	case mobileCodes[code]:
		return ClassMobile
	case fixedCodes[code]:
		return ClassFixed
	default:
		return ClassUnknown
	}
}
