package packet

import "testing"

func TestSymbolCategoryKnownPairs(t *testing.T) {
	cases := []struct {
		table, code byte
		want        string
	}{
		{'/', '>', "car"},
		{'/', '-', "house"},
		{'/', '_', "weather station"},
		{'\\', '_', "weather site"},
	}
	for _, tc := range cases {
		if got := SymbolCategory(tc.table, tc.code); got != tc.want {
			t.Errorf("SymbolCategory(%c, %c) = %q, want %q", tc.table, tc.code, got, tc.want)
		}
	}
}

func TestSymbolCategoryTotalOnUnknownPairs(t *testing.T) {
	if got := SymbolCategory('?', 0x7f); got != "unknown" {
		t.Errorf("unmapped pair = %q, want unknown", got)
	}
	if got := SymbolCategory(0, 0); got != "unknown" {
		t.Errorf("zero pair = %q, want unknown", got)
	}
}

func TestClassifySymbol(t *testing.T) {
	if got := ClassifySymbol('/', '>'); got != ClassMobile {
		t.Errorf("car = %s, want mobile", got)
	}
	if got := ClassifySymbol('/', '-'); got != ClassFixed {
		t.Errorf("house = %s, want fixed", got)
	}
	if got := ClassifySymbol('/', '~'); got != ClassUnknown {
		t.Errorf("unmapped = %s, want unknown", got)
	}
}
