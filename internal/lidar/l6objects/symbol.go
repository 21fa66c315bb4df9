package l6objects

import "fmt"

// Symbol is a stable cartographic symbol code using ISOM numbering.
type Symbol int

const (
	SymbolContour        Symbol = 101
	SymbolIndexContour   Symbol = 102
	SymbolFormLine       Symbol = 103
	SymbolBasemapContour Symbol = 106
	SymbolCliff          Symbol = 201
	SymbolBoulder        Symbol = 206
	SymbolBareRock       Symbol = 214
	SymbolMarsh          Symbol = 308
	SymbolOpenLand       Symbol = 401
	SymbolGreen1         Symbol = 406
	SymbolGreen2         Symbol = 408
	SymbolGreen3         Symbol = 410
	SymbolPaved          Symbol = 501
)

// Kind is the geometry class of an object.
type Kind int

const (
	KindPoint Kind = iota
	KindLine
	KindArea
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindArea:
		return "area"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type symbolInfo struct {
	name string
	kind Kind
}

var symbols = map[Symbol]symbolInfo{
	SymbolContour:        {"contour", KindLine},
	SymbolIndexContour:   {"index_contour", KindLine},
	SymbolFormLine:       {"form_line", KindLine},
	SymbolBasemapContour: {"basemap_contour", KindLine},
	SymbolCliff:          {"cliff", KindArea},
	SymbolBoulder:        {"boulder", KindPoint},
	SymbolBareRock:       {"bare_rock", KindArea},
	SymbolMarsh:          {"marsh", KindArea},
	SymbolOpenLand:       {"open_land", KindArea},
	SymbolGreen1:         {"green_1", KindArea},
	SymbolGreen2:         {"green_2", KindArea},
	SymbolGreen3:         {"green_3", KindArea},
	SymbolPaved:          {"paved_area", KindArea},
}

// ParseSymbol validates a numeric symbol code.
func ParseSymbol(code int) (Symbol, error) {
	s := Symbol(code)
	if _, ok := symbols[s]; !ok {
		return 0, fmt.Errorf("unknown symbol code %d", code)
	}
	return s, nil
}

// Valid reports whether s is a known symbol.
func (s Symbol) Valid() bool {
	_, ok := symbols[s]
	return ok
}

func (s Symbol) String() string {
	if info, ok := symbols[s]; ok {
		return info.name
	}
	return fmt.Sprintf("symbol(%d)", int(s))
}

// Kind is the geometry kind objects of this symbol must have.
func (s Symbol) Kind() Kind { return symbols[s].kind }

// GreenSymbol returns the vegetation symbol for band 0, 1 or 2.
func GreenSymbol(band int) (Symbol, bool) {
	switch band {
	case 0:
		return SymbolGreen1, true
	case 1:
		return SymbolGreen2, true
	case 2:
		return SymbolGreen3, true
	default:
		return 0, false
	}
}
