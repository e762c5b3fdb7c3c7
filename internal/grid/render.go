package grid

import (
	"strings"

	"github.com/ChuLiYu/gridpath/pkg/types"
)

// Map symbols.
const (
	SymbolStart   = 'S'
	SymbolEnd     = 'E'
	SymbolBlocked = '█'
	SymbolPath    = '●'
	SymbolOpen    = '·'
)

// RenderMap draws the grid with a path overlay, top row (y = height-1) first.
// Start and end marks win over every other symbol.
func RenderMap(s *Snapshot, start, end types.Point, path []types.Point) []string {
	onPath := make(map[types.Point]struct{}, len(path))
	for _, p := range path {
		onPath[p] = struct{}{}
	}

	rows := make([]string, 0, s.height)
	var b strings.Builder
	for y := s.height - 1; y >= 0; y-- {
		b.Reset()
		for x := 0; x < s.width; x++ {
			b.WriteRune(Symbol(s, types.Point{X: x, Y: y}, start, end, onPath))
		}
		rows = append(rows, b.String())
	}
	return rows
}

// Symbol picks the map symbol for one cell.
func Symbol(s *Snapshot, p, start, end types.Point, onPath map[types.Point]struct{}) rune {
	switch {
	case p == start:
		return SymbolStart
	case p == end:
		return SymbolEnd
	case !s.IsWalkable(p.X, p.Y):
		return SymbolBlocked
	}
	if _, ok := onPath[p]; ok {
		return SymbolPath
	}
	return SymbolOpen
}
