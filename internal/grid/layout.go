package grid

import (
	"fmt"

	"github.com/ChuLiYu/gridpath/pkg/types"
)

// ParseLayout turns an ASCII picture into build parameters.
//
//	'#'      blocked
//	'.'      open, cost 1
//	'1'-'9'  open with that cost
//
// The first row is y = 0.
func ParseLayout(rows []string) (Params, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Params{}, ErrInvalidSize
	}
	width := len([]rune(rows[0]))
	p := Params{Width: width, Height: len(rows)}

	var costs []float32
	for y, row := range rows {
		cells := []rune(row)
		if len(cells) != width {
			return Params{}, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedLayout, y, len(cells), width)
		}
		for x, r := range cells {
			switch {
			case r == '#':
				p.Obstacles = append(p.Obstacles, types.Point{X: x, Y: y})
			case r == '.':
			case r >= '1' && r <= '9':
				if costs == nil {
					costs = make([]float32, width*len(rows))
					for i := range costs {
						costs[i] = 1
					}
				}
				costs[x+y*width] = float32(r - '0')
			default:
				return Params{}, fmt.Errorf("%w: %q at (%d,%d)", ErrUnknownSymbol, r, x, y)
			}
		}
	}
	p.Costs = costs
	return p, nil
}
