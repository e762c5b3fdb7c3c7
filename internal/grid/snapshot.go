// ============================================================================
// gridpath Grid Snapshot - Immutable Walkability Grid
// ============================================================================
//
// Package: internal/grid
// File: snapshot.go
// Purpose: Read-only view of grid walkability and per-cell movement cost
//
// Layout:
//   Cells are stored row-major in flat arrays, index = x + y*width.
//   walkable []bool   - obstacle mask
//   cost     []float32 - optional per-cell multiplier, nil means uniform 1.0
//
// Lifetime:
//   A Snapshot never changes after Build returns. Batches hold a pointer to
//   the snapshot they were dispatched with; a rebuild produces a new Snapshot
//   with a higher version and the old one is released once no batch holds it.
//
// Step cost:
//   straight = max(1, floor(10 * cost(dest)))
//   diagonal = max(1, floor(14 * cost(dest)))
//   On a uniform grid this is exactly 10 / 14.
//
// ============================================================================

package grid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/ChuLiYu/gridpath/pkg/types"
	farm "github.com/dgryski/go-farm"
)

// ============================================================================
// Errors
// ============================================================================

var (
	ErrInvalidSize   = errors.New("grid: width and height must be positive and within MaxCells")
	ErrInvalidRatio  = errors.New("grid: obstacle ratio must be within [0, 1]")
	ErrCostLength    = errors.New("grid: cost array length does not match grid size")
	ErrRaggedLayout  = errors.New("grid: layout rows have different widths")
	ErrUnknownSymbol = errors.New("grid: unknown layout symbol")
)

const (
	// StraightCost is the base cost of a horizontal or vertical step.
	StraightCost = 10
	// DiagonalCost is the base cost of a diagonal step.
	DiagonalCost = 14
	// MinCost replaces any non-positive cell cost.
	MinCost float32 = 0.1
)

// ============================================================================
// Data structures
// ============================================================================

// Params describes how to build a snapshot.
type Params struct {
	Width         int
	Height        int
	ObstacleRatio float64       // fraction of cells randomly blocked
	Seed          int64         // seed for random obstacles
	Obstacles     []types.Point // explicit blocked cells, out of range entries are ignored
	Costs         []float32     // optional row-major per-cell cost
}

// Snapshot is an immutable walkability grid.
type Snapshot struct {
	width       int
	height      int
	walkable    []bool
	cost        []float32
	version     uint64
	fingerprint uint64

	// cheapest possible steps on this grid, used by the heuristic
	minStraight int
	minDiagonal int
}

// ============================================================================
// Construction
// ============================================================================

// MaxCells bounds width*height. Cell indices are stored as int32 during a
// search.
const MaxCells = math.MaxInt32

// Build validates p and produces a snapshot tagged with version.
func Build(p Params, version uint64) (*Snapshot, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrInvalidSize, p.Width, p.Height)
	}
	if p.Width > MaxCells/p.Height {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d cells", ErrInvalidSize, p.Width, p.Height, MaxCells)
	}
	if p.ObstacleRatio < 0 || p.ObstacleRatio > 1 || math.IsNaN(p.ObstacleRatio) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, p.ObstacleRatio)
	}
	n := p.Width * p.Height
	if p.Costs != nil && len(p.Costs) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCostLength, len(p.Costs), n)
	}

	s := &Snapshot{
		width:    p.Width,
		height:   p.Height,
		walkable: make([]bool, n),
		version:  version,
	}
	for i := range s.walkable {
		s.walkable[i] = true
	}

	// Random obstacles: duplicates are allowed, so the blocked count can be
	// lower than the number of draws.
	if draws := int(math.Round(float64(n) * p.ObstacleRatio)); draws > 0 {
		rng := rand.New(rand.NewSource(p.Seed))
		for i := 0; i < draws; i++ {
			x := rng.Intn(p.Width)
			y := rng.Intn(p.Height)
			s.walkable[x+y*p.Width] = false
		}
	}

	for _, o := range p.Obstacles {
		if s.InBounds(o.X, o.Y) {
			s.walkable[s.Index(o.X, o.Y)] = false
		}
	}

	minCost := float32(1)
	if p.Costs != nil {
		s.cost = make([]float32, n)
		minCost = float32(math.MaxFloat32)
		for i, c := range p.Costs {
			switch {
			case !(c > 0): // also catches NaN
				c = MinCost
			case math.IsInf(float64(c), 1):
				c = math.MaxFloat32
			}
			s.cost[i] = c
			if c < minCost {
				minCost = c
			}
		}
	}
	s.minStraight = scaledCost(StraightCost, minCost)
	s.minDiagonal = scaledCost(DiagonalCost, minCost)
	s.fingerprint = s.hash()

	return s, nil
}

// scaledCost returns max(1, floor(base*c)), capped to keep sums in range.
func scaledCost(base int, c float32) int {
	v := math.Floor(float64(base) * float64(c))
	if v < 1 {
		return 1
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func (s *Snapshot) hash() uint64 {
	buf := make([]byte, 16, 16+len(s.walkable)+4*len(s.cost))
	binary.LittleEndian.PutUint64(buf[0:], uint64(s.width))
	binary.LittleEndian.PutUint64(buf[8:], uint64(s.height))
	for _, w := range s.walkable {
		if w {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	for _, c := range s.cost {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c))
	}
	return farm.Hash64(buf)
}

// ============================================================================
// Queries
// ============================================================================

func (s *Snapshot) Width() int          { return s.width }
func (s *Snapshot) Height() int         { return s.height }
func (s *Snapshot) Version() uint64     { return s.version }
func (s *Snapshot) Fingerprint() uint64 { return s.fingerprint }

// Size returns the number of cells.
func (s *Snapshot) Size() int { return s.width * s.height }

// InBounds reports whether (x, y) lies inside the grid.
func (s *Snapshot) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.width && y < s.height
}

// Index maps (x, y) to the flat cell index. The caller must have checked
// InBounds.
func (s *Snapshot) Index(x, y int) int {
	return x + y*s.width
}

// Point is the inverse of Index.
func (s *Snapshot) Point(index int) types.Point {
	return types.Point{X: index % s.width, Y: index / s.width}
}

// IsWalkable is false for blocked and out of range cells.
func (s *Snapshot) IsWalkable(x, y int) bool {
	if !s.InBounds(x, y) {
		return false
	}
	return s.walkable[s.Index(x, y)]
}

// Cost returns the movement multiplier of an in-range cell.
func (s *Snapshot) Cost(x, y int) float32 {
	if s.cost == nil {
		return 1
	}
	return s.cost[s.Index(x, y)]
}

// StepCost is the integer cost of entering cell index.
func (s *Snapshot) StepCost(index int, diagonal bool) int {
	base := StraightCost
	if diagonal {
		base = DiagonalCost
	}
	if s.cost == nil {
		return base
	}
	return scaledCost(base, s.cost[index])
}

// MinStepCosts returns the cheapest straight and diagonal step on this grid.
func (s *Snapshot) MinStepCosts() (straight, diagonal int) {
	return s.minStraight, s.minDiagonal
}

// WalkableCount counts open cells.
func (s *Snapshot) WalkableCount() int {
	n := 0
	for _, w := range s.walkable {
		if w {
			n++
		}
	}
	return n
}
