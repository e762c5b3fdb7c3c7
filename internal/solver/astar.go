// ============================================================================
// gridpath A* Solver
// ============================================================================
//
// Package: internal/solver
// File: astar.go
// Purpose: Single-threaded A* over a grid snapshot, one call per request
//
// Search:
//   - 8-connected; neighbours visited dx = -1..1, then dy = -1..1
//   - diagonal steps may pass blocked orthogonal neighbours
//   - open set: container/heap keyed by (f, h, cell index)
//   - closed cells are never expanded twice; decrease-key via heap.Fix
//   - heuristic: octile distance scaled by the cheapest step on the grid,
//     admissible and consistent, so the first pop of the target is optimal
//
// Memory:
//   All per-search state lives in flat arrays sized width*height, allocated
//   per call. Nothing is shared between calls, so any number of Solve calls
//   may run concurrently on the same snapshot.
//
// Failure is a value: an unreachable target yields an empty Outcome.
//
// ============================================================================

package solver

import (
	"container/heap"
	"math"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/internal/pathbuffer"
	"github.com/ChuLiYu/gridpath/pkg/types"
)

// DefaultCapacity bounds stored path length when the caller passes <= 0.
const DefaultCapacity = pathbuffer.DefaultCapacity

const (
	unseen uint8 = iota
	open
	closed
)

// Outcome is the result of one search.
type Outcome struct {
	Positions     []types.Point // start to target, at most capacity long
	ReachedTarget bool          // the last stored position is the target
	Truncated     bool          // the full path did not fit
	Cost          int           // integer cost of the full path
	Length        int           // number of positions in the full path
	Expanded      int           // cells taken off the open set
}

// Success is ReachedTarget && !Truncated. A truncated path never ends on
// the target, so Success == ReachedTarget for Solve outcomes.
func (o Outcome) Success() bool {
	return o.ReachedTarget && !o.Truncated
}

// Solve finds a cheapest 8-connected path from start to target.
func Solve(s *grid.Snapshot, start, target types.Point, capacity int) Outcome {
	if !s.IsWalkable(start.X, start.Y) || !s.IsWalkable(target.X, target.Y) {
		return Outcome{Positions: []types.Point{}}
	}
	if start == target {
		positions, truncated := pathbuffer.FromPositions([]types.Point{start}, capacity)
		return Outcome{Positions: positions, ReachedTarget: endsAt(positions, target), Truncated: truncated, Length: 1}
	}

	n := s.Size()
	g := make([]int, n)
	cameFrom := make([]int32, n)
	state := make([]uint8, n)
	items := make([]*openItem, n)
	for i := range g {
		g[i] = math.MaxInt
		cameFrom[i] = -1
	}

	startCell := s.Index(start.X, start.Y)
	targetCell := s.Index(target.X, target.Y)
	straight, diagonal := s.MinStepCosts()
	h := func(x, y int) int {
		return octile(x-target.X, y-target.Y, straight, diagonal)
	}

	queue := make(openQueue, 0, 64)
	g[startCell] = 0
	first := &openItem{cell: startCell, h: h(start.X, start.Y)}
	first.f = first.h
	heap.Push(&queue, first)
	items[startCell] = first
	state[startCell] = open

	expanded := 0
	for queue.Len() > 0 {
		current := heap.Pop(&queue).(*openItem)
		cell := current.cell
		items[cell] = nil
		state[cell] = closed
		expanded++

		if cell == targetCell {
			return reconstruct(s, cameFrom, startCell, targetCell, g[targetCell], expanded, capacity)
		}

		cx, cy := cell%s.Width(), cell/s.Width()
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := cx+dx, cy+dy
				if !s.IsWalkable(nx, ny) {
					continue
				}
				next := s.Index(nx, ny)
				if state[next] == closed {
					continue
				}

				tentative := current.g + s.StepCost(next, dx != 0 && dy != 0)
				if tentative >= g[next] {
					continue
				}
				g[next] = tentative
				cameFrom[next] = int32(cell)

				if item := items[next]; item != nil {
					item.g = tentative
					item.f = tentative + item.h
					heap.Fix(&queue, item.indexInQueue)
					continue
				}
				item := &openItem{cell: next, g: tentative, h: h(nx, ny)}
				item.f = item.g + item.h
				heap.Push(&queue, item)
				items[next] = item
				state[next] = open
			}
		}
	}

	return Outcome{Positions: []types.Point{}, Expanded: expanded}
}

// reconstruct reverses the came-from chain in place, then streams the path
// from start to target into a bounded buffer. Only the first capacity
// positions are ever stored; the rest are counted.
func reconstruct(s *grid.Snapshot, cameFrom []int32, startCell, targetCell, cost, expanded, capacity int) Outcome {
	prev := int32(-1)
	for c := int32(targetCell); ; {
		next := cameFrom[c]
		cameFrom[c] = prev
		if int(c) == startCell {
			break
		}
		prev, c = c, next
	}

	buf := pathbuffer.New(capacity)
	for c := int32(startCell); c != -1; c = cameFrom[c] {
		buf.Push(s.Point(int(c)))
	}

	positions := buf.Positions()
	target := s.Point(targetCell)
	return Outcome{
		Positions:     positions,
		ReachedTarget: endsAt(positions, target),
		Truncated:     buf.Truncated(),
		Cost:          cost,
		Length:        buf.Seen(),
		Expanded:      expanded,
	}
}

// endsAt reports whether the stored path ends on target.
func endsAt(positions []types.Point, target types.Point) bool {
	return len(positions) > 0 && positions[len(positions)-1] == target
}

// octile is the cheapest cost of covering (dx, dy) with the given step costs.
func octile(dx, dy, straight, diagonal int) int {
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	lo, hi := dx, dy
	if lo > hi {
		lo, hi = hi, lo
	}
	return diagonal*lo + straight*(hi-lo)
}

// OctileDistance is the uniform-grid distance between a and b in 10/14 units.
func OctileDistance(a, b types.Point) int {
	return octile(a.X-b.X, a.Y-b.Y, grid.StraightCost, grid.DiagonalCost)
}

// PathCost sums the step costs along positions. Consecutive positions must
// be 8-neighbours.
func PathCost(s *grid.Snapshot, positions []types.Point) int {
	total := 0
	for i := 1; i < len(positions); i++ {
		prev, cur := positions[i-1], positions[i]
		diagonal := prev.X != cur.X && prev.Y != cur.Y
		total += s.StepCost(s.Index(cur.X, cur.Y), diagonal)
	}
	return total
}
