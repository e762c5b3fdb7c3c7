package scenario

import (
	"math/rand"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/pkg/types"
)

// MaxAttempts bounds the search for a walkable cell.
const MaxAttempts = 100

// Spawner draws random request endpoints from a snapshot.
// It is not safe for concurrent use.
type Spawner struct {
	snap *grid.Snapshot
	rng  *rand.Rand
}

func NewSpawner(snap *grid.Snapshot, seed int64) *Spawner {
	return &Spawner{snap: snap, rng: rand.New(rand.NewSource(seed))}
}

// RandomWalkable samples up to MaxAttempts cells and returns the first
// walkable one. When none is found the last sample is returned with ok=false.
func (s *Spawner) RandomWalkable() (p types.Point, ok bool) {
	for i := 0; i < MaxAttempts; i++ {
		p = types.Point{X: s.rng.Intn(s.snap.Width()), Y: s.rng.Intn(s.snap.Height())}
		if s.snap.IsWalkable(p.X, p.Y) {
			return p, true
		}
	}
	return p, false
}

// Pairs draws n requests. Endpoints that could not be placed on a walkable
// cell are kept; the solver reports them as unreachable.
func (s *Spawner) Pairs(n int) []Pair {
	out := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		start, _ := s.RandomWalkable()
		target, _ := s.RandomWalkable()
		out = append(out, Pair{Start: start, Target: target})
	}
	return out
}
