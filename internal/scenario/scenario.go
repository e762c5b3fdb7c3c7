// Package scenario loads TOML scenario files and spawns random requests.
//
// A scenario describes a grid and the requests to run against it:
//
//	[grid]
//	width = 32
//	height = 32
//	obstacle_ratio = 0.2
//	seed = 42
//	# layout overrides width/height/obstacle_ratio when present
//	layout = ["....", ".#..", "..2."]
//	obstacles = [[3, 4], [5, 6]]
//
//	[spawn]
//	count = 20
//	seed = 7
//
//	[[request]]
//	start = [0, 0]
//	target = [31, 31]
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/pkg/types"
)

var (
	ErrBadPoint   = errors.New("scenario: point must have two coordinates")
	ErrNoRequests = errors.New("scenario: no requests and no spawn count")
)

// File is the decoded scenario.
type File struct {
	Grid     GridSpec      `toml:"grid"`
	Spawn    SpawnSpec     `toml:"spawn"`
	Requests []RequestSpec `toml:"request"`
}

type GridSpec struct {
	Width         int      `toml:"width"`
	Height        int      `toml:"height"`
	ObstacleRatio float64  `toml:"obstacle_ratio"`
	Seed          int64    `toml:"seed"`
	Layout        []string `toml:"layout,omitempty"`
	Obstacles     [][]int  `toml:"obstacles,omitempty"`
}

type SpawnSpec struct {
	Count int   `toml:"count"`
	Seed  int64 `toml:"seed"`
}

type RequestSpec struct {
	Start  []int `toml:"start"`
	Target []int `toml:"target"`
}

// Pair is one (start, target) request.
type Pair struct {
	Start  types.Point
	Target types.Point
}

// Parse decodes a scenario from r.
func Parse(r io.Reader) (*File, error) {
	var out File
	if _, err := toml.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &out, nil
}

// Load reads a scenario file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// GridParams converts the grid section into build parameters.
func (f *File) GridParams() (grid.Params, error) {
	g := f.Grid
	var p grid.Params
	if len(g.Layout) > 0 {
		var err error
		if p, err = grid.ParseLayout(g.Layout); err != nil {
			return grid.Params{}, err
		}
	} else {
		p = grid.Params{
			Width:         g.Width,
			Height:        g.Height,
			ObstacleRatio: g.ObstacleRatio,
			Seed:          g.Seed,
		}
	}
	for i, o := range g.Obstacles {
		pt, err := toPoint(o)
		if err != nil {
			return grid.Params{}, fmt.Errorf("obstacle %d: %w", i, err)
		}
		p.Obstacles = append(p.Obstacles, pt)
	}
	return p, nil
}

// Pairs returns the explicit requests followed by spawn.count random ones
// drawn from snap.
func (f *File) Pairs(snap *grid.Snapshot) ([]Pair, error) {
	out := make([]Pair, 0, len(f.Requests)+f.Spawn.Count)
	for i, r := range f.Requests {
		start, err := toPoint(r.Start)
		if err != nil {
			return nil, fmt.Errorf("request %d start: %w", i, err)
		}
		target, err := toPoint(r.Target)
		if err != nil {
			return nil, fmt.Errorf("request %d target: %w", i, err)
		}
		out = append(out, Pair{Start: start, Target: target})
	}
	if f.Spawn.Count > 0 {
		out = append(out, NewSpawner(snap, f.Spawn.Seed).Pairs(f.Spawn.Count)...)
	}
	if len(out) == 0 {
		return nil, ErrNoRequests
	}
	return out, nil
}

func toPoint(v []int) (types.Point, error) {
	if len(v) != 2 {
		return types.Point{}, fmt.Errorf("%w: got %v", ErrBadPoint, v)
	}
	return types.Point{X: v[0], Y: v[1]}, nil
}
