package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChuLiYu/gridpath/internal/grid"
	"github.com/ChuLiYu/gridpath/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[grid]
width = 16
height = 8
obstacle_ratio = 0.25
seed = 42
obstacles = [[1, 1], [2, 2]]

[spawn]
count = 5
seed = 7

[[request]]
start = [0, 0]
target = [15, 7]

[[request]]
start = [3, 0]
target = [3, 7]
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, 16, f.Grid.Width)
	assert.Equal(t, 8, f.Grid.Height)
	assert.InDelta(t, 0.25, f.Grid.ObstacleRatio, 1e-9)
	assert.Equal(t, int64(42), f.Grid.Seed)
	assert.Equal(t, 5, f.Spawn.Count)
	require.Len(t, f.Requests, 2)
	assert.Equal(t, []int{15, 7}, f.Requests[0].Target)

	p, err := f.GridParams()
	require.NoError(t, err)
	assert.Equal(t, 16, p.Width)
	assert.Equal(t, []types.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}, p.Obstacles)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("[grid\nwidth = 3"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Requests, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestGridParams_Layout(t *testing.T) {
	f, err := Parse(strings.NewReader(`
[grid]
width = 99
layout = ["..#", ".2.", "..."]
`))
	require.NoError(t, err)

	p, err := f.GridParams()
	require.NoError(t, err)
	assert.Equal(t, 3, p.Width, "layout wins over width")
	assert.Equal(t, 3, p.Height)

	s, err := grid.Build(p, 1)
	require.NoError(t, err)
	assert.False(t, s.IsWalkable(2, 0))
	assert.Equal(t, float32(2), s.Cost(1, 1))
}

func TestGridParams_BadObstacle(t *testing.T) {
	f := &File{Grid: GridSpec{Width: 4, Height: 4, Obstacles: [][]int{{1}}}}
	_, err := f.GridParams()
	assert.ErrorIs(t, err, ErrBadPoint)
}

func TestPairs(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	p, err := f.GridParams()
	require.NoError(t, err)
	snap, err := grid.Build(p, 1)
	require.NoError(t, err)

	pairs, err := f.Pairs(snap)
	require.NoError(t, err)
	require.Len(t, pairs, 7)
	assert.Equal(t, Pair{Start: types.Point{}, Target: types.Point{X: 15, Y: 7}}, pairs[0])
	for _, pr := range pairs[2:] {
		assert.True(t, snap.IsWalkable(pr.Start.X, pr.Start.Y))
		assert.True(t, snap.IsWalkable(pr.Target.X, pr.Target.Y))
	}

	again, err := f.Pairs(snap)
	require.NoError(t, err)
	assert.Equal(t, pairs, again, "same seed, same requests")
}

func TestPairs_Empty(t *testing.T) {
	f := &File{}
	snap, err := grid.Build(grid.Params{Width: 2, Height: 2}, 1)
	require.NoError(t, err)
	_, err = f.Pairs(snap)
	assert.ErrorIs(t, err, ErrNoRequests)

	f.Requests = []RequestSpec{{Start: []int{0}, Target: []int{1, 1}}}
	_, err = f.Pairs(snap)
	assert.ErrorIs(t, err, ErrBadPoint)
}

func TestRandomWalkable(t *testing.T) {
	layout := []string{
		"###",
		"#.#",
		"###",
	}
	p, err := grid.ParseLayout(layout)
	require.NoError(t, err)
	snap, err := grid.Build(p, 1)
	require.NoError(t, err)

	sp := NewSpawner(snap, 1)
	for i := 0; i < 20; i++ {
		pt, ok := sp.RandomWalkable()
		if ok {
			assert.Equal(t, types.Point{X: 1, Y: 1}, pt)
		}
	}
}

func TestRandomWalkable_NoWalkableCell(t *testing.T) {
	p, err := grid.ParseLayout([]string{"###", "###"})
	require.NoError(t, err)
	snap, err := grid.Build(p, 1)
	require.NoError(t, err)
	require.Zero(t, snap.WalkableCount())

	pt, ok := NewSpawner(snap, 1).RandomWalkable()
	assert.False(t, ok)
	assert.True(t, snap.InBounds(pt.X, pt.Y))
}
