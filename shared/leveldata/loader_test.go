package leveldata_test

import (
	"os"
	"testing"

	"github.com/automoto/ticksync/shared/leveldata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLevel(t *testing.T) {
	level, err := leveldata.LoadLevel(os.DirFS("testdata"), "arena.tmx")
	require.NoError(t, err)

	assert.Equal(t, "arena", level.Name)
	assert.Equal(t, 8.0, level.Width)
	assert.Equal(t, 6.0, level.Depth)
	assert.Equal(t, 0.5, level.FloorHeight)

	// Border of an 8x6 grid.
	assert.Len(t, level.Walls, 24)
	require.Len(t, level.Pits, 1)
	assert.Equal(t, leveldata.Rect{X: 5, Z: 3, W: 1, D: 1}, level.Pits[0])

	require.Len(t, level.Spawns, 2)
	assert.Equal(t, leveldata.Spawn{X: 2, Z: 2, Yaw: 90, Index: 0}, level.Spawns[0])
	assert.Equal(t, leveldata.Spawn{X: 6, Z: 2, Yaw: 180, Index: 1}, level.Spawns[1])
}

func TestLoadLevelMissingFile(t *testing.T) {
	_, err := leveldata.LoadLevel(os.DirFS("testdata"), "nope.tmx")
	assert.Error(t, err)
}

func TestLoadAllLevels(t *testing.T) {
	levels, names, err := leveldata.LoadAllLevels(os.DirFS("."), "testdata")
	require.NoError(t, err)
	assert.Equal(t, []string{"arena"}, names)
	assert.Contains(t, levels, "arena")

	_, _, err = leveldata.LoadAllLevels(os.DirFS("."), "missing")
	assert.Error(t, err)
}

func TestLevelQueries(t *testing.T) {
	level := &leveldata.Level{
		Pits:   []leveldata.Rect{{X: 1, Z: 1, W: 1, D: 1}},
		Spawns: []leveldata.Spawn{{X: 1}, {X: 2}},
	}

	assert.True(t, level.InPit(1.5, 1.5))
	assert.False(t, level.InPit(2, 1.5), "max edge is exclusive")

	s, ok := level.SpawnFor(3)
	require.True(t, ok)
	assert.Equal(t, 2.0, s.X)

	_, ok = (&leveldata.Level{}).SpawnFor(0)
	assert.False(t, ok)
}
