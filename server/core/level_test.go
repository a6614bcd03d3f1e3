package core

import (
	"errors"
	"testing"

	"github.com/automoto/ticksync/assets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLevel(t *testing.T) {
	lvl, err := LoadLevel("")
	require.NoError(t, err)
	assert.Nil(t, lvl)

	lvl, err = LoadLevel("arena")
	require.NoError(t, err)
	assert.Equal(t, "arena", lvl.Name)

	lvl, err = LoadLevel("../../shared/leveldata/testdata/arena.tmx")
	require.NoError(t, err)
	assert.Len(t, lvl.Spawns, 2)

	_, err = LoadLevel("nope")
	assert.True(t, errors.Is(err, assets.ErrUnknownLevel))

	_, err = LoadLevel("testdata/nope.tmx")
	assert.Error(t, err)
}

func TestControllersSharedPerRate(t *testing.T) {
	c := newControllers(DefaultConfig().Movement, nil)
	assert.Same(t, c.forRate(60), c.forRate(60))
	assert.NotSame(t, c.forRate(60), c.forRate(30))
}
