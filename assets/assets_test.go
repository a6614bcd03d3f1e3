package assets_test

import (
	"errors"
	"testing"

	"github.com/automoto/ticksync/assets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinLevels(t *testing.T) {
	names, err := assets.Names()
	require.NoError(t, err)
	assert.Contains(t, names, "arena")

	lvl, err := assets.Level("arena")
	require.NoError(t, err)
	assert.Equal(t, "arena", lvl.Name)
	assert.NotEmpty(t, lvl.Spawns)

	_, err = assets.Level("nope")
	assert.True(t, errors.Is(err, assets.ErrUnknownLevel))
}
