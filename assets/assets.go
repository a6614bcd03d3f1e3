package assets

import (
	"embed"
	"sync"

	"github.com/automoto/ticksync/shared/leveldata"
	"github.com/rotisserie/eris"
)

var (
	//go:embed all:levels
	assetFS embed.FS

	loadOnce sync.Once
	levels   map[string]*leveldata.Level
	names    []string
	loadErr  error
)

// ErrUnknownLevel is returned for a name with no built-in level.
var ErrUnknownLevel = eris.New("unknown built-in level")

func load() {
	loadOnce.Do(func() {
		levels, names, loadErr = leveldata.LoadAllLevels(assetFS, "levels")
	})
}

// Names lists the built-in levels, sorted.
func Names() ([]string, error) {
	load()
	if loadErr != nil {
		return nil, loadErr
	}
	return append([]string(nil), names...), nil
}

// Level returns the built-in level called name. Levels are parsed once and
// shared; callers must not modify them.
func Level(name string) (*leveldata.Level, error) {
	load()
	if loadErr != nil {
		return nil, loadErr
	}
	lvl, ok := levels[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownLevel, "level %q", name)
	}
	return lvl, nil
}
