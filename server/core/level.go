package core

import (
	"os"
	"path/filepath"

	"github.com/automoto/ticksync/assets"
	"github.com/automoto/ticksync/shared/leveldata"
	"github.com/automoto/ticksync/shared/movement"
	"github.com/automoto/ticksync/shared/netconfig"
	"github.com/rotisserie/eris"
)

// LoadLevel reads one .tmx file from disk. A bare name without the .tmx
// extension selects a built-in level. An empty path means no level: the
// character walks on an endless flat floor.
func LoadLevel(path string) (*leveldata.Level, error) {
	if path == "" {
		return nil, nil
	}
	if filepath.Ext(path) != ".tmx" && filepath.Base(path) == path {
		return assets.Level(path)
	}
	lvl, err := leveldata.LoadLevel(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	if err != nil {
		return nil, eris.Wrapf(err, "load level %s", path)
	}
	return lvl, nil
}

// controllers hands out one movement controller per tick rate. Every
// Authority stepping at the same rate shares it; all of them run on the game
// loop goroutine.
type controllers struct {
	base  movement.Config
	level *leveldata.Level
	byHz  map[int]*movement.Controller
}

func newControllers(base movement.Config, level *leveldata.Level) *controllers {
	return &controllers{base: base, level: level, byHz: make(map[int]*movement.Controller)}
}

func (c *controllers) forRate(rate int) *movement.Controller {
	if ctrl, ok := c.byHz[rate]; ok {
		return ctrl
	}
	cfg := c.base
	cfg.TickInterval = netconfig.TickInterval(rate)
	ctrl := movement.NewController(cfg, c.level)
	c.byHz[rate] = ctrl
	return ctrl
}
