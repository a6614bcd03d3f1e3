package leveldata

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lafriks/go-tiled"
	"github.com/rotisserie/eris"
)

// Layer and object group names read from TMX files.
const (
	LayerWalls    = "walls"
	LayerPits     = "pits"
	GroupSpawns   = "spawns"
	GroupSettings = "settings"
)

// LoadLevel parses a TMX file into a Level. It takes an fs.FS so callers can
// pass embed.FS or os.DirFS.
//
// One tile is one meter unless the first object of the "settings" group sets
// a "pixelsPerMeter" property. "floorHeight" is read from the same object.
func LoadLevel(fsys fs.FS, tmxPath string) (*Level, error) {
	levelMap, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, eris.Wrapf(err, "load TMX %s", tmxPath)
	}

	ppm := float64(levelMap.TileWidth)
	var floor float64
	for _, og := range levelMap.ObjectGroups {
		if og.Name != GroupSettings || len(og.Objects) == 0 {
			continue
		}
		props := og.Objects[0].Properties
		if v := props.GetInt("pixelsPerMeter"); v > 0 {
			ppm = float64(v)
		}
		floor = props.GetFloat("floorHeight")
	}

	level := &Level{
		Name:        strings.TrimSuffix(filepath.Base(tmxPath), ".tmx"),
		Width:       float64(levelMap.Width*levelMap.TileWidth) / ppm,
		Depth:       float64(levelMap.Height*levelMap.TileHeight) / ppm,
		FloorHeight: floor,
	}

	tileW := float64(levelMap.TileWidth) / ppm
	tileD := float64(levelMap.TileHeight) / ppm
	for _, layer := range levelMap.Layers {
		var dst *[]Rect
		switch layer.Name {
		case LayerWalls:
			dst = &level.Walls
		case LayerPits:
			dst = &level.Pits
		default:
			continue
		}
		for z := 0; z < levelMap.Height; z++ {
			for x := 0; x < levelMap.Width; x++ {
				tile := layer.Tiles[z*levelMap.Width+x]
				if tile.IsNil() {
					continue
				}
				*dst = append(*dst, Rect{
					X: float64(x) * tileW,
					Z: float64(z) * tileD,
					W: tileW,
					D: tileD,
				})
			}
		}
	}

	for _, og := range levelMap.ObjectGroups {
		if og.Name != GroupSpawns {
			continue
		}
		for _, o := range og.Objects {
			level.Spawns = append(level.Spawns, Spawn{
				X:     o.X / ppm,
				Z:     o.Y / ppm,
				Yaw:   o.Properties.GetFloat("yaw"),
				Index: o.Properties.GetInt("spawnIndex"),
			})
		}
	}

	sort.SliceStable(level.Spawns, func(i, j int) bool {
		return level.Spawns[i].Index < level.Spawns[j].Index
	})

	return level, nil
}

// LoadAllLevels discovers all .tmx files in levelsDir within fsys and returns
// them keyed by stem name plus a sorted list of names.
func LoadAllLevels(fsys fs.FS, levelsDir string) (map[string]*Level, []string, error) {
	pattern := levelsDir + "/*.tmx"
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "glob %s", pattern)
	}
	if len(matches) == 0 {
		return nil, nil, eris.Errorf("no .tmx files found in %s", levelsDir)
	}

	levels := make(map[string]*Level, len(matches))
	names := make([]string, 0, len(matches))
	for _, path := range matches {
		level, err := LoadLevel(fsys, path)
		if err != nil {
			return nil, nil, err
		}
		levels[level.Name] = level
		names = append(names, level.Name)
	}

	sort.Strings(names)
	return levels, names, nil
}
