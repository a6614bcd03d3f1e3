package components

import (
	"github.com/automoto/ticksync/network"
	"github.com/yohamta/donburi"
)

// InputData keeps the last frame of device input for the local player.
type InputData struct {
	Last   network.Intent
	Frames uint64
}

var Input = donburi.NewComponentType[InputData]()
