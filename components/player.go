package components

import (
	"github.com/yohamta/donburi"
)

type PlayerData struct {
	Name        string
	ClientToken string
	TickRate    int
}

var Player = donburi.NewComponentType[PlayerData]()
