package components

import "github.com/yohamta/donburi"

// NetEntityData links a client entity to the Authority entity it mirrors.
type NetEntityData struct {
	ID    uint64
	Local bool // controlled by this client
}

var NetEntity = donburi.NewComponentType[NetEntityData]()
