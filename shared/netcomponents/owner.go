package netcomponents

import "github.com/yohamta/donburi"

// NetOwnerData ties a replicated entity to the client controlling it. A
// client finds its own entity in a broadcast by matching ClientToken; every
// other entity is replicated passively.
type NetOwnerData struct {
	ClientToken string
	Name        string
	TickRate    int
}

var NetOwner = donburi.NewComponentType[NetOwnerData]()
