package protocol

import (
	"sync"

	"github.com/automoto/ticksync/shared/netcomponents"
	"github.com/leap-fish/necs/esync"
	"github.com/rotisserie/eris"
)

// Sync ID constants - ID 1 is reserved by necs for NetworkId
const (
	SyncIDNetTransform uint = 10
	SyncIDNetOwner     uint = 11
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterComponents registers all network components with necs for
// serialization. Both server and client call it before any network
// operation; repeated calls return the first result.
//
// Neither component interpolates: a published transform is applied as-is.
func RegisterComponents() error {
	registerOnce.Do(func() {
		if err := esync.RegisterComponent(
			SyncIDNetTransform,
			netcomponents.NetTransformData{},
			netcomponents.NetTransform,
		); err != nil {
			registerErr = eris.Wrap(err, "register NetTransform")
			return
		}

		if err := esync.RegisterComponent(
			SyncIDNetOwner,
			netcomponents.NetOwnerData{},
			netcomponents.NetOwner,
		); err != nil {
			registerErr = eris.Wrap(err, "register NetOwner")
		}
	})
	return registerErr
}
