package network

import (
	"testing"

	"github.com/automoto/ticksync/shared/netcomponents"
	"github.com/automoto/ticksync/shared/protocol"
	"github.com/leap-fish/necs/esync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func worldSnapshot(t *testing.T, id esync.NetworkId, transform netcomponents.NetTransformData) esync.WorldSnapshot {
	t.Helper()
	require.NoError(t, protocol.RegisterComponents())

	tb, err := esync.Mapper.Serialize(transform)
	require.NoError(t, err)
	ob, err := esync.Mapper.Serialize(netcomponents.NetOwnerData{ClientToken: "other", TickRate: 60})
	require.NoError(t, err)

	return esync.WorldSnapshot{{
		Id: id,
		State: esync.EntityState{
			esync.ComponentId(protocol.SyncIDNetTransform): tb,
			esync.ComponentId(protocol.SyncIDNetOwner):     ob,
		},
	}}
}

func TestClientOffersEachPublicationOnce(t *testing.T) {
	c := NewClient("127.0.0.1:0", zap.NewNop())

	spawn := netcomponents.NetTransformData{Tick: 0, Position: [3]float64{1, 0, 1}, Orientation: [4]float64{1, 0, 0, 0}}
	c.applySnapshot(worldSnapshot(t, 4, spawn))
	c.applySnapshot(worldSnapshot(t, 4, spawn))

	pubs := Drain(c.Publications())
	require.Len(t, pubs, 1)
	assert.False(t, pubs[0].Snapshot.HasConverged)
	assert.Equal(t, "other", pubs[0].Owner)

	// Tick 0 again, now the Authority has processed it.
	first := spawn
	first.Position[0] = 1.1
	first.HasConverged = true
	c.applySnapshot(worldSnapshot(t, 4, first))
	c.applySnapshot(worldSnapshot(t, 4, first))

	pubs = Drain(c.Publications())
	require.Len(t, pubs, 1)
	assert.True(t, pubs[0].Snapshot.HasConverged)
	assert.Equal(t, uint32(0), pubs[0].Snapshot.Tick)

	c.applySnapshot(nil)
	assert.Equal(t, []uint64{4}, Drain(c.Despawns()))

	// A returning entity starts fresh.
	c.applySnapshot(worldSnapshot(t, 4, first))
	assert.Len(t, Drain(c.Publications()), 1)
}
