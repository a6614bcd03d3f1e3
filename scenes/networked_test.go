package scenes_test

import (
	"context"
	"testing"
	"time"

	"github.com/automoto/ticksync/components"
	"github.com/automoto/ticksync/network"
	"github.com/automoto/ticksync/scenes"
	"github.com/automoto/ticksync/server/core"
	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/movement"
	"github.com/automoto/ticksync/shared/netconfig"
	"github.com/automoto/ticksync/systems"
	"github.com/automoto/ticksync/tags"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"
	"go.uber.org/zap/zaptest"
)

// frame is a bit over one 60Hz tick, so every frame runs exactly one tick.
const frame = 17 * time.Millisecond

func join(t *testing.T, s *core.Server, token string) (*network.Loopback, messages.JoinAccepted) {
	t.Helper()
	link := network.NewLoopback(s, network.LoopbackOptions{})
	accepted, err := link.Join(context.Background(), messages.JoinRequest{
		Version:     netconfig.ProtocolVersion,
		PlayerName:  token,
		ClientToken: token,
		TickRate:    netconfig.DefaultTickRate,
	})
	require.NoError(t, err)
	return link, accepted
}

func newScene(t *testing.T, s *core.Server, link *network.Loopback, accepted messages.JoinAccepted) *scenes.NetworkedScene {
	t.Helper()
	bot, err := systems.NewBot(systems.BotZigzag, 60)
	require.NoError(t, err)

	ctrl := movement.NewController(movement.DefaultConfig(), nil)
	return scenes.NewNetworkedScene(link, accepted, scenes.Options{
		Step:       ctrl.Step,
		Input:      bot,
		PlayerName: "local",
		Tolerance:  netconfig.DefaultTolerance,
	}, zaptest.NewLogger(t))
}

func remotes(w donburi.World) map[uint64]components.PoseData {
	out := make(map[uint64]components.PoseData)
	tags.RemotePlayer.Each(w, func(e *donburi.Entry) {
		out[components.NetEntity.Get(e).ID] = *components.Pose.Get(e)
	})
	return out
}

func TestNetworkedSceneTracksAuthority(t *testing.T) {
	s, err := core.NewServer(core.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	link, accepted := join(t, s, "local")
	scene := newScene(t, s, link, accepted)

	for i := 0; i < 180; i++ {
		scene.Update(frame)
		s.Step()
	}

	require.True(t, scene.Ready())
	stats := scene.Reconciler().Stats()
	assert.Zero(t, stats.Corrected)
	assert.GreaterOrEqual(t, stats.Matched, 170)

	a, ok := s.Authority(accepted.EntityID)
	require.True(t, ok)
	assert.Equal(t, a.State(), scene.Predictor().State())

	local, ok := tags.LocalPlayer.First(scene.World())
	require.True(t, ok)
	pose := components.Pose.Get(local)
	assert.Equal(t, a.State().Position, pose.Position)
	assert.Equal(t, a.Snapshot().Tick, pose.Tick)
	assert.Equal(t, uint64(180), components.Input.Get(local).Frames)
}

func TestNetworkedSceneReplicatesOthers(t *testing.T) {
	s, err := core.NewServer(core.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	link, accepted := join(t, s, "local")
	scene := newScene(t, s, link, accepted)

	other, otherAccepted := join(t, s, "other")
	scene.Update(frame)
	s.Step()
	scene.Update(frame)
	assert.Empty(t, remotes(scene.World()), "spawn pose has not converged")

	for tick := uint32(0); tick < 10; tick++ {
		require.NoError(t, other.SendInput(messages.NewInputSample(tick, mgl64.Vec3{1, 0, 0}, mgl64.Vec2{})))
		s.Step()
		scene.Update(frame)
	}

	seen := remotes(scene.World())
	require.Contains(t, seen, otherAccepted.EntityID)
	a, ok := s.Authority(otherAccepted.EntityID)
	require.True(t, ok)
	assert.Equal(t, a.State().Position, seen[otherAccepted.EntityID].Position)
	assert.Equal(t, uint32(9), seen[otherAccepted.EntityID].Tick)
	assert.NotContains(t, seen, accepted.EntityID, "the local entity is never replicated")
}

func TestNetworkedSceneForgetsDespawned(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.ReconnectGrace = 0
	s, err := core.NewServer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	link, accepted := join(t, s, "local")
	scene := newScene(t, s, link, accepted)

	other, otherAccepted := join(t, s, "other")
	require.NoError(t, other.SendInput(messages.Neutral(0)))
	s.Step()
	scene.Update(frame)
	scene.Update(frame)
	require.Contains(t, remotes(scene.World()), otherAccepted.EntityID)

	require.NoError(t, other.Close())
	scene.Update(frame)
	assert.Empty(t, remotes(scene.World()))
	assert.Zero(t, scene.Replicator().Len())
}
