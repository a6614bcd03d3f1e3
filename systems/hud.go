package systems

import (
	"time"

	"github.com/automoto/ticksync/components"
	"github.com/automoto/ticksync/network"
	"github.com/automoto/ticksync/tags"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
	"go.uber.org/zap"
)

// HUD logs what a debug overlay would show: prediction tick, correction
// counts and visible entities. It writes once per interval of frame time.
type HUD struct {
	interval   time.Duration
	since      time.Duration
	logger     *zap.Logger
	reconciler *network.Reconciler
	prediction *NetPrediction
}

func NewHUD(interval time.Duration, logger *zap.Logger, reconciler *network.Reconciler, prediction *NetPrediction) *HUD {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HUD{
		interval:   interval,
		logger:     logger.Named("hud"),
		reconciler: reconciler,
		prediction: prediction,
	}
}

func (h *HUD) Update(e *ecs.ECS) {
	clock, ok := components.Clock.First(e.World)
	if !ok {
		return
	}
	h.since += components.Clock.Get(clock).Elapsed
	if h.since < h.interval {
		return
	}
	h.since = 0
	h.Log(e)
}

// Log writes the current figures immediately.
func (h *HUD) Log(e *ecs.ECS) {
	stats := h.reconciler.Stats()
	remotes := 0
	tags.RemotePlayer.Each(e.World, func(*donburi.Entry) { remotes++ })

	fields := []zap.Field{
		zap.Uint64("ticks", h.prediction.Ticks()),
		zap.Uint32("tick", h.prediction.Predictor.Tick()),
		zap.Int("matched", stats.Matched),
		zap.Int("corrected", stats.Corrected),
		zap.Int("adopted", stats.Adopted),
		zap.Int("ignored", stats.Ignored),
		zap.Int("replayed", stats.Replayed),
		zap.Float64("maxError", stats.MaxError),
		zap.Int("sendFailures", h.prediction.Predictor.SendFailures()),
		zap.Int("remotes", remotes),
	}
	if entry, ok := tags.LocalPlayer.First(e.World); ok {
		pose := components.Pose.Get(entry)
		fields = append(fields,
			zap.Float64s("position", pose.Position[:]),
			zap.Float64("yaw", pose.Yaw()))
	}
	h.logger.Info("client stats", fields...)
}
