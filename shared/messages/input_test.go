package messages_test

import (
	"math"
	"testing"

	"github.com/automoto/ticksync/shared/messages"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestClampMove(t *testing.T) {
	tests := []struct {
		name string
		in   mgl64.Vec3
		want mgl64.Vec3
	}{
		{"inside", mgl64.Vec3{0.3, 0, -0.4}, mgl64.Vec3{0.3, 0, -0.4}},
		{"too long", mgl64.Vec3{0, 0, -5}, mgl64.Vec3{0, 0, -1}},
		{"nan", mgl64.Vec3{math.NaN(), 0, 1}, mgl64.Vec3{}},
		{"inf", mgl64.Vec3{math.Inf(1), 0, 0}, mgl64.Vec3{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := messages.ClampMove(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, messages.ClampMove(got), "clamping twice changes nothing")
		})
	}
}

func TestFinite(t *testing.T) {
	assert.True(t, messages.NewInputSample(1, mgl64.Vec3{1, 0, 0}, mgl64.Vec2{3, -2}).Finite())
	assert.True(t, messages.NewInputSample(1, mgl64.Vec3{math.NaN(), 0, 0}, mgl64.Vec2{}).Finite(), "built samples are clamped")
	assert.False(t, messages.InputSample{Move: mgl64.Vec3{0, math.Inf(-1), 0}}.Finite())
	assert.False(t, messages.InputSample{Look: mgl64.Vec2{math.NaN(), 0}}.Finite())
	assert.False(t, messages.NewInputSample(1, mgl64.Vec3{}, mgl64.Vec2{0, math.Inf(1)}).Finite())
}
