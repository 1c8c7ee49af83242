package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

func committedBridge() transformSync {
	var s transformSync
	s.reset(mgl64.Vec3{}, mgl64.QuatIdent())
	s.commit(StepResult{
		Position:       mgl64.Vec3{2, 0, 0},
		Rotation:       mgl64.QuatIdent(),
		LinearVelocity: mgl64.Vec3{4, 0, 0},
	}, 0.5)
	return s
}

func TestFrameNonePassesThrough(t *testing.T) {
	s := committedBridge()
	pos, _ := s.frame(InterpolationNone, 0.25)
	require.Equal(t, mgl64.Vec3{2, 0, 0}, pos)
}

func TestFrameInterpolateBlendsTicks(t *testing.T) {
	s := committedBridge()

	pos, _ := s.frame(InterpolationInterpolate, 0.5)
	require.InDelta(t, 1, pos.X(), 1e-12)

	pos, _ = s.frame(InterpolationInterpolate, 0)
	require.InDelta(t, 0, pos.X(), 1e-12)

	pos, _ = s.frame(InterpolationInterpolate, 1)
	require.InDelta(t, 2, pos.X(), 1e-12)
}

func TestFrameInterpolateRotation(t *testing.T) {
	var s transformSync
	s.reset(mgl64.Vec3{}, mgl64.QuatIdent())
	s.commit(StepResult{
		Rotation: mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1}),
	}, 0.02)

	_, rot := s.frame(InterpolationInterpolate, 0.5)
	want := mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 0, 1})
	require.InDelta(t, want.W, rot.W, 1e-9)
	require.InDelta(t, want.V.Z(), rot.V.Z(), 1e-9)
}

func TestFrameExtrapolatePredictsAhead(t *testing.T) {
	s := committedBridge()

	// Half a tick ahead at 4 units per second over a 0.5s tick.
	pos, _ := s.frame(InterpolationExtrapolate, 0.5)
	require.InDelta(t, 3, pos.X(), 1e-12)
}

func TestFrameClampsAlpha(t *testing.T) {
	s := committedBridge()

	pos, _ := s.frame(InterpolationInterpolate, 2)
	require.InDelta(t, 2, pos.X(), 1e-12)

	pos, _ = s.frame(InterpolationInterpolate, -1)
	require.InDelta(t, 0, pos.X(), 1e-12)
}

func TestResetDiscardsHistory(t *testing.T) {
	s := committedBridge()
	s.reset(mgl64.Vec3{10, 0, 0}, mgl64.QuatIdent())

	pos, _ := s.frame(InterpolationInterpolate, 0.5)
	require.Equal(t, mgl64.Vec3{10, 0, 0}, pos)

	pos, _ = s.frame(InterpolationExtrapolate, 0.5)
	require.Equal(t, mgl64.Vec3{10, 0, 0}, pos, "reset zeroes the velocities used for prediction")
}
