package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// transformSync is the one-directional bridge from solver ticks to the
// render-facing transform. It retains the previous and the current tick so
// the per-frame transform can be blended according to the body's
// interpolation mode.
type transformSync struct {
	prevPos mgl64.Vec3
	prevRot mgl64.Quat
	currPos mgl64.Vec3
	currRot mgl64.Quat
	linVel  mgl64.Vec3
	angVel  mgl64.Vec3
	dt      float64
}

// reset seeds both retained transforms, used at creation and on teleports so
// interpolation never blends across a discontinuity.
func (s *transformSync) reset(pos mgl64.Vec3, rot mgl64.Quat) {
	s.prevPos, s.currPos = pos, pos
	s.prevRot, s.currRot = rot, rot
	s.linVel = mgl64.Vec3{}
	s.angVel = mgl64.Vec3{}
}

// commit rolls the current tick into the previous slot and stores the new
// authoritative state.
func (s *transformSync) commit(res StepResult, dt float64) {
	s.prevPos, s.prevRot = s.currPos, s.currRot
	s.currPos, s.currRot = res.Position, res.Rotation
	s.linVel, s.angVel = res.LinearVelocity, res.AngularVelocity
	s.dt = dt
}

// frame computes the render-facing transform for the given fraction of a
// tick elapsed since the last commit.
func (s *transformSync) frame(mode InterpolationMode, alpha float64) (mgl64.Vec3, mgl64.Quat) {
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}
	switch mode {
	case InterpolationInterpolate:
		pos := s.prevPos.Add(s.currPos.Sub(s.prevPos).Mul(alpha))
		rot := mgl64.QuatSlerp(s.prevRot, s.currRot, alpha)
		return pos, rot
	case InterpolationExtrapolate:
		t := alpha * s.dt
		pos := s.currPos.Add(s.linVel.Mul(t))
		rot := advanceRotation(s.currRot, s.angVel, t)
		return pos, rot
	default:
		return s.currPos, s.currRot
	}
}

// advanceRotation integrates a unit rotation by an angular velocity over t
// seconds.
func advanceRotation(rot mgl64.Quat, angVel mgl64.Vec3, t float64) mgl64.Quat {
	speed := angVel.Len()
	if speed == 0 || t == 0 {
		return rot
	}
	step := mgl64.QuatRotate(speed*t, angVel.Mul(1/speed))
	return step.Mul(rot).Normalize()
}
