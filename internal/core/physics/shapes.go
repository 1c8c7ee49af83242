package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SphereCollider is a solid sphere shape descriptor.
type SphereCollider struct {
	Radius float64
	// Mass is the explicit shape mass. When zero, mass derives from Density
	// and volume.
	Mass    float64
	Density float64
	// Offset and Orientation place the shape relative to the owning body.
	Offset      mgl64.Vec3
	Orientation mgl64.Quat
}

var _ Collider = (*SphereCollider)(nil)

// NewSphereCollider creates a sphere with an explicit mass at the body
// origin.
func NewSphereCollider(radius, mass float64) *SphereCollider {
	return &SphereCollider{
		Radius:      radius,
		Mass:        mass,
		Orientation: mgl64.QuatIdent(),
	}
}

func (s *SphereCollider) LocalMass() float64 {
	if s.Mass > 0 {
		return s.Mass
	}
	return s.Density * s.Volume()
}

// LocalInertia returns the solid-sphere inertia 2/5*m*r^2 about each axis.
func (s *SphereCollider) LocalInertia() mgl64.Vec3 {
	return s.UnitInertia().Mul(s.LocalMass())
}

func (s *SphereCollider) UnitInertia() mgl64.Vec3 {
	i := 2.0 / 5.0 * s.Radius * s.Radius
	return mgl64.Vec3{i, i, i}
}

func (s *SphereCollider) LocalTransform() (mgl64.Vec3, mgl64.Quat) {
	return s.Offset, normalizedOrIdent(s.Orientation)
}

func (s *SphereCollider) Volume() float64 {
	return 4.0 / 3.0 * math.Pi * s.Radius * s.Radius * s.Radius
}

func (s *SphereCollider) BoundingRadius() float64 {
	return s.Radius
}

// BoxCollider is a solid box shape descriptor defined by half extents.
type BoxCollider struct {
	HalfExtents mgl64.Vec3
	// Mass is the explicit shape mass. When zero, mass derives from Density
	// and volume.
	Mass        float64
	Density     float64
	Offset      mgl64.Vec3
	Orientation mgl64.Quat
}

var _ Collider = (*BoxCollider)(nil)

// NewBoxCollider creates a box with an explicit mass at the body origin.
func NewBoxCollider(halfExtents mgl64.Vec3, mass float64) *BoxCollider {
	return &BoxCollider{
		HalfExtents: halfExtents,
		Mass:        mass,
		Orientation: mgl64.QuatIdent(),
	}
}

func (b *BoxCollider) LocalMass() float64 {
	if b.Mass > 0 {
		return b.Mass
	}
	return b.Density * b.Volume()
}

// LocalInertia returns the solid-box inertia m/3*(ey^2+ez^2) about each axis
// pair, with e the half extents.
func (b *BoxCollider) LocalInertia() mgl64.Vec3 {
	return b.UnitInertia().Mul(b.LocalMass())
}

func (b *BoxCollider) UnitInertia() mgl64.Vec3 {
	ex2 := b.HalfExtents.X() * b.HalfExtents.X()
	ey2 := b.HalfExtents.Y() * b.HalfExtents.Y()
	ez2 := b.HalfExtents.Z() * b.HalfExtents.Z()
	return mgl64.Vec3{(ey2 + ez2) / 3, (ex2 + ez2) / 3, (ex2 + ey2) / 3}
}

func (b *BoxCollider) LocalTransform() (mgl64.Vec3, mgl64.Quat) {
	return b.Offset, normalizedOrIdent(b.Orientation)
}

func (b *BoxCollider) Volume() float64 {
	return 8 * b.HalfExtents.X() * b.HalfExtents.Y() * b.HalfExtents.Z()
}

func (b *BoxCollider) BoundingRadius() float64 {
	return b.HalfExtents.Len()
}

// normalizedOrIdent guards against zero-value quaternions from struct
// literals.
func normalizedOrIdent(q mgl64.Quat) mgl64.Quat {
	if q.Len() == 0 {
		return mgl64.QuatIdent()
	}
	return q.Normalize()
}
