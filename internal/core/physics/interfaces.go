package physics

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/zeusync/kinetic/internal/core/events/bus"
)

// ForceMode selects how a force or torque vector is folded into a body's
// motion by the solver.
type ForceMode uint8

const (
	// ForceModeForce accumulates a continuous force, scaled by the timestep.
	ForceModeForce ForceMode = iota
	// ForceModeImpulse applies an instantaneous change in momentum.
	ForceModeImpulse
	// ForceModeVelocityChange sets the velocity directly, ignoring mass.
	ForceModeVelocityChange
	// ForceModeAcceleration accumulates a mass-independent acceleration,
	// scaled by the timestep.
	ForceModeAcceleration
)

// PointForceMode selects how a force applied at an arbitrary world point is
// folded into a body's motion.
type PointForceMode uint8

const (
	PointForceModeForce PointForceMode = iota
	PointForceModeImpulse
)

// InterpolationMode controls how the render-facing transform is derived from
// simulation ticks.
type InterpolationMode uint8

const (
	// InterpolationNone copies the solver transform straight through when a
	// tick completes.
	InterpolationNone InterpolationMode = iota
	// InterpolationInterpolate blends between the previous and the latest
	// tick, trading one tick of latency for smooth movement between ticks.
	InterpolationInterpolate
	// InterpolationExtrapolate advances the latest tick by the current
	// velocities. No added latency, but the prediction can overshoot.
	InterpolationExtrapolate
)

// Flags are the per-body capability toggles. Named booleans instead of a
// bitmask so call sites stay readable.
type Flags struct {
	// AutoTensors derives center of mass and inertia from attached colliders.
	AutoTensors bool
	// AutoMass derives total mass from attached colliders. Only consulted
	// when AutoTensors is set.
	AutoMass bool
	// CCD enables continuous collision detection for fast-moving bodies.
	CCD bool
}

// OwnerTag is an opaque identity marker set by a higher-level system so it
// can map solver callbacks back to its own objects. The physics core never
// interprets it.
type OwnerTag struct {
	Type  string
	Value any
}

// TransformSink receives the render-facing transform once per frame.
type TransformSink func(position mgl64.Vec3, rotation mgl64.Quat)

// Collider describes a shape attached to a rigid body. The shape itself is
// owned elsewhere; bodies only track membership.
type Collider interface {
	// LocalMass returns the shape's own mass contribution. Implementations
	// may derive it from density and volume.
	LocalMass() float64
	// LocalInertia returns the principal diagonal of the shape's inertia
	// tensor about its own center, in the shape's local frame.
	LocalInertia() mgl64.Vec3
	// UnitInertia returns the shape's central inertia at unit mass. Inertia
	// is linear in mass, so a shape carrying an externally distributed mass
	// contributes UnitInertia scaled by that mass.
	UnitInertia() mgl64.Vec3
	// LocalTransform returns the shape's offset and orientation relative to
	// the owning body.
	LocalTransform() (mgl64.Vec3, mgl64.Quat)
	// Volume returns the shape volume, used to distribute an externally set
	// mass across colliders.
	Volume() float64
	// BoundingRadius returns the radius of the smallest sphere enclosing the
	// shape, centered at the shape's local origin.
	BoundingRadius() float64
}

// CollisionHandler is invoked once per collision event. The event payload is
// pooled and only valid for the duration of the call.
type CollisionHandler func(event CollisionEvent) error

// Rigidbody is a dynamic physics object that can be moved by forces or
// directly. Its shape and, optionally, its mass distribution are governed by
// the attached colliders; at least one collider must be attached for the
// body to take part in simulation.
//
// All mutators are safe to call from outside the stepping pass: while a tick
// is in progress they are queued and applied before the next tick begins.
// Read accessors always return the last committed tick's values.
type Rigidbody interface {
	// Move displaces the body toward a position with physically correct
	// movement: the solver sweeps the body and it collides along the way.
	Move(position mgl64.Vec3)
	// Rotate turns the body with physically correct rotation.
	Rotate(rotation mgl64.Quat)
	// SetTransform teleports the body, bypassing collision response for the
	// displacement itself. Overlap at the destination resolves next tick.
	SetTransform(position mgl64.Vec3, rotation mgl64.Quat)
	Position() mgl64.Vec3
	Rotation() mgl64.Quat

	// SetMass sets the body mass. Ignored with a warning while mass is
	// derived automatically. Zero makes the body immovable but rotatable.
	SetMass(mass float64)
	Mass() float64
	// SetInertiaTensor sets the principal diagonal of the inertia tensor in
	// local mass space. A zero component locks rotation about that axis.
	// Ignored with a warning while tensors are derived automatically.
	SetInertiaTensor(tensor mgl64.Vec3)
	InertiaTensor() mgl64.Vec3
	// SetCenterOfMass sets the center-of-mass frame. Ignored with a warning
	// while tensors are derived automatically.
	SetCenterOfMass(position mgl64.Vec3, rotation mgl64.Quat)
	CenterOfMassPosition() mgl64.Vec3
	CenterOfMassRotation() mgl64.Quat

	// SetKinematic toggles kinematic mode. Kinematic bodies ignore forces
	// but can be moved directly and push dynamic bodies out of the way.
	SetKinematic(kinematic bool)
	IsKinematic() bool

	// IsSleeping reports the solver-determined sleep state.
	IsSleeping() bool
	// Sleep forces the body to sleep until something wakes it.
	Sleep()
	// WakeUp wakes the body.
	WakeUp()
	// SetSleepThreshold sets the activity level below which the body becomes
	// eligible to sleep.
	SetSleepThreshold(threshold float64)
	SleepThreshold() float64

	SetUseGravity(use bool)
	UseGravity() bool
	SetVelocity(velocity mgl64.Vec3)
	Velocity() mgl64.Vec3
	SetAngularVelocity(velocity mgl64.Vec3)
	AngularVelocity() mgl64.Vec3
	SetDrag(drag float64)
	Drag() float64
	SetAngularDrag(drag float64)
	AngularDrag() float64
	SetMaxAngularVelocity(max float64)
	MaxAngularVelocity() float64

	SetPositionSolverCount(count uint32)
	PositionSolverCount() uint32
	SetVelocitySolverCount(count uint32)
	VelocitySolverCount() uint32

	SetInterpolationMode(mode InterpolationMode)
	InterpolationMode() InterpolationMode
	SetFlags(flags Flags)
	Flags() Flags
	// SetPriority controls update ordering: higher priority bodies integrate
	// first within a tick.
	SetPriority(priority uint32)
	Priority() uint32

	// AddForce applies a force (or impulse, velocity, acceleration, per
	// mode) at the center of mass. Force and impulse modes wake a sleeping
	// body; the direct-set modes do not.
	AddForce(force mgl64.Vec3, mode ForceMode)
	// AddTorque applies a torque per mode.
	AddTorque(torque mgl64.Vec3, mode ForceMode)
	// AddForceAtPoint applies a force at a world position, producing both
	// linear momentum and a torque from the lever arm.
	AddForceAtPoint(force, position mgl64.Vec3, mode PointForceMode)
	// VelocityAtPoint returns the combined linear and angular velocity of a
	// world-space point on the body.
	VelocityAtPoint(point mgl64.Vec3) mgl64.Vec3

	// AddCollider attaches a collider. Attaching an already attached
	// collider is a no-op. Triggers mass redistribution when AutoTensors is
	// enabled.
	AddCollider(collider Collider)
	// RemoveCollider detaches a collider. Removing a collider that is not
	// attached is a no-op.
	RemoveCollider(collider Collider)
	// RemoveColliders detaches all colliders.
	RemoveColliders()
	// Colliders returns attached colliders in attachment order.
	Colliders() []Collider
	// UpdateMassDistribution recomputes mass, inertia and center of mass
	// from the attached colliders. Does nothing unless AutoTensors is
	// enabled; uses the externally set mass when AutoMass is disabled.
	UpdateMassDistribution()

	// OnCollisionBegin subscribes to the first tick of contact with another
	// collider. Listeners run in subscription order.
	OnCollisionBegin(handler CollisionHandler) (bus.Subscription, error)
	// OnCollisionStay subscribes to every subsequent tick a contact persists.
	OnCollisionStay(handler CollisionHandler) (bus.Subscription, error)
	// OnCollisionEnd subscribes to the first tick a contact is gone.
	OnCollisionEnd(handler CollisionHandler) (bus.Subscription, error)

	// SetTransformSink registers the scene-entity callback that receives the
	// render-facing transform once per frame.
	SetTransformSink(sink TransformSink)
	// FrameTransform returns the render-facing transform for the current
	// frame, where alpha is the fraction of a tick elapsed since the last
	// tick completed.
	FrameTransform(alpha float64) (mgl64.Vec3, mgl64.Quat)

	// PhysicsID is the world-assigned id used to correlate solver callbacks.
	PhysicsID() uint32
	// Entity returns the owning scene entity.
	Entity() uuid.UUID
	SetOwner(tag OwnerTag)
	Owner() OwnerTag
}

// BodyHandle identifies a body inside a backend.
type BodyHandle uint64

// BodyDesc carries everything a backend needs to create or reconfigure a
// body.
type BodyDesc struct {
	Position           mgl64.Vec3
	Rotation           mgl64.Quat
	Kinematic          bool
	UseGravity         bool
	CCD                bool
	LinearDrag         float64
	AngularDrag        float64
	SleepThreshold     float64
	MaxAngularVelocity float64
	PositionIterations uint32
	VelocityIterations uint32
	Mass               MassProperties
	Colliders          []Collider
}

// StepResult is the authoritative post-tick state a backend reports for one
// body.
type StepResult struct {
	Position        mgl64.Vec3
	Rotation        mgl64.Quat
	LinearVelocity  mgl64.Vec3
	AngularVelocity mgl64.Vec3
	Sleeping        bool
}

// ContactState classifies a contact report relative to the previous tick.
type ContactState uint8

const (
	ContactBegin ContactState = iota
	ContactStay
	ContactEnd
)

func (s ContactState) String() string {
	switch s {
	case ContactBegin:
		return "begin"
	case ContactStay:
		return "stay"
	case ContactEnd:
		return "end"
	default:
		return "unknown"
	}
}

// ContactPoint is one point of a contact manifold.
type ContactPoint struct {
	Position mgl64.Vec3
	Normal   mgl64.Vec3
	Impulse  float64
}

// ContactShape identifies one side of a contact pair.
type ContactShape struct {
	Body     BodyHandle
	Collider Collider
}

// ContactReport is what a backend emits once per colliding shape pair per
// tick.
type ContactReport struct {
	A      ContactShape
	B      ContactShape
	State  ContactState
	Points []ContactPoint
}

// Backend is the solver side of the subsystem. A backend owns the numeric
// integration and contact generation; the World drives it once per tick and
// forwards body mutations to it. Implementations are selected at world
// construction and must be safe for concurrent handle mutations outside
// Step.
type Backend interface {
	Name() string

	// CreateBody allocates a solver-side body. Returns an error when the
	// backend is out of capacity.
	CreateBody(desc BodyDesc) (BodyHandle, error)
	DestroyBody(handle BodyHandle) error
	// Configure pushes updated body settings (mode flags, drags, iteration
	// counts, collider membership).
	Configure(handle BodyHandle, desc BodyDesc) error
	// SetMassData pushes recomputed mass properties.
	SetMassData(handle BodyHandle, props MassProperties) error

	// SetTransform teleports the body.
	SetTransform(handle BodyHandle, position mgl64.Vec3, rotation mgl64.Quat) error
	// SweepTo schedules a physically correct move toward a position for the
	// next tick.
	SweepTo(handle BodyHandle, position mgl64.Vec3) error
	// SweepRotation schedules a physically correct rotation for the next
	// tick.
	SweepRotation(handle BodyHandle, rotation mgl64.Quat) error

	SetVelocity(handle BodyHandle, velocity mgl64.Vec3) error
	SetAngularVelocity(handle BodyHandle, velocity mgl64.Vec3) error
	ApplyForce(handle BodyHandle, force mgl64.Vec3, mode ForceMode) error
	ApplyTorque(handle BodyHandle, torque mgl64.Vec3, mode ForceMode) error
	ApplyForceAtPoint(handle BodyHandle, force, position mgl64.Vec3, mode PointForceMode) error
	PutToSleep(handle BodyHandle) error
	WakeUp(handle BodyHandle) error

	// Step advances the simulation by dt seconds. Bodies integrate in the
	// given order; the slice is owned by the caller.
	Step(dt float64, order []BodyHandle) error
	// StepResult returns the post-tick state for a body, valid until the
	// next Step.
	StepResult(handle BodyHandle) (StepResult, bool)
	// Contacts returns the contact reports produced by the last Step, one
	// per shape pair.
	Contacts() []ContactReport

	Close() error
}
