package physics

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/zeusync/kinetic/internal/core/events/bus"
	"github.com/zeusync/kinetic/internal/core/observability/log"
)

var _ Rigidbody = (*Body)(nil)

// Body is the world-side implementation of Rigidbody. It keeps the last
// committed simulation state, forwards mutations to the backend (deferring
// them while a tick is in progress) and owns the collider membership the
// mass aggregation runs on.
//
// The body is the lock granularity: concurrent mutations of the same body
// serialize on its mutex, different bodies never contend.
type Body struct {
	world  *World
	handle BodyHandle
	id     uint32
	entity uuid.UUID
	log    log.Log

	mu       sync.RWMutex
	released bool

	pos    mgl64.Vec3
	rot    mgl64.Quat
	linVel mgl64.Vec3
	angVel mgl64.Vec3

	mass    float64
	inertia mgl64.Vec3
	comPos  mgl64.Vec3
	comRot  mgl64.Quat

	drag           float64
	angularDrag    float64
	flags          Flags
	kinematic      bool
	useGravity     bool
	sleeping       bool
	sleepThreshold float64
	maxAngVel      float64
	posIters       uint32
	velIters       uint32
	interp         InterpolationMode
	priority       uint32
	owner          OwnerTag

	colliders []Collider
	sink      TransformSink
	bridge    transformSync
}

// alive reports whether the body still has a backing simulation object.
// Operations on released bodies indicate a lifecycle bug in the caller and
// are dropped with a debug log rather than crashing a live tick.
func (b *Body) alive(op string) bool {
	b.mu.RLock()
	released := b.released
	b.mu.RUnlock()
	if released {
		b.log.Debug("operation on released body", log.String("op", op), log.Uint32("body", b.id))
		return false
	}
	return true
}

// forward runs a backend mutation, deferring it while a tick is in progress.
// Backend failures are logged and swallowed: a body operating inside a
// real-time tick never aborts mid-frame.
func (b *Body) forward(op string, fn func(backend Backend) error) {
	b.world.exec(func() {
		if err := fn(b.world.backend); err != nil {
			b.log.Warn("backend rejected operation",
				log.String("op", op), log.Uint32("body", b.id), log.Error(err))
		}
	})
}

// desc snapshots the body configuration for the backend.
func (b *Body) desc() BodyDesc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.descLocked()
}

func (b *Body) descLocked() BodyDesc {
	colliders := make([]Collider, len(b.colliders))
	copy(colliders, b.colliders)
	return BodyDesc{
		Position:           b.pos,
		Rotation:           b.rot,
		Kinematic:          b.kinematic,
		UseGravity:         b.useGravity,
		CCD:                b.flags.CCD,
		LinearDrag:         b.drag,
		AngularDrag:        b.angularDrag,
		SleepThreshold:     b.sleepThreshold,
		MaxAngularVelocity: b.maxAngVel,
		PositionIterations: b.posIters,
		VelocityIterations: b.velIters,
		Mass:               b.massPropsLocked(),
		Colliders:          colliders,
	}
}

func (b *Body) massPropsLocked() MassProperties {
	return MassProperties{Mass: b.mass, Center: b.comPos, Rotation: b.comRot, Inertia: b.inertia}
}

// pushConfig re-sends the full body configuration to the backend.
func (b *Body) pushConfig(op string) {
	b.forward(op, func(backend Backend) error {
		return backend.Configure(b.handle, b.desc())
	})
}

// commitStep applies the authoritative post-tick state. Called by the world
// inside the stepping pass.
func (b *Body) commitStep(res StepResult, dt float64) {
	b.mu.Lock()
	b.pos = res.Position
	b.rot = res.Rotation
	b.linVel = res.LinearVelocity
	b.angVel = res.AngularVelocity
	b.sleeping = res.Sleeping
	b.bridge.commit(res, dt)
	b.mu.Unlock()
}

func (b *Body) Move(position mgl64.Vec3) {
	if !b.alive("Move") {
		return
	}
	b.forward("Move", func(backend Backend) error {
		return backend.SweepTo(b.handle, position)
	})
}

func (b *Body) Rotate(rotation mgl64.Quat) {
	if !b.alive("Rotate") {
		return
	}
	b.forward("Rotate", func(backend Backend) error {
		return backend.SweepRotation(b.handle, rotation.Normalize())
	})
}

func (b *Body) SetTransform(position mgl64.Vec3, rotation mgl64.Quat) {
	if !b.alive("SetTransform") {
		return
	}
	rotation = rotation.Normalize()
	b.mu.Lock()
	b.pos = position
	b.rot = rotation
	// A teleport is a discontinuity; interpolating across it would drag the
	// rendered transform through intervening space.
	b.bridge.reset(position, rotation)
	b.mu.Unlock()
	b.forward("SetTransform", func(backend Backend) error {
		return backend.SetTransform(b.handle, position, rotation)
	})
}

func (b *Body) Position() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pos
}

func (b *Body) Rotation() mgl64.Quat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rot
}

func (b *Body) SetMass(mass float64) {
	if !b.alive("SetMass") {
		return
	}
	b.mu.Lock()
	if b.flags.AutoTensors && b.flags.AutoMass {
		b.mu.Unlock()
		b.log.Warn("ignoring SetMass: mass is derived from colliders", log.Uint32("body", b.id))
		return
	}
	if mass < 0 {
		b.log.Warn("clamping negative mass to zero", log.Uint32("body", b.id), log.Float64("mass", mass))
		mass = 0
	}
	b.mass = mass
	props := b.massPropsLocked()
	b.mu.Unlock()
	b.forward("SetMass", func(backend Backend) error {
		return backend.SetMassData(b.handle, props)
	})
}

func (b *Body) Mass() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mass
}

func (b *Body) SetInertiaTensor(tensor mgl64.Vec3) {
	if !b.alive("SetInertiaTensor") {
		return
	}
	b.mu.Lock()
	if b.flags.AutoTensors {
		b.mu.Unlock()
		b.log.Warn("ignoring SetInertiaTensor: tensors are derived from colliders", log.Uint32("body", b.id))
		return
	}
	b.inertia = tensor
	props := b.massPropsLocked()
	b.mu.Unlock()
	b.forward("SetInertiaTensor", func(backend Backend) error {
		return backend.SetMassData(b.handle, props)
	})
}

func (b *Body) InertiaTensor() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inertia
}

func (b *Body) SetCenterOfMass(position mgl64.Vec3, rotation mgl64.Quat) {
	if !b.alive("SetCenterOfMass") {
		return
	}
	b.mu.Lock()
	if b.flags.AutoTensors {
		b.mu.Unlock()
		b.log.Warn("ignoring SetCenterOfMass: tensors are derived from colliders", log.Uint32("body", b.id))
		return
	}
	b.comPos = position
	b.comRot = rotation.Normalize()
	props := b.massPropsLocked()
	b.mu.Unlock()
	b.forward("SetCenterOfMass", func(backend Backend) error {
		return backend.SetMassData(b.handle, props)
	})
}

func (b *Body) CenterOfMassPosition() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.comPos
}

func (b *Body) CenterOfMassRotation() mgl64.Quat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.comRot
}

// CenterOfMassWorldPosition returns the center of mass in world space.
func (b *Body) CenterOfMassWorldPosition() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.comWorldLocked()
}

func (b *Body) comWorldLocked() mgl64.Vec3 {
	return b.pos.Add(b.rot.Rotate(b.comPos))
}

func (b *Body) SetKinematic(kinematic bool) {
	if !b.alive("SetKinematic") {
		return
	}
	b.mu.Lock()
	b.kinematic = kinematic
	b.mu.Unlock()
	b.pushConfig("SetKinematic")
}

func (b *Body) IsKinematic() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.kinematic
}

func (b *Body) IsSleeping() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sleeping
}

func (b *Body) Sleep() {
	if !b.alive("Sleep") {
		return
	}
	b.mu.Lock()
	b.sleeping = true
	b.linVel = mgl64.Vec3{}
	b.angVel = mgl64.Vec3{}
	b.mu.Unlock()
	b.forward("Sleep", func(backend Backend) error {
		return backend.PutToSleep(b.handle)
	})
}

func (b *Body) WakeUp() {
	if !b.alive("WakeUp") {
		return
	}
	b.mu.Lock()
	b.sleeping = false
	b.mu.Unlock()
	b.forward("WakeUp", func(backend Backend) error {
		return backend.WakeUp(b.handle)
	})
}

func (b *Body) SetSleepThreshold(threshold float64) {
	if !b.alive("SetSleepThreshold") {
		return
	}
	b.mu.Lock()
	b.sleepThreshold = threshold
	b.mu.Unlock()
	b.pushConfig("SetSleepThreshold")
}

func (b *Body) SleepThreshold() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sleepThreshold
}

func (b *Body) SetUseGravity(use bool) {
	if !b.alive("SetUseGravity") {
		return
	}
	b.mu.Lock()
	b.useGravity = use
	b.mu.Unlock()
	b.pushConfig("SetUseGravity")
}

func (b *Body) UseGravity() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.useGravity
}

// SetVelocity sets the linear velocity directly. A direct set does not wake
// a sleeping body.
func (b *Body) SetVelocity(velocity mgl64.Vec3) {
	if !b.alive("SetVelocity") {
		return
	}
	b.mu.Lock()
	b.linVel = velocity
	b.mu.Unlock()
	b.forward("SetVelocity", func(backend Backend) error {
		return backend.SetVelocity(b.handle, velocity)
	})
}

func (b *Body) Velocity() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.linVel
}

func (b *Body) SetAngularVelocity(velocity mgl64.Vec3) {
	if !b.alive("SetAngularVelocity") {
		return
	}
	b.mu.Lock()
	b.angVel = velocity
	b.mu.Unlock()
	b.forward("SetAngularVelocity", func(backend Backend) error {
		return backend.SetAngularVelocity(b.handle, velocity)
	})
}

func (b *Body) AngularVelocity() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.angVel
}

func (b *Body) SetDrag(drag float64) {
	if !b.alive("SetDrag") {
		return
	}
	b.mu.Lock()
	b.drag = drag
	b.mu.Unlock()
	b.pushConfig("SetDrag")
}

func (b *Body) Drag() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.drag
}

func (b *Body) SetAngularDrag(drag float64) {
	if !b.alive("SetAngularDrag") {
		return
	}
	b.mu.Lock()
	b.angularDrag = drag
	b.mu.Unlock()
	b.pushConfig("SetAngularDrag")
}

func (b *Body) AngularDrag() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.angularDrag
}

func (b *Body) SetMaxAngularVelocity(max float64) {
	if !b.alive("SetMaxAngularVelocity") {
		return
	}
	b.mu.Lock()
	b.maxAngVel = max
	b.mu.Unlock()
	b.pushConfig("SetMaxAngularVelocity")
}

func (b *Body) MaxAngularVelocity() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxAngVel
}

func (b *Body) SetPositionSolverCount(count uint32) {
	if !b.alive("SetPositionSolverCount") {
		return
	}
	b.mu.Lock()
	b.posIters = count
	b.mu.Unlock()
	b.pushConfig("SetPositionSolverCount")
}

func (b *Body) PositionSolverCount() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.posIters
}

func (b *Body) SetVelocitySolverCount(count uint32) {
	if !b.alive("SetVelocitySolverCount") {
		return
	}
	b.mu.Lock()
	b.velIters = count
	b.mu.Unlock()
	b.pushConfig("SetVelocitySolverCount")
}

func (b *Body) VelocitySolverCount() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.velIters
}

func (b *Body) SetInterpolationMode(mode InterpolationMode) {
	b.mu.Lock()
	b.interp = mode
	b.mu.Unlock()
}

func (b *Body) InterpolationMode() InterpolationMode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.interp
}

func (b *Body) SetFlags(flags Flags) {
	if !b.alive("SetFlags") {
		return
	}
	b.mu.Lock()
	recompute := flags.AutoTensors && !b.flags.AutoTensors
	b.flags = flags
	b.mu.Unlock()
	b.pushConfig("SetFlags")
	if recompute {
		b.world.scheduleMassUpdate(b)
	}
}

func (b *Body) Flags() Flags {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.flags
}

func (b *Body) SetPriority(priority uint32) {
	b.mu.Lock()
	b.priority = priority
	b.mu.Unlock()
}

func (b *Body) Priority() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.priority
}

func (b *Body) AddForce(force mgl64.Vec3, mode ForceMode) {
	if !b.alive("AddForce") {
		return
	}
	b.mu.Lock()
	switch mode {
	case ForceModeVelocityChange:
		// Direct set: works regardless of mass, does not wake.
		b.linVel = force
	case ForceModeImpulse:
		if b.mass > 0 && !b.kinematic {
			b.linVel = b.linVel.Add(force.Mul(1 / b.mass))
		}
		b.sleeping = false
	case ForceModeForce:
		b.sleeping = false
	}
	b.mu.Unlock()
	b.forward("AddForce", func(backend Backend) error {
		return backend.ApplyForce(b.handle, force, mode)
	})
}

func (b *Body) AddTorque(torque mgl64.Vec3, mode ForceMode) {
	if !b.alive("AddTorque") {
		return
	}
	b.mu.Lock()
	switch mode {
	case ForceModeVelocityChange:
		b.angVel = torque
	case ForceModeImpulse:
		if !b.kinematic {
			b.angVel = b.angVel.Add(b.angularResponseLocked(torque))
		}
		b.sleeping = false
	case ForceModeForce:
		b.sleeping = false
	}
	b.mu.Unlock()
	b.forward("AddTorque", func(backend Backend) error {
		return backend.ApplyTorque(b.handle, torque, mode)
	})
}

// angularResponseLocked maps a world-space angular impulse through the
// inverse inertia tensor in the principal frame. A zero inertia component
// locks the corresponding axis.
func (b *Body) angularResponseLocked(impulse mgl64.Vec3) mgl64.Vec3 {
	frame := b.rot.Mul(b.comRot)
	local := frame.Conjugate().Rotate(impulse)
	for i := 0; i < 3; i++ {
		if b.inertia[i] > 0 {
			local[i] /= b.inertia[i]
		} else {
			local[i] = 0
		}
	}
	return frame.Rotate(local)
}

func (b *Body) AddForceAtPoint(force, position mgl64.Vec3, mode PointForceMode) {
	if !b.alive("AddForceAtPoint") {
		return
	}
	b.mu.Lock()
	lever := position.Sub(b.comWorldLocked())
	torque := lever.Cross(force)
	if mode == PointForceModeImpulse && !b.kinematic {
		if b.mass > 0 {
			b.linVel = b.linVel.Add(force.Mul(1 / b.mass))
		}
		b.angVel = b.angVel.Add(b.angularResponseLocked(torque))
	}
	b.sleeping = false
	b.mu.Unlock()
	b.forward("AddForceAtPoint", func(backend Backend) error {
		return backend.ApplyForceAtPoint(b.handle, force, position, mode)
	})
}

func (b *Body) VelocityAtPoint(point mgl64.Vec3) mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.linVel.Add(b.angVel.Cross(point.Sub(b.comWorldLocked())))
}

func (b *Body) AddCollider(collider Collider) {
	if collider == nil || !b.alive("AddCollider") {
		return
	}
	b.mu.Lock()
	for _, cur := range b.colliders {
		if cur == collider {
			b.mu.Unlock()
			return
		}
	}
	b.colliders = append(b.colliders, collider)
	auto := b.flags.AutoTensors
	b.mu.Unlock()
	b.pushConfig("AddCollider")
	if auto {
		b.world.scheduleMassUpdate(b)
	}
}

func (b *Body) RemoveCollider(collider Collider) {
	if collider == nil || !b.alive("RemoveCollider") {
		return
	}
	b.mu.Lock()
	found := false
	for i, cur := range b.colliders {
		if cur == collider {
			b.colliders = append(b.colliders[:i], b.colliders[i+1:]...)
			found = true
			break
		}
	}
	auto := b.flags.AutoTensors
	b.mu.Unlock()
	if !found {
		// Removing a collider that is not attached is not an error.
		return
	}
	b.pushConfig("RemoveCollider")
	if auto {
		b.world.scheduleMassUpdate(b)
	}
}

func (b *Body) RemoveColliders() {
	if !b.alive("RemoveColliders") {
		return
	}
	b.mu.Lock()
	had := len(b.colliders) > 0
	b.colliders = nil
	auto := b.flags.AutoTensors
	b.mu.Unlock()
	if !had {
		return
	}
	b.pushConfig("RemoveColliders")
	if auto {
		b.world.scheduleMassUpdate(b)
	}
}

func (b *Body) Colliders() []Collider {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Collider, len(b.colliders))
	copy(out, b.colliders)
	return out
}

// UpdateMassDistribution recomputes mass, inertia and center of mass from
// the attached colliders. Kinematic bodies recompute too: the values stay
// available for inspection and take effect if the body later becomes
// dynamic, while the solver ignores them for as long as the body stays
// kinematic.
func (b *Body) UpdateMassDistribution() {
	if !b.alive("UpdateMassDistribution") {
		return
	}
	b.mu.Lock()
	if !b.flags.AutoTensors {
		b.mu.Unlock()
		return
	}
	colliders := make([]Collider, len(b.colliders))
	copy(colliders, b.colliders)
	props := AggregateMass(colliders, b.mass, b.flags.AutoMass)
	if b.flags.AutoMass {
		b.mass = props.Mass
		if props.Mass == 0 && !b.kinematic {
			b.log.Warn("zero aggregate mass, body is immovable until a collider with mass is attached",
				log.Uint32("body", b.id))
		}
	} else {
		props.Mass = b.mass
	}
	b.inertia = props.Inertia
	b.comPos = props.Center
	b.comRot = props.Rotation
	b.mu.Unlock()
	b.forward("UpdateMassDistribution", func(backend Backend) error {
		return backend.SetMassData(b.handle, props)
	})
}

func (b *Body) OnCollisionBegin(handler CollisionHandler) (bus.Subscription, error) {
	if !b.alive("OnCollisionBegin") {
		return nil, ErrBodyReleased
	}
	return b.world.dispatcher.Subscribe(b.id, ContactBegin, handler)
}

func (b *Body) OnCollisionStay(handler CollisionHandler) (bus.Subscription, error) {
	if !b.alive("OnCollisionStay") {
		return nil, ErrBodyReleased
	}
	return b.world.dispatcher.Subscribe(b.id, ContactStay, handler)
}

func (b *Body) OnCollisionEnd(handler CollisionHandler) (bus.Subscription, error) {
	if !b.alive("OnCollisionEnd") {
		return nil, ErrBodyReleased
	}
	return b.world.dispatcher.Subscribe(b.id, ContactEnd, handler)
}

func (b *Body) SetTransformSink(sink TransformSink) {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
}

func (b *Body) FrameTransform(alpha float64) (mgl64.Vec3, mgl64.Quat) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bridge.frame(b.interp, alpha)
}

// notifyFrame pushes the render-facing transform to the sink, if set.
func (b *Body) notifyFrame(alpha float64) {
	b.mu.RLock()
	sink := b.sink
	pos, rot := b.bridge.frame(b.interp, alpha)
	b.mu.RUnlock()
	if sink != nil {
		sink(pos, rot)
	}
}

func (b *Body) PhysicsID() uint32 {
	return b.id
}

func (b *Body) Entity() uuid.UUID {
	return b.entity
}

func (b *Body) SetOwner(tag OwnerTag) {
	b.mu.Lock()
	b.owner = tag
	b.mu.Unlock()
}

func (b *Body) Owner() OwnerTag {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.owner
}

// markReleased flags the body as destroyed. Further operations no-op.
func (b *Body) markReleased() {
	b.mu.Lock()
	b.released = true
	b.colliders = nil
	b.mu.Unlock()
}
