// Package native is the reference solver. It integrates semi-implicit
// Euler with a bounding-sphere narrowphase over a uniform grid broadphase.
// It exists so the world has a real, dependency-free simulation to drive;
// production deployments can swap in a heavier solver behind the same
// contract.
package native

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/kinetic/internal/core/observability/log"
	"github.com/zeusync/kinetic/internal/core/physics"
	"github.com/zeusync/kinetic/pkg/concurrent"
	"github.com/zeusync/kinetic/pkg/sequence"
)

var _ physics.Backend = (*Backend)(nil)

// sweepState is a queued physically correct move or rotation, consumed by
// the next tick.
type sweepState struct {
	target   mgl64.Vec3
	rotation mgl64.Quat
	hasMove  bool
	hasRot   bool
}

// bodyState is the solver-side mirror of one body.
type bodyState struct {
	handle physics.BodyHandle

	pos    mgl64.Vec3
	rot    mgl64.Quat
	linVel mgl64.Vec3
	angVel mgl64.Vec3

	mass    physics.MassProperties
	invMass float64

	kinematic  bool
	useGravity bool
	ccd        bool

	drag        float64
	angularDrag float64

	sleepThreshold float64
	maxAngVel      float64
	posIters       uint32
	velIters       uint32

	colliders []physics.Collider

	forceAccum  mgl64.Vec3
	accelAccum  mgl64.Vec3
	torqueAccum mgl64.Vec3

	sweep sweepState

	sleeping    bool
	forcedSleep bool
	stillFor    float64
}

func (s *bodyState) wake() {
	s.sleeping = false
	s.forcedSleep = false
	s.stillFor = 0
}

func (s *bodyState) clearAccumulators() {
	s.forceAccum = mgl64.Vec3{}
	s.accelAccum = mgl64.Vec3{}
	s.torqueAccum = mgl64.Vec3{}
}

// frame is the world-space principal inertia frame.
func (s *bodyState) frame() mgl64.Quat {
	return s.rot.Mul(s.mass.Rotation)
}

func (s *bodyState) comWorld() mgl64.Vec3 {
	return s.pos.Add(s.rot.Rotate(s.mass.Center))
}

// angularResponse maps a world-space angular impulse through the inverse
// inertia tensor. Locked axes (zero inertia component) absorb nothing.
func (s *bodyState) angularResponse(impulse mgl64.Vec3) mgl64.Vec3 {
	frame := s.frame()
	local := frame.Conjugate().Rotate(impulse)
	for i := 0; i < 3; i++ {
		if s.mass.Inertia[i] > 0 {
			local[i] /= s.mass.Inertia[i]
		} else {
			local[i] = 0
		}
	}
	return frame.Rotate(local)
}

// Backend is the built-in solver.
type Backend struct {
	cfg physics.Config
	log log.Log

	mu         sync.Mutex
	nextHandle uint64
	bodies     map[physics.BodyHandle]*bodyState
	grid       *spatialGrid
	tracker    *contactTracker
	reports    []physics.ContactReport
	results    map[physics.BodyHandle]physics.StepResult
	closed     bool
}

func New(cfg physics.Config, logger log.Log) *Backend {
	if logger == nil {
		logger = log.Nop()
	}
	return &Backend{
		cfg:     cfg,
		log:     logger,
		bodies:  make(map[physics.BodyHandle]*bodyState),
		grid:    newSpatialGrid(cfg.BroadphaseCellSize),
		tracker: newContactTracker(),
		results: make(map[physics.BodyHandle]physics.StepResult),
	}
}

func (b *Backend) Name() string { return "native" }

func (b *Backend) CreateBody(desc physics.BodyDesc) (physics.BodyHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, fmt.Errorf("backend closed")
	}
	if b.cfg.MaxBodies > 0 && len(b.bodies) >= b.cfg.MaxBodies {
		return 0, physics.ErrWorldFull
	}
	b.nextHandle++
	handle := physics.BodyHandle(b.nextHandle)
	st := &bodyState{handle: handle, rot: mgl64.QuatIdent()}
	applyDesc(st, desc)
	st.pos = desc.Position
	st.rot = normalized(desc.Rotation)
	b.bodies[handle] = st
	return handle, nil
}

func (b *Backend) DestroyBody(handle physics.BodyHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.bodies[handle]; !ok {
		return physics.ErrUnknownHandle
	}
	delete(b.bodies, handle)
	delete(b.results, handle)
	b.tracker.forget(handle)
	return nil
}

// applyDesc copies configuration into the solver state. Position and
// rotation are deliberately left alone: reconfiguring a live body must not
// teleport it.
func applyDesc(st *bodyState, desc physics.BodyDesc) {
	st.kinematic = desc.Kinematic
	st.useGravity = desc.UseGravity
	st.ccd = desc.CCD
	st.drag = desc.LinearDrag
	st.angularDrag = desc.AngularDrag
	st.sleepThreshold = desc.SleepThreshold
	st.maxAngVel = desc.MaxAngularVelocity
	st.posIters = desc.PositionIterations
	st.velIters = desc.VelocityIterations
	st.colliders = desc.Colliders
	setMass(st, desc.Mass)
}

func setMass(st *bodyState, props physics.MassProperties) {
	st.mass = props
	st.mass.Rotation = normalized(props.Rotation)
	if props.Mass > 0 && !st.kinematic {
		st.invMass = 1 / props.Mass
	} else {
		st.invMass = 0
	}
}

func (b *Backend) withBody(handle physics.BodyHandle, fn func(st *bodyState)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.bodies[handle]
	if !ok {
		return physics.ErrUnknownHandle
	}
	fn(st)
	return nil
}

func (b *Backend) Configure(handle physics.BodyHandle, desc physics.BodyDesc) error {
	return b.withBody(handle, func(st *bodyState) {
		applyDesc(st, desc)
	})
}

func (b *Backend) SetMassData(handle physics.BodyHandle, props physics.MassProperties) error {
	return b.withBody(handle, func(st *bodyState) {
		setMass(st, props)
	})
}

func (b *Backend) SetTransform(handle physics.BodyHandle, position mgl64.Vec3, rotation mgl64.Quat) error {
	return b.withBody(handle, func(st *bodyState) {
		st.pos = position
		st.rot = normalized(rotation)
		st.sweep = sweepState{}
	})
}

func (b *Backend) SweepTo(handle physics.BodyHandle, position mgl64.Vec3) error {
	return b.withBody(handle, func(st *bodyState) {
		st.sweep.target = position
		st.sweep.hasMove = true
		st.wake()
	})
}

func (b *Backend) SweepRotation(handle physics.BodyHandle, rotation mgl64.Quat) error {
	return b.withBody(handle, func(st *bodyState) {
		st.sweep.rotation = normalized(rotation)
		st.sweep.hasRot = true
		st.wake()
	})
}

func (b *Backend) SetVelocity(handle physics.BodyHandle, velocity mgl64.Vec3) error {
	return b.withBody(handle, func(st *bodyState) {
		st.linVel = velocity
	})
}

func (b *Backend) SetAngularVelocity(handle physics.BodyHandle, velocity mgl64.Vec3) error {
	return b.withBody(handle, func(st *bodyState) {
		st.angVel = velocity
	})
}

func (b *Backend) ApplyForce(handle physics.BodyHandle, force mgl64.Vec3, mode physics.ForceMode) error {
	return b.withBody(handle, func(st *bodyState) {
		switch mode {
		case physics.ForceModeForce:
			st.forceAccum = st.forceAccum.Add(force)
			st.wake()
		case physics.ForceModeImpulse:
			st.linVel = st.linVel.Add(force.Mul(st.invMass))
			st.wake()
		case physics.ForceModeVelocityChange:
			st.linVel = force
		case physics.ForceModeAcceleration:
			st.accelAccum = st.accelAccum.Add(force)
		}
	})
}

func (b *Backend) ApplyTorque(handle physics.BodyHandle, torque mgl64.Vec3, mode physics.ForceMode) error {
	return b.withBody(handle, func(st *bodyState) {
		switch mode {
		case physics.ForceModeForce:
			st.torqueAccum = st.torqueAccum.Add(torque)
			st.wake()
		case physics.ForceModeImpulse:
			if !st.kinematic {
				st.angVel = st.angVel.Add(st.angularResponse(torque))
			}
			st.wake()
		case physics.ForceModeVelocityChange:
			st.angVel = torque
		case physics.ForceModeAcceleration:
			// Mass-independent angular acceleration folds in at integration.
			st.torqueAccum = st.torqueAccum.Add(torque)
		}
	})
}

func (b *Backend) ApplyForceAtPoint(handle physics.BodyHandle, force, position mgl64.Vec3, mode physics.PointForceMode) error {
	return b.withBody(handle, func(st *bodyState) {
		torque := position.Sub(st.comWorld()).Cross(force)
		switch mode {
		case physics.PointForceModeForce:
			st.forceAccum = st.forceAccum.Add(force)
			st.torqueAccum = st.torqueAccum.Add(torque)
		case physics.PointForceModeImpulse:
			st.linVel = st.linVel.Add(force.Mul(st.invMass))
			if !st.kinematic {
				st.angVel = st.angVel.Add(st.angularResponse(torque))
			}
		}
		st.wake()
	})
}

func (b *Backend) PutToSleep(handle physics.BodyHandle) error {
	return b.withBody(handle, func(st *bodyState) {
		st.sleeping = true
		st.forcedSleep = true
		st.linVel = mgl64.Vec3{}
		st.angVel = mgl64.Vec3{}
		st.clearAccumulators()
	})
}

func (b *Backend) WakeUp(handle physics.BodyHandle) error {
	return b.withBody(handle, func(st *bodyState) {
		st.wake()
	})
}

// Step advances the simulation. Phases, all under the backend lock:
// sweeps, force integration (parallel across bodies), broadphase rebuild,
// narrowphase plus impulse resolution, sleep accounting, contact diffing.
func (b *Backend) Step(dt float64, order []physics.BodyHandle) error {
	if dt <= 0 {
		return fmt.Errorf("non-positive timestep %v", dt)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("backend closed")
	}

	stepped := make([]*bodyState, 0, len(order))
	for _, handle := range order {
		if st, ok := b.bodies[handle]; ok {
			stepped = append(stepped, st)
		}
	}

	b.rebuildGrid(stepped)
	b.resolveSweeps(stepped)
	b.integrate(stepped, dt)
	b.rebuildGrid(stepped)

	overlaps := b.narrowphase()
	b.resolveContacts(overlaps, stepped)
	b.accountSleep(stepped, dt)

	current := make(map[uint64]contact, len(overlaps))
	for _, c := range overlaps {
		current[c.pair.key()] = c
	}
	b.reports = b.tracker.advance(current, b.lookupShape)

	for _, st := range stepped {
		b.results[st.handle] = physics.StepResult{
			Position:        st.pos,
			Rotation:        st.rot,
			LinearVelocity:  st.linVel,
			AngularVelocity: st.angVel,
			Sleeping:        st.sleeping,
		}
	}
	return nil
}

func (b *Backend) lookupShape(side contactSide) (physics.ContactShape, bool) {
	st, ok := b.bodies[side.handle]
	if !ok || side.collider >= len(st.colliders) {
		return physics.ContactShape{}, false
	}
	return physics.ContactShape{Body: side.handle, Collider: st.colliders[side.collider]}, true
}

func (b *Backend) rebuildGrid(bodies []*bodyState) {
	b.grid.clear()
	for _, st := range bodies {
		for i, col := range st.colliders {
			offset, _ := col.LocalTransform()
			b.grid.insert(gridEntry{
				side:   contactSide{handle: st.handle, collider: i},
				center: st.pos.Add(st.rot.Rotate(offset)),
				radius: col.BoundingRadius(),
			})
		}
	}
}

// resolveSweeps walks each queued move in substeps and stops just short of
// the first overlapping sample, which is how a swept body comes to rest
// against an obstacle instead of tunneling through it.
func (b *Backend) resolveSweeps(bodies []*bodyState) {
	substeps := b.cfg.SweepSubsteps
	if substeps < 1 {
		substeps = 1
	}
	for _, st := range bodies {
		if st.sweep.hasRot {
			st.rot = normalized(st.sweep.rotation)
		}
		if st.sweep.hasMove {
			start := st.pos
			radius := boundRadius(st)
			for s := 1; s <= substeps; s++ {
				t := float64(s) / float64(substeps)
				candidate := lerp(start, st.sweep.target, t)
				if radius > 0 && b.grid.overlaps(st.handle, candidate, radius) {
					break
				}
				st.pos = candidate
			}
		}
		st.sweep = sweepState{}
	}
}

func boundRadius(st *bodyState) float64 {
	var radius float64
	for _, col := range st.colliders {
		offset, _ := col.LocalTransform()
		if r := offset.Len() + col.BoundingRadius(); r > radius {
			radius = r
		}
	}
	return radius
}

// integrate advances velocities and transforms. Bodies never share state
// during this phase, so it fans out across a bounded worker group.
func (b *Backend) integrate(bodies []*bodyState, dt float64) {
	workers := b.cfg.StepWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	gravity := b.cfg.GravityVec()

	_ = concurrent.ConcurrentLimit(sequence.From(bodies), workers, func(st *bodyState) error {
		if st.kinematic || st.sleeping {
			st.clearAccumulators()
			return nil
		}

		accel := st.accelAccum.Add(st.forceAccum.Mul(st.invMass))
		if st.useGravity && st.invMass > 0 {
			accel = accel.Add(gravity)
		}
		st.linVel = st.linVel.Add(accel.Mul(dt)).Mul(1 / (1 + st.drag*dt))

		st.angVel = st.angVel.Add(st.angularResponse(st.torqueAccum).Mul(dt))
		st.angVel = st.angVel.Mul(1 / (1 + st.angularDrag*dt))
		if limit := st.maxAngVel; limit > 0 && st.angVel.Len() > limit {
			st.angVel = st.angVel.Normalize().Mul(limit)
		}
		// Zero-inertia axes stay locked even for externally set velocity.
		st.angVel = clampLockedAxes(st)

		st.pos = st.pos.Add(st.linVel.Mul(dt))
		st.rot = integrateRotation(st.rot, st.angVel, dt)
		st.clearAccumulators()
		return nil
	})
}

func clampLockedAxes(st *bodyState) mgl64.Vec3 {
	frame := st.frame()
	local := frame.Conjugate().Rotate(st.angVel)
	for i := 0; i < 3; i++ {
		if st.mass.Inertia[i] == 0 {
			local[i] = 0
		}
	}
	return frame.Rotate(local)
}

// narrowphase tests broadphase candidates for bounding-sphere overlap and
// builds one single-point manifold per overlapping pair.
func (b *Backend) narrowphase() []contact {
	var contacts []contact
	for _, pair := range b.grid.candidatePairs() {
		ea, eb := b.grid.entries[pair[0]], b.grid.entries[pair[1]]
		delta := eb.center.Sub(ea.center)
		dist := delta.Len()
		if dist >= ea.radius+eb.radius {
			continue
		}
		normal := mgl64.Vec3{0, 1, 0}
		if dist > 1e-12 {
			normal = delta.Mul(1 / dist)
		}
		mid := ea.center.Add(normal.Mul(ea.radius - (ea.radius+eb.radius-dist)/2))
		contacts = append(contacts, contact{
			pair: orderPair(ea.side, eb.side),
			points: []physics.ContactPoint{{
				Position: mid,
				Normal:   normal,
			}},
		})
	}
	return contacts
}

// resolveContacts runs sequential impulses with positional correction. A
// kinematic or zero-mass side has zero inverse mass, so the dynamic side
// absorbs the full correction.
func (b *Backend) resolveContacts(contacts []contact, bodies []*bodyState) {
	if len(contacts) == 0 {
		return
	}
	velIters := int(b.cfg.VelocityIterations)
	posIters := int(b.cfg.PositionIterations)
	for _, st := range bodies {
		if int(st.velIters) > velIters {
			velIters = int(st.velIters)
		}
		if int(st.posIters) > posIters {
			posIters = int(st.posIters)
		}
	}

	type pairBodies struct {
		a, b *bodyState
		idx  int
	}
	resolved := make([]pairBodies, 0, len(contacts))
	for i := range contacts {
		sa, okA := b.bodies[contacts[i].pair.a.handle]
		sb, okB := b.bodies[contacts[i].pair.b.handle]
		if !okA || !okB {
			continue
		}
		resolved = append(resolved, pairBodies{a: sa, b: sb, idx: i})
	}

	for iter := 0; iter < velIters; iter++ {
		for _, pr := range resolved {
			point := &contacts[pr.idx].points[0]
			normal := point.Normal
			relVel := pr.b.linVel.Sub(pr.a.linVel).Dot(normal)
			if relVel >= 0 {
				continue
			}
			invSum := pr.a.invMass + pr.b.invMass
			if invSum == 0 {
				continue
			}
			j := -relVel / invSum
			pr.a.linVel = pr.a.linVel.Sub(normal.Mul(j * pr.a.invMass))
			pr.b.linVel = pr.b.linVel.Add(normal.Mul(j * pr.b.invMass))
			point.Impulse += j
			if !pr.a.forcedSleep {
				pr.a.sleeping = false
			}
			if !pr.b.forcedSleep {
				pr.b.sleeping = false
			}
		}
	}

	const slop = 1e-3
	const correction = 0.8
	for iter := 0; iter < posIters; iter++ {
		for _, pr := range resolved {
			ea := b.entryFor(contacts[pr.idx].pair.a)
			eb := b.entryFor(contacts[pr.idx].pair.b)
			if ea == nil || eb == nil {
				continue
			}
			offA, _ := pr.a.colliders[contacts[pr.idx].pair.a.collider].LocalTransform()
			offB, _ := pr.b.colliders[contacts[pr.idx].pair.b.collider].LocalTransform()
			centerA := pr.a.pos.Add(pr.a.rot.Rotate(offA))
			centerB := pr.b.pos.Add(pr.b.rot.Rotate(offB))
			delta := centerB.Sub(centerA)
			dist := delta.Len()
			depth := ea.radius + eb.radius - dist
			if depth <= slop {
				continue
			}
			invSum := pr.a.invMass + pr.b.invMass
			if invSum == 0 {
				continue
			}
			normal := contacts[pr.idx].points[0].Normal
			if dist > 1e-12 {
				normal = delta.Mul(1 / dist)
			}
			push := normal.Mul(correction * (depth - slop) / invSum)
			pr.a.pos = pr.a.pos.Sub(push.Mul(pr.a.invMass))
			pr.b.pos = pr.b.pos.Add(push.Mul(pr.b.invMass))
		}
	}
}

func (b *Backend) entryFor(side contactSide) *gridEntry {
	for i := range b.grid.entries {
		if b.grid.entries[i].side == side {
			return &b.grid.entries[i]
		}
	}
	return nil
}

// accountSleep puts a body to sleep after it stays below its activity
// threshold for the configured settle time.
func (b *Backend) accountSleep(bodies []*bodyState, dt float64) {
	for _, st := range bodies {
		if st.kinematic || st.sleeping {
			continue
		}
		activity := st.linVel.Dot(st.linVel) + st.angVel.Dot(st.angVel)
		threshold := st.sleepThreshold
		if threshold <= 0 {
			threshold = b.cfg.SleepThreshold
		}
		if activity < threshold*threshold {
			st.stillFor += dt
			if st.stillFor >= b.cfg.SleepTime {
				st.sleeping = true
				st.linVel = mgl64.Vec3{}
				st.angVel = mgl64.Vec3{}
			}
		} else {
			st.stillFor = 0
		}
	}
}

func (b *Backend) StepResult(handle physics.BodyHandle) (physics.StepResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.results[handle]
	return res, ok
}

func (b *Backend) Contacts() []physics.ContactReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reports
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.log.Debug("native backend closed", log.Int("bodies", len(b.bodies)))
	b.bodies = make(map[physics.BodyHandle]*bodyState)
	b.results = make(map[physics.BodyHandle]physics.StepResult)
	b.reports = nil
	return nil
}

func normalized(q mgl64.Quat) mgl64.Quat {
	if q.W == 0 && q.V.Len() == 0 {
		return mgl64.QuatIdent()
	}
	return q.Normalize()
}

func lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// integrateRotation advances an orientation by an angular velocity over dt.
func integrateRotation(rot mgl64.Quat, angVel mgl64.Vec3, dt float64) mgl64.Quat {
	speed := angVel.Len()
	if speed*dt < 1e-12 {
		return rot
	}
	axis := angVel.Mul(1 / speed)
	return mgl64.QuatRotate(speed*dt, axis).Mul(rot).Normalize()
}
