package physics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/zeusync/kinetic/internal/core/events/bus"
	"github.com/zeusync/kinetic/internal/core/observability/log"
	"github.com/zeusync/kinetic/pkg/concurrent"
	"github.com/zeusync/kinetic/pkg/sequence"
)

// World owns the live bodies, drives the backend at a fixed timestep and
// fans collision reports out through the dispatcher. One World maps to one
// simulation island; independent worlds never share state.
type World struct {
	cfg        Config
	log        log.Log
	backend    Backend
	events     bus.EventBus
	dispatcher *CollisionDispatcher

	mu       sync.RWMutex
	bodies   map[uint32]*Body
	byHandle map[BodyHandle]*Body
	roster   []*Body
	entities map[uuid.UUID][]*Body
	nextID   uint32

	stepping atomic.Bool
	cmdMu    sync.Mutex
	commands []func()

	massMu      sync.Mutex
	pendingMass map[*Body]struct{}

	tick atomic.Uint64

	frameMu    sync.Mutex
	lastStepAt time.Time
	stepDt     float64
}

// NewWorld builds a world over the given backend. The configuration is
// validated up front so a bad deployment fails at startup rather than three
// ticks in.
func NewWorld(cfg Config, backend Backend, logger log.Log) (*World, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world config: %w", err)
	}
	if logger == nil {
		logger = log.Nop()
	}
	events := bus.New()
	w := &World{
		cfg:         cfg,
		log:         logger.With(log.String("backend", backend.Name())),
		backend:     backend,
		events:      events,
		dispatcher:  NewCollisionDispatcher(events, logger),
		bodies:      make(map[uint32]*Body),
		byHandle:    make(map[BodyHandle]*Body),
		entities:    make(map[uuid.UUID][]*Body),
		pendingMass: make(map[*Body]struct{}),
		stepDt:      cfg.FixedTimestep,
	}
	w.log.Info("physics world ready",
		log.Float64("timestep", cfg.FixedTimestep),
		log.Int("max_bodies", cfg.MaxBodies))
	return w, nil
}

// exec runs a backend mutation now, or queues it until the current tick
// finishes when the stepping pass is in progress.
func (w *World) exec(fn func()) {
	if w.stepping.Load() {
		w.cmdMu.Lock()
		w.commands = append(w.commands, fn)
		w.cmdMu.Unlock()
		return
	}
	fn()
}

func (w *World) flushCommands() {
	w.cmdMu.Lock()
	queued := w.commands
	w.commands = nil
	w.cmdMu.Unlock()
	for _, fn := range queued {
		fn()
	}
}

// scheduleMassUpdate coalesces mass redistribution requests: a body whose
// collider set changes several times between ticks recomputes once.
func (w *World) scheduleMassUpdate(b *Body) {
	if w.stepping.Load() {
		w.massMu.Lock()
		w.pendingMass[b] = struct{}{}
		w.massMu.Unlock()
		return
	}
	b.UpdateMassDistribution()
}

func (w *World) flushMassUpdates() {
	w.massMu.Lock()
	pending := w.pendingMass
	w.pendingMass = make(map[*Body]struct{})
	w.massMu.Unlock()
	for b := range pending {
		b.UpdateMassDistribution()
	}
}

// CreateBody allocates a body for the given scene entity at a starting
// transform. New bodies default to dynamic with automatic mass and tensor
// derivation; attach colliders to give them shape and mass.
func (w *World) CreateBody(entity uuid.UUID, position mgl64.Vec3, rotation mgl64.Quat) (Rigidbody, error) {
	rotation = normalizedOrIdent(rotation)

	w.mu.Lock()
	if w.cfg.MaxBodies > 0 && len(w.bodies) >= w.cfg.MaxBodies {
		w.mu.Unlock()
		return nil, ErrWorldFull
	}
	w.nextID++
	id := w.nextID
	w.mu.Unlock()

	b := &Body{
		world:          w,
		id:             id,
		entity:         entity,
		log:            w.log,
		pos:            position,
		rot:            rotation,
		comRot:         mgl64.QuatIdent(),
		flags:          Flags{AutoTensors: true, AutoMass: true},
		useGravity:     true,
		sleepThreshold: w.cfg.SleepThreshold,
		maxAngVel:      w.cfg.MaxAngularVelocity,
		posIters:       w.cfg.PositionIterations,
		velIters:       w.cfg.VelocityIterations,
	}
	b.bridge.reset(position, rotation)

	handle, err := w.backend.CreateBody(b.desc())
	if err != nil {
		return nil, fmt.Errorf("create body: %w", err)
	}
	b.handle = handle

	w.mu.Lock()
	w.bodies[id] = b
	w.byHandle[handle] = b
	w.roster = append(w.roster, b)
	w.entities[entity] = append(w.entities[entity], b)
	w.mu.Unlock()

	w.dispatcher.Track(id)
	w.log.Debug("body created", log.Uint32("body", id), log.String("entity", entity.String()))
	return b, nil
}

// DestroyBody releases a body. The body object stays valid but every further
// operation on it becomes a no-op.
func (w *World) DestroyBody(body Rigidbody) error {
	b, ok := body.(*Body)
	if !ok || b == nil {
		return ErrUnknownHandle
	}
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	w.mu.Lock()
	delete(w.bodies, b.id)
	delete(w.byHandle, b.handle)
	for i, cur := range w.roster {
		if cur == b {
			w.roster = append(w.roster[:i], w.roster[i+1:]...)
			break
		}
	}
	siblings := w.entities[b.entity]
	for i, cur := range siblings {
		if cur == b {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(siblings) == 0 {
		delete(w.entities, b.entity)
	} else {
		w.entities[b.entity] = siblings
	}
	w.mu.Unlock()

	b.markReleased()
	w.massMu.Lock()
	delete(w.pendingMass, b)
	w.massMu.Unlock()

	handle := b.handle
	w.exec(func() {
		if err := w.backend.DestroyBody(handle); err != nil {
			w.log.Warn("backend rejected destroy", log.Uint32("body", b.id), log.Error(err))
		}
	})
	w.dispatcher.Forget(b.id)
	w.log.Debug("body destroyed", log.Uint32("body", b.id))
	return nil
}

// Body looks a body up by its physics id.
func (w *World) Body(id uint32) (Rigidbody, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bodies[id]
	return b, ok
}

// EntityAlive reports whether a scene entity still has at least one live
// body. Frame notifications consult this instead of holding raw references.
func (w *World) EntityAlive(entity uuid.UUID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities[entity]) > 0
}

// ReleaseEntity destroys every body bound to a scene entity.
func (w *World) ReleaseEntity(entity uuid.UUID) {
	w.mu.RLock()
	bodies := make([]*Body, len(w.entities[entity]))
	copy(bodies, w.entities[entity])
	w.mu.RUnlock()
	for _, b := range bodies {
		_ = w.DestroyBody(b)
	}
}

// BodyCount returns the number of live bodies.
func (w *World) BodyCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bodies)
}

// Tick returns the number of completed simulation ticks.
func (w *World) Tick() uint64 {
	return w.tick.Load()
}

// Events exposes the world's event bus for subsystems that want raw access
// beyond the per-body collision callbacks.
func (w *World) Events() bus.EventBus {
	return w.events
}

// Step advances the simulation by dt seconds. A non-positive dt falls back
// to the configured fixed timestep. Body mutations issued by other
// goroutines while Step runs are queued and applied before the next tick.
func (w *World) Step(dt float64) error {
	if dt <= 0 {
		dt = w.cfg.FixedTimestep
	}

	// Mutations queued since the last tick apply before this one.
	w.flushCommands()
	w.flushMassUpdates()

	order, bodies := w.stepOrder()

	w.stepping.Store(true)
	err := w.backend.Step(dt, order)
	if err != nil {
		w.stepping.Store(false)
		w.flushCommands()
		return fmt.Errorf("backend step: %w", err)
	}

	for _, b := range bodies {
		if res, ok := w.backend.StepResult(b.handle); ok {
			b.commitStep(res, dt)
		}
	}

	tick := w.tick.Add(1)
	for _, report := range w.backend.Contacts() {
		w.enqueueContact(report, tick)
	}
	w.stepping.Store(false)

	// Listener callbacks run here, outside the stepping pass, so a handler
	// can mutate bodies without re-entering the solver.
	w.dispatcher.Flush(tick)
	w.flushCommands()
	w.flushMassUpdates()

	w.frameMu.Lock()
	w.lastStepAt = time.Now()
	w.stepDt = dt
	w.frameMu.Unlock()
	return nil
}

// stepOrder snapshots the live bodies sorted by descending priority.
// Equal-priority bodies keep their creation order, so a tick over an
// unchanged world integrates in a deterministic sequence.
func (w *World) stepOrder() ([]BodyHandle, []*Body) {
	w.mu.RLock()
	queue := newBodyQueue(w.roster)
	w.mu.RUnlock()

	order := make([]BodyHandle, 0, queue.Len())
	bodies := make([]*Body, 0, queue.Len())
	for {
		b, ok := queue.Dequeue()
		if !ok {
			break
		}
		order = append(order, b.handle)
		bodies = append(bodies, b)
	}
	return order, bodies
}

// enqueueContact turns one backend contact report into a queued event for
// each involved body. Contact normals point from A toward B; the mirrored
// event flips them so every listener sees normals pointing away from its
// own body.
func (w *World) enqueueContact(report ContactReport, tick uint64) {
	w.mu.RLock()
	a, okA := w.byHandle[report.A.Body]
	b, okB := w.byHandle[report.B.Body]
	w.mu.RUnlock()
	if !okA || !okB {
		// One side was destroyed mid-tick; the pair ends silently.
		return
	}

	w.dispatcher.Enqueue(CollisionEvent{
		State:         report.State,
		Body:          a.id,
		Other:         b.id,
		Collider:      report.A.Collider,
		OtherCollider: report.B.Collider,
		Points:        report.Points,
		Tick:          tick,
	})

	mirrored := make([]ContactPoint, len(report.Points))
	for i, p := range report.Points {
		mirrored[i] = ContactPoint{Position: p.Position, Normal: p.Normal.Mul(-1), Impulse: p.Impulse}
	}
	w.dispatcher.Enqueue(CollisionEvent{
		State:         report.State,
		Body:          b.id,
		Other:         a.id,
		Collider:      report.B.Collider,
		OtherCollider: report.A.Collider,
		Points:        mirrored,
		Tick:          tick,
	})
}

// NotifyFrame pushes the render-facing transform of every live body to its
// transform sink. Call once per rendered frame; alpha is derived from the
// time elapsed since the last completed tick.
func (w *World) NotifyFrame(now time.Time) {
	alpha := w.frameAlpha(now)
	w.mu.RLock()
	bodies := make([]*Body, len(w.roster))
	copy(bodies, w.roster)
	w.mu.RUnlock()
	for _, b := range bodies {
		b.notifyFrame(alpha)
	}
}

func (w *World) frameAlpha(now time.Time) float64 {
	w.frameMu.Lock()
	last, dt := w.lastStepAt, w.stepDt
	w.frameMu.Unlock()
	if last.IsZero() || dt <= 0 {
		return 1
	}
	alpha := now.Sub(last).Seconds() / dt
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}

// BodySnapshot is a read-only view of one body for diagnostics and the
// state stream.
type BodySnapshot struct {
	ID        uint32     `json:"id"`
	Entity    string     `json:"entity"`
	Position  [3]float64 `json:"position"`
	Rotation  [4]float64 `json:"rotation"`
	Velocity  [3]float64 `json:"velocity"`
	Sleeping  bool       `json:"sleeping"`
	Kinematic bool       `json:"kinematic"`
}

// Snapshot captures the committed state of every live body.
func (w *World) Snapshot() []BodySnapshot {
	w.mu.RLock()
	bodies := make([]*Body, len(w.roster))
	copy(bodies, w.roster)
	w.mu.RUnlock()

	out := make([]BodySnapshot, 0, len(bodies))
	for _, b := range bodies {
		b.mu.RLock()
		out = append(out, BodySnapshot{
			ID:        b.id,
			Entity:    b.entity.String(),
			Position:  [3]float64{b.pos.X(), b.pos.Y(), b.pos.Z()},
			Rotation:  [4]float64{b.rot.W, b.rot.V.X(), b.rot.V.Y(), b.rot.V.Z()},
			Velocity:  [3]float64{b.linVel.X(), b.linVel.Y(), b.linVel.Z()},
			Sleeping:  b.sleeping,
			Kinematic: b.kinematic,
		})
		b.mu.RUnlock()
	}
	return out
}

// Close destroys all bodies and shuts the backend down.
func (w *World) Close() error {
	w.mu.RLock()
	bodies := make([]*Body, len(w.roster))
	copy(bodies, w.roster)
	w.mu.RUnlock()
	destroyErr := concurrent.Concurrent(sequence.From(bodies), func(b *Body) error {
		return w.DestroyBody(b)
	})
	if err := w.backend.Close(); err != nil {
		return err
	}
	return destroyErr
}

// newBodyQueue orders bodies for integration. Priority wins; creation order
// breaks ties.
func newBodyQueue(roster []*Body) *sequence.PriorityQueue[*Body] {
	q := sequence.NewPriorityQueue[*Body]()
	for _, b := range roster {
		q.Enqueue(b, int(b.Priority()))
	}
	return q
}
