package physics

import (
	"strconv"
	"sync"

	"github.com/zeusync/kinetic/internal/core/events/bus"
	"github.com/zeusync/kinetic/internal/core/observability/log"
	"github.com/zeusync/kinetic/pkg/generic"
)

// Event types published per body topic.
const (
	EventCollisionBegin = "collision.begin"
	EventCollisionStay  = "collision.stay"
	EventCollisionEnd   = "collision.end"
)

// hotEventRecords is the number of event records seeded into the pool up
// front.
const hotEventRecords = 64

// CollisionEvent is the per-body view of a contact report. Each colliding
// pair produces one event for each involved body per tick.
//
// Events are pooled: the value, including Points, is only valid for the
// duration of the handler call.
type CollisionEvent struct {
	State ContactState
	// Body is the physics id of the body whose listeners receive the event.
	Body uint32
	// Other is the physics id of the opposing body.
	Other uint32
	// Collider is the shape on the receiving body; OtherCollider the
	// opposing one.
	Collider      Collider
	OtherCollider Collider
	Points        []ContactPoint
	Tick          uint64
}

// CollisionDispatcher queues per-body collision events during a tick and
// drains them through the event bus when the tick completes. Listener
// callbacks never run inside the solver: delivery happens on the Flush
// caller's goroutine, after the backend has finished the tick, which keeps
// listener-triggered body mutations out of the stepping pass.
type CollisionDispatcher struct {
	bus  bus.EventBus
	log  log.Log
	pool *generic.Pool[*CollisionEvent]

	mu    sync.Mutex
	queue []*CollisionEvent
}

func NewCollisionDispatcher(b bus.EventBus, logger log.Log) *CollisionDispatcher {
	return &CollisionDispatcher{
		bus: b,
		log: logger,
		// Pre-warmed so the first contact burst after startup does not
		// allocate event records mid-step.
		pool: generic.NewHotPool(func() *CollisionEvent {
			return &CollisionEvent{}
		}, hotEventRecords),
	}
}

// Track declares the per-body topic. Idempotent.
func (d *CollisionDispatcher) Track(bodyID uint32) {
	_ = d.bus.CreateTopic(bodyTopic(bodyID), bus.TopicConfig{})
}

// Forget drops the per-body topic along with all of its listeners.
func (d *CollisionDispatcher) Forget(bodyID uint32) {
	_ = d.bus.RemoveTopic(bodyTopic(bodyID))
}

// Subscribe registers a handler for one contact state on one body.
// Handlers for the same state run in subscription order. A handler
// registered while a Flush is in progress starts receiving events on the
// next tick.
func (d *CollisionDispatcher) Subscribe(bodyID uint32, state ContactState, handler CollisionHandler) (bus.Subscription, error) {
	return d.bus.SubscribeTopic(bodyTopic(bodyID), stateEventType(state), func(e bus.Event) error {
		ev, ok := e.Data().(*CollisionEvent)
		if !ok {
			return nil
		}
		return handler(*ev)
	})
}

// Enqueue stages one per-body event for the current tick. The event value is
// copied into a pooled record; Points is referenced, not copied.
func (d *CollisionDispatcher) Enqueue(ev CollisionEvent) {
	rec := d.pool.Get()
	*rec = ev
	d.mu.Lock()
	d.queue = append(d.queue, rec)
	d.mu.Unlock()
}

// Flush delivers every queued event exactly once, in enqueue order, then
// recycles the records. Handler errors are logged, not propagated: a
// listener failure must not abort the tick.
func (d *CollisionDispatcher) Flush(tick uint64) {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, rec := range pending {
		rec.Tick = tick
		event := bus.NewEvent(stateEventType(rec.State), "physics", rec, 0, nil)
		if err := d.bus.PublishToTopic(bodyTopic(rec.Body), event); err != nil {
			d.log.Warn("collision handler failed",
				log.Uint32("body", rec.Body),
				log.Uint32("other", rec.Other),
				log.String("state", rec.State.String()),
				log.Error(err),
			)
		}
		*rec = CollisionEvent{}
		d.pool.Put(rec)
	}
}

// PendingEvents reports how many events are staged for the current tick.
func (d *CollisionDispatcher) PendingEvents() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func bodyTopic(bodyID uint32) string {
	return "body/" + strconv.FormatUint(uint64(bodyID), 10)
}

func stateEventType(state ContactState) string {
	switch state {
	case ContactBegin:
		return EventCollisionBegin
	case ContactStay:
		return EventCollisionStay
	default:
		return EventCollisionEnd
	}
}
