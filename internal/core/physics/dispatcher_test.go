package physics

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/kinetic/internal/core/events/bus"
	"github.com/zeusync/kinetic/internal/core/observability/log"
)

func newTestDispatcher(t *testing.T) *CollisionDispatcher {
	t.Helper()
	return NewCollisionDispatcher(bus.New(), log.Nop())
}

func collisionAt(state ContactState, body, other uint32) CollisionEvent {
	return CollisionEvent{
		State: state,
		Body:  body,
		Other: other,
		Points: []ContactPoint{{
			Position: mgl64.Vec3{1, 0, 0},
			Normal:   mgl64.Vec3{0, 1, 0},
		}},
	}
}

func TestDispatcherDeliversByState(t *testing.T) {
	d := newTestDispatcher(t)
	d.Track(1)

	var begins, stays, ends int
	_, err := d.Subscribe(1, ContactBegin, func(CollisionEvent) error { begins++; return nil })
	require.NoError(t, err)
	_, err = d.Subscribe(1, ContactStay, func(CollisionEvent) error { stays++; return nil })
	require.NoError(t, err)
	_, err = d.Subscribe(1, ContactEnd, func(CollisionEvent) error { ends++; return nil })
	require.NoError(t, err)

	d.Enqueue(collisionAt(ContactBegin, 1, 2))
	d.Flush(1)
	d.Enqueue(collisionAt(ContactStay, 1, 2))
	d.Flush(2)
	d.Enqueue(collisionAt(ContactStay, 1, 2))
	d.Flush(3)
	d.Enqueue(collisionAt(ContactEnd, 1, 2))
	d.Flush(4)

	require.Equal(t, 1, begins)
	require.Equal(t, 2, stays)
	require.Equal(t, 1, ends)
}

func TestDispatcherQueuesUntilFlush(t *testing.T) {
	d := newTestDispatcher(t)
	d.Track(1)

	called := 0
	_, err := d.Subscribe(1, ContactBegin, func(CollisionEvent) error { called++; return nil })
	require.NoError(t, err)

	d.Enqueue(collisionAt(ContactBegin, 1, 2))
	require.Equal(t, 0, called, "delivery must wait for the flush")
	require.Equal(t, 1, d.PendingEvents())

	d.Flush(1)
	require.Equal(t, 1, called)
	require.Equal(t, 0, d.PendingEvents())
}

func TestDispatcherPreservesEnqueueOrder(t *testing.T) {
	d := newTestDispatcher(t)
	d.Track(1)

	var others []uint32
	_, err := d.Subscribe(1, ContactBegin, func(ev CollisionEvent) error {
		others = append(others, ev.Other)
		return nil
	})
	require.NoError(t, err)

	for other := uint32(2); other <= 5; other++ {
		d.Enqueue(collisionAt(ContactBegin, 1, other))
	}
	d.Flush(1)

	require.Equal(t, []uint32{2, 3, 4, 5}, others)
}

func TestDispatcherEventsDuringFlushWaitForNext(t *testing.T) {
	d := newTestDispatcher(t)
	d.Track(1)

	calls := 0
	_, err := d.Subscribe(1, ContactBegin, func(CollisionEvent) error {
		calls++
		if calls == 1 {
			d.Enqueue(collisionAt(ContactBegin, 1, 9))
		}
		return nil
	})
	require.NoError(t, err)

	d.Enqueue(collisionAt(ContactBegin, 1, 2))
	d.Flush(1)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, d.PendingEvents())

	d.Flush(2)
	require.Equal(t, 2, calls)
}

func TestDispatcherHandlerErrorsDoNotStopDelivery(t *testing.T) {
	d := newTestDispatcher(t)
	d.Track(1)

	delivered := 0
	_, err := d.Subscribe(1, ContactBegin, func(CollisionEvent) error {
		return errors.New("listener broke")
	})
	require.NoError(t, err)
	_, err = d.Subscribe(1, ContactBegin, func(CollisionEvent) error {
		delivered++
		return nil
	})
	require.NoError(t, err)

	d.Enqueue(collisionAt(ContactBegin, 1, 2))
	d.Flush(1)
	require.Equal(t, 1, delivered)
}

func TestDispatcherForgetDropsListeners(t *testing.T) {
	d := newTestDispatcher(t)
	d.Track(1)

	called := 0
	sub, err := d.Subscribe(1, ContactBegin, func(CollisionEvent) error { called++; return nil })
	require.NoError(t, err)

	d.Forget(1)
	d.Enqueue(collisionAt(ContactBegin, 1, 2))
	d.Flush(1)

	require.Equal(t, 0, called)
	require.False(t, sub.IsActive())
}
