package native

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/kinetic/internal/core/physics"
	"github.com/zeusync/kinetic/pkg/sequence"
)

// contactSide identifies one shape taking part in a contact.
type contactSide struct {
	handle   physics.BodyHandle
	collider int
}

// contactPair is a canonically ordered shape pair.
type contactPair struct {
	a, b contactSide
}

func orderPair(a, b contactSide) contactPair {
	if b.handle < a.handle || (b.handle == a.handle && b.collider < a.collider) {
		a, b = b, a
	}
	return contactPair{a: a, b: b}
}

// key hashes the canonical pair encoding. Both orderings of the same two
// shapes produce the same key.
func (p contactPair) key() uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(p.a.handle))
	binary.LittleEndian.PutUint32(buf[8:], uint32(p.a.collider))
	binary.LittleEndian.PutUint64(buf[12:], uint64(p.b.handle))
	binary.LittleEndian.PutUint32(buf[20:], uint32(p.b.collider))
	return xxhash.Sum64(buf[:])
}

// contact is one tracked pair with its latest manifold.
type contact struct {
	pair   contactPair
	points []physics.ContactPoint
}

// contactTracker diffs the overlapping pair set between consecutive ticks so
// every pair produces exactly one begin, at most one stay per tick it
// persists, and exactly one end.
type contactTracker struct {
	prev map[uint64]contact
}

func newContactTracker() *contactTracker {
	return &contactTracker{prev: make(map[uint64]contact)}
}

// advance takes this tick's overlapping pairs and returns the classified
// reports. Ended pairs report the manifold they last touched with.
func (t *contactTracker) advance(current map[uint64]contact, lookup func(contactSide) (physics.ContactShape, bool)) []physics.ContactReport {
	reports := make([]physics.ContactReport, 0, len(current)+len(t.prev))

	emit := func(c contact, state physics.ContactState) {
		a, okA := lookup(c.pair.a)
		b, okB := lookup(c.pair.b)
		if !okA || !okB {
			return
		}
		reports = append(reports, physics.ContactReport{
			A:      a,
			B:      b,
			State:  state,
			Points: c.points,
		})
	}

	// Map iteration order is random, so pairs are sorted canonically before
	// emitting. Report order stays stable across ticks and runs.
	for _, c := range sequence.FromMap(current).Sort(contactLess).Collect() {
		if _, existed := t.prev[c.pair.key()]; existed {
			emit(c, physics.ContactStay)
		} else {
			emit(c, physics.ContactBegin)
		}
	}
	ended := sequence.FromMap(t.prev).Filter(func(c contact) bool {
		_, still := current[c.pair.key()]
		return !still
	})
	for _, c := range ended.Sort(contactLess).Collect() {
		emit(c, physics.ContactEnd)
	}

	t.prev = current
	return reports
}

// contactLess orders contacts by their canonical pair.
func contactLess(a, b contact) bool {
	if a.pair.a.handle != b.pair.a.handle {
		return a.pair.a.handle < b.pair.a.handle
	}
	if a.pair.a.collider != b.pair.a.collider {
		return a.pair.a.collider < b.pair.a.collider
	}
	if a.pair.b.handle != b.pair.b.handle {
		return a.pair.b.handle < b.pair.b.handle
	}
	return a.pair.b.collider < b.pair.b.collider
}

// forget drops every tracked pair involving a handle. Destroying a body
// must not leave phantom end reports pointing at it.
func (t *contactTracker) forget(handle physics.BodyHandle) {
	for key, c := range t.prev {
		if c.pair.a.handle == handle || c.pair.b.handle == handle {
			delete(t.prev, key)
		}
	}
}
