package native

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/kinetic/internal/core/observability/log"
	"github.com/zeusync/kinetic/internal/core/physics"
)

func testConfig() physics.Config {
	cfg := physics.DefaultConfig()
	cfg.SleepTime = 0.1
	return cfg
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	return New(testConfig(), log.Nop())
}

func sphereDesc(pos mgl64.Vec3, mass float64, kinematic bool) physics.BodyDesc {
	col := physics.NewSphereCollider(0.5, mass)
	props := physics.AggregateMass([]physics.Collider{col}, mass, true)
	return physics.BodyDesc{
		Position:           pos,
		Rotation:           mgl64.QuatIdent(),
		Kinematic:          kinematic,
		UseGravity:         false,
		SleepThreshold:     0.05,
		MaxAngularVelocity: 50,
		Mass:               props,
		Colliders:          []physics.Collider{col},
	}
}

func step(t *testing.T, b *Backend, dt float64, handles ...physics.BodyHandle) {
	t.Helper()
	require.NoError(t, b.Step(dt, handles))
}

func TestGravityFall(t *testing.T) {
	b := newTestBackend(t)
	desc := sphereDesc(mgl64.Vec3{0, 100, 0}, 1, false)
	desc.UseGravity = true
	h, err := b.CreateBody(desc)
	require.NoError(t, err)

	const dt = 0.02
	for i := 0; i < 50; i++ {
		step(t, b, dt, h)
	}

	res, ok := b.StepResult(h)
	require.True(t, ok)
	require.Less(t, res.Position.Y(), 100.0)
	// One second of free fall at 9.81 m/s^2.
	require.InDelta(t, -9.81, res.LinearVelocity.Y(), 0.3)
}

func TestUnknownHandle(t *testing.T) {
	b := newTestBackend(t)
	err := b.SetVelocity(physics.BodyHandle(99), mgl64.Vec3{})
	require.ErrorIs(t, err, physics.ErrUnknownHandle)
}

func TestContactLifecycle(t *testing.T) {
	b := newTestBackend(t)
	dyn, err := b.CreateBody(sphereDesc(mgl64.Vec3{}, 1, false))
	require.NoError(t, err)
	kin, err := b.CreateBody(sphereDesc(mgl64.Vec3{0.6, 0, 0}, 0, true))
	require.NoError(t, err)

	step(t, b, 0.02, dyn, kin)
	reports := b.Contacts()
	require.Len(t, reports, 1)
	require.Equal(t, physics.ContactBegin, reports[0].State)
	require.Len(t, reports[0].Points, 1)

	// Freeze the dynamic body so the overlap persists.
	require.NoError(t, b.SetTransform(dyn, mgl64.Vec3{}, mgl64.QuatIdent()))
	require.NoError(t, b.SetVelocity(dyn, mgl64.Vec3{}))
	step(t, b, 0.02, dyn, kin)
	reports = b.Contacts()
	require.Len(t, reports, 1)
	require.Equal(t, physics.ContactStay, reports[0].State)

	require.NoError(t, b.SetTransform(kin, mgl64.Vec3{100, 0, 0}, mgl64.QuatIdent()))
	step(t, b, 0.02, dyn, kin)
	reports = b.Contacts()
	require.Len(t, reports, 1)
	require.Equal(t, physics.ContactEnd, reports[0].State)

	step(t, b, 0.02, dyn, kin)
	require.Empty(t, b.Contacts())
}

func TestContactReportsOrderedByPair(t *testing.T) {
	b := newTestBackend(t)

	// A chain of frozen spheres: each body overlaps its neighbors only.
	handles := make([]physics.BodyHandle, 4)
	for i := range handles {
		h, err := b.CreateBody(sphereDesc(mgl64.Vec3{float64(i) * 0.6, 0, 0}, 0, true))
		require.NoError(t, err)
		handles[i] = h
	}

	wantPairs := [][2]physics.BodyHandle{
		{handles[0], handles[1]},
		{handles[1], handles[2]},
		{handles[2], handles[3]},
	}

	for tick := 0; tick < 3; tick++ {
		step(t, b, 0.02, handles...)
		reports := b.Contacts()
		require.Len(t, reports, len(wantPairs))
		for i, want := range wantPairs {
			require.Equal(t, want[0], reports[i].A.Body)
			require.Equal(t, want[1], reports[i].B.Body)
		}
	}
}

func TestOverlapSeparates(t *testing.T) {
	b := newTestBackend(t)
	dyn, err := b.CreateBody(sphereDesc(mgl64.Vec3{}, 1, false))
	require.NoError(t, err)
	kin, err := b.CreateBody(sphereDesc(mgl64.Vec3{0.4, 0, 0}, 0, true))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		step(t, b, 0.02, dyn, kin)
	}

	dynRes, _ := b.StepResult(dyn)
	kinRes, _ := b.StepResult(kin)
	// Only the dynamic body moves; the kinematic one absorbs nothing.
	require.Equal(t, mgl64.Vec3{0.4, 0, 0}, kinRes.Position)
	sep := kinRes.Position.Sub(dynRes.Position).Len()
	require.GreaterOrEqual(t, sep, 0.95, "penetration should resolve to near the radii sum")
}

func TestSleepAfterInactivity(t *testing.T) {
	b := newTestBackend(t)
	h, err := b.CreateBody(sphereDesc(mgl64.Vec3{}, 1, false))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		step(t, b, 0.02, h)
	}
	res, _ := b.StepResult(h)
	require.True(t, res.Sleeping)

	require.NoError(t, b.ApplyForce(h, mgl64.Vec3{10, 0, 0}, physics.ForceModeImpulse))
	step(t, b, 0.02, h)
	res, _ = b.StepResult(h)
	require.False(t, res.Sleeping)
	require.Greater(t, res.Position.X(), 0.0)
}

func TestForcedSleepHolds(t *testing.T) {
	b := newTestBackend(t)
	h, err := b.CreateBody(sphereDesc(mgl64.Vec3{}, 1, false))
	require.NoError(t, err)

	require.NoError(t, b.SetVelocity(h, mgl64.Vec3{5, 0, 0}))
	require.NoError(t, b.PutToSleep(h))
	step(t, b, 0.02, h)

	res, _ := b.StepResult(h)
	require.True(t, res.Sleeping)
	require.Equal(t, mgl64.Vec3{}, res.Position, "a sleeping body does not move")

	require.NoError(t, b.WakeUp(h))
	require.NoError(t, b.SetVelocity(h, mgl64.Vec3{5, 0, 0}))
	step(t, b, 0.02, h)
	res, _ = b.StepResult(h)
	require.Greater(t, res.Position.X(), 0.0)
}

func TestSweepStopsAtObstacle(t *testing.T) {
	b := newTestBackend(t)
	mover, err := b.CreateBody(sphereDesc(mgl64.Vec3{}, 1, false))
	require.NoError(t, err)
	wall, err := b.CreateBody(sphereDesc(mgl64.Vec3{2, 0, 0}, 0, true))
	require.NoError(t, err)

	require.NoError(t, b.SweepTo(mover, mgl64.Vec3{4, 0, 0}))
	step(t, b, 0.02, mover, wall)

	res, _ := b.StepResult(mover)
	require.Less(t, res.Position.X(), 2.0, "sweep must stop short of the obstacle")
	require.Greater(t, res.Position.X(), 0.0, "sweep should make progress up to the obstacle")
}

func TestSweepRotationApplies(t *testing.T) {
	b := newTestBackend(t)
	h, err := b.CreateBody(sphereDesc(mgl64.Vec3{}, 1, false))
	require.NoError(t, err)

	target := mgl64.QuatRotate(1, mgl64.Vec3{0, 1, 0})
	require.NoError(t, b.SweepRotation(h, target))
	step(t, b, 0.02, h)

	res, _ := b.StepResult(h)
	require.InDelta(t, target.W, res.Rotation.W, 1e-9)
}

func TestLockedAxisRejectsSpin(t *testing.T) {
	b := newTestBackend(t)
	desc := sphereDesc(mgl64.Vec3{}, 1, false)
	desc.Mass.Inertia = mgl64.Vec3{0, 0.4, 0.4}
	h, err := b.CreateBody(desc)
	require.NoError(t, err)

	require.NoError(t, b.ApplyTorque(h, mgl64.Vec3{5, 0, 0}, physics.ForceModeImpulse))
	step(t, b, 0.02, h)

	res, _ := b.StepResult(h)
	require.InDelta(t, 0, res.AngularVelocity.X(), 1e-9)
}

func TestMaxAngularVelocityClamped(t *testing.T) {
	b := newTestBackend(t)
	desc := sphereDesc(mgl64.Vec3{}, 1, false)
	desc.MaxAngularVelocity = 2
	h, err := b.CreateBody(desc)
	require.NoError(t, err)

	require.NoError(t, b.SetAngularVelocity(h, mgl64.Vec3{100, 0, 0}))
	step(t, b, 0.02, h)

	res, _ := b.StepResult(h)
	require.InDelta(t, 2, res.AngularVelocity.Len(), 1e-9)
}

func TestDragSlowsBody(t *testing.T) {
	b := newTestBackend(t)
	desc := sphereDesc(mgl64.Vec3{}, 1, false)
	desc.LinearDrag = 2
	h, err := b.CreateBody(desc)
	require.NoError(t, err)

	require.NoError(t, b.SetVelocity(h, mgl64.Vec3{10, 0, 0}))
	for i := 0; i < 25; i++ {
		step(t, b, 0.02, h)
	}

	res, _ := b.StepResult(h)
	require.Less(t, res.LinearVelocity.X(), 4.0)
	require.Greater(t, res.LinearVelocity.X(), 0.0)
}

func TestDestroyedBodyDropsContacts(t *testing.T) {
	b := newTestBackend(t)
	dyn, err := b.CreateBody(sphereDesc(mgl64.Vec3{}, 1, false))
	require.NoError(t, err)
	kin, err := b.CreateBody(sphereDesc(mgl64.Vec3{0.6, 0, 0}, 0, true))
	require.NoError(t, err)

	step(t, b, 0.02, dyn, kin)
	require.Len(t, b.Contacts(), 1)

	require.NoError(t, b.DestroyBody(kin))
	step(t, b, 0.02, dyn)
	// No phantom end report for a destroyed body.
	require.Empty(t, b.Contacts())
}
