package physics

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// fakeBackend records every call so tests can assert on forwarding order
// and scripted contact reports without running a real solver.
type fakeBackend struct {
	mu         sync.Mutex
	nextHandle uint64
	bodies     map[BodyHandle]BodyDesc
	results    map[BodyHandle]StepResult
	reports    []ContactReport
	calls      []string
	lastOrder  []BodyHandle
	onStep     func()
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		bodies:  make(map[BodyHandle]BodyDesc),
		results: make(map[BodyHandle]StepResult),
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBackend) scriptResult(handle BodyHandle, res StepResult) {
	f.mu.Lock()
	f.results[handle] = res
	f.mu.Unlock()
}

func (f *fakeBackend) scriptReports(reports ...ContactReport) {
	f.mu.Lock()
	f.reports = reports
	f.mu.Unlock()
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) CreateBody(desc BodyDesc) (BodyHandle, error) {
	f.record("CreateBody")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHandle++
	handle := BodyHandle(f.nextHandle)
	f.bodies[handle] = desc
	return handle, nil
}

func (f *fakeBackend) DestroyBody(handle BodyHandle) error {
	f.record("DestroyBody")
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bodies, handle)
	return nil
}

func (f *fakeBackend) Configure(handle BodyHandle, desc BodyDesc) error {
	f.record("Configure")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[handle] = desc
	return nil
}

func (f *fakeBackend) SetMassData(handle BodyHandle, props MassProperties) error {
	f.record("SetMassData")
	f.mu.Lock()
	defer f.mu.Unlock()
	desc := f.bodies[handle]
	desc.Mass = props
	f.bodies[handle] = desc
	return nil
}

func (f *fakeBackend) SetTransform(BodyHandle, mgl64.Vec3, mgl64.Quat) error {
	f.record("SetTransform")
	return nil
}

func (f *fakeBackend) SweepTo(BodyHandle, mgl64.Vec3) error {
	f.record("SweepTo")
	return nil
}

func (f *fakeBackend) SweepRotation(BodyHandle, mgl64.Quat) error {
	f.record("SweepRotation")
	return nil
}

func (f *fakeBackend) SetVelocity(BodyHandle, mgl64.Vec3) error {
	f.record("SetVelocity")
	return nil
}

func (f *fakeBackend) SetAngularVelocity(BodyHandle, mgl64.Vec3) error {
	f.record("SetAngularVelocity")
	return nil
}

func (f *fakeBackend) ApplyForce(BodyHandle, mgl64.Vec3, ForceMode) error {
	f.record("ApplyForce")
	return nil
}

func (f *fakeBackend) ApplyTorque(BodyHandle, mgl64.Vec3, ForceMode) error {
	f.record("ApplyTorque")
	return nil
}

func (f *fakeBackend) ApplyForceAtPoint(BodyHandle, mgl64.Vec3, mgl64.Vec3, PointForceMode) error {
	f.record("ApplyForceAtPoint")
	return nil
}

func (f *fakeBackend) PutToSleep(BodyHandle) error {
	f.record("PutToSleep")
	return nil
}

func (f *fakeBackend) WakeUp(BodyHandle) error {
	f.record("WakeUp")
	return nil
}

func (f *fakeBackend) Step(dt float64, order []BodyHandle) error {
	f.record("Step")
	f.mu.Lock()
	f.lastOrder = make([]BodyHandle, len(order))
	copy(f.lastOrder, order)
	onStep := f.onStep
	f.mu.Unlock()
	if onStep != nil {
		onStep()
	}
	return nil
}

func (f *fakeBackend) StepResult(handle BodyHandle) (StepResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[handle]
	return res, ok
}

func (f *fakeBackend) Contacts() []ContactReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports
}

func (f *fakeBackend) Close() error {
	f.record("Close")
	return nil
}
