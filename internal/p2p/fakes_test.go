package p2p_test

import (
	"context"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

// testLog returns an entry that discards output; every collaborator in
// this codebase takes a logrus.Entry rather than a bare logger.
func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(discard{})
	return logrus.NewEntry(l)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// fakeSupplicant is an in-memory SupplicantOps recording every call it
// receives, so tests can assert on side effects without a D-Bus bus.
type fakeSupplicant struct {
	mu sync.Mutex

	findCalls            int
	stopFindCalls        int
	flushCalls           int
	connected            []dbus.ObjectPath
	cancelCalls          int
	subscribedIfaces     []dbus.ObjectPath
	disconnectedGroups   []dbus.ObjectPath
	driverCommands       []string
	publishedIEs         [][]byte
	deviceConfigurations []string

	failP2PConnect        bool
	failSubscribe         bool
	failGroupDisconnect   bool
	failSetWFDIEs         bool
}

func newFakeSupplicant() *fakeSupplicant {
	return &fakeSupplicant{}
}

func (f *fakeSupplicant) Find(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	return nil
}

func (f *fakeSupplicant) StopFind() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopFindCalls++
	return nil
}

func (f *fakeSupplicant) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCalls++
	return nil
}

func (f *fakeSupplicant) P2PConnect(peer dbus.ObjectPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, peer)
	if f.failP2PConnect {
		return errTest
	}
	return nil
}

func (f *fakeSupplicant) P2PCancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return nil
}

func (f *fakeSupplicant) SubscribeGroupInterface(ifacePath dbus.ObjectPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribedIfaces = append(f.subscribedIfaces, ifacePath)
	if f.failSubscribe {
		return errTest
	}
	return nil
}

func (f *fakeSupplicant) GroupDisconnect(groupPath dbus.ObjectPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectedGroups = append(f.disconnectedGroups, groupPath)
	if f.failGroupDisconnect {
		return errTest
	}
	return nil
}

func (f *fakeSupplicant) DriverCommand(ifaceName, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.driverCommands = append(f.driverCommands, ifaceName+":"+cmd)
	return nil
}

func (f *fakeSupplicant) SetWFDIEs(ie []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishedIEs = append(f.publishedIEs, append([]byte(nil), ie...))
	if f.failSetWFDIEs {
		return errTest
	}
	return nil
}

func (f *fakeSupplicant) SetDeviceConfiguration(hostname, wpsDeviceType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceConfigurations = append(f.deviceConfigurations, hostname+"/"+wpsDeviceType)
	return nil
}

func (f *fakeSupplicant) ieCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.publishedIEs)
}

func (f *fakeSupplicant) lastIE() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.publishedIEs) == 0 {
		return nil
	}
	return f.publishedIEs[len(f.publishedIEs)-1]
}

var errTest = dbusTestError("fake failure")

type dbusTestError string

func (e dbusTestError) Error() string { return string(e) }

// fakeDHCPEndpoint records whether Stop was called.
type fakeDHCPEndpoint struct {
	mu      sync.Mutex
	stopped int
}

func (e *fakeDHCPEndpoint) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped++
}

// fakeDHCPOps hands out fakeDHCPEndpoint instances and records which role
// started which endpoint, so invariant I2 (exactly one of server/client per
// group) can be asserted on directly.
type fakeDHCPOps struct {
	mu            sync.Mutex
	serverStarts  []string
	clientStarts  []string
	lastServer    *fakeDHCPEndpoint
	lastClient    *fakeDHCPEndpoint
	failServer    bool
	failClient    bool
}

func (o *fakeDHCPOps) StartServer(ifaceName string) (p2p.DHCPEndpoint, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.serverStarts = append(o.serverStarts, ifaceName)
	if o.failServer {
		return nil, errTest
	}
	o.lastServer = &fakeDHCPEndpoint{}
	return o.lastServer, nil
}

func (o *fakeDHCPOps) StartClient(ifaceName string) (p2p.DHCPEndpoint, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clientStarts = append(o.clientStarts, ifaceName)
	if o.failClient {
		return nil, errTest
	}
	o.lastClient = &fakeDHCPEndpoint{}
	return o.lastClient, nil
}

// recordingDelegate captures every callback it receives in order, so tests
// can assert on state-change sequences (e.g. P6's re-publish-on-transition).
type recordingDelegate struct {
	mu sync.Mutex

	found         []p2p.NetworkDevice
	lost          []p2p.NetworkDevice
	changed       []p2p.NetworkDevice
	stateChanged  []p2p.NetworkDevice
	changedCalls  int
}

func (d *recordingDelegate) OnDeviceFound(dev p2p.NetworkDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.found = append(d.found, dev)
}

func (d *recordingDelegate) OnDeviceLost(dev p2p.NetworkDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = append(d.lost, dev)
}

func (d *recordingDelegate) OnDeviceChanged(dev p2p.NetworkDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changed = append(d.changed, dev)
}

func (d *recordingDelegate) OnDeviceStateChanged(dev p2p.NetworkDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateChanged = append(d.stateChanged, dev)
}

func (d *recordingDelegate) OnChanged() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changedCalls++
}

func (d *recordingDelegate) states() []p2p.DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]p2p.DeviceState, len(d.stateChanged))
	for i, dev := range d.stateChanged {
		out[i] = dev.State
	}
	return out
}

// recordingMetrics captures metrics calls for assertions on P6/invariant
// coverage without wiring a real Prometheus registry.
type recordingMetrics struct {
	mu sync.Mutex

	attempts []string
	states   []p2p.DeviceState
	iePubs   int
}

func (m *recordingMetrics) ConnectionAttempt(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, result)
}

func (m *recordingMetrics) StateEntered(s p2p.DeviceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *recordingMetrics) IEPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iePubs++
}

// fakePresence lets tests trigger onAppear/onDisappear directly instead of
// watching a real bus name owner.
type fakePresence struct {
	mu         sync.Mutex
	onAppear   func()
	onDisappear func()
	closed     bool
}

func (p *fakePresence) Watch(onAppear, onDisappear func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAppear = onAppear
	p.onDisappear = onDisappear
	return nil
}

func (p *fakePresence) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePresence) triggerAppear() {
	p.mu.Lock()
	fn := p.onAppear
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePresence) triggerDisappear() {
	p.mu.Lock()
	fn := p.onDisappear
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// fakeFirmwareLoader lets tests force firmware gating to succeed or fail.
type fakeFirmwareLoader struct {
	needed  bool
	failErr error
	loaded  []string
}

func (f *fakeFirmwareLoader) Needed(iface string) bool { return f.needed }

func (f *fakeFirmwareLoader) Load(ctx context.Context, iface string) error {
	f.loaded = append(f.loaded, iface)
	return f.failErr
}

// fakeManagerProxy is a minimal ManagerProxy reporting a fixed interface
// list and recording CreateInterface requests.
type fakeManagerProxy struct {
	mu         sync.Mutex
	interfaces []p2p.InterfaceInfo
	delegate   p2p.ManagerDelegate
	created    []string
	closed     bool
	failList   bool
}

func (m *fakeManagerProxy) Interfaces() ([]p2p.InterfaceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errTest
	}
	return append([]p2p.InterfaceInfo(nil), m.interfaces...), nil
}

func (m *fakeManagerProxy) CreateInterface(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, name)
	return nil
}

func (m *fakeManagerProxy) SetDelegate(d p2p.ManagerDelegate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegate = d
}

func (m *fakeManagerProxy) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// fakeHostnameProxy reports a fixed pretty hostname and chassis.
type fakeHostnameProxy struct {
	pretty  string
	chassis p2p.Chassis
	closed  bool

	onChange func()
}

func (h *fakeHostnameProxy) PrettyHostname() string { return h.pretty }
func (h *fakeHostnameProxy) Chassis() p2p.Chassis    { return h.chassis }
func (h *fakeHostnameProxy) Watch(onChange func()) error {
	h.onChange = onChange
	return nil
}
func (h *fakeHostnameProxy) Close() { h.closed = true }

// triggerHostnameChange simulates a PropertiesChanged signal for tests that
// armed Watch via the lifecycle controller.
func (h *fakeHostnameProxy) triggerHostnameChange() {
	if h.onChange != nil {
		h.onChange()
	}
}

// waitFor polls cond until it returns true or the deadline passes, for
// asserting on effects of timers/goroutines without a fixed sleep.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
