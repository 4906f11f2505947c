package p2p

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// DefaultConnectTimeout is kConnectTimeout from §4.5: how long Association
// waits for group_started before the attempt is failed.
const DefaultConnectTimeout = 30 * time.Second

// StateMachine drives a single connection attempt through
// Idle -> Association -> Configuration -> Connected, or into Failure, per
// §4.5. Every exported method is safe to call from any goroutine; Apply is
// meant to be invoked only by Router's single event-loop goroutine so that
// no two transitions ever run concurrently (§5).
type StateMachine struct {
	mu sync.Mutex

	registry    *Registry
	delegate    Delegate
	supplicant  SupplicantOps
	dhcp        DHCPOps
	metrics     Metrics
	log         *logrus.Entry
	post        func(Event)
	mgmtIface   string
	connectWait time.Duration

	caps Capabilities

	hasCurrent bool
	current    dbus.ObjectPath

	group      *Group
	dhcpServer DHCPEndpoint
	dhcpClient DHCPEndpoint
	localAddr  string

	sessionAvailable bool

	connectTimer *time.Timer
	connectEpoch uint64
}

// NewStateMachine wires a StateMachine. post delivers events (timer fires)
// back into the owning Router's event loop; mgmtIface is the interface
// MIRACAST=Off is issued on when entering Disconnected.
func NewStateMachine(registry *Registry, delegate Delegate, supplicant SupplicantOps, dhcp DHCPOps, metrics Metrics, log *logrus.Entry, mgmtIface string, post func(Event)) *StateMachine {
	if delegate == nil {
		delegate = NopDelegate{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &StateMachine{
		registry:         registry,
		delegate:         delegate,
		supplicant:       supplicant,
		dhcp:             dhcp,
		metrics:          metrics,
		log:              log,
		post:             post,
		mgmtIface:        mgmtIface,
		connectWait:      DefaultConnectTimeout,
		sessionAvailable: true,
	}
}

// SetCapabilities updates the (Source, Sink) pair. A no-op on equal input
// (P7): set_capabilities(c); set_capabilities(c) emits the IE at most once.
func (sm *StateMachine) SetCapabilities(caps Capabilities) {
	sm.mu.Lock()
	if sm.caps == caps {
		sm.mu.Unlock()
		return
	}
	sm.caps = caps
	sm.mu.Unlock()

	sm.publishIE()
}

// SetConnectTimeout overrides DefaultConnectTimeout for connect(device)'s
// watchdog (§4.5, config.P2PConfig.ConnectTimeout). A zero duration is
// ignored. Must be called before the first Connect to take effect.
func (sm *StateMachine) SetConnectTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	sm.mu.Lock()
	sm.connectWait = d
	sm.mu.Unlock()
}

// Capabilities returns the currently configured capability set.
func (sm *StateMachine) Capabilities() Capabilities {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.caps
}

// SessionAvailable reports the current WFD session-availability bit
// (invariant P4: session_available == current_device==nil || state != Connected).
func (sm *StateMachine) SessionAvailable() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.sessionAvailable
}

// LocalAddress returns the locally-assigned IPv4 address of the active
// group, or "" if none.
func (sm *StateMachine) LocalAddress() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.localAddr
}

// CurrentDevice returns the path of the device currently being
// connected/connected to, if any.
func (sm *StateMachine) CurrentDevice() (dbus.ObjectPath, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current, sm.hasCurrent
}

// CurrentGroup returns a copy of the active group, if any (invariant I1:
// only set while current_device.state is Configuration or Connected).
func (sm *StateMachine) CurrentGroup() (Group, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.group == nil {
		return Group{}, false
	}
	return *sm.group, true
}

// SetDelegate replaces the delegate notified of future state changes.
func (sm *StateMachine) SetDelegate(delegate Delegate) {
	if delegate == nil {
		delegate = NopDelegate{}
	}
	sm.mu.Lock()
	sm.delegate = delegate
	sm.mu.Unlock()
}

// supplicantOps returns the currently bound supplicant proxy, if any.
func (sm *StateMachine) supplicantOps() (SupplicantOps, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.supplicant, sm.supplicant != nil
}

// SetSupplicant installs (or, on supplicant disappearance, clears) the
// P2PDevice proxy bound to the selected interface. Called by
// LifecycleController as the supplicant service comes and goes (§4.1);
// while nil, Connect is rejected with ErrPrecondition and publishIE is a
// no-op.
func (sm *StateMachine) SetSupplicant(ops SupplicantOps) {
	sm.mu.Lock()
	sm.supplicant = ops
	sm.mu.Unlock()
}

// RefreshDeviceIdentity re-pushes the pretty hostname/WPS device type and
// republishes the WFD IE, driven by LifecycleController on a hostname1
// property change (§4.5, §6). A no-op while no supplicant proxy is bound.
func (sm *StateMachine) RefreshDeviceIdentity(hostname, wpsDeviceType string) {
	ops, ok := sm.supplicantOps()
	if !ok {
		return
	}
	if err := ops.SetDeviceConfiguration(hostname, wpsDeviceType); err != nil {
		sm.log.WithError(err).Warn("set_device_configuration failed on resync")
	}
	sm.publishIE()
}

// Connect is the user-facing connect(device) request (§4.5). Rejected
// without side effects if current_device is already set or the P2P device
// proxy is unavailable (§4.5 edge cases).
func (sm *StateMachine) Connect(device NetworkDevice) error {
	sm.mu.Lock()
	if sm.hasCurrent {
		sm.mu.Unlock()
		return fmt.Errorf("%w: connect already in progress", ErrPrecondition)
	}
	if sm.supplicant == nil {
		sm.mu.Unlock()
		return fmt.Errorf("%w: p2p device proxy unavailable", ErrPrecondition)
	}
	sm.hasCurrent = true
	sm.current = device.Path
	sm.mu.Unlock()

	if err := sm.supplicant.StopFind(); err != nil {
		sm.log.WithError(err).Warn("stop_find failed")
	}
	if err := sm.supplicant.P2PConnect(device.Path); err != nil {
		sm.log.WithError(err).Warn("p2p connect request failed")
	}

	sm.armConnectTimeout(device.Path)
	sm.transition(device.Path, StateAssociation)
	sm.metrics.ConnectionAttempt("started")
	return nil
}

// Disconnect is the user-facing disconnect(device) request. Rejected if
// the address doesn't match a known device, or doesn't match the current
// attempt. Disconnect itself does not clear current_device; the
// group_finished that follows does, so a second call after that is
// rejected, while a second call before it issues GroupDisconnect again.
func (sm *StateMachine) Disconnect(address string) error {
	dev, ok := sm.registry.Find(address)
	if !ok {
		return fmt.Errorf("%w: unknown device %s", ErrPrecondition, address)
	}

	sm.mu.Lock()
	if !sm.hasCurrent || sm.current != dev.Path {
		sm.mu.Unlock()
		return fmt.Errorf("%w: device not connected", ErrPrecondition)
	}
	group := sm.group
	sm.mu.Unlock()

	// Open question (b): Disconnect must not dereference a nonexistent
	// group; require Configuration/Connected (i.e. group != nil).
	if group == nil {
		return fmt.Errorf("%w: no active group", ErrPrecondition)
	}

	if err := sm.supplicant.GroupDisconnect(group.Path); err != nil {
		sm.log.WithError(err).Warn("group disconnect request failed")
	}
	// group_finished completes the teardown into Disconnected.
	return nil
}

// Apply dispatches a single event. It must only be called from the owning
// Router's event-loop goroutine.
func (sm *StateMachine) Apply(ev Event) {
	switch ev.Kind {
	case EventGoNegotiationSuccess:
		sm.onGoNegotiationSuccess(ev)
	case EventGroupStarted:
		sm.onGroupStarted(ev)
	case EventGroupInterfaceReady:
		sm.onGroupInterfaceReady(ev)
	case EventDHCPAddressAssigned:
		sm.onDHCPAddressAssigned(ev)
	case EventDHCPTerminated:
		sm.onDHCPTerminated(ev)
	case EventPeerConnectFailed, EventGoNegotiationFailure:
		sm.onProtocolFailure(ev)
	case EventConnectTimeout:
		sm.onConnectTimeout(ev)
	case EventGroupFinished:
		sm.onGroupFinished(ev)
	case EventDeviceLost:
		sm.DeviceLost(ev.Device)
	case EventConnect, EventDisconnect:
		// User requests are served synchronously by Connect/Disconnect;
		// they are not dispatched through the event loop.
	default:
		sm.log.WithField("kind", ev.Kind).Debug("unhandled event")
	}
}

func (sm *StateMachine) onGoNegotiationSuccess(ev Event) {
	sm.mu.Lock()
	inAssociation := sm.hasCurrent && sm.current == ev.Device
	sm.mu.Unlock()
	if !inAssociation {
		return // belongs to a prior attempt; informational only anyway
	}
	sm.log.WithField("result", ev.Result).Info("go negotiation succeeded")
}

func (sm *StateMachine) onGroupStarted(ev Event) {
	sm.mu.Lock()
	inAssociation := sm.hasCurrent && sm.current == ev.Device
	current := sm.current
	sm.mu.Unlock()
	if !inAssociation {
		return // belongs to a prior, superseded attempt
	}

	dev, ok := sm.registry.Get(current)
	if !ok || dev.State != StateAssociation {
		return // cross-proxy reordering; ignore outside Association
	}

	sm.registry.Mutate(current, func(d *NetworkDevice) { d.Role = ev.Role })

	sm.mu.Lock()
	sm.group = &Group{Path: ev.GroupPath, IfacePath: ev.IfacePath, Role: ev.Role}
	sm.mu.Unlock()

	if err := sm.supplicant.SubscribeGroupInterface(ev.IfacePath); err != nil {
		sm.log.WithError(err).Warn("subscribe group interface failed")
	}

	sm.transition(current, StateConfiguration)
}

func (sm *StateMachine) onGroupInterfaceReady(ev Event) {
	sm.mu.Lock()
	group := sm.group
	current := sm.current
	hasCurrent := sm.hasCurrent
	sm.mu.Unlock()

	if !hasCurrent || group == nil || group.IfacePath != ev.IfacePath {
		return
	}
	dev, ok := sm.registry.Get(current)
	if !ok || dev.State != StateConfiguration {
		return
	}

	ifaceName := string(ev.IfacePath)
	if err := sm.supplicant.DriverCommand(ifaceName, "MIRACAST 1"); err != nil {
		sm.log.WithError(err).Warn("driver command MIRACAST=Source failed")
	}

	var endpoint DHCPEndpoint
	var err error
	if group.Role == RoleGO {
		endpoint, err = sm.dhcp.StartServer(ifaceName)
	} else {
		endpoint, err = sm.dhcp.StartClient(ifaceName)
	}
	if err != nil {
		sm.log.WithError(err).Error("dhcp endpoint failed to start")
		return
	}

	sm.mu.Lock()
	if group.Role == RoleGO {
		sm.dhcpServer = endpoint
	} else {
		sm.dhcpClient = endpoint
	}
	sm.mu.Unlock()
}

func (sm *StateMachine) onDHCPAddressAssigned(ev Event) {
	sm.mu.Lock()
	current := sm.current
	hasCurrent := sm.hasCurrent
	sm.mu.Unlock()

	if !hasCurrent {
		return
	}
	dev, ok := sm.registry.Get(current)
	if !ok || dev.State != StateConfiguration {
		return // DHCP events ignored unless state is Configuration (§5)
	}

	sm.registry.Mutate(current, func(d *NetworkDevice) { d.IPv4 = ev.RemoteAddr })
	sm.cancelConnectTimeout()

	sm.mu.Lock()
	sm.localAddr = ev.LocalAddr
	sm.mu.Unlock()

	sm.transition(current, StateConnected)
}

func (sm *StateMachine) onDHCPTerminated(ev Event) {
	sm.mu.Lock()
	current := sm.current
	hasCurrent := sm.hasCurrent
	group := sm.group
	sm.mu.Unlock()

	if !hasCurrent {
		return
	}
	dev, ok := sm.registry.Get(current)
	if !ok || dev.State != StateConfiguration {
		return
	}

	if group != nil {
		if err := sm.supplicant.GroupDisconnect(group.Path); err != nil {
			sm.log.WithError(err).Warn("group disconnect after dhcp termination failed")
		}
	}
	sm.cancelConnectTimeout()
	sm.failCurrent(current)
}

func (sm *StateMachine) onProtocolFailure(ev Event) {
	sm.mu.Lock()
	current := sm.current
	hasCurrent := sm.hasCurrent
	sm.mu.Unlock()

	if !hasCurrent || current != ev.Device {
		return
	}
	dev, ok := sm.registry.Get(current)
	if !ok || (dev.State != StateAssociation && dev.State != StateConfiguration) {
		return
	}

	sm.cancelConnectTimeout()
	sm.failCurrent(current)
}

func (sm *StateMachine) onConnectTimeout(ev Event) {
	sm.mu.Lock()
	current := sm.current
	hasCurrent := sm.hasCurrent
	epochMatches := ev.Epoch == sm.connectEpoch
	sm.mu.Unlock()

	if !hasCurrent || current != ev.Device || !epochMatches {
		return // timer was cancelled/replaced (leaked-timer guard, P5)
	}

	dev, ok := sm.registry.Get(current)
	if !ok {
		return
	}

	switch dev.State {
	case StateAssociation:
		if err := sm.supplicant.P2PCancel(); err != nil {
			sm.log.WithError(err).Warn("p2p cancel failed")
		}
		sm.failCurrent(current)
	case StateConfiguration, StateConnected:
		// DHCP owns the clock past Association; no-op.
	}
}

func (sm *StateMachine) onGroupFinished(ev Event) {
	sm.mu.Lock()
	hasCurrent := sm.hasCurrent
	current := sm.current
	sm.mu.Unlock()

	if !hasCurrent {
		return
	}

	sm.cancelConnectTimeout()
	sm.teardownGroup()

	sm.mu.Lock()
	sm.sessionAvailable = true
	sm.hasCurrent = false
	sm.mu.Unlock()

	sm.registry.Mutate(current, func(d *NetworkDevice) { d.State = StateDisconnected })
	dev, _ := sm.registry.Get(current)
	sm.delegate.OnDeviceStateChanged(dev)
	sm.metrics.StateEntered(StateDisconnected)

	if err := sm.supplicant.DriverCommand(sm.mgmtIface, "MIRACAST 0"); err != nil {
		sm.log.WithError(err).Warn("driver command MIRACAST=Off failed")
	}
	sm.publishIE()
}

// Reset forces any in-flight device through Disconnected without waiting
// on the supplicant, drops the active group, and clears the bound
// supplicant proxy. Used on release() and on supplicant disappearance
// (§4.1, §4.5's cancellation rule: "a user release() while connecting
// forces the device through Disconnected without waiting for the
// supplicant").
func (sm *StateMachine) Reset() {
	sm.cancelConnectTimeout()
	sm.teardownGroup()

	sm.mu.Lock()
	hasCurrent := sm.hasCurrent
	current := sm.current
	sm.hasCurrent = false
	sm.sessionAvailable = true
	sm.supplicant = nil
	sm.mu.Unlock()

	if !hasCurrent {
		return
	}
	sm.registry.Mutate(current, func(d *NetworkDevice) { d.State = StateDisconnected })
	dev, _ := sm.registry.Get(current)
	sm.delegate.OnDeviceStateChanged(dev)
	sm.metrics.StateEntered(StateDisconnected)
}

// DeviceLost handles the device_lost(path) input. If path is the current
// device and a group exists, group.Disconnect() is requested before the
// loss is signalled to the delegate (§4.3); the registry removal itself
// does not advance state further — the subsequent group_finished does.
func (sm *StateMachine) DeviceLost(path dbus.ObjectPath) {
	sm.mu.Lock()
	isCurrent := sm.hasCurrent && sm.current == path
	group := sm.group
	sm.mu.Unlock()

	if isCurrent && group != nil {
		if err := sm.supplicant.GroupDisconnect(group.Path); err != nil {
			sm.log.WithError(err).Warn("group disconnect on device loss failed")
		}
	}
	sm.registry.OnDeviceLost(path)
}

// failCurrent clears current_device and transitions it to Failure.
func (sm *StateMachine) failCurrent(path dbus.ObjectPath) {
	sm.teardownGroup()

	sm.mu.Lock()
	sm.hasCurrent = false
	sm.sessionAvailable = true
	sm.mu.Unlock()

	sm.registry.Mutate(path, func(d *NetworkDevice) { d.State = StateFailure })
	dev, _ := sm.registry.Get(path)
	sm.delegate.OnDeviceStateChanged(dev)
	sm.metrics.StateEntered(StateFailure)
	sm.metrics.ConnectionAttempt("failed")
}

// transition moves path to state, notifies the delegate, updates
// session_available, and re-publishes the IE on any crossing of the
// Connected boundary (P6).
func (sm *StateMachine) transition(path dbus.ObjectPath, state DeviceState) {
	sm.registry.Mutate(path, func(d *NetworkDevice) { d.State = state })
	dev, _ := sm.registry.Get(path)
	sm.delegate.OnDeviceStateChanged(dev)
	sm.metrics.StateEntered(state)

	sm.mu.Lock()
	wasAvailable := sm.sessionAvailable
	sm.sessionAvailable = state != StateConnected
	becameUnavailable := wasAvailable && !sm.sessionAvailable
	sm.mu.Unlock()

	if state == StateConnected || becameUnavailable {
		sm.publishIE()
	}
	if state == StateConnected {
		sm.metrics.ConnectionAttempt("connected")
	}
}

// publishIE re-encodes and re-publishes the WFD information element. Errors
// are logged and swallowed — a failed IE publish doesn't fail the
// connection attempt that triggered it.
func (sm *StateMachine) publishIE() {
	if sm.supplicant == nil {
		return
	}
	sm.mu.Lock()
	caps := sm.caps
	available := sm.sessionAvailable
	sm.mu.Unlock()

	ie := encodeIE(caps, available)
	if err := sm.supplicant.SetWFDIEs(ie); err != nil {
		sm.log.WithError(err).Warn("set_wfd_ies failed")
		return
	}
	sm.metrics.IEPublished()
}

func (sm *StateMachine) teardownGroup() {
	sm.mu.Lock()
	server, client := sm.dhcpServer, sm.dhcpClient
	sm.dhcpServer, sm.dhcpClient = nil, nil
	sm.group = nil
	sm.mu.Unlock()

	if server != nil {
		server.Stop()
	}
	if client != nil {
		client.Stop()
	}
}

func (sm *StateMachine) armConnectTimeout(path dbus.ObjectPath) {
	sm.mu.Lock()
	sm.connectEpoch++
	epoch := sm.connectEpoch
	if sm.connectTimer != nil {
		sm.connectTimer.Stop()
	}
	wait := sm.connectWait
	post := sm.post
	sm.connectTimer = time.AfterFunc(wait, func() {
		if post != nil {
			post(Event{Kind: EventConnectTimeout, Epoch: epoch, Device: path})
		}
	})
	sm.mu.Unlock()
}

func (sm *StateMachine) cancelConnectTimeout() {
	sm.mu.Lock()
	if sm.connectTimer != nil {
		sm.connectTimer.Stop()
		sm.connectTimer = nil
	}
	sm.connectEpoch++ // invalidate any in-flight fire (P5: no leaked timers)
	sm.mu.Unlock()
}
