package p2p

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ManagerDeps bundles everything NewManager needs to assemble the package
// (§4's component table, §6's external interfaces).
type ManagerDeps struct {
	Metrics  Metrics
	Presence Presence
	Firmware FirmwareLoader

	NewManagerProxy  func() (ManagerProxy, error)
	NewHostnameProxy func() (HostnameProxy, error)

	// NewBind builds the SupplicantFactory, given the Registry and event-
	// post function Manager owns internally (neither is exported, so the
	// supplicant package's Bind helper is handed them here rather than
	// reaching into Manager's guts).
	NewBind func(registry *Registry, post func(Event)) SupplicantFactory

	// NewDHCP builds the DHCPOps collaborator, given the same event-post
	// function — dhcp_address_assigned/dhcp_terminated are reported back
	// as posted Events rather than through a direct callback.
	NewDHCP func(post func(Event)) DHCPOps

	Config LifecycleConfig
	Log    *logrus.Entry
}

// Manager is the public façade (§4's imperative/delegate API, §6): it
// wires Registry, StateMachine, Router, and LifecycleController together
// and exposes setup/release/scan/connect/disconnect/capabilities/devices.
type Manager struct {
	registry  *Registry
	sm        *StateMachine
	router    *Router
	lifecycle *LifecycleController
	log       *logrus.Entry

	mu        sync.Mutex
	delegate  Delegate
	scanning  bool
	scanTimer *time.Timer
}

// NewManager assembles the package from its collaborators. The supplicant
// proxy itself is not part of ManagerDeps — it doesn't exist until
// LifecycleController's InterfaceSelector picks an interface and Bind
// constructs it.
func NewManager(deps ManagerDeps) *Manager {
	log := deps.Log
	registry := NewRegistry(NopDelegate{})
	router := NewRouter(nil, log)
	sm := NewStateMachine(registry, NopDelegate{}, nil, deps.NewDHCP(router.Post), deps.Metrics, log, deps.Config.ManagementInterface, router.Post)
	sm.SetConnectTimeout(deps.Config.ConnectTimeout)
	router.sm = sm

	lifecycle := NewLifecycleController(
		deps.Presence,
		deps.Firmware,
		deps.NewManagerProxy,
		deps.NewHostnameProxy,
		deps.NewBind(registry, router.Post),
		router,
		sm,
		registry,
		deps.Config,
		log,
	)

	return &Manager{
		registry:  registry,
		sm:        sm,
		router:    router,
		lifecycle: lifecycle,
		log:       log,
		delegate:  NopDelegate{},
	}
}

// SetDelegate installs the upper-layer delegate (set_delegate).
func (m *Manager) SetDelegate(delegate Delegate) {
	if delegate == nil {
		delegate = NopDelegate{}
	}
	m.mu.Lock()
	m.delegate = delegate
	m.mu.Unlock()

	m.registry.SetDelegate(delegate)
	m.sm.SetDelegate(delegate)
}

// Setup starts the router's event loop and arms the supplicant presence
// watcher (§4.1 setup()).
func (m *Manager) Setup() error {
	go m.router.Run()
	return m.lifecycle.Setup()
}

// Release tears everything down (§4.1 release()).
func (m *Manager) Release() {
	m.mu.Lock()
	m.stopScanTimerLocked()
	m.mu.Unlock()

	m.lifecycle.Release()
}

// Scan requests peer discovery for timeout (scan(timeout)). Discovery
// itself belongs to the supplicant's Find/StopFind; Scan owns only the
// scanning() flag and its own expiry.
func (m *Manager) Scan(timeout time.Duration) error {
	ops, ok := m.sm.supplicantOps()
	if !ok {
		return fmt.Errorf("%w: p2p device proxy unavailable", ErrPrecondition)
	}
	if err := ops.Find(timeout); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	m.mu.Lock()
	m.scanning = true
	if m.scanTimer != nil {
		m.scanTimer.Stop()
	}
	m.scanTimer = time.AfterFunc(timeout, m.onScanExpired)
	delegate := m.delegate
	m.mu.Unlock()

	delegate.OnChanged()
	return nil
}

func (m *Manager) onScanExpired() {
	m.mu.Lock()
	m.scanning = false
	m.scanTimer = nil
	delegate := m.delegate
	m.mu.Unlock()

	delegate.OnChanged()
}

func (m *Manager) stopScanTimerLocked() {
	if m.scanTimer != nil {
		m.scanTimer.Stop()
		m.scanTimer = nil
	}
	m.scanning = false
}

// Connect issues the user-facing connect(device) request.
func (m *Manager) Connect(device NetworkDevice) error {
	return m.sm.Connect(device)
}

// Disconnect issues the user-facing disconnect(device) request, keyed by
// the peer's MAC address.
func (m *Manager) Disconnect(address string) error {
	return m.sm.Disconnect(address)
}

// SetCapabilities updates the local (Source, Sink) capability set.
func (m *Manager) SetCapabilities(caps Capabilities) {
	m.sm.SetCapabilities(caps)
}

// Capabilities returns the currently configured capability set.
func (m *Manager) Capabilities() Capabilities {
	return m.sm.Capabilities()
}

// Devices returns a snapshot sequence of every known peer.
func (m *Manager) Devices() []NetworkDevice {
	return m.registry.Devices()
}

// LocalAddress returns the locally-assigned IPv4 address of the active
// group, or "" if none.
func (m *Manager) LocalAddress() string {
	return m.sm.LocalAddress()
}

// Running reports whether the supplicant service is currently present.
func (m *Manager) Running() bool {
	return m.lifecycle.Running()
}

// Scanning reports whether a scan(timeout) request is still in its window.
func (m *Manager) Scanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}
