package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// FirmwareLoader gates interface promotion on a firmware load (§4.1, §4.9).
type FirmwareLoader interface {
	Needed(iface string) bool
	Load(ctx context.Context, iface string) error
}

// LifecycleConfig is the static configuration LifecycleController needs at
// construction (§4.11's DedicatedInterface/NeedFirmware/ManagementInterface).
type LifecycleConfig struct {
	DedicatedInterface  string
	NeedFirmware        bool
	ManagementInterface string

	// ConnectTimeout overrides DefaultConnectTimeout for the state
	// machine's connect(device) watchdog. Zero means "use the default".
	ConnectTimeout time.Duration
}

// LifecycleController owns setup()/release() (§4.1): it watches the
// supplicant bus name, gates on firmware, and on success instantiates the
// hostname proxy, the interface selector, and the manager proxy, feeding
// the chosen interface's P2PDevice proxy into the state machine it was
// built with. On disappearance every proxy is torn down and any in-flight
// device is forced through Disconnected first.
type LifecycleController struct {
	mu sync.Mutex

	log      *logrus.Entry
	router   *Router
	sm       *StateMachine
	registry *Registry

	presence Presence
	firmware FirmwareLoader

	newManager  func() (ManagerProxy, error)
	newHostname func() (HostnameProxy, error)
	bind        SupplicantFactory

	cfg LifecycleConfig

	manager  ManagerProxy
	hostname HostnameProxy
	selector *InterfaceSelector

	running  bool
	hasBound bool
	bound    dbus.ObjectPath
}

// NewLifecycleController wires the controller. newManager/newHostname
// construct the corresponding D-Bus proxies once the supplicant appears;
// bind constructs the SupplicantOps bound to the interface the selector
// picked.
func NewLifecycleController(
	presence Presence,
	firmware FirmwareLoader,
	newManager func() (ManagerProxy, error),
	newHostname func() (HostnameProxy, error),
	bind SupplicantFactory,
	router *Router,
	sm *StateMachine,
	registry *Registry,
	cfg LifecycleConfig,
	log *logrus.Entry,
) *LifecycleController {
	return &LifecycleController{
		log:         log,
		router:      router,
		sm:          sm,
		registry:    registry,
		presence:    presence,
		firmware:    firmware,
		newManager:  newManager,
		newHostname: newHostname,
		bind:        bind,
		cfg:         cfg,
	}
}

// Setup arms the bus-name watcher (§4.1 setup()). A failed acquisition is
// reported once and leaves the controller inert.
func (lc *LifecycleController) Setup() error {
	lc.router.SetToken(nextSessionToken())
	if err := lc.presence.Watch(lc.onAppear, lc.onDisappear); err != nil {
		lc.log.WithError(err).Error("failed to watch supplicant bus name")
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Release tears everything down (§4.1 release()): any in-flight device is
// forced through Disconnected, every proxy is closed, and the bus-name
// watcher is released.
func (lc *LifecycleController) Release() {
	lc.onDisappear()
	lc.presence.Close()
	lc.router.Stop()
}

// Running reports whether the supplicant service is currently present and
// proxies are live.
func (lc *LifecycleController) Running() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.running
}

func (lc *LifecycleController) onAppear() {
	lc.mu.Lock()
	if lc.running {
		lc.mu.Unlock()
		return
	}
	lc.mu.Unlock()

	iface := lc.cfg.DedicatedInterface
	if lc.cfg.NeedFirmware && lc.firmware != nil && lc.firmware.Needed(iface) {
		if err := lc.firmware.Load(context.Background(), iface); err != nil {
			lc.log.WithError(err).Warn("firmware load failed; not proceeding past presence")
			return
		}
	}
	lc.proceed()
}

func (lc *LifecycleController) proceed() {
	manager, err := lc.newManager()
	if err != nil {
		lc.log.WithError(err).Error("manager proxy unavailable")
		return
	}
	hostname, err := lc.newHostname()
	if err != nil {
		lc.log.WithError(err).Warn("hostname proxy unavailable")
		manager.Close()
		return
	}

	selector := NewInterfaceSelector(lc.cfg.DedicatedInterface, manager, lc.onInterfaceSelected, lc.log)

	lc.mu.Lock()
	lc.manager = manager
	lc.hostname = hostname
	lc.selector = selector
	lc.running = true
	lc.mu.Unlock()

	if err := hostname.Watch(lc.onHostnameChanged); err != nil {
		lc.log.WithError(err).Warn("failed to watch hostname1 property changes")
	}

	manager.SetDelegate(lc)
	selector.Refresh()
}

// OnInterfaceAdded implements ManagerDelegate.
func (lc *LifecycleController) OnInterfaceAdded(info InterfaceInfo) {
	lc.mu.Lock()
	selector := lc.selector
	lc.mu.Unlock()
	if selector != nil {
		selector.OnInterfaceAdded(info)
	}
}

// OnInterfaceRemoved implements ManagerDelegate. Open question (a): the
// source dereferences the P2P device proxy here without a null check on
// removal; guard it instead — only clear the bound proxy if the removed
// interface is the one actually bound.
func (lc *LifecycleController) OnInterfaceRemoved(path dbus.ObjectPath) {
	lc.mu.Lock()
	isBound := lc.hasBound && lc.bound == path
	if isBound {
		lc.hasBound = false
	}
	lc.mu.Unlock()

	if isBound {
		lc.sm.SetSupplicant(nil)
	}
}

// OnInterfaceCreationFailed implements ManagerDelegate.
func (lc *LifecycleController) OnInterfaceCreationFailed(reason string) {
	lc.mu.Lock()
	selector := lc.selector
	lc.mu.Unlock()
	if selector != nil {
		selector.OnInterfaceCreationFailed(reason)
	}
}

func (lc *LifecycleController) onInterfaceSelected(info InterfaceInfo) {
	lc.mu.Lock()
	hostname := lc.hostname
	lc.mu.Unlock()

	chassis := ChassisDesktop
	if hostname != nil {
		chassis = hostname.Chassis()
	}

	ops, err := lc.bind(info, chassis)
	if err != nil {
		lc.log.WithError(err).Error("failed to bind p2p device proxy")
		return
	}

	wpsType := WPSDeviceType(chassis)
	name := ""
	if hostname != nil {
		name = hostname.PrettyHostname()
	}
	if err := ops.SetDeviceConfiguration(name, wpsType); err != nil {
		lc.log.WithError(err).Warn("set_device_configuration failed")
	}
	if err := ops.Flush(); err != nil {
		lc.log.WithError(err).Warn("flush failed")
	}

	lc.mu.Lock()
	lc.bound = info.Path
	lc.hasBound = true
	lc.mu.Unlock()

	lc.sm.SetSupplicant(ops)
}

// onHostnameChanged resyncs the pushed device identity and WFD IE after
// org.freedesktop.hostname1 reports a PrettyHostname/Chassis change.
func (lc *LifecycleController) onHostnameChanged() {
	lc.mu.Lock()
	hostname := lc.hostname
	lc.mu.Unlock()
	if hostname == nil {
		return
	}
	chassis := hostname.Chassis()
	lc.sm.RefreshDeviceIdentity(hostname.PrettyHostname(), WPSDeviceType(chassis))
}

func (lc *LifecycleController) onDisappear() {
	lc.mu.Lock()
	if !lc.running {
		lc.mu.Unlock()
		return
	}
	manager, hostname := lc.manager, lc.hostname
	lc.manager, lc.hostname, lc.selector = nil, nil, nil
	lc.running = false
	lc.hasBound = false
	lc.mu.Unlock()

	lc.sm.Reset()
	lc.registry.Reset()

	if manager != nil {
		manager.Close()
	}
	if hostname != nil {
		hostname.Close()
	}
}
