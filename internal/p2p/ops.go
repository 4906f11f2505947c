package p2p

import (
	"time"

	"github.com/godbus/dbus/v5"
)

// SupplicantOps is the narrow set of supplicant-facing side effects the
// state machine issues. Implemented by internal/supplicant in production
// and by a fake in tests, so §8's properties can be checked without a real
// D-Bus bus.
type SupplicantOps interface {
	// Find starts peer discovery for the given duration (scan(timeout)).
	Find(timeout time.Duration) error
	// StopFind cancels an in-progress peer discovery scan.
	StopFind() error
	// Flush discards peers found by a prior scan.
	Flush() error
	// P2PConnect requests a GO-negotiation connect to the given peer.
	P2PConnect(peer dbus.ObjectPath) error
	// P2PCancel aborts an in-progress connect/negotiation.
	P2PCancel() error
	// SubscribeGroupInterface arms a readiness watch on the group's
	// interface object; readiness is reported as group_interface_ready.
	SubscribeGroupInterface(ifacePath dbus.ObjectPath) error
	// GroupDisconnect tears down the named group.
	GroupDisconnect(groupPath dbus.ObjectPath) error
	// DriverCommand issues a private driver command (e.g. "MIRACAST 1")
	// on the named interface. A negative/failing result is non-fatal.
	DriverCommand(ifaceName, cmd string) error
	// SetWFDIEs re-publishes the WFD information element bytes.
	SetWFDIEs(ie []byte) error
	// SetDeviceConfiguration pushes the pretty hostname and WPS device
	// type string computed from the local chassis (§4.4).
	SetDeviceConfiguration(hostname, wpsDeviceType string) error
}

// Presence watches a D-Bus well-known name's owner coming and going
// (§4.1's "watch the supplicant service name"). onAppear/onDisappear may be
// invoked on any goroutine.
type Presence interface {
	Watch(onAppear, onDisappear func()) error
	Close()
}

// InterfaceInfo is what the interface selector and device-configuration
// push need to know about a candidate interface (§4.2).
type InterfaceInfo struct {
	Path     dbus.ObjectPath
	Name     string
	P2PReady bool // driver advertises P2P capability
}

// ManagerDelegate receives interface hot-plug notifications (§4.2):
// interface added/removed, and creation failure (the last so a
// pre-existing interface can still be adopted).
type ManagerDelegate interface {
	OnInterfaceAdded(info InterfaceInfo)
	OnInterfaceRemoved(path dbus.ObjectPath)
	OnInterfaceCreationFailed(reason string)
}

// ManagerProxy wraps fi.w1.wpa_supplicant1 (§4.7).
type ManagerProxy interface {
	Interfaces() ([]InterfaceInfo, error)
	CreateInterface(name string) error
	SetDelegate(ManagerDelegate)
	Close()
}

// HostnameProxy wraps org.freedesktop.hostname1, surfacing the pretty
// hostname and the chassis fed into the WPS device-type string (§4.4).
type HostnameProxy interface {
	PrettyHostname() string
	Chassis() Chassis
	// Watch arms a PropertiesChanged subscription and invokes onChange
	// whenever PrettyHostname or Chassis changes. onChange may be invoked
	// on any goroutine.
	Watch(onChange func()) error
	Close()
}

// SupplicantFactory binds a P2PDevice proxy (satisfying SupplicantOps) to
// the interface InterfaceSelector chose. The chassis-derived device
// configuration is pushed by LifecycleController after the factory returns.
type SupplicantFactory func(iface InterfaceInfo, chassis Chassis) (SupplicantOps, error)

// DHCPEndpoint is a running DHCP server or client bound to the group
// interface. Stop releases whatever resources it holds; it must be
// idempotent since teardown paths may call it more than once.
type DHCPEndpoint interface {
	Stop()
}

// DHCPOps starts the DHCP endpoint appropriate for the local role. Exactly
// one of StartServer/StartClient is called per group (invariant I2).
type DHCPOps interface {
	StartServer(ifaceName string) (DHCPEndpoint, error)
	StartClient(ifaceName string) (DHCPEndpoint, error)
}
