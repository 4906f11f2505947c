// Package p2p implements the asynchronous Wi-Fi P2P / Miracast connection
// state machine: device/group object model, event router, and lifecycle
// controller. It never touches D-Bus or a subprocess directly — those live
// behind the SupplicantOps/DHCPOps/FirmwareLoader interfaces so the core
// can be driven by a fake in tests.
package p2p

import (
	"github.com/godbus/dbus/v5"

	"aethercast/internal/wfd"
)

// DeviceState is the lifecycle state of a single connection attempt (§3,
// §4.5). Disconnected and Failure are terminal; current_device is cleared
// on entry to either.
type DeviceState int

const (
	StateIdle DeviceState = iota
	StateAssociation
	StateConfiguration
	StateConnected
	StateDisconnected
	StateFailure
)

func (s DeviceState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAssociation:
		return "Association"
	case StateConfiguration:
		return "Configuration"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Role is the local endpoint's role within a P2P group.
type Role string

const (
	RoleNone   Role = ""
	RoleGO     Role = "GO"
	RoleClient Role = "Client"
)

// NetworkDevice is a discovered P2P peer, identified by its stable
// supplicant object path (§3). The registry exclusively owns these values;
// current_device is an additional non-owning path handle into the registry.
type NetworkDevice struct {
	Path    dbus.ObjectPath
	Address string
	Role    Role
	IPv4    string
	State   DeviceState
}

// Snapshot returns a copy safe to hand to a delegate or caller without
// aliasing registry-owned memory.
func (d *NetworkDevice) Snapshot() NetworkDevice {
	return *d
}

// Group is the transient P2P group created on group-started and dissolved
// on group-finished. At most one group is active (§3).
type Group struct {
	Path      dbus.ObjectPath
	IfacePath dbus.ObjectPath
	Role      Role
}

// Capabilities is an alias of wfd.Capabilities so the state machine, the
// registry, and the IE encoder all classify device type identically.
type Capabilities = wfd.Capabilities

// Chassis is an alias of wfd.Chassis.
type Chassis = wfd.Chassis
