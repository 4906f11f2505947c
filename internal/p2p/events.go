package p2p

import "github.com/godbus/dbus/v5"

// EventKind tags the single Event type flowing through the event loop
// (§4.5, §4.6).
type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventPeerConnectFailed
	EventGoNegotiationFailure
	EventGoNegotiationSuccess
	EventGroupStarted
	EventGroupInterfaceReady
	EventGroupFinished
	EventDHCPAddressAssigned
	EventDHCPTerminated
	EventConnectTimeout
	EventDeviceLost
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "Connect"
	case EventDisconnect:
		return "Disconnect"
	case EventPeerConnectFailed:
		return "PeerConnectFailed"
	case EventGoNegotiationFailure:
		return "GoNegotiationFailure"
	case EventGoNegotiationSuccess:
		return "GoNegotiationSuccess"
	case EventGroupStarted:
		return "GroupStarted"
	case EventGroupInterfaceReady:
		return "GroupInterfaceReady"
	case EventGroupFinished:
		return "GroupFinished"
	case EventDHCPAddressAssigned:
		return "DHCPAddressAssigned"
	case EventDHCPTerminated:
		return "DHCPTerminated"
	case EventConnectTimeout:
		return "ConnectTimeout"
	case EventDeviceLost:
		return "DeviceLost"
	default:
		return "Unknown"
	}
}

// Event is the single message type the router dispatches to the state
// machine. Every event carrying an object path is checked against
// current_device/current_group_iface identity before it is allowed to
// advance state (§4.6) — mismatches belong to a prior, superseded attempt
// and are silently ignored.
type Event struct {
	Kind EventKind

	// Token is the lifecycle session the event was produced under (§5,
	// §9). The router drops events whose token doesn't match the live
	// session instead of relying on weak back-references.
	Token uint64

	Device dbus.ObjectPath // subject device path, where applicable

	// Epoch correlates a connect_timeout event with the armConnectTimeout
	// call that scheduled it; a cancelled/replaced timer's stale fire is
	// recognized by Epoch mismatch and dropped (P5: no leaked timers).
	Epoch uint64

	GroupPath dbus.ObjectPath
	IfacePath dbus.ObjectPath
	Role      Role

	LocalAddr  string
	RemoteAddr string

	Result string // informational GO-negotiation payload (frequencies, WPS method)
}
