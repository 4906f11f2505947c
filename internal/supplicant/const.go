// Package supplicant implements the D-Bus proxies LifecycleController
// drives: fi.w1.wpa_supplicant1's Manager/Interface/P2PDevice objects and
// org.freedesktop.hostname1. It is the only package that issues D-Bus
// method calls or subscribes to D-Bus signals on behalf of the P2P core.
package supplicant

import "github.com/godbus/dbus/v5"

const (
	// BusName is the supplicant's well-known bus name (§4.1, §4.7).
	BusName = "fi.w1.wpa_supplicant1"

	managerPath    = dbus.ObjectPath("/fi/w1/wpa_supplicant1")
	managerIface   = "fi.w1.wpa_supplicant1"
	ifaceIface     = "fi.w1.wpa_supplicant1.Interface"
	p2pDeviceIface = "fi.w1.wpa_supplicant1.Interface.P2PDevice"

	hostnameBusName = "org.freedesktop.hostname1"
	hostnamePath    = dbus.ObjectPath("/org/freedesktop/hostname1")
	hostnameIface   = "org.freedesktop.hostname1"
)
