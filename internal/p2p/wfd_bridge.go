package p2p

import "aethercast/internal/wfd"

// Chassis values, re-exported from internal/wfd so callers configuring a
// LifecycleController never need to import it directly.
const (
	ChassisHandset   = wfd.ChassisHandset
	ChassisVM        = wfd.ChassisVM
	ChassisContainer = wfd.ChassisContainer
	ChassisServer    = wfd.ChassisServer
	ChassisLaptop    = wfd.ChassisLaptop
	ChassisDesktop   = wfd.ChassisDesktop
	ChassisTablet    = wfd.ChassisTablet
	ChassisWatch     = wfd.ChassisWatch
)

// encodeIE serializes the WFD Device Information subelement for the
// current capability set and session-availability bit (§4.4, §8 P9).
func encodeIE(caps Capabilities, sessionAvailable bool) []byte {
	return wfd.Encode(caps, sessionAvailable)
}

// WPSDeviceType computes the 16-hex-digit WPS device type string for the
// given chassis (§4.4), pushed via SetDeviceConfiguration on interface
// bind.
func WPSDeviceType(chassis Chassis) string {
	return wfd.WPSDeviceType(chassis)
}
