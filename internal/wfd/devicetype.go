// Package wfd encodes Wi-Fi Display information elements and classifies
// device type from a host's chassis and advertised capabilities.
package wfd

import "fmt"

// Capabilities is the (Source, Sink) pair configured by the upper layer.
// It drives both the WFD device-type byte and the beacon IE payload.
type Capabilities struct {
	Source bool
	Sink   bool
}

// DeviceType is the 2-bit WFD device-type code carried in the Device
// Information subelement's field1.
type DeviceType uint8

const (
	DeviceTypeSource DeviceType = iota
	DeviceTypePrimarySink
	DeviceTypeDualRole
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeSource:
		return "Source"
	case DeviceTypePrimarySink:
		return "PrimarySink"
	case DeviceTypeDualRole:
		return "DualRole"
	default:
		return "Unknown"
	}
}

// Classify maps a capability pair to its WFD device-type code:
// {Source} -> Source, {Sink} -> PrimarySink, {Source,Sink} -> DualRole.
func (c Capabilities) Classify() DeviceType {
	switch {
	case c.Source && c.Sink:
		return DeviceTypeDualRole
	case c.Sink:
		return DeviceTypePrimarySink
	default:
		return DeviceTypeSource
	}
}

// Chassis is the host chassis type as reported by org.freedesktop.hostname1.
type Chassis string

const (
	ChassisHandset   Chassis = "handset"
	ChassisVM        Chassis = "vm"
	ChassisContainer Chassis = "container"
	ChassisServer    Chassis = "server"
	ChassisLaptop    Chassis = "laptop"
	ChassisDesktop   Chassis = "desktop"
	ChassisTablet    Chassis = "tablet"
	ChassisWatch     Chassis = "watch"
)

const (
	wpsOUI             = "0050F204"
	wpsCategoryComputer = "0001"
	wpsCategoryHandset  = "000A"
)

// wpsSubcategory maps chassis to the WPS device-type subcategory (§4.4).
func wpsSubcategory(c Chassis) string {
	switch c {
	case ChassisHandset:
		return "0005"
	case ChassisVM, ChassisContainer:
		return "0001"
	case ChassisServer:
		return "0002"
	case ChassisLaptop:
		return "0005"
	case ChassisDesktop:
		return "0006"
	case ChassisTablet:
		return "0009"
	case ChassisWatch:
		return "00FF"
	default:
		return "0000"
	}
}

// WPSDeviceType builds the 16-hex-digit WPS device type string
// (category || OUI || subcategory), sent via SetDeviceConfiguration.
// Distinct from the WFD IE's device-type byte: category defaults to
// Computer (0001) but is overridden to Telephone (000A) for a handset
// chassis, regardless of the configured capability set.
func WPSDeviceType(chassis Chassis) string {
	category := wpsCategoryComputer
	if chassis == ChassisHandset {
		category = wpsCategoryHandset
	}
	return fmt.Sprintf("%s%s%s", category, wpsOUI, wpsSubcategory(chassis))
}
