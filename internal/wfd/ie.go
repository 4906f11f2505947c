package wfd

import "encoding/binary"

// Subelement IDs as carried in the WFD information element (big-endian
// length-tagged TLVs, per the Wi-Fi Display specification).
const (
	SubelementDeviceInfo uint8 = 0
)

const (
	// sessionManagementControlPort is the fixed RTSP control port WFD
	// sinks/sources negotiate session management over.
	sessionManagementControlPort uint16 = 7236
	// maxThroughputMbps is the advertised maximum throughput in Mbps.
	maxThroughputMbps uint16 = 50

	// deviceInfoBodyLength is the fixed subelement body length (field1 +
	// control port + max throughput), 2 bytes each.
	deviceInfoBodyLength = 6

	// field1 bit layout within the 16-bit Device Information field.
	deviceTypeShift          = 0
	deviceTypeMask           = 0x3
	sessionAvailabilityShift = 4
)

// DeviceInfo holds the parameters serialized into the Device Information
// subelement (id 0).
type DeviceInfo struct {
	Type             DeviceType
	SessionAvailable bool
}

// field1 packs the device-type code and session-availability bit into the
// 16-bit field1, leaving all other bits reserved (zero).
func (d DeviceInfo) field1() uint16 {
	var v uint16
	v |= (uint16(d.Type) & deviceTypeMask) << deviceTypeShift
	if d.SessionAvailable {
		v |= 1 << sessionAvailabilityShift
	}
	return v
}

// encodeSubelement writes a length-tagged subelement: 1-byte id, 2-byte
// big-endian length, then body.
func encodeSubelement(id uint8, body []byte) []byte {
	out := make([]byte, 0, 3+len(body))
	out = append(out, id)
	out = binary.BigEndian.AppendUint16(out, uint16(len(body)))
	out = append(out, body...)
	return out
}

// Encode serializes the Device Information subelement for the given
// capability set and session-availability bit. All multi-byte fields are
// big-endian.
func Encode(caps Capabilities, sessionAvailable bool) []byte {
	info := DeviceInfo{Type: caps.Classify(), SessionAvailable: sessionAvailable}

	body := make([]byte, 0, deviceInfoBodyLength)
	body = binary.BigEndian.AppendUint16(body, info.field1())
	body = binary.BigEndian.AppendUint16(body, sessionManagementControlPort)
	body = binary.BigEndian.AppendUint16(body, maxThroughputMbps)

	return encodeSubelement(SubelementDeviceInfo, body)
}
