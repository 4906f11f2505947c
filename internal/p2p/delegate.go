package p2p

// Delegate is the narrow upward API notified of device and connection
// events (§6). Modeled as a plain interface rather than an inheritance
// hierarchy — callbacks are delegate-found/lost/changed/state-changed plus
// a generic changed signal.
type Delegate interface {
	OnDeviceFound(d NetworkDevice)
	OnDeviceLost(d NetworkDevice)
	OnDeviceChanged(d NetworkDevice)
	OnDeviceStateChanged(d NetworkDevice)
	// OnChanged is the generic signal for scan status and other
	// non-device-scoped notifications.
	OnChanged()
}

// NopDelegate is a Delegate that discards every callback. Useful before
// set_delegate is called and in tests that don't assert on notifications.
type NopDelegate struct{}

func (NopDelegate) OnDeviceFound(NetworkDevice)        {}
func (NopDelegate) OnDeviceLost(NetworkDevice)         {}
func (NopDelegate) OnDeviceChanged(NetworkDevice)      {}
func (NopDelegate) OnDeviceStateChanged(NetworkDevice) {}
func (NopDelegate) OnChanged()                         {}
