package p2p

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

// Registry maintains the peer table keyed by supplicant object path (§4.3).
// Keys are unique; insertion order is irrelevant. It is the sole owner of
// NetworkDevice values — current_device in StateMachine is only ever a
// path handle into this table, never a pointer copy, so there is no
// aliasing to defend against when a device is removed mid-connection.
type Registry struct {
	mu       sync.Mutex
	devices  map[dbus.ObjectPath]*NetworkDevice
	pending  map[dbus.ObjectPath]bool
	delegate Delegate
}

// NewRegistry creates an empty registry notifying delegate of found/lost
// devices. Pass NopDelegate{} until set_delegate is called.
func NewRegistry(delegate Delegate) *Registry {
	if delegate == nil {
		delegate = NopDelegate{}
	}
	return &Registry{
		devices:  make(map[dbus.ObjectPath]*NetworkDevice),
		pending:  make(map[dbus.ObjectPath]bool),
		delegate: delegate,
	}
}

// SetDelegate replaces the delegate notified of future events.
func (r *Registry) SetDelegate(delegate Delegate) {
	if delegate == nil {
		delegate = NopDelegate{}
	}
	r.mu.Lock()
	r.delegate = delegate
	r.mu.Unlock()
}

// OnDeviceFound inserts a new device keyed by path. The device is not yet
// announced to the delegate — that happens when MarkReady is called after
// its properties have been fetched. A duplicate found for an already-known
// path is ignored.
func (r *Registry) OnDeviceFound(path dbus.ObjectPath, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[path]; exists {
		return
	}
	r.devices[path] = &NetworkDevice{Path: path, Address: address, State: StateIdle}
	r.pending[path] = true
}

// MarkReady announces a previously-found device to the delegate. A no-op
// if path is unknown or was already announced.
func (r *Registry) MarkReady(path dbus.ObjectPath) {
	r.mu.Lock()
	d, ok := r.devices[path]
	if !ok || !r.pending[path] {
		r.mu.Unlock()
		return
	}
	delete(r.pending, path)
	snap := d.Snapshot()
	delegate := r.delegate
	r.mu.Unlock()

	delegate.OnDeviceFound(snap)
}

// OnDeviceLost removes path from the table and notifies the delegate. The
// caller is responsible for issuing group.Disconnect() *before* calling
// this when path is the current device and a group exists (§4.3) — this
// method only owns table membership and the loss notification.
func (r *Registry) OnDeviceLost(path dbus.ObjectPath) (NetworkDevice, bool) {
	r.mu.Lock()
	d, ok := r.devices[path]
	if !ok {
		r.mu.Unlock()
		return NetworkDevice{}, false
	}
	delete(r.devices, path)
	delete(r.pending, path)
	snap := d.Snapshot()
	delegate := r.delegate
	r.mu.Unlock()

	delegate.OnDeviceLost(snap)
	return snap, true
}

// Find scans values for a matching MAC address. Duplicate MACs are not
// expected; the first match wins.
func (r *Registry) Find(address string) (NetworkDevice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.Address == address {
			return d.Snapshot(), true
		}
	}
	return NetworkDevice{}, false
}

// Get returns a snapshot of the device at path.
func (r *Registry) Get(path dbus.ObjectPath) (NetworkDevice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[path]
	if !ok {
		return NetworkDevice{}, false
	}
	return d.Snapshot(), true
}

// Devices returns a snapshot sequence of every known device.
func (r *Registry) Devices() []NetworkDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NetworkDevice, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.Snapshot())
	}
	return out
}

// Mutate applies fn to the device at path under lock, notifies the
// delegate of the change, and returns the updated snapshot.
func (r *Registry) Mutate(path dbus.ObjectPath, fn func(*NetworkDevice)) (NetworkDevice, bool) {
	r.mu.Lock()
	d, ok := r.devices[path]
	if !ok {
		r.mu.Unlock()
		return NetworkDevice{}, false
	}
	fn(d)
	snap := d.Snapshot()
	delegate := r.delegate
	r.mu.Unlock()

	delegate.OnDeviceChanged(snap)
	return snap, true
}

// Reset drops every device without individual notifications — used when
// the supplicant service disappears and the whole table goes stale at once.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[dbus.ObjectPath]*NetworkDevice)
	r.pending = make(map[dbus.ObjectPath]bool)
}

// Live reports whether path is currently present in the registry.
func (r *Registry) Live(path dbus.ObjectPath) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[path]
	return ok
}
