package supplicant

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

// P2PDevice wraps fi.w1.wpa_supplicant1.Interface.P2PDevice bound to a
// single selected interface (§4.7), implementing p2p.SupplicantOps. It is
// also where DeviceFound/DeviceLost/GroupStarted/... signals are turned
// into Registry calls and posted Events, via the same dispatch-by-signal-name
// switch style used by the other D-Bus proxies in this codebase.
type P2PDevice struct {
	conn *dbus.Conn
	path dbus.ObjectPath
	log  *logrus.Entry

	registry *p2p.Registry
	post     func(p2p.Event)

	mu           sync.Mutex
	groupWaiting map[dbus.ObjectPath]bool

	sigCh chan *dbus.Signal
}

// NewP2PDevice binds a P2PDevice proxy to path and starts draining its
// signal set. registry receives direct DeviceFound-driven calls (device
// discovery doesn't touch current_device and needs no router identity
// check); post delivers every other event into the router's event loop.
func NewP2PDevice(conn *dbus.Conn, path dbus.ObjectPath, registry *p2p.Registry, post func(p2p.Event), log *logrus.Entry) (*P2PDevice, error) {
	d := &P2PDevice{
		conn:         conn,
		path:         path,
		log:          log,
		registry:     registry,
		post:         post,
		groupWaiting: make(map[dbus.ObjectPath]bool),
	}
	if err := d.subscribe(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *P2PDevice) object() dbus.BusObject {
	return d.conn.Object(BusName, d.path)
}

func (d *P2PDevice) subscribe() error {
	rule := fmt.Sprintf("type='signal',sender='%s',path='%s',interface='%s'", BusName, d.path, p2pDeviceIface)
	if err := d.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return fmt.Errorf("add match for p2p device %s: %w", d.path, err)
	}

	d.sigCh = make(chan *dbus.Signal, 32)
	d.conn.Signal(d.sigCh)

	go func() {
		for sig := range d.sigCh {
			d.dispatch(sig)
		}
	}()
	return nil
}

func (d *P2PDevice) dispatch(sig *dbus.Signal) {
	switch sig.Name {
	case p2pDeviceIface + ".DeviceFound":
		d.onPeerFound(sig)
	case p2pDeviceIface + ".DeviceLost":
		d.onPeerLost(sig)
	case p2pDeviceIface + ".GroupStarted":
		d.onGroupStarted(sig)
	case p2pDeviceIface + ".GroupFinished":
		d.onGroupFinished(sig)
	case p2pDeviceIface + ".GONegotiationSuccess":
		d.onGONegotiationSuccess(sig)
	case p2pDeviceIface + ".GONegotiationFailure":
		d.onGONegotiationFailure(sig)
	case p2pDeviceIface + ".PeerConnectFailed":
		d.onPeerConnectFailed(sig)
	case p2pDeviceIface + ".GroupRequest":
		// Open question (c): sink support is unimplemented; this is a
		// permanent no-op that accepts no incoming group.
	case "org.freedesktop.DBus.Properties.PropertiesChanged":
		d.onPropertiesChanged(sig)
	default:
		d.log.WithField("signal", sig.Name).Debug("unhandled p2p device signal")
	}
}

func (d *P2PDevice) onPeerFound(sig *dbus.Signal) {
	peerPath, props, ok := pathAndProps(sig)
	if !ok {
		return
	}
	address, _ := props["DeviceAddress"].Value().(string)
	d.registry.OnDeviceFound(peerPath, address)
	d.registry.MarkReady(peerPath)
}

func (d *P2PDevice) onPeerLost(sig *dbus.Signal) {
	if len(sig.Body) != 1 {
		return
	}
	peerPath, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	d.post(p2p.Event{Kind: p2p.EventDeviceLost, Device: peerPath})
}

func (d *P2PDevice) onGroupStarted(sig *dbus.Signal) {
	if len(sig.Body) != 1 {
		return
	}
	props, ok := sig.Body[0].(map[string]dbus.Variant)
	if !ok {
		return
	}
	ev := p2p.Event{Kind: p2p.EventGroupStarted}
	if v, ok := props["GroupPath"]; ok {
		ev.GroupPath, _ = v.Value().(dbus.ObjectPath)
	}
	if v, ok := props["Interface"]; ok {
		ev.IfacePath, _ = v.Value().(dbus.ObjectPath)
	}
	if v, ok := props["Peer"]; ok {
		ev.Device, _ = v.Value().(dbus.ObjectPath)
	}
	ev.Role = p2p.RoleClient
	if v, ok := props["Role"]; ok {
		if role, _ := v.Value().(string); role == "GO" {
			ev.Role = p2p.RoleGO
		}
	}
	d.post(ev)
}

func (d *P2PDevice) onGroupFinished(sig *dbus.Signal) {
	if len(sig.Body) != 1 {
		return
	}
	props, ok := sig.Body[0].(map[string]dbus.Variant)
	if !ok {
		return
	}
	ev := p2p.Event{Kind: p2p.EventGroupFinished}
	if v, ok := props["GroupPath"]; ok {
		ev.GroupPath, _ = v.Value().(dbus.ObjectPath)
	}
	d.post(ev)
}

func (d *P2PDevice) onGONegotiationSuccess(sig *dbus.Signal) {
	peer, result := peerAndResult(sig)
	d.post(p2p.Event{Kind: p2p.EventGoNegotiationSuccess, Device: peer, Result: result})
}

func (d *P2PDevice) onGONegotiationFailure(sig *dbus.Signal) {
	peer, result := peerAndResult(sig)
	d.post(p2p.Event{Kind: p2p.EventGoNegotiationFailure, Device: peer, Result: result})
}

func (d *P2PDevice) onPeerConnectFailed(sig *dbus.Signal) {
	if len(sig.Body) != 1 {
		return
	}
	peer, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	d.post(p2p.Event{Kind: p2p.EventPeerConnectFailed, Device: peer})
}

func peerAndResult(sig *dbus.Signal) (dbus.ObjectPath, string) {
	if len(sig.Body) != 1 {
		return "", ""
	}
	props, ok := sig.Body[0].(map[string]dbus.Variant)
	if !ok {
		return "", ""
	}
	var peer dbus.ObjectPath
	if v, ok := props["Peer"]; ok {
		peer, _ = v.Value().(dbus.ObjectPath)
	}
	var reason string
	if v, ok := props["Status"]; ok {
		reason = fmt.Sprint(v.Value())
	}
	return peer, reason
}

// onPropertiesChanged is the group-interface-ready signal armed by
// SubscribeGroupInterface: the first PropertiesChanged delivered for a
// path being waited on fires group_interface_ready and stops waiting.
func (d *P2PDevice) onPropertiesChanged(sig *dbus.Signal) {
	d.mu.Lock()
	waiting := d.groupWaiting[sig.Path]
	if waiting {
		delete(d.groupWaiting, sig.Path)
	}
	d.mu.Unlock()

	if !waiting {
		return
	}
	d.post(p2p.Event{Kind: p2p.EventGroupInterfaceReady, IfacePath: sig.Path})
}

func pathAndProps(sig *dbus.Signal) (dbus.ObjectPath, map[string]dbus.Variant, bool) {
	if len(sig.Body) != 2 {
		return "", nil, false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", nil, false
	}
	props, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}
	return path, props, true
}

// Find implements p2p.SupplicantOps (scan(timeout)).
func (d *P2PDevice) Find(timeout time.Duration) error {
	args := map[string]dbus.Variant{"Timeout": dbus.MakeVariant(int32(timeout / time.Second))}
	return d.object().Call(p2pDeviceIface+".Find", 0, args).Err
}

// StopFind implements p2p.SupplicantOps.
func (d *P2PDevice) StopFind() error {
	return d.object().Call(p2pDeviceIface+".StopFind", 0).Err
}

// Flush implements p2p.SupplicantOps.
func (d *P2PDevice) Flush() error {
	return d.object().Call(p2pDeviceIface+".Flush", 0).Err
}

// P2PConnect implements p2p.SupplicantOps.
func (d *P2PDevice) P2PConnect(peer dbus.ObjectPath) error {
	args := map[string]dbus.Variant{"peer": dbus.MakeVariant(peer)}
	return d.object().Call(p2pDeviceIface+".Connect", 0, args).Err
}

// P2PCancel implements p2p.SupplicantOps.
func (d *P2PDevice) P2PCancel() error {
	return d.object().Call(p2pDeviceIface+".Cancel", 0).Err
}

// SubscribeGroupInterface implements p2p.SupplicantOps: it arms a one-shot
// PropertiesChanged watch on the group's interface object path rather than
// standing up a separate, non-delegated proxy type for it.
func (d *P2PDevice) SubscribeGroupInterface(ifacePath dbus.ObjectPath) error {
	rule := fmt.Sprintf("type='signal',sender='%s',path='%s',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged'", BusName, ifacePath)
	if err := d.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return fmt.Errorf("add match for group interface %s: %w", ifacePath, err)
	}
	d.mu.Lock()
	d.groupWaiting[ifacePath] = true
	d.mu.Unlock()
	return nil
}

// GroupDisconnect implements p2p.SupplicantOps.
func (d *P2PDevice) GroupDisconnect(groupPath dbus.ObjectPath) error {
	return d.conn.Object(BusName, groupPath).Call(p2pDeviceIface+".Disconnect", 0).Err
}

// DriverCommand implements p2p.SupplicantOps via wpa_cli's DRIVER command,
// the control-socket idiom real Miracast stacks use for MIRACAST <n>.
func (d *P2PDevice) DriverCommand(ifaceName, cmd string) error {
	out, err := exec.Command("wpa_cli", "-i", ifaceName, "driver", cmd).CombinedOutput()
	if err != nil {
		return fmt.Errorf("wpa_cli -i %s driver %q: %w: %s", ifaceName, cmd, err, out)
	}
	return nil
}

// SetWFDIEs implements p2p.SupplicantOps.
func (d *P2PDevice) SetWFDIEs(ie []byte) error {
	return d.object().Call("org.freedesktop.DBus.Properties.Set", 0, p2pDeviceIface, "WFDIEs", dbus.MakeVariant(ie)).Err
}

// SetDeviceConfiguration implements p2p.SupplicantOps.
func (d *P2PDevice) SetDeviceConfiguration(hostname, wpsDeviceType string) error {
	config := map[string]dbus.Variant{
		"DeviceName":        dbus.MakeVariant(hostname),
		"PrimaryDeviceType": dbus.MakeVariant(wpsDeviceType),
	}
	return d.object().Call("org.freedesktop.DBus.Properties.Set", 0, p2pDeviceIface, "P2PDeviceConfig", dbus.MakeVariant(config)).Err
}
