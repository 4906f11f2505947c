package supplicant

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

// Manager wraps fi.w1.wpa_supplicant1: interface enumeration, interface
// creation, and the InterfacesAdded/InterfacesRemoved hot-plug signals.
// Interfaces does a single-pass GetManagedObjects scan.
type Manager struct {
	conn *dbus.Conn
	log  *logrus.Entry

	delegate p2p.ManagerDelegate

	sigCh chan *dbus.Signal
}

// NewManager binds a Manager proxy and starts draining ObjectManager
// signals. SetDelegate must be called before hot-plug notifications are
// useful; until then they are discarded.
func NewManager(conn *dbus.Conn, log *logrus.Entry) (*Manager, error) {
	m := &Manager{conn: conn, log: log, delegate: nopManagerDelegate{}}
	if err := m.subscribe(); err != nil {
		return nil, err
	}
	return m, nil
}

// SetDelegate implements p2p.ManagerProxy.
func (m *Manager) SetDelegate(d p2p.ManagerDelegate) {
	if d == nil {
		d = nopManagerDelegate{}
	}
	m.delegate = d
}

// Interfaces implements p2p.ManagerProxy.
func (m *Manager) Interfaces() ([]p2p.InterfaceInfo, error) {
	obj := m.conn.Object(BusName, managerPath)
	var result map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&result); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}

	var out []p2p.InterfaceInfo
	for path, ifaces := range result {
		props, ok := ifaces[ifaceIface]
		if !ok {
			continue
		}
		out = append(out, interfaceInfoFromProps(path, props))
	}
	return out, nil
}

// CreateInterface implements p2p.ManagerProxy. A failed call is also
// surfaced to the delegate as interface-creation-failed so the interface
// selector can fall back to re-scanning existing interfaces.
func (m *Manager) CreateInterface(name string) error {
	obj := m.conn.Object(BusName, managerPath)
	args := map[string]dbus.Variant{"Ifname": dbus.MakeVariant(name)}
	var path dbus.ObjectPath
	if err := obj.Call(managerIface+".CreateInterface", 0, args).Store(&path); err != nil {
		m.delegate.OnInterfaceCreationFailed(err.Error())
		return fmt.Errorf("create interface %s: %w", name, err)
	}
	return nil
}

// Close implements p2p.ManagerProxy.
func (m *Manager) Close() {
	if m.sigCh != nil {
		m.conn.RemoveSignal(m.sigCh)
	}
}

func (m *Manager) subscribe() error {
	rule := fmt.Sprintf("type='signal',sender='%s',interface='org.freedesktop.DBus.ObjectManager'", BusName)
	if err := m.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return fmt.Errorf("add match for object manager: %w", err)
	}

	m.sigCh = make(chan *dbus.Signal, 10)
	m.conn.Signal(m.sigCh)

	go func() {
		for sig := range m.sigCh {
			switch sig.Name {
			case "org.freedesktop.DBus.ObjectManager.InterfacesAdded":
				m.handleInterfacesAdded(sig)
			case "org.freedesktop.DBus.ObjectManager.InterfacesRemoved":
				m.handleInterfacesRemoved(sig)
			}
		}
	}()
	return nil
}

func (m *Manager) handleInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) != 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return
	}
	props, ok := ifaces[ifaceIface]
	if !ok {
		return
	}
	m.delegate.OnInterfaceAdded(interfaceInfoFromProps(path, props))
}

func (m *Manager) handleInterfacesRemoved(sig *dbus.Signal) {
	if len(sig.Body) != 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	removed, ok := sig.Body[1].([]string)
	if !ok {
		return
	}
	for _, iface := range removed {
		if iface == ifaceIface {
			m.delegate.OnInterfaceRemoved(path)
			return
		}
	}
}

func interfaceInfoFromProps(path dbus.ObjectPath, props map[string]dbus.Variant) p2p.InterfaceInfo {
	info := p2p.InterfaceInfo{Path: path}
	if v, ok := props["Ifname"]; ok {
		info.Name, _ = v.Value().(string)
	}
	if v, ok := props["Capabilities"]; ok {
		if caps, ok := v.Value().([]string); ok {
			for _, c := range caps {
				if c == "p2p" {
					info.P2PReady = true
					break
				}
			}
		}
	}
	return info
}

type nopManagerDelegate struct{}

func (nopManagerDelegate) OnInterfaceAdded(p2p.InterfaceInfo) {}
func (nopManagerDelegate) OnInterfaceRemoved(dbus.ObjectPath) {}
func (nopManagerDelegate) OnInterfaceCreationFailed(string)   {}
