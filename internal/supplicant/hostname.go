package supplicant

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

// Hostname wraps org.freedesktop.hostname1, the source of the pretty
// hostname and chassis fed into the WPS device-type string (§4.4).
type Hostname struct {
	conn *dbus.Conn
	log  *logrus.Entry

	sigCh chan *dbus.Signal
}

// NewHostname binds a Hostname proxy. Watch must be called separately to
// arm the property-change subscription.
func NewHostname(conn *dbus.Conn, log *logrus.Entry) (*Hostname, error) {
	return &Hostname{conn: conn, log: log}, nil
}

func (h *Hostname) object() dbus.BusObject {
	return h.conn.Object(hostnameBusName, hostnamePath)
}

// PrettyHostname implements p2p.HostnameProxy.
func (h *Hostname) PrettyHostname() string {
	v, err := h.object().GetProperty(hostnameIface + ".PrettyHostname")
	if err != nil {
		h.log.WithError(err).Warn("pretty hostname unavailable")
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

// Chassis implements p2p.HostnameProxy, defaulting to desktop for any
// value the WPS subcategory table doesn't recognize.
func (h *Hostname) Chassis() p2p.Chassis {
	v, err := h.object().GetProperty(hostnameIface + ".Chassis")
	if err != nil {
		h.log.WithError(err).Warn("chassis unavailable; defaulting to desktop")
		return p2p.ChassisDesktop
	}
	s, _ := v.Value().(string)
	switch c := p2p.Chassis(s); c {
	case p2p.ChassisHandset, p2p.ChassisVM, p2p.ChassisContainer, p2p.ChassisServer,
		p2p.ChassisLaptop, p2p.ChassisDesktop, p2p.ChassisTablet, p2p.ChassisWatch:
		return c
	default:
		return p2p.ChassisDesktop
	}
}

// Watch implements p2p.HostnameProxy, arming a PropertiesChanged
// subscription on hostnamePath and invoking onChange whenever PrettyHostname
// or Chassis is reported as having changed.
func (h *Hostname) Watch(onChange func()) error {
	rule := fmt.Sprintf(
		"type='signal',sender='%s',path='%s',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged'",
		hostnameBusName, hostnamePath,
	)
	if err := h.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return fmt.Errorf("add match for %s: %w", hostnamePath, err)
	}

	h.sigCh = make(chan *dbus.Signal, 10)
	h.conn.Signal(h.sigCh)

	go func() {
		for sig := range h.sigCh {
			h.handle(sig, onChange)
		}
	}()
	return nil
}

func (h *Hostname) handle(sig *dbus.Signal, onChange func()) {
	if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" || len(sig.Body) != 3 {
		return
	}
	iface, _ := sig.Body[0].(string)
	if iface != hostnameIface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	if _, ok := changed["PrettyHostname"]; ok {
		onChange()
		return
	}
	if _, ok := changed["Chassis"]; ok {
		onChange()
	}
}

// Close releases the match rule and stops the signal-draining goroutine.
func (h *Hostname) Close() {
	if h.sigCh != nil {
		h.conn.RemoveSignal(h.sigCh)
	}
}
