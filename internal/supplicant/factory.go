package supplicant

import (
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

// Bind builds the p2p.ManagerDeps.NewBind function: given the Registry and
// event-post function Manager owns internally, it returns a
// p2p.SupplicantFactory that constructs a P2PDevice proxy bound to
// whatever interface InterfaceSelector chose. The chassis argument the
// factory receives is unused here — SetDeviceConfiguration is pushed by
// LifecycleController after the factory returns.
func Bind(conn *dbus.Conn, log *logrus.Entry) func(registry *p2p.Registry, post func(p2p.Event)) p2p.SupplicantFactory {
	return func(registry *p2p.Registry, post func(p2p.Event)) p2p.SupplicantFactory {
		return func(iface p2p.InterfaceInfo, _ p2p.Chassis) (p2p.SupplicantOps, error) {
			return NewP2PDevice(conn, iface.Path, registry, post, log.WithField("iface", iface.Name))
		}
	}
}
