// Package dhcp implements the DHCP collaborator the Configuration state
// starts on the group interface: a minimal single-lease server for the GO
// role, and a dhcpcd-backed client for the client role. Both report the
// assigned address back as a posted p2p.Event rather than mutating shared
// state directly, mirroring the supplicant package's signal-to-event
// translation.
package dhcp

import (
	"fmt"
	"syscall"

	"github.com/jsimonetti/rtnetlink"
	"github.com/mdlayher/netlink"
	"github.com/sirupsen/logrus"
)

const (
	rtmNewAddr = syscall.RTM_NEWADDR

	rtmgrpIPv4Ifaddr = 0x10
)

// addressWatcher watches RTM_NEWADDR for a single interface and reports
// every address it sees, grounded on netlink.Watcher's raw-conn-plus-rtConn
// pairing (handleAddressMessage/fetchInterfaces) rather than scraping a
// DHCP client's stdout.
type addressWatcher struct {
	conn   *netlink.Conn
	rtConn *rtnetlink.Conn
	log    *logrus.Entry

	ifaceName string
	stop      chan struct{}
}

func newAddressWatcher(ifaceName string, log *logrus.Entry) (*addressWatcher, error) {
	conn, err := netlink.Dial(syscall.NETLINK_ROUTE, &netlink.Config{Groups: rtmgrpIPv4Ifaddr})
	if err != nil {
		return nil, fmt.Errorf("dial netlink: %w", err)
	}
	rtConn, err := rtnetlink.Dial(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial rtnetlink: %w", err)
	}
	return &addressWatcher{conn: conn, rtConn: rtConn, log: log, ifaceName: ifaceName, stop: make(chan struct{})}, nil
}

// run blocks, delivering every address it resolves for the watched
// interface to onAddress, until Close is called.
func (w *addressWatcher) run(onAddress func(addr string)) {
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		msgs, err := w.conn.Receive()
		if err != nil {
			select {
			case <-w.stop:
				return
			default:
			}
			w.log.WithError(err).Warn("netlink receive error")
			continue
		}
		for _, msg := range msgs {
			if msg.Header.Type != rtmNewAddr {
				continue
			}
			if addr, ok := w.resolve(msg.Data); ok {
				onAddress(addr)
			}
		}
	}
}

func (w *addressWatcher) resolve(data []byte) (string, bool) {
	var msg rtnetlink.AddressMessage
	if err := msg.UnmarshalBinary(data); err != nil {
		w.log.WithError(err).Debug("failed to parse address message")
		return "", false
	}

	links, err := w.rtConn.Link.List()
	if err != nil {
		w.log.WithError(err).Debug("link list failed")
		return "", false
	}
	var name string
	for _, link := range links {
		if link.Index == msg.Index {
			name = link.Attributes.Name
			break
		}
	}
	if name != w.ifaceName {
		return "", false
	}
	if msg.Attributes.Address == nil {
		return "", false
	}
	return msg.Attributes.Address.String(), true
}

func (w *addressWatcher) Close() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	w.conn.Close()
	w.rtConn.Close()
}
