package p2p

import "github.com/sirupsen/logrus"

// InterfaceSelector picks the P2P-capable interface from the manager's
// candidate set (§4.2). It is driven by three triggers, the same
// find-on-signal shape used elsewhere in this codebase: a manager-ready
// scan, individual interface-added notifications, and
// interface-creation-failed (the last so a pre-existing interface can
// still be adopted after a failed create_interface request).
type InterfaceSelector struct {
	log        *logrus.Entry
	dedicated  string // configured P2P interface name; "" means no preference
	manager    ManagerProxy
	onSelected func(InterfaceInfo)

	requestedCreate bool
}

// NewInterfaceSelector builds a selector. onSelected fires at most once per
// Refresh/OnInterfaceAdded/OnInterfaceCreationFailed call that finds a
// match; callers are expected to re-Refresh after releasing a prior
// selection if they want another one picked.
func NewInterfaceSelector(dedicated string, manager ManagerProxy, onSelected func(InterfaceInfo), log *logrus.Entry) *InterfaceSelector {
	return &InterfaceSelector{
		log:        log,
		dedicated:  dedicated,
		manager:    manager,
		onSelected: onSelected,
	}
}

// Refresh re-scans the manager's current interface list (manager-ready).
func (s *InterfaceSelector) Refresh() {
	ifaces, err := s.manager.Interfaces()
	if err != nil {
		s.log.WithError(err).Warn("interfaces() failed")
		return
	}
	s.consider(ifaces)
}

// OnInterfaceAdded reacts to a single newly-plugged interface.
func (s *InterfaceSelector) OnInterfaceAdded(info InterfaceInfo) {
	s.consider([]InterfaceInfo{info})
}

// OnInterfaceCreationFailed falls back to re-scanning the existing
// interfaces, in case create_interface raced with the dedicated interface
// actually appearing on its own.
func (s *InterfaceSelector) OnInterfaceCreationFailed(reason string) {
	s.log.WithField("reason", reason).Warn("create_interface failed; reconsidering existing interfaces")
	s.Refresh()
}

// consider selects the first acceptable candidate, if any, and otherwise
// requests the dedicated interface be created (once).
func (s *InterfaceSelector) consider(candidates []InterfaceInfo) {
	for _, info := range candidates {
		if s.accepts(info) {
			s.onSelected(info)
			return
		}
	}

	if s.dedicated != "" && !s.requestedCreate {
		s.requestedCreate = true
		if err := s.manager.CreateInterface(s.dedicated); err != nil {
			s.log.WithError(err).Warn("create_interface request failed")
		}
	}
}

// accepts is the selection policy (§4.2): if a dedicated interface name is
// configured, only that name is acceptable; otherwise any interface whose
// driver advertises P2P capability is.
func (s *InterfaceSelector) accepts(info InterfaceInfo) bool {
	if s.dedicated != "" {
		return info.Name == s.dedicated
	}
	return info.P2PReady
}
