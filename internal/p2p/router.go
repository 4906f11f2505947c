package p2p

import (
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// Router is the central event demultiplexer (§4.6). It is the only
// component that advances device state; every other component either
// mutates its own fields or calls Post to request a state advance. A
// single goroutine drains the event channel, so Apply never runs
// concurrently with itself (§5).
type Router struct {
	sm  *StateMachine
	log *logrus.Entry

	events chan Event
	done   chan struct{}

	mu    sync.RWMutex
	token uint64
}

// NewRouter creates a Router with a generously buffered event channel —
// supplicant/DHCP/hostname callbacks must never block on Post.
func NewRouter(sm *StateMachine, log *logrus.Entry) *Router {
	return &Router{
		sm:     sm,
		log:    log,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
}

// SetToken installs the live session token (§5, §9). Events tagged with a
// different, non-zero token are dropped without being applied — they
// belong to a lifecycle cycle that has already ended.
func (r *Router) SetToken(token uint64) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// Token returns the current live session token.
func (r *Router) Token() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

// Post enqueues an event for the loop goroutine. Safe to call from any
// goroutine (D-Bus signal handlers, DHCP callbacks, timer fires).
func (r *Router) Post(ev Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// Run drains events until Stop is called. It must be started exactly once;
// Manager.Setup starts it on its own goroutine.
func (r *Router) Run() {
	for {
		select {
		case ev := <-r.events:
			if r.accept(ev) {
				r.sm.Apply(ev)
			} else {
				r.log.WithField("kind", ev.Kind).Debug("event dropped: stale identity")
			}
		case <-r.done:
			return
		}
	}
}

// Stop ends the loop goroutine. Idempotent.
func (r *Router) Stop() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// accept applies the identity checks from §4.6: events are first checked
// against the live session token, then — for events scoped to a device or
// the active group interface — against current_device/current_group_iface.
// Mismatches are silently ignored; they belong to a prior attempt.
func (r *Router) accept(ev Event) bool {
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()
	if ev.Token != 0 && token != 0 && ev.Token != token {
		return false
	}

	switch ev.Kind {
	case EventPeerConnectFailed, EventGoNegotiationFailure, EventGoNegotiationSuccess, EventConnectTimeout, EventGroupStarted:
		return r.isCurrentDevice(ev.Device)
	case EventGroupInterfaceReady, EventDHCPAddressAssigned, EventDHCPTerminated:
		return ev.IfacePath == "" || r.isCurrentGroupIface(ev.IfacePath)
	case EventGroupFinished:
		return ev.GroupPath == "" || r.isCurrentGroup(ev.GroupPath)
	default:
		return true
	}
}

func (r *Router) isCurrentDevice(path dbus.ObjectPath) bool {
	cur, ok := r.sm.CurrentDevice()
	return ok && path != "" && cur == path
}

func (r *Router) isCurrentGroupIface(path dbus.ObjectPath) bool {
	group, ok := r.sm.CurrentGroup()
	return ok && group.IfacePath == path
}

func (r *Router) isCurrentGroup(path dbus.ObjectPath) bool {
	group, ok := r.sm.CurrentGroup()
	return ok && group.Path == path
}

// nextSessionToken generates the next session token for a setup()/release()
// cycle. A monotonically increasing counter is sufficient: tokens are only
// ever compared for equality, never ordered.
var tokenCounter uint64

func nextSessionToken() uint64 {
	return atomic.AddUint64(&tokenCounter, 1)
}
