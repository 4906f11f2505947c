package supplicant

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// Presence watches BusName's ownership on the system bus, reporting
// appear/disappear the same way other bus-name-presence watchers in this
// codebase do, retargeted from net.connman.iwd to fi.w1.wpa_supplicant1.
type Presence struct {
	conn *dbus.Conn
	log  *logrus.Entry

	sigCh chan *dbus.Signal
	done  chan struct{}
}

// NewPresence builds a Presence watcher over conn. Watch must be called to
// actually arm it.
func NewPresence(conn *dbus.Conn, log *logrus.Entry) *Presence {
	return &Presence{conn: conn, log: log}
}

// Watch subscribes to NameOwnerChanged for BusName and fires onAppear
// immediately if the service already has an owner, the same
// subscribe-then-check-current-owner sequence used elsewhere in this
// codebase to handle the boot race where the service is already up
// before Setup runs.
func (p *Presence) Watch(onAppear, onDisappear func()) error {
	rule := fmt.Sprintf(
		"type='signal',sender='org.freedesktop.DBus',interface='org.freedesktop.DBus',member='NameOwnerChanged',arg0='%s'",
		BusName,
	)
	if err := p.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return fmt.Errorf("add match for %s: %w", BusName, err)
	}

	p.sigCh = make(chan *dbus.Signal, 10)
	p.done = make(chan struct{})
	p.conn.Signal(p.sigCh)

	go func() {
		for {
			select {
			case sig, ok := <-p.sigCh:
				if !ok {
					return
				}
				p.handle(sig, onAppear, onDisappear)
			case <-p.done:
				return
			}
		}
	}()

	if p.hasOwner() {
		onAppear()
	}
	return nil
}

func (p *Presence) handle(sig *dbus.Signal, onAppear, onDisappear func()) {
	if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	if name != BusName {
		return
	}
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	switch {
	case oldOwner == "" && newOwner != "":
		p.log.Info("supplicant service appeared")
		onAppear()
	case oldOwner != "" && newOwner == "":
		p.log.Warn("supplicant service disappeared")
		onDisappear()
	}
}

func (p *Presence) hasOwner() bool {
	var owner string
	err := p.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, BusName).Store(&owner)
	return err == nil && owner != ""
}

// Close releases the match rule and stops the signal-draining goroutine.
func (p *Presence) Close() {
	if p.done != nil {
		close(p.done)
	}
	if p.sigCh != nil {
		p.conn.RemoveSignal(p.sigCh)
	}
}
