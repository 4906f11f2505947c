package dhcp

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

// Client runs the client role's side of the group's DHCP exchange: it
// shells out to dhcpcd with the same exec.Command subprocess idiom used
// elsewhere in this codebase for external network tooling, and watches
// RTM_NEWADDR for the assigned lease rather than scraping dhcpcd's stdout.
type Client struct {
	log  *logrus.Entry
	post func(p2p.Event)

	cmd     *exec.Cmd
	watcher *addressWatcher

	mu      sync.Mutex
	stopped bool
}

// NewClient launches dhcpcd on ifaceName and starts watching for its
// assigned address.
func NewClient(ifaceName string, post func(p2p.Event), log *logrus.Entry) (*Client, error) {
	watcher, err := newAddressWatcher(ifaceName, log)
	if err != nil {
		return nil, fmt.Errorf("dhcp client address watcher: %w", err)
	}

	cmd := exec.Command("dhcpcd", "-4", "-q", ifaceName)
	if err := cmd.Start(); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("start dhcpcd on %s: %w", ifaceName, err)
	}

	c := &Client{log: log.WithField("iface", ifaceName), post: post, cmd: cmd, watcher: watcher}
	go watcher.run(c.onAddress)
	go c.monitor()
	return c, nil
}

func (c *Client) onAddress(addr string) {
	c.post(p2p.Event{
		Kind:       p2p.EventDHCPAddressAssigned,
		LocalAddr:  addr,
		RemoteAddr: serverIP, // wpa_supplicant's P2P GO always takes the fixed .1 address
	})
}

// monitor waits for dhcpcd to exit. An exit that Stop didn't request means
// the lease was lost out from under us; report it the same way the server
// role reports a failed socket.
func (c *Client) monitor() {
	err := c.cmd.Wait()

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}

	c.log.WithError(err).Warn("dhcpcd exited unexpectedly")
	c.post(p2p.Event{Kind: p2p.EventDHCPTerminated})
}

// Stop implements p2p.DHCPEndpoint.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.watcher.Close()
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}
