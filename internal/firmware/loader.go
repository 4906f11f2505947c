// Package firmware loads the P2P-capable firmware/driver stack some
// dedicated interfaces need before they show up in wpa_supplicant's
// interface list, using the same exec.Command subprocess idiom as the
// other external-tooling collaborators in this codebase.
package firmware

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

// Loader implements p2p.FirmwareLoader. Needed stats a sentinel path that
// firmware loading creates, so a second Setup() after a crash doesn't
// re-run a loader command that already succeeded. Load runs the configured
// command and waits for it, the synchronous half of the "issue request,
// deliver outcome as a later event" asynchrony every other collaborator
// uses — LifecycleController calls it inline before proceeding past
// presence, since nothing downstream can start without it.
type Loader struct {
	log          *logrus.Entry
	command      string
	args         []string
	sentinelGlob string
}

// NewLoader builds a Loader. command/args is run as-is (e.g. a vendor
// firmware-load script); sentinel is a path under /sys or /dev whose
// existence indicates the firmware is already loaded for iface.
func NewLoader(command string, args []string, sentinel string, log *logrus.Entry) *Loader {
	return &Loader{log: log, command: command, args: args, sentinelGlob: sentinel}
}

// Needed implements p2p.FirmwareLoader.
func (l *Loader) Needed(iface string) bool {
	if l.sentinelGlob == "" {
		return true
	}
	_, err := os.Stat(l.sentinelGlob)
	return err != nil
}

// Load implements p2p.FirmwareLoader.
func (l *Loader) Load(ctx context.Context, iface string) error {
	if l.command == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, l.command, append(append([]string{}, l.args...), iface)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("firmware load for %s: %w: %s", iface, err, out)
	}
	l.log.WithField("iface", iface).Info("firmware loaded")
	return nil
}

var _ p2p.FirmwareLoader = (*Loader)(nil)
