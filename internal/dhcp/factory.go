package dhcp

import (
	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

// ops implements p2p.DHCPOps, starting the Server or Client collaborator
// per the local role StartServer/StartClient names (invariant I2: exactly
// one is ever active for a given group).
type ops struct {
	post func(p2p.Event)
	log  *logrus.Entry
}

// NewOps builds the p2p.ManagerDeps.NewDHCP function: given the event-post
// function Manager owns internally, it returns the p2p.DHCPOps instance
// StateMachine drives on entering Configuration state.
func NewOps(log *logrus.Entry) func(post func(p2p.Event)) p2p.DHCPOps {
	return func(post func(p2p.Event)) p2p.DHCPOps {
		return &ops{post: post, log: log}
	}
}

func (o *ops) StartServer(ifaceName string) (p2p.DHCPEndpoint, error) {
	return NewServer(ifaceName, o.post, o.log)
}

func (o *ops) StartClient(ifaceName string) (p2p.DHCPEndpoint, error) {
	return NewClient(ifaceName, o.post, o.log)
}
