package dhcp

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"aethercast/internal/p2p"
)

const (
	defaultLeaseSeconds = 3600
	serverIP            = "192.168.49.1"
	clientIP            = "192.168.49.100"
	subnetMask          = "255.255.255.0"
)

// Server is a minimal single-lease DHCP server bound to the group
// interface, played by the GO role (invariant I2: exactly one of
// Server/Client per group). It answers DISCOVER with a fixed OFFER and
// REQUEST with the matching ACK, then reports the address back once —
// there is only ever one client on a P2P group.
type Server struct {
	log  *logrus.Entry
	post func(p2p.Event)

	conn *net.UDPConn

	mu       sync.Mutex
	assigned bool
	stopped  bool
}

// NewServer binds a UDP socket on :67 and starts answering DISCOVER/REQUEST
// for ifaceName. The server's own address (serverIP) must already be
// configured on ifaceName — that is the GO role's responsibility, done
// before Configuration state is entered.
func NewServer(ifaceName string, post func(p2p.Event), log *logrus.Entry) (*Server, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: 67}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen dhcp server socket: %w", err)
	}

	s := &Server{log: log.WithField("iface", ifaceName), post: post, conn: conn}
	go s.serve(ifaceName)
	return s, nil
}

func (s *Server) serve(ifaceName string) {
	buf := make([]byte, 1500)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if !stopped {
				s.log.WithError(err).Warn("dhcp server socket failed")
				s.post(p2p.Event{Kind: p2p.EventDHCPTerminated})
			}
			return
		}
		req, err := parsePacket(buf[:n])
		if err != nil {
			continue
		}
		if req.op != opBootRequest {
			continue
		}
		s.handle(ifaceName, req)
	}
}

func (s *Server) handle(ifaceName string, req packet) {
	server := net.ParseIP(serverIP)
	client := net.ParseIP(clientIP)
	mask := net.ParseIP(subnetMask)

	switch req.msgType {
	case dhcpDiscover:
		reply := buildReply(req, dhcpOffer, client, server, mask, server, defaultLeaseSeconds)
		s.broadcast(reply)
	case dhcpRequest:
		reply := buildReply(req, dhcpACK, client, server, mask, server, defaultLeaseSeconds)
		s.broadcast(reply)

		s.mu.Lock()
		already := s.assigned
		s.assigned = true
		s.mu.Unlock()
		if !already {
			s.post(p2p.Event{
				Kind:       p2p.EventDHCPAddressAssigned,
				IfacePath:  "", // the router accepts DHCP events with no path; the state machine checks for Configuration
				LocalAddr:  serverIP,
				RemoteAddr: client.String(),
			})
		}
	}
}

func (s *Server) broadcast(reply []byte) {
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: 68}
	if _, err := s.conn.WriteToUDP(reply, dst); err != nil {
		s.log.WithError(err).Warn("dhcp server reply failed")
	}
}

// Stop implements p2p.DHCPEndpoint.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.conn.Close()
}
