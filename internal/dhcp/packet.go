package dhcp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// Minimal RFC 2131 message layout: only the fields the single-lease server
// needs to read (op/xid/chaddr/message-type) or write (yiaddr/siaddr plus
// the option set below). Grounded on the pack's own hand-rolled DHCP codec
// (no wire-format library is used anywhere in the corpus for this
// protocol) rather than a byte-for-byte copy of RFC 2131's full packet.
const (
	opBootRequest = 1
	opBootReply   = 2

	htypeEthernet = 1

	dhcpDiscover = 1
	dhcpOffer    = 2
	dhcpRequest  = 3
	dhcpACK      = 5
	dhcpNAK      = 6

	optMessageType        = 53
	optServerIdentifier   = 54
	optSubnetMask         = 1
	optRouter             = 3
	optLeaseTime          = 51
	optEnd                = 255

	magicCookie = 0x63825363

	headerLen = 236 // op..file, before the magic cookie
)

type packet struct {
	op      byte
	xid     uint32
	chaddr  net.HardwareAddr
	ciaddr  net.IP
	yiaddr  net.IP
	siaddr  net.IP
	msgType byte
}

func parsePacket(data []byte) (packet, error) {
	if len(data) < headerLen+4 {
		return packet{}, fmt.Errorf("dhcp packet too short: %d bytes", len(data))
	}
	r := bytes.NewReader(data)

	var p packet
	var htype, hlen, hops byte
	var secs, flags uint16
	binary.Read(r, binary.BigEndian, &p.op)
	binary.Read(r, binary.BigEndian, &htype)
	binary.Read(r, binary.BigEndian, &hlen)
	binary.Read(r, binary.BigEndian, &hops)
	binary.Read(r, binary.BigEndian, &p.xid)
	binary.Read(r, binary.BigEndian, &secs)
	binary.Read(r, binary.BigEndian, &flags)

	ipBuf := make([]byte, 4)
	r.Read(ipBuf)
	p.ciaddr = net.IP(append([]byte(nil), ipBuf...))
	r.Read(ipBuf) // yiaddr, unused on request
	r.Read(ipBuf) // siaddr, unused on request
	r.Read(ipBuf) // giaddr, unused (no relay support)

	chaddr := make([]byte, 16)
	r.Read(chaddr)
	if int(hlen) > len(chaddr) {
		hlen = byte(len(chaddr))
	}
	p.chaddr = net.HardwareAddr(chaddr[:hlen])

	r.Seek(64+128, 1) // sname, file

	var cookie uint32
	binary.Read(r, binary.BigEndian, &cookie)
	if cookie != magicCookie {
		return packet{}, fmt.Errorf("bad dhcp magic cookie")
	}

	for {
		tByte := make([]byte, 1)
		if _, err := r.Read(tByte); err != nil {
			break
		}
		t := tByte[0]
		if t == optEnd {
			break
		}
		if t == 0 { // pad
			continue
		}
		lByte := make([]byte, 1)
		if _, err := r.Read(lByte); err != nil {
			break
		}
		val := make([]byte, lByte[0])
		r.Read(val)
		if t == optMessageType && len(val) == 1 {
			p.msgType = val[0]
		}
	}
	return p, nil
}

// buildReply constructs the OFFER/ACK reply for a single-lease server.
func buildReply(req packet, msgType byte, yiaddr, server, mask, router net.IP, leaseSeconds uint32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, byte(opBootReply))
	binary.Write(buf, binary.BigEndian, byte(htypeEthernet))
	binary.Write(buf, binary.BigEndian, byte(len(req.chaddr)))
	binary.Write(buf, binary.BigEndian, byte(0)) // hops
	binary.Write(buf, binary.BigEndian, req.xid)
	binary.Write(buf, binary.BigEndian, uint16(0)) // secs
	binary.Write(buf, binary.BigEndian, uint16(0)) // flags
	buf.Write(net.IPv4zero.To4())                  // ciaddr
	buf.Write(yiaddr.To4())
	buf.Write(server.To4())
	buf.Write(net.IPv4zero.To4()) // giaddr

	chaddr := make([]byte, 16)
	copy(chaddr, req.chaddr)
	buf.Write(chaddr)
	buf.Write(make([]byte, 64))  // sname
	buf.Write(make([]byte, 128)) // file

	binary.Write(buf, binary.BigEndian, uint32(magicCookie))

	writeOpt(buf, optMessageType, []byte{msgType})
	writeOpt(buf, optServerIdentifier, server.To4())
	writeOpt(buf, optSubnetMask, mask.To4())
	writeOpt(buf, optRouter, router.To4())

	lease := make([]byte, 4)
	binary.BigEndian.PutUint32(lease, leaseSeconds)
	writeOpt(buf, optLeaseTime, lease)

	buf.WriteByte(optEnd)
	return buf.Bytes()
}

func writeOpt(buf *bytes.Buffer, code byte, val []byte) {
	buf.WriteByte(code)
	buf.WriteByte(byte(len(val)))
	buf.Write(val)
}
