package ipv4

import (
	"github.com/soypat/utcp"
)

// Datagram is the result of successfully validating and unwrapping an inbound
// IPv4 frame: the fields a protocol handler (TCP input) needs to proceed.
type Datagram struct {
	Src, Dst Addr
	Protocol utcp.IPProto
	Payload  []byte
}

// Input validates an inbound IPv4 datagram addressed to iface and returns its
// unwrapped fields. It performs header validation only; delivery to a
// protocol handler is the caller's responsibility (see package pcb's
// TCPInput). Datagrams failing any check are dropped with a descriptive
// error and never partially processed.
func Input(iface *Interface, frame []byte) (Datagram, error) {
	ifrm, err := NewFrame(frame)
	if err != nil {
		return Datagram{}, err
	}
	if err := ifrm.ValidateSize(); err != nil {
		return Datagram{}, err
	}
	version, _ := ifrm.VersionAndIHL()
	if version != 4 {
		return Datagram{}, utcp.ErrBadVersion
	}
	// Fragment detection: the MF bit (0x2000) or a non-zero fragment offset
	// marks a fragment, which this core cannot reassemble. The DF bit
	// (0x4000) is deliberately not treated as a drop condition here: it is a
	// request from the sender, not a statement about this datagram's own
	// fragmentation.
	if ifrm.Flags().IsFragment() {
		return Datagram{}, utcp.ErrFragmented
	}
	gotCRC := ifrm.CRC()
	wantCRC := ifrm.CalculateHeaderCRC()
	if gotCRC != wantCRC {
		return Datagram{}, utcp.ErrBadCRC
	}
	dst := AddrFrom4(*ifrm.DestinationAddr())
	if iface != nil && !iface.AcceptsDestination(dst) {
		return Datagram{}, utcp.ErrBadAddr
	}
	src := AddrFrom4(*ifrm.SourceAddr())
	return Datagram{
		Src:      src,
		Dst:      dst,
		Protocol: ifrm.Protocol(),
		Payload:  ifrm.Payload(),
	}, nil
}
