package ipv4

import (
	"log/slog"
	"sync"

	"github.com/soypat/utcp"
)

// Device is the abstract link-layer sender an [Interface] transmits finished
// IPv4 datagrams through. ARP/neighbor resolution, Ethernet framing and the
// physical device itself live on the other side of this boundary and are not
// part of this package.
type Device interface {
	Send(frame []byte) error
}

// Interface associates a unicast address and netmask with a [Device] capable
// of sending on its behalf. The broadcast address is derived from unicast and
// netmask: unicast | ^netmask.
type Interface struct {
	Unicast Addr
	Netmask Addr
	MTU     int
	Device  Device
	log     *slog.Logger
}

// NewInterface builds an Interface from the given fields as they are. mtu is
// not checked against the IPv4+TCP header size.
func NewInterface(unicast, netmask Addr, mtu int, dev Device) Interface {
	return Interface{Unicast: unicast, Netmask: netmask, MTU: mtu, Device: dev}
}

// SetLogger attaches a logger that records every outbound datagram at debug level.
func (ifc *Interface) SetLogger(log *slog.Logger) { ifc.log = log }

// Broadcast returns the interface's directed-broadcast address: unicast | ^netmask.
func (ifc *Interface) Broadcast() Addr {
	return ifc.Unicast | ^ifc.Netmask
}

// AcceptsDestination reports whether a datagram addressed to dst should be
// delivered locally by this interface: its own unicast address, the limited
// broadcast address, or its directed-broadcast address.
func (ifc *Interface) AcceptsDestination(dst Addr) bool {
	return dst == ifc.Unicast || dst == Broadcast || dst == ifc.Broadcast()
}

// Output builds an IPv4 header around payload and hands the finished datagram
// to the interface's Device. This is the concrete stand-in for the external
// `ip_output(protocol, payload, src, dst)` collaborator.
func (ifc *Interface) Output(proto utcp.IPProto, payload []byte, src, dst Addr) error {
	if src.IsUnspecified() {
		src = ifc.Unicast
	}
	total := sizeHeader + len(payload)
	buf := make([]byte, total)
	ifrm, err := NewFrame(buf)
	if err != nil {
		return err
	}
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetToS(0)
	ifrm.SetTotalLength(uint16(total))
	ifrm.SetID(0)
	ifrm.SetFlags(0)
	ifrm.SetTTL(64)
	ifrm.SetProtocol(proto)
	srcB := src.As4()
	dstB := dst.As4()
	*ifrm.SourceAddr() = srcB
	*ifrm.DestinationAddr() = dstB
	copy(ifrm.Payload(), payload)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	if ifc.log != nil {
		ifc.log.Debug("ipv4:output", slog.String("src", src.String()), slog.String("dst", dst.String()), slog.Int("len", len(payload)))
	}
	return ifc.Device.Send(buf)
}

// Registry is a minimal routing table: a list of interfaces searched in
// order for the interface whose network contains a destination address. It
// is the concrete stand-in for the external `ip_route_get_iface` collaborator.
type Registry struct {
	mu     sync.Mutex
	ifaces []*Interface
}

// Add registers iface with the registry.
func (r *Registry) Add(iface *Interface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ifaces = append(r.ifaces, iface)
}

// RouteGetIface returns the interface that should be used to reach dst: the
// first registered interface whose network (unicast masked by netmask)
// contains dst, falling back to the first registered interface if none
// matches (a default-route approximation).
func (r *Registry) RouteGetIface(dst Addr) (*Interface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ifc := range r.ifaces {
		if dst.Mask(ifc.Netmask) == ifc.Unicast.Mask(ifc.Netmask) {
			return ifc, nil
		}
	}
	if len(r.ifaces) > 0 {
		return r.ifaces[0], nil
	}
	return nil, utcp.ErrNoRoute
}

// InterfaceFor returns the registered interface that would accept dst as a
// local delivery address, used by inbound processing to pick the receiving
// interface for address-acceptance checks.
func (r *Registry) InterfaceFor(dst Addr) (*Interface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ifc := range r.ifaces {
		if ifc.AcceptsDestination(dst) {
			return ifc, true
		}
	}
	return nil, false
}
