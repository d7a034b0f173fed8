package ipv4

import (
	"strconv"
)

const (
	sizeHeader = 20
	// HeaderLen is the minimum (no options) length of an IPv4 header in bytes.
	HeaderLen = sizeHeader
)

// Addr is an IPv4 address held as a host-endian uint32 value for fast
// comparison and arithmetic. Use [AddrFrom4] to build one from its wire
// bytes and [Addr.String]/[Addr.As4] to go back to a textual or byte form.
type Addr uint32

// Well-known address sentinels.
const (
	ANY       Addr = 0
	Broadcast Addr = 0xffffffff
)

// AddrFrom4 builds an Addr from its big-endian (network order) byte representation.
func AddrFrom4(b [4]byte) Addr {
	return Addr(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// As4 returns the big-endian (network order) byte representation of addr.
func (addr Addr) As4() [4]byte {
	return [4]byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

// String returns the canonical dotted-decimal textual form of addr.
func (addr Addr) String() string {
	b := addr.As4()
	buf := make([]byte, 0, 15)
	for i, octet := range b {
		if i > 0 {
			buf = append(buf, '.')
		}
		buf = strconv.AppendUint(buf, uint64(octet), 10)
	}
	return string(buf)
}

// IsUnspecified reports whether addr is the zero/ANY address.
func (addr Addr) IsUnspecified() bool { return addr == ANY }

// Mask returns addr masked by netmask, i.e. the network prefix of addr under netmask.
func (addr Addr) Mask(netmask Addr) Addr { return addr & netmask }

// ToS represents the Traffic Class (a.k.a Type of Service). It is 8 bits long. 6 MSB are Differentiated Services; 2 LSB are Explicit Congestion Notification.
type ToS uint8

// DS returns the top 6 bits of the IPv4 ToS holding the Differentiated Services field
// which is used to classify packets.
func (tos ToS) DS() uint8 { return uint8(tos) >> 2 }

// ECN is the Explicit Congestion Notification which provides congestion control and non-congestion control traffic.
func (tos ToS) ECN() uint8 { return uint8(tos & 0b11) }

// Flags holds fragmentation field data of an IPv4 header. It is 16 bits long: the top
// 3 bits are the reserved/DF/MF flags and the bottom 13 bits are the fragment offset.
type Flags uint16

// IsEvil returns true if the reserved bit is set as per [RFC3514].
//
// [RFC3514]: https://datatracker.ietf.org/doc/html/rfc3514
func (f Flags) IsEvil() bool { return f&0x8000 != 0 }

// DontFragment specifies whether the datagram can not be fragmented.
// This can be used when sending packets to a host that does not have resources to perform reassembly of fragments.
// If the DontFragment(DF) flag is set, and fragmentation is required to route the packet, then the packet is dropped.
func (f Flags) DontFragment() bool { return f&0x4000 != 0 }

// MoreFragments is cleared for unfragmented packets.
// For fragmented packets, all fragments except the last have the MF flag set.
// The last fragment has a non-zero Fragment Offset field, so it can still be differentiated from an unfragmented packet.
func (f Flags) MoreFragments() bool { return f&0x2000 != 0 }

// FragmentOffset specifies the offset of a particular fragment relative to the beginning of the original unfragmented IP datagram.
// Fragments are specified in units of 8 bytes, which is why fragment lengths are always a multiple of 8; except the last, which may be smaller.
// The fragmentation offset value for the first fragment is always 0.
func (f Flags) FragmentOffset() uint16 { return uint16(f) & 0x1fff }

// IsFragment reports whether f marks the datagram as part of a fragmented transmission,
// i.e. either the MF bit is set or the fragment offset is non-zero. DF is not considered
// here; a datagram can request "don't fragment" without itself being a fragment.
func (f Flags) IsFragment() bool { return f.MoreFragments() || f.FragmentOffset() != 0 }
