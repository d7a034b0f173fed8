// Package utcp implements a small user-space TCP/IP core: IPv4 datagram
// handling and a TCP protocol control block state machine, built around a
// blocking, condition-variable driven command API rather than callbacks.
package utcp

//go:generate stringer -type=IPProto -linecomment -output stringers.go .

// IPProto represents the IP protocol number carried in the IPv4 protocol field.
type IPProto uint8

// IP protocol numbers in use by this module. The full IANA registry is not
// reproduced since only a handful of protocols are ever routed here.
const (
	IPProtoICMP IPProto = 1  // Internet Control Message [RFC792]
	IPProtoTCP  IPProto = 6  // Transmission Control [RFC793]
	IPProtoUDP  IPProto = 17 // User Datagram [RFC768]
)

func (p IPProto) String() string {
	switch p {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	default:
		return "proto(?)"
	}
}

const (
	sizeHeaderIPv4 = 20
	sizeHeaderTCP  = 20
)
