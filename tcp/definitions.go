// Package tcp implements the wire-level pieces of TCP: sequence-number
// arithmetic, flags, connection states, segment representation and the
// header codec. The connection state machine itself lives in package pcb,
// which builds on top of these primitives.
package tcp

import (
	"math/bits"
)

// Value is a TCP sequence or acknowledgment number: a 32-bit value that wraps
// around modulo 2^32. Comparisons must go through [Value.LessThan] and
// friends rather than the built-in operators, since a numerically smaller
// value is not necessarily "earlier" in sequence space once the space has
// wrapped.
type Value uint32

// Size is a span of sequence space, i.e. a difference between two [Value]s
// or a segment/window length in octets.
type Size uint32

// Add returns v advanced by sz octets of sequence space.
func Add(v Value, sz Size) Value { return v + Value(sz) }

// Sizeof returns the modular distance from a to b, i.e. how many octets of
// sequence space separate a (earlier) from b (later). Sizeof(a,a) is 0.
func Sizeof(a, b Value) Size { return Size(b - a) }

// LessThan reports whether v is strictly before other in sequence space,
// using modular (wraparound-aware) comparison. This is the RFC 793 relation
// often written SEG.SEQ < RCV.NXT, which must never be implemented with a
// plain integer "<".
func (v Value) LessThan(other Value) bool {
	return int32(v-other) < 0
}

// LessThanEq reports whether v is before or equal to other in sequence space.
func (v Value) LessThanEq(other Value) bool {
	return v == other || v.LessThan(other)
}

// InWindow reports whether v lies in the half-open window [start, start+size)
// of sequence space, with wraparound-aware comparison. A zero-sized window
// never contains any value.
func (v Value) InWindow(start Value, size Size) bool {
	if size == 0 {
		return false
	}
	return Sizeof(start, v) < size
}

// UpdateForward advances v in place by sz octets of sequence space.
func (v *Value) UpdateForward(sz Size) { *v += Value(sz) }

// Segment represents an incoming/outgoing TCP segment in the sequence space,
// the data this module's FSM and output engine operate on instead of the raw
// wire bytes.
type Segment struct {
	SEQ     Value // sequence number of the first data octet (or ISN if SYN set).
	ACK     Value // acknowledgment number, meaningful only if ACK flag set.
	DATALEN Size  // number of payload octets, not counting SYN/FIN.
	WND     Size  // advertised window.
	Flags   Flags
}

// LEN returns the length of the segment in sequence-space octets, including
// the one octet each consumed by SYN and FIN.
func (seg *Segment) LEN() Size {
	add := Size(seg.Flags>>0) & 1 // FIN bit
	add += Size(seg.Flags>>1) & 1 // SYN bit
	return seg.DATALEN + add
}

// Last returns the sequence number of the segment's final octet.
func (seg *Segment) Last() Value {
	seglen := seg.LEN()
	if seglen == 0 {
		return seg.SEQ
	}
	return Add(seg.SEQ, seglen) - 1
}

// Flags is a TCP flags bitmask, e.g. SYN, FIN, ACK.
type Flags uint16

const (
	FlagFIN Flags = 1 << iota // FlagFIN - No more data from sender.
	FlagSYN                   // FlagSYN - Synchronize sequence numbers.
	FlagRST                   // FlagRST - Reset the connection.
	FlagPSH                   // FlagPSH - Push function.
	FlagACK                   // FlagACK - Acknowledgment field significant.
	FlagURG                   // FlagURG - Urgent pointer field significant.
)

const flagMask = 0x3f

// Commonly used flag unions.
const (
	synack = FlagSYN | FlagACK
	rstack = FlagRST | FlagACK
	pshack = FlagPSH | FlagACK
)

// HasAll checks if mask bits are all set in the receiver flags.
func (flags Flags) HasAll(mask Flags) bool { return flags&mask == mask }

// HasAny checks if one or more mask bits are set in receiver flags.
func (flags Flags) HasAny(mask Flags) bool { return flags&mask != 0 }

// Mask returns the flags with non-flag bits unset.
func (flags Flags) Mask() Flags { return flags & flagMask }

// String returns a human readable flag string, e.g. "[SYN,ACK]".
func (flags Flags) String() string {
	switch flags {
	case 0:
		return "[]"
	case synack:
		return "[SYN,ACK]"
	case rstack:
		return "[RST,ACK]"
	case pshack:
		return "[PSH,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount16(uint16(flags)))
	buf = append(buf, '[')
	buf = flags.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends a human readable flag string to b, returning the extended buffer.
func (flags Flags) AppendFormat(b []byte) []byte {
	if flags == 0 {
		return b
	}
	const flaglen = 3
	const strflags = "FINSYNRSTPSHACKURG"
	var addcommas bool
	for flags != 0 {
		i := bits.TrailingZeros16(uint16(flags))
		if addcommas {
			b = append(b, ',')
		} else {
			addcommas = true
		}
		b = append(b, strflags[i*flaglen:i*flaglen+flaglen]...)
		flags &= ^(1 << i)
	}
	return b
}

// State enumerates states a TCP connection progresses through during its lifetime.
//
// Only FREE, CLOSED, LISTEN, SYN_RECEIVED and ESTABLISHED are reachable
// through this module's FSM. The remaining states are named for RFC 9293
// fidelity and so a later half-close implementation has somewhere to land,
// but nothing here produces them.
type State uint8

const (
	StateFree State = iota // FREE - slot not allocated.
	// CLOSED represents no connection state at all, the state of an
	// allocated-but-unopened PCB.
	StateClosed // CLOSED
	// LISTEN represents waiting for a connection request from any remote TCP and port.
	StateListen // LISTEN
	// SYN-RECEIVED represents waiting for a confirming connection request
	// acknowledgment after having both received and sent a connection request.
	StateSynRcvd // SYN-RECEIVED
	// SYN-SENT represents waiting for a matching connection request after
	// having sent a connection request. Unreachable: active opens are a non-goal.
	StateSynSent // SYN-SENT
	// ESTABLISHED represents an open connection; data received can be
	// delivered to the user.
	StateEstablished // ESTABLISHED
	// FIN-WAIT-1, FIN-WAIT-2, CLOSING, TIME-WAIT, CLOSE-WAIT and LAST-ACK are
	// retained from RFC 9293 for completeness; unreachable in this module.
	StateFinWait1
	StateFinWait2
	StateClosing
	StateTimeWait
	StateCloseWait
	StateLastAck
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynRcvd:
		return "SYN-RECEIVED"
	case StateSynSent:
		return "SYN-SENT"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateClosing:
		return "CLOSING"
	case StateTimeWait:
		return "TIME-WAIT"
	case StateCloseWait:
		return "CLOSE-WAIT"
	case StateLastAck:
		return "LAST-ACK"
	default:
		return "STATE(?)"
	}
}

// IsPreestablished returns true if the connection is in a state preceding the established state.
func (s State) IsPreestablished() bool {
	return s == StateSynRcvd || s == StateSynSent || s == StateListen
}
