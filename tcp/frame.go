package tcp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/soypat/utcp"
)

const sizeHeaderTCP = 20

// NewFrame returns a new Frame with data set to buf.
// An error is returned if the buffer size is smaller than the fixed TCP header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderTCP {
		return Frame{}, utcp.ErrShortBuffer
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of a TCP segment and provides methods for
// manipulating, validating and retrieving fields and payload data. No TCP
// options are supported: the data offset is always 5 words (20 bytes) on
// frames built by this module, and [Frame.Payload] on a parsed frame simply
// starts wherever the incoming offset says it does. See [RFC9293].
//
// [RFC9293]: https://datatracker.ietf.org/doc/html/rfc9293
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (tfrm Frame) RawData() []byte { return tfrm.buf }

// SourcePort identifies the sending port of the TCP segment. Must be non-zero.
func (tfrm Frame) SourcePort() uint16 { return binary.BigEndian.Uint16(tfrm.buf[0:2]) }

// SetSourcePort sets the TCP source port. See [Frame.SourcePort].
func (tfrm Frame) SetSourcePort(src uint16) { binary.BigEndian.PutUint16(tfrm.buf[0:2], src) }

// DestinationPort identifies the receiving port of the TCP segment. Must be non-zero.
func (tfrm Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(tfrm.buf[2:4]) }

// SetDestinationPort sets the TCP destination port. See [Frame.DestinationPort].
func (tfrm Frame) SetDestinationPort(dst uint16) { binary.BigEndian.PutUint16(tfrm.buf[2:4], dst) }

// Seq returns the sequence number of the first data octet of this segment
// (the ISN if SYN is present, with the first data octet being ISN+1).
func (tfrm Frame) Seq() Value { return Value(binary.BigEndian.Uint32(tfrm.buf[4:8])) }

// SetSeq sets the Seq field. See [Frame.Seq].
func (tfrm Frame) SetSeq(v Value) { binary.BigEndian.PutUint32(tfrm.buf[4:8], uint32(v)) }

// Ack is the next sequence number the sender is expecting to receive, meaningful when ACK is set.
func (tfrm Frame) Ack() Value { return Value(binary.BigEndian.Uint32(tfrm.buf[8:12])) }

// SetAck sets the Ack field. See [Frame.Ack].
func (tfrm Frame) SetAck(v Value) { binary.BigEndian.PutUint32(tfrm.buf[8:12], uint32(v)) }

// OffsetAndFlags returns the data offset (in 32-bit words) and flags fields.
func (tfrm Frame) OffsetAndFlags() (offset uint8, flags Flags) {
	v := binary.BigEndian.Uint16(tfrm.buf[12:14])
	offset = uint8(v >> 12)
	flags = Flags(v).Mask()
	return offset, flags
}

// SetOffsetAndFlags sets the data offset and flags fields. See [Frame.OffsetAndFlags].
func (tfrm Frame) SetOffsetAndFlags(offset uint8, flags Flags) {
	v := uint16(offset)<<12 | uint16(flags.Mask())
	binary.BigEndian.PutUint16(tfrm.buf[12:14], v)
}

// HeaderLength uses the data offset field to calculate the header length in bytes.
func (tfrm Frame) HeaderLength() int {
	offset, _ := tfrm.OffsetAndFlags()
	return 4 * int(offset)
}

func (tfrm Frame) WindowSize() uint16   { return binary.BigEndian.Uint16(tfrm.buf[14:16]) }
func (tfrm Frame) SetWindowSize(v uint16) { binary.BigEndian.PutUint16(tfrm.buf[14:16], v) }

// CRC returns the checksum field in the TCP header.
func (tfrm Frame) CRC() uint16 { return binary.BigEndian.Uint16(tfrm.buf[16:18]) }

// SetCRC sets the checksum field of the TCP header. See [Frame.CRC].
func (tfrm Frame) SetCRC(checksum uint16) { binary.BigEndian.PutUint16(tfrm.buf[16:18], checksum) }

func (tfrm Frame) UrgentPtr() uint16      { return binary.BigEndian.Uint16(tfrm.buf[18:20]) }
func (tfrm Frame) SetUrgentPtr(up uint16) { binary.BigEndian.PutUint16(tfrm.buf[18:20], up) }

// Payload returns the payload content section of the TCP segment (excludes options).
func (tfrm Frame) Payload() []byte { return tfrm.buf[tfrm.HeaderLength():] }

// Segment returns the [Segment] representation of the TCP header and data length.
func (tfrm Frame) Segment(payloadSize int) Segment {
	if payloadSize > math.MaxInt32 {
		panic("tcp: overflow payload size")
	}
	_, flags := tfrm.OffsetAndFlags()
	return Segment{
		SEQ:     tfrm.Seq(),
		ACK:     tfrm.Ack(),
		WND:     Size(tfrm.WindowSize()),
		DATALEN: Size(payloadSize),
		Flags:   flags,
	}
}

// SetSegment sets the sequence, acknowledgment, flags and window fields of
// the TCP header from seg. The data offset is always fixed at 5 words: this
// module never emits TCP options.
func (tfrm Frame) SetSegment(seg Segment) {
	if seg.WND > math.MaxUint16 {
		panic("tcp: window overflow")
	}
	tfrm.SetSeq(seg.SEQ)
	tfrm.SetAck(seg.ACK)
	tfrm.SetOffsetAndFlags(sizeHeaderTCP/4, seg.Flags)
	tfrm.SetWindowSize(uint16(seg.WND))
}

// ClearHeader zeros out the fixed (non-variable) header contents.
func (tfrm Frame) ClearHeader() {
	for i := range tfrm.buf[:sizeHeaderTCP] {
		tfrm.buf[i] = 0
	}
}

func (tfrm Frame) String() string {
	src := tfrm.SourcePort()
	dst := tfrm.DestinationPort()
	seg := tfrm.Segment(len(tfrm.Payload()))
	return fmt.Sprintf("TCP :%d -> :%d %s", src, dst, seg.String())
}

func (seg Segment) String() string {
	return fmt.Sprintf("<SEQ=%d><ACK=%d><WND=%d>%s", seg.SEQ, seg.ACK, seg.WND, seg.Flags.String())
}

// Encode fills buf with a full TCP segment: header plus payload, with a
// correctly computed pseudo-header checksum. buf must be at least
// 20+len(payload) bytes. localPort and foreignPort become the header's
// source and destination ports; localAddr and foreignAddr are used only to
// build the pseudo-header and are not recorded in the TCP header itself.
func Encode(buf []byte, seq, ack Value, flags Flags, window Size, payload []byte, localAddr, foreignAddr [4]byte, localPort, foreignPort uint16) (Frame, error) {
	tfrm, err := NewFrame(buf[:sizeHeaderTCP+len(payload)])
	if err != nil {
		return Frame{}, err
	}
	tfrm.ClearHeader()
	tfrm.SetSourcePort(localPort)
	tfrm.SetDestinationPort(foreignPort)
	tfrm.SetSegment(Segment{SEQ: seq, ACK: ack, Flags: flags, WND: window})
	copy(tfrm.Payload(), payload)

	var crc utcp.CRC791
	crc.WriteEven(localAddr[:])
	crc.WriteEven(foreignAddr[:])
	crc.AddUint16(uint16(sizeHeaderTCP + len(payload)))
	crc.AddUint16(6) // protocol TCP
	sum := crc.PayloadSum16(buf[:sizeHeaderTCP+len(payload)])
	tfrm.SetCRC(utcp.NeverZeroChecksum(sum))
	return tfrm, nil
}

// Validate parses and validates a TCP segment addressed between localAddr and
// foreignAddr (as seen by the receiver: localAddr is this host, foreignAddr
// is the sender). It checks buffer length and pseudo-header checksum and
// returns the parsed frame and its [Segment] view.
func Validate(buf []byte, localAddr, foreignAddr [4]byte) (Frame, Segment, error) {
	tfrm, err := NewFrame(buf)
	if err != nil {
		return Frame{}, Segment{}, err
	}
	hl := tfrm.HeaderLength()
	if hl < sizeHeaderTCP || hl > len(buf) {
		return Frame{}, Segment{}, utcp.ErrBadLength
	}
	if tfrm.DestinationPort() == 0 {
		return Frame{}, Segment{}, utcp.ErrZeroDestination
	}
	if tfrm.SourcePort() == 0 {
		return Frame{}, Segment{}, utcp.ErrZeroSource
	}

	var crc utcp.CRC791
	crc.WriteEven(foreignAddr[:])
	crc.WriteEven(localAddr[:])
	crc.AddUint16(uint16(len(buf)))
	crc.AddUint16(6)
	if crc.PayloadSum16(buf) != 0 {
		return Frame{}, Segment{}, utcp.ErrBadCRC
	}

	seg := tfrm.Segment(len(buf) - hl)
	return tfrm, seg, nil
}
