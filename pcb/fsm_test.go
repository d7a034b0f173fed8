package pcb

import (
	"testing"

	"github.com/soypat/utcp/ipv4"
	"github.com/soypat/utcp/tcp"
)

// lastSegment decodes the most recently sent IP datagram as a TCP segment,
// from the perspective of whoever is at dstAddr.
func lastSegment(t *testing.T, dev *discardDevice, dstAddr, srcAddr [4]byte) (tcp.Frame, tcp.Segment) {
	t.Helper()
	if len(dev.sent) == 0 {
		t.Fatal("no datagram was sent")
	}
	raw := dev.sent[len(dev.sent)-1]
	ifrm, err := ipv4.NewFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	tfrm, seg, err := tcp.Validate(ifrm.Payload(), dstAddr, srcAddr)
	if err != nil {
		t.Fatal(err)
	}
	return tfrm, seg
}

func TestThreeWayHandshake(t *testing.T) {
	tbl, ifc := newTestTable(t, 4)
	dev := ifc.Device.(*discardDevice)

	local := Endpoint{Addr: ifc.Unicast, Port: 80}
	peer := Endpoint{Addr: ipv4.AddrFrom4([4]byte{10, 0, 0, 9}), Port: 4000}

	p, err := tbl.alloc()
	if err != nil {
		t.Fatal(err)
	}
	p.state = tcp.StateListen
	p.local = local

	syn := tcp.Segment{SEQ: 1000, Flags: tcp.FlagSYN, WND: 65535}
	if err := tbl.Input(syn, nil, local, peer); err != nil {
		t.Fatal(err)
	}
	if p.state != tcp.StateSynRcvd {
		t.Fatalf("want SYN-RECEIVED, got %s", p.state)
	}
	if p.rcv.nxt != 1001 {
		t.Fatalf("want RCV.NXT=1001, got %d", p.rcv.nxt)
	}

	_, synack := lastSegment(t, dev, peer.Addr.As4(), local.Addr.As4())
	if !synack.Flags.HasAll(tcp.FlagSYN | tcp.FlagACK) {
		t.Fatalf("want SYN|ACK reply, got %s", synack.Flags)
	}
	if synack.ACK != 1001 {
		t.Fatalf("want ack=1001, got %d", synack.ACK)
	}
	iss := synack.SEQ

	ack := tcp.Segment{SEQ: 1001, ACK: tcp.Add(iss, 1), Flags: tcp.FlagACK, WND: 65535}
	if err := tbl.Input(ack, nil, local, peer); err != nil {
		t.Fatal(err)
	}
	if p.state != tcp.StateEstablished {
		t.Fatalf("want ESTABLISHED, got %s", p.state)
	}
	if p.snd.una != tcp.Add(iss, 1) {
		t.Fatalf("want SND.UNA=ISS+1, got %d", p.snd.una)
	}
}

func TestBogusSegmentToNoListener(t *testing.T) {
	tbl, ifc := newTestTable(t, 4)
	dev := ifc.Device.(*discardDevice)

	local := Endpoint{Addr: ifc.Unicast, Port: 80}
	peer := Endpoint{Addr: ipv4.AddrFrom4([4]byte{10, 0, 0, 9}), Port: 4000}

	seg := tcp.Segment{SEQ: 5, ACK: 7, Flags: tcp.FlagACK}
	if err := tbl.Input(seg, nil, local, peer); err != nil {
		t.Fatal(err)
	}

	_, rst := lastSegment(t, dev, peer.Addr.As4(), local.Addr.As4())
	if rst.Flags != tcp.FlagRST {
		t.Fatalf("want bare RST, got %s", rst.Flags)
	}
	if rst.SEQ != 7 {
		t.Fatalf("want seq=7, got %d", rst.SEQ)
	}
}

func establishedPCB(t *testing.T, tbl *Table, local, peer Endpoint) *PCB {
	t.Helper()
	p, err := tbl.alloc()
	if err != nil {
		t.Fatal(err)
	}
	p.state = tcp.StateEstablished
	p.local = local
	p.foreign = peer
	p.rcv = recvSpace{nxt: 1001, wnd: Size(p.capacity())}
	p.snd = sendSpace{iss: 5000, una: 5001, nxt: 5001, wnd: 65535}
	return p
}

func TestDataDelivery(t *testing.T) {
	tbl, ifc := newTestTable(t, 4)
	dev := ifc.Device.(*discardDevice)
	local := Endpoint{Addr: ifc.Unicast, Port: 80}
	peer := Endpoint{Addr: ipv4.AddrFrom4([4]byte{10, 0, 0, 9}), Port: 4000}
	p := establishedPCB(t, tbl, local, peer)

	payload := []byte("hi")
	seg := tcp.Segment{SEQ: 1001, ACK: 5001, Flags: tcp.FlagPSH | tcp.FlagACK, WND: 65535, DATALEN: Size(len(payload))}
	if err := tbl.Input(seg, payload, local, peer); err != nil {
		t.Fatal(err)
	}
	if p.rcv.nxt != 1003 {
		t.Fatalf("want RCV.NXT=1003, got %d", p.rcv.nxt)
	}

	_, ack := lastSegment(t, dev, peer.Addr.As4(), local.Addr.As4())
	if ack.ACK != 1003 {
		t.Fatalf("want ack=1003, got %d", ack.ACK)
	}

	buf := make([]byte, 10)
	n, err := tbl.Receive(tbl.idOf(p), buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("want %q, got %q", "hi", buf[:n])
	}
}

func TestDataDeliveryClampsToWindow(t *testing.T) {
	reg := &ipv4.Registry{}
	dev := &discardDevice{}
	ifc := ipv4.NewInterface(ipv4.AddrFrom4([4]byte{10, 0, 0, 2}), ipv4.AddrFrom4([4]byte{255, 255, 255, 0}), 1500, dev)
	reg.Add(&ifc)
	tbl := NewTable(4, 8, reg) // 8-byte receive buffers, smaller than the segment below.
	local := Endpoint{Addr: ifc.Unicast, Port: 80}
	peer := Endpoint{Addr: ipv4.AddrFrom4([4]byte{10, 0, 0, 9}), Port: 4000}
	p := establishedPCB(t, tbl, local, peer)
	p.rcv.wnd = Size(p.capacity())

	payload := []byte("0123456789012345678901234567890") // far larger than the 8-byte buffer.
	seg := tcp.Segment{SEQ: p.rcv.nxt, ACK: 5001, Flags: tcp.FlagPSH | tcp.FlagACK, WND: 65535, DATALEN: Size(len(payload))}
	if err := tbl.Input(seg, payload, local, peer); err != nil {
		t.Fatal(err)
	}
	if p.rcv.wnd != 0 {
		t.Fatalf("want RCV.WND=0 after filling the buffer, got %d", p.rcv.wnd)
	}

	buf := make([]byte, 32)
	n, err := tbl.Receive(tbl.idOf(p), buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Fatalf("want 8 bytes delivered (buffer capacity), got %d", n)
	}
}

func TestOutOfOrderSegmentIsDroppedNotAppended(t *testing.T) {
	tbl, ifc := newTestTable(t, 4)
	dev := ifc.Device.(*discardDevice)
	local := Endpoint{Addr: ifc.Unicast, Port: 80}
	peer := Endpoint{Addr: ipv4.AddrFrom4([4]byte{10, 0, 0, 9}), Port: 4000}
	p := establishedPCB(t, tbl, local, peer)

	// SEQ is ahead of RCV.NXT: acceptable (falls in window) but out of order.
	payload := []byte("late")
	seg := tcp.Segment{SEQ: tcp.Add(p.rcv.nxt, 10), ACK: 5001, Flags: tcp.FlagACK, WND: 65535, DATALEN: Size(len(payload))}
	if err := tbl.Input(seg, payload, local, peer); err != nil {
		t.Fatal(err)
	}
	if p.rcv.nxt != 1001 {
		t.Fatalf("RCV.NXT must not advance on an out-of-order segment, got %d", p.rcv.nxt)
	}
	if len(p.buf) != 0 {
		t.Fatalf("out-of-order data must not be appended to the receive buffer, got %d bytes", len(p.buf))
	}
	_, ack := lastSegment(t, dev, peer.Addr.As4(), local.Addr.As4())
	if ack.ACK != 1001 {
		t.Fatalf("want duplicate ack=1001 to invite retransmission, got %d", ack.ACK)
	}
}

func TestUnacceptableSequence(t *testing.T) {
	tbl, ifc := newTestTable(t, 4)
	dev := ifc.Device.(*discardDevice)
	local := Endpoint{Addr: ifc.Unicast, Port: 80}
	peer := Endpoint{Addr: ipv4.AddrFrom4([4]byte{10, 0, 0, 9}), Port: 4000}
	p := establishedPCB(t, tbl, local, peer)
	p.rcv.nxt = 5000
	p.rcv.wnd = 100

	seg := tcp.Segment{SEQ: 6000, Flags: tcp.FlagACK, ACK: 5001, WND: 65535}
	if err := tbl.Input(seg, nil, local, peer); err != nil {
		t.Fatal(err)
	}
	if p.state != tcp.StateEstablished {
		t.Fatal("state must not change on unacceptable segment")
	}
	_, ack := lastSegment(t, dev, peer.Addr.As4(), local.Addr.As4())
	if ack.ACK != 5000 {
		t.Fatalf("want ack=5000, got %d", ack.ACK)
	}
}
