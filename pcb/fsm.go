package pcb

import (
	"log/slog"

	"github.com/soypat/utcp/internal"
	"github.com/soypat/utcp/ipv4"
	"github.com/soypat/utcp/tcp"
)

// Input delivers a validated incoming segment addressed to (local, foreign)
// into the table's segment-arrival FSM, per RFC 9293 3.10.7 "SEGMENT
// ARRIVES". It acquires the table mutex and holds it throughout, so segment
// processing is atomic with respect to every user command.
func (t *Table) Input(seg tcp.Segment, payload []byte, local, foreign Endpoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.selectPCB(local, foreign)
	if !ok || p.state == tcp.StateClosed {
		return t.noMatch(seg, local, foreign)
	}

	switch p.state {
	case tcp.StateListen:
		return t.rcvListen(p, seg, local, foreign)
	case tcp.StateSynSent:
		return nil // active opens unsupported: any segment dropped.
	default:
		return t.rcvSynchronized(p, seg, payload)
	}
}

// noMatch implements the "no matching PCB (or state CLOSED)" branch of
// SEGMENT ARRIVES: RST is dropped silently, everything else draws a reset.
func (t *Table) noMatch(seg tcp.Segment, local, foreign Endpoint) error {
	if seg.Flags.HasAny(tcp.FlagRST) {
		return nil
	}
	var reply tcp.Segment
	if seg.Flags.HasAny(tcp.FlagACK) {
		reply = tcp.Segment{SEQ: seg.ACK, ACK: 0, Flags: tcp.FlagRST}
	} else {
		reply = tcp.Segment{SEQ: 0, ACK: tcp.Add(seg.SEQ, seg.LEN()), Flags: tcp.FlagRST | tcp.FlagACK}
	}
	return t.emitDetached(reply, local, foreign)
}

// rcvListen implements the LISTEN branch of SEGMENT ARRIVES.
func (t *Table) rcvListen(p *PCB, seg tcp.Segment, local, foreign Endpoint) error {
	if seg.Flags.HasAny(tcp.FlagRST) {
		return nil
	}
	if seg.Flags.HasAny(tcp.FlagACK) {
		return t.emitDetached(tcp.Segment{SEQ: seg.ACK, Flags: tcp.FlagRST}, local, foreign)
	}
	if !seg.Flags.HasAny(tcp.FlagSYN) {
		return nil
	}

	p.foreign = foreign
	p.local = local
	p.rcv = recvSpace{irs: seg.SEQ, nxt: tcp.Add(seg.SEQ, 1), wnd: Size(p.capacity())}
	iss := t.generateISS(local, foreign)
	p.snd = sendSpace{iss: iss, una: iss, nxt: tcp.Add(iss, 1), wnd: seg.WND}
	p.state = tcp.StateSynRcvd
	if t.iface != nil {
		if ifc, ok := t.iface.InterfaceFor(local.Addr); ok {
			p.mtu = ifc.MTU
			p.mss = ifc.MTU - ipv4.HeaderLen - sizeHeaderTCP
		}
	}
	foreignAddr := foreign.Addr.As4()
	t.log.trace("pcb:listen->synrcvd",
		internal.SlogAddr4("foreign_addr", &foreignAddr),
		slog.Uint64("foreign_port", uint64(foreign.Port)))
	return t.emit(p, tcp.FlagSYN|tcp.FlagACK, nil)
}

// acceptable implements the RFC 793 §3.9 sequence-acceptability test.
func acceptable(seg tcp.Segment, rcvNxt Value, rcvWnd Size) bool {
	seglen := seg.LEN()
	switch {
	case seglen == 0 && rcvWnd == 0:
		return seg.SEQ == rcvNxt
	case seglen == 0:
		return seg.SEQ.InWindow(rcvNxt, rcvWnd)
	case rcvWnd == 0:
		return false
	default:
		return seg.SEQ.InWindow(rcvNxt, rcvWnd) || seg.Last().InWindow(rcvNxt, rcvWnd)
	}
}

// rcvSynchronized implements the eight ordered checks shared by SYN_RECEIVED
// and ESTABLISHED (the only synchronized states this FSM reaches). Checks
// 2-4, 6 and 8 are deferred non-goals per the design notes and are skipped
// outright rather than stubbed with dead branches.
func (t *Table) rcvSynchronized(p *PCB, seg tcp.Segment, payload []byte) error {
	// 1. Sequence check.
	if !acceptable(seg, p.rcv.nxt, p.rcv.wnd) {
		if !seg.Flags.HasAny(tcp.FlagRST) {
			t.emit(p, tcp.FlagACK, nil)
		}
		return nil
	}

	// 5. ACK check (2-4 deferred non-goals).
	if !seg.Flags.HasAny(tcp.FlagACK) {
		return nil
	}
	switch p.state {
	case tcp.StateSynRcvd:
		if p.snd.una.LessThanEq(seg.ACK) && seg.ACK.LessThanEq(p.snd.nxt) {
			p.state = tcp.StateEstablished
			p.snd.una = seg.ACK
			p.ctx.wake()
			t.log.trace("pcb:synrcvd->established")
		} else {
			t.emitDetached(tcp.Segment{SEQ: seg.ACK, Flags: tcp.FlagRST}, p.local, p.foreign)
			return nil
		}
	case tcp.StateEstablished:
		switch {
		case seg.ACK.LessThan(p.snd.una):
			// duplicate ACK, ignore.
		case seg.ACK.LessThanEq(p.snd.nxt):
			p.snd.una = seg.ACK
			if p.snd.wl1.LessThan(seg.SEQ) || (p.snd.wl1 == seg.SEQ && p.snd.wl2.LessThanEq(seg.ACK)) {
				p.snd.wnd = seg.WND
				p.snd.wl1 = seg.SEQ
				p.snd.wl2 = seg.ACK
				p.ctx.wake()
			}
		default: // future ACK of unsent data.
			t.emit(p, tcp.FlagACK, nil)
			return nil
		}
	}

	// 7. Text: only meaningful once ESTABLISHED. acceptable() only guarantees
	// SEG.SEQ or SEG.SEQ+SEG.LEN-1 falls in the receive window, not that the
	// whole segment is in-order and wholly within it; out-of-order or
	// overlapping segments (no reassembly queue is kept) are dropped here,
	// same as an unacceptable segment, so a duplicate ACK invites
	// retransmission instead of corrupting the stream or overrunning buf.
	if p.state == tcp.StateEstablished && seg.DATALEN > 0 && seg.SEQ == p.rcv.nxt {
		n := int(seg.DATALEN)
		if n > int(p.rcv.wnd) {
			n = int(p.rcv.wnd)
		}
		off := p.capacity() - int(p.rcv.wnd)
		p.buf = p.buf[:off+n]
		copy(p.buf[off:off+n], payload[:n])
		p.rcv.nxt = tcp.Add(p.rcv.nxt, Size(n))
		p.rcv.wnd -= Size(n)
		p.ctx.wake()
		t.emit(p, tcp.FlagACK, nil)
	} else if p.state == tcp.StateEstablished && seg.DATALEN > 0 {
		// Acceptable but out-of-order or overlapping: drop the data and
		// re-ACK the current RCV.NXT to invite retransmission.
		t.emit(p, tcp.FlagACK, nil)
	}
	return nil
}
