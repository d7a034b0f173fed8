package pcb

import (
	"log/slog"

	"github.com/soypat/utcp"
	"github.com/soypat/utcp/tcp"
)

// emit builds and sends a segment on behalf of p: seq is ISS if SYN is set,
// else SND.NXT; ack is RCV.NXT; window is RCV.WND. data is appended as the
// segment payload (capped by the caller to MSS and peer window before
// calling emit; emit itself performs no fragmentation).
func (t *Table) emit(p *PCB, flags tcp.Flags, data []byte) error {
	seq := p.snd.nxt
	if flags.HasAny(tcp.FlagSYN) {
		seq = p.snd.iss
	}
	seg := tcp.Segment{SEQ: seq, ACK: p.rcv.nxt, WND: p.rcv.wnd, Flags: flags, DATALEN: Size(len(data))}
	return t.send(seg, data, p.local, p.foreign)
}

// emitDetached sends a segment that carries no PCB context, used for the
// no-match and LISTEN-reject RST replies where seq/ack come directly from
// the triggering segment rather than a PCB's sequence spaces.
func (t *Table) emitDetached(seg tcp.Segment, local, foreign Endpoint) error {
	return t.send(seg, nil, local, foreign)
}

// send encodes seg with data and hands the finished IP datagram to the
// interface serving foreign, via the registered [ipv4.Registry].
func (t *Table) send(seg tcp.Segment, data []byte, local, foreign Endpoint) error {
	if t.iface == nil {
		return utcp.ErrNoRoute
	}
	ifc, err := t.iface.RouteGetIface(foreign.Addr)
	if err != nil {
		t.log.errorf("pcb:emit-noroute", slog.String("err", err.Error()))
		return err
	}
	localAddr := local.Addr
	if localAddr.IsUnspecified() {
		localAddr = ifc.Unicast
	}

	buf := make([]byte, sizeHeaderTCP+len(data))
	localB := localAddr.As4()
	foreignB := foreign.Addr.As4()
	_, err = tcp.Encode(buf, seg.SEQ, seg.ACK, seg.Flags, seg.WND, data, localB, foreignB, local.Port, foreign.Port)
	if err != nil {
		t.log.errorf("pcb:emit-encode", slog.String("err", err.Error()))
		return err
	}
	if err := ifc.Output(utcp.IPProtoTCP, buf, localAddr, foreign.Addr); err != nil {
		t.log.errorf("pcb:emit-output", slog.String("err", err.Error()))
		return err
	}
	t.log.trace("pcb:emit", slog.String("flags", seg.Flags.String()), slog.Int("len", len(data)))
	return nil
}

const sizeHeaderTCP = 20
