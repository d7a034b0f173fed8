package pcb

import (
	"log/slog"

	"github.com/soypat/utcp"
	"github.com/soypat/utcp/ipv4"
	"github.com/soypat/utcp/tcp"
)

// TCPInput validates an inbound IPv4 frame addressed to iface and, if it
// carries a valid TCP segment, delivers it to the table's segment-arrival
// FSM. Non-TCP datagrams and validation failures are dropped with their
// error, never partially processed.
func (t *Table) TCPInput(iface *ipv4.Interface, frame []byte) error {
	dg, err := ipv4.Input(iface, frame)
	if err != nil {
		t.log.trace("pcb:ip-drop", slog.String("err", err.Error()))
		return err
	}
	if dg.Protocol != utcp.IPProtoTCP {
		return utcp.ErrPacketDrop
	}
	srcB := dg.Src.As4()
	dstB := dg.Dst.As4()
	tfrm, seg, err := tcp.Validate(dg.Payload, dstB, srcB)
	if err != nil {
		t.log.trace("pcb:tcp-drop", slog.String("err", err.Error()))
		return err
	}
	local := Endpoint{Addr: dg.Dst, Port: tfrm.DestinationPort()}
	foreign := Endpoint{Addr: dg.Src, Port: tfrm.SourcePort()}
	return t.Input(seg, tfrm.Payload(), local, foreign)
}
