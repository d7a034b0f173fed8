package pcb

import (
	"crypto/rand"
	"log/slog"
	"sync"

	"github.com/soypat/utcp"
	"github.com/soypat/utcp/internal"
	"github.com/soypat/utcp/ipv4"
	"github.com/soypat/utcp/tcp"
	"golang.org/x/crypto/blake2b"
)

// DefaultBufferCapacity is the receive buffer size handed to PCBs allocated
// by a [Table] constructed with a zero bufCap.
const DefaultBufferCapacity = 65535

// DefaultTableSize is the PCB slot count used by [NewTable] when size <= 0.
const DefaultTableSize = 16

// Table is a fixed-size array of PCBs guarded by a single mutex, per the
// coarse-locking concurrency model: every PCB field read or write happens
// with this mutex held.
type Table struct {
	mu     sync.Mutex
	pcbs   []PCB
	secret [32]byte
	iface  *ipv4.Registry
	bufCap int
	log    logger
}

// NewTable allocates a Table with size PCB slots (DefaultTableSize if size <= 0)
// and a receive buffer capacity of bufCap bytes per PCB (DefaultBufferCapacity
// if bufCap <= 0), wired to reg for outbound delivery.
func NewTable(size, bufCap int, reg *ipv4.Registry) *Table {
	if size <= 0 {
		size = DefaultTableSize
	}
	if bufCap <= 0 {
		bufCap = DefaultBufferCapacity
	}
	t := &Table{
		pcbs:   make([]PCB, size),
		iface:  reg,
		bufCap: bufCap,
	}
	for i := range t.pcbs {
		t.pcbs[i].ctx.init(&t.mu)
	}
	if _, err := rand.Read(t.secret[:]); err != nil {
		panic("pcb: failed to seed table secret: " + err.Error())
	}
	return t
}

// SetLogger attaches a logger used for FSM and table-level tracing.
func (t *Table) SetLogger(log *slog.Logger) { t.log = logger{log: log} }

// alloc returns the first FREE slot, transitioned to CLOSED, or
// [utcp.ErrNoFreePCB] if the table is exhausted. Caller must hold t.mu.
func (t *Table) alloc() (*PCB, error) {
	for i := range t.pcbs {
		p := &t.pcbs[i]
		if p.state == tcp.StateFree {
			p.state = tcp.StateClosed
			internal.SliceReuse(&p.buf, t.bufCap)
			p.ctx.init(&t.mu)
			t.log.trace("pcb:alloc", slog.Int("id", i))
			return p, nil
		}
	}
	return nil, utcp.ErrNoFreePCB
}

// release attempts to tear p down: if a waiter is still blocked on p's wait
// context, it is woken and release returns without zeroing (the waiter tears
// down on its own exit path); otherwise p is zeroed back to FREE. Caller must
// hold t.mu.
func (t *Table) release(p *PCB) {
	if !p.ctx.destroy() {
		return
	}
	buf := p.buf[:0]
	*p = PCB{buf: buf}
	t.log.trace("pcb:release")
}

// localMatches reports whether a PCB bound to p.local should accept a
// datagram addressed to local: either a concrete match, or the PCB is bound
// to the wildcard local address (listening on every interface).
func localMatches(p, local Endpoint) bool {
	return p.Port == local.Port && (p.Addr == ipv4.ANY || p.Addr == local.Addr)
}

// selectPCB returns the PCB best matching (local, foreign): an exact 4-tuple
// match takes priority (allowing a wildcard local address), failing that, a
// LISTEN PCB with wildcard foreign and matching local endpoint (likewise
// allowing a wildcard local address). Caller must hold t.mu.
func (t *Table) selectPCB(local, foreign Endpoint) (*PCB, bool) {
	var listenMatch *PCB
	for i := range t.pcbs {
		p := &t.pcbs[i]
		if p.state == tcp.StateFree {
			continue
		}
		if localMatches(p.local, local) && p.foreign == foreign {
			return p, true
		}
		if p.state == tcp.StateListen && localMatches(p.local, local) && listenMatch == nil {
			listenMatch = p
		}
	}
	if listenMatch != nil {
		return listenMatch, true
	}
	return nil, false
}

// get resolves a user-facing handle to its PCB, rejecting FREE slots.
func (t *Table) get(id int) (*PCB, error) {
	if id < 0 || id >= len(t.pcbs) {
		return nil, utcp.ErrInvalidState
	}
	p := &t.pcbs[id]
	if p.state == tcp.StateFree {
		return nil, utcp.ErrInvalidState
	}
	return p, nil
}

// idOf returns the slot index (handle) of p.
func (t *Table) idOf(p *PCB) int {
	return int(p - &t.pcbs[0])
}

// InterruptAll wakes every non-FREE PCB's wait context with an interrupt
// flag set, so every blocked user command returns [utcp.ErrInterrupted].
func (t *Table) InterruptAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.pcbs {
		if t.pcbs[i].state != tcp.StateFree {
			t.pcbs[i].ctx.interruptNow()
		}
	}
}

// generateISS derives an unpredictable initial send sequence number from the
// table secret and the connection 4-tuple, approximating RFC 6528.
func (t *Table) generateISS(local, foreign Endpoint) Value {
	h, err := blake2b.New256(t.secret[:])
	if err != nil {
		panic("pcb: blake2b keyed hash: " + err.Error())
	}
	var buf [12]byte
	putAddr(buf[0:4], local.Addr)
	putUint16(buf[4:6], local.Port)
	putAddr(buf[6:10], foreign.Addr)
	putUint16(buf[10:12], foreign.Port)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return Value(uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3]))
}

func putAddr(b []byte, a ipv4.Addr) {
	b4 := a.As4()
	copy(b, b4[:])
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
