// Package pcb implements the TCP connection state machine: the Protocol
// Control Block (PCB) table, RFC 9293 "SEGMENT ARRIVES" event processing, the
// output engine and the blocking user commands (Open, Close, Send, Receive).
// Package tcp supplies the wire codec and sequence-number primitives this
// package operates on.
package pcb

import (
	"sync"

	"github.com/soypat/utcp"
	"github.com/soypat/utcp/internal"
	"github.com/soypat/utcp/ipv4"
	"github.com/soypat/utcp/tcp"
)

// Endpoint is an (address, port) pair. A zero Endpoint (ANY, 0) is the
// wildcard used by a LISTEN PCB's foreign side.
type Endpoint struct {
	Addr ipv4.Addr
	Port uint16
}

// IsWildcard reports whether e is the (ANY, 0) wildcard endpoint.
func (e Endpoint) IsWildcard() bool { return e.Addr == ipv4.ANY && e.Port == 0 }

func (e Endpoint) String() string {
	if e.IsWildcard() {
		return "*.*.*.*:*"
	}
	return e.Addr.String() + ":" + itoa(uint64(e.Port))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// sendSpace holds the Send Sequence Space variables, as per RFC 9293 3.3.1.
type sendSpace struct {
	iss Value
	una Value
	nxt Value
	wnd Size
	wl1 Value
	wl2 Value
	up  Value // unused, retained for RFC fidelity.
}

// recvSpace holds the Receive Sequence Space variables.
type recvSpace struct {
	irs Value
	nxt Value
	wnd Size
	up  Value // unused, retained for RFC fidelity.
}

type (
	Value = tcp.Value
	Size  = tcp.Size
	Flags = tcp.Flags
)

// PCB is a single connection's Protocol Control Block. Every field access
// outside of alloc/release happens with the owning [Table]'s mutex held.
type PCB struct {
	state   tcp.State
	local   Endpoint
	foreign Endpoint
	snd     sendSpace
	rcv     recvSpace
	mtu     int
	mss     int
	buf     []byte // fixed capacity, data held in buf[:len], window = cap(buf)-len(buf).
	ctx     waitCtx
}

// State returns the PCB's current connection state.
func (p *PCB) State() tcp.State { return p.state }

// Local returns the PCB's local endpoint.
func (p *PCB) Local() Endpoint { return p.local }

// Foreign returns the PCB's foreign endpoint.
func (p *PCB) Foreign() Endpoint { return p.foreign }

// buffered returns the number of octets currently held in the receive buffer.
func (p *PCB) buffered() int { return len(p.buf) }

// capacity returns the fixed capacity of the receive buffer.
func (p *PCB) capacity() int { return cap(p.buf) }

// isZeroed reports whether every field of p, aside from the wait context and
// backing buffer (whose capacity we keep across FREE/CLOSED transitions to
// dodge reallocation), holds its zero value. Used to assert invariant 3 of
// the PCB table (a FREE PCB is entirely zeroed) in tests.
func (p *PCB) isZeroed() bool {
	return p.state == tcp.StateFree &&
		p.mtu == 0 && p.mss == 0 &&
		internal.IsZeroed(p.local, p.foreign) &&
		internal.IsZeroed(p.snd) &&
		internal.IsZeroed(p.rcv) &&
		len(p.buf) == 0
}

// waitCtx is the per-PCB condition-variable-equivalent wait primitive
// (§5 "scheduler context"). It is coupled to the table's global mutex: sleep
// atomically releases that mutex and reacquires it before returning.
type waitCtx struct {
	cond      *sync.Cond
	waiters   int
	interrupt bool
}

func (w *waitCtx) init(mu *sync.Mutex) {
	w.cond = sync.NewCond(mu)
	w.waiters = 0
	w.interrupt = false
}

// sleep releases the table mutex (implicitly, via w.cond) and blocks until
// woken or interrupted, reacquiring the mutex before returning. Caller must
// hold the mutex.
func (w *waitCtx) sleep() error {
	w.waiters++
	defer func() {
		w.waiters--
		if w.waiters == 0 {
			w.interrupt = false // consumed by every sleep it reached.
		}
	}()
	for {
		if w.interrupt {
			return utcp.ErrInterrupted
		}
		w.cond.Wait()
		if w.interrupt {
			return utcp.ErrInterrupted
		}
		return nil
	}
}

// wake wakes every waiter blocked in sleep.
func (w *waitCtx) wake() {
	if w.cond != nil {
		w.cond.Broadcast()
	}
}

// interruptNow arranges for the current or next sleep to return an
// interrupted error, then wakes any current waiter.
func (w *waitCtx) interruptNow() {
	w.interrupt = true
	w.wake()
}

// destroy succeeds only when no waiter is blocked in sleep; otherwise it wakes
// the waiters and returns false (teardown is retried on the waiter's exit path).
func (w *waitCtx) destroy() bool {
	if w.waiters > 0 {
		w.wake()
		return false
	}
	*w = waitCtx{}
	return true
}
