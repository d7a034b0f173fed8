package pcb

import (
	"github.com/soypat/utcp"
	"github.com/soypat/utcp/tcp"
)

// Open performs a passive open: allocates a PCB, puts it in LISTEN on local,
// and blocks until a connection completes its handshake (or the attempt is
// interrupted or aborted). Active and simultaneous opens are non-goals:
// foreign must be the wildcard endpoint and active must be false.
//
// Open returns the connection's handle on success.
func (t *Table) Open(local Endpoint, foreign Endpoint, active bool) (int, error) {
	if active || !foreign.IsWildcard() {
		return -1, utcp.ErrInvalidState
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.alloc()
	if err != nil {
		return -1, err
	}
	p.local = local
	p.state = tcp.StateListen
	id := t.idOf(p)

	// Wait for LISTEN -> SYN_RECEIVED (a SYN arrives).
	if err := t.waitForStateChange(p, tcp.StateListen); err != nil {
		t.release(p)
		return -1, err
	}
	// Wait for SYN_RECEIVED -> ESTABLISHED (the final ACK arrives).
	if p.state == tcp.StateSynRcvd {
		if err := t.waitForStateChange(p, tcp.StateSynRcvd); err != nil {
			t.release(p)
			return -1, err
		}
	}
	if p.state != tcp.StateEstablished {
		t.release(p)
		return -1, utcp.ErrInvalidState
	}
	return id, nil
}

// waitForStateChange blocks until p.state differs from from, or the wait is
// interrupted. Caller must hold t.mu.
func (t *Table) waitForStateChange(p *PCB, from tcp.State) error {
	for p.state == from {
		if err := p.ctx.sleep(); err != nil {
			return err
		}
	}
	return nil
}

// Close performs an abrupt close: it sends RST (unless the PCB is in LISTEN
// or CLOSED), marks it CLOSED and releases it; if a command is still blocked
// on the PCB, that command completes the release when it wakes. There is no
// FIN-based half-close in this core.
func (t *Table) Close(id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.get(id)
	if err != nil {
		return err
	}
	if p.state != tcp.StateListen && p.state != tcp.StateClosed {
		t.emit(p, tcp.FlagRST, nil)
	}
	p.state = tcp.StateClosed
	t.release(p)
	return nil
}

// Send blocks until all of data has been transmitted, fragmenting it into
// MSS-capped, window-flow-controlled segments, each carrying PSH|ACK. It
// returns the number of bytes accepted, which is less than len(data) if the
// connection closes, the wait is interrupted or output fails mid-send.
func (t *Table) Send(id int, data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.get(id)
	if err != nil {
		return 0, err
	}
	if p.state != tcp.StateEstablished {
		return 0, utcp.ErrInvalidState
	}

	mss := p.mss
	if mss <= 0 {
		mss = DefaultMSS
	}

	sent := 0
	for sent < len(data) {
		if p.state != tcp.StateEstablished {
			t.release(p)
			return sent, utcp.ErrInvalidState
		}
		avail := int(p.snd.wnd) - int(tcp.Sizeof(p.snd.una, p.snd.nxt))
		if avail <= 0 {
			if err := p.ctx.sleep(); err != nil {
				// Interruption is only reported as an error when it struck
				// before any bytes were accepted; bytes already sent are
				// reported as a (partial) success, matching the IP-output
				// failure handling below.
				if sent == 0 {
					return 0, err
				}
				return sent, nil
			}
			continue
		}
		n := len(data) - sent
		if n > mss {
			n = mss
		}
		if n > avail {
			n = avail
		}
		chunk := data[sent : sent+n]
		if err := t.emit(p, tcp.FlagPSH|tcp.FlagACK, chunk); err != nil {
			p.state = tcp.StateClosed
			t.release(p)
			if sent == 0 {
				return 0, err
			}
			return sent, nil
		}
		p.snd.nxt = tcp.Add(p.snd.nxt, Size(n))
		sent += n
	}
	return sent, nil
}

// DefaultMSS is used when an interface leaves [PCB] mss unset.
const DefaultMSS = 536

// Receive blocks until at least one byte is buffered, then copies at most
// len(buf) bytes from the head of the receive buffer into buf, shifting the
// remaining buffered bytes down and growing RCV.WND accordingly. It returns
// the number of bytes copied.
func (t *Table) Receive(id int, buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.get(id)
	if err != nil {
		return 0, err
	}
	for len(p.buf) == 0 {
		if p.state != tcp.StateEstablished {
			t.release(p)
			return 0, utcp.ErrInvalidState
		}
		if err := p.ctx.sleep(); err != nil {
			return 0, err
		}
		// Re-check state after waking: a concurrent close may have torn the
		// connection down (and deferred release to us) while this call slept.
		if p.state != tcp.StateEstablished {
			t.release(p)
			return 0, utcp.ErrInvalidState
		}
	}
	n := copy(buf, p.buf)
	remaining := copy(p.buf, p.buf[n:])
	p.buf = p.buf[:remaining]
	p.rcv.wnd += Size(n)
	return n, nil
}
