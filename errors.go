package utcp

type errGeneric uint8

// Generic errors common to datagram and segment processing, shared by the
// ipv4 and tcp packages so callers can compare against a single error type
// with errors.Is.
const (
	_                  errGeneric = iota // non-initialized err
	ErrBug                               // utcp-bug(use build tag "debugheaplog")
	ErrPacketDrop                        // packet dropped
	ErrBadCRC                            // incorrect checksum
	ErrZeroSource                        // zero source(port/addr)
	ErrZeroDestination                   // zero destination(port/addr)
	ErrShortBuffer                       // buffer too short for header
	ErrBadVersion                        // bad IP version field
	ErrBadLength                         // inconsistent length field
	ErrFragmented                        // fragmented datagram unsupported
	ErrBadAddr                           // address not acceptable for delivery
	ErrNoFreePCB                         // no free protocol control block
	ErrNoRoute                           // no route to destination
	ErrInvalidState                      // operation invalid in current connection state
	ErrInterrupted                       // blocking call interrupted before completion
)

func (err errGeneric) Error() string {
	return err.String()
}

func (err errGeneric) String() string {
	switch err {
	case ErrBug:
		return "utcp-bug"
	case ErrPacketDrop:
		return "packet dropped"
	case ErrBadCRC:
		return "incorrect checksum"
	case ErrZeroSource:
		return "zero source"
	case ErrZeroDestination:
		return "zero destination"
	case ErrShortBuffer:
		return "buffer too short for header"
	case ErrBadVersion:
		return "bad IP version field"
	case ErrBadLength:
		return "inconsistent length field"
	case ErrFragmented:
		return "fragmented datagram unsupported"
	case ErrBadAddr:
		return "address not acceptable for delivery"
	case ErrNoFreePCB:
		return "no free protocol control block"
	case ErrNoRoute:
		return "no route to destination"
	case ErrInvalidState:
		return "operation invalid in current connection state"
	case ErrInterrupted:
		return "blocking call interrupted before completion"
	default:
		return "utcp: unknown error"
	}
}
