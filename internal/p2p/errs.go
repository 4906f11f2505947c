package p2p

import "errors"

// Error kinds (§7). Transport/Protocol/Timeout/Addressing converge on the
// Failure transition; Precondition is returned to the caller without
// mutating state; Configuration blocks progress until new interfaces
// appear.
var (
	ErrTransport     = errors.New("transport error")
	ErrProtocol      = errors.New("protocol error")
	ErrTimeout       = errors.New("timeout error")
	ErrAddressing    = errors.New("addressing error")
	ErrPrecondition  = errors.New("precondition error")
	ErrConfiguration = errors.New("configuration error")
)
