package gateway

import "errors"

// Sentinel errors distinguishing the gateway's error taxonomy so callers can
// branch with errors.Is/errors.As instead of matching on message text.
var (
	// ErrProtocolViolation indicates a malformed frame, a missing mandatory
	// field, or an opcode the client's current state does not accept.
	ErrProtocolViolation = errors.New("gateway: protocol violation")

	// ErrSequenceDrift indicates the client's reported sequence number diverged
	// from the server's by 3 or more.
	ErrSequenceDrift = errors.New("gateway: sequence drift")

	// ErrLivenessTimeout indicates no heartbeat was observed within the
	// heartbeat interval plus latency buffer.
	ErrLivenessTimeout = errors.New("gateway: liveness timeout")

	// ErrTransportFailure indicates the underlying WebSocket sink or stream
	// failed.
	ErrTransportFailure = errors.New("gateway: transport failure")

	// ErrBackpressureOverflow indicates a client's inbound or outbound
	// broadcast channel overflowed because the client was not draining fast
	// enough.
	ErrBackpressureOverflow = errors.New("gateway: backpressure overflow")

	// ErrResumeUnknown indicates a Resume's session token was not found in
	// the resume store, or its recorded sequence has aged out.
	ErrResumeUnknown = errors.New("gateway: resume token unknown")

	// ErrNoMessage indicates BulkMessageBuilder.Send was called with no
	// message attached.
	ErrNoMessage = errors.New("gateway: no message to send")
)
