package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultHeartbeatInterval and DefaultLatencyBuffer are the default timing
// constants from the protocol specification. A connection is considered dead
// once no heartbeat has been observed for the heartbeat interval plus the
// latency buffer.
const (
	DefaultHeartbeatInterval = 45 * time.Second
	DefaultLatencyBuffer     = 5 * time.Second
)

// sequenceCounter is a mutex-guarded monotonically increasing counter shared
// between a client's main dispatcher and its HeartbeatMonitor, both of which
// need to read or advance the last sequence number delivered to the client.
type sequenceCounter struct {
	mu sync.Mutex
	v  uint64
}

func (s *sequenceCounter) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v++
	return s.v
}

func (s *sequenceCounter) Load() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// killSwitch is a channel whose close terminates every goroutine selecting on
// Done(). Closing is guarded by sync.Once so that two independent failure
// paths (e.g. a sequence-drift reconnect racing a transport read error) kill
// the client exactly once rather than panicking on a double close.
type killSwitch struct {
	once sync.Once
	ch   chan struct{}
}

func newKillSwitch() *killSwitch {
	return &killSwitch{ch: make(chan struct{})}
}

// Kill closes the switch. Safe to call from multiple goroutines and more
// than once.
func (k *killSwitch) Kill() {
	k.once.Do(func() { close(k.ch) })
}

// Done returns the channel that closes when Kill is first called.
func (k *killSwitch) Done() <-chan struct{} {
	return k.ch
}

// driftClass classifies the gap between a client's reported sequence number
// and the server's last-delivered sequence number.
type driftClass int

const (
	driftCorrect driftClass = iota
	driftSlightlyOff
	driftWayOff
)

func classifyDrift(local, received uint64) driftClass {
	var diff int64
	if local >= received {
		diff = int64(local - received)
	} else {
		diff = int64(received - local)
	}
	switch {
	case diff == 0:
		return driftCorrect
	case diff <= 2:
		return driftSlightlyOff
	default:
		return driftWayOff
	}
}

// HeartbeatMonitor tracks liveness and sequence-drift for one GatewayClient.
// It consumes heartbeat sequence numbers handed to it by the client's main
// dispatcher (which demultiplexes inbound frames by opcode) and emits acks,
// a Reconnect frame, or a kill, depending on drift classification.
type HeartbeatMonitor struct {
	conn          *WebSocketConnection
	lastSequence  *sequenceCounter
	kill          *killSwitch
	heartbeats    chan uint64
	interval      time.Duration
	latencyBuffer time.Duration
	logger        *slog.Logger
}

// NewHeartbeatMonitor constructs a monitor for one client. heartbeats is the
// channel the client's main dispatcher forwards received Heartbeat sequence
// numbers on.
func NewHeartbeatMonitor(conn *WebSocketConnection, lastSequence *sequenceCounter, kill *killSwitch, heartbeats chan uint64, interval, latencyBuffer time.Duration, logger *slog.Logger) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		conn:          conn,
		lastSequence:  lastSequence,
		kill:          kill,
		heartbeats:    heartbeats,
		interval:      interval,
		latencyBuffer: latencyBuffer,
		logger:        logger,
	}
}

// Run drives the monitor's main loop until killed, the heartbeat channel is
// closed, or a liveness timeout fires. It must be run in its own goroutine.
func (h *HeartbeatMonitor) Run() {
	timeout := h.interval + h.latencyBuffer
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-h.kill.Done():
			return

		case received, ok := <-h.heartbeats:
			if !ok {
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
			h.handleHeartbeat(received)

		case <-timer.C:
			h.logger.Warn("heartbeat liveness timeout", slog.String("error", ErrLivenessTimeout.Error()))
			h.kill.Kill()
			return
		}
	}
}

// handleHeartbeat classifies the drift between the client's reported
// sequence and the server's last-delivered sequence, and reacts per the
// protocol's boundary behaviour: exact match or small drift acks, drift of 3
// or more sends a Reconnect frame and kills the client exactly once.
func (h *HeartbeatMonitor) handleHeartbeat(received uint64) {
	local := h.lastSequence.Load()

	switch classifyDrift(local, received) {
	case driftCorrect:
		h.sendAck()
	case driftSlightlyOff:
		h.logger.Warn("heartbeat sequence slightly off",
			slog.Uint64("local", local),
			slog.Uint64("received", received),
		)
		h.sendAck()
	case driftWayOff:
		h.logger.Warn("heartbeat sequence way off, forcing reconnect",
			slog.Uint64("local", local),
			slog.Uint64("received", received),
			slog.String("error", ErrSequenceDrift.Error()),
		)
		h.sendReconnect()
		h.kill.Kill()
	}
}

func (h *HeartbeatMonitor) sendAck() {
	data, err := encodeEnvelope(OpHeartbeatAck, "", nil, nil)
	if err != nil {
		h.logger.Error("encoding heartbeat ack", slog.String("error", err.Error()))
		return
	}
	h.conn.Send(wsFrame{Kind: frameText, Data: data})
}

func (h *HeartbeatMonitor) sendReconnect() {
	data, err := encodeEnvelope(OpReconnect, "", nil, nil)
	if err != nil {
		h.logger.Error("encoding reconnect frame", slog.String("error", err.Error()))
		return
	}
	h.conn.Send(wsFrame{Kind: frameText, Data: data})
}

// closeWithInvalidSession sends an InvalidSession frame followed by a close
// frame carrying the standard error close code.
func closeWithInvalidSession(conn *WebSocketConnection, resumable bool, logger *slog.Logger) {
	data, err := encodeEnvelope(OpInvalidSession, "", resumable, nil)
	if err != nil {
		logger.Error("encoding invalid session frame", slog.String("error", err.Error()))
	} else {
		conn.Send(wsFrame{Kind: frameText, Data: data})
	}
	conn.SendClose(websocket.StatusInternalError, "Channel closed or error encountered")
}
