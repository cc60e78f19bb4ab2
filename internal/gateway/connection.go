package gateway

import (
	"context"
	"log/slog"

	"github.com/coder/websocket"
)

// frameKind discriminates the opaque WebSocket frame kinds a
// WebSocketConnection carries across its broadcasts.
type frameKind int

const (
	frameText frameKind = iota
	frameBinary
	frameClose
)

// wsFrame is the value type carried on a WebSocketConnection's broadcasts.
type wsFrame struct {
	Kind        frameKind
	Data        []byte
	CloseCode   websocket.StatusCode
	CloseReason string
}

// closeErrorFrame is published whenever the sink or stream fails, matching
// the fixed close code/reason the core uses for every unplanned teardown.
func closeErrorFrame() wsFrame {
	return wsFrame{
		Kind:        frameClose,
		CloseCode:   websocket.StatusInternalError,
		CloseReason: "Channel closed or error encountered",
	}
}

// WebSocketConnection adapts a full-duplex *websocket.Conn into two
// broadcasts: outbound (publish to write to the remote) and inbound
// (subscribe to observe reads from the remote). Wrapping the raw connection
// in a mutex would serialise the heartbeat monitor and main dispatcher, which
// both need independent views of inbound traffic; broadcasting avoids that.
type WebSocketConnection struct {
	conn     *websocket.Conn
	outbound *broadcaster[wsFrame]
	inbound  *broadcaster[wsFrame]
}

// NewWebSocketConnection wraps conn and starts its sender and receiver
// goroutines. capacity bounds both broadcasts; a subscriber that falls more
// than capacity frames behind is dropped rather than stalling delivery to
// everyone else.
func NewWebSocketConnection(ctx context.Context, conn *websocket.Conn, capacity int, logger *slog.Logger) *WebSocketConnection {
	wc := &WebSocketConnection{
		conn:     conn,
		outbound: newBroadcaster[wsFrame](capacity),
		inbound:  newBroadcaster[wsFrame](capacity),
	}
	go wc.senderLoop(ctx, logger)
	go wc.receiverLoop(ctx, logger)
	return wc
}

// Send publishes a frame onto the outbound broadcast for the sender loop to
// write to the socket.
func (wc *WebSocketConnection) Send(frame wsFrame) {
	wc.outbound.Publish(frame)
}

// SendClose publishes a close frame, causing the sender loop to send it to
// the peer and terminate.
func (wc *WebSocketConnection) SendClose(code websocket.StatusCode, reason string) {
	wc.Send(wsFrame{Kind: frameClose, CloseCode: code, CloseReason: reason})
}

// SubscribeInbound returns a subscription observing frames read from the
// remote. Callers must Unsubscribe when done.
func (wc *WebSocketConnection) SubscribeInbound() *subscription[wsFrame] {
	return wc.inbound.Subscribe()
}

// senderLoop is the sole writer to the underlying socket: it drains the
// outbound broadcast and writes each frame, exiting on the first write error
// or once a close frame has been sent.
func (wc *WebSocketConnection) senderLoop(ctx context.Context, logger *slog.Logger) {
	sub := wc.outbound.Subscribe()
	defer sub.Unsubscribe()

	for frame := range sub.C() {
		if frame.Kind == frameClose {
			if err := wc.conn.Close(frame.CloseCode, frame.CloseReason); err != nil {
				logger.Debug("websocket close error", slog.String("error", err.Error()))
			}
			return
		}

		mt := websocket.MessageText
		if frame.Kind == frameBinary {
			mt = websocket.MessageBinary
		}
		if err := wc.conn.Write(ctx, mt, frame.Data); err != nil {
			logger.Debug("websocket write error", slog.String("error", ErrTransportFailure.Error()), slog.String("cause", err.Error()))
			cf := closeErrorFrame()
			_ = wc.conn.Close(cf.CloseCode, cf.CloseReason)
			return
		}
	}
}

// receiverLoop is the sole reader from the underlying socket: it publishes
// each inbound frame onto the inbound broadcast, and on read failure
// publishes a fatal Close frame onto the outbound broadcast so the sender
// loop notifies the peer and both loops terminate.
func (wc *WebSocketConnection) receiverLoop(ctx context.Context, logger *slog.Logger) {
	defer wc.inbound.Close()

	for {
		mt, data, err := wc.conn.Read(ctx)
		if err != nil {
			logger.Debug("websocket read error", slog.String("error", ErrTransportFailure.Error()), slog.String("cause", err.Error()))
			wc.outbound.Publish(closeErrorFrame())
			return
		}

		kind := frameText
		if mt == websocket.MessageBinary {
			kind = frameBinary
		}
		wc.inbound.Publish(wsFrame{Kind: kind, Data: data})
	}
}
