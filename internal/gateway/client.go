package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amityvox/amityvox/internal/events"
	"github.com/amityvox/amityvox/internal/models"
)

// SessionValidator resolves an opaque bearer session token to a user id. A
// *auth.Service satisfies this interface, standing in for the "JWT-derived
// user identity" collaborator the core spec describes abstractly.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (string, error)
}

// clientState is the GatewayClient session state machine.
type clientState int

const (
	stateUnauthenticated clientState = iota
	stateAuthenticating
	stateResuming
	stateReady
	stateClosing
)

const defaultHistoryCapacity = 256

// ClientConfig groups the dependencies a GatewayClient needs, shared across
// every connection the Server accepts.
type ClientConfig struct {
	Registry          *ConnectedUsers
	Validator         SessionValidator
	HeartbeatInterval time.Duration
	LatencyBuffer     time.Duration
	Logger            *slog.Logger
}

// GatewayClient is one per live WebSocket session. It owns the connection,
// drives the per-session protocol state machine, and coordinates with its
// HeartbeatMonitor via a shared sequence counter and kill-switch.
type GatewayClient struct {
	cfg  ClientConfig
	conn *WebSocketConnection

	state        clientState
	sessionToken string
	parent       *GatewayUser // weak back-reference; cleared under parent's lock on teardown
	userSub      *subscription[events.Event]
	lastSequence *sequenceCounter
	kill         *killSwitch
	history      *eventHistory
	heartbeats   chan uint64
}

// NewGatewayClient constructs a client wrapping conn. Run must be called to
// drive it.
func NewGatewayClient(conn *WebSocketConnection, cfg ClientConfig) *GatewayClient {
	return &GatewayClient{
		cfg:          cfg,
		conn:         conn,
		state:        stateUnauthenticated,
		lastSequence: &sequenceCounter{},
		kill:         newKillSwitch(),
		history:      newEventHistory(defaultHistoryCapacity),
		heartbeats:   make(chan uint64, 1),
	}
}

// Run drives the client to completion: sends Hello, starts the heartbeat
// monitor, and processes inbound frames and user-inbox events until killed.
// It blocks until the session tears down and must be called from its own
// goroutine per connection.
func (c *GatewayClient) Run(ctx context.Context) {
	defer c.teardown()

	if err := c.sendHello(); err != nil {
		c.cfg.Logger.Error("sending hello", slog.String("error", err.Error()))
		return
	}

	monitor := NewHeartbeatMonitor(c.conn, c.lastSequence, c.kill, c.heartbeats, c.cfg.HeartbeatInterval, c.cfg.LatencyBuffer, c.cfg.Logger)
	go monitor.Run()

	inboundSub := c.conn.SubscribeInbound()
	defer inboundSub.Unsubscribe()

	var userEvents <-chan events.Event

	for {
		select {
		case <-c.kill.Done():
			return

		case frame, ok := <-inboundSub.C():
			if !ok {
				return
			}
			if frame.Kind == frameClose {
				return
			}
			if err := c.handleFrame(ctx, frame); err != nil {
				c.cfg.Logger.Warn("gateway frame handling error", slog.String("error", err.Error()))
				return
			}
			if c.state == stateReady && userEvents == nil && c.userSub != nil {
				userEvents = c.userSub.C()
			}

		case ev, ok := <-userEvents:
			if !ok {
				// Broadcast overflow: our subscription channel was closed because
				// we fell too far behind. This is BackpressureOverflow, not a
				// silent drop.
				c.cfg.Logger.Warn("client inbox overflow", slog.String("error", ErrBackpressureOverflow.Error()))
				closeWithInvalidSession(c.conn, false, c.cfg.Logger)
				return
			}
			c.dispatch(ev.Type, ev.Data)
		}
	}
}

// handleFrame decodes and routes one inbound frame by opcode according to
// the session state machine.
func (c *GatewayClient) handleFrame(ctx context.Context, frame wsFrame) error {
	var msg GatewayMessage
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("%w: decoding frame: %v", ErrProtocolViolation, err)
	}

	switch msg.Op {
	case OpIdentify:
		return c.handleIdentify(ctx, msg)
	case OpResume:
		return c.handleResume(ctx, msg)
	case OpHeartbeat:
		return c.handleHeartbeatFrame(msg)
	case OpRequestMembers, OpPresenceUpdate, OpVoiceStateUpdate, OpSubscribe:
		if c.state != stateReady {
			closeWithInvalidSession(c.conn, false, c.cfg.Logger)
			return fmt.Errorf("%w: opcode %d before Ready", ErrProtocolViolation, msg.Op)
		}
		// Forwarded without permission evaluation; the Gateway's core does not
		// evaluate who may request members or update presence/voice state.
		c.cfg.Logger.Debug("forwarded client opcode", slog.Int("op", msg.Op))
		return nil
	default:
		if c.state == stateUnauthenticated {
			closeWithInvalidSession(c.conn, false, c.cfg.Logger)
			return fmt.Errorf("%w: opcode %d while unauthenticated", ErrProtocolViolation, msg.Op)
		}
		c.cfg.Logger.Debug("ignoring unknown opcode", slog.Int("op", msg.Op))
		return nil
	}
}

// handleIdentify processes the first Identify frame: a second Identify or
// Resume past Unauthenticated is a protocol violation (the two-Identify
// rule).
func (c *GatewayClient) handleIdentify(ctx context.Context, msg GatewayMessage) error {
	if c.state != stateUnauthenticated {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("%w: identify after authentication", ErrProtocolViolation)
	}
	c.state = stateAuthenticating

	var payload IdentifyPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("%w: decoding identify payload: %v", ErrProtocolViolation, err)
	}

	userID, err := c.cfg.Validator.ValidateSession(ctx, payload.Token)
	if err != nil {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("identify: %w", err)
	}

	c.sessionToken = models.NewULID().String()
	c.attachToUser(userID)

	c.state = stateReady
	c.dispatch("READY", ReadyPayload{SessionID: c.sessionToken, UserID: userID})
	return nil
}

// handleResume processes a Resume frame: a hit in the resume store upgrades
// the weak parent reference, replays missed events, and promotes the client
// to Ready; a miss or too-large a gap emits InvalidSession(resumable=false).
func (c *GatewayClient) handleResume(ctx context.Context, msg GatewayMessage) error {
	if c.state != stateUnauthenticated {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("%w: resume after authentication", ErrProtocolViolation)
	}
	c.state = stateResuming

	var payload ResumePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("%w: decoding resume payload: %v", ErrProtocolViolation, err)
	}

	if _, err := c.cfg.Validator.ValidateSession(ctx, payload.Token); err != nil {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("resume: %w", err)
	}

	info, ok := c.cfg.Registry.Resume().Take(payload.SessionID)
	if !ok {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("resume: %w", ErrResumeUnknown)
	}

	missed, covered := info.History.Since(uint64(payload.Seq))
	if !covered {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("resume: %w: gap exceeds retained history", ErrResumeUnknown)
	}

	c.sessionToken = payload.SessionID
	c.history = info.History
	c.lastSequence.mu.Lock()
	c.lastSequence.v = info.DisconnectedAtSeq
	c.lastSequence.mu.Unlock()
	c.attachToUser(info.Parent.ID())

	for _, entry := range missed {
		c.writeDispatch(entry.seq, entry.eventType, entry.data)
	}

	c.state = stateReady
	c.dispatch("RESUMED", ResumedPayload{SessionID: c.sessionToken})
	return nil
}

// handleHeartbeatFrame forwards a received sequence number to the heartbeat
// monitor without blocking the main loop: if the monitor hasn't drained the
// previous one yet, the stale value is discarded in favour of the freshest.
func (c *GatewayClient) handleHeartbeatFrame(msg GatewayMessage) error {
	var seq uint64
	if err := json.Unmarshal(msg.Data, &seq); err != nil {
		closeWithInvalidSession(c.conn, false, c.cfg.Logger)
		return fmt.Errorf("%w: decoding heartbeat payload: %v", ErrProtocolViolation, err)
	}
	select {
	case c.heartbeats <- seq:
	default:
		select {
		case <-c.heartbeats:
		default:
		}
		c.heartbeats <- seq
	}
	return nil
}

// attachToUser registers this client under userID in the registry, creating
// the GatewayUser if needed, and subscribes to its inbox.
func (c *GatewayClient) attachToUser(userID string) {
	user := c.cfg.Registry.GetUserOrNew(userID)
	c.parent = user
	user.AddClient(c.sessionToken, c)
	c.userSub = user.Subscribe()
}

// dispatch stamps and sends a server-originated event, recording it in this
// session's replay history.
func (c *GatewayClient) dispatch(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.cfg.Logger.Error("marshaling dispatch payload", slog.String("error", err.Error()))
		return
	}
	seq := c.lastSequence.Next()
	c.history.Record(seq, eventType, data)
	c.writeDispatch(seq, eventType, data)
}

func (c *GatewayClient) writeDispatch(seq uint64, eventType string, data json.RawMessage) {
	s := int64(seq)
	encoded, err := json.Marshal(GatewayMessage{Op: OpDispatch, Type: eventType, Data: data, Seq: &s})
	if err != nil {
		c.cfg.Logger.Error("encoding dispatch", slog.String("error", err.Error()))
		return
	}
	c.conn.Send(wsFrame{Kind: frameText, Data: encoded})
}

func (c *GatewayClient) sendHello() error {
	data, err := encodeEnvelope(OpHello, "", HelloPayload{HeartbeatInterval: int(c.cfg.HeartbeatInterval / time.Millisecond)}, nil)
	if err != nil {
		return err
	}
	c.conn.Send(wsFrame{Kind: frameText, Data: data})
	return nil
}

// teardown runs once Run's loop exits for any reason: it marks the session
// Closing, removes itself from its parent user (deregistering the user if
// this was its last client), and records a DisconnectInfo so a future
// Resume can reattach.
func (c *GatewayClient) teardown() {
	c.kill.Kill()
	c.state = stateClosing

	if c.parent == nil {
		return
	}

	parent := c.parent
	token := c.sessionToken
	c.parent = nil
	if c.userSub != nil {
		c.userSub.Unsubscribe()
	}

	if lastClient := parent.RemoveClient(token); lastClient {
		c.cfg.Registry.Deregister(parent.ID())
	}

	if token != "" {
		c.cfg.Registry.Resume().Insert(DisconnectInfo{
			SessionToken:      token,
			DisconnectedAtSeq: c.lastSequence.Load(),
			DisconnectedAt:    time.Now(),
			Parent:            parent,
			History:           c.history,
		})
	}
}
