package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeValidator struct {
	userID string
	err    error
}

func (f fakeValidator) ValidateSession(ctx context.Context, token string) (string, error) {
	return f.userID, f.err
}

func newTestConn() *WebSocketConnection {
	return &WebSocketConnection{
		outbound: newBroadcaster[wsFrame](8),
		inbound:  newBroadcaster[wsFrame](8),
	}
}

func newTestClient(reg *ConnectedUsers, validator SessionValidator) (*GatewayClient, *subscription[wsFrame]) {
	conn := newTestConn()
	outSub := conn.outbound.Subscribe()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewGatewayClient(conn, ClientConfig{
		Registry:          reg,
		Validator:         validator,
		HeartbeatInterval: time.Second,
		LatencyBuffer:     time.Second,
		Logger:            logger,
	})
	return c, outSub
}

func identifyFrame(t *testing.T, token string) wsFrame {
	t.Helper()
	data, err := json.Marshal(GatewayMessage{Op: OpIdentify, Data: mustMarshal(t, IdentifyPayload{Token: token})})
	if err != nil {
		t.Fatalf("marshaling identify frame: %v", err)
	}
	return wsFrame{Kind: frameText, Data: data}
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestGatewayClient_HandleIdentify_Success(t *testing.T) {
	reg := newTestRegistry()
	c, outSub := newTestClient(reg, fakeValidator{userID: "user-1"})
	defer outSub.Unsubscribe()

	if err := c.handleFrame(context.Background(), identifyFrame(t, "tok")); err != nil {
		t.Fatalf("handleFrame() error: %v", err)
	}
	if c.state != stateReady {
		t.Errorf("state = %v, want stateReady", c.state)
	}
	if c.parent == nil || c.parent.ID() != "user-1" {
		t.Error("client should be attached to the identified user")
	}
}

func TestGatewayClient_HandleIdentify_TwiceIsProtocolViolation(t *testing.T) {
	reg := newTestRegistry()
	c, outSub := newTestClient(reg, fakeValidator{userID: "user-1"})
	defer outSub.Unsubscribe()

	if err := c.handleFrame(context.Background(), identifyFrame(t, "tok")); err != nil {
		t.Fatalf("first identify failed: %v", err)
	}

	err := c.handleFrame(context.Background(), identifyFrame(t, "tok"))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("second identify error = %v, want ErrProtocolViolation", err)
	}
}

func TestGatewayClient_HandleFrame_RejectsPrivilegedOpcodeBeforeReady(t *testing.T) {
	reg := newTestRegistry()
	c, outSub := newTestClient(reg, fakeValidator{userID: "user-1"})
	defer outSub.Unsubscribe()

	data, _ := json.Marshal(GatewayMessage{Op: OpRequestMembers, Data: mustMarshal(t, RequestMembersPayload{GuildID: "guild-1"})})
	err := c.handleFrame(context.Background(), wsFrame{Kind: frameText, Data: data})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("err = %v, want ErrProtocolViolation", err)
	}
}

func TestGatewayClient_HandleResume_UnknownTokenIsResumeUnknown(t *testing.T) {
	reg := newTestRegistry()
	c, outSub := newTestClient(reg, fakeValidator{userID: "user-1"})
	defer outSub.Unsubscribe()

	data, _ := json.Marshal(GatewayMessage{Op: OpResume, Data: mustMarshal(t, ResumePayload{Token: "tok", SessionID: "nonexistent", Seq: 0})})
	err := c.handleFrame(context.Background(), wsFrame{Kind: frameText, Data: data})
	if !errors.Is(err, ErrResumeUnknown) {
		t.Errorf("err = %v, want ErrResumeUnknown", err)
	}
}

func TestGatewayClient_HandleIdentify_ValidationFailureClosesSession(t *testing.T) {
	reg := newTestRegistry()
	c, outSub := newTestClient(reg, fakeValidator{err: errors.New("bad token")})
	defer outSub.Unsubscribe()

	err := c.handleFrame(context.Background(), identifyFrame(t, "bad"))
	if err == nil {
		t.Fatal("expected an error from a failed identify")
	}
	if c.state == stateReady {
		t.Error("state must not advance to Ready on a failed identify")
	}
}
