package gateway

import "encoding/json"

// Gateway opcodes. Mirrors the wire protocol the bot SDK and browser clients
// speak against /api/v1/gateway.
const (
	OpDispatch         = 0
	OpHeartbeat        = 1
	OpIdentify         = 2
	OpPresenceUpdate   = 3
	OpVoiceStateUpdate = 4
	OpResume           = 6
	OpReconnect        = 7
	OpRequestMembers   = 8
	OpInvalidSession   = 9
	OpHello            = 10
	OpHeartbeatAck     = 11
	OpTyping           = 12
	OpSubscribe        = 13
)

// GatewayMessage is the wire envelope for every frame exchanged over the
// gateway WebSocket. op is always present; d is omitted from frames that
// carry no data (HeartbeatAck, Reconnect); s and t are only present on
// server-dispatched events.
type GatewayMessage struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
}

// IdentifyPayload is sent client→server as the first frame after Hello.
type IdentifyPayload struct {
	Token   string `json:"token"`
	Intents int    `json:"intents,omitempty"`
}

// ResumePayload is sent client→server in place of Identify when the client
// holds a prior session token and last-seen sequence number.
type ResumePayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// HelloPayload is sent server→client immediately after the WebSocket upgrade.
type HelloPayload struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// ReadyPayload is sent server→client once Identify succeeds.
type ReadyPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// ResumedPayload is sent server→client once a Resume succeeds.
type ResumedPayload struct {
	SessionID string `json:"session_id"`
}

// RequestMembersPayload is sent client→server to request the full member list
// of a guild, forwarded without permission evaluation.
type RequestMembersPayload struct {
	GuildID string `json:"guild_id"`
}

func encodeEnvelope(op int, eventType string, data interface{}, seq *int64) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return json.Marshal(GatewayMessage{Op: op, Type: eventType, Data: raw, Seq: seq})
}
