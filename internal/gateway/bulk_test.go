package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/amityvox/amityvox/internal/events"
)

func newTestRegistry() *ConnectedUsers {
	return NewConnectedUsers(4, 100, time.Minute, NewRoleUserMap(), NewGuildUserMap(), NewChannelGuildIndex())
}

func TestBulkMessageBuilder_EmptyRoleListDoesNotDropExplicitUsers(t *testing.T) {
	reg := newTestRegistry()
	user := reg.GetUserOrNew("user-1")
	sub := user.Subscribe()
	defer sub.Unsubscribe()

	ev := events.Event{Type: "TEST_EVENT", Data: json.RawMessage(`{}`)}

	err := reg.BulkMessageBuilder().
		AddUserRecipients("user-1").
		AddRoleRecipients(). // no roles at all
		SetMessage(ev).
		Send()
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case got := <-sub.C():
		if got.Type != "TEST_EVENT" {
			t.Errorf("type = %q, want TEST_EVENT", got.Type)
		}
	default:
		t.Error("explicit user recipient should have received the message even with no roles")
	}
}

func TestBulkMessageBuilder_UnionsExplicitAndRoleRecipients(t *testing.T) {
	reg := newTestRegistry()
	explicitUser := reg.GetUserOrNew("user-1")
	roleUser := reg.GetUserOrNew("user-2")
	explicitSub := explicitUser.Subscribe()
	roleSub := roleUser.Subscribe()
	defer explicitSub.Unsubscribe()
	defer roleSub.Unsubscribe()

	reg.Roles().AddRole("role-1")
	reg.Roles().AddMember("role-1", "user-2")

	ev := events.Event{Type: "TEST_EVENT", Data: json.RawMessage(`{}`)}
	err := reg.BulkMessageBuilder().
		AddUserRecipients("user-1").
		AddRoleRecipients("role-1").
		SetMessage(ev).
		Send()
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case <-explicitSub.C():
	default:
		t.Error("explicit user recipient did not receive the message")
	}
	select {
	case <-roleSub.C():
	default:
		t.Error("role-expanded recipient did not receive the message")
	}
}

func TestBulkMessageBuilder_SendWithNoMessageErrors(t *testing.T) {
	reg := newTestRegistry()
	err := reg.BulkMessageBuilder().AddUserRecipients("user-1").Send()
	if err != ErrNoMessage {
		t.Errorf("err = %v, want ErrNoMessage", err)
	}
}

func TestBulkMessageBuilder_SkipsDisconnectedRecipients(t *testing.T) {
	reg := newTestRegistry()
	ev := events.Event{Type: "TEST_EVENT", Data: json.RawMessage(`{}`)}

	err := reg.BulkMessageBuilder().AddUserRecipients("nobody-connected").SetMessage(ev).Send()
	if err != nil {
		t.Fatalf("Send() should silently skip recipients with no live inbox: %v", err)
	}
}
