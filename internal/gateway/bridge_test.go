package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/amityvox/amityvox/internal/events"
)

func newTestBridge(reg *ConnectedUsers) *EventBridge {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEventBridge(reg, nil, logger)
}

func TestEventBridge_UserScopedEventRoutesDirectly(t *testing.T) {
	reg := newTestRegistry()
	user := reg.GetUserOrNew("user-1")
	sub := user.Subscribe()
	defer sub.Unsubscribe()

	b := newTestBridge(reg)
	b.handle("amityvox.dm.message_create", events.Event{Type: "MESSAGE_CREATE", UserID: "user-1", Data: json.RawMessage(`{}`)})

	select {
	case <-sub.C():
	default:
		t.Error("user-scoped event should have reached its target user's inbox")
	}
}

func TestEventBridge_GuildScopedEventReachesMembers(t *testing.T) {
	reg := newTestRegistry()
	reg.Guilds().AddMember("guild-1", "user-1")
	user := reg.GetUserOrNew("user-1")
	sub := user.Subscribe()
	defer sub.Unsubscribe()

	b := newTestBridge(reg)
	b.handle("amityvox.guild.update", events.Event{Type: "GUILD_UPDATE", GuildID: "guild-1", Data: json.RawMessage(`{}`)})

	select {
	case <-sub.C():
	default:
		t.Error("guild-scoped event should have reached a guild member")
	}
}

func TestEventBridge_ChannelScopedEventResolvesThroughGuild(t *testing.T) {
	reg := newTestRegistry()
	reg.Channels().SetChannel("chan-1", "guild-1")
	reg.Guilds().AddMember("guild-1", "user-1")
	user := reg.GetUserOrNew("user-1")
	sub := user.Subscribe()
	defer sub.Unsubscribe()

	b := newTestBridge(reg)
	b.handle("amityvox.channel.message_create", events.Event{Type: "MESSAGE_CREATE", ChannelID: "chan-1", Data: json.RawMessage(`{}`)})

	select {
	case <-sub.C():
	default:
		t.Error("channel-scoped event should have reached the parent guild's member")
	}
}

func TestEventBridge_ChannelWithUnresolvedGuildIsDropped(t *testing.T) {
	reg := newTestRegistry()
	user := reg.GetUserOrNew("user-1")
	sub := user.Subscribe()
	defer sub.Unsubscribe()

	b := newTestBridge(reg)
	// chan-2 was never indexed, so there is no guild to resolve members from.
	b.handle("amityvox.channel.message_create", events.Event{Type: "MESSAGE_CREATE", ChannelID: "chan-2", Data: json.RawMessage(`{}`)})

	select {
	case <-sub.C():
		t.Error("event for an unresolvable channel must not reach unrelated users")
	default:
	}
}

func TestEventBridge_BroadcastEventReachesEveryConnectedUser(t *testing.T) {
	reg := newTestRegistry()
	userA := reg.GetUserOrNew("user-1")
	userB := reg.GetUserOrNew("user-2")
	subA := userA.Subscribe()
	subB := userB.Subscribe()
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	b := newTestBridge(reg)
	b.handle("amityvox.instance.announcement", events.Event{Type: "ANNOUNCEMENT", GuildID: broadcastGuildID, Data: json.RawMessage(`{}`)})

	select {
	case <-subA.C():
	default:
		t.Error("broadcast event should reach user A")
	}
	select {
	case <-subB.C():
	default:
		t.Error("broadcast event should reach user B")
	}
}

func TestEventBridge_SyncMembership_GuildMemberAddAndRemove(t *testing.T) {
	reg := newTestRegistry()
	b := newTestBridge(reg)

	b.syncMembership(events.SubjectGuildMemberAdd, events.Event{GuildID: "guild-1", UserID: "user-1"})
	if got := reg.Guilds().Users("guild-1"); len(got) != 1 {
		t.Fatalf("guild members = %v, want 1 after add", got)
	}

	reg.Roles().AddMember("role-1", "user-1")
	b.syncMembership(events.SubjectGuildMemberRemove, events.Event{GuildID: "guild-1", UserID: "user-1"})
	if got := reg.Guilds().Users("guild-1"); len(got) != 0 {
		t.Errorf("guild members = %v, want empty after remove", got)
	}
	if got := reg.Roles().Users("role-1"); len(got) != 0 {
		t.Errorf("role members = %v, want empty: leaving a guild must drop all role memberships", got)
	}
}

func TestEventBridge_SyncMembership_RoleLifecycle(t *testing.T) {
	reg := newTestRegistry()
	b := newTestBridge(reg)

	b.syncMembership(events.SubjectGuildRoleCreate, events.Event{
		Data: json.RawMessage(`{"role":{"id":"role-1"}}`),
	})
	if got := reg.Roles().Users("role-1"); got != nil && len(got) != 0 {
		t.Fatalf("newly created role should start with no members, got %v", got)
	}

	b.syncMembership(events.SubjectGuildMemberUpdate, events.Event{
		UserID: "user-1",
		Data:   json.RawMessage(`{"roles_added":["role-1"]}`),
	})
	if got := reg.Roles().Users("role-1"); len(got) != 1 || got[0] != "user-1" {
		t.Errorf("role-1 members = %v, want [user-1]", got)
	}

	b.syncMembership(events.SubjectGuildRoleDelete, events.Event{
		Data: json.RawMessage(`{"role_id":"role-1"}`),
	})
	if got := reg.Roles().Users("role-1"); got != nil {
		t.Errorf("role should be gone entirely after delete, got %v", got)
	}
}

func TestEventBridge_SyncMembership_ChannelLifecycle(t *testing.T) {
	reg := newTestRegistry()
	b := newTestBridge(reg)

	guildID := "guild-1"
	b.syncMembership(events.SubjectChannelCreate, events.Event{
		Data: json.RawMessage(`{"id":"chan-1","guild_id":"guild-1"}`),
	})
	if got, ok := reg.Channels().GuildFor("chan-1"); !ok || got != guildID {
		t.Fatalf("GuildFor(chan-1) = (%q, %v), want (guild-1, true)", got, ok)
	}

	b.syncMembership(events.SubjectChannelDelete, events.Event{
		Data: json.RawMessage(`{"id":"chan-1"}`),
	})
	if _, ok := reg.Channels().GuildFor("chan-1"); ok {
		t.Error("channel should be removed from the index after delete")
	}
}

func TestEventBridge_SyncMembership_MalformedPayloadIsIgnored(t *testing.T) {
	reg := newTestRegistry()
	b := newTestBridge(reg)

	// Must not panic on garbage payloads; the update is simply skipped.
	b.syncMembership(events.SubjectGuildMemberUpdate, events.Event{UserID: "user-1", Data: json.RawMessage(`not json`)})
	b.syncMembership(events.SubjectChannelCreate, events.Event{Data: json.RawMessage(``)})
}
