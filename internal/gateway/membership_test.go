package gateway

import "testing"

func TestGuildUserMap_AddAndRemoveMember(t *testing.T) {
	m := NewGuildUserMap()
	m.AddMember("guild-1", "user-1")
	m.AddMember("guild-1", "user-2")

	users := m.Users("guild-1")
	if len(users) != 2 {
		t.Fatalf("users = %v, want 2 entries", users)
	}

	m.RemoveMember("guild-1", "user-1")
	users = m.Users("guild-1")
	if len(users) != 1 || users[0] != "user-2" {
		t.Errorf("users after remove = %v, want [user-2]", users)
	}
}

func TestGuildUserMap_UnknownGuildReturnsNil(t *testing.T) {
	m := NewGuildUserMap()
	if got := m.Users("nonexistent"); got != nil {
		t.Errorf("Users() = %v, want nil for unknown guild", got)
	}
}

func TestGuildUserMap_RemoveMemberFromUnknownGuildIsNoop(t *testing.T) {
	m := NewGuildUserMap()
	m.RemoveMember("nonexistent", "user-1") // must not panic
}

func TestChannelGuildIndex_SetAndResolve(t *testing.T) {
	idx := NewChannelGuildIndex()
	idx.SetChannel("chan-1", "guild-1")

	guildID, ok := idx.GuildFor("chan-1")
	if !ok || guildID != "guild-1" {
		t.Errorf("GuildFor() = (%q, %v), want (guild-1, true)", guildID, ok)
	}
}

func TestChannelGuildIndex_RemoveChannel(t *testing.T) {
	idx := NewChannelGuildIndex()
	idx.SetChannel("chan-1", "guild-1")
	idx.RemoveChannel("chan-1")

	if _, ok := idx.GuildFor("chan-1"); ok {
		t.Error("expected channel to be absent after removal")
	}
}

func TestChannelGuildIndex_UnknownChannelMisses(t *testing.T) {
	idx := NewChannelGuildIndex()
	if _, ok := idx.GuildFor("nonexistent"); ok {
		t.Error("expected unknown channel to miss")
	}
}
