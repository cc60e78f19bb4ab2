package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GuildUserMap is guild_id -> set<user_id>, the direct-membership
// counterpart to RoleUserMap. The event bridge resolves guild- and
// channel-scoped domain events against it: every event forwarded for a
// guild or one of its channels reaches every current member, since the
// Gateway's scope explicitly excludes per-channel visibility/permission
// evaluation (see Non-goals).
type GuildUserMap struct {
	mu   sync.RWMutex
	data map[string]map[string]struct{}
}

// NewGuildUserMap constructs an empty map. Call Init once before serving
// traffic.
func NewGuildUserMap() *GuildUserMap {
	return &GuildUserMap{data: make(map[string]map[string]struct{})}
}

// Init loads every guild_members row, grouping user ids by guild id.
func (m *GuildUserMap) Init(ctx context.Context, pool *pgxpool.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := pool.Query(ctx, `SELECT guild_id, user_id FROM guild_members`)
	if err != nil {
		return fmt.Errorf("querying guild_members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guildID, userID string
		if err := rows.Scan(&guildID, &userID); err != nil {
			return fmt.Errorf("scanning guild_member: %w", err)
		}
		if _, ok := m.data[guildID]; !ok {
			m.data[guildID] = make(map[string]struct{})
		}
		m.data[guildID][userID] = struct{}{}
	}
	return rows.Err()
}

// Users returns the member ids of guildID as a slice. An unknown guild
// returns nil, not an error.
func (m *GuildUserMap) Users(guildID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.data[guildID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}

// AddMember records userID joining guildID, in response to a
// GuildMemberAdd event.
func (m *GuildUserMap) AddMember(guildID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[guildID]; !ok {
		m.data[guildID] = make(map[string]struct{})
	}
	m.data[guildID][userID] = struct{}{}
}

// RemoveMember records userID leaving guildID, in response to a
// GuildMemberRemove event.
func (m *GuildUserMap) RemoveMember(guildID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.data[guildID]; ok {
		delete(set, userID)
	}
}

// ChannelGuildIndex is channel_id -> guild_id, letting the event bridge
// resolve channel-scoped domain events (which carry no guild id of their
// own) back to the guild whose membership should receive them. DM/group
// channels have no guild id and are absent from the index.
type ChannelGuildIndex struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewChannelGuildIndex constructs an empty index. Call Init once before
// serving traffic.
func NewChannelGuildIndex() *ChannelGuildIndex {
	return &ChannelGuildIndex{data: make(map[string]string)}
}

// Init loads every guild channel's parent guild id.
func (m *ChannelGuildIndex) Init(ctx context.Context, pool *pgxpool.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := pool.Query(ctx, `SELECT id, guild_id FROM channels WHERE guild_id IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var channelID, guildID string
		if err := rows.Scan(&channelID, &guildID); err != nil {
			return fmt.Errorf("scanning channel: %w", err)
		}
		m.data[channelID] = guildID
	}
	return rows.Err()
}

// GuildFor returns the guild id owning channelID, if any.
func (m *ChannelGuildIndex) GuildFor(channelID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	guildID, ok := m.data[channelID]
	return guildID, ok
}

// SetChannel records channelID's parent guild, in response to a
// ChannelCreate event.
func (m *ChannelGuildIndex) SetChannel(channelID, guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[channelID] = guildID
}

// RemoveChannel drops channelID from the index, in response to a
// ChannelDelete event.
func (m *ChannelGuildIndex) RemoveChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, channelID)
}
