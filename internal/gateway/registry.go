package gateway

import (
	"sync"
	"time"

	"github.com/amityvox/amityvox/internal/events"
)

// ConnectedUsers is the process-wide fan-out registry: identity lookup and
// the resume store. It is passed explicitly to every component that needs
// it rather than reached through ambient/global state, so lifetimes and
// locking stay explicit (see DESIGN.md).
type ConnectedUsers struct {
	mu       sync.RWMutex
	users    map[string]*GatewayUser
	resume   *ResumableClientsStore
	roles    *RoleUserMap
	guilds   *GuildUserMap
	channels *ChannelGuildIndex
	capacity int
}

// NewConnectedUsers constructs an empty registry. capacity bounds each
// user's inbox broadcast; resumeMax/resumeRetention bound the resume store.
func NewConnectedUsers(capacity, resumeMax int, resumeRetention time.Duration, roles *RoleUserMap, guilds *GuildUserMap, channels *ChannelGuildIndex) *ConnectedUsers {
	return &ConnectedUsers{
		users:    make(map[string]*GatewayUser),
		resume:   NewResumableClientsStore(resumeMax, resumeRetention),
		roles:    roles,
		guilds:   guilds,
		channels: channels,
		capacity: capacity,
	}
}

// GetUserOrNew returns the existing GatewayUser for id, or atomically creates
// one with an empty client map and no subscriptions.
func (c *ConnectedUsers) GetUserOrNew(id string) *GatewayUser {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u, ok := c.users[id]; ok {
		return u
	}
	u := newGatewayUser(id, newBroadcaster[events.Event](c.capacity), c)
	c.users[id] = u
	return u
}

// Lookup returns the existing GatewayUser for id without creating one.
func (c *ConnectedUsers) Lookup(id string) (*GatewayUser, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

// Deregister removes id from the user map. Callers must hold no lock on the
// corresponding GatewayUser across this call.
func (c *ConnectedUsers) Deregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, id)
}

// BulkMessageBuilder returns a fresh, empty builder bound to this registry.
func (c *ConnectedUsers) BulkMessageBuilder() *BulkMessageBuilder {
	return &BulkMessageBuilder{registry: c}
}

// Resume returns the resume store backing this registry.
func (c *ConnectedUsers) Resume() *ResumableClientsStore {
	return c.resume
}

// Roles returns the RoleUserMap backing this registry.
func (c *ConnectedUsers) Roles() *RoleUserMap {
	return c.roles
}

// Guilds returns the GuildUserMap backing this registry.
func (c *ConnectedUsers) Guilds() *GuildUserMap {
	return c.guilds
}

// Channels returns the ChannelGuildIndex backing this registry.
func (c *ConnectedUsers) Channels() *ChannelGuildIndex {
	return c.channels
}

// AllUserIDs returns every currently registered user id, used to resolve
// instance-wide broadcast events.
func (c *ConnectedUsers) AllUserIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.users))
	for id := range c.users {
		ids = append(ids, id)
	}
	return ids
}
