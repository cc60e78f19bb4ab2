package gateway

import (
	"sync"

	"github.com/amityvox/amityvox/internal/events"
)

// GatewayUser is one per distinct identity. It owns the set of live
// GatewayClients authenticated as that identity and the inbox broadcaster
// domain events are delivered into. Equality is identity by ID; a user
// exists in the registry iff at least one client currently references it or
// it has just been created by GetUserOrNew.
type GatewayUser struct {
	id       string
	inbox    *broadcaster[events.Event]
	registry *ConnectedUsers

	mu      sync.RWMutex
	clients map[string]*GatewayClient // session_token -> client
}

func newGatewayUser(id string, inbox *broadcaster[events.Event], registry *ConnectedUsers) *GatewayUser {
	return &GatewayUser{
		id:       id,
		inbox:    inbox,
		registry: registry,
		clients:  make(map[string]*GatewayClient),
	}
}

// ID returns the identity this GatewayUser represents.
func (u *GatewayUser) ID() string { return u.id }

// AddClient registers c under token in this user's live client map.
func (u *GatewayUser) AddClient(token string, c *GatewayClient) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.clients[token] = c
}

// RemoveClient removes token from the live client map and reports whether
// this was the last client, in which case the caller should deregister the
// user from the registry (done outside the lock, per the registry's
// ordering contract).
func (u *GatewayUser) RemoveClient(token string) (lastClient bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.clients, token)
	return len(u.clients) == 0
}

// ClientCount reports the number of currently live clients for this user.
func (u *GatewayUser) ClientCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.clients)
}

// Subscribe returns a fresh subscription to this user's inbox, used by a
// newly-authenticated or resumed GatewayClient.
func (u *GatewayUser) Subscribe() *subscription[events.Event] {
	return u.inbox.Subscribe()
}

// Deliver publishes ev to every client subscribed to this user's inbox.
func (u *GatewayUser) Deliver(ev events.Event) {
	u.inbox.Publish(ev)
}
