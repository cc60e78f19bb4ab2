package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleUserMap is the role_id -> set<user_id> reverse index used to resolve
// role-scoped recipients for BulkMessageBuilder. It is seeded once from the
// relational store and thereafter kept in sync by observing guild-member and
// role lifecycle events from the event bus bridge; Init must not be invoked
// again afterwards.
type RoleUserMap struct {
	mu   sync.RWMutex
	data map[string]map[string]struct{}
}

// NewRoleUserMap constructs an empty map. Call Init once before serving
// traffic.
func NewRoleUserMap() *RoleUserMap {
	return &RoleUserMap{data: make(map[string]map[string]struct{})}
}

// Init loads every role id (each starting with an empty user set) and then
// every member-role pair, populating the corresponding role's set. Orphan
// member_roles rows are impossible under the schema's foreign-key
// constraints, so no reconciliation pass is needed.
func (m *RoleUserMap) Init(ctx context.Context, pool *pgxpool.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := pool.Query(ctx, `SELECT id FROM roles`)
	if err != nil {
		return fmt.Errorf("querying roles: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning role id: %w", err)
		}
		if _, ok := m.data[id]; !ok {
			m.data[id] = make(map[string]struct{})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating roles: %w", err)
	}

	memberRows, err := pool.Query(ctx, `SELECT user_id, role_id FROM member_roles`)
	if err != nil {
		return fmt.Errorf("querying member_roles: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var userID, roleID string
		if err := memberRows.Scan(&userID, &roleID); err != nil {
			return fmt.Errorf("scanning member_role: %w", err)
		}
		if _, ok := m.data[roleID]; !ok {
			m.data[roleID] = make(map[string]struct{})
		}
		m.data[roleID][userID] = struct{}{}
	}
	if err := memberRows.Err(); err != nil {
		return fmt.Errorf("iterating member_roles: %w", err)
	}

	return nil
}

// Users returns the set of user ids currently assigned roleID, as a slice.
// An unknown role id returns nil, not an error.
func (m *RoleUserMap) Users(roleID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.data[roleID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}

// AddRole registers a newly created role with an empty user set, in response
// to a GuildRoleCreate event.
func (m *RoleUserMap) AddRole(roleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[roleID]; !ok {
		m.data[roleID] = make(map[string]struct{})
	}
}

// RemoveRole drops a role entirely, in response to a GuildRoleDelete event.
func (m *RoleUserMap) RemoveRole(roleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, roleID)
}

// AddMember adds userID to roleID's set, in response to a GuildMemberAdd or
// GuildMemberUpdate event granting the role.
func (m *RoleUserMap) AddMember(roleID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[roleID]; !ok {
		m.data[roleID] = make(map[string]struct{})
	}
	m.data[roleID][userID] = struct{}{}
}

// RemoveMember removes userID from roleID's set, in response to a
// GuildMemberRemove or GuildMemberUpdate event revoking the role.
func (m *RoleUserMap) RemoveMember(roleID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.data[roleID]; ok {
		delete(set, userID)
	}
}

// RemoveUserFromAllRoles removes userID from every role's set, used when a
// member leaves the guild entirely.
func (m *RoleUserMap) RemoveUserFromAllRoles(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range m.data {
		delete(set, userID)
	}
}
