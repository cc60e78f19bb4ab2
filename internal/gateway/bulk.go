package gateway

import (
	"github.com/amityvox/amityvox/internal/events"
)

// BulkMessageBuilder accumulates recipients by user id and/or role id plus
// one Event, then dispatches it to the union of resolved user ids.
//
// The source this was grounded on adds explicit user recipients from inside
// the per-role iteration loop, so an empty role list silently drops
// explicitly-added users. This implementation instead computes the explicit
// user set and the role-expanded user set as two independent, unconditional
// passes, unioned into one result — see the regression test covering an
// empty role list.
type BulkMessageBuilder struct {
	registry *ConnectedUsers
	users    map[string]struct{}
	roles    []string
	message  *events.Event
}

// AddUserRecipients adds explicit user id recipients.
func (b *BulkMessageBuilder) AddUserRecipients(userIDs ...string) *BulkMessageBuilder {
	if b.users == nil {
		b.users = make(map[string]struct{})
	}
	for _, id := range userIDs {
		b.users[id] = struct{}{}
	}
	return b
}

// AddRoleRecipients adds role ids whose members should be resolved as
// recipients via the registry's RoleUserMap.
func (b *BulkMessageBuilder) AddRoleRecipients(roleIDs ...string) *BulkMessageBuilder {
	b.roles = append(b.roles, roleIDs...)
	return b
}

// SetMessage attaches the event to dispatch.
func (b *BulkMessageBuilder) SetMessage(ev events.Event) *BulkMessageBuilder {
	b.message = &ev
	return b
}

// Send resolves the union of explicit user recipients and role-expanded
// recipients and publishes a copy of the message into each one's inbox.
// Recipients with no registered inbox (not currently connected) are silently
// skipped, since their inbox is a live resource, not a queryable resource.
func (b *BulkMessageBuilder) Send() error {
	if b.message == nil {
		return ErrNoMessage
	}

	recipients := make(map[string]struct{}, len(b.users))
	for id := range b.users {
		recipients[id] = struct{}{}
	}
	for _, roleID := range b.roles {
		for _, userID := range b.registry.Roles().Users(roleID) {
			recipients[userID] = struct{}{}
		}
	}

	for userID := range recipients {
		user, ok := b.registry.Lookup(userID)
		if !ok {
			continue
		}
		user.Deliver(*b.message)
	}
	return nil
}
