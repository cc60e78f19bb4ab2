package gateway

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/amityvox/amityvox/internal/events"
)

// broadcastGuildID is events.Bus's sentinel GuildID value for instance-wide
// announcements (see PublishBroadcastEvent), delivered to every connected
// user rather than resolved through guild or role membership.
const broadcastGuildID = "__broadcast__"

// EventBridge subscribes to the domain event bus on startup and translates
// each received domain event into a BulkMessageBuilder dispatch targeted by
// the envelope's guild/channel/user routing fields, using GuildUserMap and
// ChannelGuildIndex to resolve recipients. It also keeps RoleUserMap,
// GuildUserMap and ChannelGuildIndex in sync as guild-membership,
// role-lifecycle and channel-lifecycle events arrive.
type EventBridge struct {
	registry *ConnectedUsers
	bus      *events.Bus
	logger   *slog.Logger
	subs     []*nats.Subscription
}

// NewEventBridge constructs a bridge. Subscribe starts delivery.
func NewEventBridge(registry *ConnectedUsers, bus *events.Bus, logger *slog.Logger) *EventBridge {
	return &EventBridge{registry: registry, bus: bus, logger: logger}
}

// Subscribe subscribes to every domain event subject the Gateway forwards.
// It subscribes once per subject pattern, not once per connected user.
func (b *EventBridge) Subscribe() error {
	sub, err := b.bus.SubscribeWildcard("amityvox.>", b.handle)
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	return nil
}

// Unsubscribe tears down every subscription made by Subscribe.
func (b *EventBridge) Unsubscribe() {
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn("unsubscribing event bridge", slog.String("error", err.Error()))
		}
	}
	b.subs = nil
}

// handle is the single callback invoked for every subscribed subject; it
// first keeps RoleUserMap/GuildUserMap in sync, then fans the event out to
// its resolved recipients.
func (b *EventBridge) handle(subject string, ev events.Event) {
	b.syncMembership(subject, ev)

	builder := b.registry.BulkMessageBuilder().SetMessage(ev)

	switch {
	case ev.UserID != "":
		builder.AddUserRecipients(ev.UserID)
	case ev.GuildID == broadcastGuildID:
		builder.AddUserRecipients(b.registry.AllUserIDs()...)
	case ev.GuildID != "":
		builder.AddUserRecipients(b.registry.Guilds().Users(ev.GuildID)...)
	case ev.ChannelID != "":
		// Channel events carry no guild id of their own; resolve through the
		// parent guild and deliver to its whole membership, since per-channel
		// visibility filtering is out of scope.
		if guildID, ok := b.registry.Channels().GuildFor(ev.ChannelID); ok {
			builder.AddUserRecipients(b.registry.Guilds().Users(guildID)...)
		} else {
			return
		}
	default:
		// No routing field set and not a user-targeted event: nothing to
		// resolve recipients from, so there is nothing to forward.
		return
	}

	if err := builder.Send(); err != nil {
		b.logger.Error("event bridge dispatch failed",
			slog.String("subject", subject),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// syncMembership updates RoleUserMap/GuildUserMap for the lifecycle subjects
// that affect recipient resolution. Other subjects pass through unchanged.
func (b *EventBridge) syncMembership(subject string, ev events.Event) {
	switch subject {
	case events.SubjectGuildMemberAdd:
		if ev.GuildID != "" && ev.UserID != "" {
			b.registry.Guilds().AddMember(ev.GuildID, ev.UserID)
		}
	case events.SubjectGuildMemberRemove:
		if ev.GuildID != "" && ev.UserID != "" {
			b.registry.Guilds().RemoveMember(ev.GuildID, ev.UserID)
			b.registry.Roles().RemoveUserFromAllRoles(ev.UserID)
		}
	case events.SubjectGuildMemberUpdate:
		var payload struct {
			RolesAdded   []string `json:"roles_added"`
			RolesRemoved []string `json:"roles_removed"`
		}
		if ev.UserID != "" && decodeEventData(ev.Data, &payload) {
			for _, roleID := range payload.RolesAdded {
				b.registry.Roles().AddMember(roleID, ev.UserID)
			}
			for _, roleID := range payload.RolesRemoved {
				b.registry.Roles().RemoveMember(roleID, ev.UserID)
			}
		}
	case events.SubjectGuildRoleCreate:
		var payload struct {
			Role struct {
				ID string `json:"id"`
			} `json:"role"`
		}
		if decodeEventData(ev.Data, &payload) {
			b.registry.Roles().AddRole(payload.Role.ID)
		}
	case events.SubjectGuildRoleDelete:
		var payload struct {
			RoleID string `json:"role_id"`
		}
		if decodeEventData(ev.Data, &payload) {
			b.registry.Roles().RemoveRole(payload.RoleID)
		}
	case events.SubjectChannelCreate:
		var payload struct {
			ID      string  `json:"id"`
			GuildID *string `json:"guild_id"`
		}
		if decodeEventData(ev.Data, &payload) && payload.GuildID != nil {
			b.registry.Channels().SetChannel(payload.ID, *payload.GuildID)
		}
	case events.SubjectChannelDelete:
		var payload struct {
			ID string `json:"id"`
		}
		if decodeEventData(ev.Data, &payload) {
			b.registry.Channels().RemoveChannel(payload.ID)
		}
	}
}

// decodeEventData unmarshals an event's raw payload into v, logging nothing
// on failure: a malformed or unexpected payload shape just skips the
// membership-index update for that event.
func decodeEventData(data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
