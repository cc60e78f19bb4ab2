// Package models defines the shared data types the gateway consumes from its
// relational store: instances, users, sessions, guilds, channels, roles, and
// guild membership. Types include JSON tags for wire serialization and match
// the PostgreSQL schema the REST surface (out of scope here) also reads from.
package models

import (
	"encoding/json"
	"time"
)

// Instance represents a single AmityVox deployment. Each instance has a unique
// domain and Ed25519 keypair for federation. Corresponds to the instances table.
type Instance struct {
	ID              string          `json:"id"`
	Domain          string          `json:"domain"`
	PublicKey       string          `json:"public_key"`
	Name            *string         `json:"name,omitempty"`
	Description     *string         `json:"description,omitempty"`
	Software        string          `json:"software"`
	SoftwareVersion *string         `json:"software_version,omitempty"`
	FederationMode  string          `json:"federation_mode"`
	ProtocolVersion *string         `json:"protocol_version,omitempty"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	LastSeenAt      *time.Time      `json:"last_seen_at,omitempty"`
}

// User represents a user account on an AmityVox instance. Users are identified
// globally as @username@instance.domain. Corresponds to the users table.
type User struct {
	ID              string     `json:"id"`
	InstanceID      string     `json:"instance_id"`
	Username        string     `json:"username"`
	DisplayName     *string    `json:"display_name,omitempty"`
	AvatarID        *string    `json:"avatar_id,omitempty"`
	StatusText      *string    `json:"status_text,omitempty"`
	StatusEmoji     *string    `json:"status_emoji,omitempty"`
	StatusPresence  string     `json:"status_presence"`
	StatusExpiresAt *time.Time `json:"status_expires_at,omitempty"`
	Bio             *string    `json:"bio,omitempty"`
	BotOwnerID      *string    `json:"bot_owner_id,omitempty"`
	PasswordHash    *string    `json:"-"`
	Email           *string    `json:"-"`
	Flags           int        `json:"flags"`
	LastOnline      *time.Time `json:"last_online,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	InstanceDomain  *string    `json:"instance_domain,omitempty"` // Set for remote/federated users
}

// SelfUser is a response-only wrapper that includes the email field.
// Used for endpoints where the user is viewing their own profile (@me, login, register).
type SelfUser struct {
	*User
	Email *string `json:"email,omitempty"`
}

// ToSelf returns a SelfUser wrapper that includes the email field in JSON output.
func (u *User) ToSelf() SelfUser {
	return SelfUser{User: u, Email: u.Email}
}

// UserFlags defines bitfield flags for user account status.
const (
	UserFlagSuspended = 1 << 0
	UserFlagDeleted   = 1 << 1
	UserFlagAdmin     = 1 << 2
	UserFlagBot       = 1 << 3
	UserFlagVerified  = 1 << 4
	UserFlagGlobalMod = 1 << 5
)

// IsSuspended reports whether the user is suspended.
func (u User) IsSuspended() bool { return u.Flags&UserFlagSuspended != 0 }

// IsDeleted reports whether the user is deleted.
func (u User) IsDeleted() bool { return u.Flags&UserFlagDeleted != 0 }

// IsAdmin reports whether the user is an instance admin.
func (u User) IsAdmin() bool { return u.Flags&UserFlagAdmin != 0 }

// IsBot reports whether the user is a bot account.
func (u User) IsBot() bool { return u.Flags&UserFlagBot != 0 }

// IsGlobalMod reports whether the user is a global moderator.
func (u User) IsGlobalMod() bool { return u.Flags&UserFlagGlobalMod != 0 }

// UserSession represents an active login session. Session tokens are stored as
// the primary key and used as Bearer tokens for gateway Identify/Resume and API
// authentication. Corresponds to the user_sessions table.
type UserSession struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	DeviceName   *string   `json:"device_name,omitempty"`
	IPAddress    *string   `json:"ip_address,omitempty"`
	UserAgent    *string   `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Guild represents a server (a collection of channels, members, and roles).
// Corresponds to the guilds table.
type Guild struct {
	ID                 string    `json:"id"`
	InstanceID         string    `json:"instance_id"`
	InstanceDomain     string    `json:"instance_domain,omitempty"`
	OwnerID            string    `json:"owner_id"`
	Name               string    `json:"name"`
	Description        *string   `json:"description,omitempty"`
	IconID              *string   `json:"icon_id,omitempty"`
	BannerID            *string   `json:"banner_id,omitempty"`
	DefaultPermissions int64     `json:"default_permissions"`
	Flags              int       `json:"flags"`
	NSFW               bool      `json:"nsfw"`
	Discoverable       bool      `json:"discoverable"`
	PreferredLocale    string    `json:"preferred_locale"`
	MaxMembers         int       `json:"max_members"`
	VerificationLevel  int       `json:"verification_level"`
	AFKChannelID       *string   `json:"afk_channel_id,omitempty"`
	AFKTimeout         int       `json:"afk_timeout"`
	MemberCount        int       `json:"member_count,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Channel represents a text, voice, DM, group, or other channel type. Guild
// channels belong to a guild; DM/group channels are standalone.
// Corresponds to the channels table.
type Channel struct {
	ID                 string    `json:"id"`
	GuildID            *string   `json:"guild_id,omitempty"`
	CategoryID         *string   `json:"category_id,omitempty"`
	ChannelType        string    `json:"channel_type"`
	Name               *string   `json:"name,omitempty"`
	Topic              *string   `json:"topic,omitempty"`
	Position           int       `json:"position"`
	SlowmodeSeconds    int       `json:"slowmode_seconds"`
	NSFW               bool      `json:"nsfw"`
	LastMessageID      *string   `json:"last_message_id,omitempty"`
	OwnerID            *string   `json:"owner_id,omitempty"`
	DefaultPermissions *int64    `json:"default_permissions,omitempty"`
	UserLimit          int       `json:"user_limit"`
	Bitrate            int       `json:"bitrate"`
	Archived           bool      `json:"archived"`
	ReadOnly           bool      `json:"read_only"`
	ReadOnlyRoleIDs    []string  `json:"read_only_role_ids,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	Recipients         []User    `json:"recipients,omitempty"`
}

// ChannelType constants for channels.channel_type.
const (
	ChannelTypeText         = "text"
	ChannelTypeVoice        = "voice"
	ChannelTypeDM           = "dm"
	ChannelTypeGroup        = "group"
	ChannelTypeAnnouncement = "announcement"
	ChannelTypeForum        = "forum"
	ChannelTypeGallery      = "gallery"
	ChannelTypeStage        = "stage"
)

// Role represents a permission bundle within a guild. Roles have allow/deny
// bitfield pairs and are rank-ordered by position. Corresponds to the roles table.
type Role struct {
	ID               string    `json:"id"`
	GuildID          string    `json:"guild_id"`
	Name             string    `json:"name"`
	Color            *string   `json:"color,omitempty"`
	Hoist            bool      `json:"hoist"`
	Mentionable      bool      `json:"mentionable"`
	Position         int       `json:"position"`
	PermissionsAllow int64     `json:"permissions_allow"`
	PermissionsDeny  int64     `json:"permissions_deny"`
	CreatedAt        time.Time `json:"created_at"`
}

// GuildMember represents a user's membership in a guild, including per-guild
// nickname, avatar override, and timeout status. Corresponds to the guild_members table.
type GuildMember struct {
	GuildID      string     `json:"guild_id"`
	UserID       string     `json:"user_id"`
	Nickname     *string    `json:"nickname,omitempty"`
	AvatarID     *string    `json:"avatar_id,omitempty"`
	JoinedAt     time.Time  `json:"joined_at"`
	TimeoutUntil *time.Time `json:"timeout_until,omitempty"`
	Deaf         bool       `json:"deaf"`
	Mute         bool       `json:"mute"`
	User         *User      `json:"user,omitempty"`
	Roles        []string   `json:"roles,omitempty"`
}

// IsTimedOut reports whether the member is currently timed out.
func (m GuildMember) IsTimedOut() bool {
	return m.TimeoutUntil != nil && m.TimeoutUntil.After(time.Now())
}

// MemberRole associates a guild member with a role. Corresponds to the
// member_roles table.
type MemberRole struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	RoleID  string `json:"role_id"`
}
