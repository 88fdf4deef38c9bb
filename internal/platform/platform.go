// Package platform defines the contract with the external chat-platform
// client. Willow's core never talks to the wire itself: it consumes inbound
// Message events and calls back through the Client interface for everything
// destructive (send, delete, role mutation, channel creation).
//
// The real client adapter lives outside this repository. Tests use the fake
// in internal/testutil.
package platform

import (
	"context"
	"time"
)

// ChannelID identifies a channel on the platform.
type ChannelID string

// MessageID identifies a message on the platform.
type MessageID string

// MemberID identifies a guild member on the platform.
type MemberID string

// RoleID identifies a role on the platform.
type RoleID string

// Message is an inbound message event as delivered by the platform client.
//
// Timestamp is the platform's own creation time for the message, in UTC.
// All time-window decisions convert it to the configured reference zone
// before comparing.
type Message struct {
	ID        MessageID
	ChannelID ChannelID
	Author    MemberID
	AuthorBot bool
	DM        bool
	Content   string
	Timestamp time.Time
}

// Client is the platform collaborator the core depends on.
//
// Every method is a potential suspension point (network round-trip) and takes
// a context. Errors are platform errors: the core treats them as transient
// and best-effort per the error taxonomy (log, clear state, never retry).
type Client interface {
	// SendMessage posts content to a channel and returns the created message.
	SendMessage(ctx context.Context, ch ChannelID, content string) (*Message, error)

	// DeleteMessage deletes a message by id. Deleting an already-deleted
	// message returns an error the caller is expected to swallow.
	DeleteMessage(ctx context.Context, ch ChannelID, id MessageID) error

	// History returns up to limit messages from a channel in
	// reverse-chronological order (newest first).
	History(ctx context.Context, ch ChannelID, limit int) ([]*Message, error)

	// GrantRole adds a role to a member. Granting an already-held role is a
	// platform-side no-op.
	GrantRole(ctx context.Context, member MemberID, role RoleID) error

	// RevokeRole removes a role from a member.
	RevokeRole(ctx context.Context, member MemberID, role RoleID) error

	// RoleMembers returns the members currently holding a role.
	RoleMembers(ctx context.Context, role RoleID) ([]MemberID, error)

	// MemberHasRole reports whether a member holds any of the given roles.
	MemberHasRole(ctx context.Context, member MemberID, roles ...RoleID) (bool, error)

	// CreateChannel creates a text channel and returns its id.
	CreateChannel(ctx context.Context, name string) (ChannelID, error)

	// SetPermissionOverwrite grants or revokes a member's read access to a
	// channel.
	SetPermissionOverwrite(ctx context.Context, ch ChannelID, member MemberID, allow bool) error

	// CreateDM returns the direct-message channel for a member, creating it
	// if it does not exist yet.
	CreateDM(ctx context.Context, member MemberID) (ChannelID, error)
}
