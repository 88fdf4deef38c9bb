// Package dmrelay forwards direct messages to the bot's administrators.
//
// The bot cannot converse, so a member who DMs it gets a canned
// acknowledgement while the message itself is relayed to every holder of an
// admin role, each in their own DM channel.
package dmrelay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/trigger"
)

// Name is the registry name of the DM relay module.
const Name = "dmrelay"

const ackText = "Thanks for your message! I'm just a bot, but I've passed it along to the moderators."

// Module relays inbound DMs.
type Module struct {
	log        *slog.Logger
	client     platform.Client
	adminRoles []platform.RoleID
	flag       module.Flag
}

// Factory builds the relay module. adminRoles are the roles whose holders
// receive relayed copies.
func Factory(log *slog.Logger, client platform.Client, adminRoles []platform.RoleID) module.Factory {
	return func() (module.Module, error) {
		m := &Module{
			log:        log.With("module", Name),
			client:     client,
			adminRoles: adminRoles,
		}
		return m, nil
	}
}

func (m *Module) Name() string { return Name }

func (m *Module) Triggers(ctx context.Context) <-chan trigger.Trigger {
	out := make(chan trigger.Trigger)
	go func() {
		defer close(out)
		select {
		case out <- trigger.NewDM(m.relay):
		case <-ctx.Done():
		}
	}()
	return out
}

func (m *Module) Close() {
	m.flag.Close()
}

// relay acknowledges the sender and forwards the message to every admin. A
// failed forward to one admin does not stop delivery to the rest.
func (m *Module) relay(ctx context.Context, msg *platform.Message) (bool, error) {
	if _, err := m.client.SendMessage(ctx, msg.ChannelID, ackText); err != nil {
		m.log.Error("could not acknowledge DM", "member", msg.Author, "error", err)
	}

	admins, err := m.admins(ctx)
	if err != nil {
		return true, fmt.Errorf("resolving admins: %w", err)
	}
	if len(admins) == 0 {
		m.log.Warn("DM received but no admins to relay to", "member", msg.Author)
		return true, nil
	}

	body := fmt.Sprintf("DM from %s: %s", msg.Author, msg.Content)
	for _, admin := range admins {
		if admin == msg.Author {
			continue
		}
		ch, err := m.client.CreateDM(ctx, admin)
		if err != nil {
			m.log.Error("could not open admin DM", "admin", admin, "error", err)
			continue
		}
		if _, err := m.client.SendMessage(ctx, ch, body); err != nil {
			m.log.Error("could not relay DM", "admin", admin, "error", err)
		}
	}
	m.log.Info("DM relayed", "member", msg.Author, "admins", len(admins))
	return true, nil
}

// admins returns the deduplicated holders of every admin role.
func (m *Module) admins(ctx context.Context) ([]platform.MemberID, error) {
	seen := make(map[platform.MemberID]bool)
	var out []platform.MemberID
	for _, role := range m.adminRoles {
		members, err := m.client.RoleMembers(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("listing members of %s: %w", role, err)
		}
		for _, member := range members {
			if !seen[member] {
				seen[member] = true
				out = append(out, member)
			}
		}
	}
	return out, nil
}
