// Package support gives members a private channel to talk to the moderators.
//
// The support command deletes the invoking message right away so the request
// is not broadcast, then finds or creates a channel only the requester and
// the moderators can see. The member-to-channel mapping persists, so asking
// again reuses the same channel.
package support

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
	"github.com/houseofmisfits/willow/internal/trigger"
)

// Name is the registry name of the support module.
const Name = "support"

const welcomeText = "This is your private support channel. Only you and the moderators can see it."

// Module handles support channel requests.
type Module struct {
	log    *slog.Logger
	client platform.Client
	store  *store.Store
	flag   module.Flag
}

// Factory builds the support module.
func Factory(log *slog.Logger, client platform.Client, st *store.Store) module.Factory {
	return func() (module.Module, error) {
		m := &Module{
			log:    log.With("module", Name),
			client: client,
			store:  st,
		}
		return m, nil
	}
}

func (m *Module) Name() string { return Name }

func (m *Module) Triggers(ctx context.Context) <-chan trigger.Trigger {
	out := make(chan trigger.Trigger)
	go func() {
		defer close(out)

		prefix, err := m.store.Get(ctx, store.PrefixKey, store.DefaultPrefix)
		if err != nil {
			m.log.Error("could not read command prefix", "error", err)
			prefix = store.DefaultPrefix
		}
		select {
		case out <- trigger.NewCommand(prefix, m.request, "support"):
		case <-ctx.Done():
		}
	}()
	return out
}

func (m *Module) Close() {
	m.flag.Close()
}

// request opens (or reuses) the requester's support channel. The invoking
// message is removed first; that removal is best-effort and never blocks the
// channel from being provisioned.
func (m *Module) request(ctx context.Context, msg *platform.Message) (bool, error) {
	if err := m.client.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		m.log.Warn("could not remove support request", "message", msg.ID, "error", err)
	}

	ch, err := m.channelFor(ctx, msg.Author)
	if err != nil {
		return true, err
	}
	if _, err := m.client.SendMessage(ctx, ch, fmt.Sprintf("<@%s> %s", msg.Author, welcomeText)); err != nil {
		m.log.Error("could not greet support channel", "channel", ch, "error", err)
	}
	return true, nil
}

func (m *Module) channelFor(ctx context.Context, member platform.MemberID) (platform.ChannelID, error) {
	ch, ok, err := m.store.SupportChannel(ctx, member)
	if err != nil {
		return "", fmt.Errorf("looking up support channel: %w", err)
	}
	if ok {
		return ch, nil
	}

	ch, err = m.client.CreateChannel(ctx, fmt.Sprintf("support-%s", member))
	if err != nil {
		return "", fmt.Errorf("creating support channel: %w", err)
	}
	if err := m.client.SetPermissionOverwrite(ctx, ch, member, true); err != nil {
		return "", fmt.Errorf("granting channel access: %w", err)
	}
	if err := m.store.SetSupportChannel(ctx, member, ch); err != nil {
		return "", fmt.Errorf("recording support channel: %w", err)
	}
	m.log.Info("support channel created", "member", member, "channel", ch)
	return ch, nil
}
