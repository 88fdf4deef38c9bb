package trigger

import (
	"context"

	"github.com/houseofmisfits/willow/internal/platform"
)

// Channel matches every message posted to a single channel.
type Channel struct {
	channel platform.ChannelID
	handler Handler
}

// NewChannel creates a channel trigger bound to ch.
func NewChannel(ch platform.ChannelID, h Handler) *Channel {
	return &Channel{channel: ch, handler: h}
}

// ChannelID returns the channel the trigger is bound to.
func (t *Channel) ChannelID() platform.ChannelID {
	return t.channel
}

func (t *Channel) Matches(msg *platform.Message) bool {
	return !msg.DM && msg.ChannelID == t.channel
}

func (t *Channel) Handle(ctx context.Context, msg *platform.Message) (bool, error) {
	return t.handler(ctx, msg)
}

func (t *Channel) Key() string {
	return "channel:" + string(t.channel)
}
