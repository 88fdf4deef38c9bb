package trigger

import (
	"context"

	"github.com/houseofmisfits/willow/internal/platform"
)

// DM matches any direct message from a non-bot author.
type DM struct {
	handler Handler
}

// NewDM creates a direct-message trigger.
func NewDM(h Handler) *DM {
	return &DM{handler: h}
}

func (t *DM) Matches(msg *platform.Message) bool {
	return msg.DM && !msg.AuthorBot
}

func (t *DM) Handle(ctx context.Context, msg *platform.Message) (bool, error) {
	return t.handler(ctx, msg)
}

func (t *DM) Key() string {
	return "dm"
}
