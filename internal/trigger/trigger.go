// Package trigger defines the predicate+handler pairs evaluated against
// inbound messages.
//
// A Trigger is a closed interface with three concrete variants:
//
//   - Channel: matches messages posted to one channel
//   - Command: matches prefixed commands ("." by default)
//   - DM: matches any direct message from a non-bot author
//
// The dispatcher only invokes Handle after Matches reported true. Handle
// returns true when the trigger fully owns the event (dispatch stops) and
// false to fall through to later triggers - a matched trigger may decline
// ownership, e.g. on a wrong subcommand.
package trigger

import (
	"context"

	"github.com/houseofmisfits/willow/internal/platform"
)

// Handler processes a message whose predicate already matched.
//
// The boolean result is the fallthrough control: true stops dispatch, false
// lets evaluation continue to the next registered trigger. A returned error
// is logged by the dispatcher and treated as false.
type Handler func(ctx context.Context, msg *platform.Message) (bool, error)

// Trigger is a predicate bound to a handler.
//
// Key returns the trigger's match key for diagnostics. Two triggers with the
// same key are legal but the later one is unreachable for events the earlier
// one terminates; the dispatcher warns on registration.
type Trigger interface {
	Matches(msg *platform.Message) bool
	Handle(ctx context.Context, msg *platform.Message) (bool, error)
	Key() string
}
