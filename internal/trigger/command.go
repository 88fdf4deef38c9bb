package trigger

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/houseofmisfits/willow/internal/platform"
)

// Command matches prefixed command messages ("<prefix><name> args...").
//
// The prefix is resolved from dynamic configuration before the trigger is
// constructed, which is why command triggers arrive asynchronously from a
// module's trigger sequence.
//
// A command may answer to several names (aliases). Matching is done on the
// first whitespace-separated token of the NFC-normalized content.
type Command struct {
	prefix  string
	names   []string
	handler Handler
}

// NewCommand creates a command trigger answering to the given names.
func NewCommand(prefix string, h Handler, names ...string) *Command {
	return &Command{prefix: prefix, names: names, handler: h}
}

func (t *Command) Matches(msg *platform.Message) bool {
	if msg.DM || msg.AuthorBot {
		return false
	}
	args := Args(msg.Content)
	if len(args) == 0 || !strings.HasPrefix(args[0], t.prefix) {
		return false
	}
	name := args[0][len(t.prefix):]
	for _, n := range t.names {
		if name == n {
			return true
		}
	}
	return false
}

func (t *Command) Handle(ctx context.Context, msg *platform.Message) (bool, error) {
	return t.handler(ctx, msg)
}

func (t *Command) Key() string {
	return "command:" + t.prefix + strings.Join(t.names, ",")
}

// Args splits message content into whitespace-separated tokens after NFC
// normalization. User-typed input can arrive in decomposed form from some
// platform clients; normalizing first keeps command and day-name matching
// byte-exact.
func Args(content string) []string {
	return strings.Fields(norm.NFC.String(content))
}
