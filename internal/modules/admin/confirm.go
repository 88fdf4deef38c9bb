package admin

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"

	"github.com/houseofmisfits/willow/internal/platform"
)

// TokenSource generates correlation tokens for confirmation prompts.
// Implemented by UUIDv7Source (production) and fixed sequences in tests.
type TokenSource interface {
	Generate() string
}

// UUIDv7Source generates time-sortable UUIDv7 tokens.
type UUIDv7Source struct{}

func (UUIDv7Source) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Confirmer manages are-you-sure prompts for destructive operations.
//
// Ask sends a prompt and blocks until a correlated follow-up message from the
// same author in the same channel arrives, or the timeout elapses. Timeout
// means declined, not error; the prompt message is deleted so stale prompts
// never linger. At most one prompt is pending per (channel, author).
//
// The Confirmer is itself a trigger. It must be registered before any command
// triggers so a "yes" reply is consumed as an answer rather than dispatched
// as an unknown command.
type Confirmer struct {
	log     *slog.Logger
	client  platform.Client
	clock   clock.Clock
	tokens  TokenSource
	timeout time.Duration

	mu      sync.Mutex
	pending map[pendingKey]*pendingPrompt
}

type pendingKey struct {
	channel platform.ChannelID
	member  platform.MemberID
}

type pendingPrompt struct {
	token  string
	result chan bool
}

// NewConfirmer creates a confirmer with the given reply timeout.
func NewConfirmer(log *slog.Logger, client platform.Client, clk clock.Clock, tokens TokenSource, timeout time.Duration) *Confirmer {
	return &Confirmer{
		log:     log,
		client:  client,
		clock:   clk,
		tokens:  tokens,
		timeout: timeout,
		pending: make(map[pendingKey]*pendingPrompt),
	}
}

// Ask prompts the author of msg and waits for their answer. Returns false
// when the author declines, answers anything other than yes, already has a
// prompt pending, or lets the timeout elapse.
func (c *Confirmer) Ask(ctx context.Context, msg *platform.Message, question string) (bool, error) {
	key := pendingKey{channel: msg.ChannelID, member: msg.Author}

	c.mu.Lock()
	if _, exists := c.pending[key]; exists {
		c.mu.Unlock()
		c.log.Debug("confirmation already pending", "channel", key.channel, "member", key.member)
		return false, nil
	}
	p := &pendingPrompt{
		token:  c.tokens.Generate(),
		result: make(chan bool, 1),
	}
	c.pending[key] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	prompt, err := c.client.SendMessage(ctx, msg.ChannelID, question)
	if err != nil {
		return false, err
	}
	c.log.Debug("confirmation prompt sent", "token", p.token, "member", key.member)

	timer := c.clock.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.removePrompt(prompt)
		return false, ctx.Err()
	case <-timer.C():
		c.log.Debug("confirmation timed out", "token", p.token)
		c.removePrompt(prompt)
		return false, nil
	case answer := <-p.result:
		return answer, nil
	}
}

func (c *Confirmer) removePrompt(prompt *platform.Message) {
	if err := c.client.DeleteMessage(context.Background(), prompt.ChannelID, prompt.ID); err != nil {
		c.log.Debug("could not remove confirmation prompt", "message", prompt.ID, "error", err)
	}
}

// Matches reports whether msg correlates with a pending prompt.
func (c *Confirmer) Matches(msg *platform.Message) bool {
	if msg.AuthorBot {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[pendingKey{channel: msg.ChannelID, member: msg.Author}]
	return ok
}

// Handle resolves the pending prompt. An explicit yes or no is consumed; any
// other content resolves the prompt as declined but falls through so the
// message can still be dispatched normally.
func (c *Confirmer) Handle(ctx context.Context, msg *platform.Message) (bool, error) {
	c.mu.Lock()
	p, ok := c.pending[pendingKey{channel: msg.ChannelID, member: msg.Author}]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(msg.Content)) {
	case "yes", "y":
		p.result <- true
		return true, nil
	case "no", "n", "cancel":
		p.result <- false
		return true, nil
	default:
		p.result <- false
		return false, nil
	}
}

func (c *Confirmer) Key() string {
	return "confirm"
}
