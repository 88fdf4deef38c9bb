package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Console is an in-process Client backed by standard input and output. It
// exists for local operation and demos: every line typed becomes an inbound
// message, and every platform call prints what it would have done.
//
// Lines are plain message content for the default channel. Two escapes
// change the envelope:
//
//	#channel some content   — message in a specific channel
//	@dm some content        — direct message to the bot
//
// Role state is held in memory and seeded from the constructor, so admin
// commands can be exercised without a real guild.
type Console struct {
	log *slog.Logger
	in  io.Reader
	out io.Writer

	mu       sync.Mutex
	roles    map[RoleID]map[MemberID]bool
	dms      map[MemberID]ChannelID
	nextMsg  int
	nextChan int
}

// DefaultChannel is where bare console lines land.
const DefaultChannel = ChannelID("console")

// ConsoleMember is the author of every console message.
const ConsoleMember = MemberID("operator")

// NewConsole creates a console client. The operator holds every role in
// grantRoles from the start.
func NewConsole(log *slog.Logger, in io.Reader, out io.Writer, grantRoles []RoleID) *Console {
	c := &Console{
		log:   log,
		in:    in,
		out:   out,
		roles: make(map[RoleID]map[MemberID]bool),
		dms:   make(map[MemberID]ChannelID),
	}
	for _, r := range grantRoles {
		c.roles[r] = map[MemberID]bool{ConsoleMember: true}
	}
	return c
}

// ReadLoop reads lines until EOF or ctx cancellation, submitting each as an
// inbound message. submit returning false stops the loop.
func (c *Console) ReadLoop(ctx context.Context, submit func(*Message) bool) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !submit(c.parseLine(line)) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Error("console read failed", "error", err)
	}
}

func (c *Console) parseLine(line string) *Message {
	c.mu.Lock()
	c.nextMsg++
	id := MessageID(fmt.Sprintf("console-%d", c.nextMsg))
	c.mu.Unlock()

	msg := &Message{
		ID:        id,
		ChannelID: DefaultChannel,
		Author:    ConsoleMember,
		Content:   line,
		Timestamp: time.Now().UTC(),
	}
	switch {
	case strings.HasPrefix(line, "#"):
		if ch, rest, ok := strings.Cut(line[1:], " "); ok {
			msg.ChannelID = ChannelID(ch)
			msg.Content = rest
		}
	case strings.HasPrefix(line, "@dm "):
		msg.DM = true
		msg.ChannelID = ChannelID("dm-" + string(ConsoleMember))
		msg.Content = strings.TrimPrefix(line, "@dm ")
	}
	return msg
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) SendMessage(ctx context.Context, ch ChannelID, content string) (*Message, error) {
	c.mu.Lock()
	c.nextMsg++
	id := MessageID(fmt.Sprintf("sent-%d", c.nextMsg))
	c.mu.Unlock()
	c.printf("[%s] %s", ch, content)
	return &Message{ID: id, ChannelID: ch, AuthorBot: true, Content: content, Timestamp: time.Now().UTC()}, nil
}

func (c *Console) DeleteMessage(ctx context.Context, ch ChannelID, id MessageID) error {
	c.printf("[%s] (deleted %s)", ch, id)
	return nil
}

func (c *Console) History(ctx context.Context, ch ChannelID, limit int) ([]*Message, error) {
	return nil, nil
}

func (c *Console) GrantRole(ctx context.Context, member MemberID, role RoleID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roles[role] == nil {
		c.roles[role] = make(map[MemberID]bool)
	}
	c.roles[role][member] = true
	c.printf("(granted %s to %s)", role, member)
	return nil
}

func (c *Console) RevokeRole(ctx context.Context, member MemberID, role RoleID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.roles[role], member)
	c.printf("(revoked %s from %s)", role, member)
	return nil
}

func (c *Console) RoleMembers(ctx context.Context, role RoleID) ([]MemberID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []MemberID
	for m := range c.roles[role] {
		out = append(out, m)
	}
	return out, nil
}

func (c *Console) MemberHasRole(ctx context.Context, member MemberID, roles ...RoleID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range roles {
		if c.roles[r][member] {
			return true, nil
		}
	}
	return false, nil
}

func (c *Console) CreateChannel(ctx context.Context, name string) (ChannelID, error) {
	c.mu.Lock()
	c.nextChan++
	id := ChannelID(fmt.Sprintf("local-%d", c.nextChan))
	c.mu.Unlock()
	c.printf("(created channel %s %q)", id, name)
	return id, nil
}

func (c *Console) SetPermissionOverwrite(ctx context.Context, ch ChannelID, member MemberID, allow bool) error {
	c.printf("(overwrite %s for %s allow=%t)", ch, member, allow)
	return nil
}

func (c *Console) CreateDM(ctx context.Context, member MemberID) (ChannelID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.dms[member]; ok {
		return ch, nil
	}
	ch := ChannelID("dm-" + string(member))
	c.dms[member] = ch
	return ch, nil
}
