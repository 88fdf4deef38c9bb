// Package testutil provides test doubles shared across packages: a recording
// fake of the platform client and message builders.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/houseofmisfits/willow/internal/platform"
)

// FakeClient is an in-memory platform.Client that records every call in a
// transcript. Errors can be injected per message id or globally per method.
//
// Thread-safe: handlers run on their own goroutines.
type FakeClient struct {
	mu sync.Mutex

	transcript []string

	sent      []*platform.Message
	deleted   []platform.MessageID
	histories map[platform.ChannelID][]*platform.Message
	roles     map[platform.RoleID]map[platform.MemberID]bool
	dms       map[platform.MemberID]platform.ChannelID
	overrides map[platform.ChannelID]map[platform.MemberID]bool

	nextSent    int
	nextChannel int

	// Injected failures.
	DeleteErr  map[platform.MessageID]error
	HistoryErr error
	GrantErr   error
}

// NewFakeClient creates an empty fake client.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		histories: make(map[platform.ChannelID][]*platform.Message),
		roles:     make(map[platform.RoleID]map[platform.MemberID]bool),
		dms:       make(map[platform.MemberID]platform.ChannelID),
		overrides: make(map[platform.ChannelID]map[platform.MemberID]bool),
		DeleteErr: make(map[platform.MessageID]error),
	}
}

func (c *FakeClient) record(format string, args ...any) {
	c.transcript = append(c.transcript, fmt.Sprintf(format, args...))
}

// Transcript returns a copy of every recorded platform call, in order.
func (c *FakeClient) Transcript() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.transcript))
	copy(out, c.transcript)
	return out
}

func (c *FakeClient) SendMessage(ctx context.Context, ch platform.ChannelID, content string) (*platform.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSent++
	msg := &platform.Message{
		ID:        platform.MessageID(fmt.Sprintf("sent-%d", c.nextSent)),
		ChannelID: ch,
		AuthorBot: true,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	c.sent = append(c.sent, msg)
	c.record("send %s %q", ch, content)
	return msg, nil
}

func (c *FakeClient) DeleteMessage(ctx context.Context, ch platform.ChannelID, id platform.MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.DeleteErr[id]; ok {
		c.record("delete %s %s error=%v", ch, id, err)
		return err
	}
	c.deleted = append(c.deleted, id)
	c.record("delete %s %s", ch, id)
	return nil
}

func (c *FakeClient) History(ctx context.Context, ch platform.ChannelID, limit int) ([]*platform.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HistoryErr != nil {
		return nil, c.HistoryErr
	}
	msgs := c.histories[ch]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]*platform.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (c *FakeClient) GrantRole(ctx context.Context, member platform.MemberID, role platform.RoleID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GrantErr != nil {
		return c.GrantErr
	}
	if c.roles[role] == nil {
		c.roles[role] = make(map[platform.MemberID]bool)
	}
	c.roles[role][member] = true
	c.record("grant %s %s", member, role)
	return nil
}

func (c *FakeClient) RevokeRole(ctx context.Context, member platform.MemberID, role platform.RoleID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.roles[role], member)
	c.record("revoke %s %s", member, role)
	return nil
}

func (c *FakeClient) RoleMembers(ctx context.Context, role platform.RoleID) ([]platform.MemberID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []platform.MemberID
	for m := range c.roles[role] {
		out = append(out, m)
	}
	return out, nil
}

func (c *FakeClient) MemberHasRole(ctx context.Context, member platform.MemberID, roles ...platform.RoleID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range roles {
		if c.roles[r][member] {
			return true, nil
		}
	}
	return false, nil
}

func (c *FakeClient) CreateChannel(ctx context.Context, name string) (platform.ChannelID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextChannel++
	id := platform.ChannelID(fmt.Sprintf("created-%d", c.nextChannel))
	c.record("create-channel %s %s", id, name)
	return id, nil
}

func (c *FakeClient) SetPermissionOverwrite(ctx context.Context, ch platform.ChannelID, member platform.MemberID, allow bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overrides[ch] == nil {
		c.overrides[ch] = make(map[platform.MemberID]bool)
	}
	c.overrides[ch][member] = allow
	c.record("overwrite %s %s allow=%t", ch, member, allow)
	return nil
}

func (c *FakeClient) CreateDM(ctx context.Context, member platform.MemberID) (platform.ChannelID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.dms[member]; ok {
		return ch, nil
	}
	ch := platform.ChannelID("dm-" + string(member))
	c.dms[member] = ch
	c.record("create-dm %s %s", member, ch)
	return ch, nil
}

// SetHistory seeds the history returned for a channel (newest first, the
// platform's reverse-chronological contract).
func (c *FakeClient) SetHistory(ch platform.ChannelID, msgs ...*platform.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histories[ch] = msgs
}

// SeedRole pre-populates role holders without recording transcript entries.
func (c *FakeClient) SeedRole(role platform.RoleID, members ...platform.MemberID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roles[role] == nil {
		c.roles[role] = make(map[platform.MemberID]bool)
	}
	for _, m := range members {
		c.roles[role][m] = true
	}
}

// Sent returns every message sent so far.
func (c *FakeClient) Sent() []*platform.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*platform.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentTo returns the contents of messages sent to one channel.
func (c *FakeClient) SentTo(ch platform.ChannelID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		if m.ChannelID == ch {
			out = append(out, m.Content)
		}
	}
	return out
}

// Deleted returns the ids of every successfully deleted message.
func (c *FakeClient) Deleted() []platform.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]platform.MessageID, len(c.deleted))
	copy(out, c.deleted)
	return out
}

// HasRole reports role membership directly, for assertions.
func (c *FakeClient) HasRole(member platform.MemberID, role platform.RoleID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roles[role][member]
}

// Overwrite reports the recorded permission overwrite for a member, for
// assertions.
func (c *FakeClient) Overwrite(ch platform.ChannelID, member platform.MemberID) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	allow, ok := c.overrides[ch][member]
	return allow, ok
}
