package testutil

import (
	"time"

	"github.com/houseofmisfits/willow/internal/platform"
)

// Msg builds an inbound channel message for tests.
func Msg(id platform.MessageID, ch platform.ChannelID, author platform.MemberID, content string, ts time.Time) *platform.Message {
	return &platform.Message{
		ID:        id,
		ChannelID: ch,
		Author:    author,
		Content:   content,
		Timestamp: ts,
	}
}

// BotMsg builds a bot-authored channel message for tests.
func BotMsg(id platform.MessageID, ch platform.ChannelID, author platform.MemberID, content string, ts time.Time) *platform.Message {
	m := Msg(id, ch, author, content, ts)
	m.AuthorBot = true
	return m
}

// DMMsg builds an inbound direct message for tests.
func DMMsg(id platform.MessageID, author platform.MemberID, content string, ts time.Time) *platform.Message {
	return &platform.Message{
		ID:        id,
		ChannelID: platform.ChannelID("dm-" + string(author)),
		Author:    author,
		DM:        true,
		Content:   content,
		Timestamp: ts,
	}
}
