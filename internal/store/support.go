package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/houseofmisfits/willow/internal/platform"
)

// SupportChannel returns the private support channel recorded for a member,
// with ok=false when the member has none yet.
func (s *Store) SupportChannel(ctx context.Context, member platform.MemberID) (platform.ChannelID, bool, error) {
	var ch string
	err := s.queryRow(ctx,
		"SELECT channel_id FROM support_channels WHERE member_id = ?",
		[]any{string(member)}, &ch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup support channel: %w", err)
	}
	return platform.ChannelID(ch), true, nil
}

// SetSupportChannel records the support channel for a member, replacing any
// previous mapping.
func (s *Store) SetSupportChannel(ctx context.Context, member platform.MemberID, ch platform.ChannelID) error {
	_, err := s.exec(ctx, `
		INSERT INTO support_channels (member_id, channel_id) VALUES (?, ?)
		ON CONFLICT(member_id) DO UPDATE SET channel_id = excluded.channel_id
	`, string(member), string(ch))
	if err != nil {
		return fmt.Errorf("set support channel: %w", err)
	}
	return nil
}
