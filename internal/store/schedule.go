package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/houseofmisfits/willow/internal/platform"
)

// ScheduleEntry is one row of the day-schedule table. Channel is nil when no
// rotation is configured for that day.
type ScheduleEntry struct {
	Day     int // 0=Monday .. 6=Sunday
	Channel *platform.ChannelID
}

// ChannelFor returns the channel configured for a day of week, with ok=false
// when the day has no rotation configured.
func (s *Store) ChannelFor(ctx context.Context, day int) (platform.ChannelID, bool, error) {
	if day < 0 || day > 6 {
		return "", false, fmt.Errorf("day of week out of range: %d", day)
	}
	var ch sql.NullString
	err := s.queryRow(ctx,
		"SELECT channel_id FROM event_channels WHERE day_of_week = ?", []any{day}, &ch)
	if errors.Is(err, sql.ErrNoRows) {
		// Missing row: schema invariant says 7 rows exist, but treat a gap
		// the same as an unconfigured day.
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read schedule day %d: %w", day, err)
	}
	if !ch.Valid || ch.String == "" {
		return "", false, nil
	}
	return platform.ChannelID(ch.String), true, nil
}

// Schedule returns all seven schedule entries ordered by day of week.
func (s *Store) Schedule(ctx context.Context) ([]ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT day_of_week, channel_id FROM event_channels ORDER BY day_of_week ASC")
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	defer rows.Close()

	var entries []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		var ch sql.NullString
		if err := rows.Scan(&e.Day, &ch); err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		if ch.Valid && ch.String != "" {
			id := platform.ChannelID(ch.String)
			e.Channel = &id
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule: %w", err)
	}
	return entries, nil
}

// SetDayChannel configures the rotation channel for a day of week.
func (s *Store) SetDayChannel(ctx context.Context, day int, ch platform.ChannelID) error {
	if day < 0 || day > 6 {
		return fmt.Errorf("day of week out of range: %d", day)
	}
	_, err := s.exec(ctx, `
		INSERT INTO event_channels (day_of_week, channel_id) VALUES (?, ?)
		ON CONFLICT(day_of_week) DO UPDATE SET channel_id = excluded.channel_id
	`, day, string(ch))
	if err != nil {
		return fmt.Errorf("set schedule day %d: %w", day, err)
	}
	return nil
}

// ClearDayChannel removes the rotation channel for a day of week. The row
// stays (7 rows at steady state); only the channel goes NULL.
func (s *Store) ClearDayChannel(ctx context.Context, day int) error {
	if day < 0 || day > 6 {
		return fmt.Errorf("day of week out of range: %d", day)
	}
	_, err := s.exec(ctx, `
		INSERT INTO event_channels (day_of_week, channel_id) VALUES (?, NULL)
		ON CONFLICT(day_of_week) DO UPDATE SET channel_id = NULL
	`, day)
	if err != nil {
		return fmt.Errorf("clear schedule day %d: %w", day, err)
	}
	return nil
}
