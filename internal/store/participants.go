package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/houseofmisfits/willow/internal/platform"
)

// DateLayout is the canonical YYYY-MM-DD form participation dates are stored
// in. Lexicographic order matches chronological order.
const DateLayout = "2006-01-02"

// Participant is one row of the participation table.
type Participant struct {
	Date      string
	Member    platform.MemberID
	MessageID platform.MessageID
}

// AddParticipant records a member's participation for a date. Returns
// added=false when the (date, member) pair already exists - the composite
// primary key makes reprocessing a qualifying event a no-op.
func (s *Store) AddParticipant(ctx context.Context, date string, member platform.MemberID, msg platform.MessageID) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO event_participants (participation_dt, member_id, message_id)
		VALUES (?, ?, ?)
		ON CONFLICT(participation_dt, member_id) DO NOTHING
	`, date, string(member), string(msg))
	if err != nil {
		return false, fmt.Errorf("add participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add participant: %w", err)
	}
	return n > 0, nil
}

// HasParticipant reports whether a member is already recorded for a date.
func (s *Store) HasParticipant(ctx context.Context, date string, member platform.MemberID) (bool, error) {
	var one int
	err := s.queryRow(ctx,
		"SELECT 1 FROM event_participants WHERE participation_dt = ? AND member_id = ?",
		[]any{date, string(member)}, &one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return true, nil
}

// Participants returns every participation record for a date, ordered by
// member id for deterministic output.
func (s *Store) Participants(ctx context.Context, date string) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participation_dt, member_id, message_id
		FROM event_participants
		WHERE participation_dt = ?
		ORDER BY member_id ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var p Participant
		var member, msg string
		if err := rows.Scan(&p.Date, &member, &msg); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.Member = platform.MemberID(member)
		p.MessageID = platform.MessageID(msg)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return out, nil
}
