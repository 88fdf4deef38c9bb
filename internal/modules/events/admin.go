package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
	"github.com/houseofmisfits/willow/internal/trigger"
)

const adminUsage = `Subcommands:
` + "`set <day> <#channel>`" + ` - configure the event channel for a day of week
` + "`clear <day>`" + ` - remove the event for a day of week
` + "`role <@role>`" + ` - set the participant role
` + "`getparticipants [day|date]`" + ` - list participants; a past date enters backdating mode
` + "`resetparticipants`" + ` - leave backdating mode and restore today's state`

// handleAdmin dispatches the event admin subcommands. Thin CRUD over the
// schedule and participation tables; the interesting work is in the reset
// and backdating entry points it calls.
func (m *Module) handleAdmin(ctx context.Context, msg *platform.Message) (bool, error) {
	ok, err := m.auth.Authorized(ctx, msg.Author)
	if err != nil {
		return false, err
	}
	if !ok {
		m.reply(ctx, msg, "You're not authorized to use that command")
		return false, nil
	}

	args := trigger.Args(msg.Content)
	if len(args) == 1 {
		m.reply(ctx, msg, adminUsage)
		return true, nil
	}

	switch args[1] {
	case "set":
		return m.cmdSet(ctx, msg, args)
	case "clear":
		return m.cmdClear(ctx, msg, args)
	case "role":
		return m.cmdRole(ctx, msg, args)
	case "getparticipants":
		return m.cmdGetParticipants(ctx, msg, args)
	case "resetparticipants":
		return m.cmdResetParticipants(ctx, msg)
	default:
		m.reply(ctx, msg, fmt.Sprintf("Unknown subcommand %q. Run `%s` to see subcommands.", args[1], args[0]))
		return true, nil
	}
}

func (m *Module) cmdSet(ctx context.Context, msg *platform.Message, args []string) (bool, error) {
	if len(args) != 4 {
		m.reply(ctx, msg, fmt.Sprintf("Syntax is incorrect. Should be `%s set <day> <#channel>`.", args[0]))
		return true, nil
	}
	day, err := parseDay(args[2])
	if err != nil {
		m.reply(ctx, msg, err.Error())
		return true, nil
	}
	ch, err := parseChannelRef(args[3])
	if err != nil {
		m.reply(ctx, msg, err.Error())
		return true, nil
	}
	if err := m.store.SetDayChannel(ctx, day, ch); err != nil {
		return false, err
	}
	m.resetTrigger(ctx)
	m.reply(ctx, msg, fmt.Sprintf("Event for %s set to <#%s>.", dayNames[day], ch))
	return true, nil
}

func (m *Module) cmdClear(ctx context.Context, msg *platform.Message, args []string) (bool, error) {
	if len(args) != 3 {
		m.reply(ctx, msg, fmt.Sprintf("Syntax is incorrect. Should be `%s clear <day>`.", args[0]))
		return true, nil
	}
	day, err := parseDay(args[2])
	if err != nil {
		m.reply(ctx, msg, err.Error())
		return true, nil
	}
	if err := m.store.ClearDayChannel(ctx, day); err != nil {
		return false, err
	}
	m.resetTrigger(ctx)
	m.reply(ctx, msg, fmt.Sprintf("Event for %s cleared.", dayNames[day]))
	return true, nil
}

func (m *Module) cmdRole(ctx context.Context, msg *platform.Message, args []string) (bool, error) {
	if len(args) != 3 {
		m.reply(ctx, msg, fmt.Sprintf("Syntax is incorrect. Should be `%s role <@role>`.", args[0]))
		return true, nil
	}
	role, err := parseRoleRef(args[2])
	if err != nil {
		m.reply(ctx, msg, err.Error())
		return true, nil
	}
	// The OnChange subscription on the role key rebuilds this module.
	if err := m.store.Set(ctx, RoleKey, string(role)); err != nil {
		return false, err
	}
	m.reply(ctx, msg, fmt.Sprintf("Participant role set to <@&%s>.", role))
	return true, nil
}

func (m *Module) cmdGetParticipants(ctx context.Context, msg *platform.Message, args []string) (bool, error) {
	if len(args) > 3 {
		m.reply(ctx, msg, fmt.Sprintf("Syntax is incorrect. Should be `%s getparticipants [day|date]`.", args[0]))
		return true, nil
	}

	today := m.today().Format(store.DateLayout)
	date := today
	if len(args) == 3 {
		var err error
		date, err = resolveDate(args[2], m.today())
		if err != nil {
			m.reply(ctx, msg, err.Error())
			return true, nil
		}
	}

	parts, err := m.store.Participants(ctx, date)
	if err != nil {
		return false, err
	}
	if len(parts) == 0 {
		m.reply(ctx, msg, fmt.Sprintf("No participants recorded for %s.", date))
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "Participants for %s:\n", date)
		for _, p := range parts {
			fmt.Fprintf(&b, "<@%s>\n", p.Member)
		}
		m.reply(ctx, msg, strings.TrimRight(b.String(), "\n"))
	}

	if date == today {
		m.exitBackdate(ctx)
		return true, nil
	}
	m.enterBackdate(ctx, date)
	m.reply(ctx, msg, fmt.Sprintf("Role state now reflects %s. Run `%s resetparticipants` to return to today.", date, args[0]))
	return true, nil
}

func (m *Module) cmdResetParticipants(ctx context.Context, msg *platform.Message) (bool, error) {
	m.exitBackdate(ctx)
	m.reply(ctx, msg, "Participant state reset to today.")
	return true, nil
}

// enterBackdate re-targets role state to a past date: current holders are
// cleared and that date's recorded participants get the role instead. New
// qualifying events keep being persisted but do not grant while active.
func (m *Module) enterBackdate(ctx context.Context, date string) {
	m.log.Info("entering backdating mode", "date", date)
	m.mu.Lock()
	m.backdate = date
	m.mu.Unlock()

	m.clearParticipantRole(ctx)

	role, ok := m.roleID(ctx)
	if !ok {
		return
	}
	parts, err := m.store.Participants(ctx, date)
	if err != nil {
		m.log.Error("could not read participants for backdate", "date", date, "error", err)
		return
	}
	for _, p := range parts {
		if err := m.client.GrantRole(ctx, p.Member, role); err != nil {
			m.log.Warn("could not grant backdated role", "member", p.Member, "error", err)
		}
	}
}

// exitBackdate returns role state to today.
func (m *Module) exitBackdate(ctx context.Context) {
	m.mu.Lock()
	wasBackdating := m.backdate != ""
	m.backdate = ""
	m.mu.Unlock()
	if wasBackdating {
		m.log.Info("leaving backdating mode")
	}
	m.clearParticipantRole(ctx)
	m.rederive(ctx)
}

func (m *Module) reply(ctx context.Context, msg *platform.Message, text string) {
	if _, err := m.client.SendMessage(ctx, msg.ChannelID, text); err != nil {
		m.log.Warn("could not send reply", "channel", msg.ChannelID, "error", err)
	}
}

func parseChannelRef(s string) (platform.ChannelID, error) {
	raw := s
	if strings.HasPrefix(raw, "<#") && strings.HasSuffix(raw, ">") {
		raw = raw[2 : len(raw)-1]
	}
	if raw == "" || strings.ContainsAny(raw, "<>#@") {
		return "", fmt.Errorf("invalid channel reference %q, use <#channel> or a plain channel id", s)
	}
	return platform.ChannelID(raw), nil
}

func parseRoleRef(s string) (platform.RoleID, error) {
	raw := s
	if strings.HasPrefix(raw, "<@&") && strings.HasSuffix(raw, ">") {
		raw = raw[3 : len(raw)-1]
	}
	if raw == "" || strings.ContainsAny(raw, "<>#@&") {
		return "", fmt.Errorf("invalid role reference %q, use <@&role> or a plain role id", s)
	}
	return platform.RoleID(raw), nil
}
