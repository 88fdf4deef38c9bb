// Package admin implements the bot administration commands: configuration
// inspection and editing, runtime log level changes, and a guarded restart.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
	"github.com/houseofmisfits/willow/internal/trigger"
)

// Name is the registry name of the administration module.
const Name = "admin"

// confirmTimeout bounds how long a destructive command waits for its
// confirmation reply before treating silence as a decline.
const confirmTimeout = 30 * time.Second

// Module wires the administration commands into the dispatcher.
type Module struct {
	log     *slog.Logger
	client  platform.Client
	store   *store.Store
	auth    *module.Authorizer
	level   *slog.LevelVar
	restart func()
	confirm *Confirmer
	flag    module.Flag
}

// Factory builds the administration module. level is the process-wide log
// level; restart is invoked after a confirmed restart command and should
// arrange for the process to exit and be resurrected by its supervisor.
func Factory(log *slog.Logger, client platform.Client, st *store.Store, clk clock.Clock, auth *module.Authorizer, level *slog.LevelVar, restart func()) module.Factory {
	return func() (module.Module, error) {
		m := &Module{
			log:     log.With("module", Name),
			client:  client,
			store:   st,
			auth:    auth,
			level:   level,
			restart: restart,
			confirm: NewConfirmer(log.With("module", Name), client, clk, UUIDv7Source{}, confirmTimeout),
		}
		return m, nil
	}
}

func (m *Module) Name() string { return Name }

// Triggers yields the confirmation trigger first so pending prompts consume
// their replies before command matching, then one trigger per admin command.
func (m *Module) Triggers(ctx context.Context) <-chan trigger.Trigger {
	out := make(chan trigger.Trigger)
	go func() {
		defer close(out)

		prefix, err := m.store.Get(ctx, store.PrefixKey, store.DefaultPrefix)
		if err != nil {
			m.log.Error("could not read command prefix", "error", err)
			prefix = store.DefaultPrefix
		}

		triggers := []trigger.Trigger{
			m.confirm,
			trigger.NewCommand(prefix, m.getConfig, "getconfig"),
			trigger.NewCommand(prefix, m.setConfig, "setconfig"),
			trigger.NewCommand(prefix, m.clearConfig, "clearconfig"),
			trigger.NewCommand(prefix, m.logLevel, "loglevel"),
			trigger.NewCommand(prefix, m.restartCmd, "restart"),
		}
		for _, t := range triggers {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (m *Module) Close() {
	m.flag.Close()
}

// authorized replies to unauthorized callers and reports whether the command
// may proceed. Unauthorized commands fall through unhandled.
func (m *Module) authorized(ctx context.Context, msg *platform.Message) (bool, error) {
	ok, err := m.auth.Authorized(ctx, msg.Author)
	if err != nil {
		return false, fmt.Errorf("checking authorization: %w", err)
	}
	if !ok {
		m.reply(ctx, msg, "You are not authorized to use this command.")
	}
	return ok, nil
}

func (m *Module) reply(ctx context.Context, msg *platform.Message, text string) {
	if _, err := m.client.SendMessage(ctx, msg.ChannelID, text); err != nil {
		m.log.Error("could not send reply", "channel", msg.ChannelID, "error", err)
	}
}

func (m *Module) getConfig(ctx context.Context, msg *platform.Message) (bool, error) {
	ok, err := m.authorized(ctx, msg)
	if err != nil || !ok {
		return false, err
	}
	args := trigger.Args(msg.Content)
	if len(args) != 2 {
		m.reply(ctx, msg, "Usage: getconfig <key>")
		return true, nil
	}
	value, found, err := m.store.Lookup(ctx, args[1])
	if err != nil {
		return true, fmt.Errorf("reading config %q: %w", args[1], err)
	}
	if !found {
		m.reply(ctx, msg, fmt.Sprintf("`%s` is not set.", args[1]))
		return true, nil
	}
	m.reply(ctx, msg, fmt.Sprintf("`%s` = `%s`", args[1], value))
	return true, nil
}

func (m *Module) setConfig(ctx context.Context, msg *platform.Message) (bool, error) {
	ok, err := m.authorized(ctx, msg)
	if err != nil || !ok {
		return false, err
	}
	args := trigger.Args(msg.Content)
	if len(args) < 3 {
		m.reply(ctx, msg, "Usage: setconfig <key> <value>")
		return true, nil
	}
	value := strings.Join(args[2:], " ")
	if err := m.store.Set(ctx, args[1], value); err != nil {
		return true, fmt.Errorf("writing config %q: %w", args[1], err)
	}
	m.log.Info("config updated", "key", args[1], "by", msg.Author)
	m.reply(ctx, msg, fmt.Sprintf("`%s` set to `%s`.", args[1], value))
	return true, nil
}

func (m *Module) clearConfig(ctx context.Context, msg *platform.Message) (bool, error) {
	ok, err := m.authorized(ctx, msg)
	if err != nil || !ok {
		return false, err
	}
	args := trigger.Args(msg.Content)
	if len(args) != 2 {
		m.reply(ctx, msg, "Usage: clearconfig <key>")
		return true, nil
	}
	confirmed, err := m.confirm.Ask(ctx, msg, fmt.Sprintf("Clear `%s`? Reply `yes` within 30 seconds to confirm.", args[1]))
	if err != nil {
		return true, err
	}
	if !confirmed {
		return true, nil
	}
	if err := m.store.Clear(ctx, args[1]); err != nil {
		return true, fmt.Errorf("clearing config %q: %w", args[1], err)
	}
	m.log.Info("config cleared", "key", args[1], "by", msg.Author)
	m.reply(ctx, msg, fmt.Sprintf("`%s` cleared.", args[1]))
	return true, nil
}

func (m *Module) logLevel(ctx context.Context, msg *platform.Message) (bool, error) {
	ok, err := m.authorized(ctx, msg)
	if err != nil || !ok {
		return false, err
	}
	args := trigger.Args(msg.Content)
	if len(args) != 2 {
		m.reply(ctx, msg, fmt.Sprintf("Usage: loglevel <debug|info|warn|error> (currently %s)", strings.ToLower(m.level.Level().String())))
		return true, nil
	}
	level, ok2 := parseLevel(args[1])
	if !ok2 {
		m.reply(ctx, msg, fmt.Sprintf("Unknown level %q; expected debug, info, warn, or error.", args[1]))
		return true, nil
	}
	m.level.Set(level)
	m.log.Info("log level changed", "level", level, "by", msg.Author)
	m.reply(ctx, msg, fmt.Sprintf("Log level set to %s.", strings.ToLower(level.String())))
	return true, nil
}

func (m *Module) restartCmd(ctx context.Context, msg *platform.Message) (bool, error) {
	ok, err := m.authorized(ctx, msg)
	if err != nil || !ok {
		return false, err
	}
	confirmed, err := m.confirm.Ask(ctx, msg, "Restart the bot? Reply `yes` within 30 seconds to confirm.")
	if err != nil {
		return true, err
	}
	if !confirmed {
		return true, nil
	}
	m.log.Warn("restart requested", "by", msg.Author)
	m.reply(ctx, msg, "Restarting.")
	m.restart()
	return true, nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}
