package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"code.cloudfoundry.org/clock"
	"github.com/spf13/cobra"

	"github.com/houseofmisfits/willow/internal/client"
	"github.com/houseofmisfits/willow/internal/dispatch"
	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/modules/admin"
	"github.com/houseofmisfits/willow/internal/modules/dmrelay"
	"github.com/houseofmisfits/willow/internal/modules/events"
	"github.com/houseofmisfits/willow/internal/modules/support"
	"github.com/houseofmisfits/willow/internal/modules/venting"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		Long: `Start willow against the configured guild.

The bootstrap config file supplies the guild, admin roles, and database path;
everything else is read from (and written to) the database at runtime.

Without a platform connector compiled in, run operates in console mode: each
stdin line is treated as an inbound message and platform calls print what
they would have done. Useful for local testing and demos.

Example:
  willow run --config willow.yml
  willow run --config /etc/willow/willow.yml -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(rootOpts, cmd)
		},
	}
	return cmd
}

func runBot(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := client.LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := &slog.LevelVar{}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if opts.Verbose {
		level.Set(slog.LevelDebug)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	log.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	console := platform.NewConsole(log, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.AdminRoleIDs())

	d := dispatch.New(log)
	registry := module.NewRegistry(log, d)
	core := client.New(log, d, registry)

	clk := clock.NewClock()
	auth := module.NewAuthorizer(console, cfg.AdminRoleIDs())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	mods := botModules(log, console, st, clk, registry, d, auth, level, core.RequestRestart, cfg)
	for _, m := range mods {
		if err := registry.Add(ctx, m.name, m.factory); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to start module %s", m.name), err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go console.ReadLoop(ctx, core.Submit)

	log.Info("bot starting", "guild", cfg.GuildID, "modules", len(mods))
	fmt.Fprintln(cmd.OutOrStdout(), "Willow started in console mode. Type a message, Ctrl-C or Ctrl-D to stop.")

	err = core.Run(ctx)
	switch {
	case errors.Is(err, client.ErrRestartRequested):
		log.Info("bot stopping for restart")
		return NewExitError(ExitRestart, "restart requested")
	case err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
		return WrapExitError(ExitFailure, "bot error", err)
	}

	log.Info("bot stopped gracefully")
	return nil
}

type namedFactory struct {
	name    string
	factory module.Factory
}

// botModules lists every module in registration order. The slice is ordered,
// not a map: trigger evaluation order is registration order, and the admin
// module goes first so its confirmation trigger sees replies before any
// channel or command trigger can consume them.
func botModules(log *slog.Logger, console platform.Client, st *store.Store, clk clock.Clock,
	registry *module.Registry, d *dispatch.Dispatcher, auth *module.Authorizer,
	level *slog.LevelVar, restart func(), cfg *client.Config) []namedFactory {
	return []namedFactory{
		{admin.Name, admin.Factory(log, console, st, clk, auth, level, restart)},
		{venting.Name, venting.Factory(log, console, st, clk, registry)},
		{events.Name, events.Factory(log, console, st, clk, registry, d, auth)},
		{dmrelay.Name, dmrelay.Factory(log, console, cfg.AdminRoleIDs())},
		{support.Name, support.Factory(log, console, st)},
	}
}
