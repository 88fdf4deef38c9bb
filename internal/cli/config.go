package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/houseofmisfits/willow/internal/client"
	"github.com/houseofmisfits/willow/internal/store"
)

// NewConfigCommand creates the config command group for inspecting and
// editing dynamic settings without the bot running.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit dynamic configuration",
		Long: `Read or write dynamic settings stored in the database.

These are the same settings the in-chat setconfig and getconfig commands
operate on. Changes made here are picked up by a running bot the next time
the affected module rebuilds.

Example:
  willow config get venting_channel
  willow config set venting_deletion_seconds 600
  willow config clear participant_role`,
	}

	cmd.AddCommand(newConfigGetCommand(rootOpts))
	cmd.AddCommand(newConfigSetCommand(rootOpts))
	cmd.AddCommand(newConfigClearCommand(rootOpts))
	return cmd
}

// openStore loads bootstrap config and opens the database it names.
func openStore(opts *RootOptions) (*store.Store, error) {
	cfg, err := client.LoadConfig(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	st, err := store.Open(cfg.Database, slog.Default())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func newConfigGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <key>",
		Short:         "Print a dynamic setting",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			value, found, err := st.Lookup(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read setting", err)
			}
			if !found {
				_ = out.Error(fmt.Sprintf("%s is not set", args[0]), nil)
				return NewExitError(ExitFailure, "not set")
			}
			return out.Success(value)
		},
	}
}

func newConfigSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <key> <value>",
		Short:         "Write a dynamic setting",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Set(cmd.Context(), args[0], args[1]); err != nil {
				return WrapExitError(ExitFailure, "failed to write setting", err)
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(fmt.Sprintf("%s = %s", args[0], args[1]))
		},
	}
}

func newConfigClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear <key>",
		Short:         "Remove a dynamic setting",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Clear(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitFailure, "failed to clear setting", err)
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(fmt.Sprintf("%s cleared", args[0]))
		},
	}
}
