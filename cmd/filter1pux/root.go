package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvinuesa/filter1pux/internal/config"
	"github.com/nvinuesa/filter1pux/internal/console"
	"github.com/nvinuesa/filter1pux/internal/logging"
)

// app holds state shared by the command tree for one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
}

func (a *app) newRootCommand() *cobra.Command {
	flags := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "filter1pux [flags] --vault NAME|ID [INPUT [OUTPUT]]",
		Short: "Extract selected vaults from a 1Password export",
		Long: `filter1pux reads a 1Password unencrypted export (.1pux) and writes a copy
that contains only the vaults you select.

Vaults are selected by ID or by name with --vault, which may be repeated.
An exact vault ID match wins over a name match; names are case-sensitive.
A selector of the form ACCOUNT/VAULT only matches inside the accounts
ACCOUNT names (UUID or name, "*" for all); use "*/NAME" for a vault whose
name contains a slash. Every selector must match at least one vault,
otherwise nothing is written.
Attachments that belong only to dropped vaults are dropped as well.

INPUT defaults to standard input and OUTPUT to standard output; "-" names
them explicitly. The output uses the container of the input unless --format
says otherwise.

Exit codes:
  0  success
  1  malformed input, invalid export or usage error
  2  a --vault or --account selector matched nothing
  3  I/O failure

Examples:
  # Keep only the "Work" vault
  filter1pux --vault Work export.1pux work.1pux

  # Keep two vaults, one by ID
  filter1pux -V Personal -V xj3iqjc7fvbgxdblqmyv3d5d4a export.1pux out.1pux

  # Keep Alice's Personal vault and Bob's Work vault
  filter1pux -V Alice/Personal -V Bob/Work export.1pux out.1pux

  # Keep every vault of one account
  filter1pux --account "Jane Doe" -i export.1pux -o jane.1pux

  # Write the filtered export.data as JSON to stdout
  filter1pux -V Work --format json export.1pux > work.json`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, a.cfgFile)
			if err != nil {
				return &ExitError{Code: ExitInvalid, Err: err}
			}
			a.cfg = cfg

			logger := logging.New(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("format", cfg.Format),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFilter(cmd, args, flags)
		},
	}

	// Disable completion command
	cmd.CompletionOptions.DisableDefaultCmd = true

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: .filter1pux.yaml)")
	pf.String("log-level", config.LogLevelWarn, "log level: debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.Bool("no-color", false, "disable colored output (also NO_COLOR)")
	pf.BoolP("quiet", "q", false, "suppress all output except errors")

	flags.register(cmd)

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitInvalid, Err: err}
	})

	cmd.AddCommand(
		a.newListCommand(),
		newVersionCommand(),
	)

	return cmd
}

// console returns the diagnostic printer for w.
func (a *app) console(w io.Writer) *console.Console {
	noColor := os.Getenv("NO_COLOR") != ""
	if a.cfg != nil {
		noColor = noColor || a.cfg.NoColor
	}
	return console.New(w, noColor)
}
