package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvinuesa/filter1pux/internal/config"
	"github.com/nvinuesa/filter1pux/internal/console"
	"github.com/nvinuesa/filter1pux/internal/export"
	"github.com/nvinuesa/filter1pux/internal/filter"
	"github.com/nvinuesa/filter1pux/internal/logging"
	"github.com/nvinuesa/filter1pux/internal/security"
)

type filterFlags struct {
	vaults   []string
	accounts []string
	input    string
	output   string
	dryRun   bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringArrayVarP(&f.vaults, "vault", "V", nil, "vault ID or name to keep, or ACCOUNT/VAULT (repeatable, \"*\" keeps all)")
	fl.StringArrayVarP(&f.accounts, "account", "a", nil, "account UUID or name to keep (repeatable)")
	fl.StringVarP(&f.input, "input", "i", "", "input file (default: stdin)")
	fl.StringVarP(&f.output, "output", "o", "", "output file (default: stdout)")
	fl.String("format", config.FormatAuto, "output container: auto, 1pux, json")
	fl.Bool("force", false, "overwrite an existing output file")
	fl.BoolVarP(&f.dryRun, "dry-run", "n", false, "report what would be kept without writing output")
}

// paths resolves input and output from flags and positional arguments.
func (f *filterFlags) paths(args []string) (input, output string, err error) {
	input, output = f.input, f.output
	if len(args) > 0 {
		if input != "" {
			return "", "", usageError("input given both as --input and as argument")
		}
		input = args[0]
	}
	if len(args) > 1 {
		if output != "" {
			return "", "", usageError("output given both as --output and as argument")
		}
		output = args[1]
	}
	if input == "" {
		input = export.StdioPath
	}
	if output == "" {
		output = export.StdioPath
	}
	return input, output, nil
}

// sameFile reports whether input and output name the same file, through
// relative paths, symlinks or hard links.
func sameFile(input, output string) bool {
	if input == export.StdioPath || output == export.StdioPath {
		return false
	}
	if absIn, err := filepath.Abs(input); err == nil {
		if absOut, err := filepath.Abs(output); err == nil && absIn == absOut {
			return true
		}
	}
	inInfo, err := os.Stat(input)
	if err != nil {
		return false
	}
	outInfo, err := os.Stat(output)
	if err != nil {
		return false
	}
	return os.SameFile(inInfo, outInfo)
}

func (a *app) runFilter(cmd *cobra.Command, args []string, flags *filterFlags) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)
	con := a.console(cmd.ErrOrStderr())

	keep := filter.NewKeepSet(flags.vaults, flags.accounts)
	if keep.IsEmpty() {
		return usageError("select at least one vault with --vault or one account with --account")
	}

	input, output, err := flags.paths(args)
	if err != nil {
		return err
	}
	if sameFile(input, output) {
		return usageError("refusing to overwrite the input file %q", input)
	}

	format, err := export.ParseFormat(cfg.Format)
	if err != nil {
		return usageError("%v", err)
	}

	loader := export.NewLoader(logger)
	loader.Stdin = cmd.InOrStdin()

	logger.Debug("loading export", slog.String("path", input))
	doc, err := loader.LoadFile(input)
	if err != nil {
		return err
	}

	filtered, err := filter.Apply(doc, keep)
	if err != nil {
		return err
	}

	before, after := filter.Summarize(doc), filter.Summarize(filtered)
	for _, v := range filter.Dropped(doc, filtered) {
		logger.Info("dropping vault", slog.String("uuid", v.UUID), slog.String("name", v.Name))
	}
	logger.Debug("filtered export",
		slog.Int("vaults", after.Vaults),
		slog.Int("vaultsBefore", before.Vaults),
		slog.Int("items", after.Items),
		slog.Int("files", after.Files),
	)

	outFormat := export.ResolveFormat(doc, format)
	if outFormat == export.FormatJSON && len(filtered.Files) > 0 && !cfg.Quiet {
		con.Warn("%d attachment(s) are not carried by JSON output", len(filtered.Files))
	}

	if flags.dryRun {
		if !cfg.Quiet {
			printDryRun(con, doc, filtered)
		}
		return nil
	}

	if output == export.StdioPath {
		out := cmd.OutOrStdout()
		if outFormat == export.FormatArchive && console.IsTerminal(out) {
			return usageError("refusing to write a 1PUX archive to a terminal; use --output or redirect stdout")
		}
		return export.Write(out, filtered, outFormat)
	}

	opts := export.WriteOptions{Format: outFormat, Overwrite: cfg.Force}
	if err := export.WriteFile(output, filtered, opts); err != nil {
		return err
	}

	if !cfg.Quiet {
		con.Success("Kept %d of %d vaults (%d items, %d attachments) in %s",
			after.Vaults, before.Vaults, after.Items, after.Files, output)
	}
	return nil
}

func printDryRun(con *console.Console, before, after *export.Document) {
	kept := make(map[*export.Vault]bool)
	for _, v := range after.Vaults() {
		kept[v] = true
	}

	for _, a := range before.Accounts {
		con.Info("Account: %s", security.SanitizeString(a.Label()))
		for _, v := range a.Vaults {
			line := fmt.Sprintf("  %-26s %-24s %5d items", v.UUID, security.SanitizeString(v.Name), v.ItemCount)
			if kept[v] {
				con.Success("+ %s", line)
			} else {
				con.Dim("- %s", line)
			}
		}
	}

	s := filter.Summarize(after)
	con.Info("\nWould keep %d of %d vaults (%d items, %d attachments)",
		s.Vaults, before.VaultCount(), s.Items, s.Files)
	con.Info("[Dry run - no output written]")
}
