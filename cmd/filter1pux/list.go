package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvinuesa/filter1pux/internal/export"
	"github.com/nvinuesa/filter1pux/internal/filter"
	"github.com/nvinuesa/filter1pux/internal/logging"
	"github.com/nvinuesa/filter1pux/internal/security"
)

type vaultListing struct {
	UUID        string `json:"uuid" yaml:"uuid"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Items       int    `json:"items" yaml:"items"`
	Attachments int    `json:"attachments" yaml:"attachments"`
}

type accountListing struct {
	UUID        string         `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	AccountName string         `json:"accountName,omitempty" yaml:"accountName,omitempty"`
	Vaults      []vaultListing `json:"vaults" yaml:"vaults"`
}

type listing struct {
	Source   string           `json:"source" yaml:"source"`
	Format   string           `json:"format" yaml:"format"`
	Version  int              `json:"version,omitempty" yaml:"version,omitempty"`
	Summary  filter.Summary   `json:"summary" yaml:"summary"`
	Accounts []accountListing `json:"accounts" yaml:"accounts"`
}

func (a *app) newListCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "list [INPUT]",
		Short: "List the accounts and vaults of an export",
		Long: `List the accounts and vaults of a 1Password export without writing anything.

Use the listed vault IDs or names with --vault.

Examples:
  # List vaults
  filter1pux list export.1pux

  # Machine-readable listing
  filter1pux list export.1pux --output-format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := export.StdioPath
			if len(args) > 0 {
				input = args[0]
			}

			loader := export.NewLoader(logging.FromContext(cmd.Context()))
			loader.Stdin = cmd.InOrStdin()
			doc, err := loader.LoadFile(input)
			if err != nil {
				return err
			}

			return printListing(cmd.OutOrStdout(), buildListing(doc), outputFormat)
		},
	}

	cmd.Flags().StringVar(&outputFormat, "output-format", "text", "listing format: text, json, yaml")

	return cmd
}

func buildListing(doc *export.Document) listing {
	l := listing{
		Source:   doc.Path,
		Format:   doc.Format.String(),
		Version:  doc.Version,
		Summary:  filter.Summarize(doc),
		Accounts: make([]accountListing, 0, len(doc.Accounts)),
	}
	for _, acct := range doc.Accounts {
		al := accountListing{
			UUID:        acct.UUID,
			Name:        acct.Name,
			AccountName: acct.AccountName,
			Vaults:      make([]vaultListing, 0, len(acct.Vaults)),
		}
		for _, v := range acct.Vaults {
			al.Vaults = append(al.Vaults, vaultListing{
				UUID:        v.UUID,
				Name:        v.Name,
				Type:        v.Type,
				Items:       v.ItemCount,
				Attachments: len(v.DocumentIDs),
			})
		}
		l.Accounts = append(l.Accounts, al)
	}
	return l
}

func printListing(w io.Writer, l listing, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(l, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return err
		}
		return enc.Close()

	case "text", "":
		printListingText(w, l)
		return nil

	default:
		return usageError("unknown output format %q (try: text, json, yaml)", format)
	}
}

func printListingText(w io.Writer, l listing) {
	source := fmt.Sprintf("Source: %s (%s", l.Source, l.Format)
	if l.Version != 0 {
		source += fmt.Sprintf(", version %d", l.Version)
	}
	fmt.Fprintln(w, source+")")
	fmt.Fprintf(w, "Vaults: %d total, %d items, %d attachments\n",
		l.Summary.Vaults, l.Summary.Items, l.Summary.Files)

	for _, acct := range l.Accounts {
		label := acct.Name
		if label == "" {
			label = acct.AccountName
		}
		fmt.Fprintf(w, "\nAccount: %s", security.SanitizeString(label))
		if acct.UUID != "" {
			fmt.Fprintf(w, " (%s)", acct.UUID)
		}
		fmt.Fprintln(w)

		for _, v := range acct.Vaults {
			fmt.Fprintf(w, "  %-26s %-24s %5d items\n", v.UUID, security.SanitizeString(v.Name), v.Items)
		}
	}
}
