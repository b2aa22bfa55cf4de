// Package export reads and writes 1Password unencrypted export (1PUX) files.
//
// A 1PUX file is a ZIP container holding export.attributes (the format
// marker), export.data (accounts, vaults and items as JSON) and a files/
// directory with item attachments. The bare export.data JSON is accepted as
// well. Only the fields needed to select vaults are modeled; everything else
// is carried as raw JSON and written back unchanged.
package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Container entry names.
const (
	AttributesEntry = "export.attributes"
	DataEntry       = "export.data"
	FilesDir        = "files/"
)

// Format identifies the on-disk container of an export.
type Format int

const (
	// FormatAuto means "same as the input" when writing.
	FormatAuto Format = iota
	// FormatArchive is the 1PUX ZIP container.
	FormatArchive
	// FormatJSON is a bare export.data document.
	FormatJSON
)

// String returns the flag spelling of the format.
func (f Format) String() string {
	switch f {
	case FormatArchive:
		return "1pux"
	case FormatJSON:
		return "json"
	default:
		return "auto"
	}
}

// ParseFormat parses a format name as accepted on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "1pux", "zip", "archive":
		return FormatArchive, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatAuto, fmt.Errorf("unknown format %q (try: auto, 1pux, json)", s)
	}
}

// Document is a parsed export.
//
// Documents are treated as immutable once loaded: the filter builds new
// Documents that share raw JSON and attachment payloads with their source.
type Document struct {
	// Path is where the document was loaded from ("-" for stdin).
	Path string

	// Format is the container the document was loaded from.
	Format Format

	// Version is the format marker from export.attributes. Zero for bare JSON.
	Version int

	// Attributes is the raw export.attributes entry. Nil for bare JSON.
	Attributes json.RawMessage

	// Fields holds every top-level export.data field except "accounts".
	Fields map[string]json.RawMessage

	Accounts []*Account

	// Files holds the attachment entries under files/, in archive order.
	Files []*File

	// Archive headers of the fixed entries, reused when writing an archive.
	AttributesHeader *zip.FileHeader
	DataHeader       *zip.FileHeader
	FilesDirHeader   *zip.FileHeader
}

// Account is one 1Password account inside an export.
type Account struct {
	UUID        string
	Name        string // attrs.name, the owner's name
	AccountName string // attrs.accountName

	// Fields holds every account field except "vaults".
	Fields map[string]json.RawMessage

	Vaults []*Vault
}

// Vault is one vault of an account. Its items are never decoded into a
// model; the raw "items" array travels with the vault.
type Vault struct {
	UUID string
	Name string
	Type string

	// Fields holds every vault field, including "attrs" and "items".
	Fields map[string]json.RawMessage

	ItemCount int

	// DocumentIDs are the attachment document IDs referenced by the items.
	DocumentIDs map[string]struct{}
}

// File is an attachment entry of a 1PUX archive.
type File struct {
	Header     zip.FileHeader
	Data       []byte
	DocumentID string
}

// Label returns a human readable account identifier for messages.
func (a *Account) Label() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.AccountName != "":
		return a.AccountName
	default:
		return a.UUID
	}
}

// Vaults returns every vault of every account in document order.
func (d *Document) Vaults() []*Vault {
	var vaults []*Vault
	for _, a := range d.Accounts {
		vaults = append(vaults, a.Vaults...)
	}
	return vaults
}

// VaultCount returns the number of vaults across all accounts.
func (d *Document) VaultCount() int {
	n := 0
	for _, a := range d.Accounts {
		n += len(a.Vaults)
	}
	return n
}

// ItemCount returns the number of items across all vaults.
func (d *Document) ItemCount() int {
	n := 0
	for _, v := range d.Vaults() {
		n += v.ItemCount
	}
	return n
}

// DocumentIDs returns the union of the attachment IDs referenced by all vaults.
func (d *Document) DocumentIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, v := range d.Vaults() {
		for id := range v.DocumentIDs {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// VaultIDs returns the identifiers of all vaults in document order.
func (d *Document) VaultIDs() []string {
	vaults := d.Vaults()
	ids := make([]string, 0, len(vaults))
	for _, v := range vaults {
		ids = append(ids, v.UUID)
	}
	return ids
}

// MarshalData returns the export.data JSON of the document: sorted keys,
// two-space indentation and a trailing newline.
func (d *Document) MarshalData() ([]byte, error) {
	top := make(map[string]json.RawMessage, len(d.Fields)+1)
	for k, v := range d.Fields {
		top[k] = v
	}

	accounts := make([]json.RawMessage, 0, len(d.Accounts))
	for _, a := range d.Accounts {
		raw, err := a.marshal()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a.Label(), err)
		}
		accounts = append(accounts, raw)
	}
	rawAccounts, err := json.Marshal(accounts)
	if err != nil {
		return nil, err
	}
	top["accounts"] = rawAccounts

	data, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (a *Account) marshal() (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, len(a.Fields)+1)
	for k, v := range a.Fields {
		fields[k] = v
	}

	vaults := make([]json.RawMessage, 0, len(a.Vaults))
	for _, v := range a.Vaults {
		raw, err := json.Marshal(v.Fields)
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", v.UUID, err)
		}
		vaults = append(vaults, raw)
	}
	rawVaults, err := json.Marshal(vaults)
	if err != nil {
		return nil, err
	}
	fields["vaults"] = rawVaults

	return json.Marshal(fields)
}

// sortedIDs returns the members of an ID set in sorted order.
func sortedIDs(ids map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
