package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nvinuesa/filter1pux/internal/security"
)

// StdioPath is the path spelling for standard input and output.
const StdioPath = "-"

var zipMagic = [][]byte{
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"), // empty archive
}

// Loader parses exports. Archive hygiene findings (unexpected entries,
// dangling attachment references) are reported through Logger.
type Loader struct {
	Logger *slog.Logger
	Stdin  io.Reader
}

// NewLoader creates a Loader that logs to logger. A nil logger means
// slog.Default().
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Logger: logger, Stdin: os.Stdin}
}

// LoadFile loads an export from path. An empty path or "-" reads stdin.
func LoadFile(path string) (*Document, error) {
	return NewLoader(nil).LoadFile(path)
}

// Load reads an export from r. name is used in error messages.
func Load(r io.Reader, name string) (*Document, error) {
	return NewLoader(nil).Load(r, name)
}

// Parse parses an in-memory export. The caller keeps ownership of data.
func Parse(data []byte, name string) (*Document, error) {
	return NewLoader(nil).Parse(data, name)
}

// LoadFile loads an export from path. An empty path or "-" reads stdin.
func (l *Loader) LoadFile(path string) (*Document, error) {
	if path == "" || path == StdioPath {
		return l.Load(l.Stdin, StdioPath)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &ErrIO{Op: "read", Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &ErrIO{Op: "read", Path: path, Err: fmt.Errorf("is a directory")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ErrIO{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	return l.Load(f, path)
}

// Load reads an export from r. The read buffer is wiped before returning.
func (l *Loader) Load(r io.Reader, name string) (*Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, security.MaxEntrySize+1))
	defer security.Wipe(&data)
	if err != nil {
		return nil, &ErrIO{Op: "read", Path: name, Err: err}
	}
	if err := security.ValidateEntrySize(name, uint64(len(data)), security.MaxEntrySize); err != nil {
		return nil, &ErrMalformedInput{Path: name, Err: err}
	}

	return l.Parse(data, name)
}

// Parse parses an in-memory export, either a 1PUX archive or a bare
// export.data document.
func (l *Loader) Parse(data []byte, name string) (*Document, error) {
	if isArchive(data) {
		return l.parseArchive(data, name)
	}

	doc, err := parseData(data, name, "")
	if err != nil {
		return nil, err
	}
	doc.Format = FormatJSON
	return doc, nil
}

func isArchive(data []byte) bool {
	for _, magic := range zipMagic {
		if bytes.HasPrefix(data, magic) {
			return true
		}
	}
	return false
}

func (l *Loader) parseArchive(data []byte, name string) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ErrMalformedInput{Path: name, Details: "not a readable 1PUX archive", Err: err}
	}
	if err := security.ValidateEntryCount(len(zr.File)); err != nil {
		return nil, &ErrMalformedInput{Path: name, Err: err}
	}

	var (
		attrs, exportData []byte
		attrsHeader       *zip.FileHeader
		dataHeader        *zip.FileHeader
		filesDirHeader    *zip.FileHeader
		files             []*File
	)
	defer security.Wipe(&exportData)

	seen := make(map[string]bool)
	for _, zf := range zr.File {
		entry := zf.Name
		if seen[entry] {
			l.Logger.Warn("archive entry appears multiple times", "entry", entry, "path", name)
		}
		seen[entry] = true

		switch {
		case entry == AttributesEntry:
			attrs, err = readEntry(zf, name, security.MaxDataSize)
			if err != nil {
				return nil, err
			}
			h := zf.FileHeader
			attrsHeader = &h

		case entry == DataEntry:
			exportData, err = readEntry(zf, name, security.MaxDataSize)
			if err != nil {
				return nil, err
			}
			h := zf.FileHeader
			dataHeader = &h

		case entry == FilesDir:
			h := zf.FileHeader
			filesDirHeader = &h

		case strings.HasPrefix(entry, FilesDir):
			if err := security.ValidateEntryName(entry); err != nil {
				l.Logger.Warn("skipping unsafe attachment entry", "entry", entry, "error", err)
				continue
			}
			payload, err := readEntry(zf, name, security.MaxEntrySize)
			if err != nil {
				return nil, err
			}
			files = append(files, &File{
				Header:     zf.FileHeader,
				Data:       payload,
				DocumentID: DocumentIDFromEntry(entry),
			})

		default:
			l.Logger.Info("ignoring unexpected archive entry", "entry", entry, "path", name)
		}
	}

	if attrsHeader == nil {
		return nil, schemaErrorf(name, "archive has no %s entry", AttributesEntry)
	}
	if dataHeader == nil {
		return nil, schemaErrorf(name, "archive has no %s entry", DataEntry)
	}

	version, err := parseAttributes(attrs, name)
	if err != nil {
		return nil, err
	}

	doc, err := parseData(exportData, name, DataEntry)
	if err != nil {
		return nil, err
	}
	doc.Format = FormatArchive
	doc.Version = version
	doc.Attributes = json.RawMessage(attrs)
	doc.AttributesHeader = attrsHeader
	doc.DataHeader = dataHeader
	doc.FilesDirHeader = filesDirHeader
	doc.Files = files

	l.checkAttachments(doc)
	return doc, nil
}

// checkAttachments reports attachment files and item references that do
// not line up. Neither is fatal.
func (l *Loader) checkAttachments(doc *Document) {
	fileIDs := make(map[string]struct{}, len(doc.Files))
	for _, f := range doc.Files {
		if _, dup := fileIDs[f.DocumentID]; dup {
			l.Logger.Warn("document ID associated with multiple files", "documentId", f.DocumentID)
		}
		fileIDs[f.DocumentID] = struct{}{}
		if err := security.ValidateDocumentID(f.DocumentID); err != nil {
			l.Logger.Warn("attachment has an unusual document ID", "entry", f.Header.Name, "error", err)
		}
	}

	referenced := doc.DocumentIDs()
	var missing, extra []string
	for _, id := range sortedIDs(referenced) {
		if _, ok := fileIDs[id]; !ok {
			missing = append(missing, id)
		}
	}
	for _, id := range sortedIDs(fileIDs) {
		if _, ok := referenced[id]; !ok {
			extra = append(extra, id)
		}
	}

	if len(missing) > 0 {
		l.Logger.Warn("document IDs have no corresponding files in archive", "documentIds", missing)
	}
	if len(extra) > 0 {
		l.Logger.Info("document IDs have files but no item references; they will be dropped", "documentIds", extra)
	}
}

// DocumentIDFromEntry derives the attachment document ID from an entry
// name of the form files/<documentId>_<filename>.
func DocumentIDFromEntry(entry string) string {
	id := strings.TrimPrefix(entry, FilesDir)
	if i := strings.IndexByte(id, '_'); i >= 0 {
		id = id[:i]
	}
	return id
}

func readEntry(zf *zip.File, name string, limit uint64) ([]byte, error) {
	if err := security.ValidateEntrySize(zf.Name, zf.UncompressedSize64, limit); err != nil {
		return nil, &ErrMalformedInput{Path: name, Entry: zf.Name, Err: err}
	}

	rc, err := zf.Open()
	if err != nil {
		return nil, &ErrMalformedInput{Path: name, Entry: zf.Name, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, int64(limit)+1))
	if err != nil {
		return nil, &ErrMalformedInput{Path: name, Entry: zf.Name, Err: err}
	}
	if uint64(len(data)) > limit {
		return nil, &ErrMalformedInput{Path: name, Entry: zf.Name, Details: "entry larger than declared"}
	}
	return data, nil
}

func parseAttributes(data []byte, name string) (int, error) {
	if !json.Valid(data) {
		return 0, &ErrMalformedInput{Path: name, Entry: AttributesEntry, Details: "invalid JSON"}
	}
	if kindOf(data) != '{' {
		return 0, schemaErrorf(name, "%s is not a JSON object", AttributesEntry)
	}

	var attrs struct {
		Version json.Number `json:"version"`
	}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return 0, schemaErrorf(name, "%s: %v", AttributesEntry, err)
	}
	if attrs.Version == "" {
		return 0, schemaErrorf(name, "%s has no \"version\"", AttributesEntry)
	}
	v, err := attrs.Version.Int64()
	if err != nil {
		return 0, schemaErrorf(name, "%s \"version\" is not an integer", AttributesEntry)
	}
	return int(v), nil
}

// parseData parses an export.data document. entry names the archive entry
// for error messages; empty for bare JSON.
func parseData(data []byte, name, entry string) (*Document, error) {
	if !json.Valid(data) {
		return nil, &ErrMalformedInput{Path: name, Entry: entry, Details: "invalid JSON", Err: syntaxError(data)}
	}

	fields, err := objectFields(data)
	if err != nil {
		return nil, schemaErrorf(name, "top-level value is not a JSON object")
	}

	rawAccounts, ok := fields["accounts"]
	if !ok {
		return nil, schemaErrorf(name, "missing \"accounts\"")
	}
	var accounts []json.RawMessage
	if kindOf(rawAccounts) != '[' || json.Unmarshal(rawAccounts, &accounts) != nil {
		return nil, schemaErrorf(name, "\"accounts\" is not a list")
	}
	delete(fields, "accounts")

	doc := &Document{
		Path:     name,
		Fields:   fields,
		Accounts: make([]*Account, 0, len(accounts)),
	}

	byUUID := make(map[string]bool)
	byName := make(map[string]bool)
	for i, raw := range accounts {
		account, err := parseAccount(raw, name, i)
		if err != nil {
			return nil, err
		}
		if account.UUID != "" {
			if byUUID[account.UUID] {
				return nil, schemaErrorf(name, "multiple accounts with UUID %q", account.UUID)
			}
			byUUID[account.UUID] = true
		}
		if account.Name != "" {
			if byName[account.Name] {
				return nil, schemaErrorf(name, "multiple accounts with name %q", account.Name)
			}
			byName[account.Name] = true
		}
		doc.Accounts = append(doc.Accounts, account)
	}

	if doc.VaultCount() == 0 {
		return nil, schemaErrorf(name, "export contains no vaults")
	}

	return doc, nil
}

func parseAccount(raw json.RawMessage, name string, index int) (*Account, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return nil, schemaErrorf(name, "account %d is not a JSON object", index)
	}

	rawAttrs, ok := fields["attrs"]
	if !ok {
		return nil, schemaErrorf(name, "account %d is missing \"attrs\"", index)
	}
	var attrs struct {
		UUID        string `json:"uuid"`
		Name        string `json:"name"`
		AccountName string `json:"accountName"`
	}
	if kindOf(rawAttrs) != '{' || json.Unmarshal(rawAttrs, &attrs) != nil {
		return nil, schemaErrorf(name, "account %d \"attrs\" is not a valid object", index)
	}

	account := &Account{
		UUID:        attrs.UUID,
		Name:        attrs.Name,
		AccountName: attrs.AccountName,
	}
	label := account.Label()
	if label == "" {
		label = fmt.Sprintf("#%d", index)
	}

	rawVaults, ok := fields["vaults"]
	if !ok {
		return nil, schemaErrorf(name, "account %s is missing \"vaults\"", label)
	}
	var vaults []json.RawMessage
	if kindOf(rawVaults) != '[' || json.Unmarshal(rawVaults, &vaults) != nil {
		return nil, schemaErrorf(name, "account %s \"vaults\" is not a list", label)
	}
	delete(fields, "vaults")
	account.Fields = fields

	byUUID := make(map[string]bool)
	byName := make(map[string]bool)
	for i, rawVault := range vaults {
		vault, err := parseVault(rawVault, name, label, i)
		if err != nil {
			return nil, err
		}
		if byUUID[vault.UUID] {
			return nil, schemaErrorf(name, "multiple vaults with UUID %q in account %s", vault.UUID, label)
		}
		if byName[vault.Name] {
			return nil, schemaErrorf(name, "multiple vaults named %q in account %s", vault.Name, label)
		}
		byUUID[vault.UUID] = true
		byName[vault.Name] = true
		account.Vaults = append(account.Vaults, vault)
	}

	return account, nil
}

func parseVault(raw json.RawMessage, name, account string, index int) (*Vault, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return nil, schemaErrorf(name, "vault %d of account %s is not a JSON object", index, account)
	}

	rawAttrs, ok := fields["attrs"]
	if !ok {
		return nil, schemaErrorf(name, "vault %d of account %s is missing \"attrs\"", index, account)
	}
	var attrs struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if kindOf(rawAttrs) != '{' || json.Unmarshal(rawAttrs, &attrs) != nil {
		return nil, schemaErrorf(name, "vault %d of account %s: \"attrs\" is not a valid object", index, account)
	}
	if attrs.UUID == "" {
		return nil, schemaErrorf(name, "vault %d of account %s has no \"uuid\"", index, account)
	}

	rawItems, ok := fields["items"]
	if !ok {
		return nil, schemaErrorf(name, "vault %q is missing \"items\"", attrs.Name)
	}
	var items []json.RawMessage
	if kindOf(rawItems) != '[' || json.Unmarshal(rawItems, &items) != nil {
		return nil, schemaErrorf(name, "vault %q \"items\" is not a list", attrs.Name)
	}

	vault := &Vault{
		UUID:        attrs.UUID,
		Name:        attrs.Name,
		Type:        attrs.Type,
		Fields:      fields,
		ItemCount:   len(items),
		DocumentIDs: make(map[string]struct{}),
	}
	itemUUIDs := make(map[string]bool, len(items))
	for _, item := range items {
		var tree any
		if err := json.Unmarshal(item, &tree); err != nil {
			return nil, schemaErrorf(name, "vault %q: %v", attrs.Name, err)
		}
		if obj, ok := tree.(map[string]any); ok {
			if id, ok := obj["uuid"].(string); ok && id != "" {
				if itemUUIDs[id] {
					return nil, schemaErrorf(name, "multiple items with UUID %q in vault %q", id, attrs.Name)
				}
				itemUUIDs[id] = true
			}
		}
		collectDocumentIDs(tree, vault.DocumentIDs)
	}

	return vault, nil
}

// collectDocumentIDs walks an item and records every string value stored
// under a "documentId" key.
func collectDocumentIDs(node any, ids map[string]struct{}) {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if s, ok := v.(string); ok && k == "documentId" {
				ids[s] = struct{}{}
				continue
			}
			collectDocumentIDs(v, ids)
		}
	case []any:
		for _, v := range n {
			collectDocumentIDs(v, ids)
		}
	}
}

// objectFields decodes a JSON object into its raw members.
func objectFields(data []byte) (map[string]json.RawMessage, error) {
	if kindOf(data) != '{' {
		return nil, fmt.Errorf("not an object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// kindOf returns the first significant byte of a JSON value.
func kindOf(data []byte) byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func syntaxError(data []byte) error {
	var v any
	return json.Unmarshal(data, &v)
}
