// Package filter selects a subset of vaults from a 1Password export.
//
// Apply is a pure function: it never mutates the input document and
// returns a new Document that shares all pass-through JSON and attachment
// payloads with its source. Vaults and items keep their original order.
package filter

import (
	"strings"

	"github.com/nvinuesa/filter1pux/internal/export"
)

// Wildcard selects every vault (or every account) when used as an entry.
const Wildcard = "*"

// Separator splits an account-qualified vault entry, ACCOUNT/VAULT.
const Separator = "/"

// VaultRef selects vaults by ID or name inside the accounts matched by
// Account. Either part may be Wildcard.
type VaultRef struct {
	Account string
	Vault   string
}

// ParseVaultRef splits an ACCOUNT/VAULT entry at the first separator. It
// reports false when entry is not qualified or either part is empty.
func ParseVaultRef(entry string) (VaultRef, bool) {
	account, vault, found := strings.Cut(entry, Separator)
	if !found || account == "" || vault == "" {
		return VaultRef{}, false
	}
	return VaultRef{Account: account, Vault: vault}, true
}

func (r VaultRef) String() string {
	return r.Account + Separator + r.Vault
}

// KeepSet is the caller's vault and account selection.
//
// A vault entry matches a vault whose UUID equals it exactly; only when no
// vault has that UUID is it matched against vault names, exact and
// case-sensitive. Account entries are matched by UUID, then attrs.name,
// then attrs.accountName. With no account entries every account is
// searched; with no vault entries every vault of the selected accounts is
// kept.
//
// Qualified entries match their vault part only inside the accounts their
// account part names. When a keep-set holds nothing but qualified entries,
// only the accounts they name are kept.
type KeepSet struct {
	Vaults    []string
	Accounts  []string
	Qualified []VaultRef
}

// NewKeepSet builds a KeepSet, dropping empty and repeated entries. Vault
// entries of the form ACCOUNT/VAULT become qualified entries.
func NewKeepSet(vaults, accounts []string) KeepSet {
	k := KeepSet{Accounts: dedupe(accounts)}
	for _, entry := range dedupe(vaults) {
		if ref, ok := ParseVaultRef(entry); ok {
			k.Qualified = append(k.Qualified, ref)
			continue
		}
		k.Vaults = append(k.Vaults, entry)
	}
	return k
}

// IsEmpty reports whether nothing was selected.
func (k KeepSet) IsEmpty() bool {
	return len(k.Vaults) == 0 && len(k.Accounts) == 0 && len(k.Qualified) == 0
}

// keepsAllVaults reports whether every vault of the selected accounts is kept.
func (k KeepSet) keepsAllVaults() bool {
	if contains(k.Vaults, Wildcard) {
		return true
	}
	return len(k.Vaults) == 0 && len(k.Qualified) == 0
}

// onlyQualified reports whether qualified entries are the whole selection.
func (k KeepSet) onlyQualified() bool {
	return len(k.Qualified) > 0 && len(k.Vaults) == 0 && len(k.Accounts) == 0
}

// Identity returns the keep-set naming every vault of doc by UUID.
func Identity(doc *export.Document) KeepSet {
	return KeepSet{Vaults: dedupe(doc.VaultIDs())}
}

// Apply returns a new document holding only the vaults selected by keep.
// Every entry of keep must match something: unmatched vault entries fail
// with *ErrNoSuchVault, unmatched account entries with *ErrNoSuchAccount.
// Attachment files referenced only by dropped vaults are dropped as well.
func Apply(doc *export.Document, keep KeepSet) (*export.Document, error) {
	if doc == nil {
		return nil, export.ErrNilDocument
	}
	if keep.IsEmpty() {
		return nil, ErrEmptyKeepSet
	}

	accounts, err := selectAccounts(doc.Accounts, keep.Accounts)
	if err != nil {
		return nil, err
	}

	kept, owners, err := selectVaults(accounts, keep)
	if err != nil {
		return nil, err
	}

	out := *doc
	out.Accounts = make([]*export.Account, 0, len(accounts))
	for _, a := range accounts {
		if keep.onlyQualified() && !owners[a] {
			continue
		}
		vaults := make([]*export.Vault, 0, len(a.Vaults))
		for _, v := range a.Vaults {
			if kept[v] {
				vaults = append(vaults, v)
			}
		}
		out.Accounts = append(out.Accounts, &export.Account{
			UUID:        a.UUID,
			Name:        a.Name,
			AccountName: a.AccountName,
			Fields:      a.Fields,
			Vaults:      vaults,
		})
	}
	out.Files = selectFiles(doc.Files, out.DocumentIDs())

	return &out, nil
}

func selectAccounts(accounts []*export.Account, entries []string) ([]*export.Account, error) {
	if len(entries) == 0 || contains(entries, Wildcard) {
		if err := unmatchedAccounts(accounts, entries); err != nil {
			return nil, err
		}
		return accounts, nil
	}

	selected := make(map[*export.Account]bool)
	var unmatched []string
	for _, entry := range entries {
		matches := matchAccount(accounts, entry)
		if len(matches) == 0 {
			unmatched = append(unmatched, entry)
			continue
		}
		for _, a := range matches {
			selected[a] = true
		}
	}
	if len(unmatched) > 0 {
		return nil, &ErrNoSuchAccount{Entries: unmatched}
	}

	result := make([]*export.Account, 0, len(selected))
	for _, a := range accounts {
		if selected[a] {
			result = append(result, a)
		}
	}
	return result, nil
}

// unmatchedAccounts validates the non-wildcard entries of a selection that
// also contains the wildcard.
func unmatchedAccounts(accounts []*export.Account, entries []string) error {
	var unmatched []string
	for _, entry := range entries {
		if entry != Wildcard && len(matchAccount(accounts, entry)) == 0 {
			unmatched = append(unmatched, entry)
		}
	}
	if len(unmatched) > 0 {
		return &ErrNoSuchAccount{Entries: unmatched}
	}
	return nil
}

func matchAccount(accounts []*export.Account, entry string) []*export.Account {
	keys := []func(*export.Account) string{
		func(a *export.Account) string { return a.UUID },
		func(a *export.Account) string { return a.Name },
		func(a *export.Account) string { return a.AccountName },
	}
	for _, key := range keys {
		var matches []*export.Account
		for _, a := range accounts {
			if key(a) == entry {
				matches = append(matches, a)
			}
		}
		if len(matches) > 0 {
			return matches
		}
	}
	return nil
}

// selectVaults returns the kept vaults and the accounts named by qualified
// entries.
func selectVaults(accounts []*export.Account, keep KeepSet) (map[*export.Vault]bool, map[*export.Account]bool, error) {
	var vaults []*export.Vault
	for _, a := range accounts {
		vaults = append(vaults, a.Vaults...)
	}

	kept := make(map[*export.Vault]bool)
	if keep.keepsAllVaults() {
		for _, v := range vaults {
			kept[v] = true
		}
	}

	var unmatched []string
	for _, entry := range keep.Vaults {
		if entry == Wildcard {
			continue
		}
		matches := matchVault(vaults, entry)
		if len(matches) == 0 {
			unmatched = append(unmatched, entry)
			continue
		}
		for _, v := range matches {
			kept[v] = true
		}
	}

	owners := make(map[*export.Account]bool)
	var unknownAccounts []string
	for _, ref := range keep.Qualified {
		scope := accounts
		if ref.Account != Wildcard {
			scope = matchAccount(accounts, ref.Account)
			if len(scope) == 0 {
				unknownAccounts = append(unknownAccounts, ref.Account)
				continue
			}
		}

		matched := false
		for _, a := range scope {
			owners[a] = true
			matches := a.Vaults
			if ref.Vault != Wildcard {
				matches = matchVault(a.Vaults, ref.Vault)
			}
			for _, v := range matches {
				kept[v] = true
				matched = true
			}
		}
		if !matched {
			unmatched = append(unmatched, ref.String())
		}
	}

	if len(unknownAccounts) > 0 {
		return nil, nil, &ErrNoSuchAccount{Entries: dedupe(unknownAccounts)}
	}
	if len(unmatched) > 0 {
		return nil, nil, &ErrNoSuchVault{Entries: unmatched}
	}
	return kept, owners, nil
}

// matchVault returns the vaults whose UUID equals entry, or failing that,
// the vaults named entry.
func matchVault(vaults []*export.Vault, entry string) []*export.Vault {
	var byID, byName []*export.Vault
	for _, v := range vaults {
		if v.UUID == entry {
			byID = append(byID, v)
		}
		if v.Name == entry {
			byName = append(byName, v)
		}
	}
	if len(byID) > 0 {
		return byID
	}
	return byName
}

func selectFiles(files []*export.File, ids map[string]struct{}) []*export.File {
	if files == nil {
		return nil
	}
	kept := make([]*export.File, 0, len(files))
	for _, f := range files {
		if _, ok := ids[f.DocumentID]; ok {
			kept = append(kept, f)
		}
	}
	return kept
}

func contains(entries []string, s string) bool {
	for _, e := range entries {
		if e == s {
			return true
		}
	}
	return false
}

func dedupe(entries []string) []string {
	if len(entries) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
