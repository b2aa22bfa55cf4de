package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyKeepSet is returned when neither vaults nor accounts were selected.
var ErrEmptyKeepSet = errors.New("no vaults or accounts selected")

// ErrNoSuchVault indicates that keep-set entries matched no vault.
type ErrNoSuchVault struct {
	Entries []string // Unmatched entries, in keep-set order
}

func (e *ErrNoSuchVault) Error() string {
	if len(e.Entries) == 1 {
		return fmt.Sprintf("no vault with ID or name %q", e.Entries[0])
	}
	return fmt.Sprintf("no vaults with ID or name %s", quoteAll(e.Entries))
}

// ErrNoSuchAccount indicates that account selectors matched no account.
type ErrNoSuchAccount struct {
	Entries []string
}

func (e *ErrNoSuchAccount) Error() string {
	if len(e.Entries) == 1 {
		return fmt.Sprintf("no account with UUID or name %q", e.Entries[0])
	}
	return fmt.Sprintf("no accounts with UUID or name %s", quoteAll(e.Entries))
}

// IsNoSuchVault returns true if the error reports unmatched vault entries.
func IsNoSuchVault(err error) bool {
	var vaultErr *ErrNoSuchVault
	return errors.As(err, &vaultErr)
}

// IsNoSuchAccount returns true if the error reports unmatched accounts.
func IsNoSuchAccount(err error) bool {
	var accountErr *ErrNoSuchAccount
	return errors.As(err, &accountErr)
}

// IsUnmatched returns true for either kind of unmatched selector.
func IsUnmatched(err error) bool {
	return IsNoSuchVault(err) || IsNoSuchAccount(err)
}

func quoteAll(entries []string) string {
	quoted := make([]string, len(entries))
	for i, e := range entries {
		quoted[i] = fmt.Sprintf("%q", e)
	}
	return strings.Join(quoted, ", ")
}
