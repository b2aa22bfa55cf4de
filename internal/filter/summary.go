package filter

import (
	"github.com/nvinuesa/filter1pux/internal/export"
)

// Summary counts the contents of a document.
type Summary struct {
	Accounts int `json:"accounts" yaml:"accounts"`
	Vaults   int `json:"vaults" yaml:"vaults"`
	Items    int `json:"items" yaml:"items"`
	Files    int `json:"files" yaml:"files"`
}

// Summarize counts the accounts, vaults, items and attachments of doc.
func Summarize(doc *export.Document) Summary {
	if doc == nil {
		return Summary{}
	}
	return Summary{
		Accounts: len(doc.Accounts),
		Vaults:   doc.VaultCount(),
		Items:    doc.ItemCount(),
		Files:    len(doc.Files),
	}
}

// Dropped returns the vaults of before that are absent from after.
func Dropped(before, after *export.Document) []*export.Vault {
	kept := make(map[*export.Vault]bool)
	for _, v := range after.Vaults() {
		kept[v] = true
	}
	var dropped []*export.Vault
	for _, v := range before.Vaults() {
		if !kept[v] {
			dropped = append(dropped, v)
		}
	}
	return dropped
}
