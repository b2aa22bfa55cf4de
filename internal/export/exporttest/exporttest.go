// Package exporttest builds 1PUX fixtures for tests.
package exporttest

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"sort"
	"testing"
)

// Object is a JSON object under construction.
type Object = map[string]any

// Item returns a login item. Each document ID is attached as a document
// attribute so that it shows up as an attachment reference.
func Item(uuid, title string, documentIDs ...string) Object {
	item := Object{
		"uuid":         uuid,
		"favIndex":     0,
		"createdAt":    1650000000,
		"updatedAt":    1650000100,
		"state":        "active",
		"categoryUuid": "001",
		"overview": Object{
			"title": title,
			"url":   "https://example.com",
			"tags":  []any{"test"},
		},
		"details": Object{
			"loginFields": []any{
				Object{"value": "user", "name": "username", "fieldType": "T", "designation": "username"},
				Object{"value": "hunter2", "name": "password", "fieldType": "P", "designation": "password"},
			},
			"notesPlain": "",
			"sections":   []any{},
		},
	}

	if len(documentIDs) == 1 {
		item["details"].(Object)["documentAttributes"] = Object{
			"fileName":      title + ".pdf",
			"documentId":    documentIDs[0],
			"decryptedSize": 4,
		}
	} else if len(documentIDs) > 1 {
		var fields []any
		for _, id := range documentIDs {
			fields = append(fields, Object{
				"title": id,
				"value": Object{"file": Object{"fileName": id + ".txt", "documentId": id, "decryptedSize": 4}},
			})
		}
		item["details"].(Object)["sections"] = []any{Object{"title": "files", "fields": fields}}
	}
	return item
}

// Vault returns a vault holding items.
func Vault(uuid, name string, items ...Object) Object {
	list := make([]any, 0, len(items))
	for _, it := range items {
		list = append(list, it)
	}
	return Object{
		"attrs": Object{
			"uuid":   uuid,
			"desc":   "",
			"avatar": "",
			"name":   name,
			"type":   "U",
		},
		"items": list,
	}
}

// Account returns an account holding vaults.
func Account(uuid, name string, vaults ...Object) Object {
	list := make([]any, 0, len(vaults))
	for _, v := range vaults {
		list = append(list, v)
	}
	return Object{
		"attrs": Object{
			"accountName": name + " Family",
			"name":        name,
			"avatar":      "",
			"email":       "user@example.com",
			"uuid":        uuid,
			"domain":      "https://my.1password.com/",
		},
		"vaults": list,
	}
}

// Data returns an export.data document for accounts.
func Data(t testing.TB, accounts ...Object) []byte {
	t.Helper()
	list := make([]any, 0, len(accounts))
	for _, a := range accounts {
		list = append(list, a)
	}
	return Marshal(t, Object{"accounts": list})
}

// Marshal encodes v as JSON, failing the test on error.
func Marshal(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

// Attributes returns an export.attributes entry.
func Attributes(t testing.TB) []byte {
	t.Helper()
	return Marshal(t, Object{
		"version":     3,
		"description": "1Password Unencrypted Export",
		"createdAt":   1650000200,
	})
}

// Archive builds a 1PUX container from export.data and attachment files
// keyed by entry name. Files are written in sorted name order.
func Archive(t testing.TB, data []byte, files map[string][]byte) []byte {
	t.Helper()
	return ArchiveEntries(t, map[string][]byte{
		"export.attributes": Attributes(t),
		"export.data":       data,
	}, files)
}

// ArchiveEntries builds a ZIP with the given top-level entries followed by
// a files/ directory and the attachment files.
func ArchiveEntries(t testing.TB, entries map[string][]byte, files map[string][]byte) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	write := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	for _, name := range sortedKeys(entries) {
		write(name, entries[name])
	}
	if _, err := zw.Create("files/"); err != nil {
		t.Fatalf("create files/: %v", err)
	}
	for _, name := range sortedKeys(files) {
		write(name, files[name])
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// Sample returns the two-vault export used across tests:
// Personal (a1) and Work (a2) in one account, Work holding an attachment.
func Sample(t testing.TB) []byte {
	t.Helper()
	return Data(t, Account("acct-1", "Jane Doe",
		Vault("a1", "Personal",
			Item("i1", "Email"),
			Item("i2", "Bank"),
		),
		Vault("a2", "Work",
			Item("i3", "VPN", "doc-w1"),
		),
	))
}

// SampleFiles returns the attachment files of a Sample archive plus one
// orphan file referenced by no item.
func SampleFiles() map[string][]byte {
	return map[string][]byte{
		"files/doc-w1_VPN.pdf":   []byte("work"),
		"files/doc-orphan_x.txt": []byte("lost"),
	}
}

// ReadArchive returns the entries of a ZIP keyed by name.
func ReadArchive(t testing.TB, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	entries := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		rc.Close()
		entries[f.Name] = buf.Bytes()
	}
	return entries
}

// VaultNames decodes export.data and returns the vault names per account,
// flattened in document order.
func VaultNames(t testing.TB, data []byte) []string {
	t.Helper()
	var doc struct {
		Accounts []struct {
			Vaults []struct {
				Attrs struct {
					Name string `json:"name"`
				} `json:"attrs"`
			} `json:"vaults"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode export.data: %v", err)
	}
	var names []string
	for _, a := range doc.Accounts {
		for _, v := range a.Vaults {
			names = append(names, v.Attrs.Name)
		}
	}
	return names
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
