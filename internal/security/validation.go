// Package security provides input validation for untrusted export archives.
package security

import (
	"fmt"
	"path"
	"strings"
)

// Input size limits for archive entries.
const (
	MaxEntryNameLength  = 1024
	MaxDocumentIDLength = 256
	MaxEntrySize        = 1 << 30 // 1 GiB per entry
	MaxDataSize         = 512 << 20
	MaxEntryCount       = 100000
)

// ValidateStringLength validates that a string is within allowed length.
func ValidateStringLength(s string, maxLen int, fieldName string) error {
	if len(s) > maxLen {
		return fmt.Errorf("%s exceeds maximum length of %d bytes", fieldName, maxLen)
	}
	return nil
}

// SanitizeString removes control characters so that names taken from an
// export can be printed to a terminal.
func SanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		// C0 controls, DEL and C1 controls carry terminal escapes
		if r < 32 || r == 0x7f || (r >= 0x80 && r < 0xa0) {
			return -1
		}
		if r == '\ufeff' { // BOM
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// ValidateEntryName ensures an archive entry name is a clean relative path.
func ValidateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("entry name cannot be empty")
	}
	if err := ValidateStringLength(name, MaxEntryNameLength, "entry name"); err != nil {
		return err
	}
	if strings.ContainsAny(name, "\x00\\") {
		return fmt.Errorf("entry name %q contains invalid characters", name)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("entry name %q is absolute", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("entry name %q contains parent directory reference", name)
		}
	}
	// Trailing slash marks a directory; Clean would drop it.
	if cleaned := path.Clean(name); cleaned != strings.TrimSuffix(name, "/") {
		return fmt.Errorf("entry name %q is not a clean path", name)
	}
	return nil
}

// ValidateDocumentID ensures an attachment document ID is usable as part of
// an entry name.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	if err := ValidateStringLength(id, MaxDocumentIDLength, "document ID"); err != nil {
		return err
	}
	if strings.ContainsAny(id, "/\\:*?\"<>|\x00") {
		return fmt.Errorf("document ID %q contains invalid characters", id)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("document ID cannot contain '..'")
	}
	return nil
}

// ValidateEntrySize validates the declared uncompressed size of an entry.
func ValidateEntrySize(name string, size uint64, limit uint64) error {
	if size > limit {
		return fmt.Errorf("entry %q exceeds maximum size of %d bytes", name, limit)
	}
	return nil
}

// ValidateEntryCount validates the number of entries in an archive.
func ValidateEntryCount(count int) error {
	if count > MaxEntryCount {
		return fmt.Errorf("too many archive entries: %d (max %d)", count, MaxEntryCount)
	}
	return nil
}
