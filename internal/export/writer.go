package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nvinuesa/filter1pux/internal/security"
)

// DefaultFileMode is the permission of written exports. They contain
// plaintext secrets.
const DefaultFileMode fs.FileMode = 0600

// Export attributes written when a bare JSON document is turned into an
// archive.
const (
	defaultVersion     = 3
	defaultDescription = "1Password Unencrypted Export"
)

// WriteOptions configures WriteFile.
type WriteOptions struct {
	// Format selects the container. FormatAuto keeps the document's format.
	Format Format
	// Overwrite allows replacing an existing file.
	Overwrite bool
	// Mode overrides DefaultFileMode if non-zero.
	Mode fs.FileMode
}

// ResolveFormat returns the container a document is written in.
func ResolveFormat(doc *Document, format Format) Format {
	if format != FormatAuto {
		return format
	}
	if doc != nil && doc.Format == FormatArchive {
		return FormatArchive
	}
	return FormatJSON
}

// Encode serializes a document in the given container format.
func Encode(doc *Document, format Format) ([]byte, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}

	data, err := doc.MarshalData()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", DataEntry, err)
	}

	if ResolveFormat(doc, format) == FormatJSON {
		return data, nil
	}
	defer security.Wipe(&data)
	return encodeArchive(doc, data)
}

func encodeArchive(doc *Document, data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	attrs := doc.Attributes
	if attrs == nil {
		var err error
		attrs, err = json.Marshal(map[string]any{
			"version":     defaultVersion,
			"description": defaultDescription,
			"createdAt":   time.Now().Unix(),
		})
		if err != nil {
			return nil, err
		}
	}

	if err := writeEntry(zw, headerFor(doc.AttributesHeader, AttributesEntry), attrs); err != nil {
		return nil, err
	}
	if err := writeEntry(zw, headerFor(doc.DataHeader, DataEntry), data); err != nil {
		return nil, err
	}

	dirHeader := headerFor(doc.FilesDirHeader, FilesDir)
	dirHeader.Method = zip.Store
	dirHeader.SetMode(fs.ModeDir | 0755)
	if _, err := zw.CreateHeader(dirHeader); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", FilesDir, err)
	}

	for _, f := range doc.Files {
		if err := writeEntry(zw, cloneHeader(&f.Header), f.Data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// headerFor copies the source header of a fixed entry, or creates a fresh
// DEFLATE header when the source had none.
func headerFor(src *zip.FileHeader, name string) *zip.FileHeader {
	if src != nil {
		return cloneHeader(src)
	}
	h := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	h.SetMode(0644)
	return h
}

// cloneHeader copies the metadata of a source entry. Sizes, checksums and
// extra fields are left for the zip writer to recompute.
func cloneHeader(src *zip.FileHeader) *zip.FileHeader {
	return &zip.FileHeader{
		Name:           src.Name,
		Comment:        src.Comment,
		NonUTF8:        src.NonUTF8,
		CreatorVersion: src.CreatorVersion,
		Method:         src.Method,
		Modified:       src.Modified,
		ExternalAttrs:  src.ExternalAttrs,
	}
}

func writeEntry(zw *zip.Writer, h *zip.FileHeader, data []byte) error {
	w, err := zw.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", h.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", h.Name, err)
	}
	return nil
}

// Write encodes doc and writes it to w in one call, so nothing reaches w
// if encoding fails.
func Write(w io.Writer, doc *Document, format Format) error {
	data, err := Encode(doc, format)
	if err != nil {
		return err
	}
	defer security.Wipe(&data)

	if _, err := w.Write(data); err != nil {
		return &ErrIO{Op: "write", Path: StdioPath, Err: err}
	}
	return nil
}

// WriteFile writes doc to path atomically: the export is written to a
// temporary file in the destination directory and renamed into place.
func WriteFile(path string, doc *Document, opts WriteOptions) error {
	data, err := Encode(doc, opts.Format)
	if err != nil {
		return err
	}
	defer security.Wipe(&data)

	if !opts.Overwrite {
		if _, err := os.Lstat(path); err == nil {
			return &ErrIO{Op: "create", Path: path, Err: fs.ErrExist}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return &ErrIO{Op: "stat", Path: path, Err: err}
		}
	}

	mode := opts.Mode
	if mode == 0 {
		mode = DefaultFileMode
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &ErrIO{Op: "create directory", Path: dir, Err: err}
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := writeTemp(tmp, data, mode); err != nil {
		os.Remove(tmp)
		return &ErrIO{Op: "write", Path: path, Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &ErrIO{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func writeTemp(tmp string, data []byte, mode fs.FileMode) error {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// umask may have narrowed the mode on create
	return os.Chmod(tmp, mode)
}
