package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nvinuesa/filter1pux/internal/export"
	"github.com/nvinuesa/filter1pux/internal/export/exporttest"
	"github.com/nvinuesa/filter1pux/internal/filter"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// run executes the CLI and captures the exit code and both output streams.
func run(t *testing.T, stdin []byte, args ...string) (code int, stdout, stderr string) {
	t.Helper()

	var in io.Reader = bytes.NewReader(stdin)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	code = execute(args, in, outBuf, errBuf)

	return code, outBuf.String(), errBuf.String()
}

// writeInput writes an export into a fresh directory and returns its path.
func writeInput(t *testing.T, name string, data []byte) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))

	return p
}

func sampleArchive(t *testing.T) []byte {
	t.Helper()
	return exporttest.Archive(t, exporttest.Sample(t), exporttest.SampleFiles())
}

// ---------------------------------------------------------------------------
// Filtering
// ---------------------------------------------------------------------------

func TestFilter_Archive(t *testing.T) {
	in := writeInput(t, "export.1pux", sampleArchive(t))
	out := filepath.Join(filepath.Dir(in), "work.1pux")

	code, stdout, stderr := run(t, nil, "--vault", "Work", in, out)
	require.Equal(t, ExitOK, code, stderr)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Kept 1 of 2 vaults")

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, export.DefaultFileMode, info.Mode().Perm())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	entries := exporttest.ReadArchive(t, data)

	assert.Equal(t, []string{"Work"}, exporttest.VaultNames(t, entries[export.DataEntry]))
	assert.Contains(t, entries, "files/doc-w1_VPN.pdf")
	assert.NotContains(t, entries, "files/doc-orphan_x.txt")
}

func TestFilter_FlagsInsteadOfArguments(t *testing.T) {
	in := writeInput(t, "export.1pux", sampleArchive(t))
	out := filepath.Join(filepath.Dir(in), "out.1pux")

	code, _, stderr := run(t, nil, "-V", "a1", "-V", "Work", "-i", in, "-o", out)
	require.Equal(t, ExitOK, code, stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	entries := exporttest.ReadArchive(t, data)
	assert.Equal(t, []string{"Personal", "Work"}, exporttest.VaultNames(t, entries[export.DataEntry]))
}

func TestFilter_StdinToStdout(t *testing.T) {
	code, stdout, stderr := run(t, exporttest.Sample(t), "--vault", "Personal")
	require.Equal(t, ExitOK, code, stderr)

	assert.True(t, json.Valid([]byte(stdout)), "stdout should be JSON")
	assert.Equal(t, []string{"Personal"}, exporttest.VaultNames(t, []byte(stdout)))
}

func TestFilter_FormatConversion(t *testing.T) {
	code, stdout, stderr := run(t, exporttest.Sample(t), "--vault", "Work", "--format", "1pux")
	require.Equal(t, ExitOK, code, stderr)

	entries := exporttest.ReadArchive(t, []byte(stdout))
	assert.Contains(t, entries, export.AttributesEntry)
	assert.Equal(t, []string{"Work"}, exporttest.VaultNames(t, entries[export.DataEntry]))
}

func TestFilter_JSONOutputWarnsAboutAttachments(t *testing.T) {
	in := writeInput(t, "export.1pux", sampleArchive(t))

	code, stdout, stderr := run(t, nil, "-V", "Work", "--format", "json", in)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stderr, "Warning: 1 attachment(s)")
	assert.True(t, json.Valid([]byte(stdout)))
}

func TestFilter_Account(t *testing.T) {
	in := writeInput(t, "export.json", exporttest.Sample(t))

	code, stdout, stderr := run(t, nil, "--account", "Jane Doe", in)
	require.Equal(t, ExitOK, code, stderr)
	assert.Equal(t, []string{"Personal", "Work"}, exporttest.VaultNames(t, []byte(stdout)))
}

func TestFilter_DryRun(t *testing.T) {
	in := writeInput(t, "export.1pux", sampleArchive(t))
	out := filepath.Join(filepath.Dir(in), "out.1pux")

	code, stdout, stderr := run(t, nil, "-n", "-V", "Work", in, out)
	require.Equal(t, ExitOK, code, stderr)
	assert.Empty(t, stdout)
	assert.Regexp(t, `\+\s+a2\s+Work`, stderr)
	assert.Regexp(t, `-\s+a1\s+Personal`, stderr)
	assert.Contains(t, stderr, "Would keep 1 of 2 vaults")
	assert.Contains(t, stderr, "Dry run")
	assert.NoFileExists(t, out)
}

func TestFilter_Quiet(t *testing.T) {
	in := writeInput(t, "export.json", exporttest.Sample(t))
	out := filepath.Join(filepath.Dir(in), "out.json")

	code, _, stderr := run(t, nil, "-q", "-V", "Work", in, out)
	require.Equal(t, ExitOK, code, stderr)
	assert.Empty(t, stderr)
	assert.FileExists(t, out)
}

// ---------------------------------------------------------------------------
// Failures and exit codes
// ---------------------------------------------------------------------------

func TestFilter_NoSuchVault(t *testing.T) {
	in := writeInput(t, "export.1pux", sampleArchive(t))
	out := filepath.Join(filepath.Dir(in), "out.1pux")

	code, stdout, stderr := run(t, nil, "-V", "Work", "-V", "Finance", in, out)
	assert.Equal(t, ExitNoSuchSel, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, `Error: no vault with ID or name "Finance"`)
	assert.NoFileExists(t, out)
}

func TestFilter_VaultNamesAreCaseSensitive(t *testing.T) {
	code, stdout, _ := run(t, exporttest.Sample(t), "-V", "work")
	assert.Equal(t, ExitNoSuchSel, code)
	assert.Empty(t, stdout)
}

func TestFilter_NoSuchAccount(t *testing.T) {
	code, _, stderr := run(t, exporttest.Sample(t), "-a", "Bob", "-V", "Work")
	assert.Equal(t, ExitNoSuchSel, code)
	assert.Contains(t, stderr, `no account with UUID or name "Bob"`)
}

func TestFilter_MalformedInput(t *testing.T) {
	for name, data := range map[string][]byte{
		"not JSON":        []byte("not json"),
		"no accounts":     []byte(`{"vaults":[]}`),
		"truncated zip":   sampleArchive(t)[:64],
		"missing entries": exporttest.ArchiveEntries(t, map[string][]byte{"export.data": exporttest.Sample(t)}, nil),
	} {
		t.Run(name, func(t *testing.T) {
			in := writeInput(t, "export.1pux", data)
			out := filepath.Join(filepath.Dir(in), "out.1pux")

			code, _, stderr := run(t, nil, "-V", "Work", in, out)
			assert.Equal(t, ExitInvalid, code, stderr)
			assert.Contains(t, stderr, "Error:")
			assert.NoFileExists(t, out)
		})
	}
}

func TestFilter_MissingInput(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.1pux")

	code, _, stderr := run(t, nil, "-V", "Work", missing, "-")
	assert.Equal(t, ExitIO, code)
	assert.Contains(t, stderr, missing)
}

func TestFilter_ExistingOutput(t *testing.T) {
	in := writeInput(t, "export.json", exporttest.Sample(t))
	out := filepath.Join(filepath.Dir(in), "out.json")
	require.NoError(t, os.WriteFile(out, []byte("keep"), 0o600))

	code, _, _ := run(t, nil, "-V", "Work", in, out)
	assert.Equal(t, ExitIO, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	code, _, stderr := run(t, nil, "--force", "-V", "Work", in, out)
	require.Equal(t, ExitOK, code, stderr)

	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"Work"}, exporttest.VaultNames(t, data))
}

func TestFilter_UsageErrors(t *testing.T) {
	in := writeInput(t, "export.json", exporttest.Sample(t))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no selection", []string{in}, "select at least one vault"},
		{"blank selection", []string{"-V", "", in}, "select at least one vault"},
		{"same input and output", []string{"-V", "Work", in, in}, "refusing to overwrite the input"},
		{"input twice", []string{"-V", "Work", "-i", in, in}, "input given both"},
		{"output twice", []string{"-V", "Work", "-o", "x", in, "y"}, "output given both"},
		{"bad format", []string{"-V", "Work", "--format", "csv", in}, "invalid format"},
		{"bad log level", []string{"--log-level", "trace", "-V", "Work", in}, "invalid log level"},
		{"unknown flag", []string{"--nonexistent"}, "unknown flag"},
		{"too many arguments", []string{"-V", "Work", in, "a", "b"}, "accepts at most 2 arg(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := run(t, nil, tt.args...)
			assert.Equal(t, ExitInvalid, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestFilter_RefusesToReplaceInput(t *testing.T) {
	in := writeInput(t, "export.json", exporttest.Sample(t))
	dir := filepath.Dir(in)
	link := filepath.Join(dir, "link.json")
	require.NoError(t, os.Symlink(in, link))
	t.Chdir(dir)

	for name, out := range map[string]string{
		"Relative spelling": "./export.json",
		"Absolute path":     in,
		"Symlink":           link,
	} {
		t.Run(name, func(t *testing.T) {
			code, _, stderr := run(t, nil, "--force", "-V", "Work", "export.json", out)
			assert.Equal(t, ExitInvalid, code)
			assert.Contains(t, stderr, "refusing to overwrite the input")

			data, err := os.ReadFile(in)
			require.NoError(t, err)
			assert.Equal(t, exporttest.Sample(t), data)
		})
	}
}

func TestFilter_QualifiedVault(t *testing.T) {
	in := writeInput(t, "export.json", exporttest.Sample(t))

	code, stdout, stderr := run(t, nil, "-V", "Jane Doe/Work", in)
	require.Equal(t, ExitOK, code, stderr)
	assert.Equal(t, []string{"Work"}, exporttest.VaultNames(t, []byte(stdout)))

	code, _, stderr = run(t, nil, "-V", "Jane Doe/Finance", in)
	assert.Equal(t, ExitNoSuchSel, code)
	assert.Contains(t, stderr, `"Jane Doe/Finance"`)

	code, _, stderr = run(t, nil, "-V", "Bob/Work", in)
	assert.Equal(t, ExitNoSuchSel, code)
	assert.Contains(t, stderr, `no account with UUID or name "Bob"`)
}

// ---------------------------------------------------------------------------
// list
// ---------------------------------------------------------------------------

func TestList_Text(t *testing.T) {
	in := writeInput(t, "export.1pux", sampleArchive(t))

	code, stdout, stderr := run(t, nil, "list", in)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "(1pux, version 3)")
	assert.Contains(t, stdout, "Vaults: 2 total, 3 items, 2 attachments")
	assert.Contains(t, stdout, "Account: Jane Doe (acct-1)")
	assert.Contains(t, stdout, "Personal")
	assert.Contains(t, stdout, "Work")
}

func TestList_JSON(t *testing.T) {
	in := writeInput(t, "export.1pux", sampleArchive(t))

	code, stdout, stderr := run(t, nil, "list", "--output-format", "json", in)
	require.Equal(t, ExitOK, code, stderr)

	var got listing
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "1pux", got.Format)
	assert.Equal(t, filter.Summary{Accounts: 1, Vaults: 2, Items: 3, Files: 2}, got.Summary)
	require.Len(t, got.Accounts, 1)
	require.Len(t, got.Accounts[0].Vaults, 2)
	assert.Equal(t, vaultListing{UUID: "a2", Name: "Work", Type: "U", Items: 1, Attachments: 1}, got.Accounts[0].Vaults[1])
}

func TestList_YAMLFromStdin(t *testing.T) {
	code, stdout, stderr := run(t, exporttest.Sample(t), "list", "--output-format", "yaml")
	require.Equal(t, ExitOK, code, stderr)

	var got listing
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "json", got.Format)
	assert.Equal(t, "-", got.Source)
	assert.Equal(t, 2, got.Summary.Vaults)
}

func TestList_UnknownOutputFormat(t *testing.T) {
	code, _, stderr := run(t, exporttest.Sample(t), "list", "--output-format", "xml")
	assert.Equal(t, ExitInvalid, code)
	assert.Contains(t, stderr, `unknown output format "xml"`)
}

func TestList_MissingInput(t *testing.T) {
	code, _, _ := run(t, nil, "list", filepath.Join(t.TempDir(), "missing.1pux"))
	assert.Equal(t, ExitIO, code)
}

// ---------------------------------------------------------------------------
// version and help
// ---------------------------------------------------------------------------

func TestVersion(t *testing.T) {
	code, stdout, _ := run(t, nil, "version")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "filter1pux "+Version)
	assert.Contains(t, stdout, "Go version:")
}

func TestHelp(t *testing.T) {
	code, stdout, _ := run(t, nil, "--help")
	require.Equal(t, ExitOK, code)

	for _, flag := range []string{"--vault", "--account", "--format", "--force", "--dry-run", "--config", "--quiet"} {
		assert.Contains(t, stdout, flag, "help should mention %q", flag)
	}
	assert.Contains(t, stdout, "list")
}

// ---------------------------------------------------------------------------
// exitCode
// ---------------------------------------------------------------------------

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"explicit", &ExitError{Code: ExitIO, Err: errors.New("x")}, ExitIO},
		{"usage", usageError("bad"), ExitInvalid},
		{"no such vault", &filter.ErrNoSuchVault{Entries: []string{"x"}}, ExitNoSuchSel},
		{"no such account", &filter.ErrNoSuchAccount{Entries: []string{"x"}}, ExitNoSuchSel},
		{"io", &export.ErrIO{Op: "read", Path: "p", Err: errors.New("x")}, ExitIO},
		{"malformed", &export.ErrMalformedInput{Path: "p", Details: "bad"}, ExitInvalid},
		{"schema", &export.ErrSchema{Path: "p", Details: "bad"}, ExitInvalid},
		{"other", errors.New("boom"), ExitInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
