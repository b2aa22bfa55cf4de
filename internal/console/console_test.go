package console

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, false)

	c.Error(errors.New("boom"))
	c.Warn("dropping %d files", 2)
	c.Success("wrote %s", "out.1pux")
	c.Info("kept %d vaults", 1)
	c.Dim("(dry run)")

	want := "Error: boom\n" +
		"Warning: dropping 2 files\n" +
		"wrote out.1pux\n" +
		"kept 1 vaults\n" +
		"(dry run)\n"
	assert.Equal(t, want, buf.String())
}

func TestConsole_NoEscapeCodesWhenColorDisabled(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, true)

	c.Error(errors.New("boom"))
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestIsTerminal_NonTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
	assert.False(t, IsColorTerminal(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTerminal(f))
	assert.False(t, IsColorTerminal(f))
}
