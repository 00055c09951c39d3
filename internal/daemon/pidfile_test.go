package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tailored.pid")
	pf := NewPIDFile(path)

	_, err := pf.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
	assert.False(t, pf.IsRunning())

	require.NoError(t, pf.Write())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, pf.IsRunning())
	assert.NoError(t, pf.Signal(syscall.Signal(0)))

	require.NoError(t, pf.Remove())
	require.NoError(t, pf.Remove(), "missing file is fine")
	assert.Error(t, pf.Signal(syscall.Signal(0)))
}

func TestPIDFile_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tailored.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := NewPIDFile(path).Read()
	assert.Error(t, err)
	assert.False(t, NewPIDFile(path).IsRunning())
}

func TestPIDFile_TrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tailored.pid")
	require.NoError(t, os.WriteFile(path, []byte("42\n"), 0o644))

	pid, err := NewPIDFile(path).Read()
	require.NoError(t, err)
	assert.Equal(t, 42, pid)
}
