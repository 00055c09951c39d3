package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{HeapPath: "heap.out"}.Enabled())
}

func TestSession_WritesAllProfiles(t *testing.T) {
	// Given: every profile requested
	dir := t.TempDir()
	cfg := Config{
		CPUPath:   filepath.Join(dir, "cpu.out"),
		HeapPath:  filepath.Join(dir, "heap.out"),
		TracePath: filepath.Join(dir, "trace.out"),
	}

	// When: starting and stopping a session
	s, err := Start(cfg)
	require.NoError(t, err)
	work := make([][]byte, 0, 64)
	for i := 0; i < 64; i++ {
		work = append(work, make([]byte, 1024))
	}
	_ = work
	require.NoError(t, s.Stop())

	// Then: all three files exist and are non-empty
	for _, p := range []string{cfg.CPUPath, cfg.HeapPath, cfg.TracePath} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Positive(t, info.Size(), p)
	}

	// And: a second Stop is a no-op
	assert.NoError(t, s.Stop())
}

func TestSession_Empty(t *testing.T) {
	s, err := Start(Config{})
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}

func TestStart_BadPath(t *testing.T) {
	_, err := Start(Config{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.out")})
	assert.Error(t, err)
}
