// Package daemon runs the engine as a background service. CLI commands
// talk to it over a Unix socket so the embedder, the lexical index and the
// store lock are held by one long-lived process.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.tailored/tailored.sock
	SocketPath string

	// PIDPath stores the daemon's process ID.
	// Default: ~/.tailored/tailored.pid
	PIDPath string

	// Timeout bounds one client round trip, and one server-side request.
	Timeout time.Duration

	// ShutdownGracePeriod is how long in-flight requests get on shutdown.
	ShutdownGracePeriod time.Duration
}

// DefaultConfig returns a Config rooted at ~/.tailored.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dir := filepath.Join(home, ".tailored")

	return Config{
		SocketPath:          filepath.Join(dir, "tailored.sock"),
		PIDPath:             filepath.Join(dir, "tailored.pid"),
		Timeout:             2 * time.Minute,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the socket and PID directories.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
