package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAlreadyRunning is returned when another daemon owns the socket.
var ErrAlreadyRunning = errors.New("daemon already running")

// Daemon ties the socket server to a PID file.
type Daemon struct {
	cfg     Config
	pidFile *PIDFile
	server  *Server
}

// NewDaemon validates cfg and prepares a daemon serving svc.
func NewDaemon(cfg Config, svc Service) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if svc == nil {
		return nil, fmt.Errorf("daemon requires a service")
	}
	return &Daemon{
		cfg:     cfg,
		pidFile: NewPIDFile(cfg.PIDPath),
		server:  NewServer(cfg.SocketPath, svc, cfg.Timeout),
	}, nil
}

// Run serves until ctx is cancelled. A stale PID file or socket left by a
// dead process is cleaned up; a live one yields ErrAlreadyRunning.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}

	if d.pidFile.IsRunning() {
		return fmt.Errorf("%w (pid file %s)", ErrAlreadyRunning, d.pidFile.Path())
	}
	if NewClient(d.cfg).IsRunning() {
		return fmt.Errorf("%w (socket %s)", ErrAlreadyRunning, d.cfg.SocketPath)
	}
	if err := d.pidFile.Remove(); err != nil {
		return err
	}

	if err := d.pidFile.Write(); err != nil {
		return err
	}
	defer func() {
		if err := d.pidFile.Remove(); err != nil {
			slog.Warn("pid_file_remove_failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("pid_file", d.cfg.PIDPath))

	errCh := make(chan error, 1)
	go func() { errCh <- d.server.ListenAndServe(ctx) }()

	select {
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return err
	case <-ctx.Done():
	}

	// ListenAndServe waits for in-flight requests; bound that wait.
	select {
	case <-errCh:
	case <-time.After(d.cfg.ShutdownGracePeriod):
		slog.Warn("daemon_shutdown_timeout", slog.Duration("grace", d.cfg.ShutdownGracePeriod))
	}
	slog.Info("daemon_stopped")
	return nil
}
