package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Default escalation timeouts for Terminate.
const (
	DefaultGraceTimeout = 3 * time.Second
	DefaultKillTimeout  = 2 * time.Second
)

// maxLogLineBytes caps captured worker log lines.
const maxLogLineBytes = 64 * 1024

// Config holds configuration for spawning a worker process.
type Config struct {
	// Name identifies the worker in logs, normally the device ID.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, the worker inherits the daemon's environment unchanged.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from the daemon.
	WorkDir string

	// GraceTimeout is how long Terminate waits after SIGTERM before
	// escalating to SIGKILL.
	GraceTimeout time.Duration

	// KillTimeout is how long Terminate waits after SIGKILL before
	// giving up on the exit.
	KillTimeout time.Duration
}

// Logger defines the logging interface for process handles.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handle tracks one spawned worker process until it exits.
type Handle struct {
	config Config
	logger Logger

	mu  sync.Mutex
	cmd *exec.Cmd

	// done closes when the process has exited and been reaped.
	done chan struct{}
}

// Spawn starts a worker process and begins capturing its output.
//
// The worker is placed in its own process group so Terminate can signal
// the worker and any children it spawns together. The returned handle is
// valid until the process exits; it is not reused across restarts.
func Spawn(cfg Config, logger Logger) (*Handle, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}
	if cfg.GraceTimeout <= 0 {
		cfg.GraceTimeout = DefaultGraceTimeout
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = DefaultKillTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}

	h := &Handle{
		config: cfg,
		logger: logger,
		done:   make(chan struct{}),
	}

	cmd := exec.Command(cfg.Binary, cfg.Args...) //nolint:gosec // Binary is the daemon's own executable path
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Name, err)
	}

	h.cmd = cmd

	go h.captureOutput("stdout", stdout)
	go h.captureOutput("stderr", stderr)
	go h.reap()

	h.logger.Info("worker started",
		"name", cfg.Name,
		"pid", cmd.Process.Pid,
	)

	return h, nil
}

// reap waits for the process to exit and releases its resources.
func (h *Handle) reap() {
	defer close(h.done)

	err := h.cmd.Wait()
	if err != nil {
		h.logger.Info("worker exited",
			"name", h.config.Name,
			"error", err,
		)
		return
	}
	h.logger.Info("worker exited", "name", h.config.Name)
}

// captureOutput forwards worker output lines into the daemon log.
func (h *Handle) captureOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLogLineBytes)

	for scanner.Scan() {
		h.logger.Debug("worker output",
			"name", h.config.Name,
			"stream", stream,
			"line", scanner.Text(),
		)
	}
	if err := scanner.Err(); err != nil {
		h.logger.Debug("worker output stream closed",
			"name", h.config.Name,
			"stream", stream,
			"error", err,
		)
	}
}

// IsAlive reports whether the process is still running.
func (h *Handle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// PID returns the worker's process ID.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil && h.cmd.Process != nil {
		return h.cmd.Process.Pid
	}
	return 0
}

// Done returns a channel that closes once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Terminate stops the worker's process group, first with SIGTERM and
// after GraceTimeout with SIGKILL. It always returns: a worker that
// survives both signals is logged and abandoned rather than blocking
// the caller.
func (h *Handle) Terminate() {
	pid := h.PID()
	if pid == 0 {
		return
	}
	if !h.IsAlive() {
		return
	}

	h.logger.Info("stopping worker", "name", h.config.Name, "pid", pid)

	// Negative PID signals the whole process group created via Setpgid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			h.logger.Warn("failed to send SIGTERM to process group",
				"name", h.config.Name,
				"error", err,
			)
		}
	}

	if h.waitExit(h.config.GraceTimeout) {
		h.logger.Info("worker stopped gracefully", "name", h.config.Name)
		return
	}

	h.logger.Warn("graceful shutdown timeout, sending SIGKILL",
		"name", h.config.Name,
		"timeout", h.config.GraceTimeout,
	)

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			h.logger.Warn("failed to send SIGKILL to process group",
				"name", h.config.Name,
				"error", err,
			)
		}
	}

	if h.waitExit(h.config.KillTimeout) {
		h.logger.Info("worker killed", "name", h.config.Name)
		return
	}

	h.logger.Error("worker did not exit after SIGKILL",
		"name", h.config.Name,
		"pid", pid,
	)
}

// waitExit waits up to d for the process to exit.
func (h *Handle) waitExit(d time.Duration) bool {
	select {
	case <-h.done:
		return true
	case <-time.After(d):
		return false
	}
}
