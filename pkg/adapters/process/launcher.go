// Package process launches the external analysis worker as a local process.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/ports"
)

// DefaultStopGrace is how long Stop waits after interrupting the worker before killing it.
const DefaultStopGrace = 5 * time.Second

var (
	// ErrNotConfigured is returned by Launch when no worker command is configured.
	ErrNotConfigured = errors.New("worker command not configured")
	// ErrAlreadyRunning is returned by Launch while a previous worker is still alive.
	ErrAlreadyRunning = errors.New("worker already running")
)

// Environment variables set on the worker process in addition to the positional arguments.
const (
	EnvAddress = "CFTBRIDGE_ADDRESS"
	EnvPort    = "CFTBRIDGE_PORT"
	EnvWorkDir = "CFTBRIDGE_WORKDIR"
)

// Launcher implements ports.WorkerLauncher and ports.WorkerStopper for a local process.
type Launcher struct {
	cfg    WorkerConfig
	grace  time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Option configures the Launcher.
type Option func(*Launcher)

// WithLogger configures a logger for the Launcher. Worker output is forwarded to it.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// WithStopGrace sets how long Stop waits before killing the worker.
func WithStopGrace(d time.Duration) Option {
	return func(l *Launcher) {
		l.grace = d
	}
}

// NewLauncher creates a Launcher for cfg.
func NewLauncher(cfg WorkerConfig, opts ...Option) *Launcher {
	l := &Launcher{
		cfg:    cfg,
		grace:  DefaultStopGrace,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var (
	_ ports.WorkerLauncher = (*Launcher)(nil)
	_ ports.WorkerStopper  = (*Launcher)(nil)
)

// Launch starts the worker and returns without waiting for it to connect.
// The process outlives ctx; it is ended by Stop.
func (l *Launcher) Launch(ctx context.Context, endpoint ports.Endpoint) error {
	if l.cfg.Command == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd != nil {
		select {
		case <-l.done:
		default:
			return ErrAlreadyRunning
		}
	}

	args := append([]string{}, l.cfg.Args...)
	args = append(args, endpoint.Address, strconv.Itoa(endpoint.Port), endpoint.WorkDir)

	cmd := exec.Command(l.cfg.Command, args...)
	cmd.Dir = l.cfg.Dir
	cmd.Env = cmd.Environ()
	for k, v := range l.cfg.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env,
		EnvAddress+"="+endpoint.Address,
		EnvPort+"="+strconv.Itoa(endpoint.Port),
		EnvWorkDir+"="+endpoint.WorkDir,
	)

	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker %q: %w", l.cfg.Command, err)
	}
	l.logger.Info("worker started", "command", l.cfg.Command, "pid", cmd.Process.Pid, "endpoint", endpoint.HostPort())

	done := make(chan struct{})
	l.cmd = cmd
	l.done = done
	l.err = nil

	go func() {
		l.forward(out)
		err := cmd.Wait()
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		if err != nil {
			l.logger.Warn("worker exited", "pid", cmd.Process.Pid, "err", err)
		} else {
			l.logger.Debug("worker exited", "pid", cmd.Process.Pid)
		}
		close(done)
	}()
	return nil
}

func (l *Launcher) forward(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		l.logger.Debug("worker output", "line", sc.Text())
	}
}

// Running reports whether a launched worker has not exited yet.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Stop interrupts the worker, kills it after the grace period and reaps it.
// Stopping a worker that already exited returns nil.
func (l *Launcher) Stop(ctx context.Context) error {
	l.mu.Lock()
	cmd, done := l.cmd, l.done
	l.mu.Unlock()
	if cmd == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if runtime.GOOS == "windows" {
		_ = cmd.Process.Kill()
	} else if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}

	timer := time.NewTimer(l.grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	l.logger.Warn("worker did not exit, killing", "pid", cmd.Process.Pid)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker: %w", err)
	}
	<-done
	return nil
}
