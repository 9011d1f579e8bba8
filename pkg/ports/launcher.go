package ports

import (
	"context"
	"strconv"
)

// Endpoint is where a launched worker must connect back to.
type Endpoint struct {
	Address string
	Port    int
	WorkDir string
}

// HostPort returns the endpoint in host:port form.
func (e Endpoint) HostPort() string {
	return e.Address + ":" + strconv.Itoa(e.Port)
}

// WorkerLauncher starts the external analysis worker.
// The launched worker is expected to dial Endpoint within the connection window.
// Launch must not block until the worker connects.
type WorkerLauncher interface {
	Launch(ctx context.Context, endpoint Endpoint) error
}

// WorkerStopper is implemented by launchers that own the worker process and can reap it.
type WorkerStopper interface {
	Stop(ctx context.Context) error
}

// LauncherFunc adapts a function to WorkerLauncher.
type LauncherFunc func(ctx context.Context, endpoint Endpoint) error

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, endpoint Endpoint) error {
	return f(ctx, endpoint)
}
