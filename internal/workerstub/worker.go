// Package workerstub provides a fake analysis worker for tests and local runs.
//
// The stub dials the endpoint it is launched with, acknowledges every message except
// "exit", and records what it received. Failures can be injected per command to exercise
// the timeout and connection-loss paths of the bridge.
package workerstub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/aretw0/cftbridge/pkg/protocol"
)

// FailureType is the kind of misbehaviour to inject.
type FailureType string

const (
	// FailureNone acknowledges normally.
	FailureNone FailureType = "none"
	// FailureNoAck reads the message and never replies.
	FailureNoAck FailureType = "no_ack"
	// FailureDropConnection closes the socket instead of replying.
	FailureDropConnection FailureType = "drop_connection"
	// FailureGarbage replies with unrecognized content before the acknowledgment.
	FailureGarbage FailureType = "garbage"
	// FailureDelay waits Delay before acknowledging.
	FailureDelay FailureType = "delay"
)

// FailureConfig injects a failure when a message with Command arrives.
// An empty Command matches every message.
type FailureConfig struct {
	Command protocol.Command
	Type    FailureType
	Delay   time.Duration
	// Times limits how often the failure fires. Zero means always.
	Times int
}

// Worker is a fake analysis worker. It also implements ports.WorkerLauncher so it can be
// handed directly to a channel.
type Worker struct {
	mu           sync.Mutex
	messages     []string
	failures     []*FailureConfig
	endpoints    []ports.Endpoint
	conns        []net.Conn
	neverConnect bool
	dialDelay    time.Duration
	idle         time.Duration
	grace        time.Duration

	wg     sync.WaitGroup
	logger *slog.Logger
}

// Option configures the Worker.
type Option func(*Worker)

// WithLogger configures a logger for the Worker.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithNeverConnect makes Launch succeed without ever dialing back.
func WithNeverConnect() Option {
	return func(w *Worker) {
		w.neverConnect = true
	}
}

// WithDialDelay delays the dial after Launch.
func WithDialDelay(d time.Duration) Option {
	return func(w *Worker) {
		w.dialDelay = d
	}
}

// WithFailures installs failure configurations at construction.
func WithFailures(failures ...FailureConfig) Option {
	return func(w *Worker) {
		for i := range failures {
			f := failures[i]
			w.failures = append(w.failures, &f)
		}
	}
}

// New creates a stub worker.
func New(opts ...Option) *Worker {
	w := &Worker{
		idle:   5 * time.Millisecond,
		grace:  200 * time.Millisecond,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Fail adds a failure configuration. Failures are matched in the order they were added.
func (w *Worker) Fail(cfg FailureConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = append(w.failures, &cfg)
}

// Launch dials endpoint in the background and serves the connection until it closes.
func (w *Worker) Launch(ctx context.Context, endpoint ports.Endpoint) error {
	w.mu.Lock()
	w.endpoints = append(w.endpoints, endpoint)
	never := w.neverConnect
	w.mu.Unlock()

	if never {
		return nil
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if w.dialDelay > 0 {
			time.Sleep(w.dialDelay)
		}
		if err := w.Dial(context.WithoutCancel(ctx), endpoint); err != nil {
			w.logger.Debug("stub worker stopped", "err", err)
		}
	}()
	return nil
}

// Dial connects to endpoint and serves the connection until it closes or ctx ends.
func (w *Worker) Dial(ctx context.Context, endpoint ports.Endpoint) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint.HostPort())
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint.HostPort(), err)
	}
	return w.Serve(ctx, conn)
}

// Serve answers messages on conn until "exit", EOF, or ctx ends. It closes conn.
func (w *Worker) Serve(ctx context.Context, conn net.Conn) error {
	w.mu.Lock()
	w.conns = append(w.conns, conn)
	w.mu.Unlock()

	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, protocol.MaxMessageLength)
	for {
		msg, err := w.readMessage(conn, buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		w.mu.Lock()
		w.messages = append(w.messages, msg)
		w.mu.Unlock()

		decoded, err := protocol.Decode(msg)
		if err != nil {
			w.logger.Warn("stub worker received malformed message", "err", err)
		}
		if decoded.Command == protocol.CmdExit {
			return nil
		}

		switch f := w.match(decoded.Command); f.Type {
		case FailureNoAck:
			continue
		case FailureDropConnection:
			return nil
		case FailureGarbage:
			if _, err := conn.Write([]byte("what?")); err != nil {
				return err
			}
			time.Sleep(2 * w.idle)
		case FailureDelay:
			time.Sleep(f.Delay)
		}

		if _, err := conn.Write([]byte(protocol.AckToken)); err != nil {
			return err
		}
	}
}

// readMessage reads one message. Messages have no terminator, so a message ends when
// the sender has been quiet for the idle interval.
func (w *Worker) readMessage(conn net.Conn, buf []byte) (string, error) {
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", err
	}
	n, err := conn.Read(buf)
	if err != nil {
		return "", err
	}
	msg := append([]byte(nil), buf[:n]...)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(w.idle)); err != nil {
			return "", err
		}
		n, err := conn.Read(buf)
		msg = append(msg, buf[:n]...)
		if err != nil {
			// Whatever broke the read surfaces again on the next call.
			return string(msg), nil
		}
	}
}

func (w *Worker) match(cmd protocol.Command) FailureConfig {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, f := range w.failures {
		if f.Command != "" && f.Command != cmd {
			continue
		}
		if f.Times < 0 {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				f.Times = -1
			}
		}
		return *f
	}
	return FailureConfig{Type: FailureNone}
}

// Messages returns every raw message received so far, in order.
func (w *Worker) Messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.messages...)
}

// Commands returns the command keyword of every message received so far.
func (w *Worker) Commands() []protocol.Command {
	msgs := w.Messages()
	out := make([]protocol.Command, 0, len(msgs))
	for _, m := range msgs {
		d, err := protocol.Decode(m)
		if err != nil {
			out = append(out, protocol.Command(m))
			continue
		}
		out = append(out, d.Command)
	}
	return out
}

// Reset forgets the received messages.
func (w *Worker) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = nil
}

// Endpoints returns every endpoint the worker was launched with.
func (w *Worker) Endpoints() []ports.Endpoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ports.Endpoint(nil), w.endpoints...)
}

// Stop waits briefly for the serving goroutines to finish on their own, then closes every
// connection and waits for them to return.
func (w *Worker) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(w.grace):
	}

	w.mu.Lock()
	for _, c := range w.conns {
		_ = c.Close()
	}
	w.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
