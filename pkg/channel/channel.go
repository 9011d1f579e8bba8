package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/aretw0/cftbridge/pkg/protocol"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultAckTimeout     = 30 * time.Second
	DefaultPollInterval   = 10 * time.Millisecond

	exitWriteTimeout = time.Second
)

// Channel is one session with the analysis worker.
type Channel struct {
	id       string
	conn     net.Conn
	launcher ports.WorkerLauncher
	endpoint ports.Endpoint
	dataDir  string

	bindAddress    string
	workDir        string
	connectTimeout time.Duration
	ackTimeout     time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
	hooks          domain.LifecycleHooks

	lastCommand string
	buf         []byte

	mu     sync.Mutex
	broken error
	closed bool
}

// Option configures the Channel.
type Option func(*Channel)

// WithBindAddress listens on addr instead of the primary interface address.
func WithBindAddress(addr string) Option {
	return func(c *Channel) {
		c.bindAddress = addr
	}
}

// WithWorkDir sets the working directory passed to the launcher.
func WithWorkDir(dir string) Option {
	return func(c *Channel) {
		c.workDir = dir
	}
}

// WithConnectTimeout bounds the wait for the worker to connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.connectTimeout = d
	}
}

// WithAckTimeout bounds the wait for each acknowledgment.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.ackTimeout = d
	}
}

// WithPollInterval sets how often AwaitAck checks the socket.
func WithPollInterval(d time.Duration) Option {
	return func(c *Channel) {
		c.pollInterval = d
	}
}

// WithLogger configures a logger for the Channel.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithHooks registers message and acknowledgment callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Channel) {
		c.hooks = hooks
	}
}

// Open listens, launches the worker, waits for it to connect and performs the handshake.
// Every failure is terminal: the returned error carries ConnectionTimeout, ConnectionLost,
// AckTimeout or NoAddress and no Channel is returned.
func Open(ctx context.Context, launcher ports.WorkerLauncher, dataDir string, opts ...Option) (*Channel, error) {
	c := &Channel{
		id:             uuid.NewString(),
		launcher:       launcher,
		dataDir:        dataDir,
		connectTimeout: DefaultConnectTimeout,
		ackTimeout:     DefaultAckTimeout,
		pollInterval:   DefaultPollInterval,
		logger:         logging.NewNop(),
		buf:            make([]byte, protocol.MaxMessageLength),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session_id", c.id)

	addr := c.bindAddress
	if addr == "" {
		var err error
		if addr, err = PrimaryAddress(); err != nil {
			return nil, err
		}
	}

	conn, err := c.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	if err := c.Exchange(ctx, protocol.WithArgument(protocol.CmdStartDataDir, protocol.DataDirArgument(dataDir))); err != nil {
		_ = c.conn.Close()
		c.closed = true
		c.stopWorker(ctx)
		return nil, err
	}

	c.logger.Info("worker connected", "endpoint", c.endpoint.HostPort(), "data_dir", dataDir)
	return c, nil
}

func (c *Channel) connect(ctx context.Context, addr string) (net.Conn, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(addr, "0"))
	if err != nil {
		return nil, domain.NewError(domain.KindNoAddress, "open", "listen on "+addr, err)
	}
	defer ln.Close()

	tcp := ln.(*net.TCPListener)
	c.endpoint = ports.Endpoint{
		Address: addr,
		Port:    tcp.Addr().(*net.TCPAddr).Port,
		WorkDir: c.workDir,
	}

	if err := c.launcher.Launch(ctx, c.endpoint); err != nil {
		return nil, domain.NewError(domain.KindConnectionTimeout, "open", "launch worker", err)
	}

	if err := tcp.SetDeadline(time.Now().Add(c.connectTimeout)); err != nil {
		return nil, domain.NewError(domain.KindConnectionTimeout, "open", "arm accept deadline", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	conn, err := tcp.Accept()
	if err != nil {
		c.stopWorker(context.WithoutCancel(ctx))
		if ctx.Err() != nil {
			return nil, domain.NewError(domain.KindConnectionTimeout, "open", "cancelled while waiting for worker", ctx.Err())
		}
		return nil, domain.NewError(domain.KindConnectionTimeout, "open",
			fmt.Sprintf("no worker connected to %s within %s", c.endpoint.HostPort(), c.connectTimeout), err)
	}
	return conn, nil
}

// ID returns the session identifier.
func (c *Channel) ID() string { return c.id }

// Endpoint returns the endpoint the worker was told to connect to.
func (c *Channel) Endpoint() ports.Endpoint { return c.endpoint }

// DataDir returns the data directory sent in the handshake.
func (c *Channel) DataDir() string { return c.dataDir }

// Err returns the error that broke the session, if any.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

func (c *Channel) usable(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.NewError(domain.KindSessionClosed, op, "channel closed", nil)
	}
	if c.broken != nil {
		return domain.NewError(domain.KindSessionClosed, op, "channel broken", c.broken)
	}
	return nil
}

func (c *Channel) fail(err error) error {
	c.mu.Lock()
	if c.broken == nil {
		c.broken = err
	}
	c.mu.Unlock()
	c.logger.Warn("session broken", "err", err)
	return err
}

// Send writes msg. Messages at or past the ceiling are rejected with MessageTooLarge.
func (c *Channel) Send(ctx context.Context, msg string) error {
	if err := c.usable("send"); err != nil {
		return err
	}
	if len(msg) >= protocol.MaxMessageLength {
		return domain.NewError(domain.KindMessageTooLarge, "send",
			fmt.Sprintf("message of %d bytes reaches the %d byte ceiling", len(msg), protocol.MaxMessageLength), nil)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.ackTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return c.fail(domain.NewError(domain.KindConnectionLost, "send", "arm write deadline", err))
	}

	cmd := commandOf(msg)
	if _, err := io.WriteString(c.conn, msg); err != nil {
		return c.fail(domain.NewError(domain.KindConnectionLost, "send", cmd, err))
	}
	c.lastCommand = cmd

	c.logger.Debug("message sent", "command", cmd, "bytes", len(msg))
	if c.hooks.OnMessage != nil {
		c.hooks.OnMessage(ctx, &domain.MessageEvent{
			SessionID: c.id,
			Command:   cmd,
			Bytes:     len(msg),
			Records:   recordCount(msg),
		})
	}
	return nil
}

// AwaitAck blocks until the worker acknowledges the last message.
// Unrecognized replies are logged and ignored. Exceeding the ack timeout or abandoning
// the wait through ctx breaks the session, since a late acknowledgment would be credited
// to the wrong message.
func (c *Channel) AwaitAck(ctx context.Context) error {
	if err := c.usable("await ack"); err != nil {
		return err
	}

	start := time.Now()
	err := c.awaitAck(ctx, start)
	if c.hooks.OnAck != nil {
		c.hooks.OnAck(ctx, &domain.AckEvent{
			SessionID: c.id,
			Command:   c.lastCommand,
			Wait:      time.Since(start),
			Err:       err,
		})
	}
	return err
}

func (c *Channel) awaitAck(ctx context.Context, start time.Time) error {
	limit := start.Add(c.ackTimeout)
	var reply strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			return c.fail(domain.NewError(domain.KindConnectionLost, "await ack", "abandoned "+c.lastCommand, err))
		}
		if time.Now().After(limit) {
			return c.fail(domain.NewError(domain.KindAckTimeout, "await ack",
				fmt.Sprintf("no acknowledgment for %q within %s", c.lastCommand, c.ackTimeout), nil))
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.pollInterval)); err != nil {
			return c.fail(domain.NewError(domain.KindConnectionLost, "await ack", "arm read deadline", err))
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			reply.Write(c.buf[:n])
			if protocol.ContainsAck(reply.String()) {
				return nil
			}
		}
		if err == nil {
			continue
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if s := reply.String(); s != "" && !strings.HasPrefix(protocol.AckToken, s) {
				c.logger.Warn("ignoring unrecognized reply", "command", c.lastCommand,
					"err", domain.NewError(domain.KindProtocolViolation, "await ack", strconv.Quote(s), nil))
				reply.Reset()
			}
			continue
		}
		return c.fail(domain.NewError(domain.KindConnectionLost, "await ack", c.lastCommand, err))
	}
}

// Exchange sends msg and, unless it is "exit", waits for its acknowledgment.
// ctx is only consulted before the message goes out. Once sent, the exchange runs to
// completion bounded by the ack timeout, so a caller giving up never breaks the session.
func (c *Channel) Exchange(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("exchange %s: %w", commandOf(msg), err)
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.Send(ctx, msg); err != nil {
		return err
	}
	if !protocol.Command(commandOf(msg)).ExpectsAck() {
		return nil
	}
	return c.AwaitAck(ctx)
}

// Close tells the worker to exit, releases the socket and stops the worker when the
// launcher owns its process. Close is idempotent.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	broken := c.broken
	c.mu.Unlock()

	if broken == nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(exitWriteTimeout))
		if _, err := io.WriteString(c.conn, protocol.Start(protocol.CmdExit)); err != nil {
			c.logger.Debug("exit not delivered", "err", err)
		}
	}
	err := c.conn.Close()
	c.stopWorker(ctx)

	c.logger.Info("session closed")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close channel: %w", err)
	}
	return nil
}

func (c *Channel) stopWorker(ctx context.Context) {
	stopper, ok := c.launcher.(ports.WorkerStopper)
	if !ok {
		return
	}
	if err := stopper.Stop(ctx); err != nil {
		c.logger.Warn("failed to stop worker", "err", err)
	}
}

func commandOf(msg string) string {
	cmd, _, _ := strings.Cut(msg, protocol.BatchSeparator)
	return cmd
}

func recordCount(msg string) int {
	n := strings.Count(msg, protocol.BatchSeparator) - 1
	if n < 0 {
		return 0
	}
	return n
}
