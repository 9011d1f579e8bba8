package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/channel"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/executor"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/aretw0/cftbridge/pkg/protocol"
	"github.com/aretw0/cftbridge/pkg/queue"
)

// Coordinator synchronizes one project with the analysis worker.
type Coordinator struct {
	launcher ports.WorkerLauncher
	source   ports.ModelSource
	store    ports.SettingsStore
	reporter ports.ErrorReporter

	queue *queue.DedupQueue
	codec protocol.Codec
	exec  *executor.Executor

	channelOpts   []channel.Option
	initialResync bool
	now           func() time.Time
	logger        *slog.Logger
	hooks         domain.LifecycleHooks

	// Touched only by executor tasks.
	channel *channel.Channel

	mu       sync.Mutex // guards the fields below and writes to settings
	settings *domain.Settings
	session  *channel.Channel // mirror of channel for Status
	state    domain.State
	broken   error
	lastErr  error
	closed   bool
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithSettingsStore persists settings after every change to them.
func WithSettingsStore(store ports.SettingsStore) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithReporter forwards every failure to reporter.
func WithReporter(reporter ports.ErrorReporter) Option {
	return func(c *Coordinator) {
		c.reporter = reporter
	}
}

// WithChannelOptions configures the channel opened by Open.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(c *Coordinator) {
		c.channelOpts = append(c.channelOpts, opts...)
	}
}

// WithInitialResync flushes right after connecting, which performs a full resynchronization
// for a project that was never synchronized.
func WithInitialResync(enabled bool) Option {
	return func(c *Coordinator) {
		c.initialResync = enabled
	}
}

// WithMessageLimit overrides the message ceiling used for batching.
func WithMessageLimit(limit int) Option {
	return func(c *Coordinator) {
		c.codec = protocol.NewCodec(limit)
	}
}

// WithClock replaces time.Now for the last update marker.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithLogger configures a logger for the Coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.hooks = hooks
	}
}

// New creates a disconnected coordinator for settings.ProjectID. It takes ownership of
// settings.
func New(settings *domain.Settings, launcher ports.WorkerLauncher, source ports.ModelSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		launcher: launcher,
		source:   source,
		settings: settings,
		queue:    queue.New(),
		codec:    protocol.NewCodec(protocol.MaxMessageLength),
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("project", settings.ProjectID)
	c.exec = executor.New(executor.WithLogger(c.logger))
	return c
}

// ProjectID returns the project this coordinator serves.
func (c *Coordinator) ProjectID() string {
	return c.settings.ProjectID
}

// Settings returns a copy of the current settings.
func (c *Coordinator) Settings() *domain.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Clone()
}

// State returns the current lifecycle state.
func (c *Coordinator) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of queued change records.
func (c *Coordinator) Pending() int {
	return c.queue.Len()
}

// PendingRecords returns a copy of the queued change records in send order.
func (c *Coordinator) PendingRecords() []string {
	return c.queue.Snapshot()
}

// Status returns a snapshot for display.
func (c *Coordinator) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := domain.Status{
		ProjectID:      c.settings.ProjectID,
		State:          c.state.String(),
		Pending:        c.queue.Len(),
		RunningTask:    c.exec.Running(),
		QueuedTasks:    c.exec.Pending(),
		LastUpdate:     c.settings.LastUpdate,
		DataDir:        c.settings.DataDir,
		ContinuousSync: c.settings.ContinuousUpdate,
		Analysis:       c.settings.ContinuousAnalysis,
		CapturedAt:     c.now(),
	}
	if c.session != nil {
		s.SessionID = c.session.ID()
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Open connects to the worker. With WithInitialResync it also flushes.
// Open on a coordinator whose previous session broke starts a new session.
func (c *Coordinator) Open(ctx context.Context) error {
	return c.run(ctx, "open", domain.CategoryConnection, func(ctx context.Context) error {
		if err := c.checkOpen("open"); err != nil {
			return err
		}
		if c.channel != nil {
			return fmt.Errorf("open %s: %w", c.settings.ProjectID, domain.ErrProjectAlreadyOpen)
		}

		c.setState(ctx, domain.StateConnecting)
		opts := append([]channel.Option{
			channel.WithLogger(c.logger),
			channel.WithHooks(c.hooks),
		}, c.channelOpts...)

		ch, err := channel.Open(ctx, c.launcher, c.settings.DataDir, opts...)
		if err != nil {
			c.mu.Lock()
			c.broken = err
			c.mu.Unlock()
			c.setState(ctx, domain.StateDisconnected)
			return err
		}

		c.channel = ch
		c.mu.Lock()
		c.session = ch
		c.broken = nil
		c.mu.Unlock()
		c.setState(ctx, domain.StateReady)

		if c.initialResync {
			return c.flush(ctx)
		}
		return nil
	})
}

// Close flushes pending records, tells the worker to exit and stops the executor.
// Close is idempotent.
func (c *Coordinator) Close(ctx context.Context) error {
	err := c.run(ctx, "close", domain.CategoryConnection, func(ctx context.Context) error {
		if c.isClosed() {
			return nil
		}

		var flushErr error
		if c.channel != nil {
			if flushErr = c.flush(ctx); flushErr != nil {
				c.logger.Warn("final flush failed", "err", flushErr)
			}
		}

		c.setState(ctx, domain.StateClosing)
		var closeErr error
		if c.channel != nil {
			closeErr = c.channel.Close(ctx)
			c.channel = nil
		}

		c.mu.Lock()
		c.closed = true
		c.session = nil
		c.mu.Unlock()
		c.setState(ctx, domain.StateDisconnected)
		return errors.Join(flushErr, closeErr)
	})
	if errors.Is(err, domain.ErrSessionClosed) && c.isClosed() {
		err = nil
	}

	if cerr := c.exec.Close(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// run schedules fn and reports its failure.
func (c *Coordinator) run(ctx context.Context, name string, category domain.ErrorCategory, fn func(context.Context) error) error {
	err := c.exec.Do(ctx, name, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			c.report(ctx, category, err)
		}
		return err
	})
	if errors.Is(err, executor.ErrClosed) {
		return domain.NewError(domain.KindSessionClosed, name, "coordinator closed", err)
	}
	return err
}

func (c *Coordinator) report(ctx context.Context, category domain.ErrorCategory, err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	if domain.IsTerminal(err) {
		category = domain.CategoryConnection
	}
	c.logger.Error("operation failed", "category", category, "err", err)
	if c.reporter == nil {
		return
	}
	c.reporter.Report(ctx, domain.ErrorReport{
		ProjectID: c.settings.ProjectID,
		Category:  category,
		Kind:      domain.KindOf(err),
		Message:   err.Error(),
		Err:       err,
	})
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) checkOpen(op string) error {
	if c.isClosed() {
		return domain.NewError(domain.KindSessionClosed, op, "coordinator closed", nil)
	}
	return nil
}

// requireSession fails unless a session is established.
func (c *Coordinator) requireSession(op string) error {
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if c.channel != nil {
		return nil
	}
	c.mu.Lock()
	broken := c.broken
	c.mu.Unlock()
	if broken != nil {
		return domain.NewError(domain.KindSessionClosed, op, "session broken, reopen to continue", broken)
	}
	return fmt.Errorf("%s %s: %w", op, c.settings.ProjectID, domain.ErrProjectNotOpen)
}

// exchange sends msg over the session and tears the session down on terminal failure.
func (c *Coordinator) exchange(ctx context.Context, msg string) error {
	err := c.channel.Exchange(ctx, msg)
	if err != nil && domain.IsTerminal(err) {
		c.breakSession(ctx, err)
	}
	return err
}

func (c *Coordinator) breakSession(ctx context.Context, err error) {
	if c.channel != nil {
		_ = c.channel.Close(ctx)
		c.channel = nil
	}
	c.mu.Lock()
	c.broken = err
	c.session = nil
	c.mu.Unlock()
	c.setState(ctx, domain.StateDisconnected)
}

func (c *Coordinator) setState(ctx context.Context, to domain.State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from == to {
		return
	}
	c.logger.Debug("state changed", "from", from, "to", to)
	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(ctx, c.settings.ProjectID, from, to)
	}
}

// persist saves a copy of the settings. Failures are reported but do not fail the caller.
func (c *Coordinator) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	snapshot := c.settings.Clone()
	c.mu.Unlock()

	if err := c.store.Save(ctx, snapshot); err != nil {
		c.report(ctx, domain.CategorySettings, fmt.Errorf("save settings: %w", err))
	}
}

// updateSettings applies fn under the settings lock.
func (c *Coordinator) updateSettings(fn func(s *domain.Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.settings)
}

func (c *Coordinator) notifyPending(ctx context.Context) {
	if c.hooks.OnPending != nil {
		c.hooks.OnPending(ctx, c.settings.ProjectID, c.queue.Len())
	}
}
