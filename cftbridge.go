package cftbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/cftbridge/internal/adapters/file"
	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/adapters/memory"
	"github.com/aretw0/cftbridge/pkg/adapters/process"
	"github.com/aretw0/cftbridge/pkg/channel"
	"github.com/aretw0/cftbridge/pkg/coordinator"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/observability"
	"github.com/aretw0/cftbridge/pkg/persistence/middleware"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/aretw0/cftbridge/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Default file names inside the workspace directory.
const (
	ModelFile    = "model.yaml"
	WorkerFile   = "worker.yaml"
	SettingsDir  = ".cftbridge/settings"
	DataDirsRoot = ".cftbridge/data"
)

// Bridge is the high-level entry point of the library.
// It wires settings storage, the model source, worker launching and observability into a
// session manager.
type Bridge struct {
	dir            string
	store          ports.SettingsStore
	source         ports.ModelSource
	launcher       ports.WorkerLauncher
	newLauncher    func() ports.WorkerLauncher
	locker         ports.DistributedLocker
	reporter       ports.ErrorReporter
	hooks          domain.LifecycleHooks
	registerer     prometheus.Registerer
	metrics        *observability.Metrics
	channelOpts    []channel.Option
	coordinateOpts []coordinator.Option
	logger         *slog.Logger

	manager *session.Manager
}

// Option defines a functional option for configuring the Bridge.
type Option func(*Bridge)

// WithSettingsStore replaces the default YAML settings store.
func WithSettingsStore(store ports.SettingsStore) Option {
	return func(b *Bridge) {
		b.store = store
	}
}

// WithModelSource replaces the model loaded from the workspace.
func WithModelSource(source ports.ModelSource) Option {
	return func(b *Bridge) {
		b.source = source
	}
}

// WithLauncher uses one launcher for every project instead of a worker process per project.
func WithLauncher(launcher ports.WorkerLauncher) Option {
	return func(b *Bridge) {
		b.launcher = launcher
	}
}

// WithLocker guards each open project with a distributed lock.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(b *Bridge) {
		b.locker = locker
	}
}

// WithReporter receives every failed operation. By default failures are logged.
func WithReporter(reporter ports.ErrorReporter) Option {
	return func(b *Bridge) {
		b.reporter = reporter
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(b *Bridge) {
		b.hooks = hooks
	}
}

// WithMetrics registers Prometheus collectors with reg and records into them.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(b *Bridge) {
		b.registerer = reg
	}
}

// WithChannelOptions passes options to every worker connection.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(b *Bridge) {
		b.channelOpts = append(b.channelOpts, opts...)
	}
}

// WithCoordinatorOptions passes options to every coordinator.
func WithCoordinatorOptions(opts ...coordinator.Option) Option {
	return func(b *Bridge) {
		b.coordinateOpts = append(b.coordinateOpts, opts...)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New initializes a Bridge rooted at dir.
// Unless overridden by options, settings are stored under dir/.cftbridge/settings, the
// model is read from dir/model.yaml and workers are started from dir/worker.yaml.
func New(dir string, opts ...Option) (*Bridge, error) {
	if dir == "" {
		dir = "."
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	b := &Bridge{dir: absDir}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NewNop()
	}

	if b.store == nil {
		b.store = middleware.NewRelativeDataDir(absDir)(file.New(filepath.Join(absDir, SettingsDir)))
	}
	if b.registerer != nil {
		b.store = middleware.NewMetricsMiddleware(b.registerer)(b.store)
	}

	if b.source == nil {
		model, err := file.LoadModel(filepath.Join(absDir, ModelFile))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
		b.source = memory.NewModelSource(model)
	}

	if b.launcher == nil {
		cfg, err := process.LoadConfig(filepath.Join(absDir, WorkerFile))
		if err != nil {
			return nil, err
		}
		if cfg.Dir == "" {
			cfg.Dir = absDir
		}
		b.newLauncher = func() ports.WorkerLauncher {
			return process.NewLauncher(cfg, process.WithLogger(b.logger.With("project_dir", absDir)))
		}
	}

	if b.reporter == nil {
		b.reporter = ports.ReporterFunc(func(ctx context.Context, r domain.ErrorReport) {
			b.logger.ErrorContext(ctx, string(r.Category), "project", r.ProjectID, "kind", r.Kind.String(), "err", r.Err)
		})
	}

	hooks := []domain.LifecycleHooks{observability.LogHooks(b.logger)}
	if b.registerer != nil {
		b.metrics = observability.NewMetrics(b.registerer)
		hooks = append(hooks, b.metrics.Hooks())
	}
	hooks = append(hooks, b.hooks)
	b.hooks = observability.Compose(hooks...)

	managerOpts := []session.Option{
		session.WithBaseDir(filepath.Join(absDir, DataDirsRoot)),
		session.WithLogger(b.logger),
	}
	if b.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(b.locker))
	}
	b.manager = session.NewManager(b.store, b.newCoordinator, managerOpts...)
	return b, nil
}

func (b *Bridge) newCoordinator(settings *domain.Settings) *coordinator.Coordinator {
	launcher := b.launcher
	if launcher == nil {
		// One worker process per project; a missing command surfaces on Launch.
		launcher = b.newLauncher()
	}
	opts := []coordinator.Option{
		coordinator.WithSettingsStore(b.store),
		coordinator.WithReporter(b.reporter),
		coordinator.WithLogger(b.logger),
		coordinator.WithHooks(b.hooks),
		coordinator.WithChannelOptions(b.channelOpts...),
	}
	opts = append(opts, b.coordinateOpts...)
	return coordinator.New(settings, launcher, b.source, opts...)
}

// Open connects a coordinator for projectID.
func (b *Bridge) Open(ctx context.Context, projectID string) (*coordinator.Coordinator, error) {
	return b.manager.Open(ctx, projectID)
}

// Close disconnects one project.
func (b *Bridge) Close(ctx context.Context, projectID string) error {
	return b.manager.Close(ctx, projectID)
}

// Shutdown disconnects every open project.
func (b *Bridge) Shutdown(ctx context.Context) error {
	return b.manager.CloseAll(ctx)
}

// Sessions returns the underlying session manager.
func (b *Bridge) Sessions() *session.Manager {
	return b.manager
}

// Model returns the model source used for full resynchronizations.
func (b *Bridge) Model() ports.ModelSource {
	return b.source
}

// Metrics returns the collectors, or nil when metrics are disabled.
func (b *Bridge) Metrics() *observability.Metrics {
	return b.metrics
}

// Hooks returns the combined lifecycle hooks installed on every coordinator.
func (b *Bridge) Hooks() domain.LifecycleHooks {
	return b.hooks
}

// Dir returns the absolute workspace directory.
func (b *Bridge) Dir() string {
	return b.dir
}
