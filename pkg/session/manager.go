package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/coordinator"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed instance can keep a project locked.
const DefaultLockTTL = time.Hour

// Factory builds the coordinator for a project from its settings.
type Factory func(settings *domain.Settings) *coordinator.Coordinator

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

type openProject struct {
	coordinator *coordinator.Coordinator
	unlock      ports.UnlockFunc // releases the distributed lock (if any)
}

// Manager orchestrates project sessions, ensuring one coordinator per project.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store   ports.SettingsStore
	factory Factory
	baseDir string

	mu       sync.Mutex            // guards locks and projects
	locks    map[string]*lockEntry // per-project locks
	projects map[string]*openProject

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of the distributed project lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithBaseDir sets the parent of default data directories for new projects.
func WithBaseDir(dir string) Option {
	return func(m *Manager) {
		m.baseDir = dir
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager. factory is called once per successful Open.
func NewManager(store ports.SettingsStore, factory Factory, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		factory:  factory,
		locks:    make(map[string]*lockEntry),
		projects: make(map[string]*openProject),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(projectID) after unlocking.
func (m *Manager) acquire(projectID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[projectID]
	if !exists {
		entry = &lockEntry{}
		m.locks[projectID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[projectID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, projectID)
	}
}

// withLock executes fn while holding the local lock for the project.
func (m *Manager) withLock(projectID string, fn func() error) error {
	entry := m.acquire(projectID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(projectID)
	}()
	return fn()
}

// LoadSettings returns the stored settings of a project, or defaults when none exist.
func (m *Manager) LoadSettings(ctx context.Context, projectID string) (*domain.Settings, bool, error) {
	settings, err := m.store.Load(ctx, projectID)
	if err == nil {
		return settings, true, nil
	}
	if !errors.Is(err, domain.ErrSettingsNotFound) {
		return nil, false, fmt.Errorf("failed to load settings: %w", err)
	}
	return domain.NewSettings(projectID, m.baseDir), false, nil
}

// Open connects a coordinator for the project. New projects get default settings, which
// are persisted immediately.
func (m *Manager) Open(ctx context.Context, projectID string) (*coordinator.Coordinator, error) {
	var c *coordinator.Coordinator
	err := m.withLock(projectID, func() error {
		m.mu.Lock()
		_, open := m.projects[projectID]
		m.mu.Unlock()
		if open {
			return fmt.Errorf("open %s: %w", projectID, domain.ErrProjectAlreadyOpen)
		}

		settings, existed, err := m.LoadSettings(ctx, projectID)
		if err != nil {
			return err
		}
		if !existed {
			if err := m.store.Save(ctx, settings); err != nil {
				return fmt.Errorf("failed to initialize settings: %w", err)
			}
		}

		var unlock ports.UnlockFunc
		if m.locker != nil {
			unlock, err = m.locker.Lock(ctx, projectID, m.lockTTL)
			if err != nil {
				return fmt.Errorf("failed to acquire distributed lock: %w", err)
			}
		}

		c = m.factory(settings)
		if err := c.Open(ctx); err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
			m.unlock(ctx, projectID, unlock)
			return err
		}

		m.mu.Lock()
		m.projects[projectID] = &openProject{coordinator: c, unlock: unlock}
		m.mu.Unlock()
		m.logger.Info("project opened", "project", projectID, "data_dir", settings.DataDir)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the coordinator of an open project.
func (m *Manager) Get(projectID string) (*coordinator.Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", projectID, domain.ErrProjectNotOpen)
	}
	return p.coordinator, nil
}

// Close closes the project's coordinator and releases its locks.
func (m *Manager) Close(ctx context.Context, projectID string) error {
	return m.withLock(projectID, func() error {
		m.mu.Lock()
		p, ok := m.projects[projectID]
		delete(m.projects, projectID)
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("close %s: %w", projectID, domain.ErrProjectNotOpen)
		}

		err := p.coordinator.Close(ctx)
		m.unlock(ctx, projectID, p.unlock)
		m.logger.Info("project closed", "project", projectID)
		return err
	})
}

// CloseAll closes every open project.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.List() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, domain.ErrProjectNotOpen) {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// List returns the open project identifiers in sorted order.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Store returns the underlying settings store.
func (m *Manager) Store() ports.SettingsStore {
	return m.store
}

func (m *Manager) unlock(ctx context.Context, projectID string, unlock ports.UnlockFunc) {
	if unlock == nil {
		return
	}
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
			"project", projectID,
			"err", err,
		)
	}
}
