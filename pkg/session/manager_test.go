package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/cftbridge/internal/workerstub"
	"github.com/aretw0/cftbridge/pkg/adapters/memory"
	"github.com/aretw0/cftbridge/pkg/channel"
	"github.com/aretw0/cftbridge/pkg/coordinator"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/aretw0/cftbridge/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RecordingLocker grants every lock and remembers what is held.
type RecordingLocker struct {
	mu   sync.Mutex
	held map[string]bool
	fail error
}

func (l *RecordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, nil
}

func (l *RecordingLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

func newManager(t *testing.T, worker *workerstub.Worker, opts ...session.Option) (*session.Manager, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	source := memory.NewModelSource(domain.Model{})
	factory := func(settings *domain.Settings) *coordinator.Coordinator {
		return coordinator.New(settings, worker, source,
			coordinator.WithSettingsStore(store),
			coordinator.WithChannelOptions(
				channel.WithBindAddress("127.0.0.1"),
				channel.WithConnectTimeout(100*time.Millisecond),
			),
		)
	}
	opts = append([]session.Option{session.WithBaseDir("/var/lib/cft")}, opts...)
	mgr := session.NewManager(store, factory, opts...)
	t.Cleanup(func() { _ = mgr.CloseAll(context.Background()) })
	return mgr, store
}

func TestManager_OpenCreatesDefaults(t *testing.T) {
	mgr, store := newManager(t, workerstub.New())
	ctx := context.Background()

	c, err := mgr.Open(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, c.State())

	stored, err := store.Load(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cft/alpha", stored.DataDir)
	assert.True(t, stored.NeverSynced())
	assert.True(t, stored.ContinuousUpdate)

	got, err := mgr.Get("alpha")
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, []string{"alpha"}, mgr.List())
}

func TestManager_OpenUsesStoredSettings(t *testing.T) {
	mgr, store := newManager(t, workerstub.New())
	ctx := context.Background()

	settings := domain.NewSettings("beta", "/srv")
	settings.DataDir = "/custom/beta"
	require.NoError(t, store.Save(ctx, settings))

	c, err := mgr.Open(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, "/custom/beta", c.Settings().DataDir)
}

func TestManager_SingleOpenPerProject(t *testing.T) {
	mgr, _ := newManager(t, workerstub.New())
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	opened, rejected := 0, 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Open(ctx, "gamma")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				opened++
			} else if errors.Is(err, domain.ErrProjectAlreadyOpen) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, 4, rejected)
}

func TestManager_Close(t *testing.T) {
	locker := &RecordingLocker{}
	mgr, _ := newManager(t, workerstub.New(), session.WithLocker(locker))
	ctx := context.Background()

	c, err := mgr.Open(ctx, "delta")
	require.NoError(t, err)
	assert.True(t, locker.Held("delta"))

	require.NoError(t, mgr.Close(ctx, "delta"))
	assert.False(t, locker.Held("delta"))
	assert.Equal(t, domain.StateDisconnected, c.State())

	_, err = mgr.Get("delta")
	assert.ErrorIs(t, err, domain.ErrProjectNotOpen)
	assert.ErrorIs(t, mgr.Close(ctx, "delta"), domain.ErrProjectNotOpen)

	t.Run("Reopen after close", func(t *testing.T) {
		_, err := mgr.Open(ctx, "delta")
		assert.NoError(t, err)
	})
}

func TestManager_OpenFailureReleasesLock(t *testing.T) {
	locker := &RecordingLocker{}
	mgr, _ := newManager(t, workerstub.New(workerstub.WithNeverConnect()), session.WithLocker(locker))

	_, err := mgr.Open(context.Background(), "epsilon")
	assert.ErrorIs(t, err, domain.ErrConnectionTimeout)
	assert.False(t, locker.Held("epsilon"))
	assert.Empty(t, mgr.List())
}

func TestManager_LockFailure(t *testing.T) {
	locker := &RecordingLocker{fail: errors.New("locked elsewhere")}
	mgr, _ := newManager(t, workerstub.New(), session.WithLocker(locker))

	_, err := mgr.Open(context.Background(), "zeta")
	assert.ErrorContains(t, err, "locked elsewhere")
	assert.Empty(t, mgr.List())
}
