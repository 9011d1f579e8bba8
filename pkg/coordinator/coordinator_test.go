package coordinator_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/cftbridge/internal/workerstub"
	"github.com/aretw0/cftbridge/pkg/adapters/memory"
	"github.com/aretw0/cftbridge/pkg/channel"
	"github.com/aretw0/cftbridge/pkg/coordinator"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	synced  = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	flushed = time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC)
)

var pump = domain.Element{ID: 7, Name: "Pump", Stereotype: "FT"}

type fixture struct {
	c        *coordinator.Coordinator
	worker   *workerstub.Worker
	store    *memory.Store
	reporter *memory.Reporter
	source   *memory.ModelSource
}

type setup struct {
	neverSynced bool
	continuous  bool
	analysis    bool
	failures    []workerstub.FailureConfig
	workerOpts  []workerstub.Option
	opts        []coordinator.Option
}

func newFixture(t *testing.T, s setup) *fixture {
	t.Helper()
	settings := domain.NewSettings("proj", t.TempDir())
	if !s.neverSynced {
		settings.MarkUpdated(synced)
	}
	settings.ContinuousUpdate = s.continuous
	settings.ContinuousAnalysis = s.analysis

	f := &fixture{
		worker:   workerstub.New(append(s.workerOpts, workerstub.WithFailures(s.failures...))...),
		store:    memory.NewStore(),
		reporter: memory.NewReporter(0),
		source: memory.NewModelSource(domain.Model{
			Elements: []domain.Element{
				{ID: 1, Name: "System", Stereotype: "CFT"},
				{ID: 2, Name: "Sensor fails", Stereotype: "FTBasicEvent", ParentID: 1, TaggedValues: map[string]string{"cValue": "0.01"}},
			},
			Connectors: []domain.Connector{
				{ID: 30, Stereotype: "FailurePropagation", ClientID: 2, SupplierID: 1},
			},
		}),
	}

	opts := append([]coordinator.Option{
		coordinator.WithSettingsStore(f.store),
		coordinator.WithReporter(f.reporter),
		coordinator.WithClock(func() time.Time { return flushed }),
		coordinator.WithChannelOptions(
			channel.WithBindAddress("127.0.0.1"),
			channel.WithConnectTimeout(2*time.Second),
			channel.WithAckTimeout(2*time.Second),
		),
	}, s.opts...)
	f.c = coordinator.New(settings, f.worker, f.source, opts...)
	t.Cleanup(func() { _ = f.c.Close(context.Background()) })
	return f
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	require.NoError(t, f.c.Open(context.Background()))
	f.worker.Reset()
}

func TestCoordinator_DedupFlush(t *testing.T) {
	f := newFixture(t, setup{})
	f.open(t)
	ctx := context.Background()

	require.NoError(t, f.c.AddElement(ctx, pump))
	require.NoError(t, f.c.AddElement(ctx, pump))
	assert.Equal(t, 1, f.c.Pending())
	assert.Empty(t, f.worker.Messages(), "nothing is sent without continuous update")

	require.NoError(t, f.c.Update(ctx))

	assert.Equal(t, []string{"update,M,1,M,add single element,S,7,P,Pump,P,FT,P,0"}, f.worker.Messages())
	assert.Equal(t, 0, f.c.Pending())
	assert.Equal(t, flushed.Format(time.RFC3339), f.c.Settings().LastUpdate)

	stored, err := f.store.Load(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, flushed.Format(time.RFC3339), stored.LastUpdate)
}

func TestCoordinator_FullResync(t *testing.T) {
	f := newFixture(t, setup{neverSynced: true})
	f.open(t)
	ctx := context.Background()

	require.NoError(t, f.c.UpdateElement(ctx, pump))
	require.Equal(t, 1, f.c.Pending())

	require.NoError(t, f.c.Update(ctx))

	assert.Equal(t, []string{
		"start full update,M,",
		"add elements,M,,M,1,P,System,P,CFT,P,0,M,2,P,Sensor fails,P,FTBasicEvent,P,0,P,Basic Failure Probability,T,0.01",
		"add connectors,M,,M,30,P,FailurePropagation,P,2,P,1,M,2,P,Is_Child_Of,P,2,P,1",
		"end full update,M,",
	}, f.worker.Messages(), "queued records are subsumed by the full resync")
	assert.Equal(t, 0, f.c.Pending())
	assert.False(t, f.c.Settings().NeverSynced())

	t.Run("Empty flush afterwards is a no-op", func(t *testing.T) {
		f.worker.Reset()
		require.NoError(t, f.c.Update(ctx))
		assert.Empty(t, f.worker.Messages())
		assert.Equal(t, flushed.Format(time.RFC3339), f.c.Settings().LastUpdate)
	})

	t.Run("ResetSync forces another full resync", func(t *testing.T) {
		f.worker.Reset()
		require.NoError(t, f.c.ResetSync(ctx))
		assert.True(t, f.c.Settings().NeverSynced())

		require.NoError(t, f.c.Update(ctx))
		cmds := f.worker.Commands()
		require.NotEmpty(t, cmds)
		assert.Equal(t, protocol.CmdStartFullUpdate, cmds[0])
		assert.Equal(t, protocol.CmdEndFullUpdate, cmds[len(cmds)-1])
	})
}

func TestCoordinator_InitialResync(t *testing.T) {
	f := newFixture(t, setup{neverSynced: true, opts: []coordinator.Option{coordinator.WithInitialResync(true)}})
	require.NoError(t, f.c.Open(context.Background()))

	assert.Equal(t, []protocol.Command{
		protocol.CmdStartDataDir,
		protocol.CmdStartFullUpdate,
		protocol.CmdAddElements,
		protocol.CmdAddConnectors,
		protocol.CmdEndFullUpdate,
	}, f.worker.Commands())
}

func TestCoordinator_AddElementRelations(t *testing.T) {
	f := newFixture(t, setup{continuous: true})
	f.open(t)

	vote := domain.Element{ID: 9, Name: "Vote", Stereotype: "FTM/N", ParentID: 7, ClassifierID: 3, TaggedValues: map[string]string{"m": "2"}}
	err := f.c.AddElement(context.Background(), vote,
		domain.Connector{ID: 20, Stereotype: "FailurePropagation", ClientID: 9, SupplierID: 7},
		domain.Connector{ID: 21, Stereotype: "FailurePropagation", ClientID: 7, SupplierID: 9},
		domain.Connector{ID: 22, Stereotype: "Dependency", ClientID: 9, SupplierID: 7},
	)
	require.NoError(t, err)

	msgs := f.worker.Messages()
	require.Len(t, msgs, 1)
	m, err := protocol.Decode(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{
		"add single element,S,9,P,Vote,P,FTM/N,P,3,P,MOONNumber,T,2",
		"add single connector,S,20,P,FailurePropagation,P,9,P,7",
		"add single connector,S,9,P,Is_Child_Of,P,9,P,7",
		"add single connector,S,9,P,Is_Instance_Of,P,9,P,3",
	}, m.Records)
}

func TestCoordinator_UntrackedIgnored(t *testing.T) {
	f := newFixture(t, setup{continuous: true})
	f.open(t)
	ctx := context.Background()

	require.NoError(t, f.c.AddElement(ctx, domain.Element{ID: 5, Name: "Note", Stereotype: "Note"}))
	require.NoError(t, f.c.DeleteConnector(ctx, domain.Connector{ID: 6, Stereotype: "Dependency"}))
	assert.Empty(t, f.worker.Messages())
	assert.Equal(t, 0, f.c.Pending())
}

func TestCoordinator_SingleEntityCommands(t *testing.T) {
	f := newFixture(t, setup{})
	f.open(t)
	ctx := context.Background()
	conn := domain.Connector{ID: 20, Stereotype: "PortFailureModeTrace", ClientID: 1, SupplierID: 2}

	require.NoError(t, f.c.UpdateElement(ctx, pump))
	require.NoError(t, f.c.DeleteElement(ctx, pump))
	require.NoError(t, f.c.AddConnector(ctx, conn))
	require.NoError(t, f.c.UpdateConnector(ctx, conn))
	require.NoError(t, f.c.DeleteConnector(ctx, conn))
	require.NoError(t, f.c.Update(ctx))

	msgs := f.worker.Messages()
	require.Len(t, msgs, 1)
	m, err := protocol.Decode(msgs[0])
	require.NoError(t, err)

	var cmds []protocol.Command
	for _, r := range m.Records {
		rec, err := protocol.DecodeRecord(r)
		require.NoError(t, err)
		cmds = append(cmds, rec.Command)
	}
	assert.Equal(t, []protocol.Command{
		protocol.CmdUpdateElement,
		protocol.CmdDeleteElement,
		protocol.CmdAddConnector,
		protocol.CmdUpdateConnector,
		protocol.CmdDeleteConnector,
	}, cmds)
}

func TestCoordinator_AckTimeoutIsTerminal(t *testing.T) {
	f := newFixture(t, setup{
		failures: []workerstub.FailureConfig{{Command: protocol.CmdUpdate, Type: workerstub.FailureNoAck, Times: 1}},
		opts:     []coordinator.Option{coordinator.WithChannelOptions(channel.WithAckTimeout(50 * time.Millisecond))},
	})
	f.open(t)
	ctx := context.Background()

	require.NoError(t, f.c.AddElement(ctx, pump))
	err := f.c.Update(ctx)
	assert.ErrorIs(t, err, domain.ErrAckTimeout)

	assert.Equal(t, domain.StateDisconnected, f.c.State())
	assert.Equal(t, 1, f.c.Pending(), "unacknowledged records stay queued")
	assert.Equal(t, synced.Format(time.RFC3339), f.c.Settings().LastUpdate, "marker untouched")

	reports := f.reporter.Reports()
	require.NotEmpty(t, reports)
	assert.Equal(t, domain.CategoryConnection, reports[len(reports)-1].Category)
	assert.Equal(t, domain.KindAckTimeout, reports[len(reports)-1].Kind)

	assert.ErrorIs(t, f.c.Analyze(ctx), domain.ErrSessionClosed)

	t.Run("Reopen catches up", func(t *testing.T) {
		f.open(t)
		require.NoError(t, f.c.Update(ctx))
		assert.Equal(t, []string{"update,M,1,M,add single element,S,7,P,Pump,P,FT,P,0"}, f.worker.Messages())
		assert.Equal(t, 0, f.c.Pending())
	})
}

func TestCoordinator_ConnectionLost(t *testing.T) {
	f := newFixture(t, setup{
		continuous: true,
		failures:   []workerstub.FailureConfig{{Command: protocol.CmdUpdate, Type: workerstub.FailureDropConnection}},
	})
	f.open(t)

	err := f.c.AddElement(context.Background(), pump)
	assert.ErrorIs(t, err, domain.ErrConnectionLost)
	assert.Equal(t, domain.StateDisconnected, f.c.State())
	assert.Equal(t, 1, f.c.Pending())
}

func TestCoordinator_MessageTooLarge(t *testing.T) {
	f := newFixture(t, setup{opts: []coordinator.Option{coordinator.WithMessageLimit(64)}})
	f.open(t)
	ctx := context.Background()

	big := domain.Element{ID: 8, Name: strings.Repeat("x", 80), Stereotype: "FT"}
	require.NoError(t, f.c.AddElement(ctx, big))
	require.NoError(t, f.c.AddElement(ctx, pump))

	err := f.c.Update(ctx)
	assert.ErrorIs(t, err, domain.ErrMessageTooLarge)
	assert.Contains(t, err.Error(), "drop record 8")
	assert.Equal(t, domain.StateReady, f.c.State(), "the session survives")
	assert.Equal(t, []string{"update,M,1,M,add single element,S,7,P,Pump,P,FT,P,0"}, f.worker.Messages(),
		"records behind the oversized one are delivered")
	assert.Equal(t, 0, f.c.Pending())
	assert.Equal(t, flushed.Format(time.RFC3339), f.c.Settings().LastUpdate)

	reports := f.reporter.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, domain.CategoryUpdate, reports[0].Category)
	assert.Equal(t, domain.KindMessageTooLarge, reports[0].Kind)

	assert.NoError(t, f.c.Analyze(ctx))

	t.Run("Queue is unblocked", func(t *testing.T) {
		f.worker.Reset()
		require.NoError(t, f.c.UpdateElement(ctx, pump))
		require.NoError(t, f.c.Update(ctx))
		assert.Equal(t, []string{"update,M,1,M,update single element,S,7,P,Pump,P,FT,P,0"}, f.worker.Messages())
	})
}

func TestCoordinator_FullResyncDropsOversized(t *testing.T) {
	f := newFixture(t, setup{neverSynced: true, opts: []coordinator.Option{coordinator.WithMessageLimit(64)}})
	f.open(t)

	err := f.c.Update(context.Background())
	assert.ErrorIs(t, err, domain.ErrMessageTooLarge)
	assert.Contains(t, err.Error(), "drop record 2")
	assert.Equal(t, domain.StateReady, f.c.State())

	cmds := f.worker.Commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, protocol.CmdStartFullUpdate, cmds[0])
	assert.Equal(t, protocol.CmdEndFullUpdate, cmds[len(cmds)-1], "the full update is always closed")
	assert.Contains(t, cmds, protocol.CmdAddElements)
	for _, msg := range f.worker.Messages() {
		assert.NotContains(t, msg, "Sensor fails")
	}
	assert.False(t, f.c.Settings().NeverSynced())
}

func TestCoordinator_FailedResyncKeepsQueue(t *testing.T) {
	f := newFixture(t, setup{
		neverSynced: true,
		failures:    []workerstub.FailureConfig{{Command: protocol.CmdStartFullUpdate, Type: workerstub.FailureDropConnection, Times: 1}},
	})
	f.open(t)
	ctx := context.Background()

	require.NoError(t, f.c.UpdateElement(ctx, pump))
	require.Equal(t, 1, f.c.Pending())

	err := f.c.Update(ctx)
	assert.ErrorIs(t, err, domain.ErrConnectionLost)
	assert.Equal(t, 1, f.c.Pending(), "the queue is left as it was")
	assert.True(t, f.c.Settings().NeverSynced(), "marker untouched")

	t.Run("Reopen resyncs and subsumes the queue", func(t *testing.T) {
		f.open(t)
		require.NoError(t, f.c.Update(ctx))
		cmds := f.worker.Commands()
		require.NotEmpty(t, cmds)
		assert.Equal(t, protocol.CmdStartFullUpdate, cmds[0])
		assert.Equal(t, protocol.CmdEndFullUpdate, cmds[len(cmds)-1])
		assert.Equal(t, 0, f.c.Pending())
	})
}

func TestCoordinator_CallerDeadlineKeepsSession(t *testing.T) {
	f := newFixture(t, setup{
		failures: []workerstub.FailureConfig{{Command: protocol.CmdUpdate, Type: workerstub.FailureDelay, Delay: 300 * time.Millisecond, Times: 1}},
	})
	f.open(t)
	require.NoError(t, f.c.AddElement(context.Background(), pump))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.c.Update(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, f.c.Analyze(context.Background()), "the flush finished in the background")
	assert.Equal(t, domain.StateReady, f.c.State())
	assert.Equal(t, 0, f.c.Pending())
	assert.Equal(t, flushed.Format(time.RFC3339), f.c.Settings().LastUpdate)
	assert.Equal(t, []protocol.Command{protocol.CmdUpdate, protocol.CmdAnalyze}, f.worker.Commands())
	assert.Empty(t, f.reporter.Reports())
}

func TestCoordinator_BatchesUnderCeiling(t *testing.T) {
	f := newFixture(t, setup{opts: []coordinator.Option{coordinator.WithMessageLimit(120)}})
	f.open(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, f.c.AddConnector(ctx, domain.Connector{ID: 100 + i, Stereotype: "FailurePropagation", ClientID: 1, SupplierID: 2}))
	}
	require.NoError(t, f.c.Update(ctx))

	msgs := f.worker.Messages()
	assert.Greater(t, len(msgs), 1)
	total := 0
	for _, msg := range msgs {
		assert.Less(t, len(msg), 120)
		m, err := protocol.Decode(msg)
		require.NoError(t, err)
		total += len(m.Records)
	}
	assert.Equal(t, 10, total)
}

func TestCoordinator_ContinuousAnalysis(t *testing.T) {
	f := newFixture(t, setup{continuous: true, analysis: true})
	f.open(t)

	require.NoError(t, f.c.AddElement(context.Background(), pump))

	assert.Eventually(t, func() bool {
		cmds := f.worker.Commands()
		return len(cmds) == 2 && cmds[0] == protocol.CmdUpdate && cmds[1] == protocol.CmdAnalyze
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinator_WorkerCommands(t *testing.T) {
	f := newFixture(t, setup{})
	f.open(t)
	ctx := context.Background()

	require.NoError(t, f.c.SetDeveloperMode(ctx, true))
	require.NoError(t, f.c.SetDeveloperMode(ctx, false))
	require.NoError(t, f.c.Analyze(ctx))
	require.NoError(t, f.c.AddElement(ctx, pump))
	require.NoError(t, f.c.OpenAnalysisWindow(ctx))

	assert.Equal(t, []string{
		"set developer mode,M,True",
		"set developer mode,M,False",
		"analyze and store results,M,",
		"update,M,1,M,add single element,S,7,P,Pump,P,FT,P,0",
		"open analysis window,M,",
	}, f.worker.Messages())
}

func TestCoordinator_ChangeDataDir(t *testing.T) {
	f := newFixture(t, setup{})
	f.open(t)
	ctx := context.Background()

	old := f.c.Settings().DataDir
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(old, "graph.db"), []byte("nodes"), 0o644))
	target := filepath.Join(t.TempDir(), "moved")

	require.NoError(t, f.c.ChangeDataDir(ctx, target))

	assert.Equal(t, []string{
		"change neo4j path,M,",
		"start neo4j path,M," + filepath.ToSlash(target),
	}, f.worker.Messages())

	content, err := os.ReadFile(filepath.Join(target, "graph.db"))
	require.NoError(t, err)
	assert.Equal(t, "nodes", string(content))

	assert.Equal(t, target, f.c.Settings().DataDir)
	stored, err := f.store.Load(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, target, stored.DataDir)
}

func TestCoordinator_ChangeDataDirCopyFailure(t *testing.T) {
	f := newFixture(t, setup{})
	f.open(t)
	ctx := context.Background()

	old := f.c.Settings().DataDir
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(old, "graph.db"), []byte("nodes"), 0o644))
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "graph.db"), []byte("taken"), 0o644))

	err := f.c.ChangeDataDir(ctx, target)
	require.Error(t, err)

	assert.Equal(t, []string{
		"change neo4j path,M,",
		"start neo4j path,M," + filepath.ToSlash(old),
	}, f.worker.Messages(), "the worker is pointed back at the old directory")
	assert.Equal(t, old, f.c.Settings().DataDir)
}

func TestCoordinator_Lifecycle(t *testing.T) {
	t.Run("Operations before Open", func(t *testing.T) {
		f := newFixture(t, setup{})
		assert.ErrorIs(t, f.c.Update(context.Background()), domain.ErrProjectNotOpen)
		assert.ErrorIs(t, f.c.Analyze(context.Background()), domain.ErrProjectNotOpen)
	})

	t.Run("Open twice", func(t *testing.T) {
		f := newFixture(t, setup{})
		f.open(t)
		assert.ErrorIs(t, f.c.Open(context.Background()), domain.ErrProjectAlreadyOpen)
	})

	t.Run("Connection timeout", func(t *testing.T) {
		f := newFixture(t, setup{
			workerOpts: []workerstub.Option{workerstub.WithNeverConnect()},
			opts:       []coordinator.Option{coordinator.WithChannelOptions(channel.WithConnectTimeout(50 * time.Millisecond))},
		})
		err := f.c.Open(context.Background())
		assert.ErrorIs(t, err, domain.ErrConnectionTimeout)
		assert.Equal(t, domain.StateDisconnected, f.c.State())
		assert.ErrorIs(t, f.c.Update(context.Background()), domain.ErrSessionClosed)
	})

	t.Run("Close flushes and exits", func(t *testing.T) {
		f := newFixture(t, setup{})
		f.open(t)
		ctx := context.Background()

		require.NoError(t, f.c.AddElement(ctx, pump))
		require.NoError(t, f.c.Close(ctx))
		require.NoError(t, f.c.Close(ctx), "Close is idempotent")

		assert.Eventually(t, func() bool {
			cmds := f.worker.Commands()
			return len(cmds) == 2 && cmds[0] == protocol.CmdUpdate && cmds[1] == protocol.CmdExit
		}, time.Second, 5*time.Millisecond)

		assert.Equal(t, domain.StateDisconnected, f.c.State())
		assert.ErrorIs(t, f.c.AddElement(ctx, pump), domain.ErrSessionClosed)
		assert.ErrorIs(t, f.c.Open(ctx), domain.ErrSessionClosed)
	})
}

func TestCoordinator_StateHooks(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	hooks := domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, _ string, from, to domain.State) {
			mu.Lock()
			transitions = append(transitions, from.String()+">"+to.String())
			mu.Unlock()
		},
	}
	f := newFixture(t, setup{opts: []coordinator.Option{coordinator.WithHooks(hooks)}})
	ctx := context.Background()

	require.NoError(t, f.c.Open(ctx))
	require.NoError(t, f.c.Update(ctx))
	require.NoError(t, f.c.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"disconnected>connecting",
		"connecting>ready",
		"ready>flushing",
		"flushing>ready",
		"ready>flushing",
		"flushing>ready",
		"ready>closing",
		"closing>disconnected",
	}, transitions)
}

func TestCoordinator_ConcurrentProducers(t *testing.T) {
	f := newFixture(t, setup{continuous: true})
	f.open(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := domain.Element{ID: 100 + i, Name: "E", Stereotype: "FTOR"}
			assert.NoError(t, f.c.AddElement(ctx, e))
		}()
	}
	wg.Wait()

	total := 0
	for _, msg := range f.worker.Messages() {
		m, err := protocol.Decode(msg)
		require.NoError(t, err)
		total += len(m.Records)
	}
	assert.Equal(t, 20, total)
	assert.Equal(t, 0, f.c.Pending())
}

func TestCoordinator_Status(t *testing.T) {
	f := newFixture(t, setup{})
	f.open(t)
	ctx := context.Background()
	require.NoError(t, f.c.AddElement(ctx, pump))

	s := f.c.Status()
	assert.Equal(t, "proj", s.ProjectID)
	assert.Equal(t, "ready", s.State)
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, synced.Format(time.RFC3339), s.LastUpdate)
	assert.False(t, s.ContinuousSync)
}
