package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/adapters/memory"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge records calls and returns err for every command.
type fakeBridge struct {
	calls      []string
	elements   []domain.Element
	connectors []domain.Connector
	dataDir    string
	developer  bool
	err        error
}

func (f *fakeBridge) Status() domain.Status {
	return domain.Status{ProjectID: "p", State: "ready", DataDir: f.dataDir, Pending: len(f.calls)}
}

func (f *fakeBridge) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeBridge) Update(ctx context.Context) error             { return f.record("update") }
func (f *fakeBridge) Analyze(ctx context.Context) error            { return f.record("analyze") }
func (f *fakeBridge) OpenAnalysisWindow(ctx context.Context) error { return f.record("window") }
func (f *fakeBridge) ResetSync(ctx context.Context) error          { return f.record("reset") }

func (f *fakeBridge) SetDeveloperMode(ctx context.Context, enabled bool) error {
	f.developer = enabled
	return f.record("developer")
}

func (f *fakeBridge) ChangeDataDir(ctx context.Context, dir string) error {
	f.dataDir = dir
	return f.record("data-dir")
}

func (f *fakeBridge) AddElement(ctx context.Context, e domain.Element, connectors ...domain.Connector) error {
	f.elements = append(f.elements, e)
	f.connectors = append(f.connectors, connectors...)
	return f.record("add-element")
}

func (f *fakeBridge) UpdateElement(ctx context.Context, e domain.Element) error {
	return f.record("update-element")
}

func (f *fakeBridge) DeleteElement(ctx context.Context, e domain.Element) error {
	return f.record("delete-element")
}

func (f *fakeBridge) AddConnector(ctx context.Context, c domain.Connector) error {
	f.connectors = append(f.connectors, c)
	return f.record("add-connector")
}

func (f *fakeBridge) UpdateConnector(ctx context.Context, c domain.Connector) error {
	return f.record("update-connector")
}

func (f *fakeBridge) DeleteConnector(ctx context.Context, c domain.Connector) error {
	return f.record("delete-connector")
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestCommands(t *testing.T) {
	cases := []struct {
		method, path, body string
		call               string
	}{
		{"POST", "/update", "", "update"},
		{"POST", "/analyze", "", "analyze"},
		{"POST", "/analysis-window", "", "window"},
		{"POST", "/reset", "", "reset"},
		{"POST", "/developer-mode", `{"enabled":true}`, "developer"},
		{"PUT", "/data-dir", `{"path":"/srv/neo4j/p"}`, "data-dir"},
		{"PUT", "/elements", `{"element":{"id":1,"stereotype":"CFT"}}`, "update-element"},
		{"DELETE", "/elements", `{"element":{"id":1,"stereotype":"CFT"}}`, "delete-element"},
		{"PUT", "/connectors", `{"id":9,"stereotype":"FailurePropagation"}`, "update-connector"},
		{"DELETE", "/connectors", `{"id":9,"stereotype":"FailurePropagation"}`, "delete-connector"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			b := &fakeBridge{}
			w := do(t, NewHandler(b), tc.method, tc.path, tc.body)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, []string{tc.call}, b.calls)

			var st domain.Status
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
			assert.Equal(t, "p", st.ProjectID)
		})
	}

	t.Run("Developer Mode And Data Dir Arguments", func(t *testing.T) {
		b := &fakeBridge{}
		h := NewHandler(b)
		do(t, h, "POST", "/developer-mode", `{"enabled":true}`)
		do(t, h, "PUT", "/data-dir", `{"path":"/srv/neo4j/p"}`)
		assert.True(t, b.developer)
		assert.Equal(t, "/srv/neo4j/p", b.dataDir)
	})
}

func TestElementsUpdateModel(t *testing.T) {
	b := &fakeBridge{}
	model := memory.NewModelSource(domain.Model{})
	h := NewHandler(b, WithModel(model))

	w := do(t, h, "POST", "/elements",
		`{"element":{"id":1,"name":"Pump","stereotype":"CFT"},"connectors":[{"id":5,"stereotype":"FailurePropagation","client_id":1,"supplier_id":2}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, b.elements, 1)
	assert.Equal(t, "Pump", b.elements[0].Name)
	assert.Len(t, b.connectors, 1)

	snap, err := model.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Elements, 1)
	assert.Len(t, snap.Connectors, 1)

	do(t, h, "DELETE", "/connectors", `{"id":5}`)
	snap, _ = model.Snapshot(context.Background())
	assert.Empty(t, snap.Connectors)
}

func TestErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"Not Open", domain.ErrProjectNotOpen, http.StatusConflict, ""},
		{"Session Closed", domain.NewError(domain.KindSessionClosed, "update", "closed", nil), http.StatusConflict, "SessionClosed"},
		{"Too Large", domain.NewError(domain.KindMessageTooLarge, "flush", "record", nil), http.StatusUnprocessableEntity, "MessageTooLarge"},
		{"Ack Timeout", domain.NewError(domain.KindAckTimeout, "await ack", "late", nil), http.StatusBadGateway, "AckTimeout"},
		{"Lost", domain.NewError(domain.KindConnectionLost, "send", "reset", nil), http.StatusBadGateway, "ConnectionLost"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, NewHandler(&fakeBridge{err: tc.err}), "POST", "/update", "")
			assert.Equal(t, tc.code, w.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.kind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}

	t.Run("Bad Body", func(t *testing.T) {
		b := &fakeBridge{}
		w := do(t, NewHandler(b), "POST", "/elements", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, b.calls)
	})

	t.Run("Empty Data Dir", func(t *testing.T) {
		b := &fakeBridge{}
		w := do(t, NewHandler(b), "PUT", "/data-dir", `{"path":"  "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, b.calls)
	})
}

func TestStatusInfoHealthMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "cftbridge_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := NewHandler(&fakeBridge{}, WithGatherer(reg))

	w := do(t, h, "GET", "/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"ready"`)

	w = do(t, h, "GET", "/health", "")
	assert.Contains(t, w.Body.String(), `"ok"`)

	w = do(t, h, "GET", "/info", "")
	assert.Contains(t, w.Body.String(), "cftbridge-http")

	w = do(t, h, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cftbridge_test_total 1")

	w = do(t, h, "OPTIONS", "/update", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents(t *testing.T) {
	streams := NewStreamManager(slogDiscard())
	h := NewHandler(&fakeBridge{}, WithStreams(streams))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/events", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, r)
		close(done)
	}()

	require.Eventually(t, func() bool { return streams.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	hooks := streams.Hooks()
	hooks.OnStateChange(ctx, "p", domain.StateReady, domain.StateFlushing)
	hooks.OnPending(ctx, "p", 3)
	hooks.OnFlush(ctx, &domain.FlushEvent{ProjectID: "p", Records: 3, Messages: 1})

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	out := w.Body.String()
	assert.Contains(t, out, "event: ping")
	assert.Contains(t, out, `"type":"state"`)
	assert.Contains(t, out, `"to":"flushing"`)
	assert.Contains(t, out, `"pending":3`)
	assert.Contains(t, out, `"type":"flush"`)
	assert.Equal(t, 0, streams.Subscribers())
}

func TestBroadcastDropsForSlowClients(t *testing.T) {
	streams := NewStreamManager(slogDiscard())
	ch, unsubscribe := streams.Subscribe()
	defer unsubscribe()

	for i := 0; i < 20; i++ {
		streams.Broadcast(Event{Type: "pending", Data: i})
	}
	assert.Len(t, ch, cap(ch))

	var buf bytes.Buffer
	buf.WriteString(<-ch)
	assert.Contains(t, buf.String(), `"data":0`)
}

func slogDiscard() *slog.Logger {
	return logging.NewNop()
}

type pendingBridge struct {
	fakeBridge
	records []string
}

func (p *pendingBridge) PendingRecords() []string {
	return p.records
}

func TestGraph(t *testing.T) {
	model := domain.Model{Elements: []domain.Element{
		{ID: 1, Name: "Pump", Stereotype: "CFT"},
		{ID: 2, Name: "Leak", Stereotype: "FTBasicEvent", ParentID: 1},
	}}

	t.Run("without a source", func(t *testing.T) {
		w := do(t, NewHandler(&fakeBridge{}), "GET", "/graph", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("highlights pending elements", func(t *testing.T) {
		bridge := &pendingBridge{records: []string{
			protocol.SingleRecord(protocol.CmdUpdateElement, protocol.EncodeElement(model.Elements[1])),
		}}
		h := NewHandler(bridge, WithSource(memory.NewModelSource(model)))

		w := do(t, h, "GET", "/graph", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "graph TD")
		assert.Contains(t, body, "class e2 pending;")
		assert.NotContains(t, body, "class e1 pending;")
	})
}
