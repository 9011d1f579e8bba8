// Package http exposes a running bridge over a small JSON control API.
//
// It stands in for the host integration layer: element and connector edits posted here
// are applied to the model and queued for the worker exactly as editor events would be.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/cftbridge"
	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/internal/presentation/graph"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bridge is the part of a coordinator the control API drives.
type Bridge interface {
	Status() domain.Status
	Update(ctx context.Context) error
	Analyze(ctx context.Context) error
	OpenAnalysisWindow(ctx context.Context) error
	ResetSync(ctx context.Context) error
	SetDeveloperMode(ctx context.Context, enabled bool) error
	ChangeDataDir(ctx context.Context, dir string) error
	AddElement(ctx context.Context, e domain.Element, connectors ...domain.Connector) error
	UpdateElement(ctx context.Context, e domain.Element) error
	DeleteElement(ctx context.Context, e domain.Element) error
	AddConnector(ctx context.Context, c domain.Connector) error
	UpdateConnector(ctx context.Context, c domain.Connector) error
	DeleteConnector(ctx context.Context, c domain.Connector) error
}

// ModelWriter receives model edits so a later full resynchronization sees them.
type ModelWriter interface {
	PutElement(e domain.Element)
	RemoveElement(id int)
	PutConnector(c domain.Connector)
	RemoveConnector(id int)
}

// pendingLister is implemented by bridges that expose their unsent records.
type pendingLister interface {
	PendingRecords() []string
}

// Server serves the control API for one bridge.
type Server struct {
	Bridge   Bridge
	Model    ModelWriter
	Source   ports.ModelSource
	Streams  *StreamManager
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithModel applies element and connector edits to model before queueing them.
func WithModel(model ModelWriter) Option {
	return func(s *Server) {
		s.Model = model
	}
}

// WithSource serves source as a Mermaid diagram on /graph.
func WithSource(source ports.ModelSource) Option {
	return func(s *Server) {
		s.Source = source
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares an existing StreamManager, typically one whose Hooks are installed
// on the bridge.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server for bridge.
func NewServer(bridge Bridge, opts ...Option) *Server {
	s := &Server{
		Bridge: bridge,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	return s
}

// NewHandler creates a new HTTP handler for the bridge.
func NewHandler(bridge Bridge, opts ...Option) http.Handler {
	return NewServer(bridge, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/status", s.GetStatus)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/graph", s.GetGraph)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Post("/update", s.command("update", s.Bridge.Update))
	r.Post("/analyze", s.command("analyze", s.Bridge.Analyze))
	r.Post("/analysis-window", s.command("analysis window", s.Bridge.OpenAnalysisWindow))
	r.Post("/reset", s.command("reset", s.Bridge.ResetSync))
	r.Post("/developer-mode", s.SetDeveloperMode)
	r.Put("/data-dir", s.ChangeDataDir)

	r.Route("/elements", func(r chi.Router) {
		r.Post("/", s.AddElement)
		r.Put("/", s.UpdateElement)
		r.Delete("/", s.DeleteElement)
	})
	r.Route("/connectors", func(r chi.Router) {
		r.Post("/", s.AddConnector)
		r.Put("/", s.UpdateConnector)
		r.Delete("/", s.DeleteConnector)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusCode maps bridge errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrProjectNotOpen), errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMessageTooLarge):
		return http.StatusUnprocessableEntity
	case domain.IsTerminal(err):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusCode(err)
	resp := errorResponse{Error: err.Error()}
	if k := domain.KindOf(err); k != domain.KindUnknown {
		resp.Kind = k.String()
	}
	if code >= 500 {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Warn(op+" rejected", "err", err)
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn(op+": Invalid request body", "err", err)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// respond writes the bridge status after a successful command.
func (s *Server) respond(w http.ResponseWriter, op string, err error) {
	if err != nil {
		s.fail(w, op, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Bridge.Status())
}

func (s *Server) command(op string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, op, fn(r.Context()))
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "cftbridge-http",
		"version": strings.TrimSpace(cftbridge.Version),
	})
}

// GetGraph handles the GET /graph request. Elements with unsent records are highlighted.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	if s.Source == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no model source configured"})
		return
	}
	model, err := s.Source.Snapshot(r.Context())
	if err != nil {
		s.fail(w, "graph", err)
		return
	}
	var overlay *graph.Overlay
	if p, ok := s.Bridge.(pendingLister); ok {
		overlay = &graph.Overlay{Pending: graph.PendingElements(p.PendingRecords())}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, graph.GenerateMermaid(model, overlay))
}

// GetStatus handles the GET /status request.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Bridge.Status())
}

type developerModeRequest struct {
	Enabled bool `json:"enabled"`
}

// SetDeveloperMode handles the POST /developer-mode request.
func (s *Server) SetDeveloperMode(w http.ResponseWriter, r *http.Request) {
	var body developerModeRequest
	if !s.decode(w, r, "SetDeveloperMode", &body) {
		return
	}
	s.respond(w, "developer mode", s.Bridge.SetDeveloperMode(r.Context(), body.Enabled))
}

type dataDirRequest struct {
	Path string `json:"path"`
}

// ChangeDataDir handles the PUT /data-dir request.
func (s *Server) ChangeDataDir(w http.ResponseWriter, r *http.Request) {
	var body dataDirRequest
	if !s.decode(w, r, "ChangeDataDir", &body) {
		return
	}
	if strings.TrimSpace(body.Path) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "path is required"})
		return
	}
	s.respond(w, "change data dir", s.Bridge.ChangeDataDir(r.Context(), body.Path))
}

type elementRequest struct {
	Element    domain.Element     `json:"element"`
	Connectors []domain.Connector `json:"connectors,omitempty"`
}

// AddElement handles the POST /elements request.
func (s *Server) AddElement(w http.ResponseWriter, r *http.Request) {
	var body elementRequest
	if !s.decode(w, r, "AddElement", &body) {
		return
	}
	if s.Model != nil {
		s.Model.PutElement(body.Element)
		for _, c := range body.Connectors {
			s.Model.PutConnector(c)
		}
	}
	s.respond(w, "add element", s.Bridge.AddElement(r.Context(), body.Element, body.Connectors...))
}

// UpdateElement handles the PUT /elements request.
func (s *Server) UpdateElement(w http.ResponseWriter, r *http.Request) {
	var body elementRequest
	if !s.decode(w, r, "UpdateElement", &body) {
		return
	}
	if s.Model != nil {
		s.Model.PutElement(body.Element)
	}
	s.respond(w, "update element", s.Bridge.UpdateElement(r.Context(), body.Element))
}

// DeleteElement handles the DELETE /elements request.
func (s *Server) DeleteElement(w http.ResponseWriter, r *http.Request) {
	var body elementRequest
	if !s.decode(w, r, "DeleteElement", &body) {
		return
	}
	if s.Model != nil {
		s.Model.RemoveElement(body.Element.ID)
	}
	s.respond(w, "delete element", s.Bridge.DeleteElement(r.Context(), body.Element))
}

// AddConnector handles the POST /connectors request.
func (s *Server) AddConnector(w http.ResponseWriter, r *http.Request) {
	var body domain.Connector
	if !s.decode(w, r, "AddConnector", &body) {
		return
	}
	if s.Model != nil {
		s.Model.PutConnector(body)
	}
	s.respond(w, "add connector", s.Bridge.AddConnector(r.Context(), body))
}

// UpdateConnector handles the PUT /connectors request.
func (s *Server) UpdateConnector(w http.ResponseWriter, r *http.Request) {
	var body domain.Connector
	if !s.decode(w, r, "UpdateConnector", &body) {
		return
	}
	if s.Model != nil {
		s.Model.PutConnector(body)
	}
	s.respond(w, "update connector", s.Bridge.UpdateConnector(r.Context(), body))
}

// DeleteConnector handles the DELETE /connectors request.
func (s *Server) DeleteConnector(w http.ResponseWriter, r *http.Request) {
	var body domain.Connector
	if !s.decode(w, r, "DeleteConnector", &body) {
		return
	}
	if s.Model != nil {
		s.Model.RemoveConnector(body.ID)
	}
	s.respond(w, "delete connector", s.Bridge.DeleteConnector(r.Context(), body))
}

// SubscribeEvents handles the GET /events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := s.Streams.Subscribe()
	defer unsubscribe()

	status, _ := json.Marshal(s.Bridge.Status())
	fmt.Fprintf(w, "event: ping\ndata: %s\n\n", status)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
