// Package mcp exposes a running bridge to agents as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/cftbridge"
	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StatusURI is the resource exposing the bridge status.
const StatusURI = "cftbridge://status"

// Bridge is the part of a coordinator the MCP server drives.
type Bridge interface {
	Status() domain.Status
	Update(ctx context.Context) error
	Analyze(ctx context.Context) error
	OpenAnalysisWindow(ctx context.Context) error
	ResetSync(ctx context.Context) error
}

// Server wraps a Bridge and exposes it as an MCP Server.
type Server struct {
	bridge    Bridge
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(bridge Bridge, opts ...Option) *Server {
	s := &Server{
		bridge:    bridge,
		mcpServer: server.NewMCPServer("cftbridge-mcp", strings.TrimSpace(cftbridge.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: bridge_status
	statusTool := mcp.NewTool("bridge_status",
		mcp.WithDescription("Report the connection state, queued changes and last synchronization time."),
		mcp.WithOutputSchema[domain.Status](),
	)
	s.mcpServer.AddTool(statusTool, mcp.NewStructuredToolHandler(s.handleStatus))

	// TOOL: sync_update
	s.mcpServer.AddTool(mcp.NewTool("sync_update",
		mcp.WithDescription("Send queued model changes to the analysis worker. The first synchronization sends the whole model."),
	), s.handleUpdate)

	// TOOL: run_analysis
	s.mcpServer.AddTool(mcp.NewTool("run_analysis",
		mcp.WithDescription("Synchronize and run the fault-tree analysis, storing the results."),
		mcp.WithBoolean("open_window", mcp.Description("Open the analysis window instead of storing results")),
	), s.handleAnalyze)

	// TOOL: reset_sync
	s.mcpServer.AddTool(mcp.NewTool("reset_sync",
		mcp.WithDescription("Discard queued changes and force the next synchronization to send the whole model."),
		mcp.WithBoolean("update", mcp.Description("Run the full synchronization immediately")),
	), s.handleReset)
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (domain.Status, error) {
	return s.bridge.Status(), nil
}

// result reports err as a tool error, or the resulting status on success.
func (s *Server) result(op string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		s.logger.Warn("MCP "+op+" failed", "err", err)
		msg := fmt.Sprintf("%s failed: %v", op, err)
		if k := domain.KindOf(err); k != domain.KindUnknown {
			msg = fmt.Sprintf("%s failed (%s): %v", op, k, err)
		}
		return mcp.NewToolResultError(msg), nil
	}
	status := s.bridge.Status()
	jsonBytes, _ := json.Marshal(status)
	return mcp.NewToolResultStructured(status, string(jsonBytes)), nil
}

func (s *Server) handleUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.result("update", s.bridge.Update(ctx))
}

func (s *Server) handleAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if request.GetBool("open_window", false) {
		return s.result("open analysis window", s.bridge.OpenAnalysisWindow(ctx))
	}
	if err := s.bridge.Update(ctx); err != nil {
		return s.result("update", err)
	}
	return s.result("analysis", s.bridge.Analyze(ctx))
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.bridge.ResetSync(ctx); err != nil {
		return s.result("reset", err)
	}
	if request.GetBool("update", false) {
		return s.result("update", s.bridge.Update(ctx))
	}
	return s.result("reset", nil)
}

func (s *Server) registerResources() {
	// EXPOSE: cftbridge://status
	s.mcpServer.AddResource(mcp.NewResource(StatusURI, "Bridge Status",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.bridge.Status())
		if err != nil {
			return nil, fmt.Errorf("failed to encode status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      StatusURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
