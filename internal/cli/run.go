package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/cftbridge"
	"github.com/aretw0/cftbridge/internal/adapters/file"
	"github.com/aretw0/cftbridge/internal/presentation/tui"
	"github.com/aretw0/cftbridge/internal/workerstub"
	httpAdapter "github.com/aretw0/cftbridge/pkg/adapters/http"
	"github.com/aretw0/cftbridge/pkg/adapters/mcp"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MCP transports selectable with --mcp.
const (
	MCPStdio = "stdio"
	MCPSSE   = "sse"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	Options
	Project string
	// Update flushes once right after connecting.
	Update bool
	// Watch replays edits of the workspace model file as editor events.
	Watch bool
	// StubWorker serves the project with the in-process stub worker.
	StubWorker bool

	HTTPAddr       string
	MCP            string
	MCPPort        int
	StatusInterval time.Duration
	Quiet          bool

	Stdout io.Writer
}

// Execute connects the project and serves it until interrupted.
func Execute(ctx context.Context, opts RunOptions) error {
	if opts.Project == "" {
		return errors.New("project id is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.MCP == MCPStdio {
		// Stdout belongs to the protocol.
		opts.Quiet = true
		opts.Stdout = io.Discard
	}
	if opts.MCP != "" && opts.MCP != MCPStdio && opts.MCP != MCPSSE {
		return fmt.Errorf("unknown MCP transport %q (want %s or %s)", opts.MCP, MCPStdio, MCPSSE)
	}

	logger := NewLogger(opts.Options)
	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	streams := httpAdapter.NewStreamManager(logger)

	extra := []cftbridge.Option{
		cftbridge.WithMetrics(reg),
		cftbridge.WithLifecycleHooks(streams.Hooks()),
	}
	var stub *workerstub.Worker
	if opts.StubWorker {
		stub = workerstub.New(workerstub.WithLogger(logger))
		extra = append(extra, cftbridge.WithLauncher(stub))
	}

	bridge, closeStore, err := NewBridge(opts.Options, logger, extra...)
	if err != nil {
		return err
	}
	defer closeStore()

	if !opts.Quiet {
		tui.PrintBanner(opts.Stdout, cftbridge.Version)
	}

	c, err := bridge.Open(sigCtx, opts.Project)
	if err != nil {
		return fmt.Errorf("failed to open project %s: %w", opts.Project, err)
	}
	printSystemMessage(opts.Stdout, "Project '%s' connected (session %s).", opts.Project, c.Status().SessionID)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bridge.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
		if stub != nil {
			_ = stub.Stop(shutdownCtx)
		}
		printSystemMessage(opts.Stdout, "Project '%s' disconnected.", opts.Project)
	}()

	if opts.Update {
		if err := c.Update(sigCtx); err != nil {
			return fmt.Errorf("initial update failed: %w", err)
		}
		printSystemMessage(opts.Stdout, "Synchronized (last update %s).", c.Settings().LastUpdate)
	}

	model, _ := bridge.Model().(ModelWriter)
	errCh := make(chan error, 3)

	if opts.HTTPAddr != "" {
		handlerOpts := []httpAdapter.Option{
			httpAdapter.WithGatherer(reg),
			httpAdapter.WithSource(bridge.Model()),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithLogger(logger),
		}
		if model != nil {
			handlerOpts = append(handlerOpts, httpAdapter.WithModel(model))
		}
		srv := &http.Server{
			Addr:              opts.HTTPAddr,
			Handler:           httpAdapter.NewHandler(c, handlerOpts...),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			printSystemMessage(opts.Stdout, "Control API on %s", opts.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
			}
		}()
	}

	switch opts.MCP {
	case MCPStdio:
		go func() {
			errCh <- mcp.NewServer(c, mcp.WithLogger(logger)).ServeStdio()
		}()
	case MCPSSE:
		go func() {
			if err := mcp.NewServer(c, mcp.WithLogger(logger)).ServeSSE(sigCtx, opts.MCPPort); err != nil {
				errCh <- fmt.Errorf("mcp server: %w", err)
			}
		}()
	}

	if opts.Watch {
		path := filepath.Join(bridge.Dir(), cftbridge.ModelFile)
		initial, err := bridge.Model().Snapshot(sigCtx)
		if err != nil {
			return err
		}
		watcher := file.NewModelWatcher(path, file.WithWatchLogger(logger))
		go func() {
			err := watcher.Watch(sigCtx, initial, func(_ domain.Model, d *domain.ModelDiff) {
				printSystemMessage(opts.Stdout, "Model changed (%d entities).", d.Len())
				if err := ApplyDiff(sigCtx, c, model, d); err != nil {
					logger.Error("applying model changes failed", "err", err)
				}
			})
			if err != nil {
				errCh <- err
			}
		}()
	}

	var tick <-chan time.Time
	if opts.StatusInterval > 0 && !opts.Quiet {
		ticker := time.NewTicker(opts.StatusInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-sigCtx.Done():
			if sig := sigCtx.Signal(); sig != nil {
				logger.Info("stopping", "signal", sig)
			}
			return nil
		case err := <-errCh:
			if err == nil {
				return nil
			}
			return err
		case <-tick:
			tui.PrintStatusLine(opts.Stdout, c.Status())
		}
	}
}
