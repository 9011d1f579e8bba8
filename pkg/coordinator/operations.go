package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/protocol"
)

// AddElement queues an added element, its outgoing tracked connectors and its structural
// relations. Untracked elements are ignored.
func (c *Coordinator) AddElement(ctx context.Context, e domain.Element, connectors ...domain.Connector) error {
	if !domain.IsTrackedElement(e.Stereotype) {
		return nil
	}
	records := []string{protocol.SingleRecord(protocol.CmdAddElement, protocol.EncodeElement(e))}
	for _, conn := range connectors {
		if domain.IsTrackedConnector(conn.Stereotype) && conn.ClientID == e.ID {
			records = append(records, protocol.SingleRecord(protocol.CmdAddConnector, protocol.EncodeConnector(conn)))
		}
	}
	for _, rel := range protocol.RelationRecords(e) {
		records = append(records, protocol.SingleRecord(protocol.CmdAddConnector, rel))
	}
	return c.enqueue(ctx, "add element", records)
}

// DeleteElement queues a deleted element.
func (c *Coordinator) DeleteElement(ctx context.Context, e domain.Element) error {
	return c.enqueueElement(ctx, protocol.CmdDeleteElement, e)
}

// UpdateElement queues a modified element.
func (c *Coordinator) UpdateElement(ctx context.Context, e domain.Element) error {
	return c.enqueueElement(ctx, protocol.CmdUpdateElement, e)
}

// AddConnector queues an added connector.
func (c *Coordinator) AddConnector(ctx context.Context, conn domain.Connector) error {
	return c.enqueueConnector(ctx, protocol.CmdAddConnector, conn)
}

// DeleteConnector queues a deleted connector.
func (c *Coordinator) DeleteConnector(ctx context.Context, conn domain.Connector) error {
	return c.enqueueConnector(ctx, protocol.CmdDeleteConnector, conn)
}

// UpdateConnector queues a modified connector.
func (c *Coordinator) UpdateConnector(ctx context.Context, conn domain.Connector) error {
	return c.enqueueConnector(ctx, protocol.CmdUpdateConnector, conn)
}

func (c *Coordinator) enqueueElement(ctx context.Context, cmd protocol.Command, e domain.Element) error {
	if !domain.IsTrackedElement(e.Stereotype) {
		return nil
	}
	return c.enqueue(ctx, string(cmd), []string{protocol.SingleRecord(cmd, protocol.EncodeElement(e))})
}

func (c *Coordinator) enqueueConnector(ctx context.Context, cmd protocol.Command, conn domain.Connector) error {
	if !domain.IsTrackedConnector(conn.Stereotype) {
		return nil
	}
	return c.enqueue(ctx, string(cmd), []string{protocol.SingleRecord(cmd, protocol.EncodeConnector(conn))})
}

// enqueue adds records and flushes when continuous update is on. Records are kept even
// when the session is down, so a later session catches up on them.
func (c *Coordinator) enqueue(ctx context.Context, name string, records []string) error {
	return c.run(ctx, name, domain.CategoryUpdate, func(ctx context.Context) error {
		if err := c.checkOpen(name); err != nil {
			return err
		}
		added := 0
		for _, r := range records {
			if c.queue.Enqueue(r) {
				added++
			}
		}
		c.logger.Debug("records queued", "command", name, "count", added, "pending", c.queue.Len())
		c.notifyPending(ctx)

		if !c.settings.ContinuousUpdate {
			return nil
		}
		return c.flush(ctx)
	})
}

// Analyze asks the worker to run the analysis and store its results.
func (c *Coordinator) Analyze(ctx context.Context) error {
	return c.run(ctx, "analyze", domain.CategoryUpdate, c.analyze)
}

func (c *Coordinator) analyze(ctx context.Context) error {
	if err := c.requireSession("analyze"); err != nil {
		return err
	}
	return c.exchange(ctx, protocol.Start(protocol.CmdAnalyze))
}

// OpenAnalysisWindow flushes and asks the worker to show its analysis window.
func (c *Coordinator) OpenAnalysisWindow(ctx context.Context) error {
	return c.run(ctx, "open analysis window", domain.CategoryUpdate, func(ctx context.Context) error {
		if err := c.flush(ctx); err != nil {
			return err
		}
		return c.exchange(ctx, protocol.Start(protocol.CmdOpenAnalysis))
	})
}

// SetDeveloperMode toggles the worker's developer mode.
func (c *Coordinator) SetDeveloperMode(ctx context.Context, enabled bool) error {
	return c.run(ctx, "set developer mode", domain.CategoryConnection, func(ctx context.Context) error {
		if err := c.requireSession("set developer mode"); err != nil {
			return err
		}
		arg := "False"
		if enabled {
			arg = "True"
		}
		return c.exchange(ctx, protocol.WithArgument(protocol.CmdDeveloperMode, arg))
	})
}

// ChangeDataDir moves the worker's data directory. Pending records are flushed, the worker
// releases the current directory, its content is copied to dir and the worker is pointed
// at dir. If the copy fails the worker is pointed back at the old directory.
func (c *Coordinator) ChangeDataDir(ctx context.Context, dir string) error {
	return c.run(ctx, "change data dir", domain.CategorySettings, func(ctx context.Context) error {
		if err := c.flush(ctx); err != nil {
			return err
		}
		old := c.settings.DataDir
		if old == dir {
			return nil
		}

		if err := c.exchange(ctx, protocol.Start(protocol.CmdChangeDataDir)); err != nil {
			return err
		}

		if err := copyDir(old, dir); err != nil {
			copyErr := fmt.Errorf("copy %s to %s: %w", old, dir, err)
			if rerr := c.exchange(ctx, protocol.WithArgument(protocol.CmdStartDataDir, protocol.DataDirArgument(old))); rerr != nil {
				return errors.Join(copyErr, rerr)
			}
			return copyErr
		}

		c.updateSettings(func(s *domain.Settings) { s.DataDir = dir })
		c.persist(ctx)
		c.logger.Info("data directory changed", "from", old, "to", dir)

		return c.exchange(ctx, protocol.WithArgument(protocol.CmdStartDataDir, protocol.DataDirArgument(dir)))
	})
}

// copyDir copies src into dst. A missing src leaves an empty dst.
func copyDir(src, dst string) error {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dst, 0o755)
	}
	return os.CopyFS(dst, os.DirFS(src))
}

// ResetSync forgets the last update so the next flush is a full resynchronization.
func (c *Coordinator) ResetSync(ctx context.Context) error {
	return c.run(ctx, "reset sync", domain.CategorySettings, func(ctx context.Context) error {
		if err := c.checkOpen("reset sync"); err != nil {
			return err
		}
		c.updateSettings(func(s *domain.Settings) { s.ResetUpdate() })
		c.persist(ctx)
		return nil
	})
}

// SetContinuousUpdate controls whether every queued change is flushed immediately.
func (c *Coordinator) SetContinuousUpdate(ctx context.Context, enabled bool) error {
	return c.configure(ctx, func(s *domain.Settings) { s.ContinuousUpdate = enabled })
}

// SetContinuousAnalysis controls whether every flush is followed by an analysis.
func (c *Coordinator) SetContinuousAnalysis(ctx context.Context, enabled bool) error {
	return c.configure(ctx, func(s *domain.Settings) { s.ContinuousAnalysis = enabled })
}

func (c *Coordinator) configure(ctx context.Context, fn func(*domain.Settings)) error {
	return c.run(ctx, "configure", domain.CategorySettings, func(ctx context.Context) error {
		if err := c.checkOpen("configure"); err != nil {
			return err
		}
		c.updateSettings(fn)
		c.persist(ctx)
		return nil
	})
}
