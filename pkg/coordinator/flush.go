package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/protocol"
)

// Update flushes pending records to the worker. A project that was never synchronized is
// sent in full first.
func (c *Coordinator) Update(ctx context.Context) error {
	return c.run(ctx, "update", domain.CategoryUpdate, c.flush)
}

// flush runs inside a task. Records leave the queue only once the message carrying them
// was acknowledged, so a failed flush leaves the rest queued and the marker untouched.
// A record too large to frame is reported and dropped on its own, the records behind it
// are still delivered, and the flush returns the MessageTooLarge error once it completes.
// An empty flush sends nothing and schedules no analysis.
func (c *Coordinator) flush(ctx context.Context) error {
	if err := c.requireSession("update"); err != nil {
		return err
	}

	start := time.Now()
	full := c.settings.NeverSynced()
	ev := &domain.FlushEvent{ProjectID: c.settings.ProjectID, FullResync: full}
	var dropped []error

	c.setState(ctx, domain.StateFlushing)
	err := c.doFlush(ctx, ev, &dropped)
	if c.channel != nil {
		c.setState(ctx, domain.StateReady)
	}

	ev.Duration = time.Since(start)
	ev.Err = errors.Join(append(dropped, err)...)
	if c.hooks.OnFlush != nil {
		c.hooks.OnFlush(ctx, ev)
	}
	c.notifyPending(ctx)
	if err != nil {
		return ev.Err
	}

	c.updateSettings(func(s *domain.Settings) { s.MarkUpdated(c.now()) })
	c.persist(context.WithoutCancel(ctx))
	c.logger.Info("flush complete", "full", full, "count", ev.Records, "messages", ev.Messages, "dropped", len(dropped))

	if ev.Messages > 0 && c.settings.ContinuousAnalysis {
		c.exec.Submit(context.WithoutCancel(ctx), "analyze", func(ctx context.Context) error {
			if c.isClosed() {
				return nil
			}
			err := c.analyze(ctx)
			if err != nil {
				c.report(ctx, domain.CategoryUpdate, err)
			}
			return err
		})
	}
	return errors.Join(dropped...)
}

func (c *Coordinator) doFlush(ctx context.Context, ev *domain.FlushEvent, dropped *[]error) error {
	if ev.FullResync {
		if err := c.fullResync(ctx, ev, dropped); err != nil {
			return err
		}
	}
	return c.drain(ctx, ev, dropped)
}

// fullResync sends the whole tracked model. Whatever was queued before it started is
// subsumed and dropped once the worker acknowledged the end of the full update.
func (c *Coordinator) fullResync(ctx context.Context, ev *domain.FlushEvent, dropped *[]error) error {
	if c.source == nil {
		return fmt.Errorf("full resync: no model source configured")
	}
	model, err := c.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("full resync: snapshot model: %w", err)
	}
	subsumed := c.queue.Len()

	elements, connectors := protocol.FullResyncRecords(model)
	c.logger.Info("full resync", "elements", len(elements), "connectors", len(connectors))

	if err := c.send(ctx, ev, protocol.Start(protocol.CmdStartFullUpdate), 0); err != nil {
		return err
	}
	if err := c.sendAll(ctx, ev, protocol.CmdAddElements, elements, dropped); err != nil {
		return err
	}
	if err := c.sendAll(ctx, ev, protocol.CmdAddConnectors, connectors, dropped); err != nil {
		return err
	}
	if err := c.send(ctx, ev, protocol.Start(protocol.CmdEndFullUpdate), 0); err != nil {
		return err
	}
	c.queue.Drop(subsumed)
	c.notifyPending(ctx)
	return nil
}

func (c *Coordinator) sendAll(ctx context.Context, ev *domain.FlushEvent, cmd protocol.Command, records []string, dropped *[]error) error {
	for len(records) > 0 {
		b, err := c.codec.Batch(cmd, records, false)
		if errors.Is(err, domain.ErrMessageTooLarge) {
			*dropped = append(*dropped, c.dropOversized(cmd, records[0], err))
			records = records[1:]
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if err := c.send(ctx, ev, b.Message, b.Count); err != nil {
			return err
		}
		records = records[b.Count:]
	}
	return nil
}

// drain sends the queue in counted update batches.
func (c *Coordinator) drain(ctx context.Context, ev *domain.FlushEvent, dropped *[]error) error {
	for !c.queue.IsEmpty() {
		records := c.queue.Snapshot()
		b, err := c.codec.Batch(protocol.CmdUpdate, records, true)
		if errors.Is(err, domain.ErrMessageTooLarge) {
			*dropped = append(*dropped, c.dropOversized(protocol.CmdUpdate, records[0], err))
			c.queue.Drop(1)
			c.notifyPending(ctx)
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrEmpty) {
				return nil
			}
			return fmt.Errorf("update: %w", err)
		}
		if err := c.send(ctx, ev, b.Message, b.Count); err != nil {
			return err
		}
		c.queue.Drop(b.Count)
		c.notifyPending(ctx)
	}
	return nil
}

// dropOversized names the record that could not be framed.
func (c *Coordinator) dropOversized(cmd protocol.Command, rec string, err error) error {
	r, _ := protocol.DecodeRecord(rec)
	c.logger.Warn("dropping oversized record", "command", cmd, "id", r.ID(), "bytes", len(rec))
	return fmt.Errorf("%s: drop record %s: %w", cmd, r.ID(), err)
}

func (c *Coordinator) send(ctx context.Context, ev *domain.FlushEvent, msg string, records int) error {
	if err := c.exchange(ctx, msg); err != nil {
		return err
	}
	ev.Messages++
	ev.Records += records
	return nil
}
