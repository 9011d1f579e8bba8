/*
Package cftbridge keeps an external fault-tree analysis worker in sync with a model being
edited in a host modeling tool.

The host reports element and connector edits; the bridge queues them without duplicates,
frames them into size-bounded text messages and streams them to the worker over a local
TCP connection, one acknowledged message at a time. On first use, or after a reset, the
whole model is sent instead of the incremental changes.

# Architecture

  - pkg/queue: insertion-ordered, duplicate-free change queue.
  - pkg/protocol: message framing and entity encoding.
  - pkg/channel: the worker connection (listen, launch, handshake, send, acknowledge).
  - pkg/executor: single-worker FIFO executor; every exchange with the worker runs there.
  - pkg/coordinator: the per-project synchronization state machine.
  - pkg/session: one coordinator per project, optionally guarded by a distributed lock.

Collaborators are ports (pkg/ports): settings storage, worker launching, the model source
and error reporting. Adapters live under pkg/adapters and internal/adapters.

# Usage

	bridge, err := cftbridge.New("./workspace")
	if err != nil {
		log.Fatal(err)
	}
	defer bridge.Shutdown(context.Background())

	c, err := bridge.Open(ctx, "{6C2D8E4A-project}")
	if err != nil {
		log.Fatal(err)
	}

	// Editor events
	_ = c.AddElement(ctx, domain.Element{ID: 7, Name: "Pump", Stereotype: "FTBasicEvent"})
	_ = c.Update(ctx)
*/
package cftbridge
