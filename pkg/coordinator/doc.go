/*
Package coordinator keeps a remote analysis worker in step with the host model.

A Coordinator owns one project's settings, its queue of pending change records and its
Channel to the worker. Every operation, from a single element edit to shutdown, runs as a
task on a private executor.Executor, so exactly one operation touches the socket at any
time and operations run in the order they were requested.

# Lifecycle

	Disconnected -> Connecting -> Ready -> Flushing -> Ready ... -> Closing -> Disconnected

A connection failure, a lost link or a missing acknowledgment is terminal for the session:
the coordinator falls back to Disconnected, pending records stay queued and the last
update marker is left alone. Calling Open again starts a fresh session that catches up on
its first flush. After Close every operation fails with domain.ErrSessionClosed.
*/
package coordinator
