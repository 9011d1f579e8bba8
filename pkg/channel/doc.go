/*
Package channel owns the TCP link to the analysis worker.

A Channel listens on an ephemeral port, asks a ports.WorkerLauncher to start the worker
with that endpoint, accepts the worker's connection and performs the data directory
handshake. After that it carries one message at a time: every message except "exit" must
be acknowledged before the next is written.

A Channel is not safe for concurrent Send/AwaitAck calls. Callers serialize access,
usually through an executor.Executor.
*/
package channel
