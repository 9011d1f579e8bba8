/*
Package observability provides tools for monitoring the synchronization bridge.

It includes Prometheus metrics fed by lifecycle hooks, structured logging hooks for
auditing messages and acknowledgments, and helpers to combine several hook sets into one.
*/
package observability
