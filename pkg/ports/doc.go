/*
Package ports defines the driven ports (interfaces) of the synchronization core.

These interfaces decouple the coordinator from the host modeling tool, the settings
backend and the way the analysis worker process is started.

# Key Interfaces

  - SettingsStore: Persists per-project synchronization settings (file, memory, Redis).
  - WorkerLauncher: Starts the external analysis worker and points it at a listening endpoint.
  - ModelSource: Produces a snapshot of the host model for full resynchronization.
  - ErrorReporter: Surfaces structured failures to the user or the host.
  - DistributedLocker: Guards a project against being opened by two bridge instances.
*/
package ports
