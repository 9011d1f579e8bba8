/*
Package domain contains the core domain models of the cftbridge synchronization engine.

It defines the modeling-tool entities that are mirrored into the analysis worker, the
per-project synchronization settings, the coordinator states and the error taxonomy shared
by every other package. This package is kept pure and free of I/O, following Hexagonal
Architecture principles.

# Key Entities

  - Element: A fault tree or component model element (ports, gates, failure modes).
  - Connector: A relation between two elements (traces, failure propagation).
  - Settings: Per-project synchronization configuration and the "last update" marker.
  - Error: A kinded error (connection timeout, connection lost, message too large, ...).
*/
package domain
