/*
Package session keeps the registry of open projects.

A Manager opens at most one Coordinator per project. It loads (or creates) the project's
settings, serializes Open and Close of the same project with per-project locks and, when
a DistributedLocker is configured, holds a distributed lock for as long as the project is
open so a second bridge instance cannot drive the same worker data.
*/
package session
