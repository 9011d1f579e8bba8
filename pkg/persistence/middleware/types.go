// Package middleware decorates settings stores.
package middleware

import "github.com/aretw0/cftbridge/pkg/ports"

// Middleware allows wrapping a SettingsStore to add behavior.
type Middleware func(ports.SettingsStore) ports.SettingsStore

// Chain wraps store with mws. The first middleware is the outermost.
func Chain(store ports.SettingsStore, mws ...Middleware) ports.SettingsStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
