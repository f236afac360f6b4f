// Package middleware wraps an archive store with transformations applied to
// councils on their way in and out of storage.
package middleware

import "github.com/aretw0/council/pkg/ports"

// Middleware allows wrapping an ArchiveStore to add behavior.
type Middleware func(ports.ArchiveStore) ports.ArchiveStore

// Chain applies mws to store. The first middleware is the outermost one, so it
// sees a council first on Save and last on Load.
func Chain(store ports.ArchiveStore, mws ...Middleware) ports.ArchiveStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
