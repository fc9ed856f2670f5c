package store

import (
	"sync"

	"github.com/roach88/reactstore/value"
)

// Root holds the application's single store. Create it at the composition
// root and pass it to the components that need it; there is no package-level
// instance.
type Root struct {
	mu    sync.Mutex
	store *Store
}

// Create builds the store on first call. Later calls ignore their arguments
// and return the existing store.
func (r *Root) Create(initial value.Object, opts ...Option) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store == nil {
		r.store = New(initial, opts...)
	}
	return r.store
}

// Get returns the store, or nil before Create.
func (r *Root) Get() *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store
}
