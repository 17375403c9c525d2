package lease

import "sync"

// Registry hands out one mutex per key. It replaces process-wide static
// lock tables: construct one at startup and pass it to whatever needs
// per-key mutual exclusion. The zero value is ready to use.
type Registry struct {
	locks sync.Map // key -> *sync.Mutex
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Lock acquires the mutex for key and returns its unlock function.
func (r *Registry) Lock(key string) (unlock func()) {
	mu := r.mutex(key)
	mu.Lock()
	return mu.Unlock
}

// TryLock acquires the mutex for key if it is free.
func (r *Registry) TryLock(key string) (unlock func(), ok bool) {
	mu := r.mutex(key)
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}

func (r *Registry) mutex(key string) *sync.Mutex {
	if mu, ok := r.locks.Load(key); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
