package breaker

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Dependency names used across the services.
const (
	NameClassifier    = "classifier"
	NameNotifications = "notifications"
)

// Registry indexes breakers by dependency name.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	observer Observer
	clock    func() time.Time
}

// NewRegistry returns an empty registry. The observer and clock are applied
// to every breaker created through Register unless the options set their own.
func NewRegistry(observer Observer, clock func() time.Time) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		observer: observer,
		clock:    clock,
	}
}

// Register creates and stores a breaker. Names must be unique.
func (r *Registry) Register(opts Options) (*Breaker, error) {
	if opts.Observer == nil {
		opts.Observer = r.observer
	}
	if opts.Clock == nil {
		opts.Clock = r.clock
	}
	b, err := New(opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.breakers[b.Name()]; exists {
		return nil, fmt.Errorf("breaker %s already registered", b.Name())
	}
	r.breakers[b.Name()] = b
	return b, nil
}

func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Snapshots returns the state of every registered breaker ordered by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		if b, ok := r.Get(name); ok {
			out = append(out, b.State())
		}
	}
	return out
}
