package backend

import (
	"context"
	"image"
	"log/slog"
	"sort"
	"sync"
)

// Factory constructs a backend. Construction may be expensive (engine or
// model load) and is deferred until first use.
type Factory func() (Backend, error)

// Registry holds the configured backends for a process. It is created once
// at startup and injected into the pipeline; there is no ambient global
// state. Construction of each backend is guarded by a per-entry sync.Once
// so concurrent first use triggers exactly one load.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	name    string
	weight  float64
	factory Factory

	once    sync.Once
	backend Backend
	initErr error
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a backend factory under the given name and weight.
// Registering the same name again replaces the previous entry.
func (r *Registry) Register(name string, weight float64, factory Factory) {
	if weight <= 0 {
		weight = fallbackWeight
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{name: name, weight: weight, factory: factory}
}

// get initializes the entry's backend on first call. Initialization
// failures are recorded and make the backend permanently unavailable;
// they never propagate as request errors.
func (e *entry) get() (Backend, error) {
	e.once.Do(func() {
		b, err := e.factory()
		if err != nil {
			slog.Warn("backend initialization failed", "backend", e.name, "error", err)
			e.initErr = err
			return
		}
		e.backend = b
		slog.Info("backend initialized", "backend", e.name, "weight", e.weight)
	})
	return e.backend, e.initErr
}

// Available returns the initialized, available backends sorted by
// descending weight (name as tie-break, for deterministic iteration).
func (r *Registry) Available() []Backend {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var out []Backend
	for _, e := range entries {
		b, err := e.get()
		if err != nil || b == nil || !b.IsAvailable() {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight() != out[j].Weight() {
			return out[i].Weight() > out[j].Weight()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// AvailableNames returns the names of the available backends in priority
// order.
func (r *Registry) AvailableNames() []string {
	backends := r.Available()
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}

// Select returns the available backends among the requested names, in
// priority order. An empty request selects all available backends.
func (r *Registry) Select(names []string) []Backend {
	available := r.Available()
	if len(names) == 0 {
		return available
	}
	requested := make(map[string]bool, len(names))
	for _, n := range names {
		requested[n] = true
	}
	var out []Backend
	for _, b := range available {
		if requested[b.Name()] {
			out = append(out, b)
		}
	}
	return out
}

// staticBackend wraps a fixed detection function, used in tests and for
// adapting pre-built engines.
type staticBackend struct {
	name      string
	weight    float64
	available bool
	detect    func(ctx context.Context, img image.Image) ([]Detection, error)
}

// NewStatic builds a backend from a detection function.
func NewStatic(name string, weight float64, detect func(ctx context.Context, img image.Image) ([]Detection, error)) Backend {
	return &staticBackend{name: name, weight: weight, available: true, detect: detect}
}

func (s *staticBackend) Name() string      { return s.name }
func (s *staticBackend) Weight() float64   { return s.weight }
func (s *staticBackend) IsAvailable() bool { return s.available }

func (s *staticBackend) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return s.detect(ctx, img)
}
