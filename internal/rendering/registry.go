package rendering

import (
	"fmt"
	"sort"
	"sync"

	"github.com/estatio/docrender/internal/document"
)

// Registry stores strategies by id. Strategies are immutable once
// registered, so a looked-up strategy can be used without holding the lock.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]*Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]*Strategy)}
}

// Register adds a strategy. Duplicate ids return an error.
func (r *Registry) Register(s *Strategy) error {
	if s == nil {
		return fmt.Errorf("rendering: strategy is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[s.ID]; exists {
		return fmt.Errorf("rendering: strategy %q already registered", s.ID)
	}
	r.strategies[s.ID] = s
	return nil
}

// RegisterRenderer builds a strategy with NewStrategy and registers it.
func (r *Registry) RegisterRenderer(id, name string, renderer Renderer, flags Flags) error {
	s, err := NewStrategy(id, name, renderer, flags)
	if err != nil {
		return err
	}
	return r.Register(s)
}

// MustRegisterRenderer panics on registration failure. Useful for
// init-time wiring.
func (r *Registry) MustRegisterRenderer(id, name string, renderer Renderer, flags Flags) {
	if err := r.RegisterRenderer(id, name, renderer, flags); err != nil {
		panic(err)
	}
}

// Get retrieves a strategy by id.
func (r *Registry) Get(id string) (*Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", document.ErrUnknownStrategy, id)
	}
	return s, nil
}

// SupportedPreviewKinds returns the preview kinds strategy id declares.
func (r *Registry) SupportedPreviewKinds(id string) ([]PreviewKind, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return s.PreviewKinds(), nil
}

// List returns every registered strategy sorted by id.
func (r *Registry) List() []*Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[id]
	return ok
}
