package settlement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/SettleGuard/settleguard/internal/pkg/apperrors"
	"github.com/SettleGuard/settleguard/internal/pkg/logger"
)

// Registry 持有所有已注册的结算 Adapter 以及当前激活的那个
// It is an owned container constructed once at startup and passed down by
// handle; there is no package-level singleton.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	active   string
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own reported name. Name collisions are
// rejected; use Replace for an explicit swap.
func (r *Registry) Register(a Adapter) error {
	return r.register(a, false)
}

// Replace registers an adapter, overwriting any existing one with the same
// name.
func (r *Registry) Replace(a Adapter) error {
	return r.register(a, true)
}

func (r *Registry) register(a Adapter, replace bool) error {
	if a == nil || a.Name() == "" {
		return apperrors.New(apperrors.ErrInvalidAdapter, "adapter has no name", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.adapters[name]; exists && !replace {
		return apperrors.New(apperrors.ErrDuplicateAdapter,
			fmt.Sprintf("adapter %s already registered", name), nil)
	}
	r.adapters[name] = a
	logger.Info("registered settlement adapter", "adapter", name)
	return nil
}

// SetActive switches the active adapter. It does not validate reachability;
// that is deferred to first use.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adapters[name]; !ok {
		return apperrors.New(apperrors.ErrAdapterNotFound,
			fmt.Sprintf("adapter %s not found", name), nil)
	}
	r.active = name
	logger.Info("switched active settlement adapter", "adapter", name)
	return nil
}

// GetActive returns the currently active adapter.
func (r *Registry) GetActive() (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[r.active]
	if !ok {
		return nil, apperrors.New(apperrors.ErrAdapterNotFound, "no active adapter configured", nil)
	}
	return a, nil
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, apperrors.New(apperrors.ErrAdapterNotFound,
			fmt.Sprintf("adapter %s not found", name), nil)
	}
	return a, nil
}

// List returns registered adapter names, sorted for stable output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveName returns the active adapter's name, or "" when none is set.
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}
