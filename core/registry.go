package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handle identifies a created MiningCore instance for Destroy.
type Handle struct {
	name string
	core MiningCore
}

// Name returns the core name this handle was created from.
func (h Handle) Name() string { return h.name }

// Core returns the underlying MiningCore.
func (h Handle) Core() MiningCore { return h.core }

// Registry maps core names to CoreFactory constructors. It is
// process-global but write-once at startup: Register happens during
// process init, while Create and Destroy happen at runtime but never
// mutate the factory map. It does not implicitly start cores.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]CoreFactory
	log       logrus.FieldLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		factories: make(map[string]CoreFactory),
		log:       log,
	}
}

// Register adds a factory under name. Idempotent registration of the
// exact same factory value is not special-cased: a second Register
// call with the same name always fails.
func (r *Registry) Register(name string, factory CoreFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return &RegistryError{Kind: RegistryErrDuplicateName, Name: name}
	}

	r.factories[name] = factory
	r.log.WithField("core", name).Info("registered mining core factory")
	return nil
}

// List returns the CoreInfo for every registered factory.
func (r *Registry) List() []CoreInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]CoreInfo, 0, len(r.factories))
	for _, f := range r.factories {
		infos = append(infos, f.Info())
	}
	return infos
}

// Create validates cfg against the named factory and asks it to build
// and initialize a concrete MiningCore.
func (r *Registry) Create(ctx context.Context, name string, cfg CoreConfig) (Handle, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return Handle{}, &RegistryError{Kind: RegistryErrUnknownName, Name: name}
	}

	if err := factory.ValidateConfig(cfg); err != nil {
		return Handle{}, &RegistryError{Kind: RegistryErrValidation, Name: name, Field: cfg.Name, Err: err}
	}

	c, err := factory.Create(cfg)
	if err != nil {
		return Handle{}, &RegistryError{Kind: RegistryErrInitialization, Name: name, Err: err}
	}

	if err := c.Initialize(ctx, cfg); err != nil {
		return Handle{}, &RegistryError{Kind: RegistryErrInitialization, Name: name, Err: err}
	}

	r.log.WithField("core", name).Info("created mining core")
	return Handle{name: name, core: c}, nil
}

// Destroy stops and drops a core created by Create.
func (r *Registry) Destroy(ctx context.Context, h Handle) error {
	if h.core == nil {
		return fmt.Errorf("core: destroy called with empty handle")
	}
	if err := h.core.Stop(ctx); err != nil {
		return &CoreError{CoreName: h.name, Op: "stop", Err: err}
	}
	r.log.WithField("core", h.name).Info("destroyed mining core")
	return nil
}
