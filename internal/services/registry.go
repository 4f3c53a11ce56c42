// Package services implements the Minerva data layer: conversation and
// project repositories over the local store, concept extraction, the sync
// bridge, and the backend boundary. Services are constructed with their
// dependencies, registered, and initialized at startup.
package services

import (
	"fmt"
	"sync"

	"minerva/pkg/minervatypes"
)

// Registry manages service registration and lifecycle for Minerva services.
type Registry struct {
	mu       sync.RWMutex
	services map[string]minervatypes.Service
}

// NewRegistry creates a new service registry with an empty service map.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]minervatypes.Service),
	}
}

// RegisterService adds a service to the registry, returning an error if already registered.
func (r *Registry) RegisterService(service minervatypes.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := service.Name()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}

	r.services[name] = service
	return nil
}

// GetService retrieves a service by name, returning an error if not found.
func (r *Registry) GetService(name string) (minervatypes.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service %s not found", name)
	}

	return service, nil
}

// InitializeAll initializes all registered services.
func (r *Registry) InitializeAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, service := range r.services {
		if err := service.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize service %s: %w", name, err)
		}
	}

	return nil
}

// GetAllServices returns a copy of all registered services.
func (r *Registry) GetAllServices() map[string]minervatypes.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]minervatypes.Service)
	for name, service := range r.services {
		result[name] = service
	}

	return result
}
