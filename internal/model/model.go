package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Entity is anything addressable in the information model.
type Entity interface {
	EntityID() string
}

// Resolver resolves a reference property of an entity to the referenced entity.
type Resolver interface {
	Resolve(ctx context.Context, entityID, property string) (Entity, error)
}

var (
	// ErrPropertyNotFound is returned when the entity has no such property.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrEmptyReference is returned when the property exists but holds no reference.
	ErrEmptyReference = errors.New("empty reference")
	// ErrEntityNotFound is returned when the referenced entity is not registered.
	ErrEntityNotFound = errors.New("entity not found")
	// errEntityRequired is returned when registering a nil entity or an empty identifier.
	errEntityRequired = errors.New("entity with a non-empty id must be provided")
)

// Registry is a concurrency-safe store of entities and their reference properties.
type Registry struct {
	// entities maps entity IDs to entities.
	entities map[string]Entity
	// properties maps entity IDs to property names to referenced entity IDs.
	properties map[string]map[string]string
	// mu protects entities and properties.
	mu sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:   make(map[string]Entity),
		properties: make(map[string]map[string]string),
	}
}

// Register adds or replaces an entity. Existing properties are kept.
func (r *Registry) Register(e Entity) error {
	if e == nil || e.EntityID() == "" {
		return errEntityRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities[e.EntityID()] = e

	return nil
}

// SetProperty sets a reference property on an entity. An empty reference is
// stored as is and reported as ErrEmptyReference on resolution.
func (r *Registry) SetProperty(entityID, property, reference string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	props, ok := r.properties[entityID]
	if !ok {
		props = make(map[string]string)
		r.properties[entityID] = props
	}

	props[property] = strings.TrimSpace(reference)
}

// Get returns the entity with the given ID.
func (r *Registry) Get(entityID string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[entityID]

	return e, ok
}

// Resolve implements Resolver.
func (r *Registry) Resolve(_ context.Context, entityID, property string) (Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reference, ok := r.properties[entityID][property]
	if !ok {
		return nil, fmt.Errorf("%s of %s: %w", property, entityID, ErrPropertyNotFound)
	}

	if reference == "" {
		return nil, fmt.Errorf("%s of %s: %w", property, entityID, ErrEmptyReference)
	}

	target, ok := r.entities[reference]
	if !ok {
		return nil, fmt.Errorf("%s of %s points to %s: %w", property, entityID, reference, ErrEntityNotFound)
	}

	return target, nil
}
