// Package pactmock is the consumer-facing surface of the contract-testing
// engine. Callers build pacts through opaque handles, start mock servers
// bound to them, query match state and persist contract documents.
//
// Handles reference entries in a registry owned by the engine; an invalid or
// discarded handle turns setters into silent no-ops rather than crashing, so
// callers are expected to check Valid once at creation time.
package pactmock

import (
	"sync"

	app "github.com/contractkit/pactmock/internal/app/pactmock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Re-exported engine types, so callers need only this package.
type (
	Mismatch        = app.Mismatch
	TransportConfig = app.TransportConfig
	Part            = app.Part
)

const (
	RequestPart  = app.RequestPart
	ResponsePart = app.ResponsePart
)

// ErrInvalidHandle is returned by resource operations (server start, pact
// writing) given a discarded or unknown handle. Plain setters no-op instead.
var ErrInvalidHandle = errors.New("invalid handle")

// ErrPactLocked mirrors the engine error returned once a mock server has
// been started for a pact.
var ErrPactLocked = app.ErrPactLocked

// Registry is an arena of engine-owned state addressed by generated handle
// identifiers.
type Registry struct {
	mu           sync.RWMutex
	pacts        map[string]*app.Pact
	interactions map[string]*app.Interaction
	messages     map[string]*app.Message
	servers      map[string]*app.MockServer
}

func NewRegistry() *Registry {
	return &Registry{
		pacts:        map[string]*app.Pact{},
		interactions: map[string]*app.Interaction{},
		messages:     map[string]*app.Message{},
		servers:      map[string]*app.MockServer{},
	}
}

// NewPact creates a pact for the consumer/provider pair and returns its
// handle.
func (r *Registry) NewPact(consumer, provider string) PactHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.pacts[id] = app.NewPact(consumer, provider)
	return PactHandle{id: id, registry: r}
}

// The lookup helpers tolerate a nil registry so zero-value handles behave
// like any other invalid handle.

func (r *Registry) pact(id string) (*app.Pact, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pacts[id]
	return p, ok
}

func (r *Registry) interaction(id string) (*app.Interaction, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.interactions[id]
	return i, ok
}

func (r *Registry) message(id string) (*app.Message, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	return m, ok
}

func (r *Registry) server(id string) (*app.MockServer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[id]
	return s, ok
}
