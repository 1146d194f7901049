package pactmock

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
	app "github.com/contractkit/pactmock/internal/app/pactmock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PactHandle addresses one pact in the registry.
type PactHandle struct {
	id       string
	registry *Registry
}

// Valid reports whether the handle still addresses a registered pact.
func (h PactHandle) Valid() bool {
	_, ok := h.registry.pact(h.id)
	return ok
}

// WithMetadata records a namespaced metadata entry on the pact.
func (h PactHandle) WithMetadata(namespace, key, value string) error {
	p, ok := h.registry.pact(h.id)
	if !ok {
		return nil
	}
	return p.WithMetadata(namespace, key, value)
}

// NewInteraction registers an HTTP interaction under the pact. The returned
// handle is invalid (and all its setters no-ops) if this handle is.
func (h PactHandle) NewInteraction(description string) InteractionHandle {
	p, ok := h.registry.pact(h.id)
	if !ok {
		return InteractionHandle{registry: h.registry}
	}
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	id := uuid.NewString()
	h.registry.interactions[id] = p.NewInteraction(description)
	return InteractionHandle{id: id, registry: h.registry}
}

// NewMessage registers a message interaction under the pact.
func (h PactHandle) NewMessage(description string) MessageHandle {
	p, ok := h.registry.pact(h.id)
	if !ok {
		return MessageHandle{registry: h.registry}
	}
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	id := uuid.NewString()
	h.registry.messages[id] = p.NewMessage(description)
	return MessageHandle{id: id, registry: h.registry}
}

// CreateMockServer starts a mock server bound to the pact. addr may be empty
// or end in ":0" for an ephemeral port. The pact is locked against further
// mutation on success.
func (h PactHandle) CreateMockServer(addr string, config *TransportConfig) (ServerHandle, error) {
	p, ok := h.registry.pact(h.id)
	if !ok {
		return ServerHandle{registry: h.registry}, ErrInvalidHandle
	}
	server, err := app.StartMockServer(p, addr, config)
	if err != nil {
		return ServerHandle{registry: h.registry}, err
	}
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	id := uuid.NewString()
	h.registry.servers[id] = server
	return ServerHandle{id: id, registry: h.registry}, nil
}

// WritePactFile serializes the whole pact (all interactions and messages)
// into dir. Callers verifying mock-server traffic should use the server
// handle's WritePactFile instead, which persists only matched interactions.
func (h PactHandle) WritePactFile(dir string, overwrite bool) error {
	p, ok := h.registry.pact(h.id)
	if !ok {
		return ErrInvalidHandle
	}
	return app.WritePactFile(p, nil, dir, overwrite)
}

// InteractionHandle addresses one HTTP interaction. All setters are
// last-write-wins, silent no-ops on an invalid handle, and return an error
// only when the supplied content is rejected or the pact is locked.
type InteractionHandle struct {
	id       string
	registry *Registry
}

func (h InteractionHandle) Valid() bool {
	_, ok := h.registry.interaction(h.id)
	return ok
}

func (h InteractionHandle) UponReceiving(description string) error {
	i, ok := h.registry.interaction(h.id)
	if !ok {
		return nil
	}
	return i.UponReceiving(description)
}

func (h InteractionHandle) Given(state string) error {
	i, ok := h.registry.interaction(h.id)
	if !ok {
		return nil
	}
	return i.Given(state)
}

func (h InteractionHandle) WithRequest(method, path string) error {
	i, ok := h.registry.interaction(h.id)
	if !ok {
		return nil
	}
	return i.WithRequest(method, path)
}

func (h InteractionHandle) WithQuery(name, value string) error {
	i, ok := h.registry.interaction(h.id)
	if !ok {
		return nil
	}
	return i.WithQuery(name, value)
}

func (h InteractionHandle) WithHeader(part Part, name, value string) error {
	i, ok := h.registry.interaction(h.id)
	if !ok {
		return nil
	}
	return i.WithHeader(part, name, value)
}

func (h InteractionHandle) WithBody(part Part, contentType string, body []byte) error {
	i, ok := h.registry.interaction(h.id)
	if !ok {
		return nil
	}
	return i.WithBody(part, contentType, body)
}

func (h InteractionHandle) ResponseStatus(status int) error {
	i, ok := h.registry.interaction(h.id)
	if !ok {
		return nil
	}
	return i.ResponseStatus(status)
}

// MessageHandle addresses one message interaction.
type MessageHandle struct {
	id       string
	registry *Registry
}

func (h MessageHandle) Valid() bool {
	_, ok := h.registry.message(h.id)
	return ok
}

func (h MessageHandle) ExpectsToReceive(description string) error {
	m, ok := h.registry.message(h.id)
	if !ok {
		return nil
	}
	return m.ExpectsToReceive(description)
}

func (h MessageHandle) Given(state string) error {
	m, ok := h.registry.message(h.id)
	if !ok {
		return nil
	}
	return m.Given(state)
}

func (h MessageHandle) WithContents(contentType string, contents []byte) error {
	m, ok := h.registry.message(h.id)
	if !ok {
		return nil
	}
	return m.WithContents(contentType, contents)
}

func (h MessageHandle) WithMetadata(key, value string) error {
	m, ok := h.registry.message(h.id)
	if !ok {
		return nil
	}
	return m.WithMetadata(key, value)
}

// Reify resolves the message's matching-rule placeholders into concrete
// example values and returns the message envelope as JSON.
func (h MessageHandle) Reify() ([]byte, error) {
	m, ok := h.registry.message(h.id)
	if !ok {
		return nil, ErrInvalidHandle
	}
	return app.Reify(m)
}

// ServerHandle addresses one running mock server.
type ServerHandle struct {
	id       string
	registry *Registry
}

func (h ServerHandle) Valid() bool {
	_, ok := h.registry.server(h.id)
	return ok
}

// Port returns the bound TCP port, or 0 for an invalid handle.
func (h ServerHandle) Port() int {
	s, ok := h.registry.server(h.id)
	if !ok {
		return 0
	}
	return s.Port()
}

// URL returns the server's base URL, or "" for an invalid handle.
func (h ServerHandle) URL() string {
	s, ok := h.registry.server(h.id)
	if !ok {
		return ""
	}
	return s.URL()
}

// Matched reports whether every exchange recorded so far matched.
func (h ServerHandle) Matched() bool {
	s, ok := h.registry.server(h.id)
	if !ok {
		return false
	}
	return s.Matched()
}

// Mismatches returns every recorded mismatch in arrival order.
func (h ServerHandle) Mismatches() []Mismatch {
	s, ok := h.registry.server(h.id)
	if !ok {
		return nil
	}
	return s.Mismatches()
}

// MismatchesJSON renders the mismatch report as JSON.
func (h ServerHandle) MismatchesJSON() ([]byte, error) {
	s, ok := h.registry.server(h.id)
	if !ok {
		return nil, ErrInvalidHandle
	}
	return s.MismatchesJSON()
}

// Logs returns the ordered diagnostic trace of all exchanges.
func (h ServerHandle) Logs() []string {
	s, ok := h.registry.server(h.id)
	if !ok {
		return nil
	}
	return s.Logs()
}

// WritePactFile persists the interactions observed in at least one matched
// exchange. Callers should check Matched first; an unchecked pact file
// reflects only what happened to match.
func (h ServerHandle) WritePactFile(dir string, overwrite bool) error {
	s, ok := h.registry.server(h.id)
	if !ok {
		return ErrInvalidHandle
	}
	return app.WritePactFile(s.Pact(), s.MatchedInteractions(), dir, overwrite)
}

// WaitForRequests blocks until the server has recorded at least count
// exchanges or the timeout elapses.
func (h ServerHandle) WaitForRequests(count int, timeout time.Duration) error {
	s, ok := h.registry.server(h.id)
	if !ok {
		return ErrInvalidHandle
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return retry.Do(
		func() error {
			if got := s.RequestCount(); got < count {
				return errors.Errorf("received %d of %d expected requests", got, count)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// Cleanup stops the server, releases its port and discards its handle.
// Idempotent: cleaning up an unknown handle is a no-op.
func (h ServerHandle) Cleanup() error {
	if h.registry == nil {
		return nil
	}
	h.registry.mu.Lock()
	s, ok := h.registry.servers[h.id]
	if ok {
		delete(h.registry.servers, h.id)
	}
	h.registry.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Cleanup()
}
