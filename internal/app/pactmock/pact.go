package pactmock

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrPactLocked is returned by setters once a mock server has been started
// against the owning pact. Interactions are read-only while serving.
var ErrPactLocked = errors.New("pact is locked: a mock server has been started for it")

// Part selects which side of an HTTP interaction a setter applies to.
type Part int

const (
	RequestPart Part = iota
	ResponsePart
)

// Pact identifies a consumer/provider pair and owns an ordered sequence of
// interactions and messages plus namespaced metadata.
type Pact struct {
	mu       sync.Mutex
	Consumer string
	Provider string

	interactions []*Interaction
	messages     []*Message
	metadata     map[string]map[string]string

	locked atomic.Bool
}

func NewPact(consumer, provider string) *Pact {
	return &Pact{
		Consumer: consumer,
		Provider: provider,
		metadata: map[string]map[string]string{},
	}
}

// NewInteraction appends an HTTP interaction. Interactions are independently
// mutable units; concurrent setters on different interactions are safe.
func (p *Pact) NewInteraction(description string) *Interaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := &Interaction{
		pact:        p,
		Description: description,
		request:     RequestSpec{Method: "GET", Path: "/", Headers: map[string]string{}, Query: map[string]string{}, Rules: map[string]MatchingRule{}},
		response:    ResponseSpec{Status: 200, Headers: map[string]string{}},
	}
	p.interactions = append(p.interactions, i)
	return i
}

// NewMessage appends an asynchronous message interaction.
func (p *Pact) NewMessage(description string) *Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := &Message{
		pact:        p,
		Description: description,
		metadata:    map[string]string{},
	}
	p.messages = append(p.messages, m)
	return m
}

// WithMetadata records a metadata value under a namespace, e.g.
// ("pactmock", "version", "1.2.3").
func (p *Pact) WithMetadata(namespace, key, value string) error {
	if p.locked.Load() {
		return ErrPactLocked
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ns, ok := p.metadata[namespace]
	if !ok {
		ns = map[string]string{}
		p.metadata[namespace] = ns
	}
	ns[key] = value
	return nil
}

// lock freezes the pact for serving. Idempotent.
func (p *Pact) lock() {
	p.locked.Store(true)
}

func (p *Pact) Locked() bool {
	return p.locked.Load()
}

// Interactions returns the registration-ordered interaction sequence.
func (p *Pact) Interactions() []*Interaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Interaction, len(p.interactions))
	copy(out, p.interactions)
	return out
}

func (p *Pact) Messages() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// RequestSpec describes the expected side of an HTTP exchange. Rules are
// indexed by document path ($.path, $.headers.<name>, $.query.<name>,
// $.body...).
type RequestSpec struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    *BodySpec
	Rules   map[string]MatchingRule
}

// ResponseSpec describes the scripted response for an interaction.
type ResponseSpec struct {
	Status  int
	Headers map[string]string
	Body    *BodySpec
}

// Interaction is one expected request/response exchange. All setters are
// last-write-wins and reject updates once the owning pact is locked.
type Interaction struct {
	mu   sync.RWMutex
	pact *Pact

	Description    string
	providerStates []string
	request        RequestSpec
	response       ResponseSpec
}

func (i *Interaction) set(mutate func() error) error {
	if i.pact.Locked() {
		return ErrPactLocked
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return mutate()
}

// UponReceiving replaces the interaction description.
func (i *Interaction) UponReceiving(description string) error {
	return i.set(func() error {
		i.Description = description
		return nil
	})
}

// Given appends a provider state description.
func (i *Interaction) Given(state string) error {
	return i.set(func() error {
		i.providerStates = append(i.providerStates, state)
		return nil
	})
}

// WithRequest sets the expected method and path. The path may itself be an
// annotated matcher node encoded as JSON, in which case a $.path rule is
// recorded and the example path stored.
func (i *Interaction) WithRequest(method, path string) error {
	return i.set(func() error {
		example, err := parseMatcherValue(path, "$.path", i.request.Rules)
		if err != nil {
			return err
		}
		i.request.Method = method
		i.request.Path = example
		return nil
	})
}

// WithQuery sets one expected query parameter. Matcher-node values are
// recognized the same way as WithRequest paths.
func (i *Interaction) WithQuery(name, value string) error {
	return i.set(func() error {
		example, err := parseMatcherValue(value, "$.query."+name, i.request.Rules)
		if err != nil {
			return err
		}
		i.request.Query[name] = example
		return nil
	})
}

// WithHeader sets one expected (request) or scripted (response) header.
func (i *Interaction) WithHeader(part Part, name, value string) error {
	return i.set(func() error {
		name = canonicalHeader(name)
		if part == ResponsePart {
			i.response.Headers[name] = value
			return nil
		}
		example, err := parseMatcherValue(value, "$.headers."+name, i.request.Rules)
		if err != nil {
			return err
		}
		i.request.Headers[name] = example
		return nil
	})
}

// WithBody sets the body for one side of the interaction. A malformed body
// is rejected and the prior body kept.
func (i *Interaction) WithBody(part Part, contentType string, body []byte) error {
	return i.set(func() error {
		spec, err := ParseBody(contentType, body, "$.body")
		if err != nil {
			return err
		}
		if part == ResponsePart {
			i.response.Body = spec
			if _, ok := i.response.Headers["Content-Type"]; !ok {
				i.response.Headers["Content-Type"] = contentType
			}
			return nil
		}
		i.request.Body = spec
		for path, rule := range spec.Rules {
			i.request.Rules[path] = rule
		}
		if _, ok := i.request.Headers["Content-Type"]; !ok {
			i.request.Headers["Content-Type"] = contentType
		}
		return nil
	})
}

// ResponseStatus sets the scripted response status code.
func (i *Interaction) ResponseStatus(status int) error {
	return i.set(func() error {
		i.response.Status = status
		return nil
	})
}

// Request returns a copy of the expected request description.
func (i *Interaction) Request() RequestSpec {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.request
}

// Response returns a copy of the scripted response.
func (i *Interaction) Response() ResponseSpec {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.response
}

// ProviderStates returns the recorded provider states in order.
func (i *Interaction) ProviderStates() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, len(i.providerStates))
	copy(out, i.providerStates)
	return out
}

// Message is one expected asynchronous payload with rule-annotated contents.
type Message struct {
	mu   sync.RWMutex
	pact *Pact

	Description    string
	providerStates []string
	contents       *BodySpec
	metadata       map[string]string
}

func (m *Message) set(mutate func() error) error {
	if m.pact.Locked() {
		return ErrPactLocked
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return mutate()
}

// ExpectsToReceive replaces the message description.
func (m *Message) ExpectsToReceive(description string) error {
	return m.set(func() error {
		m.Description = description
		return nil
	})
}

// Given appends a provider state description.
func (m *Message) Given(state string) error {
	return m.set(func() error {
		m.providerStates = append(m.providerStates, state)
		return nil
	})
}

// WithContents sets the message contents. Malformed contents are rejected
// and the prior contents kept.
func (m *Message) WithContents(contentType string, contents []byte) error {
	return m.set(func() error {
		spec, err := ParseBody(contentType, contents, "$")
		if err != nil {
			return err
		}
		m.contents = spec
		m.metadata["contentType"] = contentType
		return nil
	})
}

// WithMetadata records one message metadata entry.
func (m *Message) WithMetadata(key, value string) error {
	return m.set(func() error {
		m.metadata[key] = value
		return nil
	})
}

// Contents returns the parsed contents spec, which may be nil.
func (m *Message) Contents() *BodySpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contents
}

// ProviderStates returns the recorded provider states in order.
func (m *Message) ProviderStates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.providerStates))
	copy(out, m.providerStates)
	return out
}

// Metadata returns a copy of the message metadata.
func (m *Message) Metadata() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.metadata))
	for k, v := range m.metadata {
		out[k] = v
	}
	return out
}
