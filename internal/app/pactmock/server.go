package pactmock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	// TransportHTTP is the default transport name.
	TransportHTTP = "http"

	defaultShutdownTimeout = 5 * time.Second
)

// TransportConfig selects and tunes the transport a mock server binds.
// Unrecognized Options keys are ignored, not errors.
type TransportConfig struct {
	Transport      string
	TLSCertFile    string
	TLSKeyFile     string
	RequestTimeout time.Duration
	Strict         bool
	Options        map[string]interface{}
}

// BindError reports that the requested address could not be bound. Fatal to
// the server instance being started, harmless to any other.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("unable to bind mock server to %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// exchange is one recorded request/response cycle.
type exchange struct {
	doc         RequestDocument
	interaction *Interaction
	mismatches  []Mismatch
	status      int
}

func (x exchange) matched() bool {
	return x.interaction != nil && len(x.mismatches) == 0
}

// MockServer replays one pact's scripted responses and records whether the
// traffic it received matched expectations. The bound pact is read-only for
// the server's lifetime.
type MockServer struct {
	pact      *Pact
	evaluator Evaluator
	server    *http.Server
	listener  net.Listener
	addr      string
	log       log.FieldLogger

	mu        sync.Mutex
	exchanges []exchange
	logs      []string
	matchedIx map[*Interaction]bool
	stopped   bool
}

// StartMockServer binds addr (host:port, ":0" for an ephemeral port) and
// serves the pact's interactions until Cleanup. The pact is locked against
// further mutation on success.
func StartMockServer(pact *Pact, addr string, config *TransportConfig) (*MockServer, error) {
	if config == nil {
		config = &TransportConfig{}
	}
	if config.Transport != "" && config.Transport != TransportHTTP {
		return nil, fmt.Errorf("unsupported transport %q", config.Transport)
	}
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	pact.lock()

	m := &MockServer{
		pact:      pact,
		evaluator: Evaluator{Strict: config.Strict},
		listener:  listener,
		addr:      listener.Addr().String(),
		log:       log.WithField("mock_server", listener.Addr().String()),
		matchedIx: map[*Interaction]bool{},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Any("/*", m.handle)

	m.server = &http.Server{
		Handler:      e,
		ReadTimeout:  config.RequestTimeout,
		WriteTimeout: config.RequestTimeout,
	}

	go func() {
		var err error
		if config.TLSCertFile != "" && config.TLSKeyFile != "" {
			err = m.server.ServeTLS(listener, config.TLSCertFile, config.TLSKeyFile)
		} else {
			err = m.server.Serve(listener)
		}
		if err != nil && err != http.ErrServerClosed {
			m.log.Error(err)
		}
	}()

	m.log.Infof("mock server started for %s/%s with %d interactions",
		pact.Consumer, pact.Provider, len(pact.Interactions()))
	return m, nil
}

// Addr returns the bound host:port.
func (m *MockServer) Addr() string {
	return m.addr
}

// Port returns the bound TCP port.
func (m *MockServer) Port() int {
	if tcp, ok := m.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// URL returns the base URL of the server.
func (m *MockServer) URL() string {
	return "http://" + m.addr
}

func (m *MockServer) handle(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	doc, err := ParseRequest(req, body)
	if err != nil {
		// A body the engine cannot decode degrades to an unexpected-request
		// record; matching errors never abort the server.
		doc = RequestDocument{
			"method":  req.Method,
			"path":    req.URL.Path,
			"query":   parseQueryValues(req.URL),
			"headers": parseHeaderValues(req.Header),
			"body":    string(body),
		}
		m.record(exchange{doc: doc, status: http.StatusInternalServerError, mismatches: []Mismatch{
			mismatchf(MismatchUnexpected, "$.body", nil, string(body), "unable to decode request body: %v", err),
		}})
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "unable to decode request body"})
	}

	candidates := m.candidates(req.Method, req.URL.Path)
	if len(candidates) == 0 {
		m.record(exchange{doc: doc, status: http.StatusInternalServerError, mismatches: []Mismatch{
			mismatchf(MismatchUnexpected, "$", nil, fmt.Sprintf("%s %s", req.Method, req.URL.Path),
				"no matching interaction found for %s %s", req.Method, req.URL.Path),
		}})
		return c.JSON(http.StatusInternalServerError,
			map[string]string{"error": fmt.Sprintf("no matching interaction found for %s %s", req.Method, req.URL.Path)})
	}

	// First fully matching candidate in registration order wins. If none
	// match, the first candidate still answers: the server is permissive and
	// records the mismatches instead of rejecting at the transport level.
	selected := candidates[0]
	spec := selected.Request()
	mismatches := m.evaluator.EvaluateRequest(&spec, doc)
	for _, candidate := range candidates[1:] {
		if len(mismatches) == 0 {
			break
		}
		candidateSpec := candidate.Request()
		if next := m.evaluator.EvaluateRequest(&candidateSpec, doc); len(next) < len(mismatches) {
			selected, mismatches = candidate, next
		}
	}

	response := selected.Response()
	m.record(exchange{doc: doc, interaction: selected, mismatches: mismatches, status: response.Status})
	return m.respond(c, response)
}

func (m *MockServer) candidates(method, path string) []*Interaction {
	var out []*Interaction
	for _, i := range m.pact.Interactions() {
		spec := i.Request()
		if !strings.EqualFold(spec.Method, method) {
			continue
		}
		if rule, ok := spec.Rules["$.path"]; ok && rule.Kind == RuleRegex {
			if rule.MatchString(path) {
				out = append(out, i)
			}
			continue
		}
		if spec.Path == path {
			out = append(out, i)
		}
	}
	return out
}

func (m *MockServer) respond(c echo.Context, response ResponseSpec) error {
	for name, value := range response.Headers {
		c.Response().Header().Set(name, value)
	}
	if response.Body == nil {
		return c.NoContent(response.Status)
	}

	if isJSONMediaType(response.Body.ContentType) {
		data, err := json.Marshal(response.Body.Example)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.Blob(response.Status, response.Body.ContentType, data)
	}
	return c.Blob(response.Status, response.Body.ContentType, []byte(stringify(response.Body.Example)))
}

func (m *MockServer) record(x exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.exchanges = append(m.exchanges, x)

	verdict := "matched"
	if !x.matched() {
		verdict = fmt.Sprintf("mismatched (%d mismatches)", len(x.mismatches))
	}
	method, _ := x.doc["method"].(string)
	path, _ := x.doc["path"].(string)
	line := fmt.Sprintf("%s %s -> %d %s", method, path, x.status, verdict)
	m.logs = append(m.logs, line)
	m.log.Info(line)

	if x.matched() {
		m.matchedIx[x.interaction] = true
	}
}

// Matched reports whether every exchange recorded up to the call time
// matched its interaction. Vacuously true before any traffic arrives.
func (m *MockServer) Matched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.exchanges {
		if !x.matched() {
			return false
		}
	}
	return true
}

// Mismatches returns every recorded mismatch in exchange arrival order.
func (m *MockServer) Mismatches() []Mismatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Mismatch
	for _, x := range m.exchanges {
		out = append(out, x.mismatches...)
	}
	return out
}

// MismatchesJSON renders the mismatch report as a JSON document, one entry
// per mismatched exchange.
func (m *MockServer) MismatchesJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report := make([]map[string]interface{}, 0)
	for _, x := range m.exchanges {
		if x.matched() {
			continue
		}
		method, _ := x.doc["method"].(string)
		path, _ := x.doc["path"].(string)
		entry := map[string]interface{}{
			"method":     method,
			"path":       path,
			"type":       "request-mismatch",
			"mismatches": x.mismatches,
		}
		if x.interaction == nil {
			entry["type"] = "request-not-found"
		}
		report = append(report, entry)
	}
	return json.Marshal(report)
}

// Logs returns the ordered diagnostic trace of all exchanges.
func (m *MockServer) Logs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.logs))
	copy(out, m.logs)
	return out
}

// RequestCount returns the number of recorded exchanges.
func (m *MockServer) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.exchanges)
}

// MatchedInteractions returns the interactions observed in at least one
// matched exchange, in registration order. Never nil: an empty result must
// stay distinguishable from the serialize-everything nil passed to
// WritePactFile.
func (m *MockServer) MatchedInteractions() []*Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Interaction, 0, len(m.matchedIx))
	for _, i := range m.pact.Interactions() {
		if m.matchedIx[i] {
			out = append(out, i)
		}
	}
	return out
}

// Pact returns the pact this server is bound to.
func (m *MockServer) Pact() *Pact {
	return m.pact
}

// Cleanup releases the port and discards the exchange log. In-flight
// requests drain with best effort; new connections are refused. Idempotent.
func (m *MockServer) Cleanup() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.exchanges = nil
	m.logs = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := m.server.Shutdown(ctx); err != nil {
		m.log.Error(err)
		return err
	}
	m.log.Info("mock server stopped")
	return nil
}
