package pactmock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SpecificationVersion is the pact specification version written into
// contract documents.
const SpecificationVersion = "3.0.0"

// Version identifies the producing tool in contract metadata. Overridden at
// build time.
var Version = "0.1.0"

// FileName returns the conventional contract document name for the pact.
func (p *Pact) FileName() string {
	return fmt.Sprintf("%s-%s.json", sanitizeName(p.Consumer), sanitizeName(p.Provider))
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return replacer.Replace(name)
}

// WritePactFile renders the pact into dir. With overwrite false, an existing
// document at the target path is merged: interactions and messages already
// present and not re-declared are carried over (union by description). With
// overwrite true the document is replaced wholesale. No partial file is left
// behind on error.
//
// only restricts which interactions are written (used by a running mock
// server to persist just the matched ones); nil writes all.
func WritePactFile(p *Pact, only []*Interaction, dir string, overwrite bool) error {
	doc := p.ToDocument(only)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to encode pact document")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create pact directory %s", dir)
	}
	target := filepath.Join(dir, p.FileName())

	if !overwrite {
		if existing, err := os.ReadFile(target); err == nil {
			data, err = mergeDocuments(existing, data)
			if err != nil {
				return err
			}
		}
	}

	tmp, err := os.CreateTemp(dir, ".pact-*")
	if err != nil {
		return errors.Wrapf(err, "unable to write pact file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "unable to write pact file %s", target)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "unable to write pact file %s", target)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrapf(err, "unable to write pact file %s", target)
	}
	return nil
}

// mergeDocuments carries over interactions and messages from an existing
// document whose descriptions are not re-declared by the new one.
func mergeDocuments(existing, updated []byte) ([]byte, error) {
	var err error
	for _, section := range []string{"interactions", "messages"} {
		declared := map[string]bool{}
		for _, item := range gjson.GetBytes(updated, section).Array() {
			declared[item.Get("description").String()] = true
		}
		for _, item := range gjson.GetBytes(existing, section).Array() {
			if declared[item.Get("description").String()] {
				continue
			}
			updated, err = sjson.SetRawBytes(updated, section+".-1", []byte(item.Raw))
			if err != nil {
				return nil, errors.Wrap(err, "unable to merge pact documents")
			}
		}
	}
	return updated, nil
}

// ToDocument renders the pact as a specification v3 contract document. only
// restricts the interactions included; nil includes all.
func (p *Pact) ToDocument(only []*Interaction) map[string]interface{} {
	interactions := only
	if interactions == nil {
		interactions = p.Interactions()
	}

	doc := map[string]interface{}{
		"consumer": map[string]string{"name": p.Consumer},
		"provider": map[string]string{"name": p.Provider},
	}

	rendered := make([]map[string]interface{}, 0, len(interactions))
	for _, i := range interactions {
		rendered = append(rendered, i.toDocument())
	}
	doc["interactions"] = rendered

	if messages := p.Messages(); len(messages) > 0 {
		renderedMsgs := make([]map[string]interface{}, 0, len(messages))
		for _, m := range messages {
			renderedMsgs = append(renderedMsgs, m.toDocument())
		}
		doc["messages"] = renderedMsgs
	}

	metadata := map[string]interface{}{
		"pactSpecification": map[string]string{"version": SpecificationVersion},
		"pactmock":          map[string]string{"version": Version},
	}
	p.mu.Lock()
	for ns, values := range p.metadata {
		metadata[ns] = values
	}
	p.mu.Unlock()
	doc["metadata"] = metadata

	return doc
}

func (i *Interaction) toDocument() map[string]interface{} {
	i.mu.RLock()
	defer i.mu.RUnlock()

	request := map[string]interface{}{
		"method": i.request.Method,
		"path":   i.request.Path,
	}
	if len(i.request.Query) > 0 {
		query := map[string][]string{}
		for name, value := range i.request.Query {
			query[name] = []string{value}
		}
		request["query"] = query
	}
	if len(i.request.Headers) > 0 {
		request["headers"] = i.request.Headers
	}
	if i.request.Body != nil {
		request["body"] = i.request.Body.Example
	}
	if len(i.request.Rules) > 0 {
		request["matchingRules"] = rulesToDocument(i.request.Rules)
	}

	response := map[string]interface{}{
		"status": i.response.Status,
	}
	if len(i.response.Headers) > 0 {
		response["headers"] = i.response.Headers
	}
	if i.response.Body != nil {
		response["body"] = i.response.Body.Example
		if len(i.response.Body.Rules) > 0 {
			response["matchingRules"] = rulesToDocument(i.response.Body.Rules)
		}
	}

	out := map[string]interface{}{
		"description": i.Description,
		"request":     request,
		"response":    response,
	}
	if len(i.providerStates) > 0 {
		out["providerStates"] = statesToDocument(i.providerStates)
	}
	return out
}

func (m *Message) toDocument() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[string]interface{}{
		"description": m.Description,
		"metadata":    m.metadata,
	}
	if m.contents != nil {
		out["contents"] = m.contents.Example
		if len(m.contents.Rules) > 0 {
			out["matchingRules"] = rulesToDocument(m.contents.Rules)
		}
	}
	if len(m.providerStates) > 0 {
		out["providerStates"] = statesToDocument(m.providerStates)
	}
	return out
}

func statesToDocument(states []string) []map[string]string {
	out := make([]map[string]string, 0, len(states))
	for _, s := range states {
		out = append(out, map[string]string{"name": s})
	}
	return out
}

func rulesToDocument(rules map[string]MatchingRule) map[string]interface{} {
	out := make(map[string]interface{}, len(rules))
	for path, rule := range rules {
		out[path] = rule.ToJSON()
	}
	return out
}

// LoadPactFile parses a v3 contract document back into a Pact.
func LoadPactFile(data []byte) (*Pact, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("unable to parse pact document: invalid JSON")
	}

	consumer := gjson.GetBytes(data, "consumer.name").String()
	provider := gjson.GetBytes(data, "provider.name").String()
	if consumer == "" || provider == "" {
		return nil, errors.New("unable to parse pact document: consumer and provider names are required")
	}

	p := NewPact(consumer, provider)

	for _, item := range gjson.GetBytes(data, "interactions").Array() {
		if err := loadInteraction(p, item); err != nil {
			return nil, err
		}
	}
	for _, item := range gjson.GetBytes(data, "messages").Array() {
		if err := loadMessage(p, item); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func loadInteraction(p *Pact, item gjson.Result) error {
	description := item.Get("description").String()
	if description == "" {
		return errors.New("unable to parse pact document: interaction has no description")
	}

	i := p.NewInteraction(description)
	i.providerStates = loadProviderStates(item)

	request := item.Get("request")
	i.request.Method = request.Get("method").String()
	i.request.Path = request.Get("path").String()
	request.Get("headers").ForEach(func(key, value gjson.Result) bool {
		i.request.Headers[canonicalHeader(key.String())] = value.String()
		return true
	})
	request.Get("query").ForEach(func(key, value gjson.Result) bool {
		if value.IsArray() {
			if arr := value.Array(); len(arr) > 0 {
				i.request.Query[key.String()] = arr[0].String()
			}
			return true
		}
		i.request.Query[key.String()] = value.String()
		return true
	})

	rules, err := loadMatchingRules(request.Get("matchingRules"))
	if err != nil {
		return err
	}
	i.request.Rules = rules

	if body := request.Get("body"); body.Exists() {
		i.request.Body = bodySpecFromDocument(i.request.Headers["Content-Type"], body, rules)
	}

	response := item.Get("response")
	if status := response.Get("status"); status.Exists() {
		i.response.Status = int(status.Int())
	}
	response.Get("headers").ForEach(func(key, value gjson.Result) bool {
		i.response.Headers[canonicalHeader(key.String())] = value.String()
		return true
	})
	responseRules, err := loadMatchingRules(response.Get("matchingRules"))
	if err != nil {
		return err
	}
	if body := response.Get("body"); body.Exists() {
		i.response.Body = bodySpecFromDocument(i.response.Headers["Content-Type"], body, responseRules)
	}
	return nil
}

func loadMessage(p *Pact, item gjson.Result) error {
	description := item.Get("description").String()
	if description == "" {
		return errors.New("unable to parse pact document: message has no description")
	}

	m := p.NewMessage(description)
	m.providerStates = loadProviderStates(item)
	item.Get("metadata").ForEach(func(key, value gjson.Result) bool {
		m.metadata[key.String()] = value.String()
		return true
	})

	rules, err := loadMatchingRules(item.Get("matchingRules"))
	if err != nil {
		return err
	}
	if contents := item.Get("contents"); contents.Exists() {
		m.contents = bodySpecFromDocument(m.metadata["contentType"], contents, rules)
	}
	return nil
}

func loadProviderStates(item gjson.Result) []string {
	var states []string
	for _, state := range item.Get("providerStates").Array() {
		if name := state.Get("name"); name.Exists() {
			states = append(states, name.String())
			continue
		}
		states = append(states, state.String())
	}
	if legacy := item.Get("providerState"); legacy.Exists() {
		states = append(states, legacy.String())
	}
	return states
}

func loadMatchingRules(rules gjson.Result) (map[string]MatchingRule, error) {
	out := map[string]MatchingRule{}
	var loadErr error
	rules.ForEach(func(key, value gjson.Result) bool {
		node, ok := value.Value().(map[string]interface{})
		if !ok {
			loadErr = errors.Errorf("unable to parse matching rule at %q", key.String())
			return false
		}
		rule, err := ruleFromJSON(node)
		if err != nil {
			loadErr = err
			return false
		}
		out[key.String()] = rule
		return true
	})
	return out, loadErr
}

// bodySpecFromDocument builds a body spec from an already-serialized body:
// the document body is the example tree, and rules arrive separately via the
// matchingRules section.
func bodySpecFromDocument(contentType string, body gjson.Result, rules map[string]MatchingRule) *BodySpec {
	spec := &BodySpec{
		ContentType: contentType,
		Example:     body.Value(),
		Rules:       map[string]MatchingRule{},
	}
	spec.annotated = spec.Example
	for path, rule := range rules {
		spec.Rules[path] = rule
	}
	return spec
}
