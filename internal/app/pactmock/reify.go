package pactmock

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Reify resolves a message's annotated contents into a concrete payload:
// every matcher node is replaced by its embedded example value. The result
// is the message envelope (description, provider states, metadata,
// contents) as a JSON document. Pure; identical output for identical
// message state.
func Reify(m *Message) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	envelope := map[string]interface{}{
		"description": m.Description,
		"metadata":    m.metadata,
	}

	states := make([]map[string]string, 0, len(m.providerStates))
	for _, s := range m.providerStates {
		states = append(states, map[string]string{"name": s})
	}
	envelope["providerStates"] = states

	if m.contents == nil {
		envelope["contents"] = nil
	} else if isJSONMediaType(m.contents.ContentType) {
		envelope["contents"] = reifyValue(m.contents.annotated)
	} else {
		envelope["contents"] = m.contents.Example
	}

	out, err := json.Marshal(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode reified message")
	}
	return out, nil
}

// reifyValue mirrors the evaluator's expected-value traversal, substituting
// each matcher node with its representative example.
func reifyValue(node interface{}) interface{} {
	switch val := node.(type) {
	case map[string]interface{}:
		if _, ok := val[matcherTypeKey]; ok {
			return reifyValue(val[matcherValueKey])
		}
		out := make(map[string]interface{}, len(val))
		for _, k := range sortedKeys(val) {
			out[k] = reifyValue(val[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = reifyValue(item)
		}
		return out
	default:
		return node
	}
}
