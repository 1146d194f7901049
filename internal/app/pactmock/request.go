package pactmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// RequestDocument is the observed side of an exchange, shaped for jsonpath
// lookups: method, path, query, headers and decoded body.
type RequestDocument map[string]interface{}

// ParseRequest builds a request document from an inbound request. JSON
// bodies are decoded; anything else is carried as a string.
func ParseRequest(req *http.Request, body []byte) (RequestDocument, error) {
	doc := RequestDocument{
		"method":  req.Method,
		"path":    req.URL.Path,
		"query":   parseQueryValues(req.URL),
		"headers": parseHeaderValues(req.Header),
	}

	contentType := req.Header.Get("Content-Type")
	if !isJSONMediaType(contentType) || len(body) == 0 {
		doc["body"] = string(body)
		return doc, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrap(err, "unable to decode request body")
	}
	doc["body"] = decoded
	return doc, nil
}

func parseHeaderValues(header http.Header) map[string]interface{} {
	h := make(map[string]interface{}, len(header))
	for name, values := range header {
		if len(values) == 1 {
			h[canonicalHeader(name)] = values[0]
			continue
		}
		h[canonicalHeader(name)] = strings.Join(values, ", ")
	}
	return h
}

func parseQueryValues(u *url.URL) map[string]interface{} {
	values := make(map[string]interface{})
	for q, v := range u.Query() {
		if len(v) > 0 {
			escapeValue(values, q, v[0])
		}
	}
	return values
}

// escapeValue stores a query value, expanding bracketed keys like a[b][c]
// into nested maps so jsonpath lookups can address them.
func escapeValue(values map[string]interface{}, query, val string) {
	open := strings.Index(query, "[")
	if open > -1 {
		key := query[:open]
		rest := query[open+1:]
		closing := strings.Index(rest, "]")
		if closing < 0 {
			values[query] = val
			return
		}

		subKey := rest[:closing]
		next := rest[closing+1:]

		existing := values[key]
		valueMap, ok := existing.(map[string]interface{})
		if !ok {
			valueMap = make(map[string]interface{})
			values[key] = valueMap
		}
		escapeValue(valueMap, subKey+next, val)
		return
	}
	values[query] = val
}

// lookupPath renders a jsonpath lookup for a named parameter, expanding
// bracketed keys like a[b][c] the same way escapeValue nests them into the
// request document.
func lookupPath(root, name string) string {
	path := root
	rest := name
	for {
		open := strings.Index(rest, "[")
		if open < 0 {
			return fmt.Sprintf("%s[%q]", path, rest)
		}
		closing := strings.Index(rest[open+1:], "]")
		if closing < 0 {
			return fmt.Sprintf("%s[%q]", path, rest)
		}
		path = fmt.Sprintf("%s[%q]", path, rest[:open])
		rest = rest[open+1:open+1+closing] + rest[open+1+closing+1:]
	}
}

func canonicalHeader(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}
