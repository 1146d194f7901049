package pactmock

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uuidPattern = `^[0-9a-f]{8}(-[0-9a-f]{4}){3}-[0-9a-f]{12}$`

func mustParseBody(t *testing.T, contentType, body string) *BodySpec {
	t.Helper()
	spec, err := ParseBody(contentType, []byte(body), "$.body")
	require.NoError(t, err)
	return spec
}

func decode(t *testing.T, body string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestEvaluateTypeRule(t *testing.T) {
	spec := mustParseBody(t, mediaTypeJSON, `{
		"isbn": {"pact:matcher:type": "type", "value": "0099740915"},
		"pages": {"pact:matcher:type": "type", "value": 320}
	}`)

	tests := []struct {
		name     string
		actual   string
		wantPath string
	}{
		{
			name:   "same values",
			actual: `{"isbn": "0099740915", "pages": 320}`,
		},
		{
			name:   "different values of the same type",
			actual: `{"isbn": "another isbn entirely", "pages": 1}`,
		},
		{
			name:     "wrong type produces exactly one mismatch at the path",
			actual:   `{"isbn": 99, "pages": 320}`,
			wantPath: "$.body.isbn",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mismatches := Evaluator{}.Evaluate(spec, decode(t, tt.actual))
			if tt.wantPath == "" {
				assert.Empty(t, mismatches)
				return
			}
			require.Len(t, mismatches, 1)
			assert.Equal(t, tt.wantPath, mismatches[0].Path)
			assert.Equal(t, MismatchBodyType, mismatches[0].Type)
		})
	}
}

func TestEvaluateRegexRule(t *testing.T) {
	spec := mustParseBody(t, mediaTypeJSON, `{
		"uuid": {
			"pact:matcher:type": "regex",
			"regex": "^[0-9a-f]{8}(-[0-9a-f]{4}){3}-[0-9a-f]{12}$",
			"value": "fb5a885f-f7e8-4a50-950f-c1a64a94d500"
		}
	}`)

	tests := []struct {
		name    string
		actual  string
		matched bool
	}{
		{name: "embedded example", actual: `{"uuid": "fb5a885f-f7e8-4a50-950f-c1a64a94d500"}`, matched: true},
		{name: "any other syntactically valid uuid", actual: `{"uuid": "0114b2a8-3347-49d8-ad99-0e792c5a30e6"}`, matched: true},
		{name: "not a uuid", actual: `{"uuid": "not-a-uuid"}`, matched: false},
		{name: "prefix only does not partially match", actual: `{"uuid": "fb5a885f-f7e8-4a50-950f-c1a64a94d500-trailing"}`, matched: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mismatches := Evaluator{}.Evaluate(spec, decode(t, tt.actual))
			if tt.matched {
				assert.Empty(t, mismatches)
				return
			}
			require.Len(t, mismatches, 1)
			assert.Equal(t, "$.body.uuid", mismatches[0].Path)
			assert.Equal(t, uuidPattern, mismatches[0].Expected)
		})
	}
}

func TestEvaluateLiteralEquality(t *testing.T) {
	spec := mustParseBody(t, mediaTypeJSON, `{"name": "ron", "tags": ["a", "b"]}`)

	mismatches := Evaluator{}.Evaluate(spec, decode(t, `{"name": "ron", "tags": ["a", "b"]}`))
	assert.Empty(t, mismatches)

	mismatches = Evaluator{}.Evaluate(spec, decode(t, `{"name": "rob", "tags": ["a", "c"]}`))
	require.Len(t, mismatches, 2)
	assert.Equal(t, "$.body.name", mismatches[0].Path)
	assert.Equal(t, "$.body.tags[1]", mismatches[1].Path)
}

func TestEvaluateMissingAndExtraKeys(t *testing.T) {
	spec := mustParseBody(t, mediaTypeJSON, `{"author": "Margaret Atwood", "title": "The Handmaid's Tale"}`)
	actual := decode(t, `{"title": "The Handmaid's Tale", "publisher": "Vintage"}`)

	mismatches := Evaluator{}.Evaluate(spec, actual)
	require.Len(t, mismatches, 1, "missing expected key always mismatches, extra key tolerated")
	assert.Equal(t, "$.body.author", mismatches[0].Path)

	mismatches = Evaluator{Strict: true}.Evaluate(spec, actual)
	require.Len(t, mismatches, 2)
	assert.Equal(t, "$.body.author", mismatches[0].Path)
	assert.Equal(t, "$.body.publisher", mismatches[1].Path)
}

func TestEvaluateDeterministicOrder(t *testing.T) {
	spec := mustParseBody(t, mediaTypeJSON, `{"c": 1, "a": {"z": 1, "b": 2}, "d": 3}`)
	actual := decode(t, `{"c": "x", "a": {"z": "x", "b": "x"}, "d": "x"}`)

	var paths [][]string
	for run := 0; run < 5; run++ {
		var got []string
		for _, m := range (Evaluator{}).Evaluate(spec, actual) {
			got = append(got, m.Path)
		}
		paths = append(paths, got)
	}

	want := []string{"$.body.a.b", "$.body.a.z", "$.body.c", "$.body.d"}
	for _, got := range paths {
		assert.Equal(t, want, got, "pre-order traversal with sorted keys must be reproducible")
	}
}

func TestEvaluateTypeRuleOnStructuredValues(t *testing.T) {
	spec := mustParseBody(t, mediaTypeJSON, `{"reviews": {"pact:matcher:type": "type", "value": []}}`)

	assert.Empty(t, Evaluator{}.Evaluate(spec, decode(t, `{"reviews": [1, 2, 3]}`)))

	mismatches := Evaluator{}.Evaluate(spec, decode(t, `{"reviews": {}}`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, "array", mismatches[0].Expected)
	assert.Equal(t, "object", mismatches[0].Actual)
}

func TestEvaluateRequestHeaderMismatch(t *testing.T) {
	pact := NewPact("consumer", "provider")
	i := pact.NewInteraction("a request with a json content type")
	require.NoError(t, i.WithRequest("POST", "/api/books"))
	require.NoError(t, i.WithHeader(RequestPart, "Content-Type", "application/json"))

	doc := RequestDocument{
		"method":  "POST",
		"path":    "/api/books",
		"query":   map[string]interface{}{},
		"headers": map[string]interface{}{"Accept": "application/json"},
		"body":    "",
	}

	spec := i.Request()
	mismatches := Evaluator{}.EvaluateRequest(&spec, doc)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchHeader, mismatches[0].Type)
	assert.Equal(t, "$.headers.Content-Type", mismatches[0].Path)
}

func TestEvaluateRequestHeaderRule(t *testing.T) {
	pact := NewPact("consumer", "provider")
	i := pact.NewInteraction("a request with a matched header")
	require.NoError(t, i.WithRequest("GET", "/session"))
	require.NoError(t, i.WithHeader(RequestPart, "X-Request-Id",
		`{"pact:matcher:type": "regex", "regex": "[0-9]+", "value": "42"}`))

	doc := RequestDocument{
		"method":  "GET",
		"path":    "/session",
		"query":   map[string]interface{}{},
		"headers": map[string]interface{}{"X-Request-Id": "1701"},
		"body":    "",
	}

	spec := i.Request()
	assert.Empty(t, Evaluator{}.EvaluateRequest(&spec, doc))

	doc["headers"] = map[string]interface{}{"X-Request-Id": "abc"}
	mismatches := Evaluator{}.EvaluateRequest(&spec, doc)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "$.headers.X-Request-Id", mismatches[0].Path)
}

func TestEvaluateRequestNestedQueryKey(t *testing.T) {
	pact := NewPact("consumer", "provider")
	i := pact.NewInteraction("a filtered search")
	require.NoError(t, i.WithRequest("GET", "/search"))
	require.NoError(t, i.WithQuery("filter[name]", "ron"))

	doc := RequestDocument{
		"method":  "GET",
		"path":    "/search",
		"query":   map[string]interface{}{"filter": map[string]interface{}{"name": "ron"}},
		"headers": map[string]interface{}{},
		"body":    "",
	}

	spec := i.Request()
	assert.Empty(t, Evaluator{}.EvaluateRequest(&spec, doc),
		"bracketed query keys resolve against their nested document form")

	doc["query"] = map[string]interface{}{"filter": map[string]interface{}{"name": "bob"}}
	mismatches := Evaluator{}.EvaluateRequest(&spec, doc)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchQuery, mismatches[0].Type)
	assert.Equal(t, "$.query.filter[name]", mismatches[0].Path)
}

func TestEvaluateRequestQueryMismatch(t *testing.T) {
	pact := NewPact("consumer", "provider")
	i := pact.NewInteraction("a query request")
	require.NoError(t, i.WithRequest("GET", "/mallory"))
	require.NoError(t, i.WithQuery("name", "ron"))
	require.NoError(t, i.WithQuery("status", "good"))

	doc := RequestDocument{
		"method":  "GET",
		"path":    "/mallory",
		"query":   map[string]interface{}{"name": "ron", "status": "bad"},
		"headers": map[string]interface{}{},
		"body":    "",
	}

	spec := i.Request()
	mismatches := Evaluator{}.EvaluateRequest(&spec, doc)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchQuery, mismatches[0].Type)
	assert.Equal(t, "$.query.status", mismatches[0].Path)
}
