package pactmock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func buildPact(t *testing.T) *Pact {
	t.Helper()
	pact := NewPact("http-consumer", "http-provider")

	i := pact.NewInteraction("a request to create a book")
	require.NoError(t, i.Given("no book fixtures required"))
	require.NoError(t, i.WithRequest("POST", "/api/books"))
	require.NoError(t, i.WithHeader(RequestPart, "Content-Type", "application/json"))
	require.NoError(t, i.WithBody(RequestPart, mediaTypeJSON,
		[]byte(`{"isbn": {"pact:matcher:type": "type", "value": "0099740915"}}`)))
	require.NoError(t, i.ResponseStatus(201))
	require.NoError(t, i.WithBody(ResponsePart, mediaTypeJSON,
		[]byte(`{"id": {"pact:matcher:type": "regex", "regex": "[0-9]+", "value": "7"}}`)))

	return pact
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "http-consumer-http-provider.json",
		NewPact("http-consumer", "http-provider").FileName())
	assert.Equal(t, "my_consumer-my_provider.json",
		NewPact("my consumer", "my/provider").FileName())
}

func TestWritePactFileDocumentShape(t *testing.T) {
	dir := t.TempDir()
	pact := buildPact(t)
	require.NoError(t, WritePactFile(pact, nil, dir, true))

	data, err := os.ReadFile(filepath.Join(dir, pact.FileName()))
	require.NoError(t, err)

	assert.Equal(t, "http-consumer", gjson.GetBytes(data, "consumer.name").String())
	assert.Equal(t, "http-provider", gjson.GetBytes(data, "provider.name").String())
	assert.Equal(t, "3.0.0", gjson.GetBytes(data, "metadata.pactSpecification.version").String())

	interaction := gjson.GetBytes(data, "interactions.0")
	assert.Equal(t, "a request to create a book", interaction.Get("description").String())
	assert.Equal(t, "no book fixtures required", interaction.Get("providerStates.0.name").String())
	assert.Equal(t, "POST", interaction.Get("request.method").String())
	assert.Equal(t, "/api/books", interaction.Get("request.path").String())

	// The serialized body is the concrete example, not the annotated form.
	assert.Equal(t, "0099740915", interaction.Get("request.body.isbn").String())
	assert.False(t, interaction.Get("request.body.isbn").IsObject())

	assert.Equal(t, "type",
		interaction.Get(`request.matchingRules.$\.body\.isbn.match`).String())
	assert.Equal(t, "regex",
		interaction.Get(`response.matchingRules.$\.body\.id.match`).String())
	assert.Equal(t, "[0-9]+",
		interaction.Get(`response.matchingRules.$\.body\.id.regex`).String())
}

func TestWritePactFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pact := buildPact(t)

	m := pact.NewMessage("a book created event")
	require.NoError(t, m.Given("a book was created"))
	require.NoError(t, m.WithContents(mediaTypeJSON,
		[]byte(`{"isbn": {"pact:matcher:type": "type", "value": "0099740915"}}`)))

	require.NoError(t, WritePactFile(pact, nil, dir, true))
	data, err := os.ReadFile(filepath.Join(dir, pact.FileName()))
	require.NoError(t, err)

	loaded, err := LoadPactFile(data)
	require.NoError(t, err)
	assert.Equal(t, "http-consumer", loaded.Consumer)
	assert.Equal(t, "http-provider", loaded.Provider)

	interactions := loaded.Interactions()
	require.Len(t, interactions, 1)
	request := interactions[0].Request()
	assert.Equal(t, "POST", request.Method)
	assert.Equal(t, "/api/books", request.Path)
	assert.Equal(t, "application/json", request.Headers["Content-Type"])
	require.Contains(t, request.Rules, "$.body.isbn")
	assert.Equal(t, RuleType, request.Rules["$.body.isbn"].Kind)
	assert.Equal(t, []string{"no book fixtures required"}, interactions[0].ProviderStates())

	messages := loaded.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "a book created event", messages[0].Description)
	assert.Equal(t, []string{"a book was created"}, messages[0].ProviderStates())
}

func TestWritePactFileMerge(t *testing.T) {
	dir := t.TempDir()

	first := NewPact("http-consumer", "http-provider")
	i := first.NewInteraction("an existing request")
	require.NoError(t, i.WithRequest("GET", "/existing"))
	require.NoError(t, i.ResponseStatus(200))
	require.NoError(t, WritePactFile(first, nil, dir, true))

	second := NewPact("http-consumer", "http-provider")
	i = second.NewInteraction("a new request")
	require.NoError(t, i.WithRequest("GET", "/new"))
	require.NoError(t, i.ResponseStatus(200))
	require.NoError(t, WritePactFile(second, nil, dir, false))

	data, err := os.ReadFile(filepath.Join(dir, second.FileName()))
	require.NoError(t, err)

	var descriptions []string
	for _, item := range gjson.GetBytes(data, "interactions").Array() {
		descriptions = append(descriptions, item.Get("description").String())
	}
	assert.ElementsMatch(t, []string{"an existing request", "a new request"}, descriptions)
}

func TestWritePactFileMergeReplacesByDescription(t *testing.T) {
	dir := t.TempDir()

	first := NewPact("http-consumer", "http-provider")
	i := first.NewInteraction("a request")
	require.NoError(t, i.WithRequest("GET", "/v1"))
	require.NoError(t, WritePactFile(first, nil, dir, true))

	second := NewPact("http-consumer", "http-provider")
	i = second.NewInteraction("a request")
	require.NoError(t, i.WithRequest("GET", "/v2"))
	require.NoError(t, WritePactFile(second, nil, dir, false))

	data, err := os.ReadFile(filepath.Join(dir, second.FileName()))
	require.NoError(t, err)

	interactions := gjson.GetBytes(data, "interactions").Array()
	require.Len(t, interactions, 1, "re-declared descriptions replace, not duplicate")
	assert.Equal(t, "/v2", interactions[0].Get("request.path").String())
}

func TestWritePactFileOverwrite(t *testing.T) {
	dir := t.TempDir()

	first := NewPact("http-consumer", "http-provider")
	i := first.NewInteraction("an existing request")
	require.NoError(t, i.WithRequest("GET", "/existing"))
	require.NoError(t, WritePactFile(first, nil, dir, true))

	second := NewPact("http-consumer", "http-provider")
	i = second.NewInteraction("a new request")
	require.NoError(t, i.WithRequest("GET", "/new"))
	require.NoError(t, WritePactFile(second, nil, dir, true))

	data, err := os.ReadFile(filepath.Join(dir, second.FileName()))
	require.NoError(t, err)

	interactions := gjson.GetBytes(data, "interactions").Array()
	require.Len(t, interactions, 1)
	assert.Equal(t, "a new request", interactions[0].Get("description").String())
}

func TestWritePactFileOnlyMatched(t *testing.T) {
	dir := t.TempDir()
	pact := NewPact("http-consumer", "http-provider")

	matched := pact.NewInteraction("a matched request")
	require.NoError(t, matched.WithRequest("GET", "/matched"))
	unmatched := pact.NewInteraction("an unexercised request")
	require.NoError(t, unmatched.WithRequest("GET", "/unexercised"))

	require.NoError(t, WritePactFile(pact, []*Interaction{matched}, dir, true))

	data, err := os.ReadFile(filepath.Join(dir, pact.FileName()))
	require.NoError(t, err)

	interactions := gjson.GetBytes(data, "interactions").Array()
	require.Len(t, interactions, 1)
	assert.Equal(t, "a matched request", interactions[0].Get("description").String())
}

func TestWritePactFileEmptyRestriction(t *testing.T) {
	dir := t.TempDir()
	pact := buildPact(t)

	// An empty restriction writes no interactions; only nil means "all".
	require.NoError(t, WritePactFile(pact, []*Interaction{}, dir, true))

	data, err := os.ReadFile(filepath.Join(dir, pact.FileName()))
	require.NoError(t, err)
	assert.Empty(t, gjson.GetBytes(data, "interactions").Array())
}

func TestWritePactFileUnwritableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	pact := buildPact(t)
	assert.Error(t, WritePactFile(pact, nil, dir, true))
}

func TestLoadPactFileErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "invalid json", data: `{"consumer": `},
		{name: "missing consumer name", data: `{"provider": {"name": "p"}, "interactions": []}`},
		{name: "missing provider name", data: `{"consumer": {"name": "c"}, "interactions": []}`},
		{
			name: "interaction without description",
			data: `{"consumer": {"name": "c"}, "provider": {"name": "p"},
				"interactions": [{"request": {"method": "GET", "path": "/"}}]}`,
		},
		{
			name: "invalid matching rule",
			data: `{"consumer": {"name": "c"}, "provider": {"name": "p"},
				"interactions": [{"description": "d",
					"request": {"method": "GET", "path": "/",
						"matchingRules": {"$.body.a": {"match": "regex", "regex": "(["}}}}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPactFile([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadPactFileLegacyProviderState(t *testing.T) {
	data := `{
		"consumer": {"name": "c"},
		"provider": {"name": "p"},
		"interactions": [{
			"description": "a legacy interaction",
			"providerState": "the provider is ready",
			"request": {"method": "GET", "path": "/"},
			"response": {"status": 200}
		}]
	}`

	loaded, err := LoadPactFile([]byte(data))
	require.NoError(t, err)
	interactions := loaded.Interactions()
	require.Len(t, interactions, 1)
	assert.Equal(t, []string{"the provider is ready"}, interactions[0].ProviderStates())
}
