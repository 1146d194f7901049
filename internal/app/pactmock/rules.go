package pactmock

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeText = "text/plain"
)

// Annotation keys understood inside structured bodies. A JSON object of the
// form {"pact:matcher:type": "regex", "regex": "...", "value": "..."} is a
// matcher node: the rule is recorded at the node's path and the node is
// replaced by its example value.
const (
	matcherTypeKey  = "pact:matcher:type"
	matcherRegexKey = "regex"
	matcherValueKey = "value"
)

type RuleKind string

const (
	RuleEquality RuleKind = "equality"
	RuleType     RuleKind = "type"
	RuleRegex    RuleKind = "regex"
)

// MatchingRule determines how strictly an actual value must conform to the
// expected value at one path. The zero value is not valid; use one of the
// constructors.
type MatchingRule struct {
	Kind    RuleKind
	Pattern string
	re      *regexp.Regexp
}

func EqualityRule() MatchingRule {
	return MatchingRule{Kind: RuleEquality}
}

func TypeRule() MatchingRule {
	return MatchingRule{Kind: RuleType}
}

func RegexRule(pattern string) (MatchingRule, error) {
	re, err := regexp.Compile(anchor(pattern))
	if err != nil {
		return MatchingRule{}, errors.Wrapf(err, "invalid regex matcher %q", pattern)
	}
	return MatchingRule{Kind: RuleRegex, Pattern: pattern, re: re}, nil
}

// anchor forces a full-string match without double-anchoring patterns that
// already carry ^ or $.
func anchor(pattern string) string {
	anchored := pattern
	if !strings.HasPrefix(anchored, "^") {
		anchored = "^" + anchored
	}
	if !strings.HasSuffix(anchored, "$") {
		anchored = anchored + "$"
	}
	return anchored
}

func (r MatchingRule) MatchString(val string) bool {
	if r.re == nil {
		return false
	}
	return r.re.MatchString(val)
}

// ToJSON renders the rule in the dollar-path pact matching rule form used in
// serialized contract documents.
func (r MatchingRule) ToJSON() map[string]interface{} {
	switch r.Kind {
	case RuleRegex:
		return map[string]interface{}{"match": "regex", "regex": r.Pattern}
	case RuleType:
		return map[string]interface{}{"match": "type"}
	default:
		return map[string]interface{}{"match": "equality"}
	}
}

func ruleFromJSON(val map[string]interface{}) (MatchingRule, error) {
	match, _ := val["match"].(string)
	switch match {
	case "regex":
		pattern, ok := val[matcherRegexKey].(string)
		if !ok {
			return MatchingRule{}, errors.New("regex matching rule has no regex value")
		}
		return RegexRule(pattern)
	case "type":
		return TypeRule(), nil
	case "equality", "":
		return EqualityRule(), nil
	default:
		return MatchingRule{}, errors.Errorf("unknown matching rule %q", match)
	}
}

// BodySpec is a structured body with matching rules attached at paths. The
// annotated tree is kept as supplied (for reification), alongside the
// example tree with matcher nodes collapsed to their example values and the
// path -> rule index derived from them.
type BodySpec struct {
	ContentType string
	Example     interface{}
	Rules       map[string]MatchingRule
	annotated   interface{}
}

// ParseBody decodes body content supplied to a setter. JSON media types are
// scanned for matcher nodes; anything else is held as an opaque string with
// no rules. A malformed body is rejected, leaving the caller's prior state
// untouched.
func ParseBody(contentType string, data []byte, root string) (*BodySpec, error) {
	spec := &BodySpec{
		ContentType: contentType,
		Rules:       map[string]MatchingRule{},
	}

	if !isJSONMediaType(contentType) || len(data) == 0 {
		spec.Example = string(data)
		spec.annotated = string(data)
		return spec, nil
	}

	var annotated interface{}
	if err := json.Unmarshal(data, &annotated); err != nil {
		return nil, errors.Wrap(err, "unable to decode body content")
	}
	spec.annotated = annotated

	example, err := collapseMatchers(annotated, root, spec.Rules)
	if err != nil {
		return nil, err
	}
	spec.Example = example
	return spec, nil
}

func isJSONMediaType(contentType string) bool {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(mediaType)
	return mediaType == mediaTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// collapseMatchers walks the annotated tree, recording a rule for every
// matcher node and substituting the node's example value.
func collapseMatchers(node interface{}, path string, rules map[string]MatchingRule) (interface{}, error) {
	switch val := node.(type) {
	case map[string]interface{}:
		if kind, ok := val[matcherTypeKey]; ok {
			return collapseMatcherNode(kind, val, path, rules)
		}
		out := make(map[string]interface{}, len(val))
		for _, k := range sortedKeys(val) {
			child, err := collapseMatchers(val[k], path+"."+k, rules)
			if err != nil {
				return nil, err
			}
			out[k] = child
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			child, err := collapseMatchers(item, fmt.Sprintf("%s[%d]", path, i), rules)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	default:
		return node, nil
	}
}

func collapseMatcherNode(kind interface{}, node map[string]interface{}, path string, rules map[string]MatchingRule) (interface{}, error) {
	kindStr, ok := kind.(string)
	if !ok {
		return nil, errors.Errorf("matcher type at %q is not a string", path)
	}

	example, hasExample := node[matcherValueKey]

	switch RuleKind(kindStr) {
	case RuleType:
		if !hasExample {
			return nil, errors.Errorf("type matcher at %q has no example value", path)
		}
		rules[path] = TypeRule()
	case RuleRegex:
		pattern, ok := node[matcherRegexKey].(string)
		if !ok {
			return nil, errors.Errorf("regex matcher at %q has no regex value", path)
		}
		if !hasExample {
			return nil, errors.Errorf("regex matcher at %q has no example value", path)
		}
		rule, err := RegexRule(pattern)
		if err != nil {
			return nil, err
		}
		rules[path] = rule
	case RuleEquality:
		if !hasExample {
			return nil, errors.Errorf("equality matcher at %q has no example value", path)
		}
		rules[path] = EqualityRule()
	default:
		return nil, errors.Errorf("unsupported matcher type %q at %q", kindStr, path)
	}

	return example, nil
}

// parseMatcherValue interprets a scalar setter value (path, header, query)
// that may itself be an annotated matcher node encoded as JSON.
func parseMatcherValue(value string, path string, rules map[string]MatchingRule) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return value, nil
	}

	var node map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &node); err != nil {
		// Not a matcher node, treat as a literal.
		return value, nil
	}
	kind, ok := node[matcherTypeKey]
	if !ok {
		return value, nil
	}

	example, err := collapseMatcherNode(kind, node, path, rules)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", example), nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
