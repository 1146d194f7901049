package pactmock

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// Evaluator compares rule-annotated expected values against observed values.
// When Strict is set, keys present in the actual value but absent from the
// expected value are reported as mismatches; by default they are tolerated.
//
// Mismatches are produced in a deterministic pre-order traversal of the
// expected structure (object keys visited in sorted order) so diagnostics
// are reproducible across runs.
type Evaluator struct {
	Strict bool
}

// Evaluate walks a body spec against an actual decoded body.
func (e Evaluator) Evaluate(spec *BodySpec, actual interface{}) []Mismatch {
	if spec == nil {
		return nil
	}
	return e.walk("$.body", spec.Example, actual, spec.Rules)
}

func (e Evaluator) walk(path string, expected, actual interface{}, rules map[string]MatchingRule) []Mismatch {
	if rule, ok := rules[path]; ok {
		return e.applyRule(rule, path, expected, actual)
	}

	switch exp := expected.(type) {
	case map[string]interface{}:
		return e.walkMap(path, exp, actual, rules)
	case []interface{}:
		return e.walkSlice(path, exp, actual, rules)
	default:
		if !valuesEqual(exp, actual) {
			return []Mismatch{mismatchf(MismatchBody, path, exp, actual,
				"expected %v to equal %v", actual, exp)}
		}
		return nil
	}
}

func (e Evaluator) walkMap(path string, expected map[string]interface{}, actual interface{}, rules map[string]MatchingRule) []Mismatch {
	actualMap, ok := actual.(map[string]interface{})
	if !ok {
		return []Mismatch{mismatchf(MismatchBodyType, path, "object", jsonTypeOf(actual),
			"expected an object but got %s", jsonTypeOf(actual))}
	}

	var out []Mismatch
	for _, k := range sortedKeys(expected) {
		childPath := path + "." + k
		actualChild, present := actualMap[k]
		if !present {
			out = append(out, mismatchf(MismatchBody, childPath, expected[k], nil,
				"expected key %q is missing", k))
			continue
		}
		out = append(out, e.walk(childPath, expected[k], actualChild, rules)...)
	}

	if e.Strict {
		for _, k := range sortedKeys(actualMap) {
			if _, expectedKey := expected[k]; !expectedKey {
				out = append(out, mismatchf(MismatchBody, path+"."+k, nil, actualMap[k],
					"unexpected key %q", k))
			}
		}
	}
	return out
}

func (e Evaluator) walkSlice(path string, expected []interface{}, actual interface{}, rules map[string]MatchingRule) []Mismatch {
	actualSlice, ok := actual.([]interface{})
	if !ok {
		return []Mismatch{mismatchf(MismatchBodyType, path, "array", jsonTypeOf(actual),
			"expected an array but got %s", jsonTypeOf(actual))}
	}

	var out []Mismatch
	for i, item := range expected {
		childPath := fmt.Sprintf("%s[%d]", path, i)
		if i >= len(actualSlice) {
			out = append(out, mismatchf(MismatchBody, childPath, item, nil,
				"expected entry %d is missing", i))
			continue
		}
		out = append(out, e.walk(childPath, item, actualSlice[i], rules)...)
	}

	if e.Strict && len(actualSlice) > len(expected) {
		for i := len(expected); i < len(actualSlice); i++ {
			out = append(out, mismatchf(MismatchBody, fmt.Sprintf("%s[%d]", path, i), nil, actualSlice[i],
				"unexpected entry %d", i))
		}
	}
	return out
}

func (e Evaluator) applyRule(rule MatchingRule, path string, expected, actual interface{}) []Mismatch {
	switch rule.Kind {
	case RuleType:
		expectedType := jsonTypeOf(expected)
		actualType := jsonTypeOf(actual)
		if expectedType != actualType {
			return []Mismatch{mismatchf(MismatchBodyType, path, expectedType, actualType,
				"expected a value of type %s but got %s", expectedType, actualType)}
		}
		return nil
	case RuleRegex:
		if !rule.MatchString(stringify(actual)) {
			return []Mismatch{mismatchf(MismatchBody, path, rule.Pattern, actual,
				"%q does not match pattern %q", stringify(actual), rule.Pattern)}
		}
		return nil
	default:
		if !valuesEqual(expected, actual) {
			return []Mismatch{mismatchf(MismatchBody, path, expected, actual,
				"expected %v to equal %v", actual, expected)}
		}
		return nil
	}
}

// EvaluateRequest compares an expected request description against the
// document built from an inbound request. Method and path misses never reach
// here; the caller only evaluates candidates selected by method+path.
func (e Evaluator) EvaluateRequest(req *RequestSpec, doc RequestDocument) []Mismatch {
	var out []Mismatch

	method, _ := doc["method"].(string)
	if !strings.EqualFold(req.Method, method) {
		out = append(out, mismatchf(MismatchMethod, "$.method", req.Method, method,
			"expected method %s but got %s", req.Method, method))
	}

	out = append(out, e.evaluatePath(req, doc)...)
	out = append(out, e.evaluateParams(MismatchQuery, "$.query", req.Query, req.Rules, doc)...)
	out = append(out, e.evaluateParams(MismatchHeader, "$.headers", req.Headers, req.Rules, doc)...)
	out = append(out, e.Evaluate(req.Body, doc["body"])...)
	return out
}

func (e Evaluator) evaluatePath(req *RequestSpec, doc RequestDocument) []Mismatch {
	actualPath, _ := doc["path"].(string)
	if rule, ok := req.Rules["$.path"]; ok && rule.Kind == RuleRegex {
		if !rule.MatchString(actualPath) {
			return []Mismatch{mismatchf(MismatchPath, "$.path", rule.Pattern, actualPath,
				"path %q does not match pattern %q", actualPath, rule.Pattern)}
		}
		return nil
	}
	if actualPath != req.Path {
		return []Mismatch{mismatchf(MismatchPath, "$.path", req.Path, actualPath,
			"expected path %q but got %q", req.Path, actualPath)}
	}
	return nil
}

// evaluateParams checks named scalar parameters (headers, query values)
// against the request document, resolving actual values by jsonpath so
// nested query keys resolve the same way they were parsed.
func (e Evaluator) evaluateParams(kind, root string, expected map[string]string, rules map[string]MatchingRule, doc RequestDocument) []Mismatch {
	var out []Mismatch
	for _, name := range sortedStringKeys(expected) {
		path := root + "." + name
		actual, err := jsonpath.Get(lookupPath(root, name), map[string]interface{}(doc))
		if err != nil || actual == nil {
			out = append(out, mismatchf(kind, path, expected[name], nil,
				"expected %q with value %q but it is missing", name, expected[name]))
			continue
		}

		actualStr := stringify(actual)
		if rule, ok := rules[path]; ok {
			out = append(out, e.applyRule(rule, path, expected[name], actualStr)...)
			continue
		}
		if actualStr != expected[name] {
			out = append(out, mismatchf(kind, path, expected[name], actualStr,
				"expected %q with value %q but got %q", name, expected[name], actualStr))
		}
	}
	return out
}

func valuesEqual(expected, actual interface{}) bool {
	return reflect.DeepEqual(expected, actual)
}

func jsonTypeOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case string:
		return "string"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
