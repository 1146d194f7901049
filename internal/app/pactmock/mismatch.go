package pactmock

import "fmt"

// Mismatch types, matching the keys used in exported mismatch documents.
const (
	MismatchMethod     = "MethodMismatch"
	MismatchPath       = "PathMismatch"
	MismatchQuery      = "QueryMismatch"
	MismatchHeader     = "HeaderMismatch"
	MismatchBody       = "BodyMismatch"
	MismatchBodyType   = "BodyTypeMismatch"
	MismatchUnexpected = "UnexpectedRequest"
)

// Mismatch records one discrepancy between an expected value (or rule) and
// what was actually observed, at a specific structural path.
type Mismatch struct {
	Type     string      `json:"type"`
	Path     string      `json:"path"`
	Expected interface{} `json:"expected,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
	Message  string      `json:"mismatch"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s at %s: %s", m.Type, m.Path, m.Message)
}

func mismatchf(kind, path string, expected, actual interface{}, format string, args ...interface{}) Mismatch {
	return Mismatch{
		Type:     kind,
		Path:     path,
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf(format, args...),
	}
}
