package model

import "time"

// FieldState is derived from values and never persisted.
type FieldState struct {
	Visible        bool     `json:"visible"`
	Disabled       bool     `json:"disabled"`
	Readonly       bool     `json:"readonly"`
	Options        []Option `json:"options,omitempty"`
	OptionsPending bool     `json:"optionsPending,omitempty"`
	Error          string   `json:"error,omitempty"`
	Validating     bool     `json:"validating,omitempty"`
}

// DefaultFieldState is the state of a field with no declared predicates.
func DefaultFieldState() FieldState {
	return FieldState{Visible: true}
}

// Clone returns a copy that does not share the options slice.
func (s FieldState) Clone() FieldState {
	out := s
	if s.Options != nil {
		out.Options = append([]Option(nil), s.Options...)
	}
	return out
}

// DiagnosticKind classifies non-fatal evaluation problems.
type DiagnosticKind string

const (
	DiagnosticPredicate   DiagnosticKind = "predicate"
	DiagnosticOptions     DiagnosticKind = "options"
	DiagnosticValidation  DiagnosticKind = "validation"
	DiagnosticPersistence DiagnosticKind = "persistence"
)

// Diagnostic reports an error that was absorbed into state rather than
// returned to the caller.
type Diagnostic struct {
	FormID string
	Field  string
	Kind   DiagnosticKind
	Aspect string
	Err    error
	Time   time.Time
}
