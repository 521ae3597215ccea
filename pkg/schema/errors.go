package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyFieldName is returned for a field definition without a name.
	ErrEmptyFieldName = errors.New("schema: field name is required")
	// ErrPersistKeyRequired is returned when persistence is enabled without a
	// storage key.
	ErrPersistKeyRequired = errors.New("schema: persist key is required")
)

// DuplicateFieldError reports two definitions sharing a name.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("schema: duplicate field %q", e.Field)
}

// UnknownDependencyError reports a dependsOn entry naming no declared field.
type UnknownDependencyError struct {
	Field      string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("schema: field %q depends on unknown field %q", e.Field, e.Dependency)
}

// CyclicDependencyError reports a cycle in the dependsOn graph. Path starts
// and ends with the same field.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("schema: cyclic dependency %s", strings.Join(e.Path, " -> "))
}

// UnknownWidgetError reports a component tag with no registered widget.
type UnknownWidgetError struct {
	Field     string
	Component string
}

func (e *UnknownWidgetError) Error() string {
	return fmt.Sprintf("schema: field %q uses unknown component %q", e.Field, e.Component)
}

// RuleError wraps a rule that failed to compile for a field.
type RuleError struct {
	Field string
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("schema: field %q: %v", e.Field, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Warning is a non-fatal finding produced during normalization.
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}
