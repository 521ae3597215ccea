package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// Checker is the single execution contract every rule representation is
// normalised to. Check returns nil for a valid value and a *FieldError
// otherwise; any other error means the check could not complete (for example
// a cancelled context).
type Checker interface {
	Check(ctx context.Context, value any, ev model.EvalCtx) error
	// Async reports whether Check may block and must run off the caller's
	// goroutine.
	Async() bool
}

// FieldError is a validation failure for one field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UnknownRuleError reports a mini-DSL token with no built-in checker.
type UnknownRuleError struct {
	Field string
	Token string
}

func (e *UnknownRuleError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: unknown rule %q", e.Token)
	}
	return fmt.Sprintf("validation: field %q: unknown rule %q", e.Field, e.Token)
}

// RuleArgumentError reports a known token with a malformed argument.
type RuleArgumentError struct {
	Field    string
	Token    string
	Argument string
	Err      error
}

func (e *RuleArgumentError) Error() string {
	prefix := "validation: "
	if e.Field != "" {
		prefix = fmt.Sprintf("validation: field %q: ", e.Field)
	}
	return fmt.Sprintf("%srule %q has invalid argument %q: %v", prefix, e.Token, e.Argument, e.Err)
}

func (e *RuleArgumentError) Unwrap() error {
	return e.Err
}

// Compile normalises a rule into a Checker. A nil rule yields a nil Checker.
func Compile(rule model.Rule) (Checker, error) {
	switch r := rule.(type) {
	case nil:
		return nil, nil
	case model.RuleString:
		return ParseRules(string(r))
	case model.SchemaRule:
		if r.Validator == nil {
			return nil, errors.New("validation: schema rule without validator")
		}
		return schemaChecker{validator: r.Validator}, nil
	case *model.SchemaRule:
		if r == nil || r.Validator == nil {
			return nil, errors.New("validation: schema rule without validator")
		}
		return schemaChecker{validator: r.Validator}, nil
	case model.CustomRule:
		if r == nil {
			return nil, errors.New("validation: custom rule is nil")
		}
		return customChecker{fn: r}, nil
	default:
		return nil, fmt.Errorf("validation: unsupported rule type %T", rule)
	}
}

type schemaChecker struct {
	validator model.ExternalValidator
}

func (c schemaChecker) Async() bool { return true }

func (c schemaChecker) Check(ctx context.Context, value any, ev model.EvalCtx) error {
	if _, err := c.validator.Validate(ctx, value); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return &FieldError{Message: verr.Message}
		}
		return &checkFailure{err: err, ev: ev}
	}
	return nil
}

type customChecker struct {
	fn model.CustomRule
}

func (c customChecker) Async() bool { return true }

func (c customChecker) Check(ctx context.Context, value any, ev model.EvalCtx) error {
	ok, msg := c.fn(ctx, value, ev)
	if err := ctx.Err(); err != nil {
		return err
	}
	if ok {
		return nil
	}
	if msg == "" {
		msg = localize(ev.Locale(), msgInvalid)
	}
	return &FieldError{Message: msg}
}

// checkFailure wraps an unexpected validator error. The runner reports it as
// a diagnostic and shows a generic message.
type checkFailure struct {
	err error
	ev  model.EvalCtx
}

func (e *checkFailure) Error() string { return e.err.Error() }

func (e *checkFailure) Unwrap() error { return e.err }

func (e *checkFailure) fieldError() *FieldError {
	return &FieldError{Message: localize(e.ev.Locale(), msgUnavailable)}
}
