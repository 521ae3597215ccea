package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// CUEValidator checks values against a CUE constraint such as
// `string & =~"^[a-z]+$"` or `{ name: string, age: >=18 }`.
type CUEValidator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
	source string
}

// CUE compiles a constraint. Compilation errors are returned immediately.
func CUE(source string) (*CUEValidator, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("validation: empty cue constraint")
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(source)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("validation: compile cue constraint: %w", err)
	}
	return &CUEValidator{ctx: ctx, schema: schema, source: source}, nil
}

// Source returns the constraint text.
func (v *CUEValidator) Source() string {
	if v == nil {
		return ""
	}
	return v.source
}

// Validate implements model.ExternalValidator. A constraint violation is
// reported as a *model.ValidationError.
func (v *CUEValidator) Validate(ctx context.Context, value any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// cue.Context is not safe for concurrent use.
	v.mu.Lock()
	defer v.mu.Unlock()

	encoded := v.ctx.Encode(value)
	if err := encoded.Err(); err != nil {
		return nil, fmt.Errorf("validation: encode value for cue: %w", err)
	}
	unified := v.schema.Unify(encoded)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &model.ValidationError{Message: cueMessage(err)}
	}
	return value, nil
}

func cueMessage(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	format, args := errs[0].Msg()
	return fmt.Sprintf(format, args...)
}

// OpenAPIValidator checks values against an OpenAPI 3 schema object.
type OpenAPIValidator struct {
	schema *openapi3.Schema
}

// OpenAPI decodes a JSON (or YAML-compatible JSON) schema object.
func OpenAPI(raw []byte) (*OpenAPIValidator, error) {
	var schema openapi3.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("validation: decode openapi schema: %w", err)
	}
	return OpenAPISchema(&schema)
}

// OpenAPISchema wraps an already loaded schema.
func OpenAPISchema(schema *openapi3.Schema) (*OpenAPIValidator, error) {
	if schema == nil {
		return nil, errors.New("validation: nil openapi schema")
	}
	return &OpenAPIValidator{schema: schema}, nil
}

// Validate implements model.ExternalValidator.
func (v *OpenAPIValidator) Validate(ctx context.Context, value any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	normalized, err := jsonRoundTrip(value)
	if err != nil {
		return nil, fmt.Errorf("validation: normalise value for openapi: %w", err)
	}
	if err := v.schema.VisitJSON(normalized, openapi3.MultiErrors()); err != nil {
		return nil, &model.ValidationError{Message: openAPIMessage(err)}
	}
	return value, nil
}

func openAPIMessage(err error) string {
	var multi openapi3.MultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		err = multi[0]
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) && schemaErr.Reason != "" {
		return schemaErr.Reason
	}
	return err.Error()
}

// jsonRoundTrip maps Go values onto the JSON shapes VisitJSON expects
// (float64 numbers, map[string]any objects).
func jsonRoundTrip(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	_ model.ExternalValidator = (*CUEValidator)(nil)
	_ model.ExternalValidator = (*OpenAPIValidator)(nil)
)
