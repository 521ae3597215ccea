// Package exprlang compiles predicates written in the expr-lang language
// (https://expr-lang.org). Schema documents select it with the "expr:" prefix,
// e.g. `visible: "expr: role in ['admin', 'owner'] && len(name) > 2"`.
package exprlang

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// Prefix marks a rule string as an expr-lang program.
const Prefix = "expr:"

// extrasIdentifier exposes host context inside programs.
const extrasIdentifier = "extras"

// Predicate is a compiled boolean expr-lang program.
type Predicate struct {
	source  string
	program *vm.Program
	refs    []string
}

var _ model.Predicate = (*Predicate)(nil)
var _ model.Referencer = (*Predicate)(nil)

// Compile builds a predicate. The optional Prefix is stripped.
func Compile(source string) (*Predicate, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(source), Prefix))
	if trimmed == "" {
		return nil, fmt.Errorf("exprlang: empty expression")
	}
	program, err := expr.Compile(trimmed, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("exprlang: compile %q: %w", trimmed, err)
	}
	return &Predicate{
		source:  trimmed,
		program: program,
		refs:    collectReferences(program),
	}, nil
}

// Eval runs the program with the field values as top-level variables and the
// host context under `extras`.
func (p *Predicate) Eval(ctx model.EvalCtx) (bool, error) {
	env := ctx.Values()
	env[extrasIdentifier] = ctx.Extras()

	out, err := expr.Run(p.program, env)
	if err != nil {
		return false, fmt.Errorf("exprlang: run %q: %w", p.source, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("exprlang: %q returned %T, want bool", p.source, out)
	}
	return result, nil
}

// References lists the top-level identifiers the program reads.
func (p *Predicate) References() []string {
	return append([]string(nil), p.refs...)
}

// String returns the expression without the prefix.
func (p *Predicate) String() string {
	return p.source
}

type referenceCollector struct {
	names map[string]struct{}
}

func (c *referenceCollector) Visit(node *ast.Node) {
	ident, ok := (*node).(*ast.IdentifierNode)
	if !ok || ident.Value == "" || ident.Value == extrasIdentifier {
		return
	}
	c.names[ident.Value] = struct{}{}
}

func collectReferences(program *vm.Program) []string {
	collector := &referenceCollector{names: make(map[string]struct{})}
	node := program.Node()
	ast.Walk(&node, collector)

	out := make([]string, 0, len(collector.names))
	for name := range collector.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
