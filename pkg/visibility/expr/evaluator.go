package expr

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// Predicate is a compiled, dependency-free rule expression.
//
// Supported operators:
// - boolean checks: `enabled`
// - comparisons: `field == true`, `role != "admin"`, `count == 3`, `age >= 18`
// - boolean composition: `a == true && b != false`, `a || b`, `!(a || b)`
//
// Values are read through model.EvalCtx.Lookup (dot-path traversal, with the
// `extras.` prefix reading host context).
type Predicate struct {
	source string
	root   exprNode
	refs   []string
}

var _ model.Predicate = (*Predicate)(nil)
var _ model.Referencer = (*Predicate)(nil)

// Compile parses rule once. An empty rule compiles to an always-true predicate.
func Compile(rule string) (*Predicate, error) {
	trimmed := strings.TrimSpace(rule)
	p := &Predicate{source: trimmed}
	if trimmed == "" {
		return p, nil
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return p, nil
	}

	root, err := parseExpression(tokens)
	if err != nil {
		return nil, err
	}
	p.root = root
	p.refs = collectReferences(tokens)
	return p, nil
}

// MustCompile panics when rule does not parse. Useful for tests and static
// schemas.
func MustCompile(rule string) *Predicate {
	p, err := Compile(rule)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval evaluates the predicate against the snapshot.
func (p *Predicate) Eval(ctx model.EvalCtx) (bool, error) {
	if p == nil || p.root == nil {
		return true, nil
	}
	return p.root.eval(ctx)
}

// References lists the value identifiers the expression reads, sorted.
// Identifiers under `extras.` are host context and are not reported.
func (p *Predicate) References() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.refs...)
}

// String returns the source expression.
func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

func collectReferences(tokens []token) []string {
	seen := make(map[string]struct{})
	for idx, tok := range tokens {
		if tok.kind != tokenIdentifier {
			continue
		}
		// bare identifiers on the right of a comparison are string literals
		if idx > 0 && isComparison(tokens[idx-1].kind) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(tok.raw), "extras.") {
			continue
		}
		seen[tok.raw] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

func isComparison(kind tokenKind) bool {
	switch kind {
	case tokenEq, tokenNeq, tokenLt, tokenLte, tokenGt, tokenGte:
		return true
	default:
		return false
	}
}

type token struct {
	kind tokenKind
	raw  string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	next := func() byte {
		if i >= len(input) {
			return 0
		}
		return input[i]
	}

	consume := func() byte {
		if i >= len(input) {
			return 0
		}
		ch := input[i]
		i++
		return ch
	}

	for i < len(input) {
		ch := next()
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			i++
			continue
		}

		switch ch {
		case '(':
			consume()
			tokens = append(tokens, token{kind: tokenLParen, raw: "("})
			continue
		case ')':
			consume()
			tokens = append(tokens, token{kind: tokenRParen, raw: ")"})
			continue
		case '!':
			consume()
			if next() == '=' {
				consume()
				tokens = append(tokens, token{kind: tokenNeq, raw: "!="})
				continue
			}
			tokens = append(tokens, token{kind: tokenNot, raw: "!"})
			continue
		case '<', '>':
			consume()
			kind, raw := tokenLt, "<"
			if ch == '>' {
				kind, raw = tokenGt, ">"
			}
			if next() == '=' {
				consume()
				kind++
				raw += "="
			}
			tokens = append(tokens, token{kind: kind, raw: raw})
			continue
		case '=':
			consume()
			if next() != '=' {
				return nil, fmt.Errorf("visibility/expr: unexpected '='; use '=='")
			}
			consume()
			tokens = append(tokens, token{kind: tokenEq, raw: "=="})
			continue
		case '&':
			consume()
			if next() != '&' {
				return nil, fmt.Errorf("visibility/expr: unexpected '&'; use '&&'")
			}
			consume()
			tokens = append(tokens, token{kind: tokenAnd, raw: "&&"})
			continue
		case '|':
			consume()
			if next() != '|' {
				return nil, fmt.Errorf("visibility/expr: unexpected '|'; use '||'")
			}
			consume()
			tokens = append(tokens, token{kind: tokenOr, raw: "||"})
			continue
		case '"', '\'':
			quote := consume()
			start := i
			escaped := false
			closed := false
			for i < len(input) {
				c := consume()
				if escaped {
					escaped = false
					continue
				}
				if c == '\\' {
					escaped = true
					continue
				}
				if c == quote {
					body := input[start : i-1]
					if quote == '\'' {
						body = strings.ReplaceAll(body, `"`, `\"`)
						body = strings.ReplaceAll(body, `\'`, `'`)
					}
					value, err := strconv.Unquote(`"` + body + `"`)
					if err != nil {
						return nil, fmt.Errorf("visibility/expr: invalid string literal: %w", err)
					}
					tokens = append(tokens, token{kind: tokenString, raw: value})
					closed = true
					break
				}
			}
			if !closed {
				return nil, errors.New("visibility/expr: unterminated string literal")
			}
			continue
		}

		start := i
		for i < len(input) {
			c := input[i]
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')' ||
				c == '!' || c == '=' || c == '&' || c == '|' || c == '<' || c == '>' {
				break
			}
			i++
		}
		raw := strings.TrimSpace(input[start:i])
		if raw == "" {
			continue
		}
		switch strings.ToLower(raw) {
		case "true", "false":
			tokens = append(tokens, token{kind: tokenBool, raw: strings.ToLower(raw)})
		case "null", "nil":
			tokens = append(tokens, token{kind: tokenNull, raw: "null"})
		default:
			if looksLikeNumber(raw) {
				tokens = append(tokens, token{kind: tokenNumber, raw: raw})
			} else {
				tokens = append(tokens, token{kind: tokenIdentifier, raw: raw})
			}
		}
	}

	return tokens, nil
}

func looksLikeNumber(raw string) bool {
	if raw == "" {
		return false
	}
	ch := raw[0]
	return (ch >= '0' && ch <= '9') || ch == '-' || ch == '+'
}

type exprNode interface {
	eval(ctx model.EvalCtx) (bool, error)
}

type exprOr struct {
	left  exprNode
	right exprNode
}

func (n exprOr) eval(ctx model.EvalCtx) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return n.right.eval(ctx)
}

type exprAnd struct {
	left  exprNode
	right exprNode
}

func (n exprAnd) eval(ctx model.EvalCtx) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return n.right.eval(ctx)
}

type exprNot struct {
	inner exprNode
}

func (n exprNot) eval(ctx model.EvalCtx) (bool, error) {
	ok, err := n.inner.eval(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type literalKind int

const (
	litString literalKind = iota
	litNumber
	litBool
	litNull
)

type literal struct {
	kind literalKind
	raw  string
}

type exprCompare struct {
	identifier string
	op         tokenKind
	literal    literal
}

func (n exprCompare) eval(ctx model.EvalCtx) (bool, error) {
	value, ok := ctx.Lookup(n.identifier)
	if !ok {
		value = nil
	}

	switch n.literal.kind {
	case litNull:
		isNull := value == nil
		switch n.op {
		case tokenEq:
			return isNull, nil
		case tokenNeq:
			return !isNull, nil
		}
		return false, fmt.Errorf("visibility/expr: unsupported operator %q for null literal", n.opString())
	case litBool:
		want := n.literal.raw == "true"
		got, _ := coerceBool(value)
		switch n.op {
		case tokenEq:
			return got == want, nil
		case tokenNeq:
			return got != want, nil
		}
		return false, fmt.Errorf("visibility/expr: unsupported operator %q for bool literal", n.opString())
	case litNumber:
		want, err := strconv.ParseFloat(n.literal.raw, 64)
		if err != nil {
			return false, fmt.Errorf("visibility/expr: invalid number literal %q", n.literal.raw)
		}
		got, ok := coerceNumber(value)
		if !ok {
			if n.op == tokenNeq {
				return true, nil
			}
			return false, nil
		}
		return compareOrdered(n.op, got, want), nil
	case litString:
		want := n.literal.raw
		got := coerceString(value)
		return compareOrdered(n.op, got, want), nil
	default:
		return false, fmt.Errorf("visibility/expr: unsupported literal")
	}
}

func compareOrdered[T float64 | string](op tokenKind, got, want T) bool {
	switch op {
	case tokenEq:
		return got == want
	case tokenNeq:
		return got != want
	case tokenLt:
		return got < want
	case tokenLte:
		return got <= want
	case tokenGt:
		return got > want
	case tokenGte:
		return got >= want
	default:
		return false
	}
}

func (n exprCompare) opString() string {
	switch n.op {
	case tokenEq:
		return "=="
	case tokenNeq:
		return "!="
	case tokenLt:
		return "<"
	case tokenLte:
		return "<="
	case tokenGt:
		return ">"
	case tokenGte:
		return ">="
	default:
		return "?"
	}
}

type exprTruthy struct {
	identifier string
}

func (n exprTruthy) eval(ctx model.EvalCtx) (bool, error) {
	value, ok := ctx.Lookup(n.identifier)
	if !ok {
		return false, nil
	}
	return truthy(value), nil
}

type tokenStream struct {
	tokens []token
	pos    int
}

func parseExpression(tokens []token) (exprNode, error) {
	stream := &tokenStream{tokens: tokens}
	node, err := parseOr(stream)
	if err != nil {
		return nil, err
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("visibility/expr: unexpected token %q", stream.tokens[stream.pos].raw)
	}
	return node, nil
}

func parseOr(stream *tokenStream) (exprNode, error) {
	left, err := parseAnd(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenOr) {
		right, err := parseAnd(stream)
		if err != nil {
			return nil, err
		}
		left = exprOr{left: left, right: right}
	}
	return left, nil
}

func parseAnd(stream *tokenStream) (exprNode, error) {
	left, err := parseUnary(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenAnd) {
		right, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		left = exprAnd{left: left, right: right}
	}
	return left, nil
}

func parseUnary(stream *tokenStream) (exprNode, error) {
	if stream.match(tokenNot) {
		inner, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		return exprNot{inner: inner}, nil
	}
	return parsePrimary(stream)
}

func parsePrimary(stream *tokenStream) (exprNode, error) {
	if stream.match(tokenLParen) {
		inner, err := parseOr(stream)
		if err != nil {
			return nil, err
		}
		if !stream.match(tokenRParen) {
			return nil, errors.New("visibility/expr: missing closing ')'")
		}
		return inner, nil
	}

	ident, ok := stream.consume(tokenIdentifier)
	if !ok {
		if stream.pos >= len(stream.tokens) {
			return nil, errors.New("visibility/expr: empty expression")
		}
		return nil, fmt.Errorf("visibility/expr: expected identifier, got %q", stream.tokens[stream.pos].raw)
	}

	if stream.pos < len(stream.tokens) && isComparison(stream.tokens[stream.pos].kind) {
		op := stream.tokens[stream.pos].kind
		stream.pos++
		lit, err := stream.consumeLiteral()
		if err != nil {
			return nil, err
		}
		if op != tokenEq && op != tokenNeq && (lit.kind == litBool || lit.kind == litNull) {
			return nil, fmt.Errorf("visibility/expr: ordering comparison against %q", lit.raw)
		}
		return exprCompare{identifier: ident.raw, op: op, literal: lit}, nil
	}

	return exprTruthy{identifier: ident.raw}, nil
}

func (s *tokenStream) match(kind tokenKind) bool {
	if s.pos >= len(s.tokens) {
		return false
	}
	if s.tokens[s.pos].kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) consume(kind tokenKind) (token, bool) {
	if s.pos >= len(s.tokens) {
		return token{}, false
	}
	if s.tokens[s.pos].kind != kind {
		return token{}, false
	}
	out := s.tokens[s.pos]
	s.pos++
	return out, true
}

func (s *tokenStream) consumeLiteral() (literal, error) {
	if s.pos >= len(s.tokens) {
		return literal{}, errors.New("visibility/expr: missing literal")
	}
	tok := s.tokens[s.pos]
	s.pos++
	switch tok.kind {
	case tokenString:
		return literal{kind: litString, raw: tok.raw}, nil
	case tokenNumber:
		return literal{kind: litNumber, raw: tok.raw}, nil
	case tokenBool:
		return literal{kind: litBool, raw: strings.ToLower(tok.raw)}, nil
	case tokenNull:
		return literal{kind: litNull, raw: "null"}, nil
	case tokenIdentifier:
		// Bare identifiers are treated as strings to keep the evaluator forgiving.
		return literal{kind: litString, raw: tok.raw}, nil
	default:
		return literal{}, fmt.Errorf("visibility/expr: expected literal, got %q", tok.raw)
	}
}

func truthy(value any) bool {
	if value == nil {
		return false
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case float32:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func coerceBool(value any) (bool, bool) {
	if value == nil {
		return false, false
	}
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return parsed, true
		}
		return strings.TrimSpace(v) != "", true
	default:
		return truthy(value), true
	}
}

func coerceNumber(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceString(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(value)
	}
}
