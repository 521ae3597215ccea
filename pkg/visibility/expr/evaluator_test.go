package expr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"

	"github.com/goliatone/go-schemaform/pkg/model"
)

func evalCtx(values map[string]any) model.EvalCtx {
	return model.NewEvalCtx(values, map[string]any{"role": "editor"}, language.English)
}

func mustEval(t *testing.T, rule string, values map[string]any) bool {
	t.Helper()
	p, err := Compile(rule)
	if err != nil {
		t.Fatalf("Compile(%q) returned error: %v", rule, err)
	}
	ok, err := p.Eval(evalCtx(values))
	if err != nil {
		t.Fatalf("Eval(%q) returned error: %v", rule, err)
	}
	return ok
}

func TestPredicateBooleanComparison(t *testing.T) {
	t.Parallel()

	if !mustEval(t, "enabled == true", map[string]any{"enabled": true}) {
		t.Fatalf("expected true")
	}
	if !mustEval(t, "enabled == true", map[string]any{"enabled": "true"}) {
		t.Fatalf("expected true for string true")
	}
}

func TestPredicateTruthyAndNot(t *testing.T) {
	t.Parallel()

	if !mustEval(t, "enabled", map[string]any{"enabled": true}) {
		t.Fatalf("expected true")
	}
	if !mustEval(t, "!enabled", map[string]any{"enabled": false}) {
		t.Fatalf("expected true for !false")
	}
	if mustEval(t, "missing", map[string]any{}) {
		t.Fatalf("expected false for missing identifier")
	}
}

func TestPredicateBareIdentifierLiteral(t *testing.T) {
	t.Parallel()

	if !mustEval(t, "role == admin", map[string]any{"role": "admin"}) {
		t.Fatalf("expected role == admin to match")
	}
	if mustEval(t, "role == admin", map[string]any{"role": "user"}) {
		t.Fatalf("expected role == admin to fail for user")
	}
	if !mustEval(t, `role == 'admin'`, map[string]any{"role": "admin"}) {
		t.Fatalf("expected single-quoted literal to match")
	}
}

func TestPredicateOrderedComparison(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule   string
		values map[string]any
		want   bool
	}{
		{"age >= 18", map[string]any{"age": 18}, true},
		{"age >= 18", map[string]any{"age": 17.5}, false},
		{"age < 18", map[string]any{"age": "12"}, true},
		{"age > 18", map[string]any{}, false},
		{"age != 18", map[string]any{}, true},
		{`name <= "m"`, map[string]any{"name": "alice"}, true},
	}
	for _, tt := range tests {
		if got := mustEval(t, tt.rule, tt.values); got != tt.want {
			t.Fatalf("%s with %v: got %v want %v", tt.rule, tt.values, got, tt.want)
		}
	}
}

func TestPredicateDotLookupAndExtras(t *testing.T) {
	t.Parallel()

	if !mustEval(t, `cta.headline == "Hello"`, map[string]any{
		"cta": map[string]any{"headline": "Hello"},
	}) {
		t.Fatalf("expected true for nested map lookup")
	}
	if !mustEval(t, `extras.role == editor`, map[string]any{}) {
		t.Fatalf("expected extras lookup to match")
	}
}

func TestPredicateNullLiteral(t *testing.T) {
	t.Parallel()

	if !mustEval(t, "missing == null", map[string]any{}) {
		t.Fatalf("expected true for missing == null")
	}
	if !mustEval(t, "enabled != null", map[string]any{"enabled": false}) {
		t.Fatalf("expected true for present != null")
	}
}

func TestPredicateBooleanComposition(t *testing.T) {
	t.Parallel()

	rule := `enabled == true && (role == "admin" || role == "owner")`
	if !mustEval(t, rule, map[string]any{"enabled": true, "role": "owner"}) {
		t.Fatalf("expected true for grouped disjunction")
	}
	if mustEval(t, rule, map[string]any{"enabled": true, "role": "user"}) {
		t.Fatalf("expected false for conjunction mismatch")
	}
}

func TestPredicateEmptyRuleIsTrue(t *testing.T) {
	t.Parallel()

	if !mustEval(t, "  ", nil) {
		t.Fatalf("expected empty rule to evaluate true")
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	for _, rule := range []string{
		"role = admin",
		"a & b",
		`name == "open`,
		"(a || b",
		"a ==",
		"flag > true",
	} {
		if _, err := Compile(rule); err == nil {
			t.Fatalf("expected Compile(%q) to fail", rule)
		}
	}
}

func TestPredicateReferences(t *testing.T) {
	t.Parallel()

	p := MustCompile(`role == admin && (extras.beta || country != "US") && !locked`)
	want := []string{"country", "locked", "role"}
	if diff := cmp.Diff(want, p.References()); diff != "" {
		t.Fatalf("references mismatch (-want +got):\n%s", diff)
	}
}
