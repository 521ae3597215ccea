package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"

	"github.com/goliatone/go-schemaform/pkg/model"
)

func english() model.EvalCtx {
	return model.NewEvalCtx(nil, nil, language.English)
}

func messageOf(t *testing.T, checker Checker, value any, ev model.EvalCtx) string {
	t.Helper()
	err := checker.Check(context.Background(), value, ev)
	if err == nil {
		return ""
	}
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FieldError, got %T: %v", err, err)
	}
	return fe.Message
}

func TestRequiredMinScenario(t *testing.T) {
	t.Parallel()

	checker, err := Compile(model.RuleString("required|min:5"))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if checker.Async() {
		t.Fatalf("expected mini-DSL checker to be synchronous")
	}

	if got := messageOf(t, checker, "ab", english()); got != "Must be at least 5 characters" {
		t.Fatalf("unexpected message for short value: %q", got)
	}
	if got := messageOf(t, checker, "abcdef", english()); got != "" {
		t.Fatalf("expected abcdef to pass, got %q", got)
	}
	if got := messageOf(t, checker, "", english()); got != "This field is required" {
		t.Fatalf("unexpected message for empty value: %q", got)
	}
}

func TestRuleTokens(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rule  string
		value any
		want  string
	}{
		{rule: "required", value: nil, want: "This field is required"},
		{rule: "required", value: []any{}, want: "This field is required"},
		{rule: "required", value: "  ", want: ""},
		{rule: "min:5", value: "", want: ""},
		{rule: "min:18", value: 12, want: "Must be at least 18"},
		{rule: "min:18", value: 18.0, want: ""},
		{rule: "max:3", value: "héllo", want: "Must be at most 3 characters"},
		{rule: "max:2", value: []any{"a", "b", "c"}, want: "Select at most 2 items"},
		{rule: "min:1", value: []string{}, want: ""},
		{rule: "len:4", value: "1234", want: ""},
		{rule: "len:4", value: "123", want: "Must be exactly 4 characters"},
		{rule: "email", value: "ada@example.com", want: ""},
		{rule: "email", value: "ada@", want: "Must be a valid email address"},
		{rule: "url", value: "https://example.com/x", want: ""},
		{rule: "url", value: "example", want: "Must be a valid URL"},
		{rule: "numeric", value: "3.14", want: ""},
		{rule: "numeric", value: "pi", want: "Must be a number"},
		{rule: "integer", value: 4.0, want: ""},
		{rule: "integer", value: 4.5, want: "Must be a whole number"},
		{rule: "alpha", value: "Zoë", want: ""},
		{rule: "alpha", value: "R2D2", want: "Must contain only letters"},
		{rule: "alphanum", value: "R2D2", want: ""},
		{rule: "in:user, admin", value: "admin", want: ""},
		{rule: "in:user,admin", value: "root", want: "Must be one of: user, admin"},
		{rule: "required|pattern:^(cat|dog)$", value: "dog", want: ""},
		{rule: "required|pattern:^(cat|dog)$", value: "cow", want: "Has an invalid format"},
	}

	for _, tc := range cases {
		checker, err := ParseRules(tc.rule)
		if err != nil {
			t.Fatalf("%s: ParseRules returned error: %v", tc.rule, err)
		}
		if got := messageOf(t, checker, tc.value, english()); got != tc.want {
			t.Fatalf("%s on %#v: got %q want %q", tc.rule, tc.value, got, tc.want)
		}
	}
}

func TestFirstFailingTokenWins(t *testing.T) {
	t.Parallel()

	checker, err := ParseRules("min:8|email")
	if err != nil {
		t.Fatalf("ParseRules returned error: %v", err)
	}
	if got := messageOf(t, checker, "a@b", english()); got != "Must be at least 8 characters" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestParseRulesErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseRules("required|shiny")
	var unknown *UnknownRuleError
	if !errors.As(err, &unknown) || unknown.Token != "shiny" {
		t.Fatalf("expected UnknownRuleError for shiny, got %v", err)
	}

	for _, rule := range []string{"min", "min:abc", "email:x", "pattern:(", "len:"} {
		_, err := ParseRules(rule)
		var argErr *RuleArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("%s: expected RuleArgumentError, got %v", rule, err)
		}
	}

	checker, err := ParseRules("  ")
	if err != nil {
		t.Fatalf("empty rule returned error: %v", err)
	}
	if got := messageOf(t, checker, nil, english()); got != "" {
		t.Fatalf("expected empty rule to accept anything, got %q", got)
	}
}

func TestLocalizedMessages(t *testing.T) {
	t.Parallel()

	checker, err := ParseRules("required|min:5")
	if err != nil {
		t.Fatalf("ParseRules returned error: %v", err)
	}
	german := model.NewEvalCtx(nil, nil, language.German)

	if got := messageOf(t, checker, "", german); got != "Dieses Feld ist erforderlich" {
		t.Fatalf("unexpected german required message %q", got)
	}
	if got := messageOf(t, checker, "ab", german); got != "Muss mindestens 5 Zeichen lang sein" {
		t.Fatalf("unexpected german min message %q", got)
	}

	undetermined := model.NewEvalCtx(nil, nil, language.Und)
	if got := messageOf(t, checker, "", undetermined); got != "This field is required" {
		t.Fatalf("expected english fallback, got %q", got)
	}
}

func TestKnownRules(t *testing.T) {
	t.Parallel()

	want := []string{"alpha", "alphanum", "email", "in", "integer", "len", "max", "min", "numeric", "pattern", "required", "url"}
	if diff := cmp.Diff(want, KnownRules()); diff != "" {
		t.Fatalf("known rules mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileCustomRule(t *testing.T) {
	t.Parallel()

	checker, err := Compile(model.CustomRule(func(_ context.Context, value any, _ model.EvalCtx) (bool, string) {
		s, _ := value.(string)
		if strings.Contains(s, "error") {
			return false, "value must not contain error"
		}
		if s == "meh" {
			return false, ""
		}
		return true, ""
	}))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if !checker.Async() {
		t.Fatalf("expected custom rule to run asynchronously")
	}
	if got := messageOf(t, checker, "an error here", english()); got != "value must not contain error" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := messageOf(t, checker, "meh", english()); got != "Is invalid" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := messageOf(t, checker, "ok", english()); got != "" {
		t.Fatalf("expected ok to pass, got %q", got)
	}

	if c, err := Compile(nil); c != nil || err != nil {
		t.Fatalf("expected nil rule to compile to nil, got %v %v", c, err)
	}
	if _, err := Compile(model.SchemaRule{}); err == nil {
		t.Fatalf("expected schema rule without validator to fail")
	}
}
