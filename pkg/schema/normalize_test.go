package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/validation"
	"github.com/goliatone/go-schemaform/pkg/visibility/expr"
	"github.com/goliatone/go-schemaform/pkg/widgets"
)

func fields(defs ...model.Field) model.Schema {
	return model.Schema{Name: "test", Fields: defs}
}

func TestNormalizeBuildsReverseIndex(t *testing.T) {
	t.Parallel()

	n, err := Normalize(fields(
		model.Field{Name: "country", Component: "Select"},
		model.Field{Name: "state", Component: "Select", DependsOn: []string{"country"}},
		model.Field{Name: "city", Component: "Select", DependsOn: []string{"country", "state", "country"}},
		model.Field{Name: "note"},
	))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if diff := cmp.Diff([]string{"state", "city"}, n.Dependents("country")); diff != "" {
		t.Fatalf("dependents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"city"}, n.Dependents("state")); diff != "" {
		t.Fatalf("dependents mismatch (-want +got):\n%s", diff)
	}
	if got := n.Dependents("note"); len(got) != 0 {
		t.Fatalf("expected no dependents for note, got %v", got)
	}
	if diff := cmp.Diff([]string{"country", "state", "city", "note"}, n.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	note, _ := n.Field("note")
	if note.Component != widgets.WidgetInput {
		t.Fatalf("expected empty component to default to Input, got %q", note.Component)
	}
	city, _ := n.Field("city")
	if diff := cmp.Diff([]string{"country", "state"}, city.DependsOn); diff != "" {
		t.Fatalf("expected deduplicated dependsOn (-want +got):\n%s", diff)
	}
}

func TestNormalizeStructuralErrors(t *testing.T) {
	t.Parallel()

	_, err := Normalize(fields(model.Field{Name: "a"}, model.Field{Name: "a"}))
	var dup *DuplicateFieldError
	if !errors.As(err, &dup) || dup.Field != "a" {
		t.Fatalf("expected DuplicateFieldError, got %v", err)
	}

	if _, err := Normalize(fields(model.Field{Name: " "})); !errors.Is(err, ErrEmptyFieldName) {
		t.Fatalf("expected ErrEmptyFieldName, got %v", err)
	}

	_, err = Normalize(fields(model.Field{Name: "a", DependsOn: []string{"ghost"}}))
	var unknown *UnknownDependencyError
	if !errors.As(err, &unknown) || unknown.Dependency != "ghost" {
		t.Fatalf("expected UnknownDependencyError, got %v", err)
	}

	_, err = Normalize(fields(model.Field{Name: "a", Component: "Hologram"}))
	var widgetErr *UnknownWidgetError
	if !errors.As(err, &widgetErr) || widgetErr.Component != "Hologram" {
		t.Fatalf("expected UnknownWidgetError, got %v", err)
	}
	if _, err := Normalize(fields(model.Field{Name: "a", Component: "Hologram"}), WithWidgets(nil)); err != nil {
		t.Fatalf("expected widget check to be disabled, got %v", err)
	}

	_, err = Normalize(fields(model.Field{Name: "a", Rules: model.RuleString("required|sparkly")}))
	var ruleErr *validation.UnknownRuleError
	if !errors.As(err, &ruleErr) || ruleErr.Field != "a" || ruleErr.Token != "sparkly" {
		t.Fatalf("expected UnknownRuleError for a, got %v", err)
	}

	s := fields(model.Field{Name: "a"})
	s.Persist = &model.PersistConfig{TTL: model.TTL(time.Minute)}
	if _, err := Normalize(s); !errors.Is(err, ErrPersistKeyRequired) {
		t.Fatalf("expected ErrPersistKeyRequired, got %v", err)
	}
}

func TestNormalizeDetectsCycles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		schema model.Schema
		want   []string
	}{
		{
			name:   "self",
			schema: fields(model.Field{Name: "a", DependsOn: []string{"a"}}),
			want:   []string{"a", "a"},
		},
		{
			name: "triangle",
			schema: fields(
				model.Field{Name: "a", DependsOn: []string{"b"}},
				model.Field{Name: "b", DependsOn: []string{"c"}},
				model.Field{Name: "c", DependsOn: []string{"a"}},
			),
			want: []string{"a", "b", "c", "a"},
		},
		{
			name: "tail into loop",
			schema: fields(
				model.Field{Name: "root", DependsOn: []string{"x"}},
				model.Field{Name: "x", DependsOn: []string{"y"}},
				model.Field{Name: "y", DependsOn: []string{"x"}},
			),
			want: []string{"x", "y", "x"},
		},
	}

	for _, tc := range cases {
		_, err := Normalize(tc.schema)
		var cyc *CyclicDependencyError
		if !errors.As(err, &cyc) {
			t.Fatalf("%s: expected CyclicDependencyError, got %v", tc.name, err)
		}
		if diff := cmp.Diff(tc.want, cyc.Path); diff != "" {
			t.Fatalf("%s: path mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestNormalizeAcceptsDiamond(t *testing.T) {
	t.Parallel()

	_, err := Normalize(fields(
		model.Field{Name: "a"},
		model.Field{Name: "b", DependsOn: []string{"a"}},
		model.Field{Name: "c", DependsOn: []string{"a"}},
		model.Field{Name: "d", DependsOn: []string{"b", "c"}},
	))
	if err != nil {
		t.Fatalf("diamond must normalize, got %v", err)
	}
}

func TestNormalizeWarnsOnUndeclaredReads(t *testing.T) {
	t.Parallel()

	n, err := Normalize(fields(
		model.Field{Name: "role", Component: "Select"},
		model.Field{Name: "locked", Component: "Switch"},
		model.Field{
			Name:      "adminCode",
			Component: "Password",
			DependsOn: []string{"role"},
			Visible:   expr.MustCompile("role == admin && !locked"),
			Disabled:  expr.MustCompile("extras.readonlyMode || ghost"),
		},
	))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	want := []Warning{
		{Field: "adminCode", Message: `references unknown field "ghost"`},
		{Field: "adminCode", Message: `reads "locked" without declaring it in dependsOn`},
	}
	if diff := cmp.Diff(want, n.Warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeCompilesCheckers(t *testing.T) {
	t.Parallel()

	n, err := Normalize(fields(
		model.Field{Name: "name", Rules: model.RuleString("required|min:5")},
		model.Field{Name: "free"},
	))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if n.Checker("name") == nil {
		t.Fatalf("expected checker for name")
	}
	if n.Checker("free") != nil {
		t.Fatalf("expected no checker for free")
	}
}
