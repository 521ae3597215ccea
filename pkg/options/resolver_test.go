package options

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/uber-go/tally/v4"
	"golang.org/x/text/language"

	"github.com/goliatone/go-schemaform/pkg/model"
)

func evalWith(values map[string]any) model.EvalCtx {
	return model.NewEvalCtx(values, nil, language.English)
}

func TestStaticOptionsResolveImmediately(t *testing.T) {
	t.Parallel()

	r := New()
	static := model.StaticOptions{{Label: "User", Value: "user"}, {Label: "Admin", Value: "admin"}}

	got := r.Resolve(context.Background(), "role", static, evalWith(nil), nil)
	if got.Pending {
		t.Fatalf("static options must not be pending")
	}
	if diff := cmp.Diff([]model.Option(static), got.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if r.Generation("role") != 0 {
		t.Fatalf("static options must not consume a generation")
	}
	if IsDynamic(static) || !IsDynamic(model.OptionsFunc(nil)) {
		t.Fatalf("unexpected IsDynamic classification")
	}
}

func TestSyncProviderFailureFallsBackToEmpty(t *testing.T) {
	t.Parallel()

	var diags []model.Diagnostic
	scope := tally.NewTestScope("", nil)
	r := New(WithMetricsScope(scope), WithReporter(func(d model.Diagnostic) { diags = append(diags, d) }))

	ok := model.OptionsFunc(func(ev model.EvalCtx) ([]model.Option, error) {
		country, _ := ev.Value("country")
		return []model.Option{{Label: "City of " + country.(string), Value: "c1"}}, nil
	})
	got := r.Resolve(context.Background(), "city", ok, evalWith(map[string]any{"country": "de"}), nil)
	if diff := cmp.Diff([]model.Option{{Label: "City of de", Value: "c1"}}, got.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	broken := model.OptionsFunc(func(model.EvalCtx) ([]model.Option, error) {
		return nil, errors.New("boom")
	})
	got = r.Resolve(context.Background(), "city", broken, evalWith(nil), nil)
	if got.Options == nil || len(got.Options) != 0 {
		t.Fatalf("expected empty options after failure, got %#v", got.Options)
	}

	panicky := model.OptionsFunc(func(model.EvalCtx) ([]model.Option, error) {
		panic("kaboom")
	})
	_ = r.Resolve(context.Background(), "city", panicky, evalWith(nil), nil)

	if len(diags) != 2 || diags[0].Kind != model.DiagnosticOptions || diags[1].Field != "city" {
		t.Fatalf("unexpected diagnostics %+v", diags)
	}
	if got := scope.Snapshot().Counters()["options.failures+"].Value(); got != 2 {
		t.Fatalf("expected 2 failures, got %d", got)
	}
	if r.Generation("city") != 3 {
		t.Fatalf("expected generation 3, got %d", r.Generation("city"))
	}
}

func TestAsyncStaleResultsAreDiscarded(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	scope := tally.NewTestScope("", nil)
	r := New(WithTracker(&wg), WithMetricsScope(scope))

	gates := map[string]chan struct{}{
		"de": make(chan struct{}),
		"fr": make(chan struct{}),
	}
	provider := model.AsyncOptionsFunc(func(_ context.Context, ev model.EvalCtx) ([]model.Option, error) {
		country, _ := ev.Value("country")
		<-gates[country.(string)]
		return []model.Option{{Label: "capital of " + country.(string), Value: country}}, nil
	})

	var (
		mu      sync.Mutex
		applied [][]model.Option
	)
	apply := func(field string, gen uint64, opts []model.Option) {
		mu.Lock()
		defer mu.Unlock()
		if r.Accept(field, gen) {
			applied = append(applied, opts)
		}
	}

	first := r.Resolve(context.Background(), "city", provider, evalWith(map[string]any{"country": "de"}), apply)
	second := r.Resolve(context.Background(), "city", provider, evalWith(map[string]any{"country": "fr"}), apply)
	if !first.Pending || !second.Pending {
		t.Fatalf("expected async resolutions to be pending")
	}
	if second.Generation <= first.Generation {
		t.Fatalf("expected generations to increase: %d then %d", first.Generation, second.Generation)
	}

	close(gates["fr"])
	close(gates["de"])
	wg.Wait()

	want := [][]model.Option{{{Label: "capital of fr", Value: "fr"}}}
	if diff := cmp.Diff(want, applied); diff != "" {
		t.Fatalf("applied mismatch (-want +got):\n%s", diff)
	}
	if got := scope.Snapshot().Counters()["options.stale+"].Value(); got != 1 {
		t.Fatalf("expected 1 stale result, got %d", got)
	}
}

func TestSupersededRequestIsCancelled(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	var diags []model.Diagnostic
	var diagMu sync.Mutex
	r := New(WithTracker(&wg), WithReporter(func(d model.Diagnostic) {
		diagMu.Lock()
		defer diagMu.Unlock()
		diags = append(diags, d)
	}))

	started := make(chan struct{})
	cancelled := make(chan struct{})
	slow := model.AsyncOptionsFunc(func(ctx context.Context, _ model.EvalCtx) ([]model.Option, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	fast := model.AsyncOptionsFunc(func(context.Context, model.EvalCtx) ([]model.Option, error) {
		return []model.Option{{Label: "fresh", Value: 1}}, nil
	})

	var applied []model.Option
	var appliedMu sync.Mutex
	apply := func(field string, gen uint64, opts []model.Option) {
		appliedMu.Lock()
		defer appliedMu.Unlock()
		if r.Accept(field, gen) {
			applied = opts
		}
	}

	r.Resolve(context.Background(), "city", slow, evalWith(nil), apply)
	<-started
	r.Resolve(context.Background(), "city", fast, evalWith(nil), apply)
	<-cancelled
	wg.Wait()

	if diff := cmp.Diff([]model.Option{{Label: "fresh", Value: 1}}, applied); diff != "" {
		t.Fatalf("applied mismatch (-want +got):\n%s", diff)
	}
	diagMu.Lock()
	defer diagMu.Unlock()
	if len(diags) != 0 {
		t.Fatalf("cancellation must not be reported as failure: %+v", diags)
	}
}

func TestAsyncFailureAppliesEmptyList(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	var diags int
	var mu sync.Mutex
	r := New(WithTracker(&wg), WithReporter(func(model.Diagnostic) {
		mu.Lock()
		defer mu.Unlock()
		diags++
	}))

	var applied []model.Option
	r.Resolve(context.Background(), "city", model.AsyncOptionsFunc(func(context.Context, model.EvalCtx) ([]model.Option, error) {
		return nil, errors.New("remote down")
	}), evalWith(nil), func(field string, gen uint64, opts []model.Option) {
		mu.Lock()
		defer mu.Unlock()
		if r.Accept(field, gen) {
			applied = opts
		}
	})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if applied == nil || len(applied) != 0 {
		t.Fatalf("expected empty applied list, got %#v", applied)
	}
	if diags != 1 {
		t.Fatalf("expected one diagnostic, got %d", diags)
	}
}

func TestCloseDiscardsLaterResults(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	r := New(WithTracker(&wg))
	gate := make(chan struct{})
	var accepted bool
	var mu sync.Mutex
	r.Resolve(context.Background(), "city", model.AsyncOptionsFunc(func(context.Context, model.EvalCtx) ([]model.Option, error) {
		<-gate
		return []model.Option{{Label: "late", Value: 1}}, nil
	}), evalWith(nil), func(field string, gen uint64, _ []model.Option) {
		mu.Lock()
		defer mu.Unlock()
		accepted = r.Accept(field, gen)
	})

	r.Close()
	close(gate)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if accepted {
		t.Fatalf("expected result after Close to be rejected")
	}
}
