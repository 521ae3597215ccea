package timezones

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"

	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/options"
)

var sample = []string{"America/New_York", "Europe/Berlin", "Europe/Paris", "Pacific/Auckland", "UTC"}

func TestDefaultZonesAreSortedAndUnique(t *testing.T) {
	t.Parallel()

	zones, err := DefaultZones()
	if err != nil {
		t.Fatalf("DefaultZones returned error: %v", err)
	}
	if len(zones) == 0 {
		t.Fatalf("expected embedded zones")
	}
	for i := 1; i < len(zones); i++ {
		if zones[i-1] >= zones[i] {
			t.Fatalf("zones not sorted/unique at %d: %q >= %q", i, zones[i-1], zones[i])
		}
	}
}

func TestLoadZonesSkipsCommentsAndDuplicates(t *testing.T) {
	t.Parallel()

	zones, err := LoadZones(strings.NewReader("# header\nUTC\n\nEurope/Paris\nUTC\n"))
	if err != nil {
		t.Fatalf("LoadZones returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"Europe/Paris", "UTC"}, zones); diff != "" {
		t.Fatalf("zones mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchRanksPrefixMatchesFirst(t *testing.T) {
	t.Parallel()

	cases := []struct {
		query string
		limit int
		want  []string
	}{
		{query: "", limit: 2, want: []string{"America/New_York", "Europe/Berlin"}},
		{query: "eu", want: []string{"Europe/Berlin", "Europe/Paris"}},
		{query: "u", limit: 3, want: []string{"UTC", "Europe/Berlin", "Europe/Paris"}},
		{query: "nowhere", want: nil},
	}
	for _, tc := range cases {
		got := Search(sample, tc.query, tc.limit)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("Search(%q) mismatch (-want +got):\n%s", tc.query, diff)
		}
	}
}

func TestProviderFiltersByField(t *testing.T) {
	t.Parallel()

	p := Provider{Zones: sample, QueryField: "region"}
	ev := model.NewEvalCtx(map[string]any{"region": "new"}, nil, language.English)

	got, err := p.Options(context.Background(), ev)
	if err != nil {
		t.Fatalf("Options returned error: %v", err)
	}
	want := []model.Option{{Value: "America/New_York", Label: "America/New York"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"region"}, p.References()); diff != "" {
		t.Fatalf("references mismatch (-want +got):\n%s", diff)
	}
	if !options.IsDynamic(p) {
		t.Fatalf("expected provider to be re-resolved on change")
	}
}

func TestHandlerFeedsHTTPProvider(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(Handler(HandlerConfig{Zones: sample}))
	defer srv.Close()

	provider := options.HTTPProvider{
		URL:     srv.URL,
		Params:  map[string]string{"q": "$region", "limit": "1"},
		Results: "data",
	}
	ev := model.NewEvalCtx(map[string]any{"region": "europe"}, nil, language.English)
	got, err := provider.Options(context.Background(), ev)
	if err != nil {
		t.Fatalf("Options returned error: %v", err)
	}
	if diff := cmp.Diff([]model.Option{{Value: "Europe/Berlin", Label: "Europe/Berlin"}}, got); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerRejectsMethodsAndGuard(t *testing.T) {
	t.Parallel()

	h := Handler(HandlerConfig{Zones: sample, Guard: func(r *http.Request) error {
		if r.Header.Get("X-Token") == "" {
			return errors.New("missing token")
		}
		return nil
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?q=utc", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/?q=utc", nil)
	req.Header.Set("X-Token", "t")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"value":"UTC"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
