package options

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// DefaultHTTPTimeout bounds a remote options request when the provider has no
// client of its own.
const DefaultHTTPTimeout = 10 * time.Second

var (
	labelPolicyOnce sync.Once
	labelPolicy     *bluemonday.Policy
)

// HTTPProvider loads options from a JSON endpoint. Parameter values starting
// with '$' are read from the evaluation context, so
//
//	Params: {"country": "$country"}
//
// sends the current value of the country field. When a referenced value is
// empty the provider returns no options without issuing a request.
type HTTPProvider struct {
	URL        string            `json:"url" yaml:"url" toml:"url"`
	Method     string            `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Results    string            `json:"results,omitempty" yaml:"results,omitempty" toml:"results,omitempty"`
	ValueField string            `json:"valueField,omitempty" yaml:"valueField,omitempty" toml:"valueField,omitempty"`
	LabelField string            `json:"labelField,omitempty" yaml:"labelField,omitempty" toml:"labelField,omitempty"`
	Client     *http.Client      `json:"-" yaml:"-" toml:"-"`
}

// Async implements model.AsyncProvider.
func (p *HTTPProvider) Async() bool { return true }

// References lists the fields read through '$' parameters.
func (p *HTTPProvider) References() []string {
	if p == nil {
		return nil
	}
	var refs []string
	for _, value := range p.Params {
		if name, ok := fieldParam(value); ok {
			refs = append(refs, name)
		}
	}
	sort.Strings(refs)
	return refs
}

// Options implements model.OptionsProvider.
func (p *HTTPProvider) Options(ctx context.Context, ev model.EvalCtx) ([]model.Option, error) {
	if p == nil || strings.TrimSpace(p.URL) == "" {
		return nil, errors.New("options: http provider without url")
	}
	reqURL, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("options: parse url: %w", err)
	}

	q := reqURL.Query()
	for key, raw := range p.Params {
		value := raw
		if name, ok := fieldParam(raw); ok {
			resolved, found := ev.Lookup(name)
			if !found || resolved == nil || fmt.Sprint(resolved) == "" {
				return []model.Option{}, nil
			}
			value = fmt.Sprint(resolved)
		}
		q.Set(key, value)
	}
	reqURL.RawQuery = q.Encode()

	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("options: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("options: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("options: unexpected status %d", resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("options: decode: %w", err)
	}

	items := extractResults(payload, p.Results)
	opts := make([]model.Option, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			if item == nil {
				continue
			}
			value := fmt.Sprint(item)
			opts = append(opts, model.Option{Label: sanitizeLabel(value), Value: item})
			continue
		}
		value, ok := pick(obj, p.ValueField, "value")
		if !ok {
			continue
		}
		label := ""
		if raw, ok := pick(obj, p.LabelField, "label"); ok {
			label = sanitizeLabel(fmt.Sprint(raw))
		}
		if label == "" {
			label = fmt.Sprint(value)
		}
		opts = append(opts, model.Option{Label: label, Value: value})
	}
	return opts, nil
}

func fieldParam(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 2 || trimmed[0] != '$' {
		return "", false
	}
	return trimmed[1:], true
}

func extractResults(payload any, path string) []any {
	cur := payload
	if path != "" {
		for _, segment := range strings.Split(path, ".") {
			node, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			cur = node[segment]
		}
	}
	items, _ := cur.([]any)
	return items
}

func pick(m map[string]any, path, fallback string) (any, bool) {
	if path == "" {
		path = fallback
	}
	cur := any(m)
	for _, segment := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// sanitizeLabel strips markup from remote labels and returns plain text.
func sanitizeLabel(raw string) string {
	labelPolicyOnce.Do(func() {
		labelPolicy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(labelPolicy.Sanitize(raw)))
}
