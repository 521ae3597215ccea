// Package timezones provides IANA timezone options: an in-process provider
// that filters by another field's value and an HTTP handler whose responses
// an options.HTTPProvider can consume.
package timezones

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/goliatone/go-schemaform/pkg/model"
)

//go:embed data/zones.txt
var dataFS embed.FS

const (
	// DefaultLimit caps results when the caller does not ask for a size.
	DefaultLimit = 50
	// MaxLimit is the largest result size honoured.
	MaxLimit = 200
)

var (
	defaultOnce  sync.Once
	defaultZones []string
	defaultErr   error
)

// DefaultZones returns the embedded zone list, sorted.
func DefaultZones() ([]string, error) {
	defaultOnce.Do(func() {
		f, err := dataFS.Open("data/zones.txt")
		if err != nil {
			defaultErr = err
			return
		}
		defer f.Close()
		defaultZones, defaultErr = LoadZones(f)
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return append([]string(nil), defaultZones...), nil
}

// LoadZones reads one zone per line, skipping blanks, comments and
// duplicates.
func LoadZones(r io.Reader) ([]string, error) {
	if r == nil {
		return nil, fmt.Errorf("timezones: missing reader")
	}
	scanner := bufio.NewScanner(r)
	var zones []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		zones = append(zones, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("timezones: read list: %w", err)
	}
	zones = lo.Uniq(zones)
	sort.Strings(zones)
	return zones, nil
}

// Search returns zones containing query, case-insensitively. Prefix matches
// rank first, then alphabetical order. An empty query returns the first limit
// zones.
func Search(zones []string, query string, limit int) []string {
	limit = clampLimit(limit)
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]string(nil), zones[:min(limit, len(zones))]...)
	}

	type match struct {
		name   string
		prefix bool
	}
	var matches []match
	for _, zone := range zones {
		lower := strings.ToLower(zone)
		if strings.Contains(lower, query) {
			matches = append(matches, match{name: zone, prefix: strings.HasPrefix(lower, query)})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].prefix != matches[j].prefix {
			return matches[i].prefix
		}
		return matches[i].name < matches[j].name
	})
	if len(matches) == 0 {
		return nil
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return lo.Map(matches, func(m match, _ int) string { return m.name })
}

// Options wraps Search results as select options. The label swaps
// underscores for spaces.
func Options(zones []string, query string, limit int) []model.Option {
	return lo.Map(Search(zones, query, limit), func(zone string, _ int) model.Option {
		return model.Option{Value: zone, Label: strings.ReplaceAll(zone, "_", " ")}
	})
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Provider is a synchronous options provider over the zone list. When
// QueryField is set, the field's current value filters the list and the
// provider must be re-resolved when it changes.
type Provider struct {
	Zones      []string
	QueryField string
	Limit      int
}

var (
	_ model.OptionsProvider = Provider{}
	_ model.Referencer      = Provider{}
)

// Options implements model.OptionsProvider.
func (p Provider) Options(_ context.Context, ev model.EvalCtx) ([]model.Option, error) {
	zones := p.Zones
	if zones == nil {
		var err error
		if zones, err = DefaultZones(); err != nil {
			return nil, err
		}
	}
	var query string
	if p.QueryField != "" {
		if raw, ok := ev.Lookup(p.QueryField); ok && raw != nil {
			query = fmt.Sprint(raw)
		}
	}
	return Options(zones, query, p.Limit), nil
}

// References implements model.Referencer.
func (p Provider) References() []string {
	if p.QueryField == "" {
		return nil
	}
	return []string{p.QueryField}
}
