package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/schema"
)

// loadSchema reads a document from a path or http(s) URL.
func loadSchema(ctx context.Context, location string, reg *schema.Registry) (model.Schema, error) {
	location = strings.TrimSpace(location)
	src := schema.SourceFromFile(location)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		var err error
		if src, err = schema.SourceFromURL(location); err != nil {
			return model.Schema{}, err
		}
	}
	loader := schema.NewLoader(
		schema.WithHTTPClient(http.DefaultClient),
		schema.WithStrategies(reg),
	)
	s, err := loader.LoadSchema(ctx, src)
	if err != nil {
		return model.Schema{}, fmt.Errorf("load %s: %w", location, err)
	}
	return s, nil
}

// parseAssignments turns k=v pairs into values. Values that parse as JSON keep
// their JSON type; anything else is a string.
func parseAssignments(pairs []string) (map[string]any, []string, error) {
	values := make(map[string]any, len(pairs))
	order := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, nil, fmt.Errorf("invalid assignment %q, expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = value
	}
	return values, order, nil
}
