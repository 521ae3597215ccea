package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// Registry holds named strategies that documents reference by name, since
// closures cannot be serialised into JSON, YAML or TOML.
//
//	reg := schema.NewRegistry()
//	reg.RegisterRule("noErrors", model.CustomRule(...))
//	reg.RegisterProvider("cities", model.AsyncOptionsFunc(...))
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]model.Predicate
	rules      map[string]model.Rule
	providers  map[string]model.OptionsProvider
}

// NewRegistry returns an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		predicates: make(map[string]model.Predicate),
		rules:      make(map[string]model.Rule),
		providers:  make(map[string]model.OptionsProvider),
	}
}

// RegisterPredicate stores a predicate referenced as {predicate: name}.
func (r *Registry) RegisterPredicate(name string, p model.Predicate) error {
	if p == nil {
		return errors.New("schema: predicate is nil")
	}
	return register(r, r.predicates, name, p)
}

// RegisterRule stores a rule referenced as {custom: name}.
func (r *Registry) RegisterRule(name string, rule model.Rule) error {
	if rule == nil {
		return errors.New("schema: rule is nil")
	}
	return register(r, r.rules, name, rule)
}

// RegisterProvider stores an options provider referenced as {provider: name}.
func (r *Registry) RegisterProvider(name string, p model.OptionsProvider) error {
	if p == nil {
		return errors.New("schema: options provider is nil")
	}
	return register(r, r.providers, name, p)
}

func register[T any](r *Registry, target map[string]T, name string, value T) error {
	if r == nil {
		return errors.New("schema: registry is nil")
	}
	key := strings.TrimSpace(name)
	if key == "" {
		return errors.New("schema: strategy name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	target[key] = value
	return nil
}

func lookup[T any](r *Registry, source map[string]T, kind, name string) (T, error) {
	var zero T
	if r == nil {
		return zero, fmt.Errorf("schema: %s %q referenced but no registry configured", kind, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := source[strings.TrimSpace(name)]
	if !ok {
		return zero, &UnknownStrategyError{Kind: kind, Name: name}
	}
	return value, nil
}

// Names lists the registered strategy names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"predicate": sortedKeys(r.predicates),
		"rule":      sortedKeys(r.rules),
		"provider":  sortedKeys(r.providers),
	}
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnknownStrategyError reports a document reference to an unregistered name.
type UnknownStrategyError struct {
	Kind string
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("schema: unknown %s %q", e.Kind, e.Name)
}
