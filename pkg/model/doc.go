// Package model defines the data shared by every stage of the form runtime: the
// schema and its field definitions, the immutable EvalCtx snapshot handed to
// strategies, the derived FieldState, and the narrow strategy interfaces
// (Predicate, OptionsProvider, Rule, ExternalValidator) that carry per-field
// logic. Field definitions are plain values; behaviour is attached through
// strategy objects so schemas decoded from JSON/YAML/TOML and schemas built in
// Go share a single representation. Nothing in this package mutates state; the
// form package is the only writer of values and derived field state.
package model
