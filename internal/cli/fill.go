package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-schemaform/pkg/form"
	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/persist"
	"github.com/goliatone/go-schemaform/pkg/persist/sqlite"
	"github.com/goliatone/go-schemaform/pkg/widgets"
)

const maxAttempts = 3

type fillOptions struct {
	store string
	key   string
}

// NewFillCommand creates the fill command.
func NewFillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &fillOptions{}
	cmd := &cobra.Command{
		Use:   "fill <schema>",
		Short: "Fill a form interactively and print the submitted values",
		Long: `Prompt for every visible, editable field in schema order. Each answer is
validated as the field loses focus; a rejected answer is asked again.

With --store, drafts are kept in a SQLite database and restored on the next
run until their TTL expires.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.store, "store", "", "SQLite database for drafts")
	cmd.Flags().StringVar(&opts.key, "key", "", "draft key (defaults to the schema persist key)")
	return cmd
}

func runFill(cmd *cobra.Command, rootOpts *RootOptions, opts *fillOptions, location string) error {
	out := formatter{format: rootOpts.Format, out: cmd.OutOrStdout()}
	logger := rootOpts.logger(cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := loadSchema(ctx, location, rootOpts.Strategies)
	if err != nil {
		return out.fail(ExitCommandError, "fill", err)
	}
	if key := strings.TrimSpace(opts.key); key != "" {
		cfg := model.PersistConfig{Key: key}
		if s.Persist != nil {
			cfg = *s.Persist
			cfg.Key = key
		}
		s.Persist = &cfg
	}

	var storage persist.Storage
	if opts.store != "" {
		store, err := sqlite.Open(opts.store)
		if err != nil {
			return out.fail(ExitCommandError, "fill", err)
		}
		defer store.Close()
		storage = store
	}

	reg := widgets.NewRegistry()
	f, err := form.New(s,
		form.WithLogger(logger),
		form.WithWidgets(reg),
		form.WithStorage(storage),
	)
	if err != nil {
		return out.fail(ExitFailure, "fill", err)
	}
	defer f.Close()

	driver := rootOpts.Driver
	if driver == nil {
		driver = NewSurveyDriver(cmd.ErrOrStderr())
	}

	for _, field := range f.Fields() {
		if err := fillField(ctx, f, reg, driver, field); err != nil {
			return out.fail(ExitCommandError, "fill", err)
		}
	}

	sub, err := f.Submit(ctx)
	if err != nil {
		return out.fail(ExitCommandError, "fill", err)
	}
	if !sub.Valid {
		if !out.json() {
			names := lo.Keys(sub.Errors)
			sort.Strings(names)
			for _, name := range names {
				out.printf("%s: %s\n", name, sub.Errors[name])
			}
		}
		return out.fail(ExitFailure, "fill: form is invalid", fmt.Errorf("%d field(s) rejected", len(sub.Errors)))
	}

	if out.json() {
		return out.writeJSON(Response{Status: "ok", Data: sub.Values})
	}
	return out.writeValue(sub.Values)
}

// fillField prompts until the field validates or maxAttempts is reached.
func fillField(ctx context.Context, f *form.Form, reg *widgets.Registry, driver PromptDriver, field model.Field) error {
	if err := f.Settle(ctx); err != nil {
		return err
	}
	props, err := f.Props(field.Name)
	if err != nil {
		return err
	}
	if !props.Visible || props.Disabled || props.Readonly {
		return nil
	}

	kind := widgets.InputText
	if widget, ok := reg.Lookup(field.Component); ok {
		kind = widget.Input()
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err := ask(ctx, driver, kind, props)
		if err != nil {
			return fmt.Errorf("field %q: %w", field.Name, err)
		}
		if err := f.SetValue(field.Name, value); err != nil {
			return err
		}
		if err := f.Blur(field.Name); err != nil {
			return err
		}
		if err := f.Settle(ctx); err != nil {
			return err
		}
		state, _ := f.State(field.Name)
		if state.Error == "" {
			return nil
		}
		if err := driver.Info(ctx, fmt.Sprintf("%s: %s", props.Label, state.Error)); err != nil {
			return err
		}
		if props, err = f.Props(field.Name); err != nil {
			return err
		}
	}
	return nil
}

func ask(ctx context.Context, driver PromptDriver, kind widgets.InputKind, props widgets.Props) (any, error) {
	current := widgets.Stringify(props.Value)
	switch kind {
	case widgets.InputPassword:
		return driver.Password(ctx, InputConfig{Message: props.Label})
	case widgets.InputTextarea:
		return driver.TextArea(ctx, InputConfig{Message: props.Label, Default: current})
	case widgets.InputNumber:
		raw, err := driver.Input(ctx, InputConfig{Message: props.Label, Default: current, Validator: validateNumber})
		if err != nil || strings.TrimSpace(raw) == "" {
			return nil, err
		}
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case widgets.InputConfirm:
		def, _ := props.Value.(bool)
		return driver.Confirm(ctx, ConfirmConfig{Message: props.Label, Default: def})
	case widgets.InputSelect:
		if len(props.Options) == 0 {
			break
		}
		idx, err := driver.Select(ctx, SelectConfig{
			Message:      props.Label,
			Options:      optionLabels(props.Options),
			DefaultIndex: optionIndex(props.Options, props.Value),
		})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(props.Options) {
			return nil, fmt.Errorf("selection %d out of range", idx)
		}
		return props.Options[idx].Value, nil
	case widgets.InputMultiSelect:
		if len(props.Options) == 0 {
			break
		}
		selected, _ := props.Value.([]any)
		defaults := lo.FilterMap(selected, func(v any, _ int) (int, bool) {
			idx := optionIndex(props.Options, v)
			return idx, idx >= 0
		})
		picked, err := driver.MultiSelect(ctx, SelectConfig{
			Message:  props.Label,
			Options:  optionLabels(props.Options),
			Defaults: defaults,
		})
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, len(picked))
		for _, idx := range picked {
			if idx >= 0 && idx < len(props.Options) {
				values = append(values, props.Options[idx].Value)
			}
		}
		return values, nil
	}
	return driver.Input(ctx, InputConfig{Message: props.Label, Default: current})
}

func validateNumber(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err != nil {
		return fmt.Errorf("%q is not a number", raw)
	}
	return nil
}

func optionLabels(opts []model.Option) []string {
	return lo.Map(opts, func(opt model.Option, _ int) string {
		if opt.Label != "" {
			return opt.Label
		}
		return widgets.Stringify(opt.Value)
	})
}

func optionIndex(opts []model.Option, value any) int {
	want := widgets.Stringify(value)
	for i, opt := range opts {
		if widgets.Stringify(opt.Value) == want {
			return i
		}
	}
	return -1
}
