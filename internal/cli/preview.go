package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-schemaform/pkg/form"
	"github.com/goliatone/go-schemaform/pkg/model"
)

// PreviewResult is the JSON payload of the preview command.
type PreviewResult struct {
	Schema string                      `json:"schema"`
	Values map[string]any              `json:"values"`
	States map[string]model.FieldState `json:"states"`
}

type previewOptions struct {
	set      []string
	validate bool
	timeout  time.Duration
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &previewOptions{}
	cmd := &cobra.Command{
		Use:   "preview <schema>",
		Short: "Render field states for a set of values",
		Long: `Build a form from a schema document, apply --set assignments in order and
print every visible field with its widget. Values are parsed as JSON when
possible, so --set age=42 stores a number and --set name=ada a string.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "assign a field value (key=value), repeatable")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "run submit validation before rendering")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "wait limit for async options and validation")
	return cmd
}

func runPreview(cmd *cobra.Command, rootOpts *RootOptions, opts *previewOptions, location string) error {
	out := formatter{format: rootOpts.Format, out: cmd.OutOrStdout()}
	logger := rootOpts.logger(cmd.ErrOrStderr())

	values, order, err := parseAssignments(opts.set)
	if err != nil {
		return out.fail(ExitCommandError, "preview", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	s, err := loadSchema(ctx, location, rootOpts.Strategies)
	if err != nil {
		return out.fail(ExitCommandError, "preview", err)
	}
	// Preview never writes drafts.
	s.Persist = nil

	f, err := form.New(s, form.WithLogger(logger))
	if err != nil {
		return out.fail(ExitFailure, "preview", err)
	}
	defer f.Close()

	for _, name := range order {
		if err := f.SetValue(name, values[name]); err != nil {
			return out.fail(ExitCommandError, "preview", err)
		}
	}
	if err := f.Settle(ctx); err != nil {
		return out.fail(ExitCommandError, "preview: waiting for options", err)
	}
	if opts.validate {
		if _, err := f.Submit(ctx); err != nil {
			return out.fail(ExitCommandError, "preview", err)
		}
	}

	if out.json() {
		return out.writeJSON(Response{Status: "ok", Data: PreviewResult{
			Schema: f.Name(),
			Values: f.Snapshot(),
			States: f.States(),
		}})
	}
	for _, field := range f.Fields() {
		line, err := f.Render(field.Name)
		if err != nil {
			return out.fail(ExitFailure, "preview", err)
		}
		if line != "" {
			out.printf("%s\n", line)
		}
	}
	return nil
}
