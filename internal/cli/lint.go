package cli

import (
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-schemaform/pkg/schema"
	"github.com/goliatone/go-schemaform/pkg/widgets"
)

// LintResult is the JSON payload of the lint command.
type LintResult struct {
	Schema   string        `json:"schema"`
	Fields   []string      `json:"fields"`
	Warnings []LintWarning `json:"warnings,omitempty"`
}

// LintWarning is one non-fatal finding.
type LintWarning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewLintCommand creates the lint command.
func NewLintCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lint <schema>",
		Short: "Check a schema document for configuration errors",
		Long: `Load and normalize a schema document.

Reports duplicate or unknown fields, dependency cycles, unknown widgets and
rule tokens as errors, and predicates that read fields they do not declare
in dependsOn as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(cmd, rootOpts, args[0])
		},
	}
}

func runLint(cmd *cobra.Command, opts *RootOptions, location string) error {
	out := formatter{format: opts.Format, out: cmd.OutOrStdout()}
	logger := opts.logger(cmd.ErrOrStderr())

	s, err := loadSchema(cmd.Context(), location, opts.Strategies)
	if err != nil {
		if !out.json() {
			out.printf("error: %v\n", err)
		}
		return out.fail(ExitCommandError, "lint", err)
	}

	normalized, err := schema.Normalize(s, schema.WithWidgets(widgets.NewRegistry()))
	if err != nil {
		logger.Debug().Err(err).Str("schema", s.Name).Msg("normalize failed")
		if !out.json() {
			out.printf("error: %v\n", err)
		}
		return out.fail(ExitFailure, "lint", err)
	}

	result := LintResult{
		Schema: normalized.Name(),
		Fields: normalized.Names(),
		Warnings: lo.Map(normalized.Warnings, func(w schema.Warning, _ int) LintWarning {
			return LintWarning{Field: w.Field, Message: w.Message}
		}),
	}
	if out.json() {
		return out.writeJSON(Response{Status: "ok", Data: result})
	}
	out.printf("%s: ok (%d fields)\n", result.Schema, len(result.Fields))
	for _, w := range normalized.Warnings {
		out.printf("warning: %s\n", w)
	}
	return nil
}
