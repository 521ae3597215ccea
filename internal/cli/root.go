// Package cli implements the schemaform command line: lint, preview and fill.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-schemaform/pkg/options/timezones"
	"github.com/goliatone/go-schemaform/pkg/schema"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and injectable dependencies.
type RootOptions struct {
	Verbose bool
	Format  string

	// Strategies resolves named predicates, providers and rules referenced
	// by documents.
	Strategies *schema.Registry
	// Driver answers fill prompts; nil uses survey on the terminal.
	Driver PromptDriver
}

// NewRootCommand creates the schemaform command tree.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies()
	}

	cmd := &cobra.Command{
		Use:   "schemaform",
		Short: "Inspect and fill declarative form schemas",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewLintCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))
	cmd.AddCommand(NewFillCommand(opts))
	return cmd
}

// DefaultStrategies returns a registry holding the built-in named strategies:
// the "timezones" options provider.
func DefaultStrategies() *schema.Registry {
	reg := schema.NewRegistry()
	_ = reg.RegisterProvider("timezones", timezones.Provider{})
	return reg
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// logger writes human-readable logs to w when verbose is set.
func (o *RootOptions) logger(w io.Writer) zerolog.Logger {
	if !o.Verbose {
		return zerolog.Nop()
	}
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).With().Timestamp().Logger()
}
