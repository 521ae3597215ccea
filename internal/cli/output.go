package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // lint or validation failure
	ExitCommandError = 2 // unreadable input, bad flags, storage errors
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from err, defaulting to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope for every command.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

type formatter struct {
	format string
	out    io.Writer
}

func (f formatter) json() bool {
	return f.format == "json"
}

func (f formatter) writeJSON(resp Response) error {
	return f.writeValue(resp)
}

func (f formatter) writeValue(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f formatter) printf(format string, args ...any) {
	fmt.Fprintf(f.out, format, args...)
}

// fail reports err in the configured format and returns an ExitError.
func (f formatter) fail(code int, message string, err error) error {
	exit := &ExitError{Code: code, Message: message, Err: err}
	if f.json() {
		_ = f.writeJSON(Response{Status: "error", Error: exit.Error()})
	}
	return exit
}
