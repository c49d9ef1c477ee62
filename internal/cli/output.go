package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/replaykit/replaykit/internal/rkerr"
)

// Exit codes for CLI commands (spec §6's exit code contract).
const (
	ExitClean   = 0 // clean
	ExitFailure = 1 // divergence / invalid input / verification failure
	ExitUsage   = 2 // usage error
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code     int    // Exit code (ExitFailure or ExitUsage)
	Message  string // Error message
	Err      error  // Underlying error (optional)
	Reported bool   // true if the command already wrote its result envelope
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// NewReportedExitError creates an ExitError for a command that has
// already written its result envelope via f.Success (e.g. a diff or
// assertion that completed normally but found a divergence). It
// carries only the exit code: reportOnError must not write a second,
// contradictory failure envelope on top of the success envelope
// already on stdout.
func NewReportedExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message, Reported: true}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the standard JSON response envelope.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses. Kind/Code mirror
// internal/rkerr.Error's taxonomy (§7) when the underlying error came
// from there; otherwise Kind is "internal".
type CLIError struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func cliErrorFromErr(err error) *CLIError {
	var rerr *rkerr.Error
	if errors.As(err, &rerr) {
		return &CLIError{Kind: string(rerr.Kind), Code: rerr.Code, Message: rerr.Message, Details: rerr.Details}
	}
	return &CLIError{Kind: "internal", Code: "internal_error", Message: err.Error()}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// Success outputs a successful result in the configured format. JSON
// output is canonicalized per spec §6: compact, sorted map keys (which
// encoding/json already guarantees), one trailing "\n" — so identical
// data always serializes to identical bytes.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.writeJSON(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Failure outputs err in the configured format.
func (f *OutputFormatter) Failure(err error) error {
	cliErr := cliErrorFromErr(err)
	if f.Format == "json" {
		return f.writeJSON(CLIResponse{Status: "error", Error: cliErr})
	}
	fmt.Fprintf(f.Writer, "Error [%s/%s]: %s\n", cliErr.Kind, cliErr.Code, cliErr.Message)
	if f.Verbose && cliErr.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", cliErr.Details)
	}
	return nil
}

func (f *OutputFormatter) writeJSON(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := f.Writer.Write(buf.Bytes())
	return err
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.Writer, format+"\n", args...)
}
