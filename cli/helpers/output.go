// Package helpers carries the command-layer plumbing shared by every
// command group: envelope output, confirmation prompts, input resolution,
// bulk dispatch, and pre-mutation backups.
package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/n8nkit/n8nkit/engine/core"
)

// ErrorBody is the error half of the output envelope. Code is one of the
// stable strings from engine/core; Details carries structured context.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope is the stable top-level shape wrapping every command result.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBodyFor renders any error as an envelope error body. Coded errors
// keep their stable code and details; everything else becomes INTERNAL_ERROR.
func ErrorBodyFor(err error) *ErrorBody {
	if coded, ok := core.AsError(err); ok {
		return &ErrorBody{Code: coded.Code, Message: coded.Message, Details: coded.Details}
	}
	return &ErrorBody{Code: core.CodeFor(err), Message: err.Error()}
}

// Output resolves where and how one command's result is written: an
// envelope on stdout under --json, plain text otherwise, and optionally the
// full envelope saved to a file.
type Output struct {
	JSON   bool
	Save   string
	Stdout io.Writer
	Stderr io.Writer
}

// OutputFromCommand reads the persistent output flags off the running
// command.
func OutputFromCommand(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	save, _ := cmd.Flags().GetString("save")
	return &Output{
		JSON:   jsonMode,
		Save:   save,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}
}

// Success emits a success envelope for data. In plain mode the human lines
// are printed when given, the pretty-printed data otherwise; --save always
// receives the full envelope.
func (o *Output) Success(data any, humanLines ...string) error {
	env := Envelope{Success: true, Data: data}
	if err := o.save(env); err != nil {
		return err
	}
	if o.JSON {
		return o.writeJSON(env)
	}
	if len(humanLines) > 0 {
		for _, line := range humanLines {
			fmt.Fprintln(o.Stdout, line)
		}
		return nil
	}
	return o.writeJSON(data)
}

// Raw emits a body as the top-level JSON document, bypassing the success
// wrapper. Validation results use this: their envelope shape
// {valid, errors, warnings, statistics, suggestions} is its own contract.
func (o *Output) Raw(body any, humanLines ...string) error {
	if err := o.save(body); err != nil {
		return err
	}
	if o.JSON || len(humanLines) == 0 {
		return o.writeJSON(body)
	}
	for _, line := range humanLines {
		fmt.Fprintln(o.Stdout, line)
	}
	return nil
}

// Failure emits an error envelope on stdout under --json, or a plain line
// on stderr otherwise. The returned error is the input marked as emitted so
// the process still exits with the right code without double-printing.
func (o *Output) Failure(err error) error {
	env := Envelope{Success: false, Error: ErrorBodyFor(err)}
	if saveErr := o.save(env); saveErr != nil {
		fmt.Fprintf(o.Stderr, "warning: %v\n", saveErr)
	}
	if o.JSON {
		if writeErr := o.writeJSON(env); writeErr != nil {
			return writeErr
		}
	} else {
		fmt.Fprintf(o.Stderr, "error: %s\n", err.Error())
	}
	return MarkEmitted(err)
}

func (o *Output) writeJSON(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return core.WrapError(core.KindInternal, core.CodeInternal, err, "encode output")
	}
	_, err = o.Stdout.Write(pretty.Pretty(buf))
	return err
}

// save writes the full envelope to the --save path, mode 0600 since
// envelopes can carry workflow documents with embedded secrets.
func (o *Output) save(v any) error {
	if o.Save == "" {
		return nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return core.WrapError(core.KindInternal, core.CodeInternal, err, "encode envelope for --save")
	}
	if dir := filepath.Dir(o.Save); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return core.WrapError(core.KindIO, core.CodeIOError, err, "create directory for %s", o.Save)
		}
	}
	if err := os.WriteFile(o.Save, pretty.Pretty(buf), 0o600); err != nil {
		return core.WrapError(core.KindIO, core.CodeIOError, err, "write envelope to %s", o.Save)
	}
	return nil
}

// emittedError marks an error whose envelope was already written, so the
// top-level runner only maps it to an exit code.
type emittedError struct{ err error }

func (e *emittedError) Error() string { return e.err.Error() }
func (e *emittedError) Unwrap() error { return e.err }

// MarkEmitted wraps err as already-emitted.
func MarkEmitted(err error) error {
	if err == nil {
		return nil
	}
	return &emittedError{err: err}
}

// IsEmitted reports whether the error's envelope was already written.
func IsEmitted(err error) bool {
	var e *emittedError
	return errors.As(err, &e)
}

// Plural renders "1 node" / "3 nodes" for human lines.
func Plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Truncate shortens s to max runes, appending an ellipsis when it cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
