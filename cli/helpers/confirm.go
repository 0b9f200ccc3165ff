package helpers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/n8nkit/n8nkit/engine/core"
)

// bulkPhraseThreshold is where a y/N prompt stops being enough: deleting
// more targets than this (or using --all) requires typing the phrase.
const bulkPhraseThreshold = 10

// StdinIsInteractive reports whether prompting makes sense: stdin and
// stdout are both terminals and no CI marker is set.
func StdinIsInteractive() bool {
	if os.Getenv("CI") != "" {
		return false
	}
	return (isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())) &&
		(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
}

// ConfirmOptions describes one destructive action awaiting approval.
type ConfirmOptions struct {
	// Action names what is about to happen, e.g. "delete 3 workflows".
	Action string
	// Count is the number of targets; together with All it decides whether
	// the typed phrase is required.
	Count int
	// All marks a wildcard selection, which always requires the phrase.
	All bool
	// Force skips every prompt.
	Force bool
	// Interactive tells whether prompting is possible; non-interactive
	// invocations must pass Force.
	Interactive bool
	// In and Out carry the prompt conversation; nil means stdin/stderr.
	In  io.Reader
	Out io.Writer
}

// ConfirmDestructive gates a destructive action. Small target sets get a
// y/N prompt; more than ten targets or a wildcard requires typing
// "DELETE <count>" verbatim. Without a terminal the only way through is
// --force.
func ConfirmDestructive(opts ConfirmOptions) error {
	if opts.Force {
		return nil
	}
	if !opts.Interactive {
		return core.NewError(core.KindUsage, core.CodeMissingArgument,
			"refusing to %s without confirmation; re-run with --force in non-interactive mode", opts.Action)
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.All || opts.Count > bulkPhraseThreshold {
		phrase := fmt.Sprintf("DELETE %d", opts.Count)
		fmt.Fprintf(out, "About to %s. Type %q to continue: ", opts.Action, phrase)
		line, err := readLine(in)
		if err != nil {
			return core.WrapError(core.KindUsage, core.CodeInvalidArgument, err, "read confirmation")
		}
		if line != phrase {
			return core.NewError(core.KindUsage, core.CodeInvalidArgument,
				"confirmation phrase did not match; aborted")
		}
		return nil
	}
	fmt.Fprintf(out, "About to %s. Continue? [y/N]: ", opts.Action)
	line, err := readLine(in)
	if err != nil {
		return core.WrapError(core.KindUsage, core.CodeInvalidArgument, err, "read confirmation")
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return nil
	}
	return core.NewError(core.KindUsage, core.CodeInvalidArgument, "aborted")
}

func readLine(in io.Reader) (string, error) {
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
