package helpers

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
)

// ReadDocument resolves the standard document input pair: --json-input
// carries the document inline, --file names a path, and "-" as the path
// reads stdin. Exactly one source must be given.
func ReadDocument(stdin io.Reader, file, inline string) ([]byte, error) {
	switch {
	case file != "" && inline != "":
		return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"pass either --file or --json-input, not both")
	case inline != "":
		return []byte(inline), nil
	case file == "":
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument,
			"provide the document via --file <path> or --json-input <json>")
	}
	return readPathOrStdin(stdin, file)
}

// ReadArgument resolves a single-flag value that may be inline JSON, a
// file reference ("@path"), or stdin ("-"). Empty input returns nil.
func ReadArgument(stdin io.Reader, arg string) ([]byte, error) {
	switch {
	case arg == "":
		return nil, nil
	case arg == "-":
		return readPathOrStdin(stdin, "-")
	case strings.HasPrefix(arg, "@"):
		return readPathOrStdin(stdin, strings.TrimPrefix(arg, "@"))
	}
	return []byte(arg), nil
}

func readPathOrStdin(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, core.WrapError(core.KindIO, core.CodeIOError, err, "read stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, core.WrapError(core.KindNoInput, core.CodeFileNotFound, err, "no such file: %s", path)
	case errors.Is(err, fs.ErrPermission):
		return nil, core.WrapError(core.KindPermission, core.CodePermissionDenied, err, "cannot read %s", path)
	}
	return nil, core.WrapError(core.KindIO, core.CodeIOError, err, "read %s", path)
}

// WriteDocument writes a rendered document to a path, creating parent
// directories. "-" writes to the given writer instead.
func WriteDocument(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return core.WrapError(core.KindIO, core.CodeIOError, err, "create directory for %s", path)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return core.WrapError(core.KindIO, core.CodeIOError, err, "write %s", path)
	}
	return nil
}
