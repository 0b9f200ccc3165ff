package helpers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"

	"github.com/n8nkit/n8nkit/engine/core"
)

// BackupWriter drops a pre-image of a remote workflow on disk before the CLI
// mutates it. Backups are plain exported JSON, independent of the version
// store, so an operator can restore one with nothing but curl.
type BackupWriter struct {
	fs  afero.Fs
	dir string
}

func NewBackupWriter(fs afero.Fs, dir string) *BackupWriter {
	return &BackupWriter{fs: fs, dir: dir}
}

// Dir returns the directory backups are written into.
func (b *BackupWriter) Dir() string {
	return b.dir
}

// Write stores doc under <dir>/<workflow-id>-<ksuid>.json and returns the
// path. The directory is owner-only; the file may embed credential
// references, so it is too.
func (b *BackupWriter) Write(workflowID string, doc []byte) (string, error) {
	if b.dir == "" {
		return "", core.NewError(core.KindUsage, core.CodeMissingArgument, "backup directory is not configured")
	}
	if err := b.fs.MkdirAll(b.dir, 0o700); err != nil {
		return "", core.WrapError(core.KindIO, core.CodeIOError, err, "create backup directory %s", b.dir)
	}
	name := fmt.Sprintf("%s-%s.json", sanitizeFileComponent(workflowID), ksuid.New().String())
	path := filepath.Join(b.dir, name)
	if err := afero.WriteFile(b.fs, path, doc, 0o600); err != nil {
		return "", core.WrapError(core.KindIO, core.CodeIOError, err, "write backup %s", path)
	}
	return path, nil
}

// sanitizeFileComponent keeps workflow IDs filesystem-safe. n8n IDs are
// nanoid-style, but user-supplied names can reach here through --id.
func sanitizeFileComponent(s string) string {
	if s == "" {
		return "workflow"
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	const maxComponent = 64
	out := sb.String()
	if len(out) > maxComponent {
		out = out[:maxComponent]
	}
	return out
}
