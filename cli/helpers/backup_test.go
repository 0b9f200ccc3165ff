package helpers

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/core"
)

func TestBackupWriter(t *testing.T) {
	t.Run("Should write the pre-image under a unique name", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		w := NewBackupWriter(fs, "/data/backups")
		doc := []byte(`{"id":"wf1","name":"Order sync"}`)

		path, err := w.Write("wf1", doc)
		require.NoError(t, err)
		assert.Equal(t, "/data/backups", filepath.Dir(path))
		assert.Regexp(t, regexp.MustCompile(`^wf1-[0-9A-Za-z]{27}\.json$`), filepath.Base(path))

		got, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})
	t.Run("Should produce distinct names for repeated backups", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		w := NewBackupWriter(fs, "/data/backups")
		first, err := w.Write("wf1", []byte(`{}`))
		require.NoError(t, err)
		second, err := w.Write("wf1", []byte(`{}`))
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})
	t.Run("Should sanitize hostile workflow ids", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		w := NewBackupWriter(fs, "/data/backups")
		path, err := w.Write("../etc/pass wd", []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, "/data/backups", filepath.Dir(path))
		assert.Regexp(t, regexp.MustCompile(`^___etc_pass_wd-`), filepath.Base(path))
	})
	t.Run("Should keep backups owner-only on a real filesystem", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "backups")
		w := NewBackupWriter(afero.NewOsFs(), dir)
		path, err := w.Write("wf1", []byte(`{"id":"wf1"}`))
		require.NoError(t, err)

		dirInfo, err := os.Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

		fileInfo, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fileInfo.Mode().Perm())
	})
	t.Run("Should refuse an unconfigured directory", func(t *testing.T) {
		w := NewBackupWriter(afero.NewMemMapFs(), "")
		_, err := w.Write("wf1", []byte(`{}`))
		coded, ok := core.AsError(err)
		require.True(t, ok)
		assert.Equal(t, core.KindUsage, coded.Kind)
	})
}
