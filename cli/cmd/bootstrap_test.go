package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRootLike mirrors the persistent flag set the real root command carries.
func newRootLike() *cobra.Command {
	root := &cobra.Command{Use: "n8nkit"}
	pf := root.PersistentFlags()
	pf.Bool("json", false, "")
	pf.String("save", "", "")
	pf.BoolP("verbose", "v", false, "")
	pf.BoolP("quiet", "q", false, "")
	pf.Bool("no-color", false, "")
	pf.String("profile", "", "")
	pf.String("config", "", "")
	pf.String("host", "", "")
	pf.String("api-key", "", "")
	return root
}

func TestLoaderOptions(t *testing.T) {
	t.Run("Should carry the config file and profile", func(t *testing.T) {
		root := newRootLike()
		require.NoError(t, root.PersistentFlags().Set("config", "/tmp/n8nkit.yaml"))
		require.NoError(t, root.PersistentFlags().Set("profile", "staging"))
		opts := LoaderOptions(root)
		assert.Equal(t, "/tmp/n8nkit.yaml", opts.File)
		assert.Equal(t, "staging", opts.Profile)
		assert.Nil(t, opts.Overrides)
	})
	t.Run("Should only turn changed flags into overrides", func(t *testing.T) {
		root := newRootLike()
		opts := LoaderOptions(root)
		assert.Nil(t, opts.Overrides)
	})
	t.Run("Should map host, api key and color flags to config paths", func(t *testing.T) {
		root := newRootLike()
		require.NoError(t, root.PersistentFlags().Set("host", "http://localhost:5678"))
		require.NoError(t, root.PersistentFlags().Set("api-key", "k-123"))
		require.NoError(t, root.PersistentFlags().Set("no-color", "true"))
		opts := LoaderOptions(root)
		require.NotNil(t, opts.Overrides)
		assert.Equal(t, "http://localhost:5678", opts.Overrides["api.host"])
		assert.Equal(t, "k-123", opts.Overrides["api.api_key"])
		assert.Equal(t, true, opts.Overrides["log.no_color"])
	})
	t.Run("Should let verbose win over quiet", func(t *testing.T) {
		root := newRootLike()
		require.NoError(t, root.PersistentFlags().Set("quiet", "true"))
		require.NoError(t, root.PersistentFlags().Set("verbose", "true"))
		opts := LoaderOptions(root)
		require.NotNil(t, opts.Overrides)
		assert.Equal(t, "debug", opts.Overrides["log.level"])
	})
	t.Run("Should read the root flags from a subcommand", func(t *testing.T) {
		root := newRootLike()
		child := &cobra.Command{Use: "child"}
		root.AddCommand(child)
		require.NoError(t, root.PersistentFlags().Set("host", "http://n8n.internal"))
		opts := LoaderOptions(child)
		require.NotNil(t, opts.Overrides)
		assert.Equal(t, "http://n8n.internal", opts.Overrides["api.host"])
	})
}
