package cmd

import (
	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/pkg/config"
)

// LoaderOptions derives config load options from the root's persistent
// flags. Only flags the user actually set become overrides, so the file
// and environment layers keep their precedence for everything else.
func LoaderOptions(c *cobra.Command) config.LoadOptions {
	flags := c.Root().PersistentFlags()
	opts := config.LoadOptions{}
	opts.File, _ = flags.GetString("config")
	opts.Profile, _ = flags.GetString("profile")
	overrides := map[string]any{}
	if flags.Changed("host") {
		host, _ := flags.GetString("host")
		overrides["api.host"] = host
	}
	if flags.Changed("api-key") {
		key, _ := flags.GetString("api-key")
		overrides["api.api_key"] = key
	}
	if flags.Changed("no-color") {
		noColor, _ := flags.GetBool("no-color")
		overrides["log.no_color"] = noColor
	}
	// --verbose and --quiet collapse into the log level, loudest wins.
	if flags.Changed("quiet") {
		overrides["log.level"] = "error"
	}
	if flags.Changed("verbose") {
		overrides["log.level"] = "debug"
	}
	if len(overrides) > 0 {
		opts.Overrides = overrides
	}
	return opts
}
