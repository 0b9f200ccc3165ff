// Package configcmd implements the config command group: inspecting the
// layered effective configuration and editing the persistent file.
package configcmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/pkg/config"
)

// Cmd builds the config command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit n8nkit configuration",
	}
	group.AddCommand(
		GetCmd(),
		SetCmd(),
		UnsetCmd(),
		ListCmd(),
	)
	return group
}

// reload rebuilds the layered configuration so per-key provenance is
// available; the context config kept only the effective values.
func reload(c *cobra.Command) (*config.Loader, error) {
	loader := config.NewLoader()
	if _, err := loader.Load(c.Context(), cmd.LoaderOptions(c)); err != nil {
		return nil, err
	}
	return loader, nil
}

func knownKey(key string) error {
	if config.EnvVarFor(key) == "" {
		return core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"unknown config key %q", key)
	}
	return nil
}

// display redacts secrets before anything reaches an envelope or a table.
func display(key string, value any) any {
	if !config.IsSensitivePath(key) {
		return value
	}
	if s, ok := value.(string); ok {
		return config.SensitiveString(s).String()
	}
	return config.SensitiveString("set").String()
}

// targetFile is where set/unset write: the explicit --config path when
// given, the default location otherwise.
func targetFile(c *cobra.Command) string {
	if file, _ := c.Root().PersistentFlags().GetString("config"); file != "" {
		return file
	}
	return config.DefaultConfigPath()
}

// GetCmd creates the single-key inspection command.
func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one config value and the layer that set it",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
}

func runGet(c *cobra.Command, args []string) error {
	rt := cmd.NewRuntime(c)
	defer rt.Close(c.Context())
	key := args[0]
	if err := knownKey(key); err != nil {
		return err
	}
	loader, err := reload(c)
	if err != nil {
		return err
	}
	value, _ := loader.Value(key)
	source := loader.Source(key)
	shown := display(key, value)
	return rt.Output().Success(
		map[string]any{"key": key, "value": shown, "source": source},
		fmt.Sprintf("%s = %v (from %s)", key, shown, source))
}

// SetCmd creates the file-editing command.
func SetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist one config value to the config file",
		Args:  cobra.ExactArgs(2),
		RunE:  runSet,
	}
}

func runSet(c *cobra.Command, args []string) error {
	rt := cmd.NewRuntime(c)
	defer rt.Close(c.Context())
	key, value := args[0], args[1]
	file := targetFile(c)
	if err := config.SetFileValue(file, key, value); err != nil {
		return err
	}
	return rt.Output().Success(
		map[string]any{"key": key, "value": display(key, value), "file": file},
		fmt.Sprintf("set %s in %s", key, file))
}

// UnsetCmd creates the key removal command.
func UnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove one key from the config file",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnset,
	}
}

func runUnset(c *cobra.Command, args []string) error {
	rt := cmd.NewRuntime(c)
	defer rt.Close(c.Context())
	key := args[0]
	if err := knownKey(key); err != nil {
		return err
	}
	file := targetFile(c)
	if err := config.UnsetFileValue(file, key); err != nil {
		return err
	}
	return rt.Output().Success(
		map[string]any{"key": key, "file": file},
		fmt.Sprintf("removed %s from %s", key, file))
}

// ListCmd creates the effective-configuration dump command.
func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the effective configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(c *cobra.Command, _ []string) error {
	rt := cmd.NewRuntime(c)
	defer rt.Close(c.Context())
	loader, err := reload(c)
	if err != nil {
		return err
	}
	values := loader.All()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	type entry struct {
		Key    string            `json:"key"`
		Value  any               `json:"value"`
		Source config.SourceType `json:"source"`
	}
	entries := make([]entry, 0, len(keys))
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		shown := display(key, values[key])
		src := loader.Source(key)
		entries = append(entries, entry{Key: key, Value: shown, Source: src})
		lines = append(lines, fmt.Sprintf("%-26s %-8s %v", key, src, shown))
	}
	for _, warning := range loader.Warnings() {
		rt.Log().Warn(warning)
	}
	return rt.Output().Success(map[string]any{"entries": entries}, lines...)
}
