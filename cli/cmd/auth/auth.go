// Package auth implements credential bootstrap for the CLI itself:
// persisting the API key and checking whether the configured identity
// works against the instance.
package auth

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/pkg/config"
)

// Cmd builds the auth command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:   "auth",
		Short: "Configure how n8nkit talks to the instance",
	}
	group.AddCommand(
		SetKeyCmd(),
		StatusCmd(),
	)
	return group
}

// SetKeyCmd creates the key persistence command. The key is read as an
// argument, from stdin with "-", or prompted for; it never transits argv
// history unnoticed since the prompt is the documented path.
func SetKeyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "set-key [api-key]",
		Short: "Persist the n8n API key to the config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSetKey,
	}
	c.Flags().String("host", "", "also persist the instance URL")
	return c
}

func runSetKey(c *cobra.Command, args []string) error {
	rt := cmd.NewRuntime(c)
	defer rt.Close(c.Context())
	key := ""
	if len(args) == 1 {
		key = args[0]
	}
	switch {
	case key == "" && helpers.StdinIsInteractive():
		fmt.Fprint(c.ErrOrStderr(), "API key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(c.ErrOrStderr())
		if err != nil {
			return core.WrapError(core.KindIO, core.CodeIOError, err, "read api key")
		}
		key = strings.TrimSpace(string(raw))
	case key == "" || key == "-":
		raw, err := helpers.ReadArgument(c.InOrStdin(), "-")
		if err != nil {
			return err
		}
		key = strings.TrimSpace(string(raw))
	}
	if key == "" {
		return core.NewError(core.KindUsage, core.CodeMissingArgument,
			"no api key given; pass it as an argument or on stdin")
	}
	file := targetFile(c)
	if err := config.SetFileValue(file, "api.api_key", key); err != nil {
		return err
	}
	data := map[string]any{"file": file, "key": config.SensitiveString(key).String()}
	lines := []string{fmt.Sprintf("stored the api key in %s", file)}
	if host, _ := c.Flags().GetString("host"); host != "" {
		if err := config.SetFileValue(file, "api.host", host); err != nil {
			return err
		}
		data["host"] = host
		lines = append(lines, fmt.Sprintf("stored the host %s", host))
	}
	return rt.Output().Success(data, lines...)
}

func targetFile(c *cobra.Command) string {
	if file, _ := c.Root().PersistentFlags().GetString("config"); file != "" {
		return file
	}
	return config.DefaultConfigPath()
}

// StatusCmd creates the identity check command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configured identity and whether the instance accepts it",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	cfg := rt.Config()
	data := map[string]any{
		"host":   cfg.API.Host,
		"keySet": cfg.API.APIKey.IsSet(),
	}
	lines := []string{
		fmt.Sprintf("host:    %s", orUnset(cfg.API.Host)),
		fmt.Sprintf("api key: %s", setLabel(cfg.API.APIKey.IsSet())),
	}
	client, err := rt.Remote()
	if err != nil {
		data["status"] = "unconfigured"
		lines = append(lines, "status:  unconfigured")
		return rt.Output().Success(data, lines...)
	}
	if h, herr := client.CheckHealth(ctx); herr != nil {
		data["status"] = "unreachable"
		data["error"] = herr.Error()
		lines = append(lines, fmt.Sprintf("status:  unreachable (%s)", herr))
	} else {
		data["status"] = h.Status
		lines = append(lines, fmt.Sprintf("status:  %s", h.Status))
	}
	return rt.Output().Success(data, lines...)
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func setLabel(set bool) string {
	if set {
		return "set"
	}
	return "not set"
}
