// Package cli assembles the n8nkit command tree and maps command outcomes
// to process exit codes.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/cmd/audit"
	"github.com/n8nkit/n8nkit/cli/cmd/auth"
	"github.com/n8nkit/n8nkit/cli/cmd/configcmd"
	"github.com/n8nkit/n8nkit/cli/cmd/credentials"
	"github.com/n8nkit/n8nkit/cli/cmd/executions"
	"github.com/n8nkit/n8nkit/cli/cmd/health"
	"github.com/n8nkit/n8nkit/cli/cmd/nodes"
	"github.com/n8nkit/n8nkit/cli/cmd/tags"
	"github.com/n8nkit/n8nkit/cli/cmd/templates"
	"github.com/n8nkit/n8nkit/cli/cmd/variables"
	"github.com/n8nkit/n8nkit/cli/cmd/versions"
	"github.com/n8nkit/n8nkit/cli/cmd/workflows"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/pkg/config"
	"github.com/n8nkit/n8nkit/pkg/logger"
	"github.com/n8nkit/n8nkit/pkg/version"
)

// Root builds the n8nkit command tree.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "n8nkit",
		Short: "Offline-first toolkit for n8n workflows",
		Long: "n8nkit validates, fixes, diffs and versions n8n workflows against a local\n" +
			"node catalog, and talks to an n8n instance when one is configured.",
		Version:           version.Get().Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: bootstrap,
	}

	pf := root.PersistentFlags()
	pf.Bool("json", false, "Emit a machine-readable result envelope on stdout")
	pf.String("save", "", "Write the full result envelope to a file")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.BoolP("quiet", "q", false, "Only log errors")
	pf.Bool("no-color", false, "Disable colored output")
	pf.String("profile", "", "Named configuration profile to load")
	pf.String("config", "", "Path to the configuration file")
	pf.String("host", "", "n8n instance base URL (overrides configuration)")
	pf.String("api-key", "", "n8n API key (overrides configuration)")

	root.AddCommand(
		workflows.Cmd(),
		versions.Cmd(),
		nodes.Cmd(),
		templates.Cmd(),
		executions.Cmd(),
		credentials.Cmd(),
		variables.Cmd(),
		tags.Cmd(),
		audit.Cmd(),
		health.Cmd(),
		configcmd.Cmd(),
		auth.Cmd(),
		versionCmd(),
	)
	return root
}

// bootstrap loads configuration, builds the logger and hangs both on the
// command context before any subcommand runs.
func bootstrap(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	loader := config.NewLoader()
	cfg, err := loader.Load(ctx, cmd.LoaderOptions(c))
	if err != nil {
		return err
	}
	if cfg.Log.NoColor {
		os.Setenv("NO_COLOR", "1")
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.LogLevel(cfg.Log.EffectiveLevel())
	log := logger.NewLogger(logCfg)
	for _, warning := range loader.Warnings() {
		log.Warn(warning)
	}
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = logger.ContextWithLogger(ctx, log)
	c.SetContext(ctx)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			info := version.Get()
			return helpers.OutputFromCommand(c).Success(info,
				fmt.Sprintf("n8nkit %s (commit %s, built %s)", info.Version, info.CommitHash, info.BuildDate))
		},
	}
}

// Execute runs the command tree and resolves the process exit code. Errors
// that a run function already rendered are not rendered again.
func Execute(ctx context.Context, args []string) int {
	root := Root()
	root.SetArgs(args)
	executed, err := root.ExecuteContextC(ctx)
	if err == nil {
		return core.ExitOK
	}
	err = classifyParseError(err)
	if !helpers.IsEmitted(err) {
		helpers.OutputFromCommand(executed).Failure(err)
	}
	return core.ExitCodeFor(err)
}

// classifyParseError turns cobra's flag and argument errors into coded usage
// errors so they exit with the usage code instead of the general one.
func classifyParseError(err error) error {
	if _, ok := core.AsError(err); ok {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unknown command"):
		return core.NewError(core.KindUsage, core.CodeUnknownCommand, "%s", msg)
	case strings.Contains(msg, "required flag"),
		strings.Contains(msg, "accepts"),
		strings.Contains(msg, "arg(s)"),
		strings.Contains(msg, "requires at least"):
		return core.NewError(core.KindUsage, core.CodeMissingArgument, "%s", msg)
	case strings.Contains(msg, "unknown flag"),
		strings.Contains(msg, "unknown shorthand flag"),
		strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "flag needs an argument"):
		return core.NewError(core.KindUsage, core.CodeInvalidArgument, "%s", msg)
	}
	return err
}
