// Package audit implements the security audit command group over the
// instance's audit endpoint.
package audit

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/engine/remote"
)

// Cmd builds the audit command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:   "audit",
		Short: "Run a security audit against the instance",
	}
	group.AddCommand(GenerateCmd())
	return group
}

// GenerateCmd creates the audit report command.
func GenerateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "generate",
		Short: "Generate a security audit report",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
	c.Flags().StringSlice("categories", nil,
		"report sections: credentials, database, nodes, filesystem, instance (all when empty)")
	c.Flags().Int("days-abandoned", 0, "days without execution before a workflow counts as abandoned")
	return c
}

func runGenerate(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	categories, _ := c.Flags().GetStringSlice("categories")
	days, _ := c.Flags().GetInt("days-abandoned")
	report, err := client.GenerateAudit(ctx, remote.AuditOptions{
		Categories:            categories,
		DaysAbandonedWorkflow: days,
	})
	if err != nil {
		return err
	}
	sections := make([]string, 0, len(report))
	for name := range report {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	lines := make([]string, 0, len(sections)+1)
	for _, name := range sections {
		lines = append(lines, fmt.Sprintf("section: %s", name))
	}
	lines = append(lines, "use --json for the full report")
	return rt.Output().Success(report, lines...)
}
