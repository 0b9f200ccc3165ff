package versions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	vstore "github.com/n8nkit/n8nkit/engine/versions"
)

// PruneCmd creates the history trimming command.
func PruneCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "prune [workflow-id]",
		Short: "Trim snapshot history",
		Long: "Trim one workflow's history to the newest --keep snapshots, drop a " +
			"workflow's history entirely with --all, or truncate the whole store " +
			"by combining --all with no workflow id.",
		Args: cobra.MaximumNArgs(1),
		RunE: runPrune,
	}
	c.Flags().Int("keep", vstore.DefaultKeep, "snapshots to keep")
	c.Flags().Bool("all", false, "remove every snapshot instead of trimming")
	c.Flags().Bool("force", false, "skip the confirmation prompt")
	return c
}

func runPrune(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	st, err := rt.Store(ctx)
	if err != nil {
		return err
	}
	all, _ := c.Flags().GetBool("all")
	force, _ := c.Flags().GetBool("force")

	if len(args) == 0 {
		if !all {
			return core.NewError(core.KindUsage, core.CodeMissingArgument,
				"pass a workflow id to trim, or --all to truncate the whole store")
		}
		return truncateStore(c, rt, st, force)
	}

	workflowID := args[0]
	if all {
		return deleteHistory(c, rt, st, workflowID, force)
	}
	keep, _ := c.Flags().GetInt("keep")
	if err := helpers.ConfirmDestructive(helpers.ConfirmOptions{
		Action:      fmt.Sprintf("prune workflow %s down to the newest %s", workflowID, helpers.Plural(keep, "snapshot")),
		Count:       1,
		Force:       force,
		Interactive: helpers.StdinIsInteractive(),
		In:          c.InOrStdin(),
		Out:         c.ErrOrStderr(),
	}); err != nil {
		return err
	}
	removed, err := st.Prune(ctx, workflowID, keep)
	if err != nil {
		return err
	}
	return rt.Output().Success(
		map[string]any{"workflowId": workflowID, "removed": removed, "kept": keep},
		fmt.Sprintf("removed %s", helpers.Plural(removed, "snapshot")))
}

func deleteHistory(c *cobra.Command, rt *cmd.Runtime, st *vstore.Store, workflowID string, force bool) error {
	ctx := c.Context()
	metas, err := st.List(ctx, workflowID, 10000)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		return rt.Output().Success(
			map[string]any{"workflowId": workflowID, "removed": 0},
			fmt.Sprintf("no snapshots stored for workflow %s", workflowID))
	}
	if err := helpers.ConfirmDestructive(helpers.ConfirmOptions{
		Action:      fmt.Sprintf("delete all %s of workflow %s", helpers.Plural(len(metas), "snapshot"), workflowID),
		Count:       len(metas),
		All:         true,
		Force:       force,
		Interactive: helpers.StdinIsInteractive(),
		In:          c.InOrStdin(),
		Out:         c.ErrOrStderr(),
	}); err != nil {
		return err
	}
	removed, err := st.DeleteAll(ctx, workflowID)
	if err != nil {
		return err
	}
	return rt.Output().Success(
		map[string]any{"workflowId": workflowID, "removed": removed},
		fmt.Sprintf("removed %s", helpers.Plural(removed, "snapshot")))
}

func truncateStore(c *cobra.Command, rt *cmd.Runtime, st *vstore.Store, force bool) error {
	ctx := c.Context()
	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	if err := helpers.ConfirmDestructive(helpers.ConfirmOptions{
		Action: fmt.Sprintf("truncate the version store (%s across %s)",
			helpers.Plural(stats.Snapshots, "snapshot"), helpers.Plural(stats.Workflows, "workflow")),
		Count:       stats.Snapshots,
		All:         true,
		Force:       force,
		Interactive: helpers.StdinIsInteractive(),
		In:          c.InOrStdin(),
		Out:         c.ErrOrStderr(),
	}); err != nil {
		return err
	}
	removed, err := st.Truncate(ctx)
	if err != nil {
		return err
	}
	return rt.Output().Success(
		map[string]any{"removed": removed, "truncated": true},
		fmt.Sprintf("removed %s", helpers.Plural(removed, "snapshot")))
}

// StatsCmd creates the store statistics command.
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show version store statistics",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
}

func runStats(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	st, err := rt.Store(ctx)
	if err != nil {
		return err
	}
	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	lines := []string{
		fmt.Sprintf("path:      %s", stats.Path),
		fmt.Sprintf("workflows: %d", stats.Workflows),
		fmt.Sprintf("snapshots: %d (%s)", stats.Snapshots, formatBytes(stats.SizeBytes)),
		fmt.Sprintf("audit:     %s", helpers.Plural(stats.AuditRecords, "record")),
	}
	if stats.Snapshots > 0 {
		lines = append(lines, fmt.Sprintf("range:     %s to %s",
			stats.Oldest.Local().Format("2006-01-02 15:04"),
			stats.Newest.Local().Format("2006-01-02 15:04")))
	}
	return rt.Output().Success(stats, lines...)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// AuditCmd creates the audit trail command.
func AuditCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "audit [workflow-id]",
		Short: "Show history-changing actions recorded by the store",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAudit,
	}
	c.Flags().Int("limit", 0, "maximum records to return (store default when 0)")
	return c
}

func runAudit(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	st, err := rt.Store(ctx)
	if err != nil {
		return err
	}
	workflowID := ""
	if len(args) == 1 {
		workflowID = args[0]
	}
	limit, _ := c.Flags().GetInt("limit")
	records, err := st.Audit(ctx, workflowID, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return rt.Output().Success(map[string]any{"records": []vstore.AuditRecord{}}, "no audit records")
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("%s %-10s %-16s %s",
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Action, rec.WorkflowID, rec.Detail))
	}
	return rt.Output().Success(map[string]any{"records": records}, lines...)
}
