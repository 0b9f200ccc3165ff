// Package versions implements the versions command group over the local
// snapshot store: history listing, snapshot export, structural compare,
// rollback, retention trimming, and the audit trail.
package versions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	vstore "github.com/n8nkit/n8nkit/engine/versions"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// Cmd builds the versions command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:     "versions",
		Aliases: []string{"history"},
		Short:   "Inspect and restore local workflow snapshots",
	}
	group.AddCommand(
		ListCmd(),
		GetCmd(),
		DiffCmd(),
		RollbackCmd(),
		SnapshotCmd(),
		PruneCmd(),
		StatsCmd(),
		AuditCmd(),
	)
	return group
}

// parseVersionNumber accepts both "5" and the "v5" form the listing prints.
func parseVersionNumber(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(arg, "v"))
	if err != nil || n <= 0 {
		return 0, core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"version must be a positive number, got %q", arg)
	}
	return n, nil
}

func metaLine(m vstore.Meta) string {
	line := fmt.Sprintf("v%-4d %-13s %s  %s",
		m.VersionNumber, m.Trigger,
		m.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		helpers.Plural(m.NodeCount, "node"))
	if m.Note != "" {
		line += "  " + m.Note
	}
	return line
}

// ListCmd creates the snapshot listing command.
func ListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List stored snapshots of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}
	c.Flags().Int("limit", 0, "maximum snapshots to return (store default when 0)")
	return c
}

func runList(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	st, err := rt.Store(ctx)
	if err != nil {
		return err
	}
	limit, _ := c.Flags().GetInt("limit")
	metas, err := st.List(ctx, args[0], limit)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		return rt.Output().Success(
			map[string]any{"workflowId": args[0], "versions": []vstore.Meta{}},
			fmt.Sprintf("no snapshots stored for workflow %s", args[0]))
	}
	lines := make([]string, 0, len(metas))
	for _, m := range metas {
		lines = append(lines, metaLine(m))
	}
	return rt.Output().Success(map[string]any{"workflowId": args[0], "versions": metas}, lines...)
}

// GetCmd creates the snapshot fetch command.
func GetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "get <workflow-id> <version>",
		Short: "Fetch one stored snapshot",
		Args:  cobra.ExactArgs(2),
		RunE:  runGet,
	}
	c.Flags().StringP("output", "o", "", "write the snapshot document to a file (\"-\" for stdout)")
	return c
}

func runGet(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	st, err := rt.Store(ctx)
	if err != nil {
		return err
	}
	version, err := parseVersionNumber(args[1])
	if err != nil {
		return err
	}
	snap, err := st.Get(ctx, args[0], version)
	if err != nil {
		return err
	}
	if snap == nil {
		return core.NewError(core.KindData, core.CodeVersionNotFound,
			"workflow %s has no version %d", args[0], version)
	}
	if output, _ := c.Flags().GetString("output"); output != "" {
		doc, serr := workflow.Serialize(snap.Workflow, workflow.SerializeOptions{Full: true})
		if serr != nil {
			return serr
		}
		if werr := helpers.WriteDocument(c.OutOrStdout(), output, doc); werr != nil {
			return werr
		}
		if output != "-" {
			return rt.Output().Success(
				map[string]any{
					"workflowId":    snap.WorkflowID,
					"versionNumber": snap.VersionNumber,
					"written":       output,
				},
				fmt.Sprintf("wrote %s version %d to %s", snap.WorkflowID, snap.VersionNumber, output))
		}
		return nil
	}
	return rt.Output().Success(snap, metaLine(snap.Meta))
}

// SnapshotCmd creates the manual snapshot command.
func SnapshotCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "snapshot <workflow-id>",
		Short: "Store a manual snapshot of a workflow",
		Long: "Store the workflow's current instance state as a manual snapshot, " +
			"or a local document given with --file.",
		Args: cobra.ExactArgs(1),
		RunE: runSnapshot,
	}
	c.Flags().StringP("file", "f", "", "snapshot a local document instead of the instance state (\"-\" for stdin)")
	c.Flags().Bool("repair", false, "attempt JSON repair before parsing a local document")
	return c
}

func runSnapshot(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	in := cmd.WorkflowInput{}
	in.Repair, _ = c.Flags().GetBool("repair")
	if file, _ := c.Flags().GetString("file"); file != "" {
		in.File = file
	} else {
		in.ID = args[0]
	}
	loaded, err := rt.LoadWorkflow(ctx, in)
	if err != nil {
		return err
	}
	st, err := rt.Store(ctx)
	if err != nil {
		return err
	}
	version, err := st.CreateSnapshot(ctx, args[0], loaded.Workflow, vstore.TriggerManual)
	if err != nil {
		return err
	}
	return rt.Output().Success(
		map[string]any{"workflowId": args[0], "versionNumber": version},
		fmt.Sprintf("stored %s as version %d", args[0], version))
}
