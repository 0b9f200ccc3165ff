// Package executions implements the execution command group: run history,
// single-run inspection, deletion, and retries.
package executions

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/remote"
)

// Cmd builds the executions command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:     "executions",
		Aliases: []string{"execution", "exec"},
		Short:   "Inspect workflow runs on the instance",
	}
	group.AddCommand(
		ListCmd(),
		GetCmd(),
		DeleteCmd(),
		RetryCmd(),
	)
	return group
}

func parseExecutionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"execution id must be a number, got %q", arg)
	}
	return id, nil
}

func statusLabel(e *remote.Execution) string {
	if e.Status != "" {
		return e.Status
	}
	if e.Finished {
		return "finished"
	}
	return "running"
}

func executionLine(e *remote.Execution) string {
	line := fmt.Sprintf("%-10d %-9s %-20s %s", e.ID, statusLabel(e), e.WorkflowID, e.StartedAt)
	if e.StoppedAt != "" {
		line += " .. " + e.StoppedAt
	}
	return line
}

// ListCmd creates the execution listing command.
func ListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	c.Flags().String("workflow-id", "", "only runs of this workflow")
	c.Flags().String("status", "", "only runs with this status: success, error or waiting")
	c.Flags().Int("limit", 0, "maximum executions per page (server default when 0)")
	c.Flags().String("cursor", "", "pagination cursor from a previous page")
	return c
}

func runList(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	var opts remote.ListExecutionsOptions
	opts.WorkflowID, _ = c.Flags().GetString("workflow-id")
	opts.Status, _ = c.Flags().GetString("status")
	opts.Limit, _ = c.Flags().GetInt("limit")
	opts.Cursor, _ = c.Flags().GetString("cursor")
	page, err := client.ListExecutions(ctx, opts)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(page.Data)+1)
	for _, e := range page.Data {
		lines = append(lines, executionLine(e))
	}
	lines = append(lines, fmt.Sprintf("total: %s", helpers.Plural(len(page.Data), "execution")))
	data := map[string]any{"executions": page.Data}
	if page.NextCursor != "" {
		data["nextCursor"] = page.NextCursor
	}
	return rt.Output().Success(data, lines...)
}

// GetCmd creates the single-execution command.
func GetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "get <execution-id>",
		Short: "Fetch one execution",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	c.Flags().Bool("include-data", false, "include the full run data payload")
	return c
}

func runGet(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	id, err := parseExecutionID(args[0])
	if err != nil {
		return err
	}
	includeData, _ := c.Flags().GetBool("include-data")
	e, err := client.GetExecution(ctx, id, includeData)
	if err != nil {
		return err
	}
	return rt.Output().Success(e, executionLine(e))
}

// DeleteCmd creates the execution deletion command.
func DeleteCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "delete <execution-id>",
		Short: "Delete one execution record",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
	c.Flags().Bool("force", false, "skip the confirmation prompt")
	return c
}

func runDelete(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	id, err := parseExecutionID(args[0])
	if err != nil {
		return err
	}
	force, _ := c.Flags().GetBool("force")
	if err := helpers.ConfirmDestructive(helpers.ConfirmOptions{
		Action:      fmt.Sprintf("delete execution %d", id),
		Count:       1,
		Force:       force,
		Interactive: helpers.StdinIsInteractive(),
		In:          c.InOrStdin(),
		Out:         c.ErrOrStderr(),
	}); err != nil {
		return err
	}
	if err := client.DeleteExecution(ctx, id); err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{"id": id, "deleted": true},
		fmt.Sprintf("deleted execution %d", id))
}

// RetryCmd creates the execution retry command.
func RetryCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "retry <execution-id>",
		Short: "Retry a failed execution",
		Args:  cobra.ExactArgs(1),
		RunE:  runRetry,
	}
	c.Flags().Bool("load-latest", false, "run against the current workflow version instead of the one that failed")
	return c
}

func runRetry(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	id, err := parseExecutionID(args[0])
	if err != nil {
		return err
	}
	loadLatest, _ := c.Flags().GetBool("load-latest")
	e, err := client.RetryExecution(ctx, id, loadLatest)
	if err != nil {
		return err
	}
	return rt.Output().Success(e, fmt.Sprintf("retried execution %d as %d", id, e.ID))
}
