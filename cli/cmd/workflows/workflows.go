// Package workflows implements the workflow command group: listing,
// fetching, pushing, lifecycle toggles, validation, autofix, surgical
// diffs, and webhook triggering.
package workflows

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/remote"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// Cmd builds the workflows command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"workflow", "wf"},
		Short:   "Manage workflows on the configured n8n instance",
	}
	group.AddCommand(
		ListCmd(),
		GetCmd(),
		CreateCmd(),
		UpdateCmd(),
		DeleteCmd(),
		ActivateCmd(),
		DeactivateCmd(),
		ValidateCmd(),
		AutofixCmd(),
		DiffCmd(),
		TriggerCmd(),
	)
	return group
}

// ListCmd creates the workflow list command.
func ListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Long:  "List workflows with optional filtering by activation state, tags, and name.",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	c.Flags().Bool("active", false, "only active workflows")
	c.Flags().Bool("inactive", false, "only inactive workflows")
	c.Flags().StringSlice("tags", nil, "filter by tag names")
	c.Flags().String("name", "", "filter by workflow name")
	c.Flags().Int("limit", 0, "maximum workflows per page (server default when 0)")
	c.Flags().String("cursor", "", "pagination cursor from a previous page")
	c.Flags().Bool("all", false, "follow cursors until the listing is exhausted")
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
	opts, err := listOptionsFromFlags(c)
	if err != nil {
		return err
	}
	all, _ := c.Flags().GetBool("all")
	var (
		flows      []*workflow.Workflow
		nextCursor string
	)
	if all {
		flows, err = client.ListAllWorkflows(ctx, opts)
	} else {
		var page *remote.Page[*workflow.Workflow]
		page, err = client.ListWorkflows(ctx, opts)
		if err == nil {
			flows, nextCursor = page.Data, page.NextCursor
		}
	}
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(flows)+1)
	for _, wf := range flows {
		lines = append(lines, fmt.Sprintf("%-24s %-8s %s", wf.ID, activeLabel(wf.Active), wf.Name))
	}
	lines = append(lines, fmt.Sprintf("total: %s", helpers.Plural(len(flows), "workflow")))
	data := map[string]any{"workflows": flows}
	if nextCursor != "" {
		data["nextCursor"] = nextCursor
	}
	return rt.Output().Success(data, lines...)
}

func listOptionsFromFlags(c *cobra.Command) (opts remote.ListWorkflowsOptions, err error) {
	activeOnly, _ := c.Flags().GetBool("active")
	inactiveOnly, _ := c.Flags().GetBool("inactive")
	if activeOnly && inactiveOnly {
		return opts, core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"--active and --inactive are mutually exclusive")
	}
	if activeOnly || inactiveOnly {
		opts.Active = &activeOnly
	}
	opts.Tags, _ = c.Flags().GetStringSlice("tags")
	opts.Name, _ = c.Flags().GetString("name")
	opts.Limit, _ = c.Flags().GetInt("limit")
	opts.Cursor, _ = c.Flags().GetString("cursor")
	return opts, nil
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// GetCmd creates the workflow get command.
func GetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "get <workflow-id>",
		Short: "Fetch one workflow document",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	c.Flags().StringP("output", "o", "", "write the exported document to a file (\"-\" for stdout)")
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
	wf, err := client.GetWorkflow(ctx, args[0])
	if err != nil {
		return err
	}
	if output, _ := c.Flags().GetString("output"); output != "" {
		doc, serr := workflow.Serialize(wf, workflow.SerializeOptions{Full: true})
		if serr != nil {
			return serr
		}
		if werr := helpers.WriteDocument(c.OutOrStdout(), output, doc); werr != nil {
			return werr
		}
		if output != "-" {
			return rt.Output().Success(map[string]any{"id": wf.ID, "written": output},
				fmt.Sprintf("wrote %s to %s", wf.ID, output))
		}
		return nil
	}
	return rt.Output().Success(wf,
		fmt.Sprintf("%s %q (%s, %s)", wf.ID, wf.Name, activeLabel(wf.Active), helpers.Plural(len(wf.Nodes), "node")))
}
