// Package tags implements the workflow tag command group, including
// attaching tag sets to workflows.
package tags

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/remote"
)

// Cmd builds the tags command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:     "tags",
		Aliases: []string{"tag"},
		Short:   "Manage workflow tags",
	}
	group.AddCommand(
		ListCmd(),
		CreateCmd(),
		UpdateCmd(),
		DeleteCmd(),
		AssignCmd(),
	)
	return group
}

func tagLine(t *remote.Tag) string {
	return fmt.Sprintf("%-24s %s", t.ID, t.Name)
}

// ListCmd creates the tag listing command.
func ListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	c.Flags().Int("limit", 0, "maximum tags per page (server default when 0)")
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
	limit, _ := c.Flags().GetInt("limit")
	cursor, _ := c.Flags().GetString("cursor")
	page, err := client.ListTags(ctx, limit, cursor)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(page.Data)+1)
	for _, t := range page.Data {
		lines = append(lines, tagLine(t))
	}
	lines = append(lines, fmt.Sprintf("total: %s", helpers.Plural(len(page.Data), "tag")))
	data := map[string]any{"tags": page.Data}
	if page.NextCursor != "" {
		data["nextCursor"] = page.NextCursor
	}
	return rt.Output().Success(data, lines...)
}

// CreateCmd creates the tag creation command.
func CreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}
}

func runCreate(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	t, err := client.CreateTag(ctx, args[0])
	if err != nil {
		return err
	}
	return rt.Output().Success(t, fmt.Sprintf("created tag %s (%s)", t.Name, t.ID))
}

// UpdateCmd creates the tag rename command.
func UpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <tag-id> <name>",
		Short: "Rename a tag",
		Args:  cobra.ExactArgs(2),
		RunE:  runUpdate,
	}
}

func runUpdate(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	t, err := client.UpdateTag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return rt.Output().Success(t, fmt.Sprintf("renamed tag %s to %s", t.ID, t.Name))
}

// DeleteCmd creates the tag deletion command.
func DeleteCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "delete <tag-id>",
		Short: "Delete a tag",
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
	force, _ := c.Flags().GetBool("force")
	if err := helpers.ConfirmDestructive(helpers.ConfirmOptions{
		Action:      fmt.Sprintf("delete tag %s", args[0]),
		Count:       1,
		Force:       force,
		Interactive: helpers.StdinIsInteractive(),
		In:          c.InOrStdin(),
		Out:         c.ErrOrStderr(),
	}); err != nil {
		return err
	}
	if err := client.DeleteTag(ctx, args[0]); err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{"id": args[0], "deleted": true},
		fmt.Sprintf("deleted tag %s", args[0]))
}

// AssignCmd creates the workflow tag assignment command.
func AssignCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "assign <workflow-id>",
		Short: "Replace a workflow's tag set",
		Long:  "Replace the tags attached to a workflow with the given tag ids.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAssign,
	}
	c.Flags().StringSlice("tag-ids", nil, "tag ids to attach (empty clears all tags)")
	return c
}

func runAssign(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	tagIDs, _ := c.Flags().GetStringSlice("tag-ids")
	tags, err := client.UpdateWorkflowTags(ctx, args[0], tagIDs)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	line := fmt.Sprintf("workflow %s now carries: %s", args[0], strings.Join(names, ", "))
	if len(names) == 0 {
		line = fmt.Sprintf("workflow %s now carries no tags", args[0])
	}
	return rt.Output().Success(map[string]any{"workflowId": args[0], "tags": tags}, line)
}
