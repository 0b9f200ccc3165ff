// Package variables implements the instance variable command group.
package variables

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
)

// Cmd builds the variables command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:     "variables",
		Aliases: []string{"variable", "vars"},
		Short:   "Manage instance variables",
	}
	group.AddCommand(
		ListCmd(),
		CreateCmd(),
		UpdateCmd(),
		DeleteCmd(),
	)
	return group
}

// ListCmd creates the variable listing command.
func ListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List instance variables",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	c.Flags().Int("limit", 0, "maximum variables per page (server default when 0)")
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
	page, err := client.ListVariables(ctx, limit, cursor)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(page.Data)+1)
	for _, v := range page.Data {
		lines = append(lines, fmt.Sprintf("%-16s %-28s %s", v.ID, v.Key, v.Value))
	}
	lines = append(lines, fmt.Sprintf("total: %s", helpers.Plural(len(page.Data), "variable")))
	data := map[string]any{"variables": page.Data}
	if page.NextCursor != "" {
		data["nextCursor"] = page.NextCursor
	}
	return rt.Output().Success(data, lines...)
}

// CreateCmd creates the variable creation command.
func CreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <key> <value>",
		Short: "Create an instance variable",
		Args:  cobra.ExactArgs(2),
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
	if err := client.CreateVariable(ctx, args[0], args[1]); err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{"key": args[0], "value": args[1]},
		fmt.Sprintf("created variable %s", args[0]))
}

// UpdateCmd creates the variable update command.
func UpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <variable-id> <key> <value>",
		Short: "Update an instance variable",
		Args:  cobra.ExactArgs(3),
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
	if err := client.UpdateVariable(ctx, args[0], args[1], args[2]); err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{"id": args[0], "key": args[1], "value": args[2]},
		fmt.Sprintf("updated variable %s", args[0]))
}

// DeleteCmd creates the variable deletion command.
func DeleteCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "delete <variable-id>",
		Short: "Delete an instance variable",
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
		Action:      fmt.Sprintf("delete variable %s", args[0]),
		Count:       1,
		Force:       force,
		Interactive: helpers.StdinIsInteractive(),
		In:          c.InOrStdin(),
		Out:         c.ErrOrStderr(),
	}); err != nil {
		return err
	}
	if err := client.DeleteVariable(ctx, args[0]); err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{"id": args[0], "deleted": true},
		fmt.Sprintf("deleted variable %s", args[0]))
}
