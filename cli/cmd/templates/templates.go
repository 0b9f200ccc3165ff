// Package templates implements discovery over the bundled workflow
// template catalog: ranked search, task browsing, and template export.
package templates

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
)

// Cmd builds the templates command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template", "tpl"},
		Short:   "Browse the bundled workflow templates",
	}
	group.AddCommand(
		SearchCmd(),
		GetCmd(),
		TasksCmd(),
	)
	return group
}

func templateLine(t kb.TemplateSummary) string {
	return fmt.Sprintf("%-8d %-44s %3d nodes %8d views",
		t.ID, helpers.Truncate(t.Name, 42), t.NodeCount, t.Views)
}

// SearchCmd creates the template search command.
func SearchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search templates by text, task, or the nodes they use",
		Long: "Full-text search over template names and descriptions. --task " +
			"browses by task label instead; --nodes finds templates using every " +
			"listed node type. Without arguments the most viewed templates come back.",
		Args: cobra.ArbitraryArgs,
		RunE: runSearch,
	}
	c.Flags().String("task", "", "browse templates for one task label")
	c.Flags().StringSlice("nodes", nil, "node types the template must use")
	c.Flags().Int("limit", 0, "maximum results (default 20, capped at 100)")
	return c
}

func runSearch(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	catalog, err := rt.KB(ctx)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(args, " "))
	task, _ := c.Flags().GetString("task")
	nodeTypes, _ := c.Flags().GetStringSlice("nodes")
	limit, _ := c.Flags().GetInt("limit")
	if task != "" && len(nodeTypes) > 0 {
		return core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"--task and --nodes are mutually exclusive")
	}
	if query != "" && (task != "" || len(nodeTypes) > 0) {
		return core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"a text query cannot be combined with --task or --nodes")
	}
	var hits []kb.TemplateSummary
	switch {
	case task != "":
		hits, err = catalog.TemplatesForTask(ctx, task, limit)
	case len(nodeTypes) > 0:
		hits, err = catalog.TemplatesForNodes(ctx, nodeTypes, limit)
	default:
		hits, err = catalog.SearchTemplates(ctx, query, limit)
	}
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(hits)+1)
	for _, t := range hits {
		lines = append(lines, templateLine(t))
	}
	lines = append(lines, fmt.Sprintf("total: %s", helpers.Plural(len(hits), "template")))
	return rt.Output().Success(map[string]any{"templates": hits}, lines...)
}

// GetCmd creates the template fetch command.
func GetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "get <template-id>",
		Short: "Fetch one template including its workflow document",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	c.Flags().StringP("output", "o", "", "write the template's workflow to a file (\"-\" for stdout)")
	return c
}

func runGet(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	catalog, err := rt.KB(ctx)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"template id must be a number, got %q", args[0])
	}
	t, err := catalog.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return core.NewError(core.KindData, core.CodeNotFound, "no template with id %d", id)
	}
	if output, _ := c.Flags().GetString("output"); output != "" {
		if werr := helpers.WriteDocument(c.OutOrStdout(), output, t.Workflow); werr != nil {
			return werr
		}
		if output != "-" {
			return rt.Output().Success(
				map[string]any{"id": t.ID, "name": t.Name, "written": output},
				fmt.Sprintf("wrote template %d to %s", t.ID, output))
		}
		return nil
	}
	lines := []string{templateLine(t.TemplateSummary)}
	if t.Description != "" {
		lines = append(lines, helpers.Truncate(t.Description, 120))
	}
	if len(t.Tasks) > 0 {
		lines = append(lines, fmt.Sprintf("tasks:    %s", strings.Join(t.Tasks, ", ")))
	}
	if len(t.Services) > 0 {
		lines = append(lines, fmt.Sprintf("services: %s", strings.Join(t.Services, ", ")))
	}
	return rt.Output().Success(t, lines...)
}

// TasksCmd creates the task label listing command.
func TasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List task labels and how many templates carry each",
		Args:  cobra.NoArgs,
		RunE:  runTasks,
	}
}

func runTasks(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	catalog, err := rt.KB(ctx)
	if err != nil {
		return err
	}
	counts, err := catalog.ListTasks(ctx)
	if err != nil {
		return err
	}
	names := kb.SortedTaskNames(counts)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%-32s %s", name, helpers.Plural(counts[name], "template")))
	}
	if len(lines) == 0 {
		lines = []string{"no task labels in the catalog"}
	}
	return rt.Output().Success(map[string]any{"tasks": counts}, lines...)
}
