package workflows

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/versions"
)

// registerDocumentFlags adds the shared workflow-document input flags.
func registerDocumentFlags(c *cobra.Command) {
	c.Flags().StringP("file", "f", "", "workflow JSON file (\"-\" for stdin)")
	c.Flags().String("json-input", "", "workflow JSON inline")
	c.Flags().Bool("repair", false, "repair near-JSON input (trailing commas, single quotes, bare keys)")
}

func documentInputFromFlags(c *cobra.Command) cmd.WorkflowInput {
	file, _ := c.Flags().GetString("file")
	inline, _ := c.Flags().GetString("json-input")
	repair, _ := c.Flags().GetBool("repair")
	return cmd.WorkflowInput{File: file, Inline: inline, Repair: repair}
}

// CreateCmd creates the workflow create command.
func CreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow on the instance",
		Long: "Create a workflow from a local document. Without --apply the parsed " +
			"and normalized document is previewed and nothing is sent.",
		Args: cobra.NoArgs,
		RunE: runCreate,
	}
	registerDocumentFlags(c)
	cmd.RegisterApplyFlags(c)
	return c
}

func runCreate(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	loaded, err := rt.LoadWorkflow(ctx, documentInputFromFlags(c))
	if err != nil {
		return err
	}
	wf := loaded.Workflow
	if !cmd.ShouldApply(c, fmt.Sprintf("create workflow %q on %s", wf.Name, rt.Config().API.Host)) {
		return rt.Output().Success(map[string]any{
			"preview":  true,
			"workflow": wf,
			"repairs":  loaded.Repairs,
		}, fmt.Sprintf("preview: would create %q (%s); re-run with --apply",
			wf.Name, helpers.Plural(len(wf.Nodes), "node")))
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	created, err := client.CreateWorkflow(ctx, wf)
	if err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{
		"workflow": created,
		"repairs":  loaded.Repairs,
	}, fmt.Sprintf("created %s %q", created.ID, created.Name))
}

// UpdateCmd creates the workflow update command.
func UpdateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "update <workflow-id>",
		Short: "Replace a workflow document on the instance",
		Long: "Push a local document over an existing workflow. The current remote " +
			"state is snapshotted and backed up before anything is replaced.",
		Args: cobra.ExactArgs(1),
		RunE: runUpdate,
	}
	registerDocumentFlags(c)
	cmd.RegisterApplyFlags(c)
	return c
}

func runUpdate(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	id := args[0]
	loaded, err := rt.LoadWorkflow(ctx, documentInputFromFlags(c))
	if err != nil {
		return err
	}
	wf := loaded.Workflow
	if !cmd.ShouldApply(c, fmt.Sprintf("replace workflow %s on %s", id, rt.Config().API.Host)) {
		return rt.Output().Success(map[string]any{
			"preview":    true,
			"workflowId": id,
			"workflow":   wf,
			"repairs":    loaded.Repairs,
		}, fmt.Sprintf("preview: would replace %s with %q (%s); re-run with --apply",
			id, wf.Name, helpers.Plural(len(wf.Nodes), "node")))
	}
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	current, err := client.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	safeguard, err := rt.Safeguard(ctx, id, current, versions.TriggerPrePush)
	if err != nil {
		return err
	}
	updated, err := client.UpdateWorkflow(ctx, id, wf)
	if err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{
		"workflow": updated,
		"backup":   safeguard,
		"repairs":  loaded.Repairs,
	}, fmt.Sprintf("updated %s %q (pre-image: version %d, %s)",
		updated.ID, updated.Name, safeguard.Version, safeguard.BackupPath))
}
