package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/remote"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// workflowSummary is the per-item payload for lifecycle results; carrying
// whole documents would bloat a bulk envelope.
type workflowSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func summarize(wf *workflow.Workflow, err error) (*workflowSummary, error) {
	if err != nil {
		return nil, err
	}
	return &workflowSummary{ID: wf.ID, Name: wf.Name, Active: wf.Active}, nil
}

func marshalFull(wf *workflow.Workflow) ([]byte, error) {
	return workflow.Serialize(wf, workflow.SerializeOptions{Full: true})
}

// registerBulkFlags adds the flags shared by the commands that fan out over
// many workflow ids.
func registerBulkFlags(c *cobra.Command) {
	c.Flags().StringSlice("ids", nil, "comma-separated workflow ids")
	c.Flags().Int("concurrency", helpers.DefaultBulkConcurrency,
		fmt.Sprintf("parallel requests (max %d)", helpers.MaxBulkConcurrency))
}

// collectIDs merges positional ids with --ids, preserving order and
// dropping duplicates.
func collectIDs(c *cobra.Command, args []string) ([]string, error) {
	flagIDs, _ := c.Flags().GetStringSlice("ids")
	merged := make([]string, 0, len(args)+len(flagIDs))
	seen := make(map[string]struct{}, len(args)+len(flagIDs))
	for _, id := range append(append([]string{}, args...), flagIDs...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	if len(merged) == 0 {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument,
			"no workflow ids given; pass them as arguments or via --ids")
	}
	return merged, nil
}

func itemLines(items []helpers.ItemResult) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if item.Success {
			lines = append(lines, fmt.Sprintf("ok     %s", item.ID))
			continue
		}
		lines = append(lines, fmt.Sprintf("failed %s: %s", item.ID, item.Error.Message))
	}
	return lines
}

// DeleteCmd creates the workflow delete command.
func DeleteCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "delete [workflow-id...]",
		Short: "Delete workflows from the instance",
		Long: "Delete one or more workflows. Each target's document is backed up " +
			"locally before deletion. Deleting more than ten targets or --all " +
			"requires typing the confirmation phrase.",
		RunE: runDelete,
	}
	registerBulkFlags(c)
	c.Flags().Bool("all", false, "delete every workflow on the instance")
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
	all, _ := c.Flags().GetBool("all")
	var ids []string
	if all {
		if len(args) > 0 {
			return core.NewError(core.KindUsage, core.CodeInvalidArgument,
				"--all cannot be combined with explicit workflow ids")
		}
		flows, lerr := client.ListAllWorkflows(ctx, remote.ListWorkflowsOptions{})
		if lerr != nil {
			return lerr
		}
		for _, wf := range flows {
			ids = append(ids, wf.ID)
		}
		if len(ids) == 0 {
			return rt.Output().Success(map[string]any{"items": []helpers.ItemResult{}},
				"nothing to delete")
		}
	} else {
		ids, err = collectIDs(c, args)
		if err != nil {
			return err
		}
	}
	force, _ := c.Flags().GetBool("force")
	if err := helpers.ConfirmDestructive(helpers.ConfirmOptions{
		Action:      fmt.Sprintf("delete %s", helpers.Plural(len(ids), "workflow")),
		Count:       len(ids),
		All:         all,
		Force:       force,
		Interactive: helpers.StdinIsInteractive(),
		In:          c.InOrStdin(),
		Out:         c.ErrOrStderr(),
	}); err != nil {
		return err
	}
	concurrency, _ := c.Flags().GetInt("concurrency")
	backups := rt.Backups()
	items := helpers.RunBulk(ctx, ids, concurrency, func(ctx context.Context, id string) (any, error) {
		data := map[string]any{"deleted": true}
		// Best effort pre-image: a workflow already gone should not stop
		// its own deletion.
		if wf, gerr := client.GetWorkflow(ctx, id); gerr == nil {
			if doc, serr := marshalFull(wf); serr == nil {
				if path, werr := backups.Write(id, doc); werr == nil {
					data["backup"] = path
				} else {
					rt.Log().Warn("backup before delete failed", "workflow", id, "error", werr)
				}
			}
		}
		if derr := client.DeleteWorkflow(ctx, id); derr != nil {
			return nil, derr
		}
		return data, nil
	})
	if err := helpers.BulkFailure("delete", items); err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{"items": items}, itemLines(items)...)
}

// ActivateCmd creates the workflow activate command.
func ActivateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "activate [workflow-id...]",
		Short: "Activate workflows",
		RunE: func(c *cobra.Command, args []string) error {
			return runSetActive(c, args, true)
		},
	}
	registerBulkFlags(c)
	return c
}

// DeactivateCmd creates the workflow deactivate command.
func DeactivateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "deactivate [workflow-id...]",
		Short: "Deactivate workflows",
		RunE: func(c *cobra.Command, args []string) error {
			return runSetActive(c, args, false)
		},
	}
	registerBulkFlags(c)
	return c
}

func runSetActive(c *cobra.Command, args []string, active bool) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	ids, err := collectIDs(c, args)
	if err != nil {
		return err
	}
	verb := "deactivate"
	if active {
		verb = "activate"
	}
	concurrency, _ := c.Flags().GetInt("concurrency")
	items := helpers.RunBulk(ctx, ids, concurrency, func(ctx context.Context, id string) (any, error) {
		var (
			wf  *workflowSummary
			err error
		)
		if active {
			wf, err = summarize(client.ActivateWorkflow(ctx, id))
		} else {
			wf, err = summarize(client.DeactivateWorkflow(ctx, id))
		}
		if err != nil {
			return nil, err
		}
		return wf, nil
	})
	if err := helpers.BulkFailure(verb, items); err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{"items": items}, itemLines(items)...)
}
