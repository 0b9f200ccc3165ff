package versions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/remote"
	"github.com/n8nkit/n8nkit/engine/validate"
	vstore "github.com/n8nkit/n8nkit/engine/versions"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// RollbackCmd creates the rollback command.
func RollbackCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "rollback <workflow-id>",
		Short: "Restore a workflow to a stored snapshot",
		Long: "Restore a workflow to an earlier snapshot and push the restored " +
			"document to the instance. The state being replaced is kept as a " +
			"new pre-rollback snapshot unless --no-backup is given.",
		Args: cobra.ExactArgs(1),
		RunE: runRollback,
	}
	c.Flags().Int("to-version", 0, "snapshot to restore")
	_ = c.MarkFlagRequired("to-version")
	c.Flags().Bool("no-push", false, "record the rollback locally without touching the instance")
	c.Flags().Bool("no-backup", false, "skip the pre-rollback snapshot of the current state")
	c.Flags().Bool("validate", false, "refuse to restore a snapshot that fails validation")
	c.Flags().StringP("output", "o", "", "also write the restored document to a file (\"-\" for stdout)")
	cmd.RegisterApplyFlags(c)
	return c
}

func runRollback(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	workflowID := args[0]
	target, _ := c.Flags().GetInt("to-version")
	st, err := rt.Store(ctx)
	if err != nil {
		return err
	}
	snap, err := st.Get(ctx, workflowID, target)
	if err != nil {
		return err
	}
	if snap == nil {
		return core.NewError(core.KindData, core.CodeVersionNotFound,
			"workflow %s has no version %d", workflowID, target)
	}
	if !cmd.ShouldApply(c, fmt.Sprintf("roll back workflow %s to version %d", workflowID, target)) {
		return rt.Output().Success(map[string]any{
			"preview":       true,
			"workflowId":    workflowID,
			"targetVersion": target,
			"snapshot":      snap.Meta,
		}, fmt.Sprintf("preview: would restore %s to version %d; re-run with --apply", workflowID, target),
			metaLine(snap.Meta))
	}

	opts := vstore.RollbackOptions{}
	opts.NoBackup, _ = c.Flags().GetBool("no-backup")
	if gate, _ := c.Flags().GetBool("validate"); gate {
		checker, verr := rollbackChecker(rt, c)
		if verr != nil {
			return verr
		}
		opts.Validate = checker
	}

	// Without --no-push the instance state is fetched first: it becomes the
	// pre-rollback snapshot and the standalone backup file.
	noPush, _ := c.Flags().GetBool("no-push")
	var (
		client  *remote.Client
		current *workflow.Workflow
		backup  string
	)
	if !noPush {
		client, err = rt.Remote()
		if err != nil {
			return err
		}
		current, err = client.GetWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}
		doc, serr := workflow.Serialize(current, workflow.SerializeOptions{Full: true})
		if serr != nil {
			return serr
		}
		backup, err = rt.Backups().Write(workflowID, doc)
		if err != nil {
			return err
		}
	}

	res, err := st.Rollback(ctx, workflowID, target, current, opts)
	if err != nil {
		return err
	}
	lines := []string{fmt.Sprintf("restored %s to version %d", workflowID, target)}
	if res.BackupVersion > 0 {
		lines = append(lines, fmt.Sprintf("previous state kept as version %d", res.BackupVersion))
	}
	if !noPush {
		if _, perr := client.UpdateWorkflow(ctx, workflowID, res.Workflow); perr != nil {
			rt.Log().Warn("rollback recorded locally but the push failed",
				"workflow", workflowID, "version", target, "error", perr)
			return perr
		}
		lines = append(lines, "pushed the restored document to the instance")
	}
	data := map[string]any{"rollback": res, "pushed": !noPush}
	if backup != "" {
		data["backupPath"] = backup
	}
	if output, _ := c.Flags().GetString("output"); output != "" {
		doc, serr := workflow.Serialize(res.Workflow, workflow.SerializeOptions{Full: true})
		if serr != nil {
			return serr
		}
		if werr := helpers.WriteDocument(c.OutOrStdout(), output, doc); werr != nil {
			return werr
		}
		if output != "-" {
			data["written"] = output
			lines = append(lines, fmt.Sprintf("wrote the restored document to %s", output))
		}
	}
	return rt.Output().Success(data, lines...)
}

// rollbackChecker validates the restored document with the runtime profile
// before anything is written.
func rollbackChecker(rt *cmd.Runtime, c *cobra.Command) (func(*workflow.Workflow) error, error) {
	ctx := c.Context()
	catalog, err := rt.KB(ctx)
	if err != nil {
		return nil, err
	}
	checker := validate.New(catalog)
	return func(wf *workflow.Workflow) error {
		res, verr := checker.Validate(ctx, wf, validate.DefaultOptions(validate.ProfileRuntime))
		if verr != nil {
			return verr
		}
		if !res.Valid {
			return fmt.Errorf("snapshot has %s", helpers.Plural(len(res.Errors), "validation error"))
		}
		return nil
	}, nil
}
