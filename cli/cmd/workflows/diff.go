package workflows

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/diff"
	"github.com/n8nkit/n8nkit/engine/versions"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// diffPayload extends the engine result with what the command did around it.
type diffPayload struct {
	*diff.Result
	Preview bool                 `json:"preview,omitempty"`
	Backup  *cmd.SafeguardResult `json:"backup,omitempty"`
	Written string               `json:"written,omitempty"`
}

// DiffCmd creates the workflow diff command.
func DiffCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "diff",
		Short: "Apply a surgical diff document to a workflow",
		Long: "Apply a sequence of typed operations (addNode, addConnection, " +
			"updateNode, ...) to a workflow. Strict mode is all-or-nothing; " +
			"--continue-on-error keeps successes and reports failures. The " +
			"default is a preview; --apply pushes or writes the result.",
		Args: cobra.NoArgs,
		RunE: runDiff,
	}
	registerDocumentFlags(c)
	c.Flags().String("id", "", "target a workflow fetched from the instance")
	c.Flags().String("operations", "", "diff document: inline JSON, @file, or \"-\" for stdin")
	c.Flags().Bool("continue-on-error", false, "apply what succeeds instead of all-or-nothing")
	c.Flags().StringP("output", "o", "", "write the updated document to a file instead of the input path")
	cmd.RegisterApplyFlags(c)
	return c
}

func runDiff(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	ops, err := readOperations(c)
	if err != nil {
		return err
	}
	input := documentInputFromFlags(c)
	input.ID, _ = c.Flags().GetString("id")
	loaded, err := rt.LoadWorkflow(ctx, input)
	if err != nil {
		return err
	}
	continueOnError, _ := c.Flags().GetBool("continue-on-error")
	engine := diff.New(rt.OptionalKB(ctx))
	result, err := engine.Apply(ctx, loaded.Workflow, ops, diff.Options{ContinueOnError: continueOnError})
	if err != nil {
		return err
	}
	if !result.OK() && !continueOnError {
		// Strict mode rejected the sequence; report the failures as a data
		// error carrying the per-operation detail.
		return core.NewError(core.KindData, core.CodeDiffOperationFailed,
			"%d of %d operations failed; nothing was applied", result.Failed, len(ops)).
			WithDetails("errors", result.Errors)
	}
	if !cmd.ShouldApply(c, fmt.Sprintf("apply %s to workflow %q", helpers.Plural(result.Applied, "operation"), loaded.Workflow.Name)) {
		return rt.Output().Success(diffPayload{Result: result, Preview: true}, diffLines(result, true)...)
	}
	payload := diffPayload{Result: result}
	switch {
	case loaded.FromRemote:
		id, _ := c.Flags().GetString("id")
		safeguard, serr := rt.Safeguard(ctx, id, loaded.Workflow, versions.TriggerPreDiff)
		if serr != nil {
			return serr
		}
		payload.Backup = safeguard
		client, cerr := rt.Remote()
		if cerr != nil {
			return cerr
		}
		if _, uerr := client.UpdateWorkflow(ctx, id, result.Workflow); uerr != nil {
			return uerr
		}
		store, sterr := rt.Store(ctx)
		if sterr != nil {
			return sterr
		}
		if _, snerr := store.CreateSnapshot(ctx, id, result.Workflow, versions.TriggerDiff); snerr != nil {
			return snerr
		}
	default:
		destination, _ := c.Flags().GetString("output")
		if destination == "" && input.File != "" && input.File != "-" {
			destination = input.File
		}
		if destination != "" {
			doc, serr := workflow.Serialize(result.Workflow, workflow.SerializeOptions{Full: true})
			if serr != nil {
				return serr
			}
			if werr := helpers.WriteDocument(c.OutOrStdout(), destination, doc); werr != nil {
				return werr
			}
			if destination != "-" {
				payload.Written = destination
			}
		}
	}
	return rt.Output().Success(payload, diffLines(result, false)...)
}

func readOperations(c *cobra.Command) ([]diff.Operation, error) {
	arg, _ := c.Flags().GetString("operations")
	data, err := helpers.ReadArgument(c.InOrStdin(), arg)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument,
			"provide the diff document via --operations <json|@file|->")
	}
	var ops []diff.Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		// Accept {"operations": [...]} wrappers too; agents produce both.
		var wrapper struct {
			Operations []diff.Operation `json:"operations"`
		}
		if werr := json.Unmarshal(data, &wrapper); werr != nil || len(wrapper.Operations) == 0 {
			return nil, core.WrapError(core.KindData, core.CodeParseError, err,
				"diff document is not a JSON array of operations")
		}
		ops = wrapper.Operations
	}
	if len(ops) == 0 {
		return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"diff document contains no operations")
	}
	return ops, nil
}

func diffLines(result *diff.Result, preview bool) []string {
	verb := "applied"
	if preview {
		verb = "previewed"
	}
	lines := []string{fmt.Sprintf("%s %s, %d failed",
		helpers.Plural(result.Applied, "operation"), verb, result.Failed)}
	for _, opErr := range result.Errors {
		lines = append(lines, fmt.Sprintf("failed #%d %s: %s", opErr.Index, opErr.Type, opErr.Message))
	}
	for _, warning := range result.Warnings {
		lines = append(lines, "warning: "+warning)
	}
	return lines
}
