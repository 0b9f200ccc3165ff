package workflows

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/autofix"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/versions"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// autofixPayload extends the engine result with what the command did
// around it.
type autofixPayload struct {
	*autofix.Result
	Preview bool                 `json:"preview,omitempty"`
	Backup  *cmd.SafeguardResult `json:"backup,omitempty"`
	Written string               `json:"written,omitempty"`
}

// AutofixCmd creates the workflow autofix command.
func AutofixCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "autofix",
		Short: "Generate and apply confidence-ranked fixes",
		Long: "Run the fix generators over a workflow. The default is a preview; " +
			"--apply pushes the fixed document back to its source (remote " +
			"workflow or local file) after capturing a pre-image.",
		Args: cobra.NoArgs,
		RunE: runAutofix,
	}
	registerDocumentFlags(c)
	c.Flags().String("id", "", "fix a workflow fetched from the instance")
	c.Flags().String("confidence", "", "minimum fix confidence: high, medium, low")
	c.Flags().Int("max-fixes", 0, "cap the number of fixes applied (0 = no cap)")
	c.Flags().StringSlice("fix-types", nil,
		"generators to run (default all): "+joinFixTypes())
	c.Flags().StringP("output", "o", "", "write the fixed document to a file instead of the input path")
	cmd.RegisterApplyFlags(c)
	return c
}

func joinFixTypes() string {
	types := autofix.FixTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func autofixOptionsFromFlags(c *cobra.Command) (autofix.Options, error) {
	var opts autofix.Options
	confidence, _ := c.Flags().GetString("confidence")
	switch autofix.Confidence(strings.ToLower(confidence)) {
	case "", autofix.ConfidenceHigh, autofix.ConfidenceMedium, autofix.ConfidenceLow:
		opts.Confidence = autofix.Confidence(strings.ToLower(confidence))
	default:
		return opts, core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"unknown confidence %q (want high, medium or low)", confidence)
	}
	opts.MaxFixes, _ = c.Flags().GetInt("max-fixes")
	names, _ := c.Flags().GetStringSlice("fix-types")
	if len(names) > 0 {
		known := make(map[autofix.FixType]bool, len(autofix.FixTypes()))
		for _, t := range autofix.FixTypes() {
			known[t] = true
		}
		for _, name := range names {
			t := autofix.FixType(strings.TrimSpace(name))
			if !known[t] {
				return opts, core.NewError(core.KindUsage, core.CodeInvalidArgument,
					"unknown fix type %q (want one of: %s)", name, joinFixTypes())
			}
			opts.FixTypes = append(opts.FixTypes, t)
		}
	}
	return opts, nil
}

func runAutofix(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	opts, err := autofixOptionsFromFlags(c)
	if err != nil {
		return err
	}
	input := documentInputFromFlags(c)
	input.ID, _ = c.Flags().GetString("id")
	loaded, err := rt.LoadWorkflow(ctx, input)
	if err != nil {
		return err
	}
	catalog, err := rt.KB(ctx)
	if err != nil {
		return err
	}
	engine := autofix.New(catalog)
	if !cmd.ShouldApply(c, fmt.Sprintf("apply fixes to workflow %q", loaded.Workflow.Name)) {
		result, perr := engine.Preview(ctx, loaded.Workflow, opts)
		if perr != nil {
			return perr
		}
		return rt.Output().Success(autofixPayload{Result: result, Preview: true}, fixLines(result, true)...)
	}
	result, err := engine.Apply(ctx, loaded.Workflow, opts)
	if err != nil {
		return err
	}
	payload := autofixPayload{Result: result}
	if result.Applied == 0 {
		return rt.Output().Success(payload, "no fixes to apply")
	}
	switch {
	case loaded.FromRemote:
		id, _ := c.Flags().GetString("id")
		safeguard, serr := rt.Safeguard(ctx, id, loaded.Workflow, versions.TriggerPreAutofix)
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
		if _, snerr := store.CreateSnapshot(ctx, id, result.Workflow, versions.TriggerAutofix); snerr != nil {
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
	return rt.Output().Success(payload, fixLines(result, false)...)
}

func fixLines(result *autofix.Result, preview bool) []string {
	verb := "applied"
	if preview {
		verb = "available"
	}
	noun := "fixes"
	if len(result.Fixes) == 1 {
		noun = "fix"
	}
	lines := []string{fmt.Sprintf("%d %s %s", len(result.Fixes), noun, verb)}
	for i := range result.Fixes {
		f := &result.Fixes[i]
		lines = append(lines, fmt.Sprintf("%-6s [%s] %s: %s", f.Confidence, f.Type, f.Node, f.Description))
	}
	if len(result.Skipped) > 0 {
		lines = append(lines, fmt.Sprintf("%s beyond --max-fixes", helpers.Plural(len(result.Skipped), "candidate")))
	}
	if result.Filtered > 0 {
		lines = append(lines, fmt.Sprintf("%s below the confidence threshold", helpers.Plural(result.Filtered, "candidate")))
	}
	for _, g := range result.Guidance {
		if g.Status != autofix.GuidanceComplete {
			lines = append(lines, fmt.Sprintf("follow-up (%s): %s %s", g.Status, g.Node, strings.Join(g.RequiredActions, "; ")))
		}
	}
	return lines
}
