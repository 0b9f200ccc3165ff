package workflows

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/autofix"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/validate"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// validationEnvelope is the validate command's top-level output: the
// engine result plus the optional repair and autofix-preview additions.
type validationEnvelope struct {
	validate.Result
	Repairs        []workflow.RepairNote `json:"repairs,omitempty"`
	FixSuggestions []autofix.Fix         `json:"fixSuggestions,omitempty"`
}

// ValidateCmd creates the workflow validate command.
func ValidateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "validate",
		Short: "Validate a workflow against the node catalog",
		Long: "Run the validation pipeline over a local document or a remote " +
			"workflow. The result is emitted as the validation envelope " +
			"{valid, errors, warnings, statistics, suggestions}; any error " +
			"finding sets the data exit code.",
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
	registerDocumentFlags(c)
	c.Flags().String("id", "", "validate a workflow fetched from the instance")
	c.Flags().String("profile", "", "validation profile: minimal, runtime, ai-friendly, strict (default runtime)")
	c.Flags().String("mode", "", "property coverage: minimal, operation, full (default operation)")
	c.Flags().String("version-severity", "", "minimum breaking-change severity reported: low, medium, high")
	c.Flags().Bool("fix-suggestions", false, "include autofix previews for the findings")
	return c
}

func runValidate(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	opts, err := validateOptionsFromFlags(c)
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
	result, err := validate.New(catalog).Validate(ctx, loaded.Workflow, opts)
	if err != nil {
		return err
	}
	envelope := validationEnvelope{Result: *result, Repairs: loaded.Repairs}
	if withFixes, _ := c.Flags().GetBool("fix-suggestions"); withFixes {
		preview, perr := autofix.New(catalog).Preview(ctx, loaded.Workflow, autofix.Options{})
		if perr != nil {
			return perr
		}
		envelope.FixSuggestions = preview.Fixes
	}
	if err := rt.Output().Raw(envelope, validationLines(&envelope)...); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return helpers.MarkEmitted(core.NewError(core.KindData, core.CodeInvalidWorkflow,
			"workflow failed validation with %s", helpers.Plural(len(result.Errors), "error")))
	}
	return nil
}

func validateOptionsFromFlags(c *cobra.Command) (validate.Options, error) {
	profileFlag, _ := c.Flags().GetString("profile")
	profile, err := validate.ParseProfile(profileFlag)
	if err != nil {
		return validate.Options{}, err
	}
	opts := validate.DefaultOptions(profile)
	modeFlag, _ := c.Flags().GetString("mode")
	mode, err := validate.ParseMode(modeFlag)
	if err != nil {
		return validate.Options{}, err
	}
	opts.Mode = mode
	if floor, _ := c.Flags().GetString("version-severity"); floor != "" {
		switch kb.Severity(floor) {
		case kb.SeverityLow, kb.SeverityMedium, kb.SeverityHigh:
			opts.VersionSeverityFloor = kb.Severity(floor)
		default:
			return validate.Options{}, core.NewError(core.KindUsage, core.CodeInvalidArgument,
				"unknown severity %q (want low, medium or high)", floor)
		}
	}
	return opts, nil
}

func validationLines(env *validationEnvelope) []string {
	verdict := "valid"
	if !env.Valid {
		verdict = "invalid"
	}
	lines := []string{fmt.Sprintf("%s: %s, %s (%s checked)",
		verdict,
		helpers.Plural(len(env.Errors), "error"),
		helpers.Plural(len(env.Warnings), "warning"),
		helpers.Plural(env.Statistics.TotalNodes, "node"))}
	for _, f := range env.Errors {
		lines = append(lines, findingLine("error", f))
	}
	for _, f := range env.Warnings {
		lines = append(lines, findingLine("warning", f))
	}
	for _, s := range env.Suggestions {
		lines = append(lines, "suggestion: "+s)
	}
	for _, fix := range env.FixSuggestions {
		lines = append(lines, fmt.Sprintf("fixable: [%s] %s (%s)", fix.Type, fix.Description, fix.Confidence))
	}
	return lines
}

func findingLine(level string, f validate.Finding) string {
	location := f.Node
	if f.Property != "" {
		location += " " + f.Property
	}
	if location != "" {
		location = " " + location + ":"
	}
	return fmt.Sprintf("%-7s [%s]%s %s", level, f.Code, location, f.Message)
}
