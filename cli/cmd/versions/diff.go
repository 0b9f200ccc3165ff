package versions

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	vstore "github.com/n8nkit/n8nkit/engine/versions"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// DiffCmd creates the snapshot comparison command.
func DiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "diff <workflow-id> <from-version> <to-version>",
		Aliases: []string{"compare"},
		Short:   "Compare two stored snapshots structurally",
		Args:    cobra.ExactArgs(3),
		RunE:    runDiff,
	}
}

func runDiff(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	st, err := rt.Store(ctx)
	if err != nil {
		return err
	}
	from, err := parseVersionNumber(args[1])
	if err != nil {
		return err
	}
	to, err := parseVersionNumber(args[2])
	if err != nil {
		return err
	}
	res, err := st.Compare(ctx, args[0], from, to)
	if err != nil {
		return err
	}
	return rt.Output().Success(res, compareLines(res)...)
}

func compareLines(res *vstore.CompareResult) []string {
	if res.Same {
		return []string{fmt.Sprintf("versions %d and %d are identical", res.FromVersion, res.ToVersion)}
	}
	var lines []string
	for _, name := range res.NodesAdded {
		lines = append(lines, fmt.Sprintf("+ node %s", name))
	}
	for _, name := range res.NodesRemoved {
		lines = append(lines, fmt.Sprintf("- node %s", name))
	}
	for _, delta := range res.NodesChanged {
		lines = append(lines, fmt.Sprintf("~ node %s (%s)", delta.Name, strings.Join(delta.Fields, ", ")))
	}
	for _, ref := range res.ConnectionsAdded {
		lines = append(lines, fmt.Sprintf("+ connection %s", connectionLabel(ref)))
	}
	for _, ref := range res.ConnectionsRemoved {
		lines = append(lines, fmt.Sprintf("- connection %s", connectionLabel(ref)))
	}
	for _, field := range res.MetadataChanged {
		lines = append(lines, fmt.Sprintf("~ %s: %v -> %v", field.Field, field.From, field.To))
	}
	return lines
}

func connectionLabel(ref workflow.ConnectionRef) string {
	return fmt.Sprintf("%s[%s:%d] -> %s", ref.Source, ref.Kind, ref.SourceIndex, ref.Target)
}
