// Package nodes implements the read surface over the bundled node catalog:
// ranked search, descriptor dumps, property lookup, similarity suggestions,
// and breaking-change queries.
package nodes

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

// Cmd builds the nodes command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:     "nodes",
		Aliases: []string{"node"},
		Short:   "Query the bundled node catalog",
	}
	group.AddCommand(
		SearchCmd(),
		InfoCmd(),
		PropertiesCmd(),
		SimilarCmd(),
		BreakingChangesCmd(),
	)
	return group
}

// formatVersion renders typeVersions the way documents carry them:
// whole versions without a decimal, fractional ones as-is.
func formatVersion(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseSeverity(s string) (kb.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case string(kb.SeverityLow):
		return kb.SeverityLow, nil
	case string(kb.SeverityMedium):
		return kb.SeverityMedium, nil
	case string(kb.SeverityHigh):
		return kb.SeverityHigh, nil
	}
	return "", core.NewError(core.KindUsage, core.CodeInvalidArgument,
		"unknown severity %q (want low, medium or high)", s)
}

// SearchCmd creates the node search command.
func SearchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search the node catalog",
		Long: "Ranked search over node types, aliases, display names and " +
			"descriptions. FUZZY mode ranks by edit distance and tolerates typos.",
		Args: cobra.ArbitraryArgs,
		RunE: runSearch,
	}
	c.Flags().String("mode", "", "query mode: OR, AND or FUZZY (default OR)")
	c.Flags().String("category", "", "restrict results to one category")
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
	category, _ := c.Flags().GetString("category")
	limit, _ := c.Flags().GetInt("limit")
	if query == "" && category == "" {
		return core.NewError(core.KindUsage, core.CodeMissingArgument,
			"pass a search query, a --category, or both")
	}
	var hits []kb.NodeHit
	if query == "" {
		hits, err = catalog.ListByCategory(ctx, category, limit)
	} else {
		modeFlag, _ := c.Flags().GetString("mode")
		var mode kb.SearchMode
		mode, err = kb.ParseSearchMode(modeFlag)
		if err != nil {
			return err
		}
		hits, err = catalog.SearchNodes(ctx, query, mode, limit)
		if err == nil && category != "" {
			hits = filterByCategory(hits, category)
		}
	}
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(hits)+1)
	for _, hit := range hits {
		lines = append(lines, fmt.Sprintf("%-44s %-14s v%-5s %s",
			hit.Type, hit.Category, formatVersion(hit.LatestVersion), hit.DisplayName))
	}
	lines = append(lines, fmt.Sprintf("total: %s", helpers.Plural(len(hits), "node")))
	return rt.Output().Success(map[string]any{"nodes": hits}, lines...)
}

func filterByCategory(hits []kb.NodeHit, category string) []kb.NodeHit {
	out := hits[:0]
	for _, hit := range hits {
		if strings.EqualFold(hit.Category, category) {
			out = append(out, hit)
		}
	}
	return out
}

// InfoCmd creates the node descriptor dump command.
func InfoCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "info <node-type>",
		Short: "Show the full catalog record of a node type",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	c.Flags().String("resource", "", "list operations for this resource only")
	return c
}

func runInfo(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	catalog, err := rt.KB(ctx)
	if err != nil {
		return err
	}
	d, err := lookupDescriptor(c, catalog, args[0])
	if err != nil {
		return err
	}
	resource, _ := c.Flags().GetString("resource")
	return rt.Output().Success(d, infoLines(d, resource)...)
}

// lookupDescriptor resolves a node type and, when it is unknown, decorates
// the error with the closest catalog matches.
func lookupDescriptor(c *cobra.Command, catalog *kb.KB, nodeType string) (*kb.NodeDescriptor, error) {
	ctx := c.Context()
	d, err := catalog.LookupByType(ctx, nodeType)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return d, nil
	}
	cerr := core.NewError(core.KindData, core.CodeInvalidNodeTypeFormat,
		"unknown node type %q", nodeType)
	if suggestions, serr := catalog.SimilarTypes(ctx, nodeType, 3); serr == nil && len(suggestions) > 0 {
		cerr = cerr.WithDetails("suggestions", suggestions)
	}
	return nil, cerr
}

func infoLines(d *kb.NodeDescriptor, resource string) []string {
	lines := []string{
		fmt.Sprintf("%s (%s)", d.Type, d.DisplayName),
		fmt.Sprintf("category:    %s%s", d.Category, subcategorySuffix(d)),
		fmt.Sprintf("latest:      v%s%s", formatVersion(d.LatestVersion), supportedSuffix(d)),
	}
	if d.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", helpers.Truncate(d.Description, 120)))
	}
	var traits []string
	if d.IsTrigger() {
		traits = append(traits, "trigger")
	}
	if d.IsAINode() {
		traits = append(traits, "ai")
	}
	if d.IsAISubNode() {
		traits = append(traits, "ai sub-node")
	}
	if len(traits) > 0 {
		lines = append(lines, fmt.Sprintf("traits:      %s", strings.Join(traits, ", ")))
	}
	if resources := d.Resources(); len(resources) > 0 {
		lines = append(lines, fmt.Sprintf("resources:   %s", strings.Join(resources, ", ")))
	}
	if ops := d.Operations(resource); len(ops) > 0 {
		label := "operations"
		if resource != "" {
			label = fmt.Sprintf("operations (%s)", resource)
		}
		lines = append(lines, fmt.Sprintf("%-12s %s", label+":", strings.Join(ops, ", ")))
	}
	lines = append(lines, fmt.Sprintf("properties:  %d", len(d.Properties)))
	if len(d.Credentials) > 0 {
		names := make([]string, 0, len(d.Credentials))
		for _, cred := range d.Credentials {
			name := cred.Name
			if cred.Required {
				name += " (required)"
			}
			names = append(names, name)
		}
		lines = append(lines, fmt.Sprintf("credentials: %s", strings.Join(names, ", ")))
	}
	if n := len(d.BreakingChanges); n > 0 {
		lines = append(lines, fmt.Sprintf("breaking:    %s on record", helpers.Plural(n, "change")))
	}
	if d.Docs != "" {
		lines = append(lines, fmt.Sprintf("docs:        %s", d.Docs))
	}
	return lines
}

func subcategorySuffix(d *kb.NodeDescriptor) string {
	if d.Subcategory == "" {
		return ""
	}
	return " / " + d.Subcategory
}

func supportedSuffix(d *kb.NodeDescriptor) string {
	if len(d.SupportedVersions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(d.SupportedVersions))
	for _, v := range d.SupportedVersions {
		parts = append(parts, formatVersion(v))
	}
	return fmt.Sprintf(" (supported: %s)", strings.Join(parts, ", "))
}

// PropertiesCmd creates the property search command.
func PropertiesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "properties <node-type> [query...]",
		Short: "Search a node type's properties",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runProperties,
	}
	c.Flags().Int("limit", 0, "maximum results (default 20, capped at 100)")
	return c
}

func runProperties(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	catalog, err := rt.KB(ctx)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(args[1:], " "))
	limit, _ := c.Flags().GetInt("limit")
	hits, err := catalog.SearchProperties(ctx, args[0], query, limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return rt.Output().Success(map[string]any{"properties": []kb.PropertyHit{}},
			fmt.Sprintf("no properties of %s match %q", args[0], query))
	}
	lines := make([]string, 0, len(hits))
	for _, hit := range hits {
		lines = append(lines, fmt.Sprintf("%-36s %-12s %s",
			hit.Path, hit.TypeTag, helpers.Truncate(hit.Description, 80)))
	}
	return rt.Output().Success(map[string]any{"properties": hits}, lines...)
}

// SimilarCmd creates the type suggestion command.
func SimilarCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "similar <node-type>",
		Short: "Suggest catalog types close to a possibly misspelled one",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimilar,
	}
	c.Flags().Int("limit", 0, "maximum suggestions (default 5)")
	return c
}

func runSimilar(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	catalog, err := rt.KB(ctx)
	if err != nil {
		return err
	}
	limit, _ := c.Flags().GetInt("limit")
	suggestions, err := catalog.SimilarTypes(ctx, args[0], limit)
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		return rt.Output().Success(map[string]any{"suggestions": []kb.TypeSuggestion{}},
			fmt.Sprintf("nothing in the catalog resembles %q", args[0]))
	}
	lines := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		marker := ""
		if s.AutoFixable {
			marker = "  (auto-fixable)"
		}
		lines = append(lines, fmt.Sprintf("%.2f  %-44s %s%s", s.Score, s.Type, s.Reason, marker))
	}
	return rt.Output().Success(map[string]any{"suggestions": suggestions}, lines...)
}

// BreakingChangesCmd creates the version migration query command.
func BreakingChangesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "breaking-changes <node-type>",
		Short: "List breaking changes between two typeVersions",
		Args:  cobra.ExactArgs(1),
		RunE:  runBreakingChanges,
	}
	c.Flags().Float64("from", 0, "typeVersion currently in use")
	c.Flags().Float64("to", 0, "target typeVersion (latest when 0)")
	c.Flags().String("min-severity", "", "only changes at least this severe: low, medium or high")
	c.Flags().Bool("auto-migratable", false, "only changes with a mechanical migration")
	return c
}

func runBreakingChanges(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	catalog, err := rt.KB(ctx)
	if err != nil {
		return err
	}
	severityFlag, _ := c.Flags().GetString("min-severity")
	minSeverity, err := parseSeverity(severityFlag)
	if err != nil {
		return err
	}
	from, _ := c.Flags().GetFloat64("from")
	to, _ := c.Flags().GetFloat64("to")
	autoOnly, _ := c.Flags().GetBool("auto-migratable")
	changes, err := catalog.BreakingChanges(ctx, args[0], from, to, kb.ChangeFilter{
		MinSeverity:        minSeverity,
		AutoMigratableOnly: autoOnly,
	})
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return rt.Output().Success(map[string]any{"changes": []kb.BreakingChange{}},
			"no breaking changes in that range")
	}
	lines := make([]string, 0, len(changes))
	for _, change := range changes {
		marker := ""
		if change.AutoMigratable {
			marker = "  (auto-migratable)"
		}
		lines = append(lines, fmt.Sprintf("v%s -> v%s  %-6s %s%s",
			formatVersion(change.FromVersion), formatVersion(change.ToVersion),
			change.Severity, change.Description, marker))
	}
	return rt.Output().Success(map[string]any{"changes": changes}, lines...)
}
