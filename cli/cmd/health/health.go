// Package health implements the composite health command: instance
// liveness, node catalog presence, and version store totals in one report.
package health

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/versions"
)

type instanceReport struct {
	Host   string `json:"host,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type catalogReport struct {
	Status string           `json:"status"`
	Error  string           `json:"error,omitempty"`
	Stats  *kb.CatalogStats `json:"stats,omitempty"`
}

type storeReport struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Stats  *versions.Stats `json:"stats,omitempty"`
}

type report struct {
	Instance instanceReport `json:"instance"`
	Catalog  catalogReport  `json:"catalog"`
	Store    storeReport    `json:"store"`
}

// Cmd builds the health command. Each half degrades independently: an
// unreachable instance must not hide a missing catalog and vice versa.
func Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the instance, the node catalog, and the version store",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
}

func runHealth(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	var rep report

	rep.Instance = instanceReport{Host: rt.Config().API.Host, Status: "unreachable"}
	if client, err := rt.Remote(); err != nil {
		rep.Instance.Status = "unconfigured"
		rep.Instance.Error = err.Error()
	} else if h, err := client.CheckHealth(ctx); err != nil {
		rep.Instance.Error = err.Error()
	} else {
		rep.Instance.Status = h.Status
	}

	rep.Catalog = catalogReport{Status: "ok"}
	if catalog, err := rt.KB(ctx); err != nil {
		rep.Catalog.Status = "missing"
		rep.Catalog.Error = err.Error()
	} else if stats, err := catalog.Statistics(ctx); err != nil {
		rep.Catalog.Status = "error"
		rep.Catalog.Error = err.Error()
	} else {
		rep.Catalog.Stats = stats
	}

	rep.Store = storeReport{Status: "ok"}
	if st, err := rt.Store(ctx); err != nil {
		rep.Store.Status = "error"
		rep.Store.Error = err.Error()
	} else if stats, err := st.Stats(ctx); err != nil {
		rep.Store.Status = "error"
		rep.Store.Error = err.Error()
	} else {
		rep.Store.Stats = stats
	}

	return rt.Output().Success(rep, healthLines(&rep)...)
}

func healthLines(rep *report) []string {
	lines := []string{fmt.Sprintf("instance: %s", rep.Instance.Status)}
	if rep.Instance.Host != "" {
		lines[0] += fmt.Sprintf(" (%s)", rep.Instance.Host)
	}
	switch {
	case rep.Catalog.Stats != nil:
		lines = append(lines, fmt.Sprintf("catalog:  %s (%d nodes, %d templates, fts=%t)",
			rep.Catalog.Status, rep.Catalog.Stats.Nodes, rep.Catalog.Stats.Templates, rep.Catalog.Stats.FTS))
	default:
		lines = append(lines, fmt.Sprintf("catalog:  %s", rep.Catalog.Status))
	}
	switch {
	case rep.Store.Stats != nil:
		lines = append(lines, fmt.Sprintf("store:    %s (%d workflows, %d snapshots)",
			rep.Store.Status, rep.Store.Stats.Workflows, rep.Store.Stats.Snapshots))
	default:
		lines = append(lines, fmt.Sprintf("store:    %s", rep.Store.Status))
	}
	return lines
}
