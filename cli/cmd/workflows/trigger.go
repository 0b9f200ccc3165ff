package workflows

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/remote"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// TriggerCmd creates the workflow trigger command.
func TriggerCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "trigger <workflow-id | webhook-url>",
		Short: "Dispatch a request to a workflow's webhook",
		Long: "Send a test request to a webhook. Given a workflow id, the " +
			"webhook URL is derived from the workflow's webhook trigger node; " +
			"a full URL is dispatched as-is. Destinations are screened by the " +
			"SSRF guard before any connection is made.",
		Args: cobra.ExactArgs(1),
		RunE: runTrigger,
	}
	c.Flags().StringP("method", "X", "", "HTTP method (default POST, or the webhook node's method)")
	c.Flags().StringP("data", "d", "", "JSON body: inline, @file, or \"-\" for stdin")
	c.Flags().StringArrayP("header", "H", nil, "extra header, formatted as 'Name: value' (repeatable)")
	c.Flags().Duration("timeout", 0, "webhook timeout (default from configuration)")
	c.Flags().Bool("test", false, "use the instance's test-webhook path (/webhook-test/)")
	return c
}

func runTrigger(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	opts, err := triggerOptionsFromFlags(c, rt)
	if err != nil {
		return err
	}
	target := strings.TrimSpace(args[0])
	if strings.Contains(target, "://") {
		opts.URL = target
	} else {
		test, _ := c.Flags().GetBool("test")
		url, nodeMethod, derr := deriveWebhookURL(c, client, target, test)
		if derr != nil {
			return derr
		}
		opts.URL = url
		if opts.Method == "" {
			opts.Method = nodeMethod
		}
	}
	result, err := client.TriggerWebhook(ctx, opts)
	if err != nil {
		return err
	}
	return rt.Output().Success(result,
		fmt.Sprintf("%s (%dms)", result.Status, result.DurationMS))
}

func triggerOptionsFromFlags(c *cobra.Command, rt *cmd.Runtime) (remote.TriggerOptions, error) {
	var opts remote.TriggerOptions
	opts.Method, _ = c.Flags().GetString("method")
	body, _ := c.Flags().GetString("data")
	data, err := helpers.ReadArgument(c.InOrStdin(), body)
	if err != nil {
		return opts, err
	}
	opts.Body = data
	headers, _ := c.Flags().GetStringArray("header")
	if len(headers) > 0 {
		opts.Headers = make(map[string]string, len(headers))
		for _, h := range headers {
			name, value, found := strings.Cut(h, ":")
			if !found || strings.TrimSpace(name) == "" {
				return opts, core.NewError(core.KindUsage, core.CodeInvalidArgument,
					"malformed header %q, want 'Name: value'", h)
			}
			opts.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	opts.Timeout, _ = c.Flags().GetDuration("timeout")
	if opts.Timeout == 0 {
		opts.Timeout = rt.Config().API.WebhookTimeout
	}
	return opts, nil
}

// deriveWebhookURL resolves a workflow id to its webhook endpoint using the
// workflow's first enabled webhook trigger node.
func deriveWebhookURL(c *cobra.Command, client *remote.Client, workflowID string, test bool) (url, method string, err error) {
	wf, err := client.GetWorkflow(c.Context(), workflowID)
	if err != nil {
		return "", "", err
	}
	var hook *workflow.Node
	for _, n := range wf.Nodes {
		if n.Type == workflow.TypeWebhook && !n.Disabled {
			hook = n
			break
		}
	}
	if hook == nil {
		return "", "", core.NewError(core.KindData, core.CodeNotFound,
			"workflow %s has no enabled webhook trigger node", workflowID)
	}
	path, _ := hook.Parameters["path"].(string)
	if path == "" {
		return "", "", core.NewError(core.KindData, core.CodeNotFound,
			"webhook node %q has no path configured", hook.Name)
	}
	segment := "/webhook/"
	if test {
		segment = "/webhook-test/"
	}
	root := strings.TrimSuffix(client.BaseURL(), "/api/v1")
	method, _ = hook.Parameters["httpMethod"].(string)
	return root + segment + strings.TrimPrefix(path, "/"), method, nil
}
