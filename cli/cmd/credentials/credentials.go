// Package credentials implements the credential command group. Secret
// payloads are write-only: they are sent on create and never echoed back
// in envelopes or logs.
package credentials

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/cmd"
	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/remote"
)

// Cmd builds the credentials command group.
func Cmd() *cobra.Command {
	group := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"credential", "creds"},
		Short:   "Manage stored credentials on the instance",
	}
	group.AddCommand(
		ListCmd(),
		CreateCmd(),
		DeleteCmd(),
		SchemaCmd(),
	)
	return group
}

func credentialLine(cred *remote.Credential) string {
	return fmt.Sprintf("%-24s %-32s %s", cred.ID, cred.Type, cred.Name)
}

// ListCmd creates the credential listing command.
func ListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List credentials (metadata only, never secrets)",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	c.Flags().Int("limit", 0, "maximum credentials per page (server default when 0)")
	c.Flags().String("cursor", "", "pagination cursor from a previous page")
	return c
}

func runList(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	client, err := rt.Remote()
	if err != nil {
		return err
	}
	limit, _ := c.Flags().GetInt("limit")
	cursor, _ := c.Flags().GetString("cursor")
	page, err := client.ListCredentials(ctx, limit, cursor)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(page.Data)+1)
	for _, cred := range page.Data {
		lines = append(lines, credentialLine(cred))
	}
	lines = append(lines, fmt.Sprintf("total: %s", helpers.Plural(len(page.Data), "credential")))
	data := map[string]any{"credentials": page.Data}
	if page.NextCursor != "" {
		data["nextCursor"] = page.NextCursor
	}
	return rt.Output().Success(data, lines...)
}

// CreateCmd creates the credential creation command.
func CreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create",
		Short: "Store a new credential",
		Long: "Store a credential from a JSON document with name, type and data " +
			"fields. The data payload is sent to the instance and never echoed back.",
		RunE: runCreate,
	}
	c.Flags().StringP("file", "f", "", "credential document path (\"-\" for stdin)")
	c.Flags().String("json-input", "", "credential document as an inline JSON string")
	cmd.RegisterApplyFlags(c)
	return c
}

func runCreate(c *cobra.Command, _ []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	file, _ := c.Flags().GetString("file")
	inline, _ := c.Flags().GetString("json-input")
	data, err := helpers.ReadDocument(c.InOrStdin(), file, inline)
	if err != nil {
		return err
	}
	var cred remote.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return core.WrapError(core.KindData, core.CodeParseError, err, "parse credential document")
	}
	if cred.Name == "" || cred.Type == "" {
		return core.NewError(core.KindUsage, core.CodeMissingArgument,
			"credential document needs both name and type")
	}
	if !cmd.ShouldApply(c, fmt.Sprintf("create credential %q (%s)", cred.Name, cred.Type)) {
		return rt.Output().Success(
			map[string]any{"preview": true, "name": cred.Name, "type": cred.Type},
			fmt.Sprintf("preview: would create credential %q (%s); re-run with --apply", cred.Name, cred.Type))
	}
	cl, err := rt.Remote()
	if err != nil {
		return err
	}
	result, err := cl.CreateCredential(ctx, &cred)
	if err != nil {
		return err
	}
	return rt.Output().Success(result, fmt.Sprintf("created credential %s (%s)", result.ID, result.Type))
}

// DeleteCmd creates the credential deletion command.
func DeleteCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "delete <credential-id>",
		Short: "Delete a credential",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
	c.Flags().Bool("force", false, "skip the confirmation prompt")
	return c
}

func runDelete(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	cl, err := rt.Remote()
	if err != nil {
		return err
	}
	force, _ := c.Flags().GetBool("force")
	if err := helpers.ConfirmDestructive(helpers.ConfirmOptions{
		Action:      fmt.Sprintf("delete credential %s", args[0]),
		Count:       1,
		Force:       force,
		Interactive: helpers.StdinIsInteractive(),
		In:          c.InOrStdin(),
		Out:         c.ErrOrStderr(),
	}); err != nil {
		return err
	}
	if err := cl.DeleteCredential(ctx, args[0]); err != nil {
		return err
	}
	return rt.Output().Success(map[string]any{"id": args[0], "deleted": true},
		fmt.Sprintf("deleted credential %s", args[0]))
}

// SchemaCmd creates the credential schema command.
func SchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <credential-type>",
		Short: "Show the expected data fields of a credential type",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchema,
	}
}

func runSchema(c *cobra.Command, args []string) error {
	ctx := c.Context()
	rt := cmd.NewRuntime(c)
	defer rt.Close(ctx)
	cl, err := rt.Remote()
	if err != nil {
		return err
	}
	schema, err := cl.CredentialSchema(ctx, args[0])
	if err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return core.WrapError(core.KindInternal, core.CodeInternal, err, "render schema")
	}
	return rt.Output().Success(schema, string(pretty))
}
