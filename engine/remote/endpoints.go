package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

// maxPageSize is the largest page the n8n API serves.
const maxPageSize = 250

// Page is one slice of a cursor-paginated listing. An empty NextCursor means
// the listing is exhausted.
type Page[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Execution is a single workflow run as the API reports it. Data is only
// populated when the caller asked for it.
type Execution struct {
	ID         int64          `json:"id"`
	Finished   bool           `json:"finished"`
	Mode       string         `json:"mode,omitempty"`
	Status     string         `json:"status,omitempty"`
	WorkflowID string         `json:"workflowId,omitempty"`
	StartedAt  string         `json:"startedAt,omitempty"`
	StoppedAt  string         `json:"stoppedAt,omitempty"`
	RetryOf    *int64         `json:"retryOf,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Credential is a stored credential. Data is write-only: it is sent on
// create and never returned by the API.
type Credential struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
}

// Variable is an instance-level key/value pair.
type Variable struct {
	ID    string `json:"id,omitempty"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// Tag is a workflow label.
type Tag struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Health is the instance liveness answer.
type Health struct {
	Status string `json:"status"`
}

func requireID(id, what string) error {
	if strings.TrimSpace(id) == "" {
		return core.NewError(core.KindUsage, core.CodeMissingArgument, "%s id is required", what)
	}
	return nil
}

func limitParam(query map[string]string, limit int) {
	if limit <= 0 {
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	query["limit"] = strconv.Itoa(limit)
}

// --- Workflows ---

// ListWorkflowsOptions filters a workflow listing.
type ListWorkflowsOptions struct {
	Active *bool
	Tags   []string
	Name   string
	Limit  int
	Cursor string
}

// ListWorkflows fetches one page of workflows.
func (c *Client) ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*Page[*workflow.Workflow], error) {
	query := map[string]string{}
	if opts.Active != nil {
		query["active"] = strconv.FormatBool(*opts.Active)
	}
	if len(opts.Tags) > 0 {
		query["tags"] = strings.Join(opts.Tags, ",")
	}
	if opts.Name != "" {
		query["name"] = opts.Name
	}
	if opts.Cursor != "" {
		query["cursor"] = opts.Cursor
	}
	limitParam(query, opts.Limit)
	var page Page[*workflow.Workflow]
	if err := c.do(ctx, http.MethodGet, "/workflows", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAllWorkflows follows cursors until the listing is exhausted.
func (c *Client) ListAllWorkflows(ctx context.Context, opts ListWorkflowsOptions) ([]*workflow.Workflow, error) {
	var all []*workflow.Workflow
	for {
		page, err := c.ListWorkflows(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if page.NextCursor == "" || page.NextCursor == opts.Cursor {
			return all, nil
		}
		opts.Cursor = page.NextCursor
	}
}

// GetWorkflow fetches one workflow document by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	if err := requireID(id, "workflow"); err != nil {
		return nil, err
	}
	var wf workflow.Workflow
	if err := c.do(ctx, http.MethodGet, pathEscape("workflows", id), nil, nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// workflowPayload shapes a document for create/update: the API owns id,
// version and timestamps, and activation and tags travel through their own
// endpoints, so only the editable fields are sent.
func workflowPayload(wf *workflow.Workflow) (map[string]any, error) {
	if wf == nil {
		return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument, "workflow document is required")
	}
	if strings.TrimSpace(wf.Name) == "" {
		return nil, core.NewError(core.KindData, core.CodeMissingWorkflowName, "workflow has no name")
	}
	raw, err := workflow.Serialize(wf, workflow.SerializeOptions{})
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, core.WrapError(core.KindInternal, core.CodeInternal, err, "remote: reshape workflow payload")
	}
	payload := map[string]any{
		"name":        wf.Name,
		"nodes":       []any{},
		"connections": map[string]any{},
		"settings":    map[string]any{},
	}
	for _, key := range []string{"nodes", "connections", "settings"} {
		if v, ok := doc[key]; ok && v != nil {
			payload[key] = v
		}
	}
	return payload, nil
}

// CreateWorkflow uploads a new workflow and returns it with server-assigned
// identity fields.
func (c *Client) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	payload, err := workflowPayload(wf)
	if err != nil {
		return nil, err
	}
	var created workflow.Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows", nil, payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateWorkflow replaces the workflow document stored under id.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, wf *workflow.Workflow) (*workflow.Workflow, error) {
	if err := requireID(id, "workflow"); err != nil {
		return nil, err
	}
	payload, err := workflowPayload(wf)
	if err != nil {
		return nil, err
	}
	var updated workflow.Workflow
	if err := c.do(ctx, http.MethodPut, pathEscape("workflows", id), nil, payload, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteWorkflow removes a workflow from the instance.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	if err := requireID(id, "workflow"); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, pathEscape("workflows", id), nil, nil, nil)
}

// ActivateWorkflow switches a workflow's triggers on.
func (c *Client) ActivateWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	return c.setActivation(ctx, id, "activate")
}

// DeactivateWorkflow switches a workflow's triggers off.
func (c *Client) DeactivateWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	return c.setActivation(ctx, id, "deactivate")
}

func (c *Client) setActivation(ctx context.Context, id, verb string) (*workflow.Workflow, error) {
	if err := requireID(id, "workflow"); err != nil {
		return nil, err
	}
	var wf workflow.Workflow
	if err := c.do(ctx, http.MethodPost, pathEscape("workflows", id, verb), nil, nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// UpdateWorkflowTags replaces the set of tags attached to a workflow. Tags
// are not part of the update payload; the API manages them separately.
func (c *Client) UpdateWorkflowTags(ctx context.Context, workflowID string, tagIDs []string) ([]*Tag, error) {
	if err := requireID(workflowID, "workflow"); err != nil {
		return nil, err
	}
	refs := make([]map[string]string, 0, len(tagIDs))
	for _, id := range tagIDs {
		refs = append(refs, map[string]string{"id": id})
	}
	var tags []*Tag
	if err := c.do(ctx, http.MethodPut, pathEscape("workflows", workflowID, "tags"), nil, refs, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// --- Executions ---

// ListExecutionsOptions filters an execution listing.
type ListExecutionsOptions struct {
	WorkflowID  string
	Status      string // success, error, waiting
	Limit       int
	Cursor      string
	IncludeData bool
}

// ListExecutions fetches one page of executions, newest first.
func (c *Client) ListExecutions(ctx context.Context, opts ListExecutionsOptions) (*Page[*Execution], error) {
	query := map[string]string{}
	if opts.WorkflowID != "" {
		query["workflowId"] = opts.WorkflowID
	}
	if opts.Status != "" {
		query["status"] = opts.Status
	}
	if opts.Cursor != "" {
		query["cursor"] = opts.Cursor
	}
	if opts.IncludeData {
		query["includeData"] = "true"
	}
	limitParam(query, opts.Limit)
	var page Page[*Execution]
	if err := c.do(ctx, http.MethodGet, "/executions", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetExecution fetches one execution, optionally with its run data.
func (c *Client) GetExecution(ctx context.Context, id int64, includeData bool) (*Execution, error) {
	query := map[string]string{}
	if includeData {
		query["includeData"] = "true"
	}
	var exec Execution
	if err := c.do(ctx, http.MethodGet, pathEscape("executions", strconv.FormatInt(id, 10)), query, nil, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// DeleteExecution removes one execution record.
func (c *Client) DeleteExecution(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, pathEscape("executions", strconv.FormatInt(id, 10)), nil, nil, nil)
}

// RetryExecution re-runs a finished execution. With loadLatest the retry
// uses the current workflow document instead of the one recorded with the
// failed run.
func (c *Client) RetryExecution(ctx context.Context, id int64, loadLatest bool) (*Execution, error) {
	body := map[string]any{"loadWorkflow": loadLatest}
	var exec Execution
	if err := c.do(ctx, http.MethodPost, pathEscape("executions", strconv.FormatInt(id, 10), "retry"), nil, body, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// --- Credentials ---

// ListCredentials fetches one page of credentials. Secret data is never
// included.
func (c *Client) ListCredentials(ctx context.Context, limit int, cursor string) (*Page[*Credential], error) {
	query := map[string]string{}
	if cursor != "" {
		query["cursor"] = cursor
	}
	limitParam(query, limit)
	var page Page[*Credential]
	if err := c.do(ctx, http.MethodGet, "/credentials", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateCredential stores a new credential and returns its identity. The
// secret payload is write-only.
func (c *Client) CreateCredential(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred == nil || strings.TrimSpace(cred.Name) == "" || strings.TrimSpace(cred.Type) == "" {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "credential name and type are required")
	}
	if len(cred.Data) == 0 {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "credential data is required")
	}
	body := map[string]any{"name": cred.Name, "type": cred.Type, "data": cred.Data}
	var created Credential
	if err := c.do(ctx, http.MethodPost, "/credentials", nil, body, &created); err != nil {
		return nil, err
	}
	// Some server versions echo the data payload back. Drop it so the
	// secret never reaches envelopes, logs, or saved files.
	created.Data = nil
	return &created, nil
}

// DeleteCredential removes a credential by id.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	if err := requireID(id, "credential"); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, pathEscape("credentials", id), nil, nil, nil)
}

// CredentialSchema fetches the field schema for a credential type, e.g.
// "slackApi".
func (c *Client) CredentialSchema(ctx context.Context, credType string) (map[string]any, error) {
	if err := requireID(credType, "credential type"); err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := c.do(ctx, http.MethodGet, pathEscape("credentials", "schema", credType), nil, nil, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// --- Variables ---

// ListVariables fetches one page of instance variables.
func (c *Client) ListVariables(ctx context.Context, limit int, cursor string) (*Page[*Variable], error) {
	query := map[string]string{}
	if cursor != "" {
		query["cursor"] = cursor
	}
	limitParam(query, limit)
	var page Page[*Variable]
	if err := c.do(ctx, http.MethodGet, "/variables", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateVariable defines a new instance variable.
func (c *Client) CreateVariable(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return core.NewError(core.KindUsage, core.CodeMissingArgument, "variable key is required")
	}
	return c.do(ctx, http.MethodPost, "/variables", nil, map[string]string{"key": key, "value": value}, nil)
}

// UpdateVariable rewrites an existing variable.
func (c *Client) UpdateVariable(ctx context.Context, id, key, value string) error {
	if err := requireID(id, "variable"); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return core.NewError(core.KindUsage, core.CodeMissingArgument, "variable key is required")
	}
	return c.do(ctx, http.MethodPut, pathEscape("variables", id), nil, map[string]string{"key": key, "value": value}, nil)
}

// DeleteVariable removes a variable by id.
func (c *Client) DeleteVariable(ctx context.Context, id string) error {
	if err := requireID(id, "variable"); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, pathEscape("variables", id), nil, nil, nil)
}

// --- Tags ---

// ListTags fetches one page of tags.
func (c *Client) ListTags(ctx context.Context, limit int, cursor string) (*Page[*Tag], error) {
	query := map[string]string{}
	if cursor != "" {
		query["cursor"] = cursor
	}
	limitParam(query, limit)
	var page Page[*Tag]
	if err := c.do(ctx, http.MethodGet, "/tags", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateTag creates a tag with the given name.
func (c *Client) CreateTag(ctx context.Context, name string) (*Tag, error) {
	if strings.TrimSpace(name) == "" {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "tag name is required")
	}
	var tag Tag
	if err := c.do(ctx, http.MethodPost, "/tags", nil, map[string]string{"name": name}, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// UpdateTag renames a tag.
func (c *Client) UpdateTag(ctx context.Context, id, name string) (*Tag, error) {
	if err := requireID(id, "tag"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "tag name is required")
	}
	var tag Tag
	if err := c.do(ctx, http.MethodPut, pathEscape("tags", id), nil, map[string]string{"name": name}, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// DeleteTag removes a tag by id.
func (c *Client) DeleteTag(ctx context.Context, id string) error {
	if err := requireID(id, "tag"); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, pathEscape("tags", id), nil, nil, nil)
}

// --- Audit ---

// auditCategories are the report sections the platform knows.
var auditCategories = map[string]bool{
	"credentials": true,
	"database":    true,
	"nodes":       true,
	"filesystem":  true,
	"instance":    true,
}

// AuditOptions narrows a security audit report.
type AuditOptions struct {
	Categories            []string
	DaysAbandonedWorkflow int
}

// GenerateAudit asks the instance for a security audit report.
func (c *Client) GenerateAudit(ctx context.Context, opts AuditOptions) (map[string]any, error) {
	additional := map[string]any{}
	if len(opts.Categories) > 0 {
		for _, cat := range opts.Categories {
			if !auditCategories[cat] {
				return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument,
					"unknown audit category %q (credentials, database, nodes, filesystem, instance)", cat)
			}
		}
		additional["categories"] = opts.Categories
	}
	if opts.DaysAbandonedWorkflow > 0 {
		additional["daysAbandonedWorkflow"] = opts.DaysAbandonedWorkflow
	}
	body := map[string]any{"additionalOptions": additional}
	var report map[string]any
	if err := c.do(ctx, http.MethodPost, "/audit", nil, body, &report); err != nil {
		return nil, err
	}
	return report, nil
}

// --- Health ---

// CheckHealth probes the instance liveness endpoint, which lives at the
// server root rather than under the API prefix.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, c.root+"/healthz", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
