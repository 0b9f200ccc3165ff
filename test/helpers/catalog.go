// Package helpers provides shared test fixtures: a seeded node catalog
// and canned workflow documents used across engine packages.
package helpers

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n8nkit/n8nkit/engine/kb"
)

// TempCatalog builds a seeded catalog database under t.TempDir and
// returns its path.
func TempCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nodes.db")
	require.NoError(t, SeedCatalog(context.Background(), path))
	return path
}

// OpenSeededKB builds a seeded catalog and opens it read-only, closing it
// when the test finishes.
func OpenSeededKB(t *testing.T) *kb.KB {
	t.Helper()
	ctx := context.Background()
	k, err := kb.Open(ctx, TempCatalog(t))
	require.NoError(t, err)
	t.Cleanup(func() { k.Close(context.Background()) })
	return k
}

// SeedCatalog writes a small but representative node catalog: core nodes,
// triggers, resource/operation nodes, the AI family, and a handful of
// templates.
func SeedCatalog(ctx context.Context, path string) error {
	b, err := kb.NewCatalogBuilder(ctx, path)
	if err != nil {
		return err
	}
	defer b.Close(ctx)
	for _, d := range SeedDescriptors() {
		if err := b.PutNode(ctx, d); err != nil {
			return err
		}
	}
	for _, tpl := range SeedTemplates() {
		if err := b.PutTemplate(ctx, tpl); err != nil {
			return err
		}
	}
	return nil
}

// SeedDescriptors returns the canned node descriptors used by SeedCatalog.
func SeedDescriptors() []*kb.NodeDescriptor {
	return []*kb.NodeDescriptor{
		{
			Type:              "n8n-nodes-base.httpRequest",
			Alias:             "httpRequest",
			DisplayName:       "HTTP Request",
			Category:          "Core Nodes",
			Description:       "Makes an HTTP request and returns the response data",
			LatestVersion:     4.2,
			SupportedVersions: []float64{1, 2, 3, 4, 4.1, 4.2},
			Properties: []kb.Property{
				{Name: "method", DisplayName: "Method", Type: "options", Default: "GET", Options: []kb.PropertyOption{
					{Name: "GET", Value: "GET"}, {Name: "POST", Value: "POST"},
					{Name: "PUT", Value: "PUT"}, {Name: "DELETE", Value: "DELETE"},
				}},
				{Name: "url", DisplayName: "URL", Type: "string", Required: true,
					Description: "The URL to make the request to"},
				{Name: "authentication", Type: "options", Default: "none", Options: []kb.PropertyOption{
					{Name: "None", Value: "none"},
					{Name: "Predefined Credential Type", Value: "predefinedCredentialType"},
					{Name: "Generic Credential Type", Value: "genericCredentialType"},
				}},
				{Name: "sendBody", DisplayName: "Send Body", Type: "boolean", Default: false},
				{Name: "contentType", Type: "options", Default: "json",
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"sendBody": {true}}},
					Options: []kb.PropertyOption{
						{Name: "JSON", Value: "json"}, {Name: "Form URLencoded", Value: "form-urlencoded"},
					}},
				{Name: "jsonBody", Type: "json", Required: true,
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{
						"sendBody": {true}, "contentType": {"json"},
					}}},
				{Name: "options", Type: "collection", Description: "Additional request options"},
			},
			BreakingChanges: []kb.BreakingChange{
				{FromVersion: 1, ToVersion: 2, Severity: kb.SeverityMedium,
					Description: "Query parameters moved from queryParametersUi to sendQuery/queryParameters"},
				{FromVersion: 3, ToVersion: 4, Severity: kb.SeverityHigh,
					Description: "Response handling moved under options.response; splitIntoItems removed"},
			},
		},
		{
			Type:              "n8n-nodes-base.webhook",
			Alias:             "webhook",
			DisplayName:       "Webhook",
			Category:          "Trigger",
			Description:       "Starts the workflow when a webhook is called",
			LatestVersion:     2,
			SupportedVersions: []float64{1, 1.1, 2},
			Properties: []kb.Property{
				{Name: "path", DisplayName: "Path", Type: "string", Required: true,
					Description: "The path to listen on"},
				{Name: "httpMethod", Type: "options", Default: "GET", Options: []kb.PropertyOption{
					{Name: "GET", Value: "GET"}, {Name: "POST", Value: "POST"},
				}},
				{Name: "responseMode", Type: "options", Default: "onReceived", Options: []kb.PropertyOption{
					{Name: "Immediately", Value: "onReceived"},
					{Name: "When Last Node Finishes", Value: "lastNode"},
					{Name: "Using Respond to Webhook Node", Value: "responseNode"},
				}},
			},
		},
		{
			Type:              "n8n-nodes-base.manualTrigger",
			Alias:             "manualTrigger",
			DisplayName:       "Manual Trigger",
			Category:          "Trigger",
			Description:       "Runs the flow on clicking a button",
			LatestVersion:     1,
			SupportedVersions: []float64{1},
		},
		{
			Type:              "n8n-nodes-base.scheduleTrigger",
			Alias:             "scheduleTrigger",
			DisplayName:       "Schedule Trigger",
			Category:          "Trigger",
			Description:       "Runs the flow on a timer",
			LatestVersion:     1.2,
			SupportedVersions: []float64{1, 1.1, 1.2},
			Properties: []kb.Property{
				{Name: "rule", Type: "collection", Description: "Interval rules"},
			},
		},
		{
			Type:              "n8n-nodes-base.if",
			Alias:             "if",
			DisplayName:       "If",
			Category:          "Core Nodes",
			Description:       "Routes items true/false based on conditions",
			LatestVersion:     2.2,
			SupportedVersions: []float64{1, 2, 2.1, 2.2},
			Properties: []kb.Property{
				{Name: "conditions", Type: "filter", Required: true},
				{Name: "options", Type: "collection"},
			},
			BreakingChanges: []kb.BreakingChange{
				{FromVersion: 1, ToVersion: 2, Severity: kb.SeverityHigh,
					Description: "conditions schema replaced by the filter component"},
			},
		},
		{
			Type:              "n8n-nodes-base.switch",
			Alias:             "switch",
			DisplayName:       "Switch",
			Category:          "Core Nodes",
			Description:       "Routes items to different outputs",
			LatestVersion:     3.2,
			SupportedVersions: []float64{1, 2, 3, 3.1, 3.2},
			Properties: []kb.Property{
				{Name: "mode", Type: "options", Default: "rules", Options: []kb.PropertyOption{
					{Name: "Rules", Value: "rules"}, {Name: "Expression", Value: "expression"},
				}},
				{Name: "rules", Type: "filter"},
				{Name: "options", Type: "collection"},
			},
			BreakingChanges: []kb.BreakingChange{
				{FromVersion: 2, ToVersion: 3, Severity: kb.SeverityMedium,
					Description:    "rules.rules renamed to rules.values",
					AutoMigratable: true,
					Migration: &kb.Migration{
						RenameParameters: map[string]string{"rules.rules": "rules.values"},
					}},
			},
		},
		{
			Type:              "n8n-nodes-base.set",
			Alias:             "set",
			DisplayName:       "Edit Fields (Set)",
			Category:          "Core Nodes",
			Description:       "Adds or edits fields on the input items",
			LatestVersion:     3.4,
			SupportedVersions: []float64{1, 2, 3, 3.1, 3.2, 3.3, 3.4},
			Properties: []kb.Property{
				{Name: "mode", Type: "options", Default: "manual", Options: []kb.PropertyOption{
					{Name: "Manual Mapping", Value: "manual"}, {Name: "JSON", Value: "raw"},
				}},
				{Name: "assignments", Type: "fixedCollection",
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"mode": {"manual"}}}},
				{Name: "jsonOutput", Type: "json", Required: true,
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"mode": {"raw"}}}},
			},
		},
		{
			Type:              "n8n-nodes-base.code",
			Alias:             "code",
			DisplayName:       "Code",
			Category:          "Core Nodes",
			Description:       "Runs custom JavaScript or Python code",
			LatestVersion:     2,
			SupportedVersions: []float64{1, 2},
			Properties: []kb.Property{
				{Name: "mode", Type: "options", Default: "runOnceForAllItems", Options: []kb.PropertyOption{
					{Name: "Run Once for All Items", Value: "runOnceForAllItems"},
					{Name: "Run Once for Each Item", Value: "runOnceForEachItem"},
				}},
				{Name: "language", Type: "options", Default: "javaScript", Options: []kb.PropertyOption{
					{Name: "JavaScript", Value: "javaScript"}, {Name: "Python", Value: "python"},
				}},
				{Name: "jsCode", Type: "string", Required: true,
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"language": {"javaScript"}}}},
				{Name: "pythonCode", Type: "string", Required: true,
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"language": {"python"}}}},
			},
		},
		{
			Type:              "n8n-nodes-base.googleSheets",
			Alias:             "googleSheets",
			DisplayName:       "Google Sheets",
			Category:          "Action",
			Description:       "Read, update and write data to Google Sheets",
			LatestVersion:     4.5,
			SupportedVersions: []float64{1, 2, 3, 4, 4.1, 4.2, 4.3, 4.4, 4.5},
			Credentials:       []kb.CredentialRef{{Name: "googleSheetsOAuth2Api", Required: true}},
			Properties: []kb.Property{
				{Name: "resource", Type: "options", Default: "sheet", Options: []kb.PropertyOption{
					{Name: "Document", Value: "spreadsheet"}, {Name: "Sheet Within Document", Value: "sheet"},
				}},
				{Name: "operation", Type: "options", Default: "read",
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"resource": {"sheet"}}},
					Options: []kb.PropertyOption{
						{Name: "Append Row", Value: "append"}, {Name: "Get Rows", Value: "read"},
						{Name: "Update Row", Value: "update"},
					}},
				{Name: "operation", Type: "options", Default: "create",
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"resource": {"spreadsheet"}}},
					Options: []kb.PropertyOption{
						{Name: "Create", Value: "create"}, {Name: "Delete", Value: "delete"},
					}},
				{Name: "documentId", Type: "resourceLocator", Required: true,
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"resource": {"sheet"}}}},
			},
		},
		{
			Type:              "n8n-nodes-base.slack",
			Alias:             "slack",
			DisplayName:       "Slack",
			Category:          "Action",
			Description:       "Sends messages and manages channels in Slack",
			LatestVersion:     2.3,
			SupportedVersions: []float64{1, 2, 2.1, 2.2, 2.3},
			Credentials:       []kb.CredentialRef{{Name: "slackApi", Required: true}},
			Properties: []kb.Property{
				{Name: "resource", Type: "options", Default: "message", Options: []kb.PropertyOption{
					{Name: "Message", Value: "message"}, {Name: "Channel", Value: "channel"},
				}},
				{Name: "operation", Type: "options", Default: "post",
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"resource": {"message"}}},
					Options: []kb.PropertyOption{
						{Name: "Send", Value: "post"}, {Name: "Update", Value: "update"},
						{Name: "Delete", Value: "delete"},
					}},
				{Name: "text", Type: "string", Required: true,
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{
						"resource": {"message"}, "operation": {"post"},
					}}},
			},
		},
		{
			Type:              "n8n-nodes-base.postgres",
			Alias:             "postgres",
			DisplayName:       "Postgres",
			Category:          "Action",
			Description:       "Gets, adds and updates data in a Postgres database",
			LatestVersion:     2.6,
			SupportedVersions: []float64{1, 2, 2.1, 2.2, 2.3, 2.4, 2.5, 2.6},
			Credentials:       []kb.CredentialRef{{Name: "postgres", Required: true}},
			Properties: []kb.Property{
				{Name: "operation", Type: "options", Default: "executeQuery", Options: []kb.PropertyOption{
					{Name: "Execute Query", Value: "executeQuery"}, {Name: "Insert", Value: "insert"},
					{Name: "Select", Value: "select"}, {Name: "Update", Value: "update"},
				}},
				{Name: "query", Type: "string", Required: true,
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"operation": {"executeQuery"}}}},
			},
		},
		{
			Type:              "@n8n/n8n-nodes-langchain.agent",
			Alias:             "agent",
			DisplayName:       "AI Agent",
			Category:          "AI",
			Subcategory:       "Agents",
			Description:       "Autonomous agent that can use tools",
			LatestVersion:     2,
			SupportedVersions: []float64{1, 1.5, 1.6, 1.7, 2},
			Properties: []kb.Property{
				{Name: "promptType", Type: "options", Default: "auto", Options: []kb.PropertyOption{
					{Name: "Take from previous node automatically", Value: "auto"},
					{Name: "Define below", Value: "define"},
				}},
				{Name: "text", Type: "string", Required: true,
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"promptType": {"define"}}}},
				{Name: "hasOutputParser", Type: "boolean", Default: false},
				{Name: "options", Type: "collection"},
			},
		},
		{
			Type:              "@n8n/n8n-nodes-langchain.chainLlm",
			Alias:             "chainLlm",
			DisplayName:       "Basic LLM Chain",
			Category:          "AI",
			Subcategory:       "Chains",
			Description:       "A simple chain to prompt a large language model",
			LatestVersion:     1.7,
			SupportedVersions: []float64{1, 1.4, 1.5, 1.6, 1.7},
			Properties: []kb.Property{
				{Name: "promptType", Type: "options", Default: "auto"},
				{Name: "text", Type: "string",
					DisplayOptions: &kb.DisplayOptions{Show: map[string][]any{"promptType": {"define"}}}},
			},
		},
		{
			Type:              "@n8n/n8n-nodes-langchain.lmChatOpenAi",
			Alias:             "lmChatOpenAi",
			DisplayName:       "OpenAI Chat Model",
			Category:          "AI",
			Subcategory:       "Language Models",
			Description:       "Chat model from OpenAI",
			LatestVersion:     1.2,
			SupportedVersions: []float64{1, 1.1, 1.2},
			Credentials:       []kb.CredentialRef{{Name: "openAiApi", Required: true}},
			Properties: []kb.Property{
				{Name: "model", Type: "resourceLocator", Default: "gpt-4o-mini"},
				{Name: "options", Type: "collection"},
			},
		},
		{
			Type:              "@n8n/n8n-nodes-langchain.memoryBufferWindow",
			Alias:             "memoryBufferWindow",
			DisplayName:       "Simple Memory",
			Category:          "AI",
			Subcategory:       "Memory",
			Description:       "Stores the chat history in memory",
			LatestVersion:     1.3,
			SupportedVersions: []float64{1, 1.1, 1.2, 1.3},
		},
		{
			Type:              "@n8n/n8n-nodes-langchain.toolHttpRequest",
			Alias:             "toolHttpRequest",
			DisplayName:       "HTTP Request Tool",
			Category:          "AI",
			Subcategory:       "Tools",
			Description:       "Lets an agent call an HTTP endpoint",
			LatestVersion:     1.1,
			SupportedVersions: []float64{1, 1.1},
			Properties: []kb.Property{
				{Name: "toolDescription", Type: "string", Required: true,
					Description: "Explains to the model when to use this tool"},
				{Name: "url", Type: "string", Required: true},
			},
		},
		{
			Type:              "@n8n/n8n-nodes-langchain.outputParserStructured",
			Alias:             "outputParserStructured",
			DisplayName:       "Structured Output Parser",
			Category:          "AI",
			Subcategory:       "Output Parsers",
			Description:       "Parses model output into a JSON schema",
			LatestVersion:     1.2,
			SupportedVersions: []float64{1, 1.1, 1.2},
		},
		{
			Type:              "@n8n/n8n-nodes-langchain.chatTrigger",
			Alias:             "chatTrigger",
			DisplayName:       "Chat Trigger",
			Category:          "Trigger",
			Subcategory:       "AI",
			Description:       "Starts the workflow from a chat message",
			LatestVersion:     1.1,
			SupportedVersions: []float64{1, 1.1},
		},
	}
}

// SeedTemplates returns the canned template rows used by SeedCatalog.
func SeedTemplates() []*kb.Template {
	return []*kb.Template{
		{
			TemplateSummary: kb.TemplateSummary{
				ID: 101, Name: "Webhook to Slack notification",
				Description: "Receives a webhook and posts a formatted message to Slack",
				NodeCount:   3, Views: 5400, Complexity: "simple", Category: "DevOps",
				Tasks: []string{"webhook_processing", "notifications"}, Services: []string{"slack"},
				SetupMinutes: 5,
			},
			Workflow: templateWorkflow(
				tplNode("Webhook", "n8n-nodes-base.webhook", 2),
				tplNode("Format", "n8n-nodes-base.set", 3.4),
				tplNode("Notify", "n8n-nodes-base.slack", 2.3),
			),
		},
		{
			TemplateSummary: kb.TemplateSummary{
				ID: 102, Name: "AI email triage agent",
				Description: "Classifies incoming email with an AI agent and routes replies",
				NodeCount:   4, Views: 3200, Complexity: "medium", Category: "AI",
				Tasks: []string{"ai_agent", "email"}, Services: []string{"openai"},
				SetupMinutes: 15,
			},
			Workflow: templateWorkflow(
				tplNode("Chat In", "@n8n/n8n-nodes-langchain.chatTrigger", 1.1),
				tplNode("Agent", "@n8n/n8n-nodes-langchain.agent", 2),
				tplNode("Model", "@n8n/n8n-nodes-langchain.lmChatOpenAi", 1.2),
			),
		},
		{
			TemplateSummary: kb.TemplateSummary{
				ID: 103, Name: "Postgres ETL sync",
				Description: "Scheduled extract-transform-load between Postgres tables",
				NodeCount:   5, Views: 800, Complexity: "complex", Category: "Data",
				Tasks: []string{"data_sync"}, Services: []string{"postgres"},
				SetupMinutes: 30,
			},
			Workflow: templateWorkflow(
				tplNode("Every Night", "n8n-nodes-base.scheduleTrigger", 1.2),
				tplNode("Extract", "n8n-nodes-base.postgres", 2.6),
				tplNodeWithParams("Load", "n8n-nodes-base.postgres", 2.6, map[string]any{
					"query": "-- ported from the old n8n-nodes-base.mySql pipeline",
				}),
			),
		},
	}
}

func tplNode(name, nodeType string, version float64) map[string]any {
	return tplNodeWithParams(name, nodeType, version, map[string]any{})
}

func tplNodeWithParams(name, nodeType string, version float64, params map[string]any) map[string]any {
	return map[string]any{
		"id":          name,
		"name":        name,
		"type":        nodeType,
		"typeVersion": version,
		"position":    []float64{0, 0},
		"parameters":  params,
	}
}

func templateWorkflow(nodes ...map[string]any) json.RawMessage {
	doc := map[string]any{"nodes": nodes, "connections": map[string]any{}}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return raw
}
