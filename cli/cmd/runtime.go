// Package cmd carries the runtime shared by every command group: engine
// components opened lazily from the effective configuration, plus the
// workflow-document plumbing the mutating commands have in common.
package cmd

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/helpers"
	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/remote"
	"github.com/n8nkit/n8nkit/engine/versions"
	"github.com/n8nkit/n8nkit/engine/workflow"
	"github.com/n8nkit/n8nkit/pkg/config"
	"github.com/n8nkit/n8nkit/pkg/logger"
)

// Runtime resolves per-invocation dependencies for one command. Components
// are opened on first use and shared for the rest of the run; Close releases
// whatever was actually opened.
type Runtime struct {
	cmd *cobra.Command
	cfg *config.Config
	out *helpers.Output

	catalog *kb.KB
	store   *versions.Store
	client  *remote.Client
	backups *helpers.BackupWriter
}

// NewRuntime builds the runtime off the running command's context, which
// the root command populated with configuration and logger.
func NewRuntime(cmd *cobra.Command) *Runtime {
	return &Runtime{
		cmd: cmd,
		cfg: config.FromContext(cmd.Context()),
		out: helpers.OutputFromCommand(cmd),
	}
}

func (r *Runtime) Config() *config.Config { return r.cfg }

func (r *Runtime) Output() *helpers.Output { return r.out }

func (r *Runtime) Log() logger.Logger { return logger.FromContext(r.cmd.Context()) }

// KB opens the node catalog. A missing catalog surfaces as the coded
// configuration error from the engine; commands that can run without one
// handle that themselves.
func (r *Runtime) KB(ctx context.Context) (*kb.KB, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}
	k, err := kb.Open(ctx, r.cfg.ResolveKBPath())
	if err != nil {
		return nil, err
	}
	if !k.FTSEnabled() {
		r.Log().Debug("node catalog has no full-text index, searches use substring matching")
	}
	r.catalog = k
	return k, nil
}

// OptionalKB opens the catalog for commands that can work without
// one; they get nil instead of an error.
func (r *Runtime) OptionalKB(ctx context.Context) *kb.KB {
	k, err := r.KB(ctx)
	if err != nil {
		r.Log().Debug("node catalog unavailable", "error", err)
		return nil
	}
	return k
}

// Resolver returns the catalog as a node-type resolver when it is
// available, nil otherwise. Normalization tolerates a nil resolver.
func (r *Runtime) Resolver(ctx context.Context) workflow.TypeResolver {
	if k := r.OptionalKB(ctx); k != nil {
		return k
	}
	return nil
}

// Store opens the local version store at the configured data directory.
func (r *Runtime) Store(ctx context.Context) (*versions.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	st, err := versions.Open(ctx, r.cfg.Store.Dir, versions.Options{
		Keep:              r.cfg.Store.Keep,
		StrictPermissions: r.cfg.Store.StrictPermissions,
	})
	if err != nil {
		return nil, err
	}
	for _, warning := range st.Warnings() {
		r.Log().Warn(warning)
	}
	r.store = st
	return st, nil
}

// Remote builds the API client. Host and key gaps surface as configuration
// errors naming the flag and environment variable that fix them.
func (r *Runtime) Remote() (*remote.Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	if r.cfg.API.Host == "" {
		return nil, core.NewError(core.KindConfig, core.CodeConfigInvalid,
			"no n8n host configured; set api.host in the config file, N8N_HOST, or --host")
	}
	if r.cfg.API.APIKey.Value() == "" {
		return nil, core.NewError(core.KindConfig, core.CodeConfigInvalid,
			"no n8n api key configured; set api.api_key in the config file, N8N_API_KEY, or --api-key")
	}
	mode, err := remote.ParseGuardMode(r.cfg.API.SSRFMode)
	if err != nil {
		return nil, err
	}
	client, err := remote.New(remote.Config{
		BaseURL:  r.cfg.API.Host,
		APIKey:   r.cfg.API.APIKey.Value(),
		Timeout:  r.cfg.API.Timeout,
		Attempts: r.cfg.API.Attempts,
		SSRFMode: mode,
	})
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// Backups returns the pre-mutation backup writer over the real filesystem.
func (r *Runtime) Backups() *helpers.BackupWriter {
	if r.backups == nil {
		r.backups = helpers.NewBackupWriter(afero.NewOsFs(), r.cfg.BackupsDir())
	}
	return r.backups
}

// Close releases every component the command opened.
func (r *Runtime) Close(ctx context.Context) {
	if r.catalog != nil {
		if err := r.catalog.Close(ctx); err != nil {
			r.Log().Debug("close node catalog", "error", err)
		}
		r.catalog = nil
	}
	if r.store != nil {
		if err := r.store.Close(ctx); err != nil {
			r.Log().Debug("close version store", "error", err)
		}
		r.store = nil
	}
}

// WorkflowInput names where a command takes its workflow document from.
// Exactly one of ID, File, or Inline must be set.
type WorkflowInput struct {
	// ID fetches the workflow from the configured instance.
	ID string
	// File reads a local path; "-" reads stdin.
	File string
	// Inline carries the document on the command line.
	Inline string
	// Repair runs the JSON repair pre-pass on local documents.
	Repair bool
}

// LoadedWorkflow couples a parsed workflow with its provenance.
type LoadedWorkflow struct {
	Workflow *workflow.Workflow
	// Repairs lists the syntax edits the repair pass applied, if any.
	Repairs []workflow.RepairNote
	// Raw is the document as read or fetched, for pre-mutation backups.
	Raw []byte
	// FromRemote is set when the document came from the instance; applying
	// changes then means pushing back rather than rewriting a file.
	FromRemote bool
}

// LoadWorkflow resolves a workflow from --id, --file, or --json-input.
// Local documents are parsed (with repair when asked) and normalized
// against the catalog; remote ones arrive canonical from the API.
func (r *Runtime) LoadWorkflow(ctx context.Context, in WorkflowInput) (*LoadedWorkflow, error) {
	if in.ID != "" && (in.File != "" || in.Inline != "") {
		return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument,
			"pass either --id or a local document, not both")
	}
	if in.ID != "" {
		client, err := r.Remote()
		if err != nil {
			return nil, err
		}
		wf, err := client.GetWorkflow(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		raw, err := workflow.Serialize(wf, workflow.SerializeOptions{Full: true})
		if err != nil {
			return nil, err
		}
		return &LoadedWorkflow{Workflow: wf, Raw: raw, FromRemote: true}, nil
	}
	data, err := helpers.ReadDocument(r.cmd.InOrStdin(), in.File, in.Inline)
	if err != nil {
		return nil, err
	}
	parsed, err := workflow.Parse(data, workflow.ParseOptions{Repair: in.Repair})
	if err != nil {
		return nil, err
	}
	workflow.Normalize(ctx, parsed.Workflow, r.Resolver(ctx))
	return &LoadedWorkflow{Workflow: parsed.Workflow, Repairs: parsed.Repairs, Raw: data}, nil
}

// Safeguard captures the pre-image of a workflow about to be mutated: a
// version-store snapshot plus a standalone JSON backup file. Either half
// failing aborts the mutation; losing the escape hatch is worse than
// skipping the change.
type SafeguardResult struct {
	Version    int    `json:"backupVersion"`
	BackupPath string `json:"backupPath"`
}

func (r *Runtime) Safeguard(
	ctx context.Context,
	workflowID string,
	wf *workflow.Workflow,
	trigger versions.Trigger,
) (*SafeguardResult, error) {
	if workflowID == "" {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument,
			"workflow has no id to snapshot under")
	}
	store, err := r.Store(ctx)
	if err != nil {
		return nil, err
	}
	version, err := store.CreateSnapshot(ctx, workflowID, wf, trigger)
	if err != nil {
		return nil, err
	}
	doc, err := workflow.Serialize(wf, workflow.SerializeOptions{Full: true})
	if err != nil {
		return nil, err
	}
	path, err := r.Backups().Write(workflowID, doc)
	if err != nil {
		return nil, err
	}
	r.Log().Debug("captured pre-image", "workflow", workflowID, "version", version, "backup", path)
	return &SafeguardResult{Version: version, BackupPath: path}, nil
}
