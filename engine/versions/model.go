package versions

import (
	"time"

	"github.com/n8nkit/n8nkit/engine/workflow"
)

// Trigger records what caused a snapshot. Mutating commands snapshot the
// state they are about to replace, so most triggers carry a "pre-" prefix.
type Trigger string

const (
	TriggerManual      Trigger = "manual"
	TriggerPreAutofix  Trigger = "pre-autofix"
	TriggerAutofix     Trigger = "autofix"
	TriggerPreDiff     Trigger = "pre-diff"
	TriggerDiff        Trigger = "diff"
	TriggerPreRollback Trigger = "pre-rollback"
	TriggerPrePush     Trigger = "pre-push"
)

// DefaultKeep is the per-workflow retention ceiling applied after every
// insert. Prune accepts a different ceiling for explicit trims.
const DefaultKeep = 10

// Meta is the snapshot metadata row, without the document itself.
type Meta struct {
	WorkflowID    string    `json:"workflowId"`
	VersionNumber int       `json:"versionNumber"`
	WorkflowName  string    `json:"workflowName"`
	Trigger       Trigger   `json:"trigger"`
	Note          string    `json:"note,omitempty"`
	NodeCount     int       `json:"nodeCount"`
	SizeBytes     int64     `json:"sizeBytes"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Snapshot is a stored workflow state.
type Snapshot struct {
	Meta
	Workflow *workflow.Workflow `json:"workflow"`
}

// AuditRecord is one history-changing action: rollback, prune, delete-all
// or truncate.
type AuditRecord struct {
	WorkflowID  string    `json:"workflowId"`
	Action      string    `json:"action"`
	FromVersion int       `json:"fromVersion,omitempty"`
	ToVersion   int       `json:"toVersion,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Stats summarizes the store.
type Stats struct {
	Path         string    `json:"path"`
	Workflows    int       `json:"workflows"`
	Snapshots    int       `json:"snapshots"`
	SizeBytes    int64     `json:"sizeBytes"`
	AuditRecords int       `json:"auditRecords"`
	Oldest       time.Time `json:"oldest,omitempty"`
	Newest       time.Time `json:"newest,omitempty"`
}

// RollbackOptions tunes Rollback behavior.
type RollbackOptions struct {
	// NoBackup skips the pre-rollback snapshot of the current state.
	NoBackup bool
	// Validate, when set, gates the rollback on the restored document:
	// a non-nil error aborts before anything is written.
	Validate func(wf *workflow.Workflow) error
}

// RollbackResult reports what a rollback wrote and the restored document.
// The caller pushes Workflow to wherever the current state lives.
type RollbackResult struct {
	WorkflowID    string             `json:"workflowId"`
	TargetVersion int                `json:"targetVersion"`
	BackupVersion int                `json:"backupVersion,omitempty"`
	Workflow      *workflow.Workflow `json:"workflow"`
}
