// Package versions is the local history of workflow snapshots: ordered
// version numbers per workflow id, FIFO retention, structural compare,
// rollback with a pre-rollback backup, and an audit trail of every
// history-changing action. The store lives in the user data directory and
// is guarded by a file lock so concurrent invocations serialize writes.
package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/infra/sqlite"
	"github.com/n8nkit/n8nkit/engine/workflow"
	"github.com/n8nkit/n8nkit/pkg/logger"
)

const (
	// DBFileName is the version store database inside the data directory.
	DBFileName = "data.db"

	lockFileName      = "data.db.lock"
	lockRetryInterval = 50 * time.Millisecond

	dirMode  os.FileMode = 0o700
	fileMode os.FileMode = 0o600
)

// Options tunes how the store is opened.
type Options struct {
	// Keep is the per-workflow retention ceiling enforced after every
	// insert. Zero means DefaultKeep.
	Keep int
	// StrictPermissions turns permission findings from warnings into a
	// refusal to open.
	StrictPermissions bool
}

// Store is the local version store. Reads go straight to the database;
// writes additionally take the cross-process file lock.
type Store struct {
	store    *sqlite.Store
	lock     *flock.Flock
	dir      string
	keep     int
	warnings []string
}

// Open creates (if needed) and opens the version store under dir. The
// directory is created mode 0700; a directory or database reachable by
// other users is reported as a warning, or refused outright in
// strict-permissions mode.
func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	if dir == "" {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "versions: data directory is required")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, core.WrapError(core.KindIO, core.CodeStoreError, err, "versions: create data directory %s", dir)
	}
	keep := opts.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}
	s := &Store{
		dir:  dir,
		keep: keep,
		lock: flock.New(filepath.Join(dir, lockFileName)),
	}
	dbPath := filepath.Join(dir, DBFileName)
	s.checkPermissions(dir, dirMode)
	s.checkPermissions(dbPath, fileMode)
	if opts.StrictPermissions && len(s.warnings) > 0 {
		return nil, core.NewError(
			core.KindPermission, core.CodePermissionDenied,
			"versions: refusing to open %s: %s", dir, s.warnings[0],
		)
	}

	created := false
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		created = true
	}
	store, err := sqlite.NewStore(ctx, dbPath)
	if err != nil {
		return nil, core.WrapError(core.KindIO, core.CodeStoreError, err, "versions: open store at %s", dbPath)
	}
	if err := sqlite.ApplyMigrations(ctx, store.DB()); err != nil {
		_ = store.Close(ctx)
		return nil, core.WrapError(core.KindIO, core.CodeStoreError, err, "versions: migrate store at %s", dbPath)
	}
	if created {
		if err := os.Chmod(dbPath, fileMode); err != nil {
			logger.FromContext(ctx).Warn("could not restrict version store permissions", "path", dbPath, "error", err)
		}
	}
	s.store = store
	return s, nil
}

// checkPermissions records a warning when path exists but is not owned by
// the caller or is accessible to group/other. Missing paths are fine: they
// are about to be created with the right mode.
func (s *Store) checkPermissions(path string, want os.FileMode) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if !ownedByCaller(info) {
		s.warnings = append(s.warnings, fmt.Sprintf("%s is not owned by the current user", path))
	}
	if info.Mode().Perm()&^want != 0 {
		s.warnings = append(s.warnings, fmt.Sprintf(
			"%s has mode %04o, want %04o or tighter", path, info.Mode().Perm(), want,
		))
	}
}

// Warnings returns permission findings collected while opening.
func (s *Store) Warnings() []string {
	return s.warnings
}

// Path returns the database file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, DBFileName)
}

// Close releases the database handle.
func (s *Store) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

// withLock serializes writers across processes. The lock call retries until
// it acquires the file lock or ctx is done.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	locked, err := s.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return core.WrapError(core.KindIO, core.CodeStoreError, err, "versions: acquire store lock")
	}
	if !locked {
		return core.NewError(core.KindTemporary, core.CodeStoreError, "versions: store lock is held by another process")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			logger.FromContext(ctx).Warn("could not release version store lock", "error", err)
		}
	}()
	return fn()
}

// CreateSnapshot stores the workflow as the next version of workflowID and
// returns the assigned version number. After the insert the history is
// pruned oldest-first down to the retention ceiling.
func (s *Store) CreateSnapshot(ctx context.Context, workflowID string, wf *workflow.Workflow, trigger Trigger) (int, error) {
	if workflowID == "" {
		return 0, core.NewError(core.KindUsage, core.CodeMissingArgument, "versions: workflow id is required")
	}
	if wf == nil {
		return 0, core.NewError(core.KindUsage, core.CodeInvalidArgument, "versions: workflow is required")
	}
	if trigger == "" {
		trigger = TriggerManual
	}
	version := 0
	err := s.withLock(ctx, func() error {
		var err error
		version, err = s.insertSnapshot(ctx, workflowID, wf, trigger, "")
		return err
	})
	return version, err
}

// insertSnapshot runs inside the store lock: assign the next number, write
// the row, prune FIFO.
func (s *Store) insertSnapshot(ctx context.Context, workflowID string, wf *workflow.Workflow, trigger Trigger, note string) (int, error) {
	doc, err := workflow.Serialize(wf, workflow.SerializeOptions{Full: true})
	if err != nil {
		return 0, err
	}
	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("versions: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rb := tx.Rollback(); rb != nil && !errors.Is(rb, sql.ErrTxDone) {
				logger.FromContext(ctx).Warn("version store rollback failed", "error", rb)
			}
		}
	}()

	version := 0
	err = tx.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM workflow_versions WHERE workflow_id = ?`,
		workflowID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("versions: next version number: %w", err)
	}

	const insert = `INSERT INTO workflow_versions
		(workflow_id, version_number, workflow_name, workflow_json, trigger_kind, note, node_count, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insert,
		workflowID, version, wf.Name, string(doc), string(trigger), note,
		len(wf.Nodes), int64(len(doc)), time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("versions: insert snapshot: %w", err)
	}

	const trim = `DELETE FROM workflow_versions
		WHERE workflow_id = ?
		  AND version_number NOT IN (
			SELECT version_number FROM workflow_versions
			WHERE workflow_id = ?
			ORDER BY version_number DESC LIMIT ?)`
	if _, err = tx.ExecContext(ctx, trim, workflowID, workflowID, s.keep); err != nil {
		return 0, fmt.Errorf("versions: prune after insert: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("versions: commit snapshot: %w", err)
	}
	return version, nil
}

const selectMetaSQL = `SELECT workflow_id, version_number, workflow_name, trigger_kind, note, node_count, size_bytes, created_at
	FROM workflow_versions`

// List returns snapshot metadata for workflowID, most recent first.
func (s *Store) List(ctx context.Context, workflowID string, limit int) ([]Meta, error) {
	if workflowID == "" {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "versions: workflow id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.store.DB().QueryContext(
		ctx,
		selectMetaSQL+` WHERE workflow_id = ? ORDER BY version_number DESC LIMIT ?`,
		workflowID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("versions: list snapshots: %w", err)
	}
	defer rows.Close()
	var out []Meta
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("versions: iter snapshots: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (Meta, error) {
	var m Meta
	var trigger string
	if err := row.Scan(
		&m.WorkflowID, &m.VersionNumber, &m.WorkflowName,
		&trigger, &m.Note, &m.NodeCount, &m.SizeBytes, &m.CreatedAt,
	); err != nil {
		return Meta{}, fmt.Errorf("versions: scan snapshot row: %w", err)
	}
	m.Trigger = Trigger(trigger)
	return m, nil
}

// Get loads one full snapshot. Unknown versions return (nil, nil); a stored
// document that no longer parses is snapshot corruption and surfaces as an
// I/O error.
func (s *Store) Get(ctx context.Context, workflowID string, versionNumber int) (*Snapshot, error) {
	if workflowID == "" {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "versions: workflow id is required")
	}
	const q = `SELECT workflow_id, version_number, workflow_name, trigger_kind, note, node_count, size_bytes, created_at, workflow_json
		FROM workflow_versions WHERE workflow_id = ? AND version_number = ?`
	var (
		snap    Snapshot
		trigger string
		doc     string
	)
	err := s.store.DB().QueryRowContext(ctx, q, workflowID, versionNumber).Scan(
		&snap.WorkflowID, &snap.VersionNumber, &snap.WorkflowName,
		&trigger, &snap.Note, &snap.NodeCount, &snap.SizeBytes, &snap.CreatedAt, &doc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("versions: get snapshot: %w", err)
	}
	snap.Trigger = Trigger(trigger)
	parsed, err := workflow.Parse([]byte(doc), workflow.ParseOptions{})
	if err != nil {
		return nil, core.WrapError(
			core.KindIO, core.CodeStoreError, err,
			"versions: snapshot %s@%d is corrupt", workflowID, versionNumber,
		)
	}
	snap.Workflow = parsed.Workflow
	return &snap, nil
}

// Rollback restores workflowID to targetVersion. Unless disabled, the
// current state is snapshotted first (trigger pre-rollback) so the rollback
// itself can be undone; an audit record is written either way. The restored
// document is returned for the caller to push.
func (s *Store) Rollback(ctx context.Context, workflowID string, targetVersion int, current *workflow.Workflow, opts RollbackOptions) (*RollbackResult, error) {
	if workflowID == "" {
		return nil, core.NewError(core.KindUsage, core.CodeMissingArgument, "versions: workflow id is required")
	}
	target, err := s.Get(ctx, workflowID, targetVersion)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, core.NewError(
			core.KindData, core.CodeVersionNotFound,
			"versions: workflow %s has no version %d", workflowID, targetVersion,
		).WithDetails("workflowId", workflowID).WithDetails("version", targetVersion)
	}
	if opts.Validate != nil {
		if err := opts.Validate(target.Workflow); err != nil {
			return nil, core.WrapError(
				core.KindData, core.CodeInvalidWorkflow, err,
				"versions: version %d failed pre-rollback validation", targetVersion,
			)
		}
	}
	res := &RollbackResult{
		WorkflowID:    workflowID,
		TargetVersion: targetVersion,
		Workflow:      target.Workflow,
	}
	err = s.withLock(ctx, func() error {
		if !opts.NoBackup && current != nil {
			note := fmt.Sprintf("state before rollback to version %d", targetVersion)
			backup, err := s.insertSnapshot(ctx, workflowID, current, TriggerPreRollback, note)
			if err != nil {
				return err
			}
			res.BackupVersion = backup
		}
		detail := fmt.Sprintf("restored snapshot %d", targetVersion)
		if res.BackupVersion > 0 {
			detail += fmt.Sprintf(", current state kept as version %d", res.BackupVersion)
		}
		return s.writeAudit(ctx, workflowID, "rollback", res.BackupVersion, targetVersion, detail)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Prune trims workflowID's history down to keep snapshots, oldest first,
// and returns how many were removed.
func (s *Store) Prune(ctx context.Context, workflowID string, keep int) (int, error) {
	if workflowID == "" {
		return 0, core.NewError(core.KindUsage, core.CodeMissingArgument, "versions: workflow id is required")
	}
	if keep <= 0 {
		return 0, core.NewError(core.KindUsage, core.CodeInvalidArgument, "versions: keep must be positive, got %d", keep)
	}
	removed := 0
	err := s.withLock(ctx, func() error {
		const q = `DELETE FROM workflow_versions
			WHERE workflow_id = ?
			  AND version_number NOT IN (
				SELECT version_number FROM workflow_versions
				WHERE workflow_id = ?
				ORDER BY version_number DESC LIMIT ?)`
		res, err := s.store.DB().ExecContext(ctx, q, workflowID, workflowID, keep)
		if err != nil {
			return fmt.Errorf("versions: prune: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("versions: rows affected (prune): %w", err)
		}
		removed = int(n)
		if removed == 0 {
			return nil
		}
		detail := fmt.Sprintf("removed %d snapshot(s), kept %d", removed, keep)
		return s.writeAudit(ctx, workflowID, "prune", 0, 0, detail)
	})
	return removed, err
}

// DeleteAll removes every snapshot of workflowID and returns the count.
func (s *Store) DeleteAll(ctx context.Context, workflowID string) (int, error) {
	if workflowID == "" {
		return 0, core.NewError(core.KindUsage, core.CodeMissingArgument, "versions: workflow id is required")
	}
	removed := 0
	err := s.withLock(ctx, func() error {
		res, err := s.store.DB().ExecContext(ctx, `DELETE FROM workflow_versions WHERE workflow_id = ?`, workflowID)
		if err != nil {
			return fmt.Errorf("versions: delete all: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("versions: rows affected (delete all): %w", err)
		}
		removed = int(n)
		if removed == 0 {
			return nil
		}
		return s.writeAudit(ctx, workflowID, "delete-all", 0, 0, fmt.Sprintf("removed %d snapshot(s)", removed))
	})
	return removed, err
}

// Truncate clears the whole store, history and audit trail included, and
// leaves a single audit record of the truncation.
func (s *Store) Truncate(ctx context.Context) (int, error) {
	removed := 0
	err := s.withLock(ctx, func() error {
		res, err := s.store.DB().ExecContext(ctx, `DELETE FROM workflow_versions`)
		if err != nil {
			return fmt.Errorf("versions: truncate snapshots: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("versions: rows affected (truncate): %w", err)
		}
		removed = int(n)
		if _, err := s.store.DB().ExecContext(ctx, `DELETE FROM version_audit`); err != nil {
			return fmt.Errorf("versions: truncate audit: %w", err)
		}
		return s.writeAudit(ctx, "*", "truncate", 0, 0, fmt.Sprintf("removed %d snapshot(s)", removed))
	})
	return removed, err
}

// Stats summarizes the store contents.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Path: s.Path()}
	db := s.store.DB()
	err := db.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT workflow_id), COUNT(*), COALESCE(SUM(size_bytes), 0) FROM workflow_versions`,
	).Scan(&stats.Workflows, &stats.Snapshots, &stats.SizeBytes)
	if err != nil {
		return nil, fmt.Errorf("versions: store totals: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM version_audit`).Scan(&stats.AuditRecords); err != nil {
		return nil, fmt.Errorf("versions: audit total: %w", err)
	}
	// Aggregates drop the column's DATETIME decltype, so the driver would
	// hand MIN/MAX back as text; ordered LIMIT 1 reads keep the time type.
	if stats.Snapshots > 0 {
		err = db.QueryRowContext(
			ctx, `SELECT created_at FROM workflow_versions ORDER BY created_at ASC LIMIT 1`,
		).Scan(&stats.Oldest)
		if err != nil {
			return nil, fmt.Errorf("versions: oldest snapshot: %w", err)
		}
		err = db.QueryRowContext(
			ctx, `SELECT created_at FROM workflow_versions ORDER BY created_at DESC LIMIT 1`,
		).Scan(&stats.Newest)
		if err != nil {
			return nil, fmt.Errorf("versions: newest snapshot: %w", err)
		}
	}
	return stats, nil
}

// Audit returns the audit trail, most recent first. An empty workflowID
// lists records across all workflows.
func (s *Store) Audit(ctx context.Context, workflowID string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT workflow_id, action, COALESCE(from_version, 0), COALESCE(to_version, 0), detail, created_at FROM version_audit`
	args := []any{}
	if workflowID != "" {
		q += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.store.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("versions: list audit records: %w", err)
	}
	defer rows.Close()
	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.WorkflowID, &rec.Action, &rec.FromVersion, &rec.ToVersion, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("versions: scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("versions: iter audit records: %w", err)
	}
	return out, nil
}

func (s *Store) writeAudit(ctx context.Context, workflowID, action string, from, to int, detail string) error {
	const q = `INSERT INTO version_audit (workflow_id, action, from_version, to_version, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	var fromVal, toVal any
	if from > 0 {
		fromVal = from
	}
	if to > 0 {
		toVal = to
	}
	if _, err := s.store.DB().ExecContext(ctx, q, workflowID, action, fromVal, toVal, detail, time.Now().UTC()); err != nil {
		return fmt.Errorf("versions: write audit record: %w", err)
	}
	return nil
}
