package refresh

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dbacks-analysis/statcast-refresh/dataset"
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
)

// CommitState tracks progress through the commit protocol.
type CommitState int

const (
	StateIdle CommitState = iota
	StateStaged
	StateWritten
	StateVerified
	StateCommitted
	StateRolledBack
	StateRollbackFailed
)

func (s CommitState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStaged:
		return "staged"
	case StateWritten:
		return "written"
	case StateVerified:
		return "verified"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	case StateRollbackFailed:
		return "rollback_failed"
	default:
		return fmt.Sprintf("CommitState(%d)", int(s))
	}
}

// CommitManager drives the backup → write → verify → rename protocol for
// the canonical dataset file. It is the only component that mutates the
// canonical path. A manager handles a single commit; create a fresh one
// per run.
//
// Crash safety comes from writing the candidate to a sibling temp file and
// renaming it into place only after it verifies. The timestamped backup
// copy is a secondary safety net for operators; the canonical file itself
// is never moved or deleted on the way to a commit.
type CommitManager struct {
	path   string
	verify dataset.VerifyConfig
	logger logger.Logger
	now    func() time.Time

	state  CommitState
	backup string
}

// NewCommitManager creates a manager for the canonical file at path.
func NewCommitManager(path string, verify dataset.VerifyConfig, log logger.Logger, now func() time.Time) *CommitManager {
	if log == nil {
		log = logger.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &CommitManager{path: path, verify: verify, logger: log, now: now}
}

// State returns the protocol state the manager last reached.
func (cm *CommitManager) State() CommitState { return cm.state }

// BackupPath returns the backup created by this commit, or "" when none was
// (first-ever run, or staging never completed).
func (cm *CommitManager) BackupPath() string { return cm.backup }

// Commit writes ds over the canonical file: back up the current file,
// write the candidate to a temp file, verify the temp file, then atomically
// rename it into place. On failure the canonical file keeps its pre-run
// bytes and the returned error carries the failing stage.
func (cm *CommitManager) Commit(ds *dataset.Dataset) error {
	tmp := cm.path + ".tmp"

	if err := cm.stage(tmp); err != nil {
		return cm.fail(tmp, stageErr(KindWrite, err))
	}

	if err := dataset.WriteFile(tmp, ds); err != nil {
		return cm.fail(tmp, stageErr(KindWrite, err))
	}
	cm.state = StateWritten
	cm.logger.Debug("candidate written", "path", tmp, "rows", ds.Len())

	if res := dataset.VerifyFile(tmp, cm.verify); !res.OK {
		return cm.fail(tmp, stageErr(KindVerification, &VerificationError{Result: res}))
	}
	cm.state = StateVerified

	if err := os.Rename(tmp, cm.path); err != nil {
		return cm.fail(tmp, stageErr(KindWrite, fmt.Errorf("replace canonical file: %w", err)))
	}
	cm.state = StateCommitted
	cm.logger.Info("dataset committed", "path", cm.path, "rows", ds.Len())

	if cm.backup != "" {
		if err := os.Remove(cm.backup); err != nil {
			cm.logger.Warn("failed to remove backup after commit", "path", cm.backup, "error", err)
		}
	}
	return nil
}

// stage removes a stale temp file from an interrupted run and snapshots the
// canonical file to a timestamped backup copy. A missing canonical file
// means a first-ever run and skips the backup.
func (cm *CommitManager) stage(tmp string) error {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	if _, err := os.Stat(cm.path); os.IsNotExist(err) {
		cm.state = StateStaged
		return nil
	} else if err != nil {
		return fmt.Errorf("stat canonical file: %w", err)
	}

	backup := BackupFilePath(cm.path, cm.now())
	if err := copyFile(backup, cm.path); err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	cm.backup = backup
	cm.state = StateStaged
	cm.logger.Info("backup created", "path", backup)
	return nil
}

// fail rolls the protocol back. The temp file is removed; the canonical
// file was never touched, so its bytes match the pre-run state. Should the
// canonical file nonetheless be missing, this run's backup is restored over
// it; if that restore also fails the manager lands in RollbackFailed and
// the canonical path needs operator attention.
func (cm *CommitManager) fail(tmp string, cause error) error {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		cm.logger.Warn("failed to remove temp file", "path", tmp, "error", err)
	}

	if _, err := os.Stat(cm.path); err == nil || cm.backup == "" {
		cm.state = StateRolledBack
		cm.logger.Warn("commit rolled back", "state", cm.state.String(), "error", cause)
		return cause
	}

	if err := os.Rename(cm.backup, cm.path); err != nil {
		cm.state = StateRollbackFailed
		cm.logger.Error("rollback failed, canonical file may be missing",
			"path", cm.path, "backup", cm.backup, "error", err)
		return stageErr(KindRollback, &RollbackError{Cause: cause, RestoreErr: err})
	}

	cm.state = StateRolledBack
	cm.logger.Warn("commit rolled back, backup restored", "backup", cm.backup, "error", cause)
	return cause
}

// BackupFilePath derives the timestamped backup name for a canonical file:
// dbacks.csv becomes dbacks_backup_20250614_081500.csv. The timestamp
// format sorts lexicographically in creation order.
func BackupFilePath(canonical string, ts time.Time) string {
	ext := filepath.Ext(canonical)
	return strings.TrimSuffix(canonical, ext) + "_backup_" + ts.Format(backupTimeFormat) + ext
}

// BackupPattern returns the glob matching every backup sibling of the
// canonical file.
func BackupPattern(canonical string) string {
	ext := filepath.Ext(canonical)
	return strings.TrimSuffix(canonical, ext) + "_backup_*" + ext
}

const backupTimeFormat = "20060102_150405"

// copyFile copies src to dst and fsyncs the result so a backup survives a
// crash right after staging.
func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
