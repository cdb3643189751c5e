package refresh

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
)

// PruneBackups deletes all but the newest keep backups of the canonical
// file. Interrupted runs leave their backup copies behind; this is the only
// place they get cleaned up. Individual delete failures are logged and
// skipped, so pruning never fails a run whose commit already succeeded.
// Returns the number of backups removed.
func PruneBackups(canonical string, keep int, log logger.Logger) int {
	if log == nil {
		log = logger.Default()
	}
	if keep < 0 {
		keep = 0
	}

	matches, err := filepath.Glob(BackupPattern(canonical))
	if err != nil {
		log.Warn("backup glob failed", "pattern", BackupPattern(canonical), "error", err)
		return 0
	}
	if len(matches) <= keep {
		return 0
	}

	// Timestamped names sort lexicographically in creation order.
	sort.Strings(matches)

	pruned := 0
	for _, path := range matches[:len(matches)-keep] {
		if err := os.Remove(path); err != nil {
			log.Warn("failed to prune backup", "path", path, "error", err)
			continue
		}
		pruned++
		log.Info("pruned old backup", "path", path)
	}
	return pruned
}

// Reconcile heals the state an interrupted run can leave behind: a missing
// canonical file with backups still on disk. When that is the case the
// newest backup is renamed over the canonical path. Returns whether a
// restore happened.
func Reconcile(canonical string, log logger.Logger) (bool, error) {
	if log == nil {
		log = logger.Default()
	}

	if _, err := os.Stat(canonical); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("refresh: stat canonical file: %w", err)
	}

	matches, err := filepath.Glob(BackupPattern(canonical))
	if err != nil || len(matches) == 0 {
		return false, nil
	}
	sort.Strings(matches)

	newest := matches[len(matches)-1]
	if err := os.Rename(newest, canonical); err != nil {
		return false, fmt.Errorf("refresh: restore backup %s: %w", newest, err)
	}
	log.Warn("canonical file was missing, restored newest backup",
		"path", canonical, "backup", newest)
	return true, nil
}
