// Package statussync fetches each known sub-task's status from the remote
// tracker, one issue file at a time, never aborting the whole batch on a
// single issue's failure. The fetched status is logged and counted; the
// local snapshot files are not rewritten. Grounded on a per-issue fetch
// loop, narrowed from "find ready work" to "fetch status of known issues."
package statussync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tubular-health/mobius/internal/issuetracker"
)

// Result is the outcome of one Sync pass over a parent's sub-tasks.
type Result struct {
	Synced  []string
	Failed  map[string]error
	Skipped []string
}

// Syncer fetches each sub-task identifier's status from the configured
// tracker backend and reports per-identifier outcomes; it does not write
// the fetched status back to disk.
type Syncer struct {
	Client     issuetracker.Client
	IssuesRoot string // .mobius/issues/<parent>/subtasks
	Logger     *slog.Logger
}

// New builds a Syncer rooted at issuesRoot.
func New(client issuetracker.Client, issuesRoot string, logger *slog.Logger) *Syncer {
	return &Syncer{Client: client, IssuesRoot: issuesRoot, Logger: logger}
}

// Sync walks every entry under IssuesRoot, skips local-only identifiers
// (they have no remote counterpart to reconcile against), and calls
// FetchStatus for the rest. A single issue's failure is recorded in
// Result.Failed and does not stop the walk.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	res := Result{Failed: make(map[string]error)}

	entries, err := os.ReadDir(s.IssuesRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		identifier := trimExt(e.Name())

		if issuetracker.IsLocalIdentifier(identifier) {
			res.Skipped = append(res.Skipped, identifier)
			continue
		}

		status, err := s.Client.FetchStatus(ctx, identifier)
		if err != nil {
			s.Logger.Warn("status sync failed for issue", "identifier", identifier, "error", err)
			res.Failed[identifier] = err
			continue
		}

		s.Logger.Debug("status synced", "identifier", identifier, "status", status)
		res.Synced = append(res.Synced, identifier)
	}

	return res, nil
}

func trimExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
