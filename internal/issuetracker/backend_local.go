package issuetracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBackend reads parent/subtask snapshots directly from the
// .mobius/issues/<parent_id>/ filesystem layout, for users who never
// connect a remote tracker. Status is whatever was last written to disk;
// FetchStatus always returns an error, since there is no remote status.
type LocalBackend struct {
	ProjectDir string
}

// NewLocalBackend returns a backend rooted at projectDir, the directory
// containing .mobius/.
func NewLocalBackend(projectDir string) *LocalBackend {
	return &LocalBackend{ProjectDir: projectDir}
}

func (b *LocalBackend) issuesDir(parentID string) string {
	return filepath.Join(b.ProjectDir, ".mobius", "issues", parentID)
}

type snapshotFile struct {
	ID         string   `json:"id"`
	Identifier string   `json:"identifier"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	BlockedBy  []string `json:"blocked_by"`
	Blocks     []string `json:"blocks"`
}

func (b *LocalBackend) readSnapshot(path string) (IssueRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IssueRecord{}, fmt.Errorf("issuetracker: read %s: %w", path, err)
	}
	var sf snapshotFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return IssueRecord{}, fmt.Errorf("issuetracker: parse %s: %w", path, err)
	}
	rec := IssueRecord{ID: sf.ID, Identifier: sf.Identifier, Title: sf.Title, Status: sf.Status}
	rec.Relations.BlockedBy = sf.BlockedBy
	rec.Relations.Blocks = sf.Blocks
	return rec, nil
}

// FetchParentAndSubtasks reads parent.json and every subtasks/*.json file.
func (b *LocalBackend) FetchParentAndSubtasks(ctx context.Context, parentIdentifier string) (IssueRecord, []IssueRecord, error) {
	dir := b.issuesDir(parentIdentifier)
	parent, err := b.readSnapshot(filepath.Join(dir, "parent.json"))
	if err != nil {
		return IssueRecord{}, nil, err
	}

	entries, err := os.ReadDir(filepath.Join(dir, "subtasks"))
	if err != nil {
		if os.IsNotExist(err) {
			return parent, nil, nil
		}
		return IssueRecord{}, nil, fmt.Errorf("issuetracker: list subtasks: %w", err)
	}

	var subtasks []IssueRecord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		rec, err := b.readSnapshot(filepath.Join(dir, "subtasks", e.Name()))
		if err != nil {
			return IssueRecord{}, nil, err
		}
		subtasks = append(subtasks, rec)
	}
	return parent, subtasks, nil
}

// FetchStatus for the local backend always returns an error: there is no
// remote state to reconcile against, and the snapshot is not re-read.
func (b *LocalBackend) FetchStatus(ctx context.Context, identifier string) (string, error) {
	return "", fmt.Errorf("issuetracker: local backend has no remote status for %s", identifier)
}
