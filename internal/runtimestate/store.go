// Package runtimestate implements a single-writer, multi-reader file
// channel: the scheduler's in-memory state serialized to
// runtime-state.json, the sole coordination surface between the
// scheduler process and the dashboard process.
package runtimestate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tubular-health/mobius/internal/debuglog"
)

// ActiveTask is one currently running agent.
type ActiveTask struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Worktree  string    `json:"worktree"`
}

// FinishedTask is a completed or failed task record.
type FinishedTask struct {
	ID          string    `json:"id"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
	Reason      string    `json:"reason,omitempty"`
}

// State is the full runtime-state.json document.
type State struct {
	ParentID      string         `json:"parent_id"`
	ParentTitle   string         `json:"parent_title"`
	ActiveTasks   []ActiveTask   `json:"active_tasks"`
	CompletedTasks []FinishedTask `json:"completed_tasks"`
	FailedTasks   []FinishedTask `json:"failed_tasks"`
	StartedAt     time.Time      `json:"started_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	LoopPID       int            `json:"loop_pid"`
	TotalTasks    int            `json:"total_tasks"`
}

const fileName = "runtime-state.json"

// Path returns the canonical runtime-state.json location under an
// execution directory.
func Path(executionDir string) string {
	return filepath.Join(executionDir, fileName)
}

// Store is the scheduler-side single writer.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at executionDir. The directory must
// already exist.
func NewStore(executionDir string) *Store {
	return &Store{dir: executionDir}
}

// Write serializes state with canonical field order (Done/Failed lists
// sorted by completed_at) and atomically replaces runtime-state.json via
// write-to-tmp then rename-over-target, so a reader never observes a
// partial file.
func (s *Store) Write(state *State) error {
	state.UpdatedAt = time.Now().UTC()
	sort.Slice(state.CompletedTasks, func(i, j int) bool {
		return state.CompletedTasks[i].CompletedAt.Before(state.CompletedTasks[j].CompletedAt)
	})
	sort.Slice(state.FailedTasks, func(i, j int) bool {
		return state.FailedTasks[i].CompletedAt.Before(state.FailedTasks[j].CompletedAt)
	})

	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("runtimestate: marshal: %w", err)
	}

	target := Path(s.dir)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("runtimestate: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("runtimestate: rename: %w", err)
	}

	debuglog.Emit(debuglog.RuntimeStateWrite, "runtimestate", "", map[string]any{
		"bytes":           len(b),
		"active_count":    len(state.ActiveTasks),
		"completed_count": len(state.CompletedTasks),
	})
	return nil
}

// Reader is the dashboard-side (or any tooling) reader. It tolerates
// transient parse failures by retaining the previous in-memory value.
type Reader struct {
	dir  string
	last *State
}

// NewReader returns a Reader rooted at executionDir.
func NewReader(executionDir string) *Reader {
	return &Reader{dir: executionDir}
}

// Dir returns the execution directory this Reader is rooted at, for
// callers (the Dashboard) that need to start their own fsnotify watch on
// the same directory.
func (r *Reader) Dir() string { return r.dir }

// Read loads the current runtime-state.json. On a parse error it logs a
// debug event and returns the previous successfully parsed value instead
// of an error — readers must never crash on a torn or mid-write read.
func (r *Reader) Read() (*State, error) {
	b, err := os.ReadFile(Path(r.dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		debuglog.Emit(debuglog.RuntimeStateRead, "runtimestate", "", map[string]any{"error": err.Error()})
		if r.last != nil {
			return r.last, nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(b, &state); err != nil {
		debuglog.Emit(debuglog.RuntimeStateRead, "runtimestate", "", map[string]any{"parse_error": err.Error()})
		if r.last != nil {
			return r.last, nil
		}
		return nil, fmt.Errorf("runtimestate: parse: %w", err)
	}

	r.last = &state
	debuglog.Emit(debuglog.RuntimeStateRead, "runtimestate", "", map[string]any{
		"active_count": len(state.ActiveTasks),
	})
	return &state, nil
}

// Watch emits on changed whenever a create or write event lands on a
// filename ending with runtime-state.json inside executionDir. It blocks
// until ctx-equivalent stop is closed or the watcher errors.
func Watch(executionDir string, changed chan<- struct{}, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("runtimestate: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := os.MkdirAll(executionDir, 0o755); err != nil {
		return fmt.Errorf("runtimestate: ensure dir: %w", err)
	}
	if err := watcher.Add(executionDir); err != nil {
		return fmt.Errorf("runtimestate: watch %s: %w", executionDir, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !hasSuffix(event.Name, fileName) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				debuglog.Emit(debuglog.RuntimeWatcherTrigger, "runtimestate", "", map[string]any{"event": event.Op.String()})
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func hasSuffix(name, suffix string) bool {
	if len(name) < len(suffix) {
		return false
	}
	return name[len(name)-len(suffix):] == suffix
}
