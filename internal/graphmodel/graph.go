// Package graphmodel builds and queries the dependency DAG of sub-tasks
// that make up a parent issue's decomposition.
package graphmodel

import (
	"fmt"
	"sort"
)

// Status is the effective state of a SubTask.
type Status int

const (
	Pending Status = iota
	Ready
	InProgress
	Done
	Blocked
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	case InProgress:
		return "InProgress"
	case Done:
		return "Done"
	case Blocked:
		return "Blocked"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SubTask is one node of the DAG.
type SubTask struct {
	ID            string
	Identifier    string
	Title         string
	Status        Status
	BlockedBy     []string
	Blocks        []string
	GitBranchName string
}

// IssueRecord is the external input used to build a TaskGraph: one row
// per tracked issue, as loaded from a parent/subtask snapshot file.
type IssueRecord struct {
	ID         string
	Identifier string
	Title      string
	Status     string
	Relations  struct {
		BlockedBy []string
		Blocks    []string
	}
}

// TaskGraph is the DAG of a parent issue's sub-tasks.
type TaskGraph struct {
	ParentID         string
	ParentIdentifier string
	Tasks            map[string]*SubTask
}

// GraphStats are derived counts; never persisted.
type GraphStats struct {
	Total      int
	Done       int
	Ready      int
	Blocked    int
	InProgress int
	Failed     int
}

// CyclicGraph is returned when construction finds a cycle on BlockedBy edges.
type CyclicGraph struct {
	FirstCycle []string
}

func (e *CyclicGraph) Error() string {
	return fmt.Sprintf("cyclic task graph detected: %v", e.FirstCycle)
}

// translateTrackerStatus maps a backend's free-text status string onto the
// four states a freshly loaded task can start in.
func translateTrackerStatus(raw string) Status {
	switch raw {
	case "Done", "done", "Closed", "closed", "Resolved":
		return Done
	case "In Progress", "in_progress", "InProgress":
		return InProgress
	case "Failed", "failed":
		return Failed
	default:
		return Pending
	}
}

// Build constructs a TaskGraph from a parent id and its issue records in
// four steps: populate, resolve edges, reject cycles, derive initial
// effective status.
func Build(parentID, parentIdentifier string, records []IssueRecord) (*TaskGraph, error) {
	g := &TaskGraph{
		ParentID:         parentID,
		ParentIdentifier: parentIdentifier,
		Tasks:            make(map[string]*SubTask, len(records)),
	}

	for _, rec := range records {
		g.Tasks[rec.ID] = &SubTask{
			ID:         rec.ID,
			Identifier: rec.Identifier,
			Title:      rec.Title,
			Status:     translateTrackerStatus(rec.Status),
		}
	}

	for _, rec := range records {
		t := g.Tasks[rec.ID]
		t.BlockedBy = dedupExisting(rec.Relations.BlockedBy, g.Tasks)
		t.Blocks = dedupExisting(rec.Relations.Blocks, g.Tasks)
		// Resolve the reverse direction too: a Blocks edge declared on one
		// side must appear as BlockedBy on the other, and vice versa.
		for _, blockerID := range t.BlockedBy {
			blocker := g.Tasks[blockerID]
			if !contains(blocker.Blocks, t.ID) {
				blocker.Blocks = append(blocker.Blocks, t.ID)
			}
		}
		for _, blockedID := range t.Blocks {
			blocked := g.Tasks[blockedID]
			if !contains(blocked.BlockedBy, t.ID) {
				blocked.BlockedBy = append(blocked.BlockedBy, t.ID)
			}
		}
	}

	if cycle := detectCycle(g); cycle != nil {
		return nil, &CyclicGraph{FirstCycle: cycle}
	}

	for _, t := range g.Tasks {
		if t.Status != Pending {
			continue
		}
		if allBlockersDone(g, t) {
			t.Status = Ready
		} else {
			t.Status = Blocked
		}
	}

	return g, nil
}

func allBlockersDone(g *TaskGraph, t *SubTask) bool {
	for _, id := range t.BlockedBy {
		if b, ok := g.Tasks[id]; ok && b.Status != Done {
			return false
		}
	}
	return true
}

func dedupExisting(ids []string, known map[string]*SubTask) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] || id == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func contains(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// detectCycle runs a depth-first traversal with temp-marks over BlockedBy
// edges, returning the first cycle found or nil.
func detectCycle(g *TaskGraph) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.Tasks))
	var path []string
	var cycle []string

	ids := make([]string, 0, len(g.Tasks))
	for id := range g.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		path = append(path, id)
		for _, dep := range g.Tasks[id].BlockedBy {
			switch color[dep] {
			case grey:
				// found the back-edge; slice path from dep's position
				for i, p := range path {
					if p == dep {
						cycle = append(append([]string{}, path[i:]...), dep)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// ApplyRuntimeOverride applies the status-override rule: InProgress if
// active, Done if completed, Failed if failed, otherwise the derived
// status. Overrides never override Done.
func ApplyRuntimeOverride(t *SubTask, active, completed, failed map[string]bool) Status {
	if t.Status == Done {
		return Done
	}
	if completed[t.ID] {
		return Done
	}
	if failed[t.ID] {
		return Failed
	}
	if active[t.ID] {
		return InProgress
	}
	return t.Status
}

// ReadyFrontier returns all tasks whose effective status is Ready and which
// are not currently active and not in failed_tasks.
func ReadyFrontier(g *TaskGraph, active, completed, failed map[string]bool) []*SubTask {
	var ready []*SubTask
	for _, t := range g.Tasks {
		eff := ApplyRuntimeOverride(t, active, completed, failed)
		if eff != Ready {
			continue
		}
		if active[t.ID] || failed[t.ID] {
			continue
		}
		ready = append(ready, t)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Identifier < ready[j].Identifier })
	return ready
}

// Stats derives GraphStats from the current effective status of every task.
func Stats(g *TaskGraph, active, completed, failed map[string]bool) GraphStats {
	var s GraphStats
	s.Total = len(g.Tasks)
	for _, t := range g.Tasks {
		switch ApplyRuntimeOverride(t, active, completed, failed) {
		case Done:
			s.Done++
		case Ready:
			s.Ready++
		case Blocked:
			s.Blocked++
		case InProgress:
			s.InProgress++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// RecomputeBlocked re-derives Blocked/Ready for every Pending/Blocked task
// after a blocker transitions to Done or Failed. Descendants of a Failed
// task become (and remain) Blocked.
func RecomputeBlocked(g *TaskGraph, completed, failed map[string]bool) {
	for _, t := range g.Tasks {
		if t.Status != Pending && t.Status != Blocked && t.Status != Ready {
			continue
		}
		blockedByFailure := false
		allDone := true
		for _, id := range t.BlockedBy {
			if failed[id] {
				blockedByFailure = true
			}
			if !completed[id] {
				allDone = false
			}
		}
		switch {
		case blockedByFailure:
			t.Status = Blocked
		case allDone:
			t.Status = Ready
		default:
			t.Status = Blocked
		}
	}
}
