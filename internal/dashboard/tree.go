package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tubular-health/mobius/internal/graphmodel"
	"github.com/tubular-health/mobius/internal/tokenusage"
)

// node is one row of the rendered task tree: root tasks are those with
// no blockers; a task's parent is whichever of its blockers sorts first
// by identifier (the "first blocker" heuristic), so a DAG with multiple
// blockers per task still renders as a single tree.
type node struct {
	task     *graphmodel.SubTask
	children []*node
}

// buildTree groups g's tasks into a deterministic forest and returns the
// roots, sorted by identifier, with children recursively sorted the same
// way.
func buildTree(g *graphmodel.TaskGraph) []*node {
	nodes := make(map[string]*node, len(g.Tasks))
	for id, t := range g.Tasks {
		nodes[id] = &node{task: t}
	}

	var roots []*node
	for id, t := range g.Tasks {
		if len(t.BlockedBy) == 0 {
			roots = append(roots, nodes[id])
			continue
		}
		parentID := firstBlocker(t.BlockedBy, g)
		if parentID == "" {
			roots = append(roots, nodes[id])
			continue
		}
		parent := nodes[parentID]
		parent.children = append(parent.children, nodes[id])
	}

	sortNodes(roots)
	for _, n := range nodes {
		sortNodes(n.children)
	}
	return roots
}

// firstBlocker returns the BlockedBy entry whose Identifier sorts first.
func firstBlocker(blockedBy []string, g *graphmodel.TaskGraph) string {
	best := ""
	bestIdentifier := ""
	for _, id := range blockedBy {
		t, ok := g.Tasks[id]
		if !ok {
			continue
		}
		if best == "" || t.Identifier < bestIdentifier {
			best = id
			bestIdentifier = t.Identifier
		}
	}
	return best
}

func sortNodes(nodes []*node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].task.Identifier < nodes[j].task.Identifier
	})
}

// renderTree walks roots depth-first, rendering one line per task via
// renderLine, using runtimes/reasons supplied by the caller for the
// runtime-suffix and blocked-by-reason pieces.
func renderTree(roots []*node, info map[string]taskInfo) string {
	var b strings.Builder
	for _, r := range roots {
		renderNode(&b, r, "", info)
	}
	return b.String()
}

func renderNode(b *strings.Builder, n *node, prefix string, info map[string]taskInfo) {
	b.WriteString(renderLine(n.task, prefix, info))
	b.WriteByte('\n')
	for i, c := range n.children {
		renderChild(b, c, prefix+"  ", info, i == len(n.children)-1)
	}
}

func renderChild(b *strings.Builder, n *node, prefix string, info map[string]taskInfo, last bool) {
	connector := "├─ "
	if last {
		connector = "└─ "
	}
	b.WriteString(prefix + connector + renderLine(n.task, "", info))
	b.WriteByte('\n')
	for i, c := range n.children {
		renderChild(b, c, prefix+"   ", info, i == len(n.children)-1)
	}
}

func renderLine(t *graphmodel.SubTask, prefix string, info map[string]taskInfo) string {
	status := t.Status
	i, ok := info[t.ID]
	if ok {
		status = i.status
	}
	glyph := glyphFor(status)
	title := truncate(t.Title, 40)

	suffix := ""
	if ok {
		switch status {
		case graphmodel.Done:
			suffix = fmt.Sprintf(" (%s%s)", formatDuration(i.duration), formatTokens(i.tokens))
		case graphmodel.InProgress:
			suffix = fmt.Sprintf(" (%s...%s)", formatDuration(i.duration), formatTokens(i.tokens))
		case graphmodel.Blocked:
			if i.blockedReason != "" {
				suffix = " " + i.blockedReason
			}
		case graphmodel.Failed:
			if i.failReason != "" {
				suffix = fmt.Sprintf(" (%s)", i.failReason)
			}
		}
	}

	return fmt.Sprintf("%s%s %s %s%s", prefix, glyph, t.Identifier, title, suffix)
}

func glyphFor(s graphmodel.Status) string {
	switch s {
	case graphmodel.Done:
		return glyphDone
	case graphmodel.Ready:
		return glyphReady
	case graphmodel.InProgress:
		return glyphInProgress
	case graphmodel.Blocked:
		return glyphBlocked
	case graphmodel.Failed:
		return glyphFailed
	default:
		return glyphPending
	}
}

// taskInfo carries the per-task effective status plus the runtime/failure
// details the tree's status glyph alone can't show. The effective status
// overrides graphmodel.SubTask.Status for rendering only; SubTask.Status
// itself is changed only by applyOverrides' RecomputeBlocked call.
type taskInfo struct {
	status        graphmodel.Status
	duration      time.Duration
	blockedReason string
	failReason    string
	tokens        *tokenusage.Usage
}

// formatTokens renders a token count suffix, or "" when u is nil (no
// stream-JSON usage line has appeared yet for this task).
func formatTokens(u *tokenusage.Usage) string {
	if u == nil {
		return ""
	}
	return fmt.Sprintf(", %s in / %s out", formatCount(u.InputTokens), formatCount(u.OutputTokens))
}

func formatCount(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

