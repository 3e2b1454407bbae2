package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const asciiArt = `
 __  __       _     _
|  \/  | ___ | |__ (_)_   _ ___
| |\/| |/ _ \| '_ \| | | | / __|
| |  | | (_) | |_) | | |_| \__ \
|_|  |_|\___/|_.__/|_|\__,_|___/
`

func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing dashboard..."
	}

	sections := []string{
		m.headerView(),
		m.backendStripView(),
		m.treeView(),
		m.agentSlotView(),
	}
	if m.showDebugPanel {
		sections = append(sections, m.debugPanelView())
	}
	sections = append(sections, m.legendView())

	body := lipgloss.JoinVertical(lipgloss.Left, sections...)

	if m.showExitModal {
		return overlayModal(body, m.exitModalView(), m.width, m.height)
	}
	return body
}

func (m Model) headerView() string {
	elapsed := "(waiting)"
	if !m.waiting {
		elapsed = formatDuration(m.elapsed())
	}
	title := fmt.Sprintf("%s  elapsed %s", m.graph.ParentIdentifier, elapsed)
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Render(strings.TrimRight(asciiArt, "\n")),
		headerStyle.Width(maxInt(m.width, len(title)+2)).Render(title),
	)
}

func (m Model) backendStripView() string {
	return backendStripStyle.Render(fmt.Sprintf("tracker: %s", m.backend))
}

func (m Model) treeView() string {
	roots := buildTree(m.graph)
	content := renderTree(roots, m.treeInfo)
	return treeStyle.Render(strings.TrimRight(content, "\n"))
}

func (m Model) agentSlotView() string {
	if m.state == nil || len(m.state.ActiveTasks) == 0 {
		return agentSlotStyle.Render("no agents active")
	}

	ids := make([]string, 0, len(m.state.ActiveTasks))
	byID := make(map[string]int, len(m.state.ActiveTasks))
	for i, a := range m.state.ActiveTasks {
		ids = append(ids, a.ID)
		byID[a.ID] = i
	}
	sort.Strings(ids)

	var rows []string
	for _, id := range ids {
		a := m.state.ActiveTasks[byID[id]]
		identifier := id
		if t, ok := m.graph.Tasks[id]; ok {
			identifier = t.Identifier
		}
		frame := "●"
		if sp, ok := m.spinners[id]; ok {
			frame = sp.View()
		}
		rows = append(rows, fmt.Sprintf("%s %s  %s  %s", frame, identifier, formatDuration(m.elapsed()), a.Worktree))
	}
	return agentSlotStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) debugPanelView() string {
	if m.debugLogger == nil {
		return debugPanelStyle.Render("debug panel: no logger attached")
	}
	return debugPanelStyle.Width(maxInt(m.width-4, 20)).Render(m.debugView.View())
}

// renderDebugMarkdown formats the last 20 ring-buffer events (the debug
// panel) as a fenced code block and renders it through glamour, grounded
// on a renderer.Render pattern (fall back to the raw block on a render
// error).
func (m Model) renderDebugMarkdown() string {
	events := m.debugLogger.Events()
	if len(events) > 20 {
		events = events[len(events)-20:]
	}

	var md strings.Builder
	md.WriteString("```\n")
	for _, e := range events {
		md.WriteString(fmt.Sprintf("%s  %-22s %s  %s\n", e.Timestamp.Format("15:04:05"), e.EventType, e.Source, e.TaskID))
	}
	md.WriteString("```\n")

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(maxInt(m.width-8, 40)))
	if err != nil {
		return md.String()
	}
	rendered, err := renderer.Render(md.String())
	if err != nil {
		return md.String()
	}
	return strings.TrimRight(rendered, "\n")
}

func (m Model) legendView() string {
	return legendStyle.Render(fmt.Sprintf(
		"%s done  %s ready  %s running  %s blocked  %s failed  %s pending   q quit  d debug",
		glyphDone, glyphReady, glyphInProgress, glyphBlocked, glyphFailed, glyphPending,
	))
}

func (m Model) exitModalView() string {
	active := 0
	done, total := 0, len(m.graph.Tasks)
	failedN := 0
	if m.state != nil {
		active = len(m.state.ActiveTasks)
		done = len(m.state.CompletedTasks)
		failedN = len(m.state.FailedTasks)
	}
	body := fmt.Sprintf(
		"Stop mobius?\n\n%d agent(s) active\nprogress: %d/%d done, %d failed\nruntime: %s\n\n[y] confirm   [n] cancel",
		active, done, total, failedN, formatDuration(m.elapsed()),
	)
	return modalStyle.Render(body)
}

// overlayModal centers modal over a blank backdrop sized to the terminal.
// base is accepted (rather than discarded at the call site) so a future
// true overlay can composite against it; lipgloss has no layered-blit
// primitive today, so the confirm modal takes the full frame.
func overlayModal(base, modal string, width, height int) string {
	_ = base
	return lipgloss.Place(maxInt(width, 1), maxInt(height, 1), lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
