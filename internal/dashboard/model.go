// Package dashboard implements a read-only terminal UI: a bubbletea
// Model that fans keyboard input, a 1 Hz tick, and runtime-state.json
// file-change notifications into a single event loop, re-deriving the
// task tree's effective status on every reload and never itself
// mutating scheduler state — the only write it ever performs is a
// SIGTERM to loop_pid on confirmed exit.
//
// Grounded on a bubbletea dashboard's wiring (viewport, WindowSizeMsg
// handling, header/footer composition) and a focus-cycling list model,
// adapted from file-watch-and-rerun-a-build-command semantics to
// watch-and-re-render-a-task-graph semantics.
package dashboard

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tubular-health/mobius/internal/debuglog"
	"github.com/tubular-health/mobius/internal/graphmodel"
	"github.com/tubular-health/mobius/internal/runtimestate"
	"github.com/tubular-health/mobius/internal/tokenusage"
)

// Model is the dashboard's bubbletea model. It never writes runtime
// state; on each reload it re-derives the in-memory graph's stored
// Pending/Blocked/Ready status from that state (see applyOverrides).
type Model struct {
	reader       *runtimestate.Reader
	graph        *graphmodel.TaskGraph
	debugLogger  *debuglog.Logger
	loopPID      int
	backend      string

	state        *runtimestate.State
	waiting      bool // RuntimeState has never appeared
	startedAt    time.Time
	treeInfo     map[string]taskInfo

	spinners   map[string]spinner.Model
	debugView  viewport.Model
	ready      bool
	width      int
	height     int

	showDebugPanel bool
	showExitModal  bool
	complete       bool
	autoExitTick   int
	quit           bool

	changed chan struct{}
	stop    chan struct{}
}

// New constructs a Model for parentGraph, reading runtime state from
// executionDir and offering to SIGTERM loopPID on confirmed exit.
// debugLogger may be nil (debug panel then renders "no events").
func New(executionDir string, parentGraph *graphmodel.TaskGraph, loopPID int, backend string, debugLogger *debuglog.Logger) Model {
	return Model{
		reader:      runtimestate.NewReader(executionDir),
		graph:       parentGraph,
		debugLogger: debugLogger,
		loopPID:     loopPID,
		backend:     backend,
		waiting:     true,
		spinners:    make(map[string]spinner.Model),
		changed:     make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
}

type tickMsg time.Time
type stateChangedMsg struct{}
type stateLoadedMsg struct {
	state *runtimestate.State
	err   error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickEvery(),
		loadState(m.reader),
		watchState(m),
	)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func loadState(r *runtimestate.Reader) tea.Cmd {
	return func() tea.Msg {
		state, err := r.Read()
		return stateLoadedMsg{state: state, err: err}
	}
}

// watchState bridges runtimestate.Watch's channel-based API into a
// bubbletea Cmd: it starts the watcher once and returns a Cmd that blocks
// on the next change notification.
func watchState(m Model) tea.Cmd {
	dir := m.reader.Dir()
	go func() {
		_ = runtimestate.Watch(dir, m.changed, m.stop)
	}()
	return waitForChange(m.changed)
}

func waitForChange(changed chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changed
		return stateChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.debugView = viewport.New(msg.Width-4, 8)
			m.ready = true
		} else {
			m.debugView.Width = msg.Width - 4
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.complete {
			if m.autoExitTick > 0 {
				m.autoExitTick--
				if m.autoExitTick == 0 {
					m.quit = true
					return m, tea.Quit
				}
			}
		}
		if m.showDebugPanel && m.ready && m.debugLogger != nil {
			m.debugView.SetContent(m.renderDebugMarkdown())
		}
		cmds = append(cmds, tickEvery())

	case stateChangedMsg:
		cmds = append(cmds, loadState(m.reader), waitForChange(m.changed))

	case stateLoadedMsg:
		if msg.err == nil && msg.state != nil {
			m.waiting = false
			if m.startedAt.IsZero() {
				m.startedAt = msg.state.StartedAt
			}
			if msg.state.LoopPID != 0 {
				m.loopPID = msg.state.LoopPID
			}
			m.state = msg.state
			m.applyOverrides()
			cmds = append(cmds, m.syncSpinners(msg.state)...)
			if m.detectCompletion() && !m.complete {
				m.complete = true
				m.autoExitTick = 2
			}
		}

	case spinner.TickMsg:
		for id, sp := range m.spinners {
			updated, cmd := sp.Update(msg)
			m.spinners[id] = updated
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	}

	if m.showDebugPanel {
		var cmd tea.Cmd
		m.debugView, cmd = m.debugView.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showExitModal {
		switch msg.String() {
		case "y":
			m.signalLoop()
			m.quit = true
			return *m, tea.Quit
		case "n", "esc":
			m.showExitModal = false
		}
		return *m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		if m.complete {
			m.quit = true
			return *m, tea.Quit
		}
		if m.hasActiveAgents() {
			m.showExitModal = true
			return *m, nil
		}
		m.quit = true
		return *m, tea.Quit
	case "d":
		m.showDebugPanel = !m.showDebugPanel
		if m.showDebugPanel && m.debugLogger != nil && m.ready {
			m.debugView.SetContent(m.renderDebugMarkdown())
		}
	}
	return *m, nil
}

// signalLoop sends SIGTERM to the scheduler process. It is the only
// mutation the dashboard ever performs.
func (m *Model) signalLoop() {
	close(m.stop)
	if m.loopPID <= 0 {
		return
	}
	proc, err := os.FindProcess(m.loopPID)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)
}

// syncSpinners creates a spinner for each newly active task and drops
// spinners for tasks no longer active, returning the Tick commands the
// new spinners need to start animating.
func (m *Model) syncSpinners(state *runtimestate.State) []tea.Cmd {
	var cmds []tea.Cmd
	activeNow := make(map[string]bool, len(state.ActiveTasks))
	for _, a := range state.ActiveTasks {
		activeNow[a.ID] = true
		if _, ok := m.spinners[a.ID]; !ok {
			sp := spinner.New()
			sp.Spinner = spinner.Dot
			m.spinners[a.ID] = sp
			cmds = append(cmds, sp.Tick)
		}
	}
	for id := range m.spinners {
		if !activeNow[id] {
			delete(m.spinners, id)
		}
	}
	return cmds
}

func (m *Model) hasActiveAgents() bool {
	return m.state != nil && len(m.state.ActiveTasks) > 0
}

// detectCompletion implements the |completed| + |failed| >= |graph| rule.
func (m *Model) detectCompletion() bool {
	if m.state == nil {
		return false
	}
	return len(m.state.CompletedTasks)+len(m.state.FailedTasks) >= len(m.graph.Tasks)
}

// applyOverrides re-derives the graph's stored Pending/Blocked/Ready
// status via RecomputeBlocked (this is the graph's persistent status and
// must survive reloads), then computes a per-render taskInfo map carrying
// each task's effective status (ApplyRuntimeOverride) plus the
// runtime/failure detail the tree needs, without overwriting
// SubTask.Status itself.
func (m *Model) applyOverrides() {
	active := make(map[string]bool, len(m.state.ActiveTasks))
	activeStarted := make(map[string]time.Time, len(m.state.ActiveTasks))
	for _, a := range m.state.ActiveTasks {
		active[a.ID] = true
		activeStarted[a.ID] = a.StartedAt
	}
	completed := make(map[string]bool, len(m.state.CompletedTasks))
	completedDur := make(map[string]time.Duration, len(m.state.CompletedTasks))
	for _, c := range m.state.CompletedTasks {
		completed[c.ID] = true
		completedDur[c.ID] = time.Duration(c.DurationMS) * time.Millisecond
	}
	failed := make(map[string]bool, len(m.state.FailedTasks))
	failReason := make(map[string]string, len(m.state.FailedTasks))
	for _, f := range m.state.FailedTasks {
		failed[f.ID] = true
		failReason[f.ID] = f.Reason
	}

	graphmodel.RecomputeBlocked(m.graph, completed, failed)

	info := make(map[string]taskInfo, len(m.graph.Tasks))
	for id, t := range m.graph.Tasks {
		eff := graphmodel.ApplyRuntimeOverride(t, active, completed, failed)
		ti := taskInfo{status: eff, failReason: failReason[id]}
		switch {
		case active[id]:
			ti.duration = time.Since(activeStarted[id])
			ti.tokens = m.readTokens(t.ID, false)
		case completed[id]:
			ti.duration = completedDur[id]
			ti.tokens = m.readTokens(t.ID, true)
		case eff == graphmodel.Blocked:
			if blocker := firstBlocker(t.BlockedBy, m.graph); blocker != "" {
				ti.blockedReason = "blocked by " + m.graph.Tasks[blocker].Identifier
			}
		}
		info[id] = ti
	}
	m.treeInfo = info
}

// readTokens reads a task's stream-JSON file for its cumulative token
// usage: the dashboard polls these files directly, the scheduler never
// parses agent stdout itself. final selects FinalTokens
// (only a "result" line counts) over CurrentTokens (any usage line, for
// a still-running task's live estimate). A missing or unparsable file
// yields nil, rendered as no token suffix.
func (m *Model) readTokens(taskID string, final bool) *tokenusage.Usage {
	path := filepath.Join(m.reader.Dir(), taskID+".stream.jsonl")
	var u *tokenusage.Usage
	var err error
	if final {
		u, err = tokenusage.FinalTokens(path)
	} else {
		u, err = tokenusage.CurrentTokens(path)
	}
	if err != nil {
		return nil
	}
	return u
}

func (m Model) elapsed() time.Duration {
	if m.startedAt.IsZero() {
		return 0
	}
	return time.Since(m.startedAt)
}

// Quitting reports whether the model itself ended the program (the user
// quit, confirmed the exit modal, or the post-completion auto-exit
// fired), for the caller (cmd/mobius) to decide whether to treat
// tea.Program's exit as cancellation.
func (m Model) Quitting() bool { return m.quit }
