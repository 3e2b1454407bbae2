package dashboard

import "github.com/charmbracelet/lipgloss"

// Styles for the read-only runtime dashboard, following a brand palette
// (#7D56F4 header background, purple borders) but consolidated into one
// file so there is exactly one definition of each style name — a prior
// UI package's sprint_board.go and styles.go both declared
// headerStyle/columnStyle, which this package does not repeat.

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	backendStripStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Padding(0, 1)

	treeStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63"))

	agentSlotStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("86"))

	debugPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240")).
				Padding(0, 1)

	legendStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(1, 3)

	glyphDone       = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Render("✓")
	glyphReady      = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Render("○")
	glyphInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Render("●")
	glyphBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("◌")
	glyphFailed     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	glyphPending    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("·")
)
