package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/docsier/docsier-go/internal/aggregator"
	"github.com/docsier/docsier-go/internal/domain"
)

type clientsMsg []domain.Client

type snapshotMsg aggregator.Snapshot

type errMsg struct{ err error }

// Model is the dashboard: a client list on the left, the selected client's
// deadlines, documents and stats on the right. All data flows through the
// aggregator; the model never talks to the API directly.
type Model struct {
	agg  *aggregator.Aggregator
	user domain.User

	styles  Styles
	spinner spinner.Model
	width   int
	height  int

	loading        bool
	errText        string
	clients        []domain.Client
	cursor         int
	deadlineCursor int
	snapshot       aggregator.Snapshot
	hasSnapshot    bool
}

func NewModel(agg *aggregator.Aggregator, user domain.User) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	return Model{
		agg:     agg,
		user:    user,
		styles:  DefaultStyles(),
		spinner: sp,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadClientsCmd())
}

func (m Model) loadClientsCmd() tea.Cmd {
	return func() tea.Msg {
		list, err := m.agg.LoadClients(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return clientsMsg(list)
	}
}

func (m Model) loadClientCmd(clientID string) tea.Cmd {
	return func() tea.Msg {
		snap, err := m.agg.LoadForClient(context.Background(), clientID)
		if errors.Is(err, aggregator.ErrSuperseded) {
			return nil
		}
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) markDeadlineCmd(clientID string, dl domain.Deadline) tea.Cmd {
	return func() tea.Msg {
		err := m.agg.MarkDeadline(context.Background(), clientID, dl.ID, !dl.Completed)
		if err != nil && !errors.Is(err, aggregator.ErrSuperseded) {
			return errMsg{err}
		}
		return snapshotMsg(m.agg.Snapshot())
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case clientsMsg:
		m.clients = msg
		m.errText = ""
		if len(m.clients) == 0 {
			m.loading = false
			return m, nil
		}
		if m.cursor >= len(m.clients) {
			m.cursor = 0
		}
		return m, m.loadClientCmd(m.clients[m.cursor].ID)

	case snapshotMsg:
		m.snapshot = aggregator.Snapshot(msg)
		m.hasSnapshot = true
		m.loading = false
		m.errText = ""
		if m.deadlineCursor >= len(m.snapshot.ActiveDeadlines) {
			m.deadlineCursor = 0
		}
		return m, nil

	case errMsg:
		m.loading = false
		m.errText = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			return m.selectCurrent()
		}

	case "down", "j":
		if m.cursor < len(m.clients)-1 {
			m.cursor++
			return m.selectCurrent()
		}

	case "shift+up", "K":
		if m.deadlineCursor > 0 {
			m.deadlineCursor--
		}

	case "shift+down", "J":
		if m.deadlineCursor < len(m.snapshot.ActiveDeadlines)-1 {
			m.deadlineCursor++
		}

	case "x":
		if m.hasSnapshot && m.deadlineCursor < len(m.snapshot.ActiveDeadlines) {
			dl := m.snapshot.ActiveDeadlines[m.deadlineCursor]
			if dl.ID != "" {
				m.loading = true
				return m, tea.Batch(m.spinner.Tick, m.markDeadlineCmd(m.snapshot.ClientID, dl))
			}
		}

	case "r":
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadClientsCmd())
	}
	return m, nil
}

func (m Model) selectCurrent() (tea.Model, tea.Cmd) {
	if len(m.clients) == 0 {
		return m, nil
	}
	m.loading = true
	m.deadlineCursor = 0
	return m, tea.Batch(m.spinner.Tick, m.loadClientCmd(m.clients[m.cursor].ID))
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Docsier — " + m.user.Name))
	b.WriteString("\n\n")

	if m.errText != "" {
		b.WriteString(m.styles.Error.Render("error: " + m.errText))
		b.WriteString("\n\n")
	}

	left := m.renderClients()
	right := m.renderDetail()
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	b.WriteString("\n")
	b.WriteString(m.styles.StatusBar.Render("↑/↓ client · J/K deadline · x toggle complete · r reload · q quit"))
	return b.String()
}

func (m Model) renderClients() string {
	var rows []string
	rows = append(rows, m.styles.PaneTitle.Render("Clients"))
	if len(m.clients) == 0 {
		rows = append(rows, m.styles.Dim.Render("no clients"))
	}
	for i, c := range m.clients {
		line := fmt.Sprintf("%s (%d docs)", c.Name, c.DocumentCount)
		if i == m.cursor {
			line = m.styles.Selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
	}
	return m.styles.Pane.Render(strings.Join(rows, "\n"))
}

func (m Model) renderDetail() string {
	if m.loading {
		return m.styles.Pane.Render(m.spinner.View() + " loading…")
	}
	if !m.hasSnapshot {
		return m.styles.Pane.Render(m.styles.Dim.Render("select a client"))
	}

	var rows []string
	rows = append(rows, m.styles.PaneTitle.Render("Deadlines"))
	if len(m.snapshot.ActiveDeadlines) == 0 {
		rows = append(rows, m.styles.Dim.Render("none outstanding"))
	}
	for i, dl := range m.snapshot.ActiveDeadlines {
		marker := "  "
		if i == m.deadlineCursor {
			marker = "> "
		}
		rows = append(rows, fmt.Sprintf("%s%s  %s  %s (%dd)",
			marker, RiskBadge(dl.RiskLevel), dl.Date, dl.Description, dl.WorkingDaysRemaining))
	}
	if n := len(m.snapshot.CompletedDeadlines); n > 0 {
		rows = append(rows, m.styles.Dim.Render(fmt.Sprintf("%d completed", n)))
	}

	rows = append(rows, "", m.styles.PaneTitle.Render("Documents"))
	if len(m.snapshot.Documents) == 0 {
		rows = append(rows, m.styles.Dim.Render("no documents"))
	}
	for _, doc := range m.snapshot.Documents {
		rows = append(rows, fmt.Sprintf("%s %s  %s",
			ValidationIndicator(doc.Validation), doc.Filename, m.styles.Dim.Render(string(doc.Classification.DocType))))
	}

	rows = append(rows, "", m.styles.PaneTitle.Render("Stats"))
	rows = append(rows, fmt.Sprintf("documents: %d   deadlines: %d (overdue %d, critical %d)",
		m.snapshot.DocumentStats.Total,
		m.snapshot.DeadlineStats.Total,
		m.snapshot.DeadlineStats.Overdue,
		m.snapshot.DeadlineStats.Critical))

	return m.styles.Pane.Render(strings.Join(rows, "\n"))
}
