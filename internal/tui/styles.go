package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/docsier/docsier-go/internal/domain"
)

// Styles bundles the lipgloss styles shared across dashboard panes.
type Styles struct {
	Title     lipgloss.Style
	Pane      lipgloss.Style
	PaneTitle lipgloss.Style
	Selected  lipgloss.Style
	Dim       lipgloss.Style
	Error     lipgloss.Style
	StatusBar lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		Pane:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1),
		PaneTitle: lipgloss.NewStyle().Bold(true).Underline(true),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("160")),
		StatusBar: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// RiskBadge renders a deadline's urgency label in the taxonomy's color.
func RiskBadge(level domain.RiskLevel) string {
	p := level.Presentation()
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Color)).Render(p.Label)
}

// ValidationIndicator maps a document's validation state to a one-glyph
// marker: absent validation is shown distinctly from any status.
func ValidationIndicator(v *domain.ValidationResult) string {
	if v == nil {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("·")
	}
	switch domain.NormalizeValidationStatus(v.ValidationStatus) {
	case domain.ValidationValidated:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("71")).Render("✓")
	case domain.ValidationError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("!")
	}
}
