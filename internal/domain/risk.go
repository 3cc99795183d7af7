package domain

// RiskLevel is the backend's urgency taxonomy for deadlines and analyses,
// ordered overdue > critical > high > medium > low. The client never computes
// a risk level itself; it only displays what the backend returns.
type RiskLevel string

const (
	RiskOverdue  RiskLevel = "overdue"
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// RiskPresentation is the single enum-to-presentation lookup consumed by
// every rendering surface. Severity sorts descending urgency; Color is an
// ANSI-256 code usable by lipgloss.
type RiskPresentation struct {
	Label    string
	Color    string
	Severity int
}

var riskPresentations = map[RiskLevel]RiskPresentation{
	RiskOverdue:  {Label: "Overdue", Color: "160", Severity: 5},
	RiskCritical: {Label: "Critical", Color: "202", Severity: 4},
	RiskHigh:     {Label: "High", Color: "214", Severity: 3},
	RiskMedium:   {Label: "Medium", Color: "184", Severity: 2},
	RiskLow:      {Label: "Low", Color: "71", Severity: 1},
}

func (r RiskLevel) Valid() bool {
	_, ok := riskPresentations[r]
	return ok
}

// Presentation returns the canonical label/color/severity mapping. Unknown
// levels render as a zero-severity "Unknown" badge rather than panicking on
// new backend values.
func (r RiskLevel) Presentation() RiskPresentation {
	if p, ok := riskPresentations[r]; ok {
		return p
	}
	return RiskPresentation{Label: "Unknown", Color: "245", Severity: 0}
}
