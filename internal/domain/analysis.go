package domain

import "time"

type AnalysisType string

const (
	AnalysisDeadlineRisk        AnalysisType = "deadline_risk"
	AnalysisCaseloadHealth      AnalysisType = "caseload_health"
	AnalysisProfitabilityTrends AnalysisType = "profitability_trends"
)

func (t AnalysisType) Valid() bool {
	switch t {
	case AnalysisDeadlineRisk, AnalysisCaseloadHealth, AnalysisProfitabilityTrends:
		return true
	}
	return false
}

type AnalysisResult struct {
	KeyInsights []string           `json:"key_insights"`
	ActionItems []string           `json:"action_items"`
	Metrics     map[string]float64 `json:"metrics"`
	Summary     string             `json:"summary"`
	RiskLevel   RiskLevel          `json:"risk_level"`
	Confidence  float64            `json:"confidence"`
}

// StrategicAnalysis is immutable once created; re-running an analysis yields
// a new record with a fresh id rather than mutating this one.
type StrategicAnalysis struct {
	AnalysisID   string         `json:"analysis_id"`
	FirmID       string         `json:"firm_id"`
	AnalysisType AnalysisType   `json:"analysis_type"`
	Result       AnalysisResult `json:"result"`
	CreatedAt    time.Time      `json:"created_at"`
}
