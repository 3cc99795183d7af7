package domain

type Deadline struct {
	ID                   string    `json:"id,omitempty"`
	Date                 string    `json:"date"`
	Description          string    `json:"description"`
	WorkingDaysRemaining int       `json:"working_days_remaining"`
	RiskLevel            RiskLevel `json:"risk_level"`
	SourceID             string    `json:"source_id,omitempty"`
	Completed            bool      `json:"completed,omitempty"`
}

type DeadlineStats struct {
	Total    int `json:"total"`
	Overdue  int `json:"overdue"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}
