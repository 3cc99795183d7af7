package domain

type ValidationStatus string

const (
	ValidationValidated ValidationStatus = "validated"
	ValidationWarning   ValidationStatus = "warning"
	ValidationError     ValidationStatus = "error"
)

// NormalizeValidationStatus folds unrecognized statuses into "warning" so a
// new backend value degrades to caution rather than a false positive or a
// spurious error.
func NormalizeValidationStatus(s ValidationStatus) ValidationStatus {
	switch s {
	case ValidationValidated, ValidationWarning, ValidationError:
		return s
	}
	return ValidationWarning
}

type Discrepancy struct {
	Field    string `json:"field,omitempty"`
	Claim    string `json:"claim,omitempty"`
	Reality  string `json:"reality,omitempty"`
	Severity string `json:"severity,omitempty"`
}

type ValidationResult struct {
	ValidationStatus   ValidationStatus `json:"validation_status"`
	ConfidenceScore    float64          `json:"confidence_score"`
	Feedback           string           `json:"feedback"`
	VerifiedItems      []string         `json:"verified_items,omitempty"`
	Discrepancies      []Discrepancy    `json:"discrepancies,omitempty"`
	MissingInformation []string         `json:"missing_information,omitempty"`
}
