package domain

import "time"

type DocumentType string

const (
	DocContract DocumentType = "contract"
	DocInvoice  DocumentType = "invoice"
	DocEmail    DocumentType = "email"
	DocReport   DocumentType = "report"
	DocMemo     DocumentType = "memo"
	DocLegal    DocumentType = "legal"
	DocOther    DocumentType = "other"
)

var documentTypes = map[DocumentType]bool{
	DocContract: true, DocInvoice: true, DocEmail: true,
	DocReport: true, DocMemo: true, DocLegal: true, DocOther: true,
}

// NormalizeDocumentType maps anything outside the enumerated set to "other",
// which is also the placeholder type for not-yet-classified uploads.
func NormalizeDocumentType(t DocumentType) DocumentType {
	if documentTypes[t] {
		return t
	}
	return DocOther
}

type KeyEntities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Dates         []string `json:"dates"`
	Amounts       []string `json:"amounts"`
}

type DocumentClassification struct {
	DocType     DocumentType `json:"doc_type"`
	MatterID    string       `json:"matter_id,omitempty"`
	Tags        []string     `json:"tags"`
	KeyEntities KeyEntities  `json:"key_entities"`
	Summary     string       `json:"summary"`
	Confidence  float64      `json:"confidence"`
}

// ClassifiedDocument is a document plus its backend-derived classification.
// DocumentID is the backend's stable identifier and the only one accepted for
// follow-up calls (validation lookup, deletion); row-level ids from older
// backend revisions are normalized into it at decode time and never
// synthesized client-side.
type ClassifiedDocument struct {
	DocumentID     string                 `json:"document_id"`
	Filename       string                 `json:"filename"`
	Classification DocumentClassification `json:"classification"`
	CreatedAt      time.Time              `json:"created_at,omitempty"`
}

// DocumentWithValidation pairs a document with its independently fetched
// validation. Validation is nil when the lookup failed or returned nothing,
// a state distinct from any validation status.
type DocumentWithValidation struct {
	ClassifiedDocument
	Validation *ValidationResult `json:"validation,omitempty"`
}

type DocumentStats struct {
	Total    int `json:"total"`
	Contract int `json:"contract"`
	Invoice  int `json:"invoice"`
	Email    int `json:"email"`
	Report   int `json:"report"`
	Memo     int `json:"memo"`
	Legal    int `json:"legal"`
	Other    int `json:"other"`
}
