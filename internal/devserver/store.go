package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docsier/docsier-go/internal/domain"
)

var (
	ErrClientNotFound   = errors.New("client not found")
	ErrDeadlineNotFound = errors.New("deadline not found")
	ErrDocumentNotFound = errors.New("document not found")
)

type ClientRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:256;not null"`
	Email     string `gorm:"size:256;not null"`
	Phone     string `gorm:"size:64"`
	Company   string `gorm:"size:256"`
	Active    bool
	CreatedAt time.Time
}

type DocumentRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	ClientID   string `gorm:"index;size:64;not null"`
	Filename   string `gorm:"size:512;not null"`
	DocType    string `gorm:"size:32"`
	MatterID   string `gorm:"size:64"`
	Tags       string `gorm:"size:2048"`
	Entities   string `gorm:"size:8192"`
	Summary    string `gorm:"size:4096"`
	Confidence float64
	CreatedAt  time.Time
}

type DeadlineRecord struct {
	ID                   string `gorm:"primaryKey;size:64"`
	ClientID             string `gorm:"index;size:64;not null"`
	Date                 string `gorm:"size:16"`
	Description          string `gorm:"size:1024"`
	WorkingDaysRemaining int
	SourceID             string `gorm:"size:64"`
	Completed            bool   `gorm:"index"`
	CreatedAt            time.Time
}

type AnalysisRecord struct {
	ID           string `gorm:"primaryKey;size:64"`
	FirmID       string `gorm:"index;size:64;not null"`
	AnalysisType string `gorm:"index;size:32"`
	Result       string `gorm:"size:16384"`
	CreatedAt    time.Time
}

type ValidationRecord struct {
	DocumentID string `gorm:"primaryKey;size:64"`
	Payload    string `gorm:"size:16384"`
}

type AuthSessionRecord struct {
	ID                 uint   `gorm:"primaryKey"`
	UserID             string `gorm:"index;size:64;not null"`
	RefreshTokenDigest string `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt          time.Time
	RevokedAt          *time.Time
	CreatedAt          time.Time
}

type Store struct{ db *gorm.DB }

// OpenStore opens the backing database: postgres when a DSN is set,
// otherwise sqlite at path (":memory:" works for tests).
func OpenStore(path, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(path)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open devserver store: %w", err)
	}
	if err := db.AutoMigrate(
		&ClientRecord{}, &DocumentRecord{}, &DeadlineRecord{},
		&AnalysisRecord{}, &ValidationRecord{}, &AuthSessionRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate devserver store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) ListClients() ([]domain.Client, error) {
	var records []ClientRecord
	if err := s.db.Order("created_at").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Client, 0, len(records))
	for _, rec := range records {
		var count int64
		if err := s.db.Model(&DocumentRecord{}).Where("client_id = ?", rec.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		out = append(out, domain.Client{
			ID:            rec.ID,
			Name:          rec.Name,
			Email:         rec.Email,
			Phone:         rec.Phone,
			Company:       rec.Company,
			Active:        rec.Active,
			DocumentCount: int(count),
			CreatedAt:     rec.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) CreateClient(rec *ClientRecord) error {
	return s.db.Create(rec).Error
}

func (s *Store) ClientExists(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&ClientRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListDocuments(clientID string) ([]DocumentRecord, error) {
	var records []DocumentRecord
	err := s.db.Where("client_id = ?", clientID).Order("created_at").Find(&records).Error
	return records, err
}

func (s *Store) CreateDocument(rec *DocumentRecord) error {
	return s.db.Create(rec).Error
}

func (s *Store) FindDocumentByFilename(clientID, filename string) (*DocumentRecord, error) {
	var rec DocumentRecord
	err := s.db.Where("client_id = ? AND filename = ?", clientID, filename).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	return &rec, err
}

func (s *Store) DeleteDocument(clientID, documentID string) error {
	res := s.db.Where("client_id = ? AND id = ?", clientID, documentID).Delete(&DocumentRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *Store) DocumentStats(clientID string) (*domain.DocumentStats, error) {
	var records []DocumentRecord
	if err := s.db.Where("client_id = ?", clientID).Find(&records).Error; err != nil {
		return nil, err
	}
	stats := &domain.DocumentStats{Total: len(records)}
	for _, rec := range records {
		switch domain.NormalizeDocumentType(domain.DocumentType(rec.DocType)) {
		case domain.DocContract:
			stats.Contract++
		case domain.DocInvoice:
			stats.Invoice++
		case domain.DocEmail:
			stats.Email++
		case domain.DocReport:
			stats.Report++
		case domain.DocMemo:
			stats.Memo++
		case domain.DocLegal:
			stats.Legal++
		default:
			stats.Other++
		}
	}
	return stats, nil
}

func (s *Store) ListDeadlines(clientID string, completed bool) ([]DeadlineRecord, error) {
	var records []DeadlineRecord
	err := s.db.Where("client_id = ? AND completed = ?", clientID, completed).Order("date").Find(&records).Error
	return records, err
}

func (s *Store) CreateDeadline(rec *DeadlineRecord) error {
	return s.db.Create(rec).Error
}

func (s *Store) SetDeadlineCompleted(clientID, deadlineID string, completed bool) error {
	res := s.db.Model(&DeadlineRecord{}).
		Where("client_id = ? AND id = ?", clientID, deadlineID).
		Update("completed", completed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDeadlineNotFound
	}
	return nil
}

func (s *Store) DeadlineStats(clientID string) (*domain.DeadlineStats, error) {
	records, err := s.ListDeadlines(clientID, false)
	if err != nil {
		return nil, err
	}
	stats := &domain.DeadlineStats{Total: len(records)}
	for _, rec := range records {
		switch riskLevelFor(rec.WorkingDaysRemaining) {
		case domain.RiskOverdue:
			stats.Overdue++
		case domain.RiskCritical:
			stats.Critical++
		case domain.RiskHigh:
			stats.High++
		case domain.RiskMedium:
			stats.Medium++
		default:
			stats.Low++
		}
	}
	return stats, nil
}

func (s *Store) UrgentDeadlines(limit int) ([]DeadlineRecord, error) {
	var records []DeadlineRecord
	err := s.db.Where("completed = ?", false).
		Order("working_days_remaining").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (s *Store) ListAnalyses(firmID, analysisType string) ([]domain.StrategicAnalysis, error) {
	query := s.db.Where("firm_id = ?", firmID).Order("created_at desc")
	if analysisType != "" {
		query = query.Where("analysis_type = ?", analysisType)
	}
	var records []AnalysisRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]domain.StrategicAnalysis, 0, len(records))
	for _, rec := range records {
		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(rec.Result), &result); err != nil {
			return nil, fmt.Errorf("decode stored analysis %s: %w", rec.ID, err)
		}
		out = append(out, domain.StrategicAnalysis{
			AnalysisID:   rec.ID,
			FirmID:       rec.FirmID,
			AnalysisType: domain.AnalysisType(rec.AnalysisType),
			Result:       result,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) SaveAnalysis(rec *AnalysisRecord) error {
	return s.db.Create(rec).Error
}

func (s *Store) SaveValidation(documentID string, v *domain.ValidationResult) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rec := ValidationRecord{DocumentID: documentID, Payload: string(payload)}
	return s.db.Save(&rec).Error
}

func (s *Store) Validation(documentID string) (*domain.ValidationResult, error) {
	var rec ValidationRecord
	err := s.db.First(&rec, "document_id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v domain.ValidationResult
	if err := json.Unmarshal([]byte(rec.Payload), &v); err != nil {
		return nil, fmt.Errorf("decode stored validation %s: %w", documentID, err)
	}
	return &v, nil
}

func (s *Store) CreateAuthSession(rec *AuthSessionRecord) error {
	return s.db.Create(rec).Error
}

func (s *Store) FindAuthSessionByDigest(digest string) (*AuthSessionRecord, error) {
	var rec AuthSessionRecord
	err := s.db.First(&rec, "refresh_token_digest = ?", digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

func (s *Store) RevokeAuthSession(id uint) error {
	now := time.Now()
	return s.db.Model(&AuthSessionRecord{}).Where("id = ?", id).Update("revoked_at", &now).Error
}

func (s *Store) RevokeAuthSessionsForUser(userID string) error {
	now := time.Now()
	return s.db.Model(&AuthSessionRecord{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", &now).Error
}

// riskLevelFor derives the urgency classification from the sign and
// magnitude of working days remaining. This lives backend-side only; the
// client displays whatever it is told.
func riskLevelFor(workingDays int) domain.RiskLevel {
	switch {
	case workingDays < 0:
		return domain.RiskOverdue
	case workingDays <= 3:
		return domain.RiskCritical
	case workingDays <= 7:
		return domain.RiskHigh
	case workingDays <= 15:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
