package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/sha3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNoSession = errors.New("no stored session")

// SessionRecord is the provider's locally persisted session. At most one row
// exists; Save replaces it atomically.
type SessionRecord struct {
	ID                 uint      `gorm:"primaryKey"`
	AccessToken        string    `gorm:"size:4096;not null"`
	RefreshToken       string    `gorm:"size:4096;not null"`
	RefreshTokenDigest string    `gorm:"size:128;index"`
	TokenType          string    `gorm:"size:32"`
	ExpiresAt          time.Time `gorm:"index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *SessionRecord) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

type Store interface {
	Save(rec *SessionRecord) error
	Load() (*SessionRecord, error)
	Clear() error
}

type GormStore struct{ db *gorm.DB }

// OpenStore opens the session store: postgres when a DSN is configured,
// otherwise a sqlite file at path (parent directories created as needed).
func OpenStore(path, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	if dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create session store dir: %w", err)
			}
		}
		dialector = sqlite.Open(path)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(rec *SessionRecord) error {
	rec.ID = 1
	rec.RefreshTokenDigest = TokenDigest(rec.RefreshToken)
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", 1).Delete(&SessionRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
}

func (s *GormStore) Load() (*SessionRecord, error) {
	var rec SessionRecord
	if err := s.db.First(&rec, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) Clear() error {
	return s.db.Where("id = ?", 1).Delete(&SessionRecord{}).Error
}

// TokenDigest returns a hex SHA3-256 digest of a token, used for at-rest
// indexing and log correlation so raw credentials never appear in either.
func TokenDigest(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
