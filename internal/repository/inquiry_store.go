package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InquiryRecord is one stored contact, booking, newsletter or chat inquiry.
type InquiryRecord struct {
	RequestID string `gorm:"primaryKey"`
	Kind      string `gorm:"index"`
	DeviceID  string
	Name      string
	Email     string `gorm:"index"`
	Summary   string
	Payload   string
	Status    string
	Detail    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrInvalidRecord marks a record the database will never accept.
var ErrInvalidRecord = errors.New("invalid inquiry record")

type InquiryStore struct {
	db        *gorm.DB
	tableName string
}

func NewInquiryStore(db *gorm.DB, tableName string) (*InquiryStore, error) {
	if tableName == "" {
		tableName = "inquiries"
	}
	if err := db.Table(tableName).AutoMigrate(&InquiryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", tableName, err)
	}
	return &InquiryStore{
		db:        db,
		tableName: tableName,
	}, nil
}

// Save upserts rec by request id so redelivered messages do not duplicate rows.
func (s *InquiryStore) Save(ctx context.Context, rec *InquiryRecord) error {
	if rec.RequestID == "" {
		return fmt.Errorf("%w: missing request id", ErrInvalidRecord)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"summary", "payload", "status", "detail", "updated_at"}),
		}).Create(rec).Error
	if errors.Is(err, gorm.ErrInvalidData) || errors.Is(err, gorm.ErrInvalidField) {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return err
}
