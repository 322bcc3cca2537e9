package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/paycoord/internal/models"
	"github.com/fatflowers/paycoord/internal/pending"
)

type store struct {
	db *gorm.DB
}

// NewInPostgres returns a pending.Store backed by the pending_purchase table.
func NewInPostgres(db *gorm.DB) pending.Store {
	return &store{db: db}
}

func (s *store) Get(ctx context.Context, key string) (*pending.Record, error) {
	var row models.PendingPurchase
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pending.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get pending purchase: %w", err)
	}
	if row.Record.Data() == nil {
		return nil, pending.ErrNotFound
	}
	return row.Record.Data().Clone(), nil
}

func (s *store) Set(ctx context.Context, key string, record *pending.Record) error {
	if key == "" {
		return errors.New("key is required")
	}
	if record == nil {
		return errors.New("record is required")
	}

	row := &models.PendingPurchase{
		Key:    key,
		Record: datatypes.NewJSONType(record.Clone()),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"record", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to save pending purchase: %w", err)
	}
	return nil
}

func (s *store) Clear(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.PendingPurchase{}).Error; err != nil {
		return fmt.Errorf("failed to clear pending purchase: %w", err)
	}
	return nil
}
