package models

import (
	"time"

	"gorm.io/datatypes"
)

// PurchaseEventLog persists every progress event emitted during a purchase attempt.
type PurchaseEventLog struct {
	ID             string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Event          string         `gorm:"column:event;type:varchar(64);not null;index:idx_event_created_at,priority:1" json:"event"`
	TraceID        string         `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Provider       string         `gorm:"column:provider;type:varchar(32)" json:"provider"`
	ProductID      string         `gorm:"column:product_id;type:varchar(128)" json:"product_id"`
	Amount         int64          `gorm:"column:amount;type:bigint" json:"amount"`
	IsSubscription bool           `gorm:"column:is_subscription" json:"is_subscription"`
	Meta           datatypes.JSON `gorm:"column:meta;type:jsonb" json:"meta"`
	Error          *string        `gorm:"column:error;type:text" json:"error"`
	OccurredAt     time.Time      `gorm:"column:occurred_at" json:"occurred_at"`
	CreatedAt      time.Time      `gorm:"index:idx_event_created_at,priority:2" json:"created_at"`
}

func (PurchaseEventLog) TableName() string { return "purchase_event_log" }
