package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/paycoord/internal/pending"
)

// PendingPurchase 进行中的购买元数据，按固定 key 存储
type PendingPurchase struct {
	Key       string                              `gorm:"column:key;type:varchar(128);primary_key" json:"key"`
	Record    datatypes.JSONType[*pending.Record] `gorm:"column:record;type:jsonb;not null" json:"record"`
	CreatedAt time.Time                           `json:"created_at"`
	UpdatedAt time.Time                           `json:"updated_at"`
}

func (PendingPurchase) TableName() string {
	return "pending_purchase"
}
