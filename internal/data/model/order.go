package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 商城订单表（本服务只读写支付相关字段）
type Order struct {
	OrderID       string          `gorm:"primaryKey;type:varchar(64)"`
	ParentOrderID string          `gorm:"type:varchar(64);index"` // 续费订单的父订单
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Status    string `gorm:"type:varchar(20);not null;default:'pending';index:idx_mandate_status,priority:2"` // pending/on-hold/processing/completed/failed
	MandateID string `gorm:"type:varchar(64);index:idx_mandate_status,priority:1"`                            // Twikey mndtId

	BillingFirstName string `gorm:"type:varchar(100)"`
	BillingLastName  string `gorm:"type:varchar(100)"`
	BillingEmail     string `gorm:"type:varchar(255)"`
	BillingAddress1  string `gorm:"type:varchar(255)"`
	BillingAddress2  string `gorm:"type:varchar(255)"`
	BillingPostcode  string `gorm:"type:varchar(20)"`
	BillingCity      string `gorm:"type:varchar(100)"`
	BillingCountry   string `gorm:"type:varchar(2)"`

	PaidAt    *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
