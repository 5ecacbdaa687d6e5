package model

import (
	"time"
)

// OrderNote 订单备注表（状态流转与服务商返回信息）
type OrderNote struct {
	OrderNoteID string    `gorm:"primaryKey;type:varchar(36)"`
	OrderID     string    `gorm:"type:varchar(64);not null;index"`
	Note        string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName 指定表名
func (OrderNote) TableName() string {
	return "order_note"
}
