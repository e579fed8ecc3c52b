package model

import "time"

// FailedOrder 无法解析或多次重试仍失败的队列消息落表，等待人工介入
type FailedOrder struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MsgID        string    `gorm:"type:varchar(64);index" json:"msg_id"`
	OriginalJSON string    `gorm:"type:text" json:"original_json"`
	ErrorReason  string    `gorm:"type:varchar(255)" json:"error_reason"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (FailedOrder) TableName() string {
	return "failed_orders"
}
