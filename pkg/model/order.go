package model

import "time"

// VoucherOrder 一个买家对一张优惠券的成功预订
// (user_id, voucher_id) 唯一索引兜底一人一单
type VoucherOrder struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:uk_user_voucher,priority:1;not null" json:"user_id"`
	VoucherID int64     `gorm:"uniqueIndex:uk_user_voucher,priority:2;not null" json:"voucher_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (VoucherOrder) TableName() string {
	return "tb_voucher_order"
}
