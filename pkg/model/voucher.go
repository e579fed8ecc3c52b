package model

import "time"

// SeckillVoucher 秒杀优惠券
// 库存的权威副本在 MySQL，Redis 中有一份镜像计数用于快速路径校验
type SeckillVoucher struct {
	VoucherID int64     `gorm:"primaryKey;column:voucher_id" json:"voucher_id"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Stock     int32     `gorm:"type:int;not null" json:"stock"`
	BeginTime time.Time `json:"begin_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SeckillVoucher) TableName() string {
	return "tb_seckill_voucher"
}
