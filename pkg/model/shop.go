package model

import "time"

// Shop 商铺实体，读多写少，走缓存旁路读取
type Shop struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	TypeID    int64     `gorm:"index" json:"type_id"`
	Address   string    `gorm:"type:varchar(255)" json:"address"`
	AvgPrice  int64     `json:"avg_price"`
	Score     int32     `json:"score"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Shop) TableName() string {
	return "tb_shop"
}
