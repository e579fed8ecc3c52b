package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Ajie-upup/ajie-comment/pkg/model"
)

type VoucherRepo interface {
	CreateVoucher(ctx context.Context, voucher *model.SeckillVoucher) error
	GetVoucher(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error)
}

type mysqlVoucherRepo struct {
	db *gorm.DB
}

func NewVoucherRepo(db *gorm.DB) VoucherRepo {
	return &mysqlVoucherRepo{db: db}
}

func (r *mysqlVoucherRepo) CreateVoucher(ctx context.Context, voucher *model.SeckillVoucher) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(voucher).Error, "create voucher")
}

func (r *mysqlVoucherRepo) GetVoucher(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	var voucher model.SeckillVoucher
	if err := r.db.WithContext(ctx).Where("voucher_id = ?", voucherID).First(&voucher).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}
