package repository

import (
	"context"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Ajie-upup/ajie-comment/pkg/model"
)

// 预期内的落库中止原因：不是故障，调用方按无操作处理
var (
	ErrOrderExists    = errors.New("repository: order already exists for this user and voucher")
	ErrStockNotEnough = errors.New("repository: stock not enough")
)

type OrderRepo interface {
	// CreateVoucherOrder 在一个事务内完成一人一单校验、带守卫的库存扣减和订单插入
	CreateVoucherOrder(ctx context.Context, order *model.VoucherOrder) error
	GetOrder(ctx context.Context, orderID int64) (*model.VoucherOrder, error)
	CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int64, error)
	InsertFailedOrder(ctx context.Context, failed *model.FailedOrder) error
}

type mysqlOrderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) OrderRepo {
	return &mysqlOrderRepo{db: db}
}

// [Order Materializer] 权威落库路径，快速路径的预订结果在这里被重新校验
func (r *mysqlOrderRepo) CreateVoucherOrder(ctx context.Context, order *model.VoucherOrder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 一人一单：脚本里查过一次，这里是权威判定
		var count int64
		if err := tx.Model(&model.VoucherOrder{}).
			Where("user_id = ? AND voucher_id = ?", order.UserID, order.VoucherID).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "count existing order")
		}
		if count > 0 {
			return ErrOrderExists
		}

		// 2. 扣减库存，stock > 0 守卫防止超卖
		res := tx.Model(&model.SeckillVoucher{}).
			Where("voucher_id = ? AND stock > 0", order.VoucherID).
			UpdateColumn("stock", gorm.Expr("stock - 1"))
		if res.Error != nil {
			return errors.Wrap(res.Error, "decrement stock")
		}
		if res.RowsAffected == 0 {
			return ErrStockNotEnough
		}

		// 3. 插入订单，唯一索引冲突视为幂等成功
		if err := tx.Create(order).Error; err != nil {
			if isDuplicateError(err) {
				return ErrOrderExists
			}
			return errors.Wrap(err, "insert order")
		}
		return nil
	})
}

func (r *mysqlOrderRepo) GetOrder(ctx context.Context, orderID int64) (*model.VoucherOrder, error) {
	var order model.VoucherOrder
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *mysqlOrderRepo) CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.VoucherOrder{}).
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).
		Count(&count).Error
	return count, err
}

// [Order Materializer] 毒消息落表，等待人工介入
func (r *mysqlOrderRepo) InsertFailedOrder(ctx context.Context, failed *model.FailedOrder) error {
	return r.db.WithContext(ctx).Create(failed).Error
}

// MySQL 1062 唯一键冲突
func isDuplicateError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
