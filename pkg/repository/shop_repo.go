package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Ajie-upup/ajie-comment/pkg/model"
)

var ErrShopNotFound = errors.New("repository: shop not found")

type ShopRepo interface {
	GetByID(ctx context.Context, id int64) (*model.Shop, error)
	Update(ctx context.Context, shop *model.Shop) error
}

type mysqlShopRepo struct {
	db *gorm.DB
}

func NewShopRepo(db *gorm.DB) ShopRepo {
	return &mysqlShopRepo{db: db}
}

func (r *mysqlShopRepo) GetByID(ctx context.Context, id int64) (*model.Shop, error) {
	var shop model.Shop
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&shop).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}
	return &shop, nil
}

func (r *mysqlShopRepo) Update(ctx context.Context, shop *model.Shop) error {
	res := r.db.WithContext(ctx).Model(&model.Shop{}).Where("id = ?", shop.ID).Updates(shop)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update shop")
	}
	if res.RowsAffected == 0 {
		return ErrShopNotFound
	}
	return nil
}
