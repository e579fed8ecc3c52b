package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Ajie-upup/ajie-comment/pkg/cache"
	"github.com/Ajie-upup/ajie-comment/pkg/model"
	"github.com/Ajie-upup/ajie-comment/pkg/repository"
)

const voucherCacheTTL = 30 * time.Minute

// VoucherService 优惠券发布与查询
type VoucherService struct {
	rdb   *redis.Client
	repo  repository.VoucherRepo
	cache *cache.Client
	log   *logrus.Logger
}

func NewVoucherService(rdb *redis.Client, repo repository.VoucherRepo, cacheClient *cache.Client, log *logrus.Logger) *VoucherService {
	return &VoucherService{rdb: rdb, repo: repo, cache: cacheClient, log: log}
}

// AddSeckillVoucher 发布秒杀券：落库后立刻把库存计数种进 Redis
// 快速路径校验依赖这份计数，必须在开卖前就位
func (s *VoucherService) AddSeckillVoucher(ctx context.Context, voucher *model.SeckillVoucher) error {
	if err := s.repo.CreateVoucher(ctx, voucher); err != nil {
		return err
	}
	return s.rdb.Set(ctx, fmt.Sprintf("seckill:stock:%d", voucher.VoucherID), voucher.Stock, 0).Err()
}

// QueryVoucher 券详情读取，互斥重建：开卖瞬间同一券的缓存失效会打爆数据库
func (s *VoucherService) QueryVoucher(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	var voucher model.SeckillVoucher
	key := fmt.Sprintf("cache:voucher:%d", voucherID)

	err := s.cache.QueryWithMutex(ctx, key, &voucher, voucherCacheTTL, func(ctx context.Context) (interface{}, error) {
		v, err := s.repo.GetVoucher(ctx, voucherID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cache.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}
